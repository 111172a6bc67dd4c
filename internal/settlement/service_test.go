package settlement

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/NgouanKoffi/fullmargin-sub007/internal/gateway"
	"github.com/NgouanKoffi/fullmargin-sub007/internal/models"
)

type fakeCourseStore struct {
	courses map[uuid.UUID]*models.Course
}

func (f *fakeCourseStore) GetByID(_ context.Context, id uuid.UUID) (*models.Course, error) {
	c, ok := f.courses[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return c, nil
}

type fakeOrderStore struct {
	orders map[uuid.UUID]*models.Order
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[uuid.UUID]*models.Order)}
}

func (f *fakeOrderStore) UpsertPending(_ context.Context, o *models.Order) error {
	for _, existing := range f.orders {
		if existing.BuyerID == o.BuyerID && existing.CourseID == o.CourseID {
			if existing.Status == models.OrderStatusSucceeded {
				return pgx.ErrNoRows
			}
			o.ID = existing.ID
			f.orders[o.ID] = cloneOrder(o)
			return nil
		}
	}
	o.ID = uuid.New()
	f.orders[o.ID] = cloneOrder(o)
	return nil
}

func (f *fakeOrderStore) UpdateSettlement(_ context.Context, o *models.Order) error {
	existing, ok := f.orders[o.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if existing.Status == models.OrderStatusSucceeded && o.Status != models.OrderStatusSucceeded {
		// success is terminal; mirror the persistence guard
		return nil
	}
	f.orders[o.ID] = cloneOrder(o)
	return nil
}

func (f *fakeOrderStore) GetByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneOrder(o), nil
}

func (f *fakeOrderStore) GetBySessionRef(_ context.Context, ref string) (*models.Order, error) {
	for _, o := range f.orders {
		if o.Settlement.SessionRef == ref {
			return cloneOrder(o), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeOrderStore) GetByPaymentRef(_ context.Context, ref string) (*models.Order, error) {
	for _, o := range f.orders {
		if o.Settlement.PaymentRef == ref {
			return cloneOrder(o), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeOrderStore) ListByBuyer(_ context.Context, buyerID uuid.UUID, _, _ int) ([]models.OrderWithCourse, error) {
	var out []models.OrderWithCourse
	for _, o := range f.orders {
		if o.BuyerID == buyerID {
			out = append(out, models.OrderWithCourse{Order: *cloneOrder(o)})
		}
	}
	return out, nil
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	return &cp
}

type fakeEnrollmentStore struct {
	granted map[string]bool
}

func newFakeEnrollmentStore() *fakeEnrollmentStore {
	return &fakeEnrollmentStore{granted: make(map[string]bool)}
}

func enrollmentKey(buyerID, courseID uuid.UUID) string {
	return buyerID.String() + "/" + courseID.String()
}

func (f *fakeEnrollmentStore) Grant(_ context.Context, buyerID, courseID uuid.UUID) error {
	f.granted[enrollmentKey(buyerID, courseID)] = true
	return nil
}

func (f *fakeEnrollmentStore) Exists(_ context.Context, buyerID, courseID uuid.UUID) (bool, error) {
	return f.granted[enrollmentKey(buyerID, courseID)], nil
}

type fakeGateway struct {
	createdParams *gateway.CreateSessionParams
	session       *gateway.CheckoutSession
	intent        *gateway.PaymentIntent
	retrieveErr   error
}

func (f *fakeGateway) CreateCheckoutSession(_ context.Context, params gateway.CreateSessionParams) (*gateway.CheckoutSession, error) {
	f.createdParams = &params
	return &gateway.CheckoutSession{
		ID:            "cs_test",
		URL:           "https://pay.example/cs_test",
		Status:        gateway.SessionStatusOpen,
		PaymentStatus: gateway.SessionPaymentStatusUnpaid,
	}, nil
}

func (f *fakeGateway) RetrieveCheckoutSession(_ context.Context, _ string) (*gateway.CheckoutSession, error) {
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	return f.session, nil
}

func (f *fakeGateway) RetrievePaymentIntent(_ context.Context, _ string) (*gateway.PaymentIntent, error) {
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	if f.intent == nil {
		return nil, errors.New("no such intent")
	}
	return f.intent, nil
}

type fakeNotifier struct {
	kinds []string
}

func (f *fakeNotifier) Notify(_ context.Context, _ uuid.UUID, kind string, _ map[string]interface{}) {
	f.kinds = append(f.kinds, kind)
}

type serviceFixture struct {
	svc         *Service
	courses     *fakeCourseStore
	orders      *fakeOrderStore
	enrollments *fakeEnrollmentStore
	payouts     *fakePayoutStore
	gateway     *fakeGateway
	notifier    *fakeNotifier
	buyerID     uuid.UUID
	sellerID    uuid.UUID
	courseID    uuid.UUID
}

func newServiceFixture(t *testing.T, course *models.Course) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		courses:     &fakeCourseStore{courses: make(map[uuid.UUID]*models.Course)},
		orders:      newFakeOrderStore(),
		enrollments: newFakeEnrollmentStore(),
		payouts:     newFakePayoutStore(),
		gateway:     &fakeGateway{},
		notifier:    &fakeNotifier{},
		buyerID:     uuid.New(),
	}
	if course != nil {
		if course.ID == uuid.Nil {
			course.ID = uuid.New()
		}
		if course.SellerID == nil {
			sellerID := uuid.New()
			course.SellerID = &sellerID
		}
		f.courseID = course.ID
		f.sellerID = *course.SellerID
		f.courses.courses[course.ID] = course
	}
	ledger := NewLedger(f.payouts, 5, nil)
	f.svc = NewService(f.courses, f.orders, f.enrollments, ledger, f.gateway, f.notifier,
		Config{SuccessURL: "https://app.example/success", CancelURL: "https://app.example/cancel", DefaultCurrency: "usd"}, nil)
	return f
}

func paidCourse() *models.Course {
	return &models.Course{Title: "Advanced Woodworking", IsPaid: true, Price: 49.99, Currency: "usd", IsActive: true}
}

func TestStartCheckoutCourseNotFound(t *testing.T) {
	f := newServiceFixture(t, nil)
	_, err := f.svc.StartCheckout(context.Background(), f.buyerID, uuid.New(), models.CheckoutMethodGateway)
	serr, ok := AsError(err)
	if !ok || serr.Kind != KindNotFound {
		t.Fatalf("err = %v, want not_found", err)
	}
}

func TestStartCheckoutInactiveCourse(t *testing.T) {
	course := paidCourse()
	course.IsActive = false
	f := newServiceFixture(t, course)
	_, err := f.svc.StartCheckout(context.Background(), f.buyerID, f.courseID, models.CheckoutMethodGateway)
	serr, ok := AsError(err)
	if !ok || serr.Kind != KindNotFound {
		t.Fatalf("err = %v, want not_found for inactive course", err)
	}
}

func TestStartCheckoutMissingSeller(t *testing.T) {
	course := paidCourse()
	course.ID = uuid.New()
	f := newServiceFixture(t, nil)
	f.courses.courses[course.ID] = course // no seller set
	_, err := f.svc.StartCheckout(context.Background(), f.buyerID, course.ID, models.CheckoutMethodGateway)
	serr, ok := AsError(err)
	if !ok || serr.Kind != KindMissingSeller {
		t.Fatalf("err = %v, want missing_seller", err)
	}
}

func TestStartCheckoutOwnCourse(t *testing.T) {
	f := newServiceFixture(t, paidCourse())
	_, err := f.svc.StartCheckout(context.Background(), f.sellerID, f.courseID, models.CheckoutMethodGateway)
	serr, ok := AsError(err)
	if !ok || serr.Kind != KindOwnCourse {
		t.Fatalf("err = %v, want own_course", err)
	}
}

func TestStartCheckoutAlreadyEnrolled(t *testing.T) {
	f := newServiceFixture(t, paidCourse())
	f.enrollments.granted[enrollmentKey(f.buyerID, f.courseID)] = true
	_, err := f.svc.StartCheckout(context.Background(), f.buyerID, f.courseID, models.CheckoutMethodGateway)
	serr, ok := AsError(err)
	if !ok || serr.Kind != KindAlreadyEnrolled {
		t.Fatalf("err = %v, want already_enrolled", err)
	}
}

func TestStartCheckoutInvalidAmount(t *testing.T) {
	course := paidCourse()
	course.Price = 0
	f := newServiceFixture(t, course)
	_, err := f.svc.StartCheckout(context.Background(), f.buyerID, f.courseID, models.CheckoutMethodGateway)
	serr, ok := AsError(err)
	if !ok || serr.Kind != KindInvalidAmount {
		t.Fatalf("err = %v, want invalid_amount", err)
	}
}

func TestStartCheckoutUnsupportedMethod(t *testing.T) {
	f := newServiceFixture(t, paidCourse())
	_, err := f.svc.StartCheckout(context.Background(), f.buyerID, f.courseID, "crypto")
	serr, ok := AsError(err)
	if !ok || serr.Kind != KindNotPayable {
		t.Fatalf("err = %v, want not_payable", err)
	}
}

func TestStartCheckoutGateway(t *testing.T) {
	f := newServiceFixture(t, paidCourse())

	result, err := f.svc.StartCheckout(context.Background(), f.buyerID, f.courseID, models.CheckoutMethodGateway)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if result.RedirectURL != "https://pay.example/cs_test" {
		t.Fatalf("redirect = %q", result.RedirectURL)
	}
	if result.Status != models.OrderStatusRequiresPayment {
		t.Fatalf("status = %q", result.Status)
	}

	params := f.gateway.createdParams
	if params == nil {
		t.Fatal("gateway session not created")
	}
	if params.AmountCents != 4999 || params.Currency != "usd" {
		t.Fatalf("session params = %+v", params)
	}
	if params.Metadata["order_id"] != result.OrderID.String() {
		t.Fatalf("metadata order_id = %q", params.Metadata["order_id"])
	}

	order := f.orders.orders[result.OrderID]
	if order == nil || order.Settlement.SessionRef != "cs_test" {
		t.Fatalf("session ref not persisted: %+v", order)
	}
	if order.UnitAmountCents != 4999 {
		t.Fatalf("frozen amount = %d", order.UnitAmountCents)
	}
}

func TestStartCheckoutManual(t *testing.T) {
	f := newServiceFixture(t, paidCourse())

	result, err := f.svc.StartCheckout(context.Background(), f.buyerID, f.courseID, models.CheckoutMethodManual)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if !strings.HasPrefix(result.Reference, "MAN-") {
		t.Fatalf("reference = %q", result.Reference)
	}
	order := f.orders.orders[result.OrderID]
	if order.Settlement.Method.Type != "manual" {
		t.Fatalf("method = %+v", order.Settlement.Method)
	}
	if order.Settlement.SessionRef != result.Reference {
		t.Fatalf("reference not stored: %q vs %q", order.Settlement.SessionRef, result.Reference)
	}
}

func TestStartCheckoutFreeCourse(t *testing.T) {
	course := paidCourse()
	course.IsPaid = false
	course.Price = 0
	f := newServiceFixture(t, course)

	result, err := f.svc.StartCheckout(context.Background(), f.buyerID, f.courseID, models.CheckoutMethodGateway)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if result.Status != models.OrderStatusSucceeded {
		t.Fatalf("status = %q, free course must settle immediately", result.Status)
	}
	if result.RedirectURL != "" || result.Reference != "" {
		t.Fatalf("free checkout leaked a payment path: %+v", result)
	}
	if !f.enrollments.granted[enrollmentKey(f.buyerID, f.courseID)] {
		t.Fatal("enrollment not granted")
	}
	payout := f.payouts.payouts[payoutKey(result.OrderID, f.courseID, f.sellerID)]
	if payout == nil || payout.GrossCents != 0 || payout.NetCents != 0 {
		t.Fatalf("zero-amount payout missing or non-zero: %+v", payout)
	}
	if len(f.notifier.kinds) != 2 {
		t.Fatalf("notifications = %v", f.notifier.kinds)
	}
}

func TestRefreshGatewayPaid(t *testing.T) {
	f := newServiceFixture(t, paidCourse())
	result, err := f.svc.StartCheckout(context.Background(), f.buyerID, f.courseID, models.CheckoutMethodGateway)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	f.gateway.session = &gateway.CheckoutSession{
		ID:            "cs_test",
		Status:        gateway.SessionStatusComplete,
		PaymentStatus: gateway.SessionPaymentStatusPaid,
		Currency:      "usd",
		AmountTotal:   4999,
		PaymentIntent: gateway.ExpandableIntent{Intent: &gateway.PaymentIntent{
			ID:     "pi_test",
			Status: gateway.IntentStatusSucceeded,
			Amount: 4999,
		}},
	}

	projection, err := f.svc.Refresh(context.Background(), RefreshParams{SessionRef: "cs_test"})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if projection.Status != models.OrderStatusSucceeded {
		t.Fatalf("status = %q", projection.Status)
	}
	if !projection.Enrolled {
		t.Fatal("enrollment not granted on settlement")
	}
	payout := f.payouts.payouts[payoutKey(result.OrderID, f.courseID, f.sellerID)]
	if payout == nil {
		t.Fatal("payout not created")
	}
	if payout.CommissionCents != 250 || payout.NetCents != 4749 {
		t.Fatalf("split = %d/%d", payout.CommissionCents, payout.NetCents)
	}

	// second refresh: no new payout, no new notifications
	if _, err := f.svc.Refresh(context.Background(), RefreshParams{SessionRef: "cs_test"}); err != nil {
		t.Fatalf("re-refresh: %v", err)
	}
	if f.payouts.createCalls != 1 {
		t.Fatalf("createCalls = %d", f.payouts.createCalls)
	}
	if len(f.notifier.kinds) != 2 {
		t.Fatalf("notifications duplicated: %v", f.notifier.kinds)
	}
}

func TestRefreshGatewayErrorKeepsState(t *testing.T) {
	f := newServiceFixture(t, paidCourse())
	if _, err := f.svc.StartCheckout(context.Background(), f.buyerID, f.courseID, models.CheckoutMethodGateway); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	f.gateway.retrieveErr = errors.New("gateway timeout")

	projection, err := f.svc.Refresh(context.Background(), RefreshParams{SessionRef: "cs_test"})
	if err != nil {
		t.Fatalf("refresh must not fail on gateway errors: %v", err)
	}
	if projection.Status != models.OrderStatusRequiresPayment {
		t.Fatalf("status = %q, want unchanged", projection.Status)
	}
	if f.payouts.createCalls != 0 {
		t.Fatal("payout created without payment confirmation")
	}
}

func TestRefreshUnknownOrder(t *testing.T) {
	f := newServiceFixture(t, paidCourse())
	_, err := f.svc.Refresh(context.Background(), RefreshParams{SessionRef: "cs_missing"})
	serr, ok := AsError(err)
	if !ok || serr.Kind != KindNotFound {
		t.Fatalf("err = %v, want not_found", err)
	}
}

func TestConfirmManual(t *testing.T) {
	f := newServiceFixture(t, paidCourse())
	result, err := f.svc.StartCheckout(context.Background(), f.buyerID, f.courseID, models.CheckoutMethodManual)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	projection, err := f.svc.ConfirmManual(context.Background(), result.Reference, "success")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if projection.Status != models.OrderStatusSucceeded {
		t.Fatalf("status = %q", projection.Status)
	}
	if !projection.Enrolled {
		t.Fatal("enrollment not granted")
	}
	payout := f.payouts.payouts[payoutKey(result.OrderID, f.courseID, f.sellerID)]
	if payout == nil {
		t.Fatal("payout not created")
	}
	// manual path has no gateway fee; net of gross after commission only
	if payout.GrossCents != 4999 || payout.CommissionCents != 250 || payout.NetCents != 4749 {
		t.Fatalf("split = %d/%d/%d", payout.GrossCents, payout.CommissionCents, payout.NetCents)
	}

	// confirming again is a no-op
	if _, err := f.svc.ConfirmManual(context.Background(), result.OrderID.String(), "success"); err != nil {
		t.Fatalf("re-confirm: %v", err)
	}
	if f.payouts.createCalls != 1 {
		t.Fatalf("createCalls = %d", f.payouts.createCalls)
	}
	if len(f.notifier.kinds) != 2 {
		t.Fatalf("notifications duplicated: %v", f.notifier.kinds)
	}
}

func TestConfirmManualRejectsGatewayOrder(t *testing.T) {
	f := newServiceFixture(t, paidCourse())
	result, err := f.svc.StartCheckout(context.Background(), f.buyerID, f.courseID, models.CheckoutMethodGateway)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	_, err = f.svc.ConfirmManual(context.Background(), result.OrderID.String(), "success")
	serr, ok := AsError(err)
	if !ok || serr.Kind != KindNotPayable {
		t.Fatalf("err = %v, want not_payable for a gateway order", err)
	}
	order := f.orders.orders[result.OrderID]
	if order.Status != models.OrderStatusRequiresPayment {
		t.Fatalf("status = %q, operator verdict must not settle a gateway order", order.Status)
	}
	if f.payouts.createCalls != 0 {
		t.Fatal("payout created without a gateway signal")
	}
}

func TestConfirmManualRejectsUnknownOutcome(t *testing.T) {
	f := newServiceFixture(t, paidCourse())
	result, err := f.svc.StartCheckout(context.Background(), f.buyerID, f.courseID, models.CheckoutMethodManual)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	_, err = f.svc.ConfirmManual(context.Background(), result.Reference, "perhaps")
	serr, ok := AsError(err)
	if !ok || serr.Kind != KindNotPayable {
		t.Fatalf("err = %v, want not_payable", err)
	}
}

func TestConfirmManualFailedOutcome(t *testing.T) {
	f := newServiceFixture(t, paidCourse())
	result, err := f.svc.StartCheckout(context.Background(), f.buyerID, f.courseID, models.CheckoutMethodManual)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	projection, err := f.svc.ConfirmManual(context.Background(), result.Reference, "failed")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if projection.Status != models.OrderStatusFailed {
		t.Fatalf("status = %q", projection.Status)
	}
	if f.payouts.createCalls != 0 {
		t.Fatal("payout created for failed order")
	}
	if f.enrollments.granted[enrollmentKey(f.buyerID, f.courseID)] {
		t.Fatal("enrollment granted for failed order")
	}
}
