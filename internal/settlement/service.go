// Package settlement implements the order lifecycle: checkout orchestration,
// gateway reconciliation, the payout ledger and enrollment grants.
package settlement

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/NgouanKoffi/fullmargin-sub007/internal/gateway"
	"github.com/NgouanKoffi/fullmargin-sub007/internal/models"
	"github.com/NgouanKoffi/fullmargin-sub007/internal/money"
)

// CourseStore reads the external course catalog.
type CourseStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error)
}

// OrderStore owns order persistence and lookups by any known reference.
type OrderStore interface {
	UpsertPending(ctx context.Context, o *models.Order) error
	UpdateSettlement(ctx context.Context, o *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetBySessionRef(ctx context.Context, ref string) (*models.Order, error)
	GetByPaymentRef(ctx context.Context, ref string) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit, offset int) ([]models.OrderWithCourse, error)
}

// EnrollmentStore upserts and checks (buyer, course) enrollments.
type EnrollmentStore interface {
	Grant(ctx context.Context, buyerID, courseID uuid.UUID) error
	Exists(ctx context.Context, buyerID, courseID uuid.UUID) (bool, error)
}

// GatewayClient is the external payment provider surface this engine uses.
type GatewayClient interface {
	CreateCheckoutSession(ctx context.Context, params gateway.CreateSessionParams) (*gateway.CheckoutSession, error)
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*gateway.CheckoutSession, error)
	RetrievePaymentIntent(ctx context.Context, intentID string) (*gateway.PaymentIntent, error)
}

// Notifier dispatches best-effort notifications. Implementations must swallow
// delivery errors; settlement never depends on them.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, kind string, payload map[string]interface{})
}

// Config holds orchestrator settings injected at construction time.
type Config struct {
	SuccessURL      string
	CancelURL       string
	DefaultCurrency string
}

// CheckoutResult is returned from StartCheckout. Exactly one of RedirectURL
// (gateway path) or Reference (manual path) is set for pending orders; free
// courses settle immediately and set neither.
type CheckoutResult struct {
	OrderID     uuid.UUID `json:"order_id"`
	Status      string    `json:"status"`
	RedirectURL string    `json:"redirect_url,omitempty"`
	Reference   string    `json:"reference,omitempty"`
}

// CourseSummary is the denormalized course block of an order projection.
type CourseSummary struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	CoverURL    string     `json:"cover_url,omitempty"`
	CommunityID *uuid.UUID `json:"community_id,omitempty"`
}

// OrderProjection is the caller-facing view of an order.
type OrderProjection struct {
	ID         uuid.UUID                 `json:"id"`
	Status     string                    `json:"status"`
	PaidAt     *time.Time                `json:"paid_at,omitempty"`
	Course     CourseSummary             `json:"course"`
	Settlement models.SettlementSnapshot `json:"settlement"`
	Enrolled   bool                      `json:"enrolled"`
}

// RefreshParams locates an order by any one reference.
type RefreshParams struct {
	OrderID    *uuid.UUID
	SessionRef string
	PaymentRef string
}

// Service is the checkout orchestrator and settlement entry point.
type Service struct {
	courses     CourseStore
	orders      OrderStore
	enrollments EnrollmentStore
	ledger      *Ledger
	gateway     GatewayClient
	notifier    Notifier
	cfg         Config
	logger      *zap.Logger
}

// NewService creates the settlement service.
func NewService(courses CourseStore, orders OrderStore, enrollments EnrollmentStore, ledger *Ledger, gw GatewayClient, notifier Notifier, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		courses:     courses,
		orders:      orders,
		enrollments: enrollments,
		ledger:      ledger,
		gateway:     gw,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger,
	}
}

// StartCheckout validates eligibility, freezes the price into an order and
// dispatches to the gateway or manual path. Free courses bypass both paths and
// settle immediately with all-zero amounts.
func (s *Service) StartCheckout(ctx context.Context, buyerID, courseID uuid.UUID, method string) (*CheckoutResult, error) {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NewError(KindNotFound, "course not found")
		}
		return nil, fmt.Errorf("load course: %w", err)
	}
	if course.DeletedAt != nil || !course.IsActive {
		return nil, NewError(KindNotFound, "course not found")
	}
	if course.SellerID == nil {
		return nil, NewError(KindMissingSeller, "course has no seller")
	}
	sellerID := *course.SellerID
	if sellerID == buyerID {
		return nil, NewError(KindOwnCourse, "you cannot buy your own course")
	}
	enrolled, err := s.enrollments.Exists(ctx, buyerID, courseID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if enrolled {
		return nil, NewError(KindAlreadyEnrolled, "you already own this course")
	}

	currency := strings.ToLower(course.Currency)
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	if !course.IsPaid {
		return s.enrollFree(ctx, buyerID, sellerID, course, currency)
	}

	amountCents := money.ToCents(course.Price)
	if amountCents <= 0 {
		return nil, NewError(KindInvalidAmount, "course price is not a positive amount")
	}

	order := &models.Order{
		BuyerID:         buyerID,
		CourseID:        course.ID,
		SellerID:        sellerID,
		CourseTitle:     course.Title,
		Currency:        currency,
		UnitAmount:      money.CentsToUnit(amountCents),
		UnitAmountCents: amountCents,
		Status:          models.OrderStatusRequiresPayment,
	}

	switch method {
	case models.CheckoutMethodGateway:
		return s.startGatewayCheckout(ctx, order)
	case models.CheckoutMethodManual:
		return s.startManualCheckout(ctx, order)
	default:
		return nil, NewError(KindNotPayable, "unsupported checkout method: "+method)
	}
}

func (s *Service) startGatewayCheckout(ctx context.Context, order *models.Order) (*CheckoutResult, error) {
	if err := s.orders.UpsertPending(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, gateway.CreateSessionParams{
		AmountCents: order.UnitAmountCents,
		Currency:    order.Currency,
		Label:       order.CourseTitle,
		SuccessURL:  s.cfg.SuccessURL,
		CancelURL:   s.cfg.CancelURL,
		Metadata: map[string]string{
			"order_id":  order.ID.String(),
			"buyer_id":  order.BuyerID.String(),
			"course_id": order.CourseID.String(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	order.Settlement.SessionRef = session.ID
	if session.PaymentIntent.ID != "" {
		order.Settlement.PaymentRef = session.PaymentIntent.ID
	}
	if err := s.orders.UpdateSettlement(ctx, order); err != nil {
		return nil, fmt.Errorf("persist session ref: %w", err)
	}

	return &CheckoutResult{OrderID: order.ID, Status: order.Status, RedirectURL: session.URL}, nil
}

func (s *Service) startManualCheckout(ctx context.Context, order *models.Order) (*CheckoutResult, error) {
	ref := manualReference()
	order.Settlement.SessionRef = ref
	order.Settlement.Method = models.PaymentMethodSummary{Type: "manual"}
	if err := s.orders.UpsertPending(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return &CheckoutResult{OrderID: order.ID, Status: order.Status, Reference: ref}, nil
}

func (s *Service) enrollFree(ctx context.Context, buyerID, sellerID uuid.UUID, course *models.Course, currency string) (*CheckoutResult, error) {
	now := time.Now().UTC()
	order := &models.Order{
		BuyerID:     buyerID,
		CourseID:    course.ID,
		SellerID:    sellerID,
		CourseTitle: course.Title,
		Currency:    currency,
		Status:      models.OrderStatusSucceeded,
		PaidAt:      &now,
	}
	if err := s.orders.UpsertPending(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	// zero-amount payout/commission pair keeps the audit trail uniform
	if err := s.applySettlement(ctx, order); err != nil {
		return nil, err
	}
	return &CheckoutResult{OrderID: order.ID, Status: order.Status}, nil
}

// Refresh reconciles an order against the gateway's current state and returns
// the caller-facing projection. Gateway errors are treated as "no new
// information": the order keeps its current state for a later retry.
func (s *Service) Refresh(ctx context.Context, params RefreshParams) (*OrderProjection, error) {
	order, err := s.locate(ctx, params)
	if err != nil {
		return nil, err
	}

	if order.Settlement.Method.Type != "manual" {
		session, intent := s.fetchGatewayState(ctx, order)
		if session != nil || intent != nil {
			Hydrate(order, session, intent)
			if err := s.orders.UpdateSettlement(ctx, order); err != nil {
				return nil, fmt.Errorf("persist order: %w", err)
			}
		}
	}

	if order.Status == models.OrderStatusSucceeded {
		if err := s.applySettlement(ctx, order); err != nil {
			return nil, err
		}
	}
	return s.projection(ctx, order), nil
}

// ConfirmManual applies an operator-supplied outcome to a manual order located
// by id or by its human-shareable reference. Confirming a succeeded order
// again is a no-op.
func (s *Service) ConfirmManual(ctx context.Context, ref string, outcome string) (*OrderProjection, error) {
	params := RefreshParams{SessionRef: ref}
	if id, err := uuid.Parse(ref); err == nil {
		params = RefreshParams{OrderID: &id}
	}
	order, err := s.locate(ctx, params)
	if err != nil {
		return nil, err
	}
	// only manual orders take operator verdicts; gateway orders settle from
	// gateway signals alone
	if order.Settlement.Method.Type != "manual" {
		return nil, NewError(KindNotPayable, "order is not awaiting manual verification")
	}

	if serr := ApplyManualOutcome(order, outcome); serr != nil {
		return nil, serr
	}
	if err := s.orders.UpdateSettlement(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}
	if order.Status == models.OrderStatusSucceeded {
		if err := s.applySettlement(ctx, order); err != nil {
			return nil, err
		}
	}
	return s.projection(ctx, order), nil
}

// ListOrders returns the buyer's orders joined with course summaries.
func (s *Service) ListOrders(ctx context.Context, buyerID uuid.UUID, limit, offset int) ([]models.OrderWithCourse, error) {
	return s.orders.ListByBuyer(ctx, buyerID, limit, offset)
}

func (s *Service) locate(ctx context.Context, params RefreshParams) (*models.Order, error) {
	var order *models.Order
	var err error
	switch {
	case params.OrderID != nil:
		order, err = s.orders.GetByID(ctx, *params.OrderID)
	case params.SessionRef != "":
		order, err = s.orders.GetBySessionRef(ctx, params.SessionRef)
	case params.PaymentRef != "":
		order, err = s.orders.GetByPaymentRef(ctx, params.PaymentRef)
	default:
		return nil, NewError(KindNotFound, "order reference required")
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NewError(KindNotFound, "order not found")
		}
		return nil, fmt.Errorf("load order: %w", err)
	}
	return order, nil
}

// fetchGatewayState pulls the session and payment detail for an order.
// Failures are logged and reported as missing data, never as order failures.
func (s *Service) fetchGatewayState(ctx context.Context, order *models.Order) (*gateway.CheckoutSession, *gateway.PaymentIntent) {
	var session *gateway.CheckoutSession
	var intent *gateway.PaymentIntent

	if ref := order.Settlement.SessionRef; ref != "" {
		var err error
		session, err = s.gateway.RetrieveCheckoutSession(ctx, ref)
		if err != nil {
			s.logger.Warn("retrieve session failed, no new information",
				zap.String("order_id", order.ID.String()), zap.Error(err))
			session = nil
		}
	}

	paymentRef := order.Settlement.PaymentRef
	if session != nil {
		intent = session.PaymentIntent.Intent
		if intent == nil && session.PaymentIntent.ID != "" {
			paymentRef = session.PaymentIntent.ID
		}
	}
	if intent == nil && paymentRef != "" {
		var err error
		intent, err = s.gateway.RetrievePaymentIntent(ctx, paymentRef)
		if err != nil {
			s.logger.Warn("retrieve payment intent failed, no new information",
				zap.String("order_id", order.ID.String()), zap.Error(err))
			intent = nil
		}
	}
	return session, intent
}

// applySettlement runs the settlement effects for a succeeded order: payout +
// commission + seller credit (one idempotent unit), enrollment grant, then
// best-effort notifications on first settlement only.
func (s *Service) applySettlement(ctx context.Context, order *models.Order) error {
	payout, created, err := s.ledger.SettleOrder(ctx, order)
	if err != nil {
		return err
	}
	if err := s.enrollments.Grant(ctx, order.BuyerID, order.CourseID); err != nil {
		return fmt.Errorf("grant enrollment: %w", err)
	}
	if created && s.notifier != nil {
		s.notifier.Notify(ctx, order.BuyerID, models.NotificationKindPurchaseComplete, map[string]interface{}{
			"order_id":     order.ID.String(),
			"course_id":    order.CourseID.String(),
			"course_title": order.CourseTitle,
		})
		s.notifier.Notify(ctx, order.SellerID, models.NotificationKindCourseSold, map[string]interface{}{
			"order_id":     order.ID.String(),
			"course_id":    order.CourseID.String(),
			"course_title": order.CourseTitle,
			"net":          payout.Net,
			"currency":     payout.Currency,
		})
	}
	return nil
}

func (s *Service) projection(ctx context.Context, order *models.Order) *OrderProjection {
	enrolled, err := s.enrollments.Exists(ctx, order.BuyerID, order.CourseID)
	if err != nil {
		s.logger.Warn("check enrollment failed", zap.String("order_id", order.ID.String()), zap.Error(err))
		enrolled = false
	}
	summary := CourseSummary{ID: order.CourseID, Title: order.CourseTitle}
	if course, err := s.courses.GetByID(ctx, order.CourseID); err == nil {
		summary.CoverURL = course.CoverURL
		summary.CommunityID = course.CommunityID
	}
	return &OrderProjection{
		ID:         order.ID,
		Status:     order.Status,
		PaidAt:     order.PaidAt,
		Course:     summary,
		Settlement: order.Settlement,
		Enrolled:   enrolled,
	}
}

// manualReference builds a human-shareable reference for the manual path:
// time-based plus a short random suffix, unique enough for an operator to
// correlate. Not a security token.
func manualReference() string {
	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	return "MAN-" + time.Now().UTC().Format("20060102-150405") + "-" + strings.ToUpper(hex.EncodeToString(suffix))
}
