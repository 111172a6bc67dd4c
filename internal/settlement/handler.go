package settlement

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/NgouanKoffi/fullmargin-sub007/internal/gateway"
	"github.com/NgouanKoffi/fullmargin-sub007/internal/middleware"
	"github.com/NgouanKoffi/fullmargin-sub007/pkg/response"
)

// Dedup key layout and TTL for inbound gateway events. Replays of processed
// events are acknowledged without re-processing; hydration stays idempotent
// regardless.
const (
	keyEventDedup   = "dedup:gateway:event:"
	eventDedupTTL   = 48 * time.Hour
	signatureHeader = "Gateway-Signature"
)

// eventDeduper tracks processed gateway event ids. An event is marked only
// after its settlement effects are applied, so a failed delivery keeps its id
// and the provider's retry is processed, not swallowed.
type eventDeduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type redisDeduper struct {
	rdb *redis.Client
}

func (d *redisDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.rdb.Exists(ctx, keyEventDedup+eventID).Result()
	return n > 0, err
}

func (d *redisDeduper) Mark(ctx context.Context, eventID string) error {
	return d.rdb.Set(ctx, keyEventDedup+eventID, 1, eventDedupTTL).Err()
}

// CheckoutRequest is the body for POST /checkout.
type CheckoutRequest struct {
	CourseID string `json:"course_id" binding:"required"`
	Method   string `json:"method" binding:"required,oneof=gateway manual"`
}

// RefreshRequest is the body for POST /orders/refresh. Any one reference is
// enough to locate the order.
type RefreshRequest struct {
	OrderID    string `json:"order_id,omitempty"`
	SessionRef string `json:"session_ref,omitempty"`
	PaymentRef string `json:"payment_ref,omitempty"`
}

// ConfirmRequest is the body for POST /orders/:ref/confirm.
type ConfirmRequest struct {
	Outcome string `json:"outcome" binding:"required"`
}

// Handler exposes the settlement HTTP surface.
type Handler struct {
	svc           *Service
	dedup         eventDeduper
	webhookSecret string
	logger        *zap.Logger
}

// NewHandler creates a settlement handler. rdb may be nil; event dedup is then
// skipped and hydration idempotency alone absorbs replays.
func NewHandler(svc *Service, rdb *redis.Client, webhookSecret string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{svc: svc, webhookSecret: webhookSecret, logger: logger}
	if rdb != nil {
		h.dedup = &redisDeduper{rdb: rdb}
	}
	return h
}

// StartCheckout handles POST /checkout.
func (h *Handler) StartCheckout(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	courseID, err := uuid.Parse(req.CourseID)
	if err != nil {
		response.BadRequest(c, "invalid course_id")
		return
	}

	result, err := h.svc.StartCheckout(c.Request.Context(), buyerID, courseID, req.Method)
	if err != nil {
		h.respondError(c, err, "start checkout failed")
		return
	}
	response.OK(c, result)
}

// Refresh handles POST /orders/refresh.
func (h *Handler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	params := RefreshParams{SessionRef: req.SessionRef, PaymentRef: req.PaymentRef}
	if req.OrderID != "" {
		id, err := uuid.Parse(req.OrderID)
		if err != nil {
			response.BadRequest(c, "invalid order_id")
			return
		}
		params.OrderID = &id
	}

	projection, err := h.svc.Refresh(c.Request.Context(), params)
	if err != nil {
		h.respondError(c, err, "refresh failed")
		return
	}
	response.OK(c, projection)
}

// ListMine handles GET /orders.
func (h *Handler) ListMine(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	list, err := h.svc.ListOrders(c.Request.Context(), buyerID, limit, offset)
	if err != nil {
		h.logger.Error("list orders failed", zap.Error(err), zap.String("buyer_id", buyerID.String()))
		response.Internal(c, "failed to list orders")
		return
	}
	response.OK(c, gin.H{"orders": list, "limit": limit, "offset": offset})
}

// ConfirmManual handles POST /orders/:ref/confirm (admin only). The :ref is an
// order id or a manual payment reference.
func (h *Handler) ConfirmManual(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	projection, err := h.svc.ConfirmManual(c.Request.Context(), c.Param("ref"), req.Outcome)
	if err != nil {
		h.respondError(c, err, "manual confirm failed")
		return
	}
	response.OK(c, projection)
}

// GatewayEvent handles POST /webhooks/gateway: asynchronous settlement
// notifications from the payment provider.
func (h *Handler) GatewayEvent(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		response.BadRequest(c, "unreadable body")
		return
	}
	if h.webhookSecret != "" && !h.verifySignature(raw, c.GetHeader(signatureHeader)) {
		response.Unauthorized(c, "invalid signature")
		return
	}

	var event gateway.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		response.BadRequest(c, "invalid event payload")
		return
	}

	if event.ID != "" && h.dedup != nil {
		seen, err := h.dedup.Seen(c.Request.Context(), event.ID)
		if err != nil {
			h.logger.Warn("event dedup check failed", zap.Error(err), zap.String("event_id", event.ID))
		} else if seen {
			response.OK(c, gin.H{"deduplicated": true})
			return
		}
	}

	params, ok := h.eventRefreshParams(event)
	if !ok {
		// unknown event type; acknowledge so the provider stops retrying
		response.OK(c, gin.H{"ignored": true})
		return
	}

	projection, err := h.svc.Refresh(c.Request.Context(), params)
	if err != nil {
		if serr, ok := AsError(err); ok && serr.Kind == KindNotFound {
			// order not visible yet; let the provider retry later
			response.NotFound(c, "order not found")
			return
		}
		h.logger.Error("webhook refresh failed", zap.Error(err), zap.String("event_id", event.ID))
		response.Internal(c, "failed to process event")
		return
	}
	h.markProcessed(c.Request.Context(), event.ID)
	response.OK(c, gin.H{"order_id": projection.ID, "status": projection.Status})
}

// markProcessed records the event id once settlement effects are applied. A
// mark failure only risks a redundant reprocess, which hydration absorbs.
func (h *Handler) markProcessed(ctx context.Context, eventID string) {
	if eventID == "" || h.dedup == nil {
		return
	}
	if err := h.dedup.Mark(ctx, eventID); err != nil {
		h.logger.Warn("event dedup mark failed", zap.Error(err), zap.String("event_id", eventID))
	}
}

// eventRefreshParams maps a gateway event to the order reference it concerns.
func (h *Handler) eventRefreshParams(event gateway.Event) (RefreshParams, bool) {
	switch event.Type {
	case "checkout.session.completed", "checkout.session.expired", "checkout.session.async_payment_succeeded", "checkout.session.async_payment_failed":
		var session gateway.CheckoutSession
		if err := json.Unmarshal(event.Data.Object, &session); err != nil {
			return RefreshParams{}, false
		}
		if raw := session.Metadata["order_id"]; raw != "" {
			if id, err := uuid.Parse(raw); err == nil {
				return RefreshParams{OrderID: &id}, true
			}
		}
		if session.ID != "" {
			return RefreshParams{SessionRef: session.ID}, true
		}
		return RefreshParams{}, false
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		var intent gateway.PaymentIntent
		if err := json.Unmarshal(event.Data.Object, &intent); err != nil || intent.ID == "" {
			return RefreshParams{}, false
		}
		return RefreshParams{PaymentRef: intent.ID}, true
	default:
		return RefreshParams{}, false
	}
}

func (h *Handler) verifySignature(payload []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (h *Handler) respondError(c *gin.Context, err error, logMsg string) {
	if serr, ok := AsError(err); ok {
		switch serr.Kind {
		case KindNotFound:
			response.NotFound(c, serr.Message)
		default:
			response.UnprocessableKind(c, serr.Kind, serr.Message)
		}
		return
	}
	h.logger.Error(logMsg, zap.Error(err))
	response.Internal(c, "internal error")
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	idVal, _ := c.Get(middleware.ContextUserID)
	id, ok := idVal.(uuid.UUID)
	return id, ok
}
