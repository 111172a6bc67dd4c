package notify

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NgouanKoffi/fullmargin-sub007/internal/models"
	"github.com/NgouanKoffi/fullmargin-sub007/pkg/queue"
)

// Notifier records a notification log and hands delivery off to the worker
// queue. Every error is swallowed and logged; callers never see delivery
// problems.
type Notifier struct {
	repo   *Repository
	queue  *queue.Queue
	logger *zap.Logger
}

// NewNotifier creates a queue-backed notifier. queue may be nil, in which case
// logs are still written and delivery is skipped.
func NewNotifier(repo *Repository, q *queue.Queue, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{repo: repo, queue: q, logger: logger}
}

// Notify logs the notification and enqueues a delivery job.
func (n *Notifier) Notify(ctx context.Context, userID uuid.UUID, kind string, payload map[string]interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn("notification payload marshal failed", zap.Error(err), zap.String("kind", kind))
		return
	}

	log := &models.NotificationLog{
		UserID:  userID,
		Kind:    kind,
		Payload: body,
	}
	if err := n.repo.Create(ctx, log); err != nil {
		n.logger.Warn("notification log create failed", zap.Error(err),
			zap.String("user_id", userID.String()), zap.String("kind", kind))
		return
	}

	if n.queue == nil {
		return
	}
	err = n.queue.EnqueueNotification(ctx, queue.NotificationPayload{
		LogID:  log.ID,
		UserID: userID,
		Kind:   kind,
		Data:   body,
	})
	if err != nil {
		n.logger.Warn("notification enqueue failed", zap.Error(err), zap.String("log_id", log.ID.String()))
	}
}
