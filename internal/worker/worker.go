package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/NgouanKoffi/fullmargin-sub007/internal/models"
	"github.com/NgouanKoffi/fullmargin-sub007/internal/notify"
	"github.com/NgouanKoffi/fullmargin-sub007/pkg/queue"
)

// NotificationProcessor delivers queued notification jobs to the configured
// webhook and records the outcome on the notification log.
type NotificationProcessor struct {
	repo       *notify.Repository
	queue      *queue.Queue
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
}

// NewNotificationProcessor creates a notification delivery processor. An empty
// webhookURL means log-only delivery: jobs are marked sent without an outbound
// call.
func NewNotificationProcessor(repo *notify.Repository, q *queue.Queue, webhookURL string, logger *zap.Logger) *NotificationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationProcessor{
		repo:       repo,
		queue:      q,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Process executes one notification delivery job.
func (p *NotificationProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeNotification {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.NotificationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	log, err := p.repo.GetByID(ctx, payload.LogID)
	if err != nil {
		return fmt.Errorf("load log: %w", err)
	}
	if log == nil {
		p.logger.Warn("notification log missing, dropping job", zap.String("log_id", payload.LogID.String()))
		return nil
	}
	if log.Status == models.NotificationStatusSent {
		return nil
	}

	if p.webhookURL == "" {
		p.logger.Info("notification delivered (log only)",
			zap.String("log_id", payload.LogID.String()),
			zap.String("user_id", payload.UserID.String()),
			zap.String("kind", payload.Kind))
		return p.repo.MarkSent(ctx, payload.LogID)
	}

	if err := p.deliver(ctx, payload); err != nil {
		return err
	}
	if err := p.repo.MarkSent(ctx, payload.LogID); err != nil {
		p.logger.Error("mark sent failed", zap.Error(err), zap.String("log_id", payload.LogID.String()))
		return fmt.Errorf("mark sent: %w", err)
	}
	p.logger.Info("notification delivered", zap.String("log_id", payload.LogID.String()), zap.String("kind", payload.Kind))
	return nil
}

func (p *NotificationProcessor) deliver(ctx context.Context, payload queue.NotificationPayload) error {
	body, err := json.Marshal(map[string]interface{}{
		"log_id":  payload.LogID,
		"user_id": payload.UserID,
		"kind":    payload.Kind,
		"data":    json.RawMessage(payload.Data),
	})
	if err != nil {
		return fmt.Errorf("marshal delivery body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delivery status: %d", resp.StatusCode)
	}
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *NotificationProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("notification worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("notification worker stopping")
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			p.failJob(ctx, job, err)
			time.Sleep(queue.RetryBackoff)
		}
	}
}

// failJob retries the job or, when retries are exhausted, marks the log failed.
func (p *NotificationProcessor) failJob(ctx context.Context, job *queue.Job, cause error) {
	if job.Attempt+1 >= queue.MaxRetries {
		var payload queue.NotificationPayload
		if err := json.Unmarshal(job.Payload, &payload); err == nil {
			if err := p.repo.MarkFailed(ctx, payload.LogID, cause.Error()); err != nil {
				p.logger.Error("mark failed failed", zap.Error(err), zap.String("log_id", payload.LogID.String()))
			}
		}
	}
	if err := p.queue.Retry(ctx, job); err != nil {
		p.logger.Error("retry enqueue failed", zap.Error(err), zap.String("job_id", job.ID))
	}
}
