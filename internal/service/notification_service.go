package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/verification-bot/internal/config"
	"github.com/spec-kit/verification-bot/internal/events"
)

// NotificationService forwards verification lifecycle events to operators.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	http       *resty.Client
	inflight   sync.WaitGroup
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		http: resty.New().
			SetTimeout(cfg.Timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventVerificationStarted, n.handleStarted)
	n.dispatcher.Subscribe(events.EventVerificationCompleted, n.handleCompleted)
	n.dispatcher.Subscribe(events.EventVerificationFailed, n.handleFailed)
	n.dispatcher.Subscribe(events.EventVerificationEvicted, n.handleEvicted)
}

func (n *NotificationService) handleStarted(_ context.Context, event events.Event) error {
	n.logger.Debug("VerificationStarted", zap.String("user_id", event.UserID))
	return nil
}

func (n *NotificationService) handleCompleted(ctx context.Context, event events.Event) error {
	n.logger.Info("VerificationCompleted", zap.String("user_id", event.UserID))
	n.notifyAsync(ctx, event)
	return nil
}

func (n *NotificationService) handleFailed(ctx context.Context, event events.Event) error {
	n.logger.Info("VerificationFailed", zap.String("user_id", event.UserID), zap.Any("payload", event.Payload))
	n.notifyAsync(ctx, event)
	return nil
}

func (n *NotificationService) handleEvicted(_ context.Context, event events.Event) error {
	n.logger.Info("VerificationEvicted", zap.String("user_id", event.UserID), zap.Any("payload", event.Payload))
	return nil
}

// notifyAsync posts the event in the background. Events are published while the user's
// session lock is held, so the webhook call must not run on the caller's goroutine. The
// request context is detached so the post outlives the webhook response.
func (n *NotificationService) notifyAsync(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout())
		defer cancel()
		if err := n.sendWebhookNotification(sendCtx, event); err != nil {
			n.logger.Warn("notification not delivered",
				zap.String("event_type", string(event.Type)),
				zap.String("user_id", event.UserID),
				zap.Error(err))
		}
	}()
}

// Wait blocks until background notifications have finished.
func (n *NotificationService) Wait() {
	n.inflight.Wait()
}

func (n *NotificationService) timeout() time.Duration {
	if n.cfg.Timeout > 0 {
		return n.cfg.Timeout
	}
	return 5 * time.Second
}

// sendWebhookNotification posts the event as JSON. Completed events carry the image
// reference, which can be a full data URL, so only its length is forwarded.
func (n *NotificationService) sendWebhookNotification(ctx context.Context, event events.Event) error {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return nil
	}
	if payload, ok := event.Payload.(events.CompletedPayload); ok {
		event.Payload = completedNotice{
			Phone:           payload.Phone,
			Handle:          payload.Handle,
			ReferenceLength: len(payload.Reference),
		}
	}

	resp, err := n.http.R().
		SetContext(ctx).
		SetBody(event).
		Post(n.cfg.WebhookURL)
	if err != nil {
		return fmt.Errorf("notify %s: %w", event.Type, err)
	}
	if resp.IsError() {
		return fmt.Errorf("notify %s: status %d", event.Type, resp.StatusCode())
	}
	n.logger.Debug("notification delivered",
		zap.String("event_type", string(event.Type)),
		zap.String("event_id", event.ID))
	return nil
}

type completedNotice struct {
	Phone           string `json:"phone"`
	Handle          string `json:"handle"`
	ReferenceLength int    `json:"reference_length"`
}
