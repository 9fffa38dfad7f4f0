package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/verification-bot/internal/domain"
	"github.com/spec-kit/verification-bot/internal/events"
)

// HandleBatch processes every event of one webhook delivery. Events of the same user run
// in delivery order; different users run concurrently. The returned slice is aligned with
// events and holds nil for events that were ignored or already seen. Per-event errors do
// not stop the rest of the batch and are joined into the returned error.
func (s *VerificationService) HandleBatch(ctx context.Context, batch []domain.InboundEvent) ([]*domain.Outcome, error) {
	outcomes := make([]*domain.Outcome, len(batch))
	if len(batch) == 0 {
		return outcomes, nil
	}

	order := make([]string, 0, len(batch))
	byUser := make(map[string][]int, len(batch))
	for i, ev := range batch {
		if !ev.Actionable() {
			continue
		}
		if !s.firstSighting(ctx, ev) {
			continue
		}
		if _, ok := byUser[ev.UserID]; !ok {
			order = append(order, ev.UserID)
		}
		byUser[ev.UserID] = append(byUser[ev.UserID], i)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, userID := range order {
		indexes := byUser[userID]
		g.Go(func() error {
			for _, i := range indexes {
				outcome, err := s.Handle(gctx, batch[i])
				outcomes[i] = outcome
				if err != nil {
					s.logger.Error("event processing failed",
						zap.String("user_id", userID),
						zap.String("webhook_event_id", batch[i].WebhookEventID),
						zap.Error(err))
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, errors.Join(errs...)
}

// firstSighting fails open: without a repository, an id, or a working backend the event
// is processed.
func (s *VerificationService) firstSighting(ctx context.Context, ev domain.InboundEvent) bool {
	if s.deliveries == nil || ev.WebhookEventID == "" {
		return true
	}
	first, err := s.deliveries.MarkProcessed(ctx, ev.WebhookEventID)
	if err != nil {
		s.logger.Warn("delivery dedup unavailable; processing event",
			zap.String("webhook_event_id", ev.WebhookEventID), zap.Error(err))
		return true
	}
	if !first {
		s.logger.Info("skipping redelivered event",
			zap.String("user_id", ev.UserID),
			zap.String("webhook_event_id", ev.WebhookEventID),
			zap.Bool("redelivery", ev.Redelivery))
		s.publishEvent(ctx, events.Event{Type: events.EventWebhookRedelivered, UserID: ev.UserID})
	}
	return first
}
