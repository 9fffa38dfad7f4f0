package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/verification-bot/internal/api/dto"
	"github.com/spec-kit/verification-bot/internal/domain"
	"github.com/spec-kit/verification-bot/internal/observability"
	apperrors "github.com/spec-kit/verification-bot/pkg/util/errorutil"
)

// BatchProcessor runs the conversation engine over one delivery.
type BatchProcessor interface {
	HandleBatch(ctx context.Context, events []domain.InboundEvent) ([]*domain.Outcome, error)
}

// WebhookHandler receives Messaging API deliveries.
type WebhookHandler struct {
	processor BatchProcessor
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewWebhookHandler constructs handler.
func NewWebhookHandler(processor BatchProcessor, metrics *observability.Metrics, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{processor: processor, metrics: metrics, logger: logger}
}

// Receive handles POST /webhook. The response is aligned with the delivery's events, with
// null for events that caused no transition.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	var req dto.WebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewBadRequest("invalid webhook payload", nil)
	}

	outcomes, err := h.processor.HandleBatch(c.UserContext(), req.InboundEvents())
	for _, outcome := range outcomes {
		if outcome == nil {
			h.metrics.RecordOutcome("")
			continue
		}
		h.metrics.RecordOutcome(string(outcome.Action))
	}
	if err != nil {
		return apperrors.NewProcessingError(err)
	}

	h.logger.Debug("webhook processed", zap.Int("events", len(req.Events)))

	return c.JSON(outcomes)
}
