package events

import (
	"time"

	"github.com/spec-kit/verification-bot/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventVerificationStarted      EventType = "verification_started"
	EventVerificationDuplicate    EventType = "verification_duplicate"
	EventVerificationStepAdvanced EventType = "verification_step_advanced"
	EventVerificationCompleted    EventType = "verification_completed"
	EventVerificationFailed       EventType = "verification_failed"
	EventVerificationEvicted      EventType = "verification_evicted"
	EventWebhookRedelivered       EventType = "webhook_redelivered"
)

// Event represents a lifecycle event emitted by the conversation engine.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// StepAdvancedPayload payload.
type StepAdvancedPayload struct {
	From domain.SessionState `json:"from"`
	To   domain.SessionState `json:"to"`
}

// CompletedPayload payload.
type CompletedPayload struct {
	Phone     string `json:"phone"`
	Handle    string `json:"handle"`
	Reference string `json:"reference"`
}

// FailedPayload payload.
type FailedPayload struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// EvictedPayload payload.
type EvictedPayload struct {
	State     domain.SessionState `json:"state"`
	IdleSince time.Time           `json:"idle_since"`
}
