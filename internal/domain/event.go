package domain

// EventKind differentiates inbound chat events the engine reacts to.
type EventKind string

const (
	EventKindText  EventKind = "text"
	EventKindImage EventKind = "image"
	EventKindOther EventKind = "other"
)

// InboundEvent is a single chat-platform event, already decoded from the webhook envelope.
type InboundEvent struct {
	Kind           EventKind
	UserID         string
	ReplyToken     string
	Text           string
	ContentID      string
	WebhookEventID string
	Redelivery     bool
}

// Actionable reports whether the event carries enough data to drive a transition.
func (e InboundEvent) Actionable() bool {
	if e.UserID == "" {
		return false
	}
	switch e.Kind {
	case EventKindText:
		return true
	case EventKindImage:
		return e.ContentID != ""
	default:
		return false
	}
}
