package dto

import (
	"github.com/spec-kit/verification-bot/internal/domain"
)

// WebhookRequest is the delivery envelope posted by the Messaging API.
type WebhookRequest struct {
	Destination string         `json:"destination"`
	Events      []WebhookEvent `json:"events"`
}

// WebhookEvent is one event of a delivery. Fields the bot does not use are omitted.
type WebhookEvent struct {
	Type            string          `json:"type"`
	Mode            string          `json:"mode"`
	Timestamp       int64           `json:"timestamp"`
	ReplyToken      string          `json:"replyToken"`
	WebhookEventID  string          `json:"webhookEventId"`
	DeliveryContext DeliveryContext `json:"deliveryContext"`
	Source          EventSource     `json:"source"`
	Message         *EventMessage   `json:"message,omitempty"`
}

// DeliveryContext flags redelivered events.
type DeliveryContext struct {
	IsRedelivery bool `json:"isRedelivery"`
}

// EventSource identifies the sender.
type EventSource struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

// EventMessage is the message body of a message event.
type EventMessage struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ToInbound maps the event onto the engine's event type. Anything other than a text or
// image message becomes EventKindOther and is ignored downstream.
func (e WebhookEvent) ToInbound() domain.InboundEvent {
	ev := domain.InboundEvent{
		Kind:           domain.EventKindOther,
		UserID:         e.Source.UserID,
		ReplyToken:     e.ReplyToken,
		WebhookEventID: e.WebhookEventID,
		Redelivery:     e.DeliveryContext.IsRedelivery,
	}
	if e.Type != "message" || e.Message == nil {
		return ev
	}
	switch e.Message.Type {
	case "text":
		ev.Kind = domain.EventKindText
		ev.Text = e.Message.Text
	case "image":
		ev.Kind = domain.EventKindImage
		ev.ContentID = e.Message.ID
	}
	return ev
}

// InboundEvents converts every event of the envelope, preserving order.
func (r WebhookRequest) InboundEvents() []domain.InboundEvent {
	out := make([]domain.InboundEvent, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.ToInbound())
	}
	return out
}
