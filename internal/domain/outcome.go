package domain

// OutcomeAction enumerates what the engine did for an event.
type OutcomeAction string

const (
	ActionAlreadyMember OutcomeAction = "already_member"
	ActionPromptPhone   OutcomeAction = "prompt_phone"
	ActionPromptHandle  OutcomeAction = "prompt_handle"
	ActionPromptImage   OutcomeAction = "prompt_image"
	ActionCompleted     OutcomeAction = "completed"
	ActionFailed        OutcomeAction = "failed"
)

// Outcome is the per-event result reported back in the webhook response.
type Outcome struct {
	UserID    string        `json:"user_id"`
	Action    OutcomeAction `json:"action"`
	State     SessionState  `json:"state,omitempty"`
	Reference string        `json:"reference,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}
