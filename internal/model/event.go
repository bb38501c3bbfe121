package model

import (
	"time"
)

// TurnOutcome is how a turn ended.
type TurnOutcome string

const (
	TurnOutcomeReply     TurnOutcome = "reply"
	TurnOutcomeError     TurnOutcome = "error"
	TurnOutcomeDiscarded TurnOutcome = "discarded"
	TurnOutcomeReset     TurnOutcome = "reset"
)

// TurnEvent is published after every controller-driven transition.
type TurnEvent struct {
	ID         string      `json:"id"`
	SessionKey string      `json:"session_key"`
	Mode       string      `json:"mode,omitempty"`
	Outcome    TurnOutcome `json:"outcome"`
	UserText   string      `json:"user_text,omitempty"`
	Reply      *Message    `json:"reply,omitempty"`
	Pending    bool        `json:"pending_confirmation"`
	CreatedAt  time.Time   `json:"created_at"`
}
