// Package model defines data structures for the booking assistant.
package model

// PendingConfirmation records a yes/no question the assistant is still waiting on.
type PendingConfirmation struct {
	PromptText string          `json:"prompt_text"`
	Details    *BookingDetails `json:"details,omitempty"`
}

// ConversationState is the controller's working set.
type ConversationState struct {
	Messages            []Message            `json:"messages"`
	PendingConfirmation *PendingConfirmation `json:"pending_confirmation,omitempty"`
	Busy                bool                 `json:"busy"`
}

// LastAssistant returns the most recent assistant message, or nil.
func (s *ConversationState) LastAssistant() *Message {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Sender == SenderAssistant {
			return &s.Messages[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the state.
func (s ConversationState) Clone() ConversationState {
	out := ConversationState{Busy: s.Busy}
	out.Messages = CloneMessages(s.Messages)
	if s.PendingConfirmation != nil {
		p := *s.PendingConfirmation
		if p.Details != nil {
			d := *p.Details
			p.Details = &d
		}
		out.PendingConfirmation = &p
	}
	return out
}

// CloneMessages deep copies a message sequence.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
