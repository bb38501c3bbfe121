package dialogue

import (
	"strings"

	"github.com/capitalize-ai/booking-assistant/internal/backend"
	"github.com/capitalize-ai/booking-assistant/internal/model"
)

// Mode selects the outbound request shape for a turn.
type Mode int

const (
	// ModeQuery is a fresh free-form request.
	ModeQuery Mode = iota
	// ModeConfirmation answers the pending yes/no question.
	ModeConfirmation
)

func (m Mode) String() string {
	if m == ModeConfirmation {
		return "confirmation"
	}
	return "query"
}

// ModeFor derives the mode from the confirmation slot.
func ModeFor(pending *model.PendingConfirmation) Mode {
	if pending != nil {
		return ModeConfirmation
	}
	return ModeQuery
}

// BuildRequest produces the outbound payload for rawText in mode.
func BuildRequest(mode Mode, rawText string) backend.Request {
	if mode == ModeConfirmation {
		confirm := ParseConfirm(rawText)
		return backend.Request{Confirm: &confirm, Message: rawText}
	}
	return backend.Request{Message: rawText}
}

// ParseConfirm treats a reply as affirmative iff it contains "yes" in any
// case, anywhere. "yesterday" therefore confirms.
func ParseConfirm(rawText string) bool {
	return strings.Contains(strings.ToLower(rawText), "yes")
}
