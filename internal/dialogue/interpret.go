package dialogue

import (
	"errors"
	"time"

	"github.com/capitalize-ai/booking-assistant/internal/backend"
	"github.com/capitalize-ai/booking-assistant/internal/model"
)

// GenericErrorText is shown when a failure carries no server detail.
const GenericErrorText = "Sorry, I couldn't reach the booking service. Please try again."

// Turn is the interpreter's output: the reply to append and the next
// confirmation slot.
type Turn struct {
	Reply   model.Message
	Pending *model.PendingConfirmation
}

// Interpret converts a backend response into the assistant reply and the
// confirmation slot that follows it. A confirmation-mode turn always clears
// the prior slot before a new one may be armed.
func Interpret(mode Mode, prior *model.PendingConfirmation, resp *backend.Response, id string, now time.Time) Turn {
	next := prior
	if mode == ModeConfirmation {
		next = nil
	}
	if resp.RequiresConfirmation {
		next = &model.PendingConfirmation{
			PromptText: resp.Message,
			Details:    resp.BookingDetails,
		}
	}

	return Turn{
		Reply: model.Message{
			ID:                   id,
			Text:                 resp.Message,
			Sender:               model.SenderAssistant,
			Timestamp:            now,
			RequiresConfirmation: resp.RequiresConfirmation,
			BookingDetails:       resp.BookingDetails,
			BookingList:          resp.BookingList,
			Action:               resp.Action,
			MissingParameters:    resp.MissingParameters,
		},
		Pending: next,
	}
}

// ErrorReply turns a failed round trip into an error message, preferring the
// server supplied detail.
func ErrorReply(err error, id string, now time.Time) model.Message {
	text := GenericErrorText
	var te *backend.TransportError
	if errors.As(err, &te) && te.Detail != "" {
		text = te.Detail
	}
	return model.Message{
		ID:        id,
		Text:      text,
		Sender:    model.SenderAssistant,
		Timestamp: now,
		IsError:   true,
	}
}

// RestorePending re-arms the confirmation slot from a loaded history: the
// most recent non-error assistant message decides.
func RestorePending(msgs []model.Message) *model.PendingConfirmation {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Sender != model.SenderAssistant || m.IsError {
			continue
		}
		if !m.RequiresConfirmation {
			return nil
		}
		return &model.PendingConfirmation{PromptText: m.Text, Details: m.BookingDetails}
	}
	return nil
}
