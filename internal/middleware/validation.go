package middleware

import (
	"errors"
	"unicode/utf8"
)

// MaxMessageLength bounds a single chat input in bytes.
const MaxMessageLength = 4000

// ValidateMessageText validates chat input. Blank text is allowed; the
// controller treats it as a no-op.
func ValidateMessageText(text string) error {
	if len(text) > MaxMessageLength {
		return errors.New("text exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return errors.New("text must be valid UTF-8")
	}
	return nil
}

// ValidateMessageID validates a message ID.
func ValidateMessageID(id string) error {
	if len(id) == 0 {
		return errors.New("message ID cannot be empty")
	}
	if len(id) > 128 {
		return errors.New("message ID exceeds maximum length")
	}
	return nil
}

// ValidateSelectionIndex validates a 0-based candidate ordinal.
func ValidateSelectionIndex(index int) error {
	if index < 0 {
		return errors.New("index cannot be negative")
	}
	return nil
}
