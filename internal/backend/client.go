// Package backend is the request/response contract with the booking NLU service.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/capitalize-ai/booking-assistant/internal/model"
)

// Request is the outbound payload. Confirm is set only for confirmation replies.
type Request struct {
	Confirm *bool  `json:"confirm,omitempty"`
	Message string `json:"message"`
}

// IsConfirmation reports whether the request answers a pending confirmation.
func (r Request) IsConfirmation() bool {
	return r.Confirm != nil
}

// Response is a decoded backend reply.
type Response struct {
	Message              string
	RequiresConfirmation bool
	BookingDetails       *model.BookingDetails
	MissingParameters    []string
	BookingList          []model.BookingCandidate
	Action               model.Action
}

// Client is the interface for the booking backend.
type Client interface {
	// Send delivers one turn and returns the backend's reply.
	Send(ctx context.Context, req Request) (*Response, error)
}

// ErrMalformedResponse is returned when a reply is not valid JSON or lacks a message.
var ErrMalformedResponse = errors.New("malformed backend response")

// TransportError covers an unreachable backend and non-2xx replies.
type TransportError struct {
	StatusCode int    // zero when no response was received
	Detail     string // server supplied detail, if any
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Detail != "":
		return fmt.Sprintf("booking backend returned status %d: %s", e.StatusCode, e.Detail)
	case e.StatusCode != 0:
		return fmt.Sprintf("booking backend returned status %d", e.StatusCode)
	default:
		return fmt.Sprintf("booking backend unreachable: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type wireResponse struct {
	Message              *string                  `json:"message"`
	RequiresConfirmation bool                     `json:"requires_confirmation"`
	BookingDetails       *model.BookingDetails    `json:"booking_details"`
	MissingParameters    []string                 `json:"missing_parameters"`
	BookingList          []model.BookingCandidate `json:"booking_list"`
	Action               model.Action             `json:"action"`
}

// DecodeResponse parses a 2xx reply body.
func DecodeResponse(data []byte) (*Response, error) {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if w.Message == nil {
		return nil, fmt.Errorf("%w: missing message field", ErrMalformedResponse)
	}
	// empty and absent lists are the same thing
	if len(w.MissingParameters) == 0 {
		w.MissingParameters = nil
	}
	if len(w.BookingList) == 0 {
		w.BookingList = nil
	}
	return &Response{
		Message:              *w.Message,
		RequiresConfirmation: w.RequiresConfirmation,
		BookingDetails:       w.BookingDetails,
		MissingParameters:    w.MissingParameters,
		BookingList:          w.BookingList,
		Action:               w.Action,
	}, nil
}

// errorDetail extracts a human readable string from a non-2xx body.
func errorDetail(data []byte) string {
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	for _, key := range []string{"detail", "error", "message"} {
		if s, ok := body[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
