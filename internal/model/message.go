package model

import (
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Action describes what a booking list is offered for.
type Action string

const (
	ActionNone                Action = "none"
	ActionListForCancellation Action = "list_for_cancellation"
	ActionListForModification Action = "list_for_modification"
)

// Selectable reports whether a list tagged with this action accepts ordinal selection.
func (a Action) Selectable() bool {
	return a == ActionListForCancellation || a == ActionListForModification
}

// BookingDetails summarises a single proposed or confirmed booking.
type BookingDetails struct {
	Room             string `json:"room,omitempty"`
	Date             string `json:"date,omitempty"`
	StartTime        string `json:"start_time,omitempty"`
	EndTime          string `json:"end_time,omitempty"`
	Purpose          string `json:"purpose,omitempty"`
	ParticipantCount int    `json:"participant_count,omitempty"`
}

// BookingCandidate is one option in a disambiguation list.
type BookingCandidate struct {
	ID               string `json:"id"`
	RoomName         string `json:"room_name"`
	Date             string `json:"date"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	Purpose          string `json:"purpose"`
	ParticipantCount int    `json:"participant_count"`
}

// Message is one conversational turn.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`

	IsError              bool `json:"is_error,omitempty"`
	RequiresConfirmation bool `json:"requires_confirmation,omitempty"`

	// Booking payloads (assistant messages only)
	BookingDetails    *BookingDetails    `json:"booking_details,omitempty"`
	BookingList       []BookingCandidate `json:"booking_list,omitempty"`
	Action            Action             `json:"action,omitempty"`
	MissingParameters []string           `json:"missing_parameters,omitempty"`
}

// OffersSelection reports whether the message carries a list the user can pick from.
func (m *Message) OffersSelection() bool {
	return m.Sender == SenderAssistant && len(m.BookingList) > 0 && m.Action.Selectable()
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	if m.BookingDetails != nil {
		d := *m.BookingDetails
		m.BookingDetails = &d
	}
	if m.BookingList != nil {
		m.BookingList = append([]BookingCandidate(nil), m.BookingList...)
	}
	if m.MissingParameters != nil {
		m.MissingParameters = append([]string(nil), m.MissingParameters...)
	}
	return m
}
