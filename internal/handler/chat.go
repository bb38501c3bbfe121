// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/booking-assistant/internal/dialogue"
	"github.com/capitalize-ai/booking-assistant/internal/middleware"
	"github.com/capitalize-ai/booking-assistant/internal/model"
	"github.com/capitalize-ai/booking-assistant/pkg/logger"
)

// Sessions resolves the conversation controller for a user.
type Sessions interface {
	Get(ctx context.Context, userID string) (*dialogue.Controller, error)
	Purge(ctx context.Context, userID string) error
}

// ChatHandler handles the conversation endpoints.
type ChatHandler struct {
	sessions Sessions
	logger   *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(sessions Sessions, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		sessions: sessions,
		logger:   log,
	}
}

// SendMessageRequest is the body of POST /api/v1/chat/messages.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// SelectCandidateRequest is the body of POST /api/v1/chat/selections.
type SelectCandidateRequest struct {
	MessageID string `json:"message_id"`
	Index     *int   `json:"index"`
}

// StateResponse is the conversation as the client renders it.
type StateResponse struct {
	Messages            []model.Message            `json:"messages"`
	PendingConfirmation *model.PendingConfirmation `json:"pending_confirmation,omitempty"`
	Busy                bool                       `json:"busy"`
	Mode                string                     `json:"mode"`
}

// TurnResponse carries the reply of one turn and the state after it. Reply is
// null when the input was blank or the turn was superseded by a reset.
type TurnResponse struct {
	Reply *model.Message `json:"reply"`
	State StateResponse  `json:"state"`
}

// State handles GET /api/v1/chat
func (h *ChatHandler) State(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, stateOf(c))
}

// Send handles POST /api/v1/chat/messages
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, ok := h.controller(w, r)
	if !ok {
		return
	}

	reply, err := c.Submit(turnContext(r), req.Text)
	h.respondTurn(w, r, c, reply, err)
}

// Select handles POST /api/v1/chat/selections
func (h *ChatHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req SelectCandidateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageID(req.MessageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Index == nil {
		writeError(w, http.StatusBadRequest, "index is required")
		return
	}
	if err := middleware.ValidateSelectionIndex(*req.Index); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, ok := h.controller(w, r)
	if !ok {
		return
	}

	reply, err := c.SelectCandidate(turnContext(r), req.MessageID, *req.Index)
	h.respondTurn(w, r, c, reply, err)
}

// Reset handles POST /api/v1/chat/reset
func (h *ChatHandler) Reset(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	c.Reset(turnContext(r))
	writeJSON(w, http.StatusOK, stateOf(c))
}

// Forget handles DELETE /api/v1/chat
func (h *ChatHandler) Forget(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	if err := h.sessions.Purge(turnContext(r), userID); err != nil {
		h.logger.WithRequest(middleware.GetCorrelationID(ctx), userID).Error("failed to purge conversation", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) controller(w http.ResponseWriter, r *http.Request) (*dialogue.Controller, bool) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return nil, false
	}

	c, err := h.sessions.Get(ctx, userID)
	if err != nil {
		h.logger.WithRequest(middleware.GetCorrelationID(ctx), userID).Error("failed to open conversation", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to open conversation")
		return nil, false
	}
	return c, true
}

func (h *ChatHandler) respondTurn(w http.ResponseWriter, r *http.Request, c *dialogue.Controller, reply *model.Message, err error) {
	switch {
	case errors.Is(err, dialogue.ErrBusy):
		writeError(w, http.StatusConflict, "a request is already in progress")
	case errors.Is(err, dialogue.ErrInvalidSelection):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		ctx := r.Context()
		h.logger.WithRequest(middleware.GetCorrelationID(ctx), middleware.GetUserID(ctx)).Error("turn failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to process message")
	default:
		writeJSON(w, http.StatusOK, TurnResponse{Reply: reply, State: stateOf(c)})
	}
}

// turnContext outlives the client connection. Credentials ride along.
func turnContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func stateOf(c *dialogue.Controller) StateResponse {
	s := c.State()
	return StateResponse{
		Messages:            s.Messages,
		PendingConfirmation: s.PendingConfirmation,
		Busy:                s.Busy,
		Mode:                c.Mode().String(),
	}
}
