package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"emotive.arpa/agent/conversation"
	"emotive.arpa/agent/inference"
	"emotive.arpa/agent/parse"
	"emotive.arpa/agent/topics"
)

const maxRequestBody = 64 << 10

// TurnService runs conversation turns for API requests.
type TurnService interface {
	Turn(ctx context.Context, input string) (*conversation.Result, error)
	Table() *topics.Table
}

type turnRequest struct {
	Prompt string `json:"prompt"`
}

type errorResponse struct {
	Error  string               `json:"error"`
	Code   inference.ErrorCode  `json:"code,omitempty"`
	Stage  conversation.Stage   `json:"stage,omitempty"`
	Result *conversation.Result `json:"result,omitempty"`
}

func (h *Server) turn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	res, err := h.turns.Turn(r.Context(), req.Prompt)
	if err != nil {
		status := statusFor(err)
		h.log.Debug("Turn failed.", zap.Int("status", status), zap.Error(err))

		resp := errorResponse{Error: err.Error(), Code: inference.Code(err), Result: res}
		var te *conversation.TurnError
		if errors.As(err, &te) {
			resp.Stage = te.Stage
		}
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Server) topics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"emotions": h.turns.Table().Entries(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, conversation.ErrEmptyInput):
		return http.StatusBadRequest
	case inference.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, parse.ErrMalformedReply):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
