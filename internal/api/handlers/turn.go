package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nuance-hq/cortex/internal/api/middleware"
	"github.com/nuance-hq/cortex/internal/domain"
	"github.com/nuance-hq/cortex/internal/service"
)

type TurnHandler struct {
	svc *service.TurnService
}

func NewTurnHandler(svc *service.TurnService) *TurnHandler {
	return &TurnHandler{svc: svc}
}

type ingestTurnRequest struct {
	SourceMessageID      string          `json:"source_message_id,omitempty"`
	SourceConversationID string          `json:"source_conversation_id,omitempty"`
	SourceActionID       string          `json:"source_action_id,omitempty"`
	Refresh              bool            `json:"refresh,omitempty"`
	Contract             json.RawMessage `json:"contract"`
}

func (h *TurnHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ingestTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Contract) == 0 {
		writeError(w, http.StatusBadRequest, "contract is required")
		return
	}

	src := domain.SourceRef{
		MessageID:      req.SourceMessageID,
		ConversationID: req.SourceConversationID,
		ActionID:       req.SourceActionID,
	}

	result, err := h.svc.Process(r.Context(), user.ID, req.Contract, src, req.Refresh)
	if err != nil {
		var violation *domain.ContractViolation
		if errors.As(err, &violation) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error":  "contract violation",
				"path":   violation.Path,
				"reason": violation.Reason,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to process turn")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type abortedTurnRequest struct {
	RequestID string `json:"request_id,omitempty"`
	RawInput  string `json:"raw_input"`
	Reason    string `json:"reason"`
}

// Aborted records a turn whose inference call never produced output, so the
// attempt stays auditable.
func (h *TurnHandler) Aborted(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req abortedTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required")
		return
	}

	rec := h.svc.RecordAborted(r.Context(), user.ID, req.RequestID, req.RawInput, req.Reason)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"request_id": rec.RequestID,
		"status":     string(rec.Status),
	})
}
