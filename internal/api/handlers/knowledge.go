package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nuance-hq/cortex/internal/api/middleware"
	"github.com/nuance-hq/cortex/internal/domain"
	"github.com/nuance-hq/cortex/internal/service"
)

type KnowledgeHandler struct {
	svc *service.KnowledgeService
}

func NewKnowledgeHandler(svc *service.KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{svc: svc}
}

func (h *KnowledgeHandler) Query(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	q := domain.KnowledgeQuery{
		SourceMessageID:      r.URL.Query().Get("source_message_id"),
		SourceConversationID: r.URL.Query().Get("source_conversation_id"),
		SourceActionID:       r.URL.Query().Get("source_action_id"),
	}

	if types := r.URL.Query().Get("types"); types != "" {
		for _, t := range strings.Split(types, ",") {
			q.Types = append(q.Types, domain.KnowledgeObjectType(strings.TrimSpace(t)))
		}
	}
	if from := r.URL.Query().Get("from"); from != "" {
		ts, err := time.Parse(time.RFC3339, from)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		q.From = &ts
	}
	if to := r.URL.Query().Get("to"); to != "" {
		ts, err := time.Parse(time.RFC3339, to)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		q.To = &ts
	}
	if v := r.URL.Query().Get("include_expired"); v != "" {
		q.IncludeExpired, _ = strconv.ParseBool(v)
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		q.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		q.Offset, _ = strconv.Atoi(v)
	}

	result, err := h.svc.Query(r.Context(), user.ID, q)
	if err != nil {
		if errors.Is(err, service.ErrInvalidKnowledgeType) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to query knowledge objects")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *KnowledgeHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid knowledge object id")
		return
	}

	obj, err := h.svc.Get(r.Context(), id, user.ID)
	if err != nil {
		if errors.Is(err, service.ErrKnowledgeNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get knowledge object")
		return
	}

	writeJSON(w, http.StatusOK, obj)
}

func (h *KnowledgeHandler) Expire(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid knowledge object id")
		return
	}

	if err := h.svc.Expire(r.Context(), id, user.ID); err != nil {
		if errors.Is(err, service.ErrKnowledgeNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to expire knowledge object")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "expired"})
}

func (h *KnowledgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid knowledge object id")
		return
	}

	if err := h.svc.Delete(r.Context(), id, user.ID); err != nil {
		if errors.Is(err, service.ErrKnowledgeNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete knowledge object")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
