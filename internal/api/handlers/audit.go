package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nuance-hq/cortex/internal/api/middleware"
	"github.com/nuance-hq/cortex/internal/service"
)

type AuditHandler struct {
	svc *service.ProvenanceService
}

func NewAuditHandler(svc *service.ProvenanceService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

func parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			return from, to, err
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			return from, to, err
		}
	}
	return from, to, nil
}

func (h *AuditHandler) Query(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	from, to, err := parseTimeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid timestamp")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records, err := h.svc.Query(r.Context(), user.ID, from, to, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query turn log")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

func (h *AuditHandler) Stats(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	from, to, err := parseTimeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid timestamp")
		return
	}

	stats, err := h.svc.Stats(r.Context(), user.ID, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to aggregate turn log")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
