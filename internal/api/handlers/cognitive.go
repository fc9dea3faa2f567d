package handlers

import (
	"net/http"

	"github.com/nuance-hq/cortex/internal/api/middleware"
	"github.com/nuance-hq/cortex/internal/service"
)

type CognitiveHandler struct {
	decayService *service.DecayService
}

func NewCognitiveHandler(ds *service.DecayService) *CognitiveHandler {
	return &CognitiveHandler{decayService: ds}
}

// TriggerDecay runs one ledger decay sweep outside the periodic schedule.
func (h *CognitiveHandler) TriggerDecay(w http.ResponseWriter, r *http.Request) {
	if user := middleware.UserFromContext(r.Context()); user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	result := h.decayService.RunSweep(r.Context())
	writeJSON(w, http.StatusOK, result)
}
