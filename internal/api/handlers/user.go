package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/nuance-hq/cortex/internal/api/middleware"
	"github.com/nuance-hq/cortex/internal/domain"
)

type UserHandler struct {
	store domain.UserStore
}

func NewUserHandler(store domain.UserStore) *UserHandler {
	return &UserHandler{store: store}
}

type createUserRequest struct {
	Name string `json:"name"`
}

type createUserResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	APIKey string `json:"api_key"`
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	apiKey, err := generateAPIKey()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate API key")
		return
	}

	user := &domain.User{Name: req.Name}
	if err := h.store.Create(r.Context(), user, middleware.HashAPIKey(apiKey)); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, createUserResponse{
		ID:     user.ID.String(),
		Name:   user.Name,
		APIKey: apiKey,
	})
}

func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "ck_" + hex.EncodeToString(b), nil
}
