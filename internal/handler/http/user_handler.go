package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/estore/internal/user"
)

type SetAdminRequest struct {
	IsAdmin *bool `json:"is_admin" validate:"required"`
}

type UpdateProfileRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=100"`
	Phone       string `json:"phone" validate:"max=32"`
	Address     string `json:"address" validate:"max=500"`
}

type UserHandler struct {
	service  user.Service
	validate *validator.Validate
}

func NewUserHandler(service user.Service) *UserHandler {
	return &UserHandler{service: service, validate: newValidator()}
}

// RegisterRoutes expects router to be behind authentication.
func (h *UserHandler) RegisterRoutes(router chi.Router) {
	router.Get("/me", h.handleGetMe)
	router.Patch("/me", h.handleUpdateMe)
}

// RegisterAdminRoutes expects router to be behind admin authentication.
func (h *UserHandler) RegisterAdminRoutes(router chi.Router) {
	router.Get("/users", h.handleListUsers)
	router.Patch("/users/{id}/admin", h.handleSetAdmin)
}

func (h *UserHandler) handleGetMe(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	u, err := h.service.GetUser(r.Context(), session.UserID)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to load user")
		return
	}
	respondWithJSON(w, http.StatusOK, u)
}

func (h *UserHandler) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !validateRequest(w, h.validate, req) {
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), session.UserID, user.Profile{
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
		Address:     req.Address,
	})
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to update profile")
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

func (h *UserHandler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to load users")
		return
	}
	if users == nil {
		users = []user.User{}
	}
	respondWithJSON(w, http.StatusOK, users)
}

func (h *UserHandler) handleSetAdmin(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	targetID := chi.URLParam(r, "id")
	if targetID == "" {
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	var req SetAdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !validateRequest(w, h.validate, req) {
		return
	}

	updated, err := h.service.SetAdmin(r.Context(), session.UserID, targetID, *req.IsAdmin)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to update user")
		return
	}

	log.Info().Str("actor_id", session.UserID).Str("user_id", targetID).Bool("is_admin", updated.IsAdmin).Msg("Admin flag changed")
	respondWithJSON(w, http.StatusOK, updated)
}
