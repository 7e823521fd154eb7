// users.go — обработчики /api/admin/users: обёртки над Admin API Keycloak.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/dhsimulator/internal/domain/model"
)

const msgUserNotFound = "Usuario no encontrado"

type userJSON struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName"`
	Role       string    `json:"role"`
	Enabled    bool      `json:"enabled"`
	HasProfile bool      `json:"hasProfile"`
	CreatedAt  time.Time `json:"createdAt"`
}

func mapUser(u *model.AppUser) userJSON {
	return userJSON{
		ID:         u.ID,
		Email:      u.Email,
		FullName:   u.FullName,
		Role:       u.Role,
		Enabled:    u.Enabled,
		HasProfile: u.HasProfile,
		CreatedAt:  u.CreatedAt,
	}
}

// ListUsers — GET /api/admin/users[?search=].
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.writeServiceError(w, r, err, msgUserNotFound)
		return
	}

	items := make([]userJSON, len(users))
	for i, u := range users {
		items[i] = mapUser(u)
	}
	writeJSON(w, http.StatusOK, items)
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	FullName string `json:"fullName"`
}

// CreateUser — POST /api/admin/users.
func (h *APIHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.users.Create(r.Context(), model.NewUser{
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		FullName: req.FullName,
	})
	if err != nil {
		h.writeServiceError(w, r, err, msgUserNotFound)
		return
	}

	h.logger.Info("Пользователь создан через API",
		"user_id", u.ID,
		"role", u.Role,
		"created_by", actor(r),
	)
	writeJSON(w, http.StatusCreated, mapUser(u))
}

// DeleteUser — DELETE /api/admin/users/{id}.
func (h *APIHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.users.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err, msgUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

type changePasswordRequest struct {
	Password string `json:"password"`
}

// ChangePassword — POST /api/admin/users/{id}/password.
func (h *APIHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.users.ChangePassword(r.Context(), chi.URLParam(r, "id"), req.Password); err != nil {
		h.writeServiceError(w, r, err, msgUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
