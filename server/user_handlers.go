package server

import (
	"encoding/json"
	"net/http"

	autherrors "github.com/roadlog/fleet-auth/internal/errors"
	"github.com/roadlog/fleet-auth/users"
)

type createUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type updateUserRequest struct {
	Name     *string `json:"name,omitempty"`
	Password *string `json:"password,omitempty"`
	Role     *string `json:"role,omitempty"`
}

// MeHandler returns the identity resolved by the authentication guard.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := IdentityFromContext(r.Context())
		respondSuccess(w, http.StatusOK, "Current user retrieved successfully", identity)
	}
}

func (s *Server) ListUsersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userList, err := s.users.List(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to retrieve users", "Failed to retrieve users")
			return
		}
		sanitized := make([]*users.User, 0, len(userList))
		for _, u := range userList {
			sanitized = append(sanitized, u.Sanitized())
		}
		respondSuccess(w, http.StatusOK, "Users retrieved successfully", sanitized)
	}
}

func (s *Server) GetUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.users.GetByID(r.Context(), r.PathValue("id"))
		if err != nil {
			respondError(w, http.StatusNotFound, "User not found", "User not found")
			return
		}
		respondSuccess(w, http.StatusOK, "User retrieved successfully", user.Sanitized())
	}
}

func (s *Server) CreateUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
			respondError(w, http.StatusBadRequest, "Validation failed", "Email is required")
			return
		}

		role, err := users.ParseRole(req.Role)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Validation failed", "Unknown role")
			return
		}
		if err := users.ValidatePasswordStrength(req.Password); err != nil {
			respondError(w, http.StatusBadRequest, "Validation failed", err.Error())
			return
		}

		if _, err := s.users.GetByEmail(r.Context(), req.Email); err == nil {
			respondError(w, http.StatusConflict, "Failed to create user", "User already exists")
			return
		}

		passwordHash, err := users.HashPassword(req.Password)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to create user", "Failed to create user")
			return
		}

		user := &users.User{
			Email:        req.Email,
			Name:         req.Name,
			Role:         role,
			PasswordHash: passwordHash,
		}
		if err := s.users.Upsert(r.Context(), user); err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to create user", "Failed to create user")
			return
		}

		respondSuccess(w, http.StatusCreated, "User created successfully", user.Sanitized())
	}
}

func (s *Server) UpdateUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := IdentityFromContext(r.Context())

		user, err := s.users.GetByID(r.Context(), r.PathValue("id"))
		if err != nil {
			respondError(w, http.StatusNotFound, "User not found", "User not found")
			return
		}

		var req updateUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Validation failed", "Invalid request body")
			return
		}

		if req.Name != nil {
			user.Name = *req.Name
		}
		if req.Password != nil {
			if err := users.ValidatePasswordStrength(*req.Password); err != nil {
				respondError(w, http.StatusBadRequest, "Validation failed", err.Error())
				return
			}
			hash, err := users.HashPassword(*req.Password)
			if err != nil {
				respondError(w, http.StatusInternalServerError, "Failed to update user", "Failed to update user")
				return
			}
			user.PasswordHash = hash
		}
		if req.Role != nil {
			// Only admins may change roles, including their own.
			if identity.Role != users.RoleAdmin {
				respondError(w, http.StatusForbidden, "Access denied", "Insufficient permissions")
				return
			}
			role, err := users.ParseRole(*req.Role)
			if err != nil {
				respondError(w, http.StatusBadRequest, "Validation failed", "Unknown role")
				return
			}
			user.Role = role
		}

		if err := s.users.Upsert(r.Context(), user); err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to update user", "Failed to update user")
			return
		}

		respondSuccess(w, http.StatusOK, "User updated successfully", user.Sanitized())
	}
}

func (s *Server) DeleteUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := s.users.Delete(r.Context(), r.PathValue("id"))
		if autherrors.Is(err, autherrors.ErrUserNotFound) {
			respondError(w, http.StatusNotFound, "User not found", "User not found")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to delete user", "Failed to delete user")
			return
		}
		respondSuccess(w, http.StatusOK, "User deleted successfully", nil)
	}
}
