package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/fuomag9/servicewatch/internal/auth"
	"github.com/fuomag9/servicewatch/internal/models"
	"github.com/fuomag9/servicewatch/internal/store"
)

type contextKey string

const userContextKey contextKey = "user"

const minPasswordLength = 8

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role,omitempty"`
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// HandleRegister creates an account. The first account becomes admin; later
// ones may ask for developer or viewer and default to viewer.
func HandleRegister(st *store.Store, tokens *auth.Tokens, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.Email = strings.TrimSpace(req.Email)
		if req.Name == "" || req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "Name, email, and password are required")
			return
		}
		if _, err := mail.ParseAddress(req.Email); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid email address")
			return
		}
		if len(req.Password) < minPasswordLength {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
			return
		}

		count, err := st.CountUsers(r.Context())
		if err != nil {
			writeStoreError(w, logger, err, "registration")
			return
		}
		role := models.RoleViewer
		switch {
		case count == 0:
			role = models.RoleAdmin
		case req.Role == models.RoleDeveloper || req.Role == models.RoleViewer:
			role = req.Role
		case req.Role != "":
			writeError(w, http.StatusBadRequest, "Role must be developer or viewer")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			logger.Error("hash password", "err", err)
			writeError(w, http.StatusInternalServerError, "Registration failed")
			return
		}

		user := &models.User{Name: req.Name, Email: req.Email, Password: string(hash), Role: role}
		if err := st.CreateUser(r.Context(), user); err != nil {
			if errors.Is(err, store.ErrConflict) {
				writeError(w, http.StatusConflict, "User with this email already exists")
				return
			}
			writeStoreError(w, logger, err, "registration")
			return
		}

		activity(r.Context(), st, logger, nil, models.LogInfo,
			fmt.Sprintf("New user registered: %s (%s)", user.Name, user.Email))
		logger.Info("user registered", "user_id", user.ID, "role", user.Role)

		token, err := tokens.Issue(user.ID)
		if err != nil {
			logger.Error("issue token", "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to generate token")
			return
		}
		writeJSON(w, http.StatusCreated, AuthResponse{Token: token, User: user})
	}
}

// HandleLogin handles user login
func HandleLogin(st *store.Store, tokens *auth.Tokens, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request")
			return
		}
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "Email and password are required")
			return
		}

		user, err := st.GetUserByEmail(r.Context(), req.Email)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		if err != nil {
			writeStoreError(w, logger, err, "login")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
			logger.Info("login rejected", "user_id", user.ID)
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		token, err := tokens.Issue(user.ID)
		if err != nil {
			logger.Error("issue token", "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to generate token")
			return
		}

		activity(r.Context(), st, logger, nil, models.LogInfo,
			fmt.Sprintf("User logged in: %s (%s)", user.Name, user.Email))
		writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
	}
}

// HandleGetCurrentUser returns the current authenticated user
func HandleGetCurrentUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, currentUser(r))
	}
}

// AuthMiddleware validates bearer tokens and loads the user into the
// request context.
func AuthMiddleware(tokens *auth.Tokens, st *store.Store, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := auth.FromRequest(r, false)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "Missing authorization header")
				return
			}
			userID, err := tokens.Parse(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			user, err := st.GetUser(r.Context(), userID)
			if err != nil {
				if !errors.Is(err, store.ErrNotFound) {
					logger.Error("load user for token", "user_id", userID, "err", err)
				}
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireWrite rejects viewers.
func RequireWrite(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := currentUser(r); u == nil || !u.CanWrite() {
			writeError(w, http.StatusForbidden, "Insufficient permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects everyone but admins.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := currentUser(r); u == nil || !u.IsAdmin() {
			writeError(w, http.StatusForbidden, "Insufficient permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func currentUser(r *http.Request) *models.User {
	u, _ := r.Context().Value(userContextKey).(*models.User)
	return u
}

// HandleListUsers lists every account. Admin only.
func HandleListUsers(st *store.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := st.ListUsers(r.Context())
		if err != nil {
			writeStoreError(w, logger, err, "users")
			return
		}
		writeJSON(w, http.StatusOK, users)
	}
}

// activity appends a user-visible log entry. Failures are logged only.
func activity(ctx context.Context, st *store.Store, logger *slog.Logger, serviceID *int64, level models.LogLevel, msg string) {
	if err := st.AppendLog(ctx, &models.LogEntry{ServiceID: serviceID, Level: level, Message: msg}); err != nil {
		logger.Warn("append activity log", "err", err)
	}
}
