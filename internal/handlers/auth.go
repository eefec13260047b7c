package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/hybrid-bistoon/anbar/internal/repository"
	"github.com/hybrid-bistoon/anbar/internal/utils"
	"go.uber.org/zap"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// login handles user login
func (r *Router) login(w http.ResponseWriter, req *http.Request) {
	var body LoginRequest
	if err := decodeJSON(req, &body); err != nil {
		r.respondErr(w, req, err)
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" || body.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	// 1. Find User
	user, err := r.store.FindUserByUsername(req.Context(), username)
	if errors.Is(err, repository.ErrNotFound) {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		r.respondErr(w, req, err)
		return
	}

	// 2. Check Password
	if !user.IsActive || !utils.CheckPasswordHash(body.Password, user.Password) {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	// 3. Update Last Login
	now := time.Now().UTC()
	if err := r.store.TouchLogin(req.Context(), user.ID, now); err != nil {
		r.log.Warn("Failed to record login", zap.String("user", user.Username), zap.Error(err))
	}
	user.LastLogin = &now

	// 4. Generate Token
	token, err := utils.GenerateToken(user.ID, user.Username, user.Role, r.secret, now)
	if err != nil {
		r.respondErr(w, req, err)
		return
	}

	r.log.Info("🔑 Login", zap.String("user", user.Username), zap.String("role", user.Role))
	respondJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresAt": now.Add(utils.AccessTokenTTL),
		"user":      user,
	})
}
