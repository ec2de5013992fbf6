package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/reforgerwatch/reforgerwatch/internal/auth"
	"github.com/reforgerwatch/reforgerwatch/internal/storage"
)

// bearerToken extracts the token from the Authorization header
func bearerToken(req *http.Request) string {
	header := req.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// claimsFrom validates the request's bearer token
func (r *Router) claimsFrom(req *http.Request) (*auth.Claims, error) {
	token := bearerToken(req)
	if token == "" {
		return nil, auth.ErrInvalidToken
	}
	return r.auth.ValidateToken(token)
}

// isAuthenticated reports whether the request carries a valid token
func (r *Router) isAuthenticated(req *http.Request) bool {
	_, err := r.claimsFrom(req)
	return err == nil
}

// requireAuth wraps a handler so it only runs for authenticated users
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if _, err := r.claimsFrom(req); err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, req)
	}
}

// requireAdmin wraps a handler so it only runs for admin users
func (r *Router) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		claims, err := r.claimsFrom(req)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !claims.IsAdmin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next(w, req)
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// handleLogin checks credentials and issues a JWT
func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	var body loginRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := r.store.GetUserByUsername(req.Context(), body.Username)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !auth.CheckPassword(body.Password, user.PasswordHash)) {
		writeError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	token, err := r.auth.GenerateToken(user.ID, user.Username, user.IsAdmin)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:    token,
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
	})
}
