package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/airlink-bridge/internal/auth"
)

var errTokenAuthDisabled = errors.New("token authentication is not enabled")

// tokenRequest is the request body for POST /auth/token.
type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// tokenResponse is the response body for POST /auth/token.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// handleToken exchanges the configured client credentials for a JWT.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if !s.secCfg.JWT.Enabled {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, errTokenAuthDisabled.Error())
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if !s.validClient(req.ClientID, req.ClientSecret) {
		writeUnauthorized(w, "invalid client credentials")
		return
	}

	ttl := time.Duration(s.secCfg.JWT.AccessTokenTTL) * time.Minute
	signed, ttl, err := auth.GenerateAccessToken(req.ClientID, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		s.logger.Error("failed to sign access token", "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int(ttl / time.Second),
	})
}

func (s *Server) validClient(id, secret string) bool {
	cfg := s.secCfg.JWT
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return false
	}
	idOK := subtle.ConstantTimeCompare([]byte(id), []byte(cfg.ClientID)) == 1
	secretOK, err := auth.VerifySecret(secret, cfg.ClientSecret)
	if err != nil {
		s.logger.Error("configured client secret is unusable", "error", err)
		return false
	}
	return idOK && secretOK
}

// validateToken verifies an access token and returns its subject.
func (s *Server) validateToken(raw string) (string, error) {
	claims, err := auth.ParseToken(raw, s.secCfg.JWT.Secret)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
