package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bobmcallan/sitecast/internal/common"
	"github.com/bobmcallan/sitecast/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// signJWT creates an HS256 token for user that expires after the configured expiry.
func signJWT(user *models.User, config *common.AuthConfig) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(config.GetTokenExpiry())
	claims := jwt.MapClaims{
		"jti":   uuid.New().String(),
		"sub":   user.UserID,
		"email": user.Email,
		"name":  user.Name,
		"iss":   "sitecast-server",
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(config.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt.UTC().Truncate(time.Second), nil
}

// validateJWT parses and validates a JWT token string using the given secret.
func validateJWT(tokenString string, secret []byte) (*jwt.Token, jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return token, claims, nil
}

// handleLogin verifies credentials and returns a bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	verr := &models.ValidationError{Message: "Invalid credentials payload"}
	if strings.TrimSpace(req.Email) == "" {
		verr.Add("email", "This field is required.")
	}
	if req.Password == "" {
		verr.Add("password", "This field is required.")
	}
	if err := verr.OrNil(); err != nil {
		WriteServiceError(w, s.logger, err)
		return
	}

	user, err := s.app.Storage.UserStore().GetUserByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		WriteServiceError(w, s.logger, err)
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		s.logger.Info().Str("email", req.Email).Msg("Login rejected")
		WriteErrorWithCode(w, http.StatusUnauthorized, "Invalid email or password", CodeUnauthorized)
		return
	}

	token, expiresAt, err := signJWT(user, &s.app.Config.Auth)
	if err != nil {
		WriteServiceError(w, s.logger, fmt.Errorf("failed to sign token: %w", err))
		return
	}

	s.logger.Info().Str("user_id", user.UserID).Msg("User logged in")
	WriteJSON(w, http.StatusOK, models.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user.Profile(),
	})
}

// handleMe returns the authenticated user's profile.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	uc := common.UserContextFromContext(r.Context())
	if uc == nil {
		WriteJSON(w, http.StatusOK, models.Profile{UserID: common.ResolveUserID(r.Context())})
		return
	}
	user, err := s.app.Storage.UserStore().GetUser(r.Context(), uc.UserID)
	if err != nil {
		WriteServiceError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, user.Profile())
}

// handleHealth reports liveness and the storage backend in use.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"storage": s.app.Storage.Backend(),
		"uptime":  time.Since(s.app.StartupTime).Round(time.Second).String(),
	})
}

// handleVersion returns build information.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}
