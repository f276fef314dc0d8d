package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bobmcallan/sitecast/internal/common"
	"github.com/bobmcallan/sitecast/internal/interfaces"
	"github.com/bobmcallan/sitecast/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// AdminUserID is the fixed id of the seeded administrator account.
const AdminUserID = "admin"

// HashPassword returns the bcrypt hash of password. bcrypt only reads the
// first 72 bytes, so longer input is truncated explicitly.
func HashPassword(password string) (string, error) {
	b := []byte(password)
	if len(b) > 72 {
		b = b[:72]
	}
	hash, err := bcrypt.GenerateFromPassword(b, bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// ensureAdmin creates the admin account when it does not exist yet. Without a
// configured password a random one is generated and returned so it can be shown
// once; otherwise "" is returned.
func ensureAdmin(ctx context.Context, store interfaces.UserStore, cfg common.AuthConfig, logger *common.Logger) (string, error) {
	_, err := store.GetUser(ctx, AdminUserID)
	if err == nil {
		logger.Debug().Msg("Admin user already exists")
		return "", nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return "", fmt.Errorf("failed to look up admin user: %w", err)
	}

	password := cfg.AdminPassword
	generated := password == ""
	if generated {
		// 18 bytes -> 24 chars in base64
		buf := make([]byte, 18)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate admin password: %w", err)
		}
		password = base64.RawURLEncoding.EncodeToString(buf)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", err
	}

	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if email == "" {
		email = "admin@sitecast.local"
	}
	user := &models.User{
		UserID:       AdminUserID,
		Email:        email,
		Name:         "Administrator",
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.SaveUser(ctx, user); err != nil {
		return "", fmt.Errorf("failed to save admin user: %w", err)
	}

	if !generated {
		logger.Info().Str("email", email).Msg("Admin user created")
		return "", nil
	}
	logger.Warn().
		Str("email", email).
		Str("password", password).
		Msg("Admin user created with generated password")
	return password, nil
}
