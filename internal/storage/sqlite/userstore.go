package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bobmcallan/sitecast/internal/common"
	"github.com/bobmcallan/sitecast/internal/interfaces"
	"github.com/bobmcallan/sitecast/internal/models"
)

// UserStore implements interfaces.UserStore using SQLite.
type UserStore struct {
	db     *sql.DB
	logger *common.Logger
}

// NewUserStore creates a new UserStore.
func NewUserStore(db *sql.DB, logger *common.Logger) *UserStore {
	return &UserStore{db: db, logger: logger}
}

func (s *UserStore) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	var (
		u       models.User
		created string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, email, name, password_hash, created_at FROM users WHERE "+where, arg).
		Scan(&u.UserID, &u.Email, &u.Name, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("user", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.CreatedAt = parseTime(created)
	return &u, nil
}

func (s *UserStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.getUser(ctx, "user_id = ?", userID)
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (s *UserStore) SaveUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, email, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET email = excluded.email, name = excluded.name,
			password_hash = excluded.password_hash`,
		user.UserID, user.Email, user.Name, user.PasswordHash, formatTime(user.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// Compile-time check
var _ interfaces.UserStore = (*UserStore)(nil)
