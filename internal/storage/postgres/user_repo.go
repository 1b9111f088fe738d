package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/certsentry/certsentry/internal/core"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Ping() error {
	return r.db.Ping()
}

func (r *Repository) CreateUser(ctx context.Context, user *core.User, passwordHash string) error {
	query := `
        INSERT INTO users (id, email, password_hash, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, passwordHash, user.CreatedAt, user.UpdatedAt,
	)
	return err
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*core.User, error) {
	var user core.User
	query := `SELECT id, email, created_at, updated_at FROM users WHERE id = $1`
	err := r.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &user, err
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*core.User, string, error) {
	var row struct {
		core.User
		PasswordHash string `db:"password_hash"`
	}
	query := `SELECT id, email, password_hash, created_at, updated_at FROM users WHERE email = $1`
	err := r.db.GetContext(ctx, &row, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return &row.User, row.PasswordHash, nil
}

func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`
	err := r.db.GetContext(ctx, &exists, query, email)
	return exists, err
}

func (r *Repository) ListUsers(ctx context.Context) ([]core.User, error) {
	users := []core.User{}
	query := `SELECT id, email, created_at, updated_at FROM users ORDER BY created_at`
	err := r.db.SelectContext(ctx, &users, query)
	return users, err
}

// Notification preference operations

func (r *Repository) GetPreferences(ctx context.Context, userID uuid.UUID) (*core.NotificationPreference, error) {
	var pref core.NotificationPreference
	query := `
        SELECT user_id, email_enabled, warning_days, critical_days, last_notified_at
        FROM notification_settings
        WHERE user_id = $1`

	err := r.db.GetContext(ctx, &pref, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &pref, err
}

// GetOrCreatePreferences returns the user's settings, lazily inserting the
// defaults on first access.
func (r *Repository) GetOrCreatePreferences(ctx context.Context, userID uuid.UUID) (*core.NotificationPreference, error) {
	pref, err := r.GetPreferences(ctx, userID)
	if err == nil {
		return pref, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	pref = core.DefaultPreference(userID)
	query := `
        INSERT INTO notification_settings (user_id, email_enabled, warning_days, critical_days)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, pref.UserID, pref.EmailEnabled, pref.WarningDays, pref.CriticalDays); err != nil {
		return nil, err
	}
	return pref, nil
}

func (r *Repository) UpsertPreferences(ctx context.Context, pref *core.NotificationPreference) error {
	query := `
        INSERT INTO notification_settings (user_id, email_enabled, warning_days, critical_days)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id) DO UPDATE SET
            email_enabled = EXCLUDED.email_enabled,
            warning_days = EXCLUDED.warning_days,
            critical_days = EXCLUDED.critical_days`

	_, err := r.db.ExecContext(ctx, query, pref.UserID, pref.EmailEnabled, pref.WarningDays, pref.CriticalDays)
	return err
}

func (r *Repository) UpdateLastNotified(ctx context.Context, userID uuid.UUID, at time.Time) error {
	query := `UPDATE notification_settings SET last_notified_at = $2 WHERE user_id = $1`
	_, err := r.db.ExecContext(ctx, query, userID, at)
	return err
}
