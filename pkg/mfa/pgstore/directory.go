package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/mfakit/pkg/mfa"
	"github.com/dmitrymomot/mfakit/pkg/pg"
)

// DirectoryConfig maps the host application's users table.
type DirectoryConfig struct {
	Table           string `env:"MFA_USERS_TABLE" envDefault:"users"`
	IDColumn        string `env:"MFA_USERS_ID_COLUMN" envDefault:"id"`
	EmailColumn     string `env:"MFA_USERS_EMAIL_COLUMN" envDefault:"email"`
	NameColumn      string `env:"MFA_USERS_NAME_COLUMN" envDefault:"name"`
	CreatedAtColumn string `env:"MFA_USERS_CREATED_AT_COLUMN" envDefault:"created_at"`
}

func (c DirectoryConfig) withDefaults() DirectoryConfig {
	if c.Table == "" {
		c.Table = "users"
	}
	if c.IDColumn == "" {
		c.IDColumn = "id"
	}
	if c.EmailColumn == "" {
		c.EmailColumn = "email"
	}
	if c.NameColumn == "" {
		c.NameColumn = "name"
	}
	if c.CreatedAtColumn == "" {
		c.CreatedAtColumn = "created_at"
	}
	return c
}

// UserDirectory reads users from an existing table.
type UserDirectory struct {
	db    DB
	query string
}

var _ mfa.UserDirectory = (*UserDirectory)(nil)

func NewUserDirectory(db DB, cfg DirectoryConfig) *UserDirectory {
	cfg = cfg.withDefaults()
	id := pgx.Identifier{cfg.IDColumn}.Sanitize()
	query := fmt.Sprintf(
		`SELECT %s::text, COALESCE(%s, ''), COALESCE(%s, ''), %s FROM %s WHERE %s::text = $1`,
		id,
		pgx.Identifier{cfg.EmailColumn}.Sanitize(),
		pgx.Identifier{cfg.NameColumn}.Sanitize(),
		pgx.Identifier{cfg.CreatedAtColumn}.Sanitize(),
		pgx.Identifier{cfg.Table}.Sanitize(),
		id,
	)
	return &UserDirectory{db: db, query: query}
}

func (d *UserDirectory) GetUser(ctx context.Context, userID string) (*mfa.User, error) {
	var (
		u       mfa.User
		created *time.Time
	)
	err := d.db.QueryRow(ctx, d.query, userID).Scan(&u.ID, &u.Email, &u.DisplayName, &created)
	if pg.IsNotFoundError(err) {
		return nil, mfa.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if created != nil {
		u.CreatedAt = *created
	}
	return &u, nil
}
