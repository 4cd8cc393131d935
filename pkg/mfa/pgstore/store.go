package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/mfakit/pkg/mfa"
	"github.com/dmitrymomot/mfakit/pkg/pg"
)

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements mfa.Storage on PostgreSQL. Single-use transitions are
// conditional UPDATEs, so concurrent requests race on the row, not in Go.
type Store struct {
	db DB
}

var _ mfa.Storage = (*Store)(nil)

func New(db DB) *Store {
	return &Store{db: db}
}

// parseID maps malformed ids to "no such row" instead of a driver error.
func parseID(id string) (uuid.UUID, bool) {
	u, err := uuid.Parse(id)
	return u, err == nil
}

func notFound(err error) error {
	if pg.IsNotFoundError(err) {
		return mfa.ErrNotFound
	}
	return err
}

func (s *Store) GetFactorConfig(ctx context.Context, userID, factor string) (*mfa.FactorConfig, error) {
	var c mfa.FactorConfig
	err := s.db.QueryRow(ctx, `
SELECT user_id, factor, enabled, secret, data, created_at, updated_at
FROM mfa_user_config
WHERE user_id = $1 AND factor = $2`, userID, factor).
		Scan(&c.UserID, &c.Factor, &c.Enabled, &c.Secret, &c.Data, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) UpsertFactorConfig(ctx context.Context, c mfa.FactorConfig) error {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	if c.Data == nil {
		c.Data = map[string]any{}
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO mfa_user_config (user_id, factor, enabled, secret, data, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id, factor) DO UPDATE
SET enabled = EXCLUDED.enabled,
    secret = EXCLUDED.secret,
    data = EXCLUDED.data,
    updated_at = EXCLUDED.updated_at`,
		c.UserID, c.Factor, c.Enabled, c.Secret, c.Data, c.CreatedAt, c.UpdatedAt)
	return err
}

func (s *Store) DeleteFactorConfig(ctx context.Context, userID, factor string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM mfa_user_config WHERE user_id = $1 AND factor = $2`, userID, factor)
	return err
}

func (s *Store) ListFactorConfigs(ctx context.Context, userID string) ([]mfa.FactorConfig, error) {
	rows, err := s.db.Query(ctx, `
SELECT user_id, factor, enabled, secret, data, created_at, updated_at
FROM mfa_user_config
WHERE user_id = $1
ORDER BY factor`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (mfa.FactorConfig, error) {
		var c mfa.FactorConfig
		err := row.Scan(&c.UserID, &c.Factor, &c.Enabled, &c.Secret, &c.Data, &c.CreatedAt, &c.UpdatedAt)
		return c, err
	})
}

func (s *Store) SetFactorEnabled(ctx context.Context, userID, factor string, enabled bool) error {
	tag, err := s.db.Exec(ctx, `
UPDATE mfa_user_config SET enabled = $3, updated_at = now()
WHERE user_id = $1 AND factor = $2`, userID, factor, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return mfa.ErrNotFound
	}
	return nil
}

// ReplaceBackupCodes swaps the whole batch in one transaction.
func (s *Store) ReplaceBackupCodes(ctx context.Context, userID string, codes []mfa.BackupCode) error {
	rows := make([][]any, 0, len(codes))
	for _, c := range codes {
		id, ok := parseID(c.ID)
		if !ok {
			return fmt.Errorf("invalid backup code id %q", c.ID)
		}
		created := c.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		rows = append(rows, []any{id, userID, c.CodeHash, false, created})
	}

	return pg.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM mfa_backup_codes WHERE user_id = $1`, userID); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"mfa_backup_codes"},
			[]string{"id", "user_id", "code_hash", "used", "created_at"},
			pgx.CopyFromRows(rows),
		)
		return err
	})
}

func (s *Store) ListUnusedBackupCodes(ctx context.Context, userID string) ([]mfa.BackupCode, error) {
	rows, err := s.db.Query(ctx, `
SELECT id::text, user_id, code_hash, used, used_at, created_at
FROM mfa_backup_codes
WHERE user_id = $1 AND NOT used
ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (mfa.BackupCode, error) {
		var c mfa.BackupCode
		err := row.Scan(&c.ID, &c.UserID, &c.CodeHash, &c.Used, &c.UsedAt, &c.CreatedAt)
		return c, err
	})
}

func (s *Store) ConsumeBackupCode(ctx context.Context, userID, codeID string, usedAt time.Time) (bool, error) {
	id, ok := parseID(codeID)
	if !ok {
		return false, nil
	}
	tag, err := s.db.Exec(ctx, `
UPDATE mfa_backup_codes SET used = TRUE, used_at = $3
WHERE id = $1 AND user_id = $2 AND NOT used`, id, userID, usedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) BackupCodeStats(ctx context.Context, userID string) (mfa.BackupCodeStats, error) {
	var st mfa.BackupCodeStats
	err := s.db.QueryRow(ctx, `
SELECT count(*), count(*) FILTER (WHERE used)
FROM mfa_backup_codes
WHERE user_id = $1`, userID).Scan(&st.Total, &st.Used)
	if err != nil {
		return mfa.BackupCodeStats{}, err
	}
	st.Remaining = st.Total - st.Used
	return st, nil
}

func (s *Store) DeleteBackupCodes(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM mfa_backup_codes WHERE user_id = $1`, userID)
	return err
}

func (s *Store) CreateEmailCode(ctx context.Context, c mfa.EmailCode) error {
	id, ok := parseID(c.ID)
	if !ok {
		return fmt.Errorf("invalid email code id %q", c.ID)
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO mfa_email_codes (id, user_id, code, expires_at, used, attempts, created_at)
VALUES ($1, $2, $3, $4, FALSE, $5, $6)`,
		id, c.UserID, c.Code, c.ExpiresAt, c.Attempts, c.CreatedAt)
	return err
}

// LatestEligibleEmailCode breaks created_at ties by insertion order.
func (s *Store) LatestEligibleEmailCode(ctx context.Context, userID string, now time.Time, maxAttempts int) (*mfa.EmailCode, error) {
	var c mfa.EmailCode
	err := s.db.QueryRow(ctx, `
SELECT id::text, user_id, code, expires_at, used, used_at, attempts, created_at
FROM mfa_email_codes
WHERE user_id = $1 AND NOT used AND expires_at > $2 AND attempts < $3
ORDER BY created_at DESC, seq DESC
LIMIT 1`, userID, now, maxAttempts).
		Scan(&c.ID, &c.UserID, &c.Code, &c.ExpiresAt, &c.Used, &c.UsedAt, &c.Attempts, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) IncrementEmailCodeAttempts(ctx context.Context, codeID string, maxAttempts int, now time.Time) (bool, error) {
	id, ok := parseID(codeID)
	if !ok {
		return false, nil
	}
	tag, err := s.db.Exec(ctx, `
UPDATE mfa_email_codes SET attempts = attempts + 1
WHERE id = $1 AND NOT used AND expires_at > $2 AND attempts < $3`, id, now, maxAttempts)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ConsumeEmailCode(ctx context.Context, codeID string, usedAt time.Time) (bool, error) {
	id, ok := parseID(codeID)
	if !ok {
		return false, nil
	}
	tag, err := s.db.Exec(ctx, `
UPDATE mfa_email_codes SET used = TRUE, used_at = $2
WHERE id = $1 AND NOT used AND expires_at > $2`, id, usedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) DeleteEmailCodes(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM mfa_email_codes WHERE user_id = $1`, userID)
	return err
}

func (s *Store) DeleteStaleEmailCodes(ctx context.Context, now, usedBefore time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
DELETE FROM mfa_email_codes
WHERE expires_at < $1 OR (used AND created_at < $2)`, now, usedBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) StoreAuditEvent(ctx context.Context, e mfa.AuditEvent) error {
	id, ok := parseID(e.ID)
	if !ok {
		id = uuid.New()
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO mfa_audit (id, user_id, factor, action, success, details, ip, user_agent, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, e.UserID, e.Factor, e.Action, e.Success, e.Details, e.IP, e.UserAgent, e.CreatedAt)
	return err
}

func (s *Store) CountVerifications(ctx context.Context, userID string, since time.Time) (total, succeeded int, err error) {
	err = s.db.QueryRow(ctx, `
SELECT count(*), count(*) FILTER (WHERE success)
FROM mfa_audit
WHERE user_id = $1 AND action = $2 AND created_at >= $3`, userID, mfa.ActionVerify, since).
		Scan(&total, &succeeded)
	if err != nil {
		return 0, 0, fmt.Errorf("count verifications: %w", err)
	}
	return total, succeeded, nil
}
