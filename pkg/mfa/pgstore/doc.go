// Package pgstore is the PostgreSQL backend of package mfa.
//
// Store implements mfa.Storage on four tables (mfa_user_config,
// mfa_backup_codes, mfa_email_codes, mfa_audit) created by the embedded goose
// migrations:
//
//	pool, _ := pg.Connect(ctx, cfg.PG)
//	_ = pg.Migrate(ctx, pool, cfg.PG, pgstore.Migrations(), logger)
//	store := pgstore.New(pool)
//
// Consuming backup codes, counting email code attempts and consuming email
// codes are single conditional UPDATE statements; the affected row count tells
// the caller whether it won. Backup code regeneration deletes and inserts the
// batch inside one transaction.
//
// UserDirectory resolves users from the host application's table. Column
// names are configurable through DirectoryConfig.
package pgstore
