// Package pg wraps pgx connection pooling, goose migrations and a few error
// helpers used by the PostgreSQL storage adapters.
//
// Connect parses Config, opens a pgxpool.Pool and pings it, retrying with a
// growing delay. Migrate applies an embedded set of goose migrations through
// the pool:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	if err := pg.Migrate(ctx, pool, cfg, pgstore.Migrations(), slog.Default()); err != nil {
//	    return err
//	}
//
// WithTx wraps a function in a transaction, and IsNotFoundError and
// IsDuplicateKeyError classify driver errors.
package pg
