package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dmitrymomot/mfakit/pkg/config"
	"github.com/dmitrymomot/mfakit/pkg/engine"
	"github.com/dmitrymomot/mfakit/pkg/logger"
	"github.com/dmitrymomot/mfakit/pkg/mfa"
	"github.com/dmitrymomot/mfakit/pkg/mfa/pgstore"
	"github.com/dmitrymomot/mfakit/pkg/pg"
	"github.com/dmitrymomot/mfakit/pkg/totp"
)

// Flags keep parsed state, so every command gets its own instance.
func userFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "user",
		Usage:    "user id",
		Required: true,
	}
}

func newApp(w io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "mfactl",
		Usage:   "Administer the multi-factor authentication engine",
		Version: version,
		Writer:  w,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "load variables from this file instead of ./.env",
			},
		},
		Commands: []*cli.Command{
			keygenCmd(w),
			migrateCmd(),
			sweepCmd(w),
			statusCmd(w),
			statsCmd(w),
			revokeCmd(w),
			healthCmd(w),
		},
	}
}

func loadConfig[T any](c *cli.Command, v *T) error {
	var opts []config.Option
	if f := c.String("env-file"); f != "" {
		opts = append(opts, config.WithEnvFiles(f))
	}
	return config.Load(v, opts...)
}

// withEngine builds the engine from the environment, runs fn and releases it.
func withEngine(ctx context.Context, c *cli.Command, fn func(*engine.Engine) error) error {
	var cfg engine.Config
	if err := loadConfig(c, &cfg); err != nil {
		return err
	}
	log := logger.FromConfig(cfg.Log, os.Stderr)
	e, err := engine.New(ctx, cfg, engine.WithLogger(log))
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(e)
}

func keygenCmd(w io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Generate a key for MFA_TOTP_ENCRYPTION_KEY",
		Action: func(_ context.Context, _ *cli.Command) error {
			key, err := totp.GenerateEncodedEncryptionKey()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(w, key)
			return err
		},
	}
}

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations",
		Action: func(ctx context.Context, c *cli.Command) error {
			var cfg struct {
				Log logger.Config
				PG  pg.Config
			}
			if err := loadConfig(c, &cfg); err != nil {
				return err
			}
			log := logger.FromConfig(cfg.Log, os.Stderr)
			pool, err := pg.Connect(ctx, cfg.PG)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := pg.Migrate(ctx, pool, cfg.PG, pgstore.Migrations(), log); err != nil {
				return err
			}
			log.InfoContext(ctx, "migrations applied")
			return nil
		},
	}
}

func sweepCmd(w io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Remove expired email codes once, or on a schedule with --every",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "every",
				Usage: "run continuously at this interval until interrupted",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withEngine(ctx, c, func(e *engine.Engine) error {
				every := c.Duration("every")
				if every <= 0 {
					n, err := e.Sweeper.Run(ctx)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(w, "removed %d codes\n", n)
					return err
				}
				if err := e.Sweeper.Start(every); err != nil {
					return err
				}
				<-ctx.Done()
				e.Sweeper.Stop()
				return nil
			})
		},
	}
}

func statusCmd(w io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the factors of a user and whether MFA is required",
		Flags: []cli.Flag{userFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			user := c.String("user")
			return withEngine(ctx, c, func(e *engine.Engine) error {
				return printStatus(ctx, w, e.Registry, user)
			})
		},
	}
}

func printStatus(ctx context.Context, w io.Writer, reg *mfa.Registry, user string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FACTOR\tNAME\tCONFIGURED\tPRIMARY")
	for _, f := range reg.Factors() {
		ok, err := f.IsConfigured(ctx, user)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\n", f.Name(), f.DisplayName(), ok, f.CanBePrimary())
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	required, err := reg.IsRequired(ctx, user)
	if err != nil {
		return err
	}
	policy := "ok"
	if err := reg.CheckPolicy(ctx, user); err != nil {
		policy = err.Error()
	}
	fmt.Fprintf(w, "\nmfa enabled: %t\nmfa required: %t\npolicy: %s\n", reg.Enabled(), required, policy)
	if end, err := reg.GracePeriodEnd(ctx, user); err == nil && !end.IsZero() {
		fmt.Fprintf(w, "grace period ends: %s\n", end.UTC().Format(time.RFC3339))
	}
	return nil
}

func statsCmd(w io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Print verification statistics of a user as JSON",
		Flags: []cli.Flag{userFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			user := c.String("user")
			return withEngine(ctx, c, func(e *engine.Engine) error {
				st, err := e.Registry.Stats(ctx, user)
				if err != nil {
					return err
				}
				backup, err := e.Backup.UsageStats(ctx, user)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					*mfa.Stats
					BackupCodes mfa.BackupCodeStats `json:"backup_codes"`
				}{st, backup})
			})
		},
	}
}

func revokeCmd(w io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "revoke",
		Usage: "Revoke one factor, or all factors, of a user",
		Flags: []cli.Flag{
			userFlag(),
			&cli.StringFlag{
				Name:  "factor",
				Usage: "factor name (totp, email, backup); all factors when empty",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			user, factor := c.String("user"), c.String("factor")
			return withEngine(ctx, c, func(e *engine.Engine) error {
				if factor == "" {
					if err := e.Registry.RevokeAll(ctx, user); err != nil {
						return err
					}
					_, err := fmt.Fprintf(w, "revoked all factors of %s\n", user)
					return err
				}
				if err := e.Registry.Revoke(ctx, user, factor); err != nil {
					return err
				}
				_, err := fmt.Fprintf(w, "revoked %s of %s\n", factor, user)
				return err
			})
		},
	}
}

func healthCmd(w io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Ping Postgres and Redis",
		Action: func(ctx context.Context, c *cli.Command) error {
			return withEngine(ctx, c, func(e *engine.Engine) error {
				if err := e.Healthcheck(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintln(w, "ok")
				return err
			})
		},
	}
}
