// Command stockroomctl is the operator CLI: schema migrations, catalog
// seeding and bulk import, order purges and token minting.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xenking/stockroom/internal/repository"
)

type globals struct {
	databaseURL string
	verbose     bool
	lg          *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "stockroomctl",
		Short:         "Operate a stockroom database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg := zap.NewProductionConfig()
			if g.verbose {
				cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
			}
			lg, err := cfg.Build()
			if err != nil {
				return errors.Wrap(err, "create logger")
			}
			g.lg = lg
			if g.databaseURL == "" {
				g.databaseURL = os.Getenv("DATABASE_URL")
			}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if g.lg != nil {
				_ = g.lg.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&g.databaseURL, "database-url", os.Getenv("STOCKROOM_DATABASE_URL"),
		"PostgreSQL connection URL (or DATABASE_URL env)")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(migrateCmd(g), seedCmd(g), importCmd(g), purgeOrdersCmd(g), tokenCmd())
	return cmd
}

// connect opens a pool and applies migrations so every command can assume
// the schema exists.
func (g *globals) connect(ctx context.Context) (*pgxpool.Pool, error) {
	if g.databaseURL == "" {
		return nil, errors.New("database URL is required: set --database-url or DATABASE_URL")
	}
	pool, err := repository.NewPool(ctx, g.databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}
	if err := repository.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	return pool, nil
}

func migrateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := g.connect(cmd.Context())
			if err != nil {
				return err
			}
			pool.Close()
			g.lg.Info("Schema is up to date")
			return nil
		},
	}
}
