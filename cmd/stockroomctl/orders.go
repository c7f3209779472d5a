package main

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xenking/stockroom/internal/domain/auth"
	"github.com/xenking/stockroom/internal/domain/order"
	"github.com/xenking/stockroom/internal/repository"
)

func purgeOrdersCmd(g *globals) *cobra.Command {
	var (
		before string
		yes    bool
	)
	cmd := &cobra.Command{
		Use:   "purge-orders",
		Short: "Delete orders and their items",
		Long: `Purge-orders deletes every order placed before --before, or every order
when --before is omitted. Stock levels are left as they are.`,
		Example: `  stockroomctl purge-orders --before 2024-01-01 --yes`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cutoff time.Time
			if before != "" {
				t, err := time.Parse(time.DateOnly, before)
				if err != nil {
					return errors.Wrap(err, "parse --before")
				}
				cutoff = t
			}
			if !yes {
				return errors.New("refusing to delete orders without --yes")
			}
			pool, err := g.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := order.NewService(repository.NewOrderRepository(pool), nil)
			n, err := svc.Purge(cmd.Context(), auth.Actor{Role: auth.RoleAdmin, Name: "stockroomctl"}, cutoff)
			if err != nil {
				return err
			}
			g.lg.Info("Purged orders", zap.Int64("deleted", n), zap.Time("before", cutoff))
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d orders\n", n)
			return err
		},
	}
	cmd.Flags().StringVar(&before, "before", "", "Only delete orders placed before this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the deletion")
	return cmd
}
