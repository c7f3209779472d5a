package main

import (
	"fmt"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/xenking/stockroom/internal/domain/auth"
)

func tokenCmd() *cobra.Command {
	var (
		email string
		name  string
		role  string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an actor",
		Long:  "Token signs an actor token with STOCKROOM_JWT_SECRET and prints it to stdout.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := os.Getenv("STOCKROOM_JWT_SECRET")
			if secret == "" {
				return errors.New("STOCKROOM_JWT_SECRET is not set")
			}
			token, err := auth.NewTokens([]byte(secret)).Issue(auth.Actor{
				Role:  auth.ParseRole(role),
				Email: email,
				Name:  name,
			}, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Actor email")
	cmd.Flags().StringVar(&name, "name", "", "Actor display name")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleUser), "Actor role (Admin or User)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
