package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shared-canvas/backend/internal/auth"
)

func newTokenCmd(load configLoader) *cobra.Command {
	var clientID string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a join token for a client",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.AuthSecret == "" {
				return errors.New("auth_secret is not configured")
			}

			issuer, err := auth.NewIssuer(cfg.AuthSecret, ttl)
			if err != nil {
				return err
			}
			token, err := issuer.Issue(clientID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&clientID, "client", "", "client id the token is issued to")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("client")

	return cmd
}
