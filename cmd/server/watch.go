package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/shared-canvas/backend/internal/mirror"
)

func newWatchCmd(load configLoader) *cobra.Command {
	var boardID string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print a board's accepted events from the Redis mirror",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.RedisAddr == "" {
				return errors.New("redis_addr is not configured")
			}

			ctx := cmd.Context()
			m, err := mirror.New(ctx, &redis.Options{Addr: cfg.RedisAddr}, mirrorPrefix)
			if err != nil {
				return err
			}
			defer m.Close()

			events, err := m.Subscribe(ctx, boardID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s\n", m.Channel(boardID))

			enc := json.NewEncoder(cmd.OutOrStdout())
			for ev := range events {
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&boardID, "board", "default", "board to watch")

	return cmd
}
