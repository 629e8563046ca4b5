package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shared-canvas/backend/internal/discovery"
)

func newPeersCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "peers",
		Short: "List relays advertised on the local network",
		RunE: func(cmd *cobra.Command, _ []string) error {
			peers, err := discovery.Browse(cmd.Context(), timeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(peers) == 0 {
				_, err := fmt.Fprintln(out, "no relays found")
				return err
			}
			for _, p := range peers {
				if _, err := fmt.Fprintf(out, "%s\t%s\t%s\n", p.Instance, p.Addr, strings.Join(p.Boards, ",")); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "how long to listen for answers")

	return cmd
}
