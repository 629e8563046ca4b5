package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shared-canvas/backend/internal/config"
)

// configLoader reads the effective configuration once flags are parsed.
type configLoader func() (*config.Config, error)

func newRootCmd() *cobra.Command {
	v := config.New()
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "drawboard",
		Short:         "Shared canvas relay and sync client",
		Long:          "drawboard runs the relay that sequences strokes for shared drawing boards, and a headless client that joins a board, draws and saves what it sees.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./drawboard.toml)")

	load := func() (*config.Config, error) {
		return config.Load(v, configFile)
	}

	rootCmd.AddCommand(
		newServeCmd(v, load),
		newClientCmd(),
		newTokenCmd(load),
		newConfigCmd(load),
		newPeersCmd(),
		newWatchCmd(load),
	)

	return rootCmd
}

// bindFlags makes flags override file and environment values.
func bindFlags(cmd *cobra.Command, v *viper.Viper, keys map[string]string) error {
	for flag, key := range keys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}
