// Package cmd defines the replaydiff command line.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JakeFAU/replaydiff/internal/config"
)

// newRootCmd creates the root command with a fresh Viper instance so tests
// never share configuration state.
func newRootCmd() *cobra.Command {
	v := config.NewViper()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "replaydiff",
		Short: "Replay a payload log against two endpoints and report response differences.",
		Long: `replaydiff reads a log of captured request payloads and sends each one to an
old and a new implementation of the same service. Responses are compared
byte for byte and every mismatch is logged with both bodies.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newRunCmd(v, &cfgFile))
	return cmd
}

// Execute runs the root command until completion or SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(err)
	}
}
