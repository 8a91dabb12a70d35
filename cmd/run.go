package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/replaydiff/internal/app"
	"github.com/JakeFAU/replaydiff/internal/config"
	"github.com/JakeFAU/replaydiff/internal/logging"
)

// newRunCmd creates the 'run' subcommand. Every flag overrides the matching
// config key; unset flags fall back to env, then file, then defaults.
func newRunCmd(v *viper.Viper, cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay the payload log and diff the responses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReplay(cmd, v, *cfgFile)
		},
	}

	flags := cmd.Flags()
	flags.String("old-url", "", "base URL of the old implementation")
	flags.String("new-url", "", "base URL of the new implementation")
	flags.String("method", "GET", "request method: GET or POST")
	flags.IntP("concurrency", "c", 10, "number of workers")
	flags.Int("timeout-ms", 1000, "per-request timeout in milliseconds")
	flags.Int("queue-size", 100, "capacity of the dispatch queue")
	flags.Int("batch-size", 5, "entries read from the log per batch")
	flags.StringP("log-path", "f", "", "path of the payload log")
	flags.Float64("rate-limit", 0, "max requests per second per target host (0 = unlimited)")
	flags.Int("rate-burst", 1, "token bucket burst per target host")
	flags.Bool("metrics", false, "serve /metrics and /healthz while running")
	flags.Int("metrics-port", 9090, "port of the metrics server")
	flags.Bool("dev-logs", true, "human readable development logging")

	bindFlag(v, cmd, "replay.old_url", "old-url")
	bindFlag(v, cmd, "replay.new_url", "new-url")
	bindFlag(v, cmd, "replay.method", "method")
	bindFlag(v, cmd, "replay.concurrency", "concurrency")
	bindFlag(v, cmd, "replay.timeout_ms", "timeout-ms")
	bindFlag(v, cmd, "replay.queue_size", "queue-size")
	bindFlag(v, cmd, "replay.batch_size", "batch-size")
	bindFlag(v, cmd, "replay.log_path", "log-path")
	bindFlag(v, cmd, "replay.rate_limit_rps", "rate-limit")
	bindFlag(v, cmd, "replay.rate_limit_burst", "rate-burst")
	bindFlag(v, cmd, "metrics.enabled", "metrics")
	bindFlag(v, cmd, "metrics.port", "metrics-port")
	bindFlag(v, cmd, "logging.development", "dev-logs")

	return cmd
}

func runReplay(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	runner, err := app.New(cfg, app.WithLogger(logger))
	if err != nil {
		return err
	}
	res, err := runner.Run(cmd.Context())
	if err != nil {
		logger.Error("replay aborted", zap.Error(err))
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(),
		"run %s: succeeded=%d failed=%d diffs=%d workers=%d elapsed=%s\n",
		res.RunID, res.Stats.Succeeded, res.Stats.Failed, res.Stats.Diffs, res.Workers, res.Stats.Elapsed())
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
