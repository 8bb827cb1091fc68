package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"camkeep/internal/adapter/disk"
	"camkeep/internal/adapter/logger"
	"camkeep/internal/adapter/recorder"
	"camkeep/internal/adapter/store"
	"camkeep/internal/adapter/telemetry"
	"camkeep/internal/app"
	"camkeep/internal/config"
	"camkeep/internal/version"
)

const long = `camkeep keeps one ffmpeg recorder running per configured camera and
deletes the oldest recordings whenever free space in the storage directory
drops below the cleanup threshold.

The config file is resolved from: --config flag > CAMKEEP_CONFIG env >
./camkeep.json. JSON, YAML (.yaml, .yml) and TOML (.toml) are accepted.`

type globalOptions struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var cfgErr *config.Error
		if errors.As(err, &cfgErr) {
			fmt.Fprintf(os.Stderr, "camkeep: invalid configuration: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "camkeep: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "camkeep",
		Short:         "Supervise camera recorders and keep disk space free",
		Long:          long,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Version = version.Version
	root.SetVersionTemplate(version.Full() + "\n")

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file path")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newCheckCmd(opts))
	root.AddCommand(newReclaimCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

// setup loads the config and builds the logger it asks for.
func setup(opts *globalOptions) (*config.Config, *logger.Slog, error) {
	boot := logger.NewStderr(opts.logLevel)
	path := config.ResolvePath(opts.configPath)

	cfg, err := config.Load(path, boot)
	if err != nil {
		return nil, nil, err
	}

	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	log := logger.NewStderr(level)
	log.Debug("config loaded", "path", path, "sources", len(cfg.Sources))
	return cfg, log, nil
}

// newScheduler wires the production adapters into a scheduler.
func newScheduler(cfg *config.Config, log *logger.Slog, metrics *telemetry.Metrics) (*app.Scheduler, error) {
	st := store.NewFileStore(cfg.StorageDir, log)
	if err := st.EnsureDir(); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	return app.NewScheduler(
		app.Config{
			StorageDir:       st.Root(),
			CleanupThreshold: cfg.CleanupThreshold,
			Sources:          cfg.Sources,
			ShutdownGrace:    cfg.ShutdownGrace,
		},
		recorder.NewBuilder(cfg.FFmpegPath, st.Root(), time.Now),
		recorder.NewRunner(log),
		disk.NewSampler(),
		st,
		st,
		log,
		metrics,
	), nil
}

// logMetrics writes the current metric values as one log record.
func logMetrics(ctx context.Context, p *telemetry.Provider, log *logger.Slog) {
	snap, err := p.Snapshot(ctx)
	if err != nil {
		log.Warn("metrics snapshot failed", "err", err)
		return
	}
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	args := make([]any, 0, 2*len(names))
	for _, name := range names {
		args = append(args, name, snap[name])
	}
	log.Info("metrics", args...)
}

func newRunCmd(opts *globalOptions) *cobra.Command {
	var metricsInterval time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start recording and reclaiming until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(opts)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			provider, err := telemetry.Install(telemetry.Options{
				Version:  version.Version,
				Export:   cmd.ErrOrStderr(),
				Interval: metricsInterval,
			})
			if err != nil {
				return fmt.Errorf("metrics: %w", err)
			}
			defer func() {
				if err := provider.Shutdown(context.Background()); err != nil {
					log.Warn("metrics shutdown failed", "err", err)
				}
			}()

			if v, err := recorder.Probe(ctx, cfg.FFmpegPath); err != nil {
				log.Warn("ffmpeg not usable, recorders will keep retrying", "path", cfg.FFmpegPath, "err", err)
			} else {
				log.Info("using ffmpeg", "version", v)
			}

			sch, err := newScheduler(cfg, log, provider.Metrics)
			if err != nil {
				return err
			}
			if err := sch.Run(ctx); err != nil {
				return err
			}
			logMetrics(context.Background(), provider, log)
			log.Info("bye")
			return nil
		},
	}
	cmd.Flags().DurationVar(&metricsInterval, "metrics-interval", 0, "export metrics as JSON to stderr this often (0 disables)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
		},
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
