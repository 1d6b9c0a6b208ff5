package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nomis52/cloudstats/config"
	"github.com/nomis52/cloudstats/logging"
	"github.com/nomis52/cloudstats/metrics"
	"github.com/nomis52/cloudstats/stats"
	"github.com/nomis52/cloudstats/store"
)

// globalFlags locate the statistics document. The state file wins over the config.
type globalFlags struct {
	configPath string
	statePath  string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "cloudstats",
		Short:         "Inspect provisioning activity statistics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to the server config file")
	cmd.PersistentFlags().StringVarP(&flags.statePath, "state", "s", "", "Path to a state file, overrides the config store")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	cmd.AddCommand(newListCmd(flags))
	cmd.AddCommand(newShowCmd(flags))
	cmd.AddCommand(newIndexCmd(flags))
	cmd.AddCommand(newPushCmd(flags))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func (f *globalFlags) logger() (*slog.Logger, error) {
	logger, err := logging.New(logging.Config{Level: f.logLevel, Format: "text", Output: "stderr"})
	if err != nil {
		return nil, err
	}
	return logger.Logger, nil
}

// config loads the config file if one was given, or returns the defaults.
func (f *globalFlags) config() (*config.Config, error) {
	if f.configPath == "" {
		cfg := &config.Config{}
		cfg.SetDefaults()
		return cfg, nil
	}
	return config.LoadConfig(f.configPath)
}

// loader reads the statistics document without changing where it is kept.
type loader interface {
	Load(ctx context.Context) (*store.Document, error)
}

// stateFile loads a state file in place. Unlike a DiskStore it never moves a corrupt
// file aside, since the file may belong to a running server.
type stateFile string

func (f stateFile) Load(ctx context.Context) (*store.Document, error) {
	return store.ReadFile(string(f))
}

// source returns where the document is kept.
func (f *globalFlags) source(ctx context.Context, cfg *config.Config, logger *slog.Logger) (loader, error) {
	if f.statePath != "" {
		return stateFile(f.statePath), nil
	}
	switch cfg.Store.Type {
	case config.StoreS3:
		s3 := cfg.Store.S3
		return store.NewS3Store(ctx, store.S3Config{
			Endpoint:  s3.Endpoint,
			Region:    s3.Region,
			Bucket:    s3.Bucket,
			Key:       s3.Key,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			PathStyle: s3.PathStyle,
		}, logger)
	case config.StoreDisk:
		return stateFile(cfg.Store.Path), nil
	default:
		return nil, fmt.Errorf("store type %q keeps nothing to inspect, use --state", cfg.Store.Type)
	}
}

// open loads the document into a registry backed by a private memory store, so that
// load-time migrations never write back to the source.
func (f *globalFlags) open(ctx context.Context, reg metrics.Registry) (*stats.Registry, error) {
	logger, err := f.logger()
	if err != nil {
		return nil, err
	}
	cfg, err := f.config()
	if err != nil {
		return nil, err
	}
	src, err := f.source(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	doc, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading statistics: %w", err)
	}

	capacity := cfg.Retention
	mem := store.NewMemoryStore()
	if doc != nil {
		if doc.Capacity > 0 {
			capacity = doc.Capacity
		}
		if err := mem.Save(ctx, doc); err != nil {
			return nil, err
		}
	}

	opts := []stats.Option{
		stats.WithLogger(logger),
		stats.WithStore(mem),
		stats.WithCapacity(capacity),
	}
	if reg != nil {
		opts = append(opts, stats.WithMetrics(reg))
	}
	return stats.New(ctx, opts...), nil
}
