package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nomis52/cloudstats/buildinfo"
	"github.com/nomis52/cloudstats/config"
	"github.com/nomis52/cloudstats/server"
	"github.com/nomis52/cloudstats/server/cron"
)

type Args struct {
	ConfigPath  string
	Addr        string
	ShowVersion bool
	Validate    bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args := parseArgs()

	if args.ShowVersion {
		fmt.Printf("cloudstats-server %s\n", buildinfo.Get())
		return nil
	}

	if args.ConfigPath == "" {
		return fmt.Errorf("config flag (-c or --config) is required")
	}

	if args.Validate {
		cfg, err := config.LoadConfig(args.ConfigPath)
		if err != nil {
			return err
		}
		if cfg.Sweep.Schedule != "" {
			if _, err := cron.Parse(cfg.Sweep.Schedule); err != nil {
				return fmt.Errorf("sweep schedule %q: %w", cfg.Sweep.Schedule, err)
			}
		}
		fmt.Printf("Configuration validation successful: %s\n", args.ConfigPath)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var opts []server.Option
	if args.Addr != "" {
		opts = append(opts, server.WithListenAddr(args.Addr))
	}
	srv, err := server.New(ctx, args.ConfigPath, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	props := buildinfo.Get()
	srv.Logger().Info("cloudstats started",
		"version", props.Version,
		"git_commit", props.GitCommit,
		"config_path", args.ConfigPath,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)

	go func() {
		for {
			select {
			case sig := <-sigCh:
				srv.Logger().Info("received signal, shutting down", "signal", sig)
				cancel()
				return
			case <-hupCh:
				if err := srv.Reload(); err != nil {
					srv.Logger().Error("failed to reload configuration", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return srv.Run(ctx)
}

func parseArgs() Args {
	configPath := flag.String("config", "", "Path to config file")
	configPathShort := flag.String("c", "", "Path to config file (shorthand)")
	addr := flag.String("addr", "", "Listen address, overrides listener.addr from the config")
	showVersion := flag.Bool("version", false, "Show version information")
	validate := flag.Bool("validate", false, "Validate configuration and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nCloudstats Server - provisioning activity statistics\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --config /etc/cloudstats/config.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c config.yaml --addr :9090\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c config.yaml --validate\n", os.Args[0])
	}

	flag.Parse()

	path := *configPath
	if path == "" && *configPathShort != "" {
		path = *configPathShort
	}

	return Args{
		ConfigPath:  path,
		Addr:        *addr,
		ShowVersion: *showVersion,
		Validate:    *validate,
	}
}
