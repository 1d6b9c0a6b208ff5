// Package server provides the HTTP server for cloudstats.
//
// The server owns the statistics registry and exposes it over a REST API. Orchestrators
// that run out of process report provisioning progress through the notification
// endpoints. A cron schedule runs the reconciliation sweep against the configured
// inventory of live resources.
//
// # Endpoints
//
//   - GET /health - Health check, 503 when the last save failed
//   - GET /metrics - Prometheus metrics
//   - GET /api/status - Counts, history capacity, sweep schedule and build info
//   - GET /api/activities - History followed by active activities
//   - GET /api/activities/active - Activities that have not completed
//   - GET /api/activities/{fingerprint} - One activity
//   - GET /api/activities/{fingerprint}/phases/{phase}/attachments/{n} - One attachment
//   - GET /api/index - Activities grouped by cloud, template and name
//   - POST /api/provisioning/{started,completed,failed} - Provisioning notifications
//   - POST /api/nodes/{launching,launch-failed,online,renamed,deleted} - Node notifications
//   - PUT /api/live - Replace the pushed inventory of live resources
//   - POST /api/sweep - Run the reconciliation sweep now
//   - GET /config - Returns current configuration as YAML
//   - POST /reload - Reloads configuration from disk
//
// # Example
//
//	srv, err := server.New(ctx, "/etc/cloudstats/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nomis52/cloudstats/config"
	"github.com/nomis52/cloudstats/inventory"
	"github.com/nomis52/cloudstats/logging"
	"github.com/nomis52/cloudstats/metrics"
	"github.com/nomis52/cloudstats/server/cron"
	"github.com/nomis52/cloudstats/server/handlers"
	"github.com/nomis52/cloudstats/stats"
	"github.com/nomis52/cloudstats/store"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Server is the cloudstats HTTP server.
type Server struct {
	configPath string
	addr       string
	logger     *logging.Logger
	config     atomic.Pointer[config.Config]
	reloadMu   sync.Mutex

	registry     *stats.Registry
	metrics      *metrics.ScrapeRegistry
	queue        *stats.TaskQueue
	provisioning *stats.ProvisioningListener
	operation    *stats.OperationListener
	nodes        *stats.NodeListener

	snapshot *inventory.Snapshot
	lister   stats.Lister
	sweepMu  sync.Mutex

	cronTrigger *cron.CronTrigger
	certLoader  *CertLoader
	httpServer  *http.Server
}

// Option configures a Server.
type Option func(*Server) error

// WithListenAddr overrides the listener address from the config.
func WithListenAddr(addr string) Option {
	return func(s *Server) error {
		s.addr = addr
		return nil
	}
}

// WithLister replaces the inventory selected by the config.
func WithLister(lister stats.Lister) Option {
	return func(s *Server) error {
		s.lister = lister
		s.snapshot = nil
		return nil
	}
}

// New loads the config at configPath and builds the registry and its collaborators.
// Stored statistics are loaded before New returns.
func New(ctx context.Context, configPath string, opts ...Option) (*Server, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	s := &Server{
		configPath: configPath,
		addr:       cfg.Listener.Addr,
		logger:     logger,
	}
	s.config.Store(cfg)

	if err := s.buildRegistry(ctx, cfg); err != nil {
		return nil, err
	}
	if err := s.buildInventory(cfg); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if cfg.Sweep.Schedule != "" {
		trigger, err := cron.NewCronTrigger(cfg.Sweep.Schedule, s.sweepJob, s.Logger())
		if err != nil {
			return nil, fmt.Errorf("creating cron trigger: %w", err)
		}
		s.cronTrigger = trigger
	}

	if cfg.Listener.CertFile != "" {
		loader, err := NewCertLoader(cfg.Listener.CertFile, cfg.Listener.KeyFile, s.Logger())
		if err != nil {
			return nil, err
		}
		s.certLoader = loader
	}

	return s, nil
}

func (s *Server) buildRegistry(ctx context.Context, cfg *config.Config) error {
	st, err := newStore(ctx, cfg, s.Logger())
	if err != nil {
		return err
	}

	s.metrics, err = metrics.NewScrapeRegistry(cfg.Monitoring.MetricsPrefix)
	if err != nil {
		return fmt.Errorf("creating metrics registry: %w", err)
	}

	s.registry = stats.New(ctx,
		stats.WithLogger(s.Logger()),
		stats.WithStore(st),
		stats.WithCapacity(cfg.Retention),
		stats.WithMetrics(s.metrics),
		stats.WithStrict(cfg.Strict),
		stats.WithPersistTimeout(cfg.PersistTimeout),
	)
	stats.SetGlobal(s.registry)

	s.queue = stats.NewTaskQueue(cfg.Workers, cfg.QueueSize, s.Logger())
	listenerOpts := []stats.ListenerOption{
		stats.WithListenerLogger(s.Logger()),
		stats.WithExecutor(s.queue),
	}
	s.provisioning = stats.NewProvisioningListener(s.registry, listenerOpts...)
	s.operation = stats.NewOperationListener(s.registry, listenerOpts...)
	s.nodes = stats.NewNodeListener(s.registry, listenerOpts...)
	return nil
}

func newStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (stats.Store, error) {
	switch cfg.Store.Type {
	case config.StoreMemory:
		return store.NewMemoryStore(), nil
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
	default:
		return store.NewDiskStore(cfg.Store.Path, logger)
	}
}

func (s *Server) buildInventory(cfg *config.Config) error {
	if cfg.Sweep.Inventory.Type != config.InventorySSH {
		s.snapshot = inventory.NewSnapshot()
		s.lister = s.snapshot
		return nil
	}

	sshCfg := cfg.Sweep.Inventory.SSH
	lister, err := inventory.NewSSHListerFromFile(inventory.SSHConfig{
		Host:           sshCfg.Host,
		User:           sshCfg.User,
		KnownHostsPath: sshCfg.KnownHostsPath,
		Command:        sshCfg.Command,
		Timeout:        sshCfg.Timeout,
	}, sshCfg.PrivateKeyPath)
	if err != nil {
		return fmt.Errorf("creating ssh inventory: %w", err)
	}
	s.lister = lister
	return nil
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger.Logger
}

// Registry returns the statistics registry.
func (s *Server) Registry() *stats.Registry {
	return s.registry
}

// Config returns the current configuration.
func (s *Server) Config() *config.Config {
	return s.config.Load()
}

// Reload reads the config from disk. A changed retention resizes history and a changed
// log level applies immediately. Other settings need a restart.
func (s *Server) Reload() error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	cfg, err := config.LoadConfig(s.configPath)
	if err != nil {
		return err
	}
	old := s.Config()

	if cfg.Logging.Level != old.Logging.Level {
		if err := s.logger.SetLevel(cfg.Logging.Level); err != nil {
			return err
		}
	}
	if cfg.Retention != old.Retention {
		if err := s.registry.Resize(cfg.Retention); err != nil {
			return err
		}
	}
	if cfg.Store != old.Store || cfg.Sweep != old.Sweep || cfg.Listener != old.Listener {
		s.Logger().Warn("store, sweep and listener changes take effect after a restart")
	}

	s.config.Store(cfg)
	s.Logger().Info("configuration loaded", "config_path", s.configPath)
	return nil
}

// Sweep completes activities whose resources are no longer live.
func (s *Server) Sweep(ctx context.Context) (int, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()
	return s.registry.Sweep(ctx, s.lister)
}

func (s *Server) sweepJob(ctx context.Context) error {
	n, err := s.Sweep(ctx)
	if err != nil {
		return err
	}
	s.Logger().Info("sweep completed", "archived", n)
	return nil
}

// Handler returns the HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled.
// On shutdown the deferred notification queue is drained and the statistics are saved.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}
	if s.certLoader != nil {
		s.httpServer.TLSConfig = &tls.Config{GetCertificate: s.certLoader.GetCertificate}
	}

	if s.cronTrigger != nil {
		s.logger.Info("starting sweep schedule",
			"schedule", s.cronTrigger.Spec(),
			"next_run", s.cronTrigger.NextRun(),
		)
		s.cronTrigger.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"addr", s.addr,
			"config_path", s.configPath,
			"tls", s.certLoader != nil,
		)
		var err error
		if s.certLoader != nil {
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.shutdown()
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		s.shutdown()
		return err
	}
}

// shutdown drains deferred notifications and saves the final state.
func (s *Server) shutdown() {
	s.queue.Close()

	ctx, cancel := context.WithTimeout(context.Background(), s.Config().PersistTimeout)
	defer cancel()
	if err := s.registry.Save(ctx); err != nil {
		s.logger.Error("failed to save statistics on shutdown", "error", err)
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	notifications := handlers.NewNotificationHandlers(s.provisioning, s.operation, s.nodes, s.registry)

	var schedule handlers.SweepSchedule
	if s.cronTrigger != nil {
		schedule = s.cronTrigger
	}

	mux.Handle("GET /health", handlers.NewHealthHandler(s.registry))
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.Handle("GET /config", handlers.NewConfigHandler(s))
	mux.Handle("POST /reload", handlers.NewReloadHandler(s.Logger(), s))

	mux.Handle("GET /api/status", handlers.NewStatusHandler(s.registry, schedule))
	mux.Handle("GET /api/activities", handlers.NewActivitiesHandler(s.registry))
	mux.Handle("GET /api/activities/active", handlers.NewActiveActivitiesHandler(s.registry))
	mux.Handle("GET /api/activities/{fingerprint}", handlers.NewActivityHandler(s.registry))
	mux.Handle("GET /api/activities/{fingerprint}/phases/{phase}/attachments/{n}", handlers.NewAttachmentHandler(s.registry))
	mux.Handle("GET /api/index", handlers.NewIndexHandler(s.registry))

	mux.HandleFunc("POST /api/provisioning/started", notifications.HandleStarted)
	mux.HandleFunc("POST /api/provisioning/completed", notifications.HandleCompleted)
	mux.HandleFunc("POST /api/provisioning/failed", notifications.HandleFailed)
	mux.HandleFunc("POST /api/nodes/launching", notifications.HandleLaunching)
	mux.HandleFunc("POST /api/nodes/launch-failed", notifications.HandleLaunchFailed)
	mux.HandleFunc("POST /api/nodes/online", notifications.HandleOnline)
	mux.HandleFunc("POST /api/nodes/renamed", notifications.HandleRenamed)
	mux.HandleFunc("POST /api/nodes/deleted", notifications.HandleDeleted)

	mux.Handle("POST /api/sweep", handlers.NewSweepHandler(s.Logger(), s))
	if s.snapshot != nil {
		mux.Handle("PUT /api/live", handlers.NewLiveHandler(s.Logger(), s.snapshot))
	}
}
