// Package config loads the cloudstats server configuration.
//
// The configuration is a YAML file. Loading applies, in order: the file, environment
// overrides, defaults for anything left unset, and validation.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nomis52/cloudstats/logging"
)

// EnvRetention overrides Config.Retention.
const EnvRetention = "CLOUDSTATS_ARCHIVE_RECORDS"

const (
	defaultAddr           = ":8080"
	defaultRetention      = 100
	defaultPersistTimeout = 10 * time.Second
	defaultStorePath      = "/var/lib/cloudstats/state.json"
	defaultS3Key          = "cloudstats/state.json"
	defaultSSHTimeout     = 30 * time.Second
	defaultWorkers        = 2
	defaultQueueSize      = 64

	defaultMetricsPrefix = "cloudstats"
	defaultJobName       = "cloudstats"
)

// Store types.
const (
	StoreDisk   = "disk"
	StoreMemory = "memory"
	StoreS3     = "s3"
)

// Inventory types.
const (
	InventoryPush = "push"
	InventorySSH  = "ssh"
)

// Config represents the complete server configuration.
type Config struct {
	Listener ListenerConfig `yaml:"listener"`
	// Retention is the number of completed activities kept in history.
	Retention int `yaml:"retention"`
	// PersistTimeout bounds a single save of the statistics.
	PersistTimeout time.Duration `yaml:"persist_timeout"`
	Store          StoreConfig   `yaml:"store"`
	Sweep          SweepConfig   `yaml:"sweep"`
	// Workers run deferred completion and failure notifications.
	Workers int `yaml:"workers"`
	// QueueSize is the number of notifications buffered before extra goroutines are used.
	QueueSize int `yaml:"queue_size"`
	// Strict panics on activity contract violations instead of logging them.
	Strict     bool             `yaml:"strict"`
	Logging    logging.Config   `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// ListenerConfig holds HTTP server listener settings.
type ListenerConfig struct {
	// The listen address, defaults to :8080
	Addr string `yaml:"addr"`
	// CertFile and KeyFile enable HTTPS. Both are re-read when they change on disk.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// StoreConfig selects where the statistics are kept.
type StoreConfig struct {
	// Type is one of disk, memory or s3.
	Type string `yaml:"type"`
	// Path is the state file of the disk store.
	Path string   `yaml:"path"`
	S3   S3Config `yaml:"s3"`
}

// S3Config holds S3 compatible object storage settings.
// Credentials fall back to the AWS default chain when unset.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Key       string `yaml:"key"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PathStyle bool   `yaml:"path_style"`
}

// SweepConfig configures the reconciliation sweep.
type SweepConfig struct {
	// Schedule is a cron spec. An empty schedule disables the periodic sweep.
	Schedule  string          `yaml:"schedule"`
	Inventory InventoryConfig `yaml:"inventory"`
}

// InventoryConfig selects where the sweep learns about live resources.
type InventoryConfig struct {
	// Type is push (PUT /api/live) or ssh.
	Type string    `yaml:"type"`
	SSH  SSHConfig `yaml:"ssh"`
}

// SSHConfig runs a command over SSH that prints one activity ID per line.
type SSHConfig struct {
	Host           string        `yaml:"host"`
	User           string        `yaml:"user"`
	PrivateKeyPath string        `yaml:"private_key_path"`
	KnownHostsPath string        `yaml:"known_hosts_path"`
	Command        string        `yaml:"command"`
	Timeout        time.Duration `yaml:"timeout"`
}

// MonitoringConfig holds metrics and monitoring settings.
type MonitoringConfig struct {
	// VictoriaMetricsURL is where the CLI pushes metrics. The server is scraped instead.
	VictoriaMetricsURL string `yaml:"victoriametrics_url"`
	MetricsPrefix      string `yaml:"metrics_prefix"`
	JobName            string `yaml:"job_name"`
}

// Validate performs basic validation on the configuration.
func (c *Config) Validate() error {
	if (c.Listener.CertFile == "") != (c.Listener.KeyFile == "") {
		return fmt.Errorf("listener cert_file and key_file must be set together")
	}
	if c.Retention < 1 {
		return fmt.Errorf("retention must be positive")
	}
	if c.PersistTimeout <= 0 {
		return fmt.Errorf("persist timeout must be positive")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive")
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue size must not be negative")
	}

	switch c.Store.Type {
	case StoreMemory:
	case StoreDisk:
		if c.Store.Path == "" {
			return fmt.Errorf("store path is required for the disk store")
		}
	case StoreS3:
		if c.Store.S3.Bucket == "" {
			return fmt.Errorf("store s3 bucket is required")
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}

	switch c.Sweep.Inventory.Type {
	case InventoryPush:
	case InventorySSH:
		ssh := c.Sweep.Inventory.SSH
		if ssh.Host == "" {
			return fmt.Errorf("ssh inventory host is required")
		}
		if ssh.PrivateKeyPath == "" {
			return fmt.Errorf("ssh inventory private key path is required")
		}
		if ssh.Command == "" {
			return fmt.Errorf("ssh inventory command is required")
		}
	default:
		return fmt.Errorf("unknown inventory type %q", c.Sweep.Inventory.Type)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// SetDefaults sets reasonable default values for optional fields.
func (c *Config) SetDefaults() {
	if c.Listener.Addr == "" {
		c.Listener.Addr = defaultAddr
	}
	if c.Retention == 0 {
		c.Retention = defaultRetention
	}
	if c.PersistTimeout == 0 {
		c.PersistTimeout = defaultPersistTimeout
	}
	if c.Store.Type == "" {
		c.Store.Type = StoreDisk
	}
	if c.Store.Path == "" && c.Store.Type == StoreDisk {
		c.Store.Path = defaultStorePath
	}
	if c.Store.S3.Key == "" {
		c.Store.S3.Key = defaultS3Key
	}
	if c.Sweep.Inventory.Type == "" {
		c.Sweep.Inventory.Type = InventoryPush
	}
	if c.Sweep.Inventory.SSH.Timeout == 0 {
		c.Sweep.Inventory.SSH.Timeout = defaultSSHTimeout
	}
	if c.Workers == 0 {
		c.Workers = defaultWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.Monitoring.MetricsPrefix == "" {
		c.Monitoring.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Monitoring.JobName == "" {
		c.Monitoring.JobName = defaultJobName
	}
	c.Logging.SetDefaults()
}

// ApplyEnv overrides settings from the environment. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvRetention); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvRetention, v, err)
		}
		c.Retention = n
	}
	return nil
}

// LoadConfig reads the YAML config file at the given path and returns a validated Config.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode YAML config: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

const redacted = "REDACTED"

// Redacted returns a copy of the config with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Store.S3.AccessKey != "" {
		out.Store.S3.AccessKey = redacted
	}
	if out.Store.S3.SecretKey != "" {
		out.Store.S3.SecretKey = redacted
	}
	return &out
}
