package inventory

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/nomis52/cloudstats/activity"
)

const (
	defaultSSHPort    = "22"
	defaultSSHTimeout = 30 * time.Second
)

// SSHConfig configures an SSHLister.
type SSHConfig struct {
	// Host is host or host:port. The port defaults to 22.
	Host string
	// User to log in as.
	User string
	// PrivateKey is the PEM encoded private key.
	PrivateKey []byte
	// KnownHostsPath verifies the host key. Host keys are not verified if empty.
	KnownHostsPath string
	// Command prints one activity ID per line.
	Command string
	// Timeout bounds connecting and running Command. Defaults to 30s.
	Timeout time.Duration
}

// SSHLister lists live resources by running a command over SSH.
// Every List opens a fresh connection.
type SSHLister struct {
	addr    string
	command string
	timeout time.Duration
	config  *ssh.ClientConfig
}

// NewSSHLister validates cfg and parses the key. It does not connect.
func NewSSHLister(cfg SSHConfig) (*SSHLister, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("ssh inventory: host is required")
	}
	if cfg.Command == "" {
		return nil, fmt.Errorf("ssh inventory: command is required")
	}

	signer, err := ssh.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsPath != "" {
		hostKeyCallback, err = knownhosts.New(cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultSSHTimeout
	}

	addr := cfg.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, defaultSSHPort)
	}

	return &SSHLister{
		addr:    addr,
		command: cfg.Command,
		timeout: timeout,
		config: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKeyCallback,
			Timeout:         timeout,
		},
	}, nil
}

// NewSSHListerFromFile is NewSSHLister with the private key read from keyPath.
func NewSSHListerFromFile(cfg SSHConfig, keyPath string) (*SSHLister, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	cfg.PrivateKey = key
	return NewSSHLister(cfg)
}

// List runs the command and parses its output.
func (l *SSHLister) List(ctx context.Context) ([]activity.ID, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	client, err := l.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	stdout, stderr, err := run(ctx, client, l.command)
	if err != nil {
		return nil, fmt.Errorf("failed to run %q: %w: %s", l.command, err, strings.TrimSpace(stderr))
	}
	return ParseLines(strings.NewReader(stdout))
}

func (l *SSHLister) dial(ctx context.Context) (*ssh.Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", l.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial SSH: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, l.addr, l.config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to dial SSH: %w", err)
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// run executes command in a new session. Cancelling ctx closes the session.
func run(ctx context.Context, client *ssh.Client, command string) (string, string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", "", fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case err := <-done:
		return stdoutBuf.String(), stderrBuf.String(), err
	case <-ctx.Done():
		session.Close()
		return "", "", ctx.Err()
	}
}
