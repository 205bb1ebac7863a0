// Package ssh executes commands and transfers files on a remote host.
//
// A freshly booted instance's SSH service may take minutes to accept
// connections, so Connect retries with bounded backoff up to a
// connectivity timeout; only then does it surface ErrUnreachable.
//
// Security: host key verification is disabled by default for ephemeral
// infrastructure. Configure HostKeyCallback when targeting persistent
// servers.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/voicekit/xttsdeploy/internal/util/retry"
)

const (
	defaultPort           = 22
	defaultDialTimeout    = 10 * time.Second
	defaultConnectTimeout = 5 * time.Minute
	defaultRetryDelay     = 5 * time.Second
)

// ErrUnreachable indicates the SSH service never accepted a connection
// within the connectivity timeout.
var ErrUnreachable = errors.New("host unreachable")

// CommandError reports a remote command that exited non-zero.
// The caller decides whether that is fatal.
type CommandError struct {
	Command    string
	ExitStatus int
	Output     string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("remote command failed with exit status %d: %s", e.ExitStatus, e.Command)
}

// Communicator is the remote execution surface the builder and
// coordinator depend on.
type Communicator interface {
	// Run executes a command and returns its exit status and combined
	// output. A non-zero exit returns a *CommandError.
	Run(ctx context.Context, command string) (int, string, error)
	// Upload writes data to remotePath, creating parent directories.
	Upload(ctx context.Context, data []byte, remotePath string) error
}

// Config holds SSH client configuration.
type Config struct {
	Host       string
	Port       int
	User       string
	PrivateKey []byte

	// DialTimeout is the timeout for a single TCP connection attempt.
	// If zero, defaultDialTimeout is used.
	DialTimeout time.Duration

	// ConnectTimeout bounds the whole retried connection phase.
	// If zero, defaultConnectTimeout is used.
	ConnectTimeout time.Duration

	// RetryDelay is the delay between connection attempts.
	// If zero, defaultRetryDelay is used.
	RetryDelay time.Duration

	// HostKeyCallback handles host key verification.
	// If nil, ssh.InsecureIgnoreHostKey() is used.
	HostKeyCallback ssh.HostKeyCallback
}

// Client dials sessions against one remote host.
// It parses the private key once during construction.
type Client struct {
	config *Config
	signer ssh.Signer
}

// NewClient creates a new SSH client and validates the private key.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("config host cannot be empty")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("config user cannot be empty")
	}
	if len(cfg.PrivateKey) == 0 {
		return nil, fmt.Errorf("config private key cannot be empty")
	}

	// Copy config to avoid mutating caller's struct
	configCopy := *cfg
	if configCopy.Port == 0 {
		configCopy.Port = defaultPort
	}
	if configCopy.DialTimeout == 0 {
		configCopy.DialTimeout = defaultDialTimeout
	}
	if configCopy.ConnectTimeout == 0 {
		configCopy.ConnectTimeout = defaultConnectTimeout
	}
	if configCopy.RetryDelay == 0 {
		configCopy.RetryDelay = defaultRetryDelay
	}
	if configCopy.HostKeyCallback == nil {
		configCopy.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // Default for ephemeral infrastructure
	}

	signer, err := ssh.ParsePrivateKey(configCopy.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &Client{
		config: &configCopy,
		signer: signer,
	}, nil
}

// Connect establishes a session, retrying the dial until the
// connectivity timeout elapses. The returned Session must be closed by
// the caller on all exit paths.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	clientConfig := &ssh.ClientConfig{
		User: c.config.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(c.signer),
		},
		HostKeyCallback: c.config.HostKeyCallback,
		Timeout:         c.config.DialTimeout,
	}

	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	attempts := int(c.config.ConnectTimeout/c.config.RetryDelay) + 1

	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	var client *ssh.Client
	err := retry.Do(ctx, func() error {
		var dialErr error
		client, dialErr = ssh.Dial("tcp", addr, clientConfig)
		return dialErr
	},
		retry.WithMaxAttempts(attempts),
		retry.WithConstantDelay(c.config.RetryDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s after %v: %w", ErrUnreachable, addr, c.config.ConnectTimeout, err)
	}

	return &Session{client: client, host: c.config.Host}, nil
}

// Session is an established SSH connection to one host.
type Session struct {
	client *ssh.Client
	host   string
}

var _ Communicator = (*Session)(nil)

// Run executes a command and returns its exit status and combined output.
// A non-zero exit returns (status, output, *CommandError); transport
// failures return a plain error.
func (s *Session) Run(ctx context.Context, command string) (int, string, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return -1, "", fmt.Errorf("failed to create SSH session on %s: %w", s.host, err)
	}
	defer func() { _ = session.Close() }()

	// CombinedOutput blocks; watch the context so cancellation between
	// polls also interrupts an in-flight command.
	done := make(chan struct{})
	var output []byte
	var runErr error
	go func() {
		output, runErr = session.CombinedOutput(command)
		close(done)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		<-done
		return -1, string(output), fmt.Errorf("command cancelled on %s: %w", s.host, ctx.Err())
	case <-done:
	}

	if runErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			return exitErr.ExitStatus(), string(output), &CommandError{
				Command:    command,
				ExitStatus: exitErr.ExitStatus(),
				Output:     string(output),
			}
		}
		return -1, string(output), fmt.Errorf("command failed on %s: %w", s.host, runErr)
	}

	return 0, string(output), nil
}

// Upload writes data to remotePath over the session, creating parent
// directories first. Content goes through stdin, so no scp or sftp
// subsystem is required on the remote side.
func (s *Session) Upload(ctx context.Context, data []byte, remotePath string) error {
	dir := path.Dir(remotePath)
	if dir != "." && dir != "/" {
		if _, out, err := s.Run(ctx, fmt.Sprintf("mkdir -p %q", dir)); err != nil {
			return fmt.Errorf("failed to create remote directory %s: %w (output: %s)", dir, err, out)
		}
	}

	session, err := s.client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create SSH session on %s: %w", s.host, err)
	}
	defer func() { _ = session.Close() }()

	session.Stdin = bytes.NewReader(data)
	if err := session.Run(fmt.Sprintf("cat > %q", remotePath)); err != nil {
		return fmt.Errorf("failed to upload %d bytes to %s:%s: %w", len(data), s.host, remotePath, err)
	}
	return nil
}

// Close releases the underlying connection.
func (s *Session) Close() error {
	return s.client.Close()
}
