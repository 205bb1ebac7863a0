package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

// testPrivateKey generates a throwaway ed25519 key in PEM form.
func testPrivateKey(t *testing.T) []byte {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}
	return pem.EncodeToMemory(block)
}

func TestNewClient_Success(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Host:       "198.51.100.10",
		User:       "ubuntu",
		PrivateKey: testPrivateKey(t),
	}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// Verify defaults were applied
	if client.config.Port != defaultPort {
		t.Errorf("expected port %d, got %d", defaultPort, client.config.Port)
	}
	if client.config.DialTimeout != defaultDialTimeout {
		t.Errorf("expected dial timeout %v, got %v", defaultDialTimeout, client.config.DialTimeout)
	}
	if client.config.ConnectTimeout != defaultConnectTimeout {
		t.Errorf("expected connect timeout %v, got %v", defaultConnectTimeout, client.config.ConnectTimeout)
	}

	// The caller's struct must not be mutated.
	if cfg.Port != 0 {
		t.Errorf("caller config mutated: port = %d", cfg.Port)
	}
}

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()
	key := testPrivateKey(t)

	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"missing host", &Config{User: "ubuntu", PrivateKey: key}},
		{"missing user", &Config{Host: "h", PrivateKey: key}},
		{"missing key", &Config{Host: "h", User: "ubuntu"}},
		{"garbage key", &Config{Host: "h", User: "ubuntu", PrivateKey: []byte("garbage")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewClient(tt.cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestConnect_UnreachableAfterTimeout(t *testing.T) {
	t.Parallel()
	client, err := NewClient(&Config{
		// Reserved TEST-NET address; nothing listens there.
		Host:           "192.0.2.1",
		User:           "ubuntu",
		PrivateKey:     testPrivateKey(t),
		DialTimeout:    50 * time.Millisecond,
		ConnectTimeout: 200 * time.Millisecond,
		RetryDelay:     50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	_, err = client.Connect(context.Background())
	if err == nil {
		t.Fatal("expected connect to fail, got nil")
	}
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("expected ErrUnreachable, got: %v", err)
	}
}

func TestConnect_RespectsCancellation(t *testing.T) {
	t.Parallel()
	client, err := NewClient(&Config{
		Host:           "192.0.2.1",
		User:           "ubuntu",
		PrivateKey:     testPrivateKey(t),
		DialTimeout:    50 * time.Millisecond,
		ConnectTimeout: time.Hour,
		RetryDelay:     50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = client.Connect(ctx)
	if err == nil {
		t.Fatal("expected connect to fail, got nil")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation not honored promptly, took %v", elapsed)
	}
}

func TestCommandError_Message(t *testing.T) {
	t.Parallel()
	err := &CommandError{Command: "docker start xtts-server", ExitStatus: 125, Output: "no such container"}

	var cmdErr *CommandError
	if !errors.As(error(err), &cmdErr) {
		t.Fatal("expected errors.As to match *CommandError")
	}
	if cmdErr.ExitStatus != 125 {
		t.Errorf("expected exit status 125, got %d", cmdErr.ExitStatus)
	}
	want := "remote command failed with exit status 125: docker start xtts-server"
	if err.Error() != want {
		t.Errorf("unexpected message: %q", err.Error())
	}
}
