package deploy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voicekit/xttsdeploy/internal/build"
	"github.com/voicekit/xttsdeploy/internal/config"
	"github.com/voicekit/xttsdeploy/internal/health"
	"github.com/voicekit/xttsdeploy/internal/observe"
	"github.com/voicekit/xttsdeploy/internal/platform/aws"
	"github.com/voicekit/xttsdeploy/internal/platform/ssh"
)

type fakeProvisioner struct {
	instance *aws.Instance
	err      error
}

func (f *fakeProvisioner) Acquire(context.Context) (*aws.Instance, error) {
	return f.instance, f.err
}

// fakeSession scripts remote command results keyed by substring match.
type fakeSession struct {
	mu      sync.Mutex
	failing []string
	ran     []string

	// blockOnce makes the first Run call wait for ctx cancellation.
	blockOnce sync.Once
	blocking  bool
	started   chan struct{}
}

func (s *fakeSession) Run(ctx context.Context, command string) (int, string, error) {
	if s.blocking {
		var blocked bool
		s.blockOnce.Do(func() {
			blocked = true
			if s.started != nil {
				close(s.started)
			}
			<-ctx.Done()
		})
		if blocked {
			return -1, "", ctx.Err()
		}
	}

	s.mu.Lock()
	s.ran = append(s.ran, command)
	failing := append([]string(nil), s.failing...)
	s.mu.Unlock()

	for _, substr := range failing {
		if strings.Contains(command, substr) {
			return 1, "simulated failure", &ssh.CommandError{Command: command, ExitStatus: 1, Output: "simulated failure"}
		}
	}
	return 0, "ok", nil
}

func (s *fakeSession) Upload(context.Context, []byte, string) error { return nil }
func (s *fakeSession) Close() error                                 { return nil }

func (s *fakeSession) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ran...)
}

func (s *fakeSession) setFailing(substrs ...string) {
	s.mu.Lock()
	s.failing = substrs
	s.mu.Unlock()
}

// stubVerifier reports a fixed verdict with n probe results.
type stubVerifier struct {
	healthy bool
	n       int
}

func (v *stubVerifier) Verify(context.Context, string, health.Config) ([]health.Result, bool, error) {
	results := make([]health.Result, v.n)
	for i := range results {
		results[i] = health.Result{Attempt: i + 1, Outcome: health.OutcomeOk}
	}
	return results, v.healthy, nil
}

func testDeployConfig(port int) *config.Config {
	return &config.Config{
		Project: "xtts",
		Region:  "us-east-1",
		Instance: config.InstanceConfig{
			Type:         "g4dn.xlarge",
			AllocationID: "eipalloc-0123456789abcdef0",
		},
		Build: config.BuildConfig{
			SourceDir: "/opt/xtts",
			Variants: []config.BuildVariant{
				{Name: "gpu-optimized", Recipe: "docker build -f Dockerfile.gpu -t xtts:gpu .", ImageRef: "xtts:gpu"},
				{Name: "cpu-fallback", Recipe: "docker build -f Dockerfile -t xtts:cpu .", ImageRef: "xtts:cpu"},
			},
		},
		Workload: config.WorkloadConfig{
			ContainerName: "xtts-server",
			Port:          port,
			DeviceMode:    config.DeviceGPU,
		},
		Health: config.HealthConfig{
			Path:           "/health",
			MaxAttempts:    5,
			Interval:       10 * time.Millisecond,
			RequestTimeout: 100 * time.Millisecond,
		},
	}
}

func newTestCoordinator(t *testing.T, session *fakeSession, cfg *config.Config, verifier Verifier) *Coordinator {
	t.Helper()
	return NewCoordinator(Options{
		Provisioner: &fakeProvisioner{instance: &aws.Instance{ID: "i-test", State: aws.StateRunning, PublicIP: "127.0.0.1"}},
		Connect: func(context.Context, string) (Session, error) {
			return session, nil
		},
		NewBuilder: func(runner ssh.Communicator) ArtifactBuilder {
			return build.NewBuilder(runner, cfg.Build.Variants, time.Minute, observe.Nop{})
		},
		Verifier: verifier,
		Config:   cfg,
		Timeouts: &config.Timeouts{Activation: time.Minute},
		Observer: observe.Nop{},
	})
}

// The primary build fails, the fallback succeeds, and the deployment
// still ends healthy with the degraded artifact recorded.
func TestDeploy_FallbackBuildEndsHealthy(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	_, portStr, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.Atoi(portStr)

	session := &fakeSession{}
	session.setFailing("Dockerfile.gpu")
	cfg := testDeployConfig(port)
	c := newTestCoordinator(t, session, cfg, health.NewVerifier(nil, observe.Nop{}))

	record, err := c.Deploy(context.Background())
	if err != nil {
		t.Fatalf("expected healthy deploy, got: %v", err)
	}
	if record.Outcome != OutcomeHealthy {
		t.Errorf("expected healthy outcome, got %s", record.Outcome)
	}
	if record.Artifact != "xtts:cpu" {
		t.Errorf("expected the fallback artifact to serve, got %s", record.Artifact)
	}
	if !record.Degraded() {
		t.Error("a fallback build serving must be flagged degraded")
	}
	if len(record.BuildAttempts) != 2 ||
		record.BuildAttempts[0].Outcome != build.OutcomeFailed ||
		record.BuildAttempts[1].Outcome != build.OutcomeSuccess {
		t.Errorf("attempt log must read [failed, success], got %+v", record.BuildAttempts)
	}
	if len(record.Health) == 0 || record.Health[len(record.Health)-1].Outcome != health.OutcomeOk {
		t.Errorf("record must carry the probe history, got %+v", record.Health)
	}
}

// The workload never answers: verification exhausts its budget and the
// record carries exactly one result per probe.
func TestDeploy_UnreachableWorkloadEndsUnhealthy(t *testing.T) {
	t.Parallel()
	session := &fakeSession{}
	cfg := testDeployConfig(1) // nothing listens on port 1
	c := newTestCoordinator(t, session, cfg, health.NewVerifier(nil, observe.Nop{}))

	record, err := c.Deploy(context.Background())
	if err == nil {
		t.Fatal("expected verification failure")
	}
	var verr *VerificationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *VerificationError, got %T: %v", err, err)
	}
	if record.Outcome != OutcomeUnhealthy {
		t.Errorf("expected unhealthy outcome, got %s", record.Outcome)
	}
	if len(record.Health) != cfg.Health.MaxAttempts {
		t.Errorf("expected exactly %d probe results, got %d", cfg.Health.MaxAttempts, len(record.Health))
	}
	if verr.Probes != cfg.Health.MaxAttempts {
		t.Errorf("error should report %d probes, got %d", cfg.Health.MaxAttempts, verr.Probes)
	}
}

func TestDeploy_AllBuildsFail(t *testing.T) {
	t.Parallel()
	session := &fakeSession{}
	session.setFailing("docker build")
	cfg := testDeployConfig(8020)
	c := newTestCoordinator(t, session, cfg, &stubVerifier{healthy: true, n: 1})

	record, err := c.Deploy(context.Background())
	if err == nil {
		t.Fatal("expected build exhaustion")
	}
	var exhausted *build.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *ExhaustedError, got %T: %v", err, err)
	}
	if record == nil || record.Outcome != OutcomePending {
		t.Errorf("record should survive with pending outcome, got %+v", record)
	}
	if len(record.BuildAttempts) != 2 {
		t.Errorf("record must carry the full attempt log, got %d", len(record.BuildAttempts))
	}
	// No activation may have been attempted.
	for _, cmd := range session.commands() {
		if strings.Contains(cmd, "docker run") {
			t.Errorf("activation ran despite build failure: %s", cmd)
		}
	}
}

// A failed activation rolls back once to the artifact that last verified
// healthy on the host.
func TestDeploy_ActivationFailureRollsBack(t *testing.T) {
	t.Parallel()
	session := &fakeSession{}
	cfg := testDeployConfig(8020)
	c := newTestCoordinator(t, session, cfg, &stubVerifier{healthy: true, n: 1})

	// First deploy establishes xtts:gpu as last known-good.
	if _, err := c.Deploy(context.Background()); err != nil {
		t.Fatalf("seed deploy failed: %v", err)
	}

	// Force the next build onto the fallback and fail its activation.
	session.setFailing("Dockerfile.gpu", "--gpus all xtts:cpu")

	record, err := c.Deploy(context.Background())
	if err == nil {
		t.Fatal("expected activation failure to surface")
	}
	var actErr *ActivationError
	if !errors.As(err, &actErr) {
		t.Fatalf("expected *ActivationError, got %T: %v", err, err)
	}
	if record.Outcome != OutcomeRolledBack {
		t.Errorf("expected rolled-back outcome, got %s", record.Outcome)
	}

	// The last command must be the restart of the known-good artifact.
	cmds := session.commands()
	last := cmds[len(cmds)-1]
	if !strings.Contains(last, "xtts:gpu") || !strings.Contains(last, "docker run") {
		t.Errorf("rollback should restart xtts:gpu, last command was: %s", last)
	}
}

func TestDeploy_RollbackFailureReportsBothCauses(t *testing.T) {
	t.Parallel()
	session := &fakeSession{}
	cfg := testDeployConfig(8020)
	c := newTestCoordinator(t, session, cfg, &stubVerifier{healthy: true, n: 1})

	if _, err := c.Deploy(context.Background()); err != nil {
		t.Fatalf("seed deploy failed: %v", err)
	}

	// Every subsequent start fails: activation and rollback alike.
	session.setFailing("Dockerfile.gpu", "docker run")

	record, err := c.Deploy(context.Background())
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(err.Error(), "rollback") {
		t.Errorf("error should mention the failed rollback: %v", err)
	}
	if record.Outcome == OutcomeRolledBack {
		t.Error("a failed rollback must not claim rolled-back")
	}
}

// A newer deploy for the same identity cancels the one in flight.
func TestDeploy_NewerDeploySupersedes(t *testing.T) {
	t.Parallel()
	blocked := &fakeSession{blocking: true, started: make(chan struct{})}
	cfg := testDeployConfig(8020)
	c := newTestCoordinator(t, blocked, cfg, &stubVerifier{healthy: true, n: 1})

	var firstErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, firstErr = c.Deploy(context.Background())
	}()

	<-blocked.started
	record, err := c.Deploy(context.Background())
	if err != nil {
		t.Fatalf("second deploy should win, got: %v", err)
	}
	if record.Outcome != OutcomeHealthy {
		t.Errorf("second deploy should end healthy, got %s", record.Outcome)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("first deploy never returned")
	}
	if !errors.Is(firstErr, ErrSuperseded) {
		t.Errorf("first deploy should report supersession, got: %v", firstErr)
	}
}

func TestDeploy_ProvisioningFailureHasNoRecord(t *testing.T) {
	t.Parallel()
	cfg := testDeployConfig(8020)
	c := NewCoordinator(Options{
		Provisioner: &fakeProvisioner{err: errors.New("no capacity")},
		Connect: func(context.Context, string) (Session, error) {
			t.Fatal("must not connect when provisioning failed")
			return nil, nil
		},
		NewBuilder: func(runner ssh.Communicator) ArtifactBuilder {
			return build.NewBuilder(runner, cfg.Build.Variants, time.Minute, observe.Nop{})
		},
		Verifier: &stubVerifier{},
		Config:   cfg,
		Timeouts: &config.Timeouts{Activation: time.Minute},
		Observer: observe.Nop{},
	})

	record, err := c.Deploy(context.Background())
	if err == nil {
		t.Fatal("expected provisioning error")
	}
	if record != nil {
		t.Errorf("no host was acquired, record should be nil, got %+v", record)
	}
}
