// Package deploy drives the deployment pipeline: acquire capacity, build
// an artifact over the tiered fallback chain, swap the serving workload,
// and gate success on the inference endpoint answering.
//
// A run ends in exactly one of the terminal outcomes in record.go; no
// stage failure is silent, and a failed activation rolls back once to
// the last artifact that verified healthy on the same host.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/voicekit/xttsdeploy/internal/build"
	"github.com/voicekit/xttsdeploy/internal/config"
	"github.com/voicekit/xttsdeploy/internal/health"
	"github.com/voicekit/xttsdeploy/internal/observe"
	"github.com/voicekit/xttsdeploy/internal/platform/aws"
	"github.com/voicekit/xttsdeploy/internal/platform/ssh"
)

// VerificationError reports that the workload never answered healthy
// within its probe budget.
type VerificationError struct {
	Endpoint string
	Probes   int
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("workload at %s did not answer healthy after %d probes", e.Endpoint, e.Probes)
}

// Provisioner acquires the target instance.
type Provisioner interface {
	Acquire(ctx context.Context) (*aws.Instance, error)
}

// ArtifactBuilder produces a deployable artifact on the connected host.
type ArtifactBuilder interface {
	Build(ctx context.Context, sourceDir string) (string, []build.Attempt, error)
}

// Verifier gates deployment success on the workload answering.
type Verifier interface {
	Verify(ctx context.Context, endpoint string, cfg health.Config) ([]health.Result, bool, error)
}

// Session is an established remote channel to the target host.
type Session interface {
	ssh.Communicator
	Close() error
}

// Connector opens a Session to a host.
type Connector func(ctx context.Context, host string) (Session, error)

// Options wires a Coordinator.
type Options struct {
	Provisioner Provisioner
	Connect     Connector
	// NewBuilder constructs the builder over an established session.
	NewBuilder func(runner ssh.Communicator) ArtifactBuilder
	Verifier   Verifier
	Config     *config.Config
	Timeouts   *config.Timeouts
	Observer   observe.Observer
}

// Coordinator runs deployments and remembers, per network identity, the
// last artifact that verified healthy so a failed activation has
// something to roll back to.
type Coordinator struct {
	opts Options

	mu       sync.Mutex
	active   map[string]*run
	lastGood map[string]string
}

// run identifies one in-flight deployment for supersede bookkeeping.
type run struct {
	cancel context.CancelCauseFunc
}

// ErrSuperseded is the cancellation cause when a newer deploy for the
// same identity takes over.
var ErrSuperseded = errors.New("superseded by a newer deployment")

// NewCoordinator creates a coordinator.
func NewCoordinator(opts Options) *Coordinator {
	return &Coordinator{
		opts:     opts,
		active:   make(map[string]*run),
		lastGood: make(map[string]string),
	}
}

// Deploy runs the full pipeline once. Starting a second deploy for the
// same network identity cancels the one in flight: the newest request
// wins. The returned record is non-nil whenever provisioning yielded a
// host, even on failure, so callers always have the audit trail.
func (c *Coordinator) Deploy(ctx context.Context) (*Record, error) {
	identity := c.opts.Config.Instance.AllocationID
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	me := &run{cancel: cancel}
	c.mu.Lock()
	if prior, ok := c.active[identity]; ok {
		prior.cancel(ErrSuperseded)
	}
	c.active[identity] = me
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		// Only clear the slot if a newer deploy has not replaced us.
		if c.active[identity] == me {
			delete(c.active, identity)
		}
		c.mu.Unlock()
	}()

	record, err := c.run(ctx)
	if err != nil && errors.Is(context.Cause(ctx), ErrSuperseded) {
		err = fmt.Errorf("%w: %w", ErrSuperseded, err)
	}
	if record != nil {
		deploymentsTotal.WithLabelValues(string(record.Outcome)).Inc()
	}
	return record, err
}

func (c *Coordinator) run(ctx context.Context) (*Record, error) {
	cfg := c.opts.Config
	record := &Record{
		StartedAt: time.Now(),
		Outcome:   OutcomePending,
		Workload:  cfg.Workload,
	}
	defer func() { record.FinishedAt = time.Now() }()

	var instance *aws.Instance
	err := c.stage(StageProvisioning, func() error {
		var err error
		instance, err = c.opts.Provisioner.Acquire(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	record.Host = instance.PublicIP
	record.InstanceID = instance.ID

	session, err := c.opts.Connect(ctx, instance.PublicIP)
	if err != nil {
		record.Err = err
		return record, fmt.Errorf("failed to reach host %s: %w", instance.PublicIP, err)
	}
	defer session.Close()

	var artifact string
	err = c.stage(StageBuilding, func() error {
		var buildErr error
		artifact, record.BuildAttempts, buildErr = c.opts.NewBuilder(session).Build(ctx, cfg.Build.SourceDir)
		for _, a := range record.BuildAttempts {
			buildAttemptsTotal.WithLabelValues(a.Variant, string(a.Outcome)).Inc()
		}
		return buildErr
	})
	if err != nil {
		record.Err = err
		return record, err
	}
	record.Artifact = artifact

	err = c.stage(StageActivating, func() error {
		return c.activate(ctx, session, artifact)
	})
	if err != nil {
		return c.rollback(ctx, session, record, err)
	}

	endpoint := fmt.Sprintf("http://%s:%d%s", instance.PublicIP, cfg.Workload.Port, cfg.Health.Path)
	var healthy bool
	err = c.stage(StageVerifying, func() error {
		var verifyErr error
		record.Health, healthy, verifyErr = c.opts.Verifier.Verify(ctx, endpoint, health.Config{
			MaxAttempts:    cfg.Health.MaxAttempts,
			Interval:       cfg.Health.Interval,
			RequestTimeout: cfg.Health.RequestTimeout,
		})
		return verifyErr
	})
	if err != nil {
		record.Err = err
		return record, err
	}

	if !healthy {
		record.Outcome = OutcomeUnhealthy
		record.Err = &VerificationError{Endpoint: endpoint, Probes: len(record.Health)}
		return record, record.Err
	}

	record.Outcome = OutcomeHealthy
	c.mu.Lock()
	c.lastGood[instance.PublicIP] = artifact
	c.mu.Unlock()

	if record.Degraded() {
		degradedDeployments.Inc()
		c.opts.Observer.Printf("deployment healthy but DEGRADED: serving fallback artifact %s", artifact)
	}
	return record, nil
}

// activate swaps the workload container within the activation timeout.
func (c *Coordinator) activate(ctx context.Context, session Session, artifact string) error {
	ctx, cancelTimeout := context.WithTimeout(ctx, c.opts.Timeouts.Activation)
	defer cancelTimeout()
	act := &activator{runner: session, workload: c.opts.Config.Workload}
	return act.Activate(ctx, artifact)
}

// rollback restarts the last known-good artifact after a failed
// activation. It runs at most once, never recurses, and if it fails too
// the caller gets both causes.
func (c *Coordinator) rollback(ctx context.Context, session Session, record *Record, actErr error) (*Record, error) {
	record.Err = actErr

	c.mu.Lock()
	previous, ok := c.lastGood[record.Host]
	c.mu.Unlock()
	if !ok || previous == record.Artifact {
		return record, actErr
	}

	c.opts.Observer.Event(observe.Event{
		Type:     observe.EventRollback,
		Stage:    StageActivating,
		Resource: record.Host,
		Message:  fmt.Sprintf("activation failed, restoring %s", previous),
	})
	rollbacksTotal.Inc()

	if rbErr := c.activate(ctx, session, previous); rbErr != nil {
		return record, fmt.Errorf("activation failed and rollback to %s also failed: %w", previous, errors.Join(actErr, rbErr))
	}
	record.Outcome = OutcomeRolledBack
	return record, actErr
}

// stage runs fn bracketed by start/complete events and a duration metric.
func (c *Coordinator) stage(name string, fn func() error) error {
	c.opts.Observer.Event(observe.Event{Type: observe.EventStageStarted, Stage: name, Message: "stage started"})
	start := time.Now()
	err := fn()
	stageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		c.opts.Observer.Event(observe.Event{Type: observe.EventStageFailed, Stage: name, Message: err.Error()})
		return fmt.Errorf("%s: %w", name, err)
	}
	c.opts.Observer.Event(observe.Event{Type: observe.EventStageCompleted, Stage: name, Message: "stage completed"})
	return nil
}
