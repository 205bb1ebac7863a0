// Package provision acquires spot compute capacity bound to a stable
// network identity.
//
// Acquire is idempotent per network identity: if an instance bound to
// the configured elastic address is already running and reachable, it is
// reused instead of requesting new capacity, so repeated deploy
// invocations never double-charge. Concurrent Acquire calls for the same
// identity serialize; the second caller observes the first's result
// rather than submitting a duplicate capacity request.
package provision

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/voicekit/xttsdeploy/internal/config"
	"github.com/voicekit/xttsdeploy/internal/observe"
	"github.com/voicekit/xttsdeploy/internal/platform/aws"
	"github.com/voicekit/xttsdeploy/internal/util/labels"
	"github.com/voicekit/xttsdeploy/internal/util/retry"
)

// ErrProvisionTimeout indicates the capacity request was not fulfilled
// within the provisioning timeout.
var ErrProvisionTimeout = errors.New("capacity request not fulfilled in time")

// ErrNotReady indicates the instance existed but never reached the
// running state within its wait budget.
var ErrNotReady = errors.New("instance did not reach running state in time")

// Prober checks whether a host is reachable. The default dials the SSH
// port; tests substitute their own.
type Prober func(ctx context.Context, addr string) error

// DialProber returns a Prober that attempts a TCP connection to the
// given port.
func DialProber(port int, timeout time.Duration) Prober {
	return func(_ context.Context, addr string) error {
		conn, err := net.DialTimeout("tcp", net.JoinHostPort(addr, strconv.Itoa(port)), timeout)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

// Provisioner acquires compute instances through the capacity client.
type Provisioner struct {
	client   aws.CapacityClient
	cfg      config.InstanceConfig
	project  string
	timeouts *config.Timeouts
	observer observe.Observer
	prober   Prober

	// mu serializes Acquire per process; the per-identity latch below
	// is what keeps a second caller from submitting a duplicate request
	// while the first is still pending.
	mu       sync.Mutex
	inflight map[string]*acquisition
}

// acquisition is the latch a second concurrent Acquire waits on.
type acquisition struct {
	done     chan struct{}
	instance *aws.Instance
	err      error
}

// NewProvisioner creates a provisioner. The prober may be nil, in which
// case reachability falls back to a TCP dial on the SSH port.
func NewProvisioner(client aws.CapacityClient, cfg config.InstanceConfig, project string, timeouts *config.Timeouts, observer observe.Observer, prober Prober) *Provisioner {
	if prober == nil {
		prober = DialProber(22, 5*time.Second)
	}
	return &Provisioner{
		client:   client,
		cfg:      cfg,
		project:  project,
		timeouts: timeouts,
		observer: observer,
		prober:   prober,
		inflight: make(map[string]*acquisition),
	}
}

// Acquire returns a running instance bound to the configured elastic
// address, reusing an existing one when possible. The instance is
// tagged with the ownership label for later discovery by cleanup.
//
// A caller that joins an in-flight acquisition shares its result, with
// one exception: if that acquisition died because its own caller was
// cancelled, the cancellation says nothing about capacity, so a waiter
// whose context is still live runs the acquisition again itself.
func (p *Provisioner) Acquire(ctx context.Context) (*aws.Instance, error) {
	identity := p.cfg.AllocationID

	for {
		p.mu.Lock()
		acq, ok := p.inflight[identity]
		if !ok {
			acq = &acquisition{done: make(chan struct{})}
			p.inflight[identity] = acq
			p.mu.Unlock()

			instance, err := p.acquire(ctx)

			p.mu.Lock()
			delete(p.inflight, identity)
			p.mu.Unlock()
			acq.instance, acq.err = instance, err
			close(acq.done)

			return instance, err
		}
		p.mu.Unlock()

		// Another Acquire for this identity is in progress: wait for
		// its result instead of submitting a duplicate request.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-acq.done:
		}
		if acq.err != nil && ctx.Err() == nil && errors.Is(acq.err, context.Canceled) {
			// The owner was cancelled out from under us; retry under
			// this caller's context.
			continue
		}
		return acq.instance, acq.err
	}
}

func (p *Provisioner) acquire(ctx context.Context) (*aws.Instance, error) {
	if reused, err := p.findReusable(ctx); err != nil {
		return nil, err
	} else if reused != nil {
		p.observer.Event(observe.Event{
			Type:     observe.EventResourceReused,
			Stage:    "provisioning",
			Resource: reused.ID,
			Message:  "reusing running instance bound to elastic address",
			Fields:   map[string]string{"address": reused.PublicIP},
		})
		return reused, nil
	}

	requestID, err := p.submitRequest(ctx)
	if err != nil {
		return nil, err
	}

	instanceID, err := p.waitFulfilled(ctx, requestID)
	if err != nil {
		// Best effort: an abandoned open request would otherwise keep
		// trying to materialize capacity with nobody watching. Instances
		// that already launched stay discoverable via their ownership
		// labels and fall to the cleanup sweep.
		cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if cancelErr := p.client.CancelSpotRequest(cancelCtx, requestID); cancelErr != nil {
			p.observer.Printf("failed to cancel abandoned capacity request %s: %v", requestID, cancelErr)
		}
		return nil, err
	}

	if err := p.tagInstance(ctx, instanceID); err != nil {
		return nil, err
	}

	instance, err := p.waitRunning(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if err := p.bindAddress(ctx, instance); err != nil {
		return nil, err
	}

	p.observer.Event(observe.Event{
		Type:     observe.EventResourceCreated,
		Stage:    "provisioning",
		Resource: instance.ID,
		Message:  "instance running and bound to elastic address",
		Fields:   map[string]string{"type": instance.Type, "address": instance.PublicIP},
	})
	return instance, nil
}

// findReusable returns the instance already bound to the elastic
// address if it is running and reachable, else nil.
func (p *Provisioner) findReusable(ctx context.Context) (*aws.Instance, error) {
	addr, err := p.client.DescribeAddress(ctx, p.cfg.AllocationID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve network identity: %w", err)
	}
	if addr.InstanceID == "" {
		return nil, nil
	}

	instance, err := p.client.DescribeInstance(ctx, addr.InstanceID)
	if err != nil {
		if aws.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to inspect bound instance %s: %w", addr.InstanceID, err)
	}
	if instance.State != aws.StateRunning {
		return nil, nil
	}
	if err := p.prober(ctx, addr.PublicIP); err != nil {
		p.observer.Printf("bound instance %s is running but unreachable (%v), provisioning fresh capacity", instance.ID, err)
		return nil, nil
	}

	instance.PublicIP = addr.PublicIP
	return instance, nil
}

// submitRequest submits the price-capped spot request.
func (p *Provisioner) submitRequest(ctx context.Context) (string, error) {
	tags := labels.NewBuilder(p.project).
		WithRole(labels.RoleWorkload).
		WithName(p.project + "-server").
		Build()

	requestID, err := p.client.SubmitSpotRequest(ctx, aws.SpotRequestOpts{
		InstanceType:    p.cfg.Type,
		MaxPrice:        p.cfg.MaxSpotPrice,
		ImageID:         p.cfg.ImageID,
		KeyName:         p.cfg.KeyName,
		SecurityGroupID: p.cfg.SecurityGroupID,
		VolumeSizeGB:    p.cfg.VolumeSizeGB,
		Labels:          tags,
	})
	if err != nil {
		return "", fmt.Errorf("failed to submit capacity request: %w", err)
	}

	p.observer.Printf("submitted spot capacity request %s (type=%s, ceiling=%s)", requestID, p.cfg.Type, p.cfg.MaxSpotPrice)
	return requestID, nil
}

// waitFulfilled polls the capacity request until it yields an instance.
func (p *Provisioner) waitFulfilled(ctx context.Context, requestID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeouts.SpotFulfillment)
	defer cancel()

	attempts := int(p.timeouts.SpotFulfillment/p.timeouts.RetryInitialDelay) + 1
	var instanceID string

	err := retry.Do(ctx, func() error {
		req, err := p.client.DescribeSpotRequest(ctx, requestID)
		if err != nil {
			return err
		}
		switch req.State {
		case aws.RequestFulfilled:
			instanceID = req.InstanceID
			return nil
		case aws.RequestFailed:
			return retry.Fatal(fmt.Errorf("capacity request %s failed: %s", requestID, req.StatusCode))
		default:
			return fmt.Errorf("capacity request %s still pending (%s)", requestID, req.StatusCode)
		}
	},
		retry.WithMaxAttempts(attempts),
		retry.WithConstantDelay(p.timeouts.RetryInitialDelay),
		retry.WithNotify(func(attempt int, err error) {
			if attempt%6 == 0 {
				p.observer.Printf("still waiting for capacity (attempt %d): %v", attempt, err)
			}
		}),
	)
	if err != nil {
		if retry.IsFatal(err) {
			return "", fmt.Errorf("capacity request rejected: %w", err)
		}
		// Caller cancellation is not a fulfillment timeout.
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", fmt.Errorf("fulfillment wait interrupted: %w", err)
		}
		return "", fmt.Errorf("%w: request %s: %w", ErrProvisionTimeout, requestID, err)
	}
	return instanceID, nil
}

// waitRunning polls the instance until its lifecycle state is running.
func (p *Provisioner) waitRunning(ctx context.Context, instanceID string) (*aws.Instance, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeouts.InstanceRunning)
	defer cancel()

	attempts := int(p.timeouts.InstanceRunning/p.timeouts.RetryInitialDelay) + 1
	var instance *aws.Instance

	err := retry.Do(ctx, func() error {
		inst, err := p.client.DescribeInstance(ctx, instanceID)
		if err != nil {
			return err
		}
		switch inst.State {
		case aws.StateRunning:
			instance = inst
			return nil
		case aws.StateTerminated:
			return retry.Fatal(fmt.Errorf("instance %s terminated before becoming ready", instanceID))
		default:
			return fmt.Errorf("instance %s is %s", instanceID, inst.State)
		}
	},
		retry.WithMaxAttempts(attempts),
		retry.WithConstantDelay(p.timeouts.RetryInitialDelay),
	)
	if err != nil {
		if retry.IsFatal(err) {
			return nil, fmt.Errorf("instance lost before becoming ready: %w", err)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, fmt.Errorf("running wait interrupted: %w", err)
		}
		return nil, fmt.Errorf("%w: instance %s: %w", ErrNotReady, instanceID, err)
	}
	return instance, nil
}

// tagInstance applies the ownership label so cleanup can rediscover the
// instance even if this run aborts.
func (p *Provisioner) tagInstance(ctx context.Context, instanceID string) error {
	tags := labels.NewBuilder(p.project).
		WithRole(labels.RoleWorkload).
		WithName(p.project + "-server").
		Build()
	if err := p.client.TagResources(ctx, []string{instanceID}, tags); err != nil {
		return fmt.Errorf("failed to tag instance %s: %w", instanceID, err)
	}
	return nil
}

// bindAddress associates the elastic address with the instance.
// Re-binding to the same instance is a no-op.
func (p *Provisioner) bindAddress(ctx context.Context, instance *aws.Instance) error {
	addr, err := p.client.DescribeAddress(ctx, p.cfg.AllocationID)
	if err != nil {
		return fmt.Errorf("failed to resolve network identity: %w", err)
	}
	if addr.InstanceID != instance.ID {
		if err := p.client.AssociateAddress(ctx, p.cfg.AllocationID, instance.ID); err != nil {
			return fmt.Errorf("failed to bind network identity: %w", err)
		}
	}
	instance.PublicIP = addr.PublicIP
	return nil
}
