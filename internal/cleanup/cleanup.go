// Package cleanup reclaims every provider resource carrying the
// project's ownership labels.
//
// The sweep discovers resources by label rather than by remembered IDs,
// so it also catches resources leaked by an aborted run. Reclamation
// runs in dependency order and keeps going past individual failures; a
// partial sweep reports everything it could not reclaim instead of
// stopping at the first error.
package cleanup

import (
	"context"
	"errors"
	"fmt"

	"github.com/voicekit/xttsdeploy/internal/config"
	"github.com/voicekit/xttsdeploy/internal/observe"
	"github.com/voicekit/xttsdeploy/internal/platform/aws"
)

// Resource kinds in reclamation order. Addresses are disassociated, not
// released: the allocation is the project's stable network identity and
// survives the sweep.
const (
	KindSpotRequest   = "spot-request"
	KindAddress       = "address"
	KindInstance      = "instance"
	KindVolume        = "volume"
	KindSecurityGroup = "security-group"
)

// Reclaimed describes one resource the sweep acted on (or would act on,
// under dry-run).
type Reclaimed struct {
	Kind   string
	ID     string
	Detail string
}

// PartialError aggregates per-resource failures from a sweep that kept
// going.
type PartialError struct {
	Errs []error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("cleanup incomplete, %d resources failed: %v", len(e.Errs), errors.Join(e.Errs...))
}

func (e *PartialError) Unwrap() error {
	return errors.Join(e.Errs...)
}

// Sweeper reclaims labeled resources through the capacity client.
type Sweeper struct {
	client   aws.CapacityClient
	timeouts *config.Timeouts
	observer observe.Observer
}

// NewSweeper creates a sweeper.
func NewSweeper(client aws.CapacityClient, timeouts *config.Timeouts, observer observe.Observer) *Sweeper {
	return &Sweeper{client: client, timeouts: timeouts, observer: observer}
}

// Sweep reclaims all resources labeled with the project, in dependency
// order: open capacity requests first so nothing new materializes
// mid-sweep, then address bindings, instances, volumes, and security
// groups. With dryRun set it only reports what it would reclaim and
// performs no mutating calls. Resources already gone count as reclaimed.
func (s *Sweeper) Sweep(ctx context.Context, project string, dryRun bool) ([]Reclaimed, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Cleanup)
	defer cancel()

	var reclaimed []Reclaimed
	var failures []error

	steps := []func(context.Context, string, bool) ([]Reclaimed, []error){
		s.sweepSpotRequests,
		s.sweepAddresses,
		s.sweepInstances,
		s.sweepVolumes,
		s.sweepSecurityGroups,
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			failures = append(failures, fmt.Errorf("sweep interrupted: %w", err))
			break
		}
		got, errs := step(ctx, project, dryRun)
		reclaimed = append(reclaimed, got...)
		failures = append(failures, errs...)
	}

	for _, r := range reclaimed {
		s.observer.Event(observe.Event{
			Type:     observe.EventResourceDeleted,
			Stage:    "cleanup",
			Resource: r.ID,
			Message:  r.Detail,
			Fields:   map[string]string{"kind": r.Kind, "dry_run": fmt.Sprintf("%t", dryRun)},
		})
	}

	if len(failures) > 0 {
		return reclaimed, &PartialError{Errs: failures}
	}
	return reclaimed, nil
}

func (s *Sweeper) sweepSpotRequests(ctx context.Context, project string, dryRun bool) ([]Reclaimed, []error) {
	requests, err := s.client.ListSpotRequests(ctx, project)
	if err != nil {
		return nil, []error{fmt.Errorf("failed to list spot requests: %w", err)}
	}

	var reclaimed []Reclaimed
	var failures []error
	for _, req := range requests {
		if dryRun {
			reclaimed = append(reclaimed, Reclaimed{Kind: KindSpotRequest, ID: req.ID, Detail: "would cancel"})
			continue
		}
		if err := s.client.CancelSpotRequest(ctx, req.ID); err != nil && !aws.IsNotFound(err) {
			failures = append(failures, fmt.Errorf("failed to cancel spot request %s: %w", req.ID, err))
			continue
		}
		reclaimed = append(reclaimed, Reclaimed{Kind: KindSpotRequest, ID: req.ID, Detail: "cancelled"})
	}
	return reclaimed, failures
}

func (s *Sweeper) sweepAddresses(ctx context.Context, project string, dryRun bool) ([]Reclaimed, []error) {
	addresses, err := s.client.ListAddresses(ctx, project)
	if err != nil {
		return nil, []error{fmt.Errorf("failed to list addresses: %w", err)}
	}

	var reclaimed []Reclaimed
	var failures []error
	for _, addr := range addresses {
		if addr.AssociationID == "" {
			continue
		}
		if dryRun {
			reclaimed = append(reclaimed, Reclaimed{Kind: KindAddress, ID: addr.AllocationID, Detail: "would disassociate"})
			continue
		}
		if err := s.client.DisassociateAddress(ctx, addr.AssociationID); err != nil && !aws.IsNotFound(err) {
			failures = append(failures, fmt.Errorf("failed to disassociate address %s: %w", addr.AllocationID, err))
			continue
		}
		reclaimed = append(reclaimed, Reclaimed{Kind: KindAddress, ID: addr.AllocationID, Detail: "disassociated, allocation retained"})
	}
	return reclaimed, failures
}

func (s *Sweeper) sweepInstances(ctx context.Context, project string, dryRun bool) ([]Reclaimed, []error) {
	instances, err := s.client.ListInstances(ctx, project)
	if err != nil {
		return nil, []error{fmt.Errorf("failed to list instances: %w", err)}
	}

	var reclaimed []Reclaimed
	var failures []error
	for _, inst := range instances {
		if dryRun {
			reclaimed = append(reclaimed, Reclaimed{Kind: KindInstance, ID: inst.ID, Detail: "would terminate"})
			continue
		}
		if err := s.client.TerminateInstance(ctx, inst.ID); err != nil && !aws.IsNotFound(err) {
			failures = append(failures, fmt.Errorf("failed to terminate instance %s: %w", inst.ID, err))
			continue
		}
		reclaimed = append(reclaimed, Reclaimed{Kind: KindInstance, ID: inst.ID, Detail: "terminated"})
	}
	return reclaimed, failures
}

func (s *Sweeper) sweepVolumes(ctx context.Context, project string, dryRun bool) ([]Reclaimed, []error) {
	volumes, err := s.client.ListVolumes(ctx, project)
	if err != nil {
		return nil, []error{fmt.Errorf("failed to list volumes: %w", err)}
	}

	var reclaimed []Reclaimed
	var failures []error
	for _, vol := range volumes {
		if dryRun {
			reclaimed = append(reclaimed, Reclaimed{Kind: KindVolume, ID: vol.ID, Detail: "would delete"})
			continue
		}
		if err := s.client.DeleteVolume(ctx, vol.ID); err != nil && !aws.IsNotFound(err) {
			failures = append(failures, fmt.Errorf("failed to delete volume %s: %w", vol.ID, err))
			continue
		}
		reclaimed = append(reclaimed, Reclaimed{Kind: KindVolume, ID: vol.ID, Detail: "deleted"})
	}
	return reclaimed, failures
}

func (s *Sweeper) sweepSecurityGroups(ctx context.Context, project string, dryRun bool) ([]Reclaimed, []error) {
	groups, err := s.client.ListSecurityGroups(ctx, project)
	if err != nil {
		return nil, []error{fmt.Errorf("failed to list security groups: %w", err)}
	}

	var reclaimed []Reclaimed
	var failures []error
	for _, group := range groups {
		if dryRun {
			reclaimed = append(reclaimed, Reclaimed{Kind: KindSecurityGroup, ID: group.ID, Detail: "would delete"})
			continue
		}
		if err := s.client.DeleteSecurityGroup(ctx, group.ID); err != nil && !aws.IsNotFound(err) {
			failures = append(failures, fmt.Errorf("failed to delete security group %s: %w", group.ID, err))
			continue
		}
		reclaimed = append(reclaimed, Reclaimed{Kind: KindSecurityGroup, ID: group.ID, Detail: "deleted"})
	}
	return reclaimed, failures
}
