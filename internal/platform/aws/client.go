// Package aws wraps the EC2 API surface the orchestrator needs.
package aws

import (
	"context"
)

// InstanceState is the lifecycle state of a compute instance.
type InstanceState string

// Instance lifecycle states.
const (
	StateRequesting InstanceState = "requesting"
	StatePending    InstanceState = "pending"
	StateRunning    InstanceState = "running"
	StateTerminated InstanceState = "terminated"
)

// Instance describes a compute instance.
type Instance struct {
	ID           string
	Type         string
	State        InstanceState
	PublicIP     string
	Lifecycle    string // "spot" or "on-demand"
	VolumeSizeGB int32
}

// RequestState is the provider-side state of a capacity request.
type RequestState string

// Capacity request states.
const (
	RequestPending   RequestState = "pending"
	RequestFulfilled RequestState = "fulfilled"
	RequestFailed    RequestState = "failed"
)

// CapacityRequest is a submitted spot capacity request.
type CapacityRequest struct {
	ID         string
	State      RequestState
	InstanceID string // set once fulfilled
	StatusCode string // provider status detail (e.g. price-too-low)
}

// SpotRequestOpts holds all parameters for requesting spot capacity.
type SpotRequestOpts struct {
	InstanceType    string
	MaxPrice        string // hourly USD ceiling; empty means on-demand price cap
	ImageID         string
	KeyName         string
	SecurityGroupID string
	VolumeSizeGB    int32
	Labels          map[string]string
}

// Address is a reserved elastic address.
type Address struct {
	AllocationID  string
	AssociationID string // empty when unbound
	InstanceID    string // empty when unbound
	PublicIP      string
}

// Volume is a storage volume, listed for cleanup.
type Volume struct {
	ID     string
	SizeGB int32
	State  string
}

// SecurityGroup is a network security group, listed for cleanup.
type SecurityGroup struct {
	ID   string
	Name string
}

// CapacityRequester submits and tracks spot capacity requests.
type CapacityRequester interface {
	// SubmitSpotRequest submits a price-capped one-time spot request and
	// returns its request ID.
	SubmitSpotRequest(ctx context.Context, opts SpotRequestOpts) (string, error)
	// DescribeSpotRequest returns the current state of a capacity request.
	DescribeSpotRequest(ctx context.Context, requestID string) (*CapacityRequest, error)
	// CancelSpotRequest cancels a capacity request. Cancelling an
	// already-closed request is not an error.
	CancelSpotRequest(ctx context.Context, requestID string) error
}

// InstanceManager inspects and terminates instances.
type InstanceManager interface {
	// DescribeInstance returns the instance or a NotFound error.
	DescribeInstance(ctx context.Context, instanceID string) (*Instance, error)
	// TerminateInstance terminates the instance. Terminating an
	// already-terminated instance is not an error.
	TerminateInstance(ctx context.Context, instanceID string) error
	// TagResources applies labels to the given resource IDs.
	TagResources(ctx context.Context, resourceIDs []string, labels map[string]string) error
}

// AddressManager binds the stable network identity.
type AddressManager interface {
	// DescribeAddress returns the elastic address for an allocation ID.
	DescribeAddress(ctx context.Context, allocationID string) (*Address, error)
	// AssociateAddress binds the allocation to the instance. Re-binding
	// to the same instance is a no-op on the provider side.
	AssociateAddress(ctx context.Context, allocationID, instanceID string) error
	// DisassociateAddress unbinds an association. Missing associations
	// are not an error.
	DisassociateAddress(ctx context.Context, associationID string) error
}

// ResourceEnumerator lists resources by ownership label for cleanup.
type ResourceEnumerator interface {
	ListInstances(ctx context.Context, project string) ([]Instance, error)
	ListSpotRequests(ctx context.Context, project string) ([]CapacityRequest, error)
	ListVolumes(ctx context.Context, project string) ([]Volume, error)
	ListSecurityGroups(ctx context.Context, project string) ([]SecurityGroup, error)
	ListAddresses(ctx context.Context, project string) ([]Address, error)
	DeleteVolume(ctx context.Context, volumeID string) error
	DeleteSecurityGroup(ctx context.Context, groupID string) error
}

// CapacityClient combines the provider interfaces the orchestrator uses.
type CapacityClient interface {
	CapacityRequester
	InstanceManager
	AddressManager
	ResourceEnumerator
}
