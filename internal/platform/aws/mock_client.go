package aws

import (
	"context"
)

// MockClient is a mock implementation of CapacityClient.
// Unset function fields return benign defaults.
type MockClient struct {
	SubmitSpotRequestFunc   func(ctx context.Context, opts SpotRequestOpts) (string, error)
	DescribeSpotRequestFunc func(ctx context.Context, requestID string) (*CapacityRequest, error)
	CancelSpotRequestFunc   func(ctx context.Context, requestID string) error

	DescribeInstanceFunc  func(ctx context.Context, instanceID string) (*Instance, error)
	TerminateInstanceFunc func(ctx context.Context, instanceID string) error
	TagResourcesFunc      func(ctx context.Context, resourceIDs []string, labels map[string]string) error

	DescribeAddressFunc     func(ctx context.Context, allocationID string) (*Address, error)
	AssociateAddressFunc    func(ctx context.Context, allocationID, instanceID string) error
	DisassociateAddressFunc func(ctx context.Context, associationID string) error

	ListInstancesFunc       func(ctx context.Context, project string) ([]Instance, error)
	ListSpotRequestsFunc    func(ctx context.Context, project string) ([]CapacityRequest, error)
	ListVolumesFunc         func(ctx context.Context, project string) ([]Volume, error)
	ListSecurityGroupsFunc  func(ctx context.Context, project string) ([]SecurityGroup, error)
	ListAddressesFunc       func(ctx context.Context, project string) ([]Address, error)
	DeleteVolumeFunc        func(ctx context.Context, volumeID string) error
	DeleteSecurityGroupFunc func(ctx context.Context, groupID string) error
}

// Ensure interface compliance.
var _ CapacityClient = (*MockClient)(nil)

// SubmitSpotRequest mocks spot request submission.
func (m *MockClient) SubmitSpotRequest(ctx context.Context, opts SpotRequestOpts) (string, error) {
	if m.SubmitSpotRequestFunc != nil {
		return m.SubmitSpotRequestFunc(ctx, opts)
	}
	return "sir-mock", nil
}

// DescribeSpotRequest mocks spot request polling.
func (m *MockClient) DescribeSpotRequest(ctx context.Context, requestID string) (*CapacityRequest, error) {
	if m.DescribeSpotRequestFunc != nil {
		return m.DescribeSpotRequestFunc(ctx, requestID)
	}
	return &CapacityRequest{ID: requestID, State: RequestFulfilled, InstanceID: "i-mock"}, nil
}

// CancelSpotRequest mocks spot request cancellation.
func (m *MockClient) CancelSpotRequest(ctx context.Context, requestID string) error {
	if m.CancelSpotRequestFunc != nil {
		return m.CancelSpotRequestFunc(ctx, requestID)
	}
	return nil
}

// DescribeInstance mocks instance lookup.
func (m *MockClient) DescribeInstance(ctx context.Context, instanceID string) (*Instance, error) {
	if m.DescribeInstanceFunc != nil {
		return m.DescribeInstanceFunc(ctx, instanceID)
	}
	return &Instance{ID: instanceID, State: StateRunning, PublicIP: "198.51.100.10", Lifecycle: "spot"}, nil
}

// TerminateInstance mocks instance termination.
func (m *MockClient) TerminateInstance(ctx context.Context, instanceID string) error {
	if m.TerminateInstanceFunc != nil {
		return m.TerminateInstanceFunc(ctx, instanceID)
	}
	return nil
}

// TagResources mocks resource tagging.
func (m *MockClient) TagResources(ctx context.Context, resourceIDs []string, labels map[string]string) error {
	if m.TagResourcesFunc != nil {
		return m.TagResourcesFunc(ctx, resourceIDs, labels)
	}
	return nil
}

// DescribeAddress mocks elastic address lookup.
func (m *MockClient) DescribeAddress(ctx context.Context, allocationID string) (*Address, error) {
	if m.DescribeAddressFunc != nil {
		return m.DescribeAddressFunc(ctx, allocationID)
	}
	return &Address{AllocationID: allocationID, PublicIP: "198.51.100.10"}, nil
}

// AssociateAddress mocks address binding.
func (m *MockClient) AssociateAddress(ctx context.Context, allocationID, instanceID string) error {
	if m.AssociateAddressFunc != nil {
		return m.AssociateAddressFunc(ctx, allocationID, instanceID)
	}
	return nil
}

// DisassociateAddress mocks address unbinding.
func (m *MockClient) DisassociateAddress(ctx context.Context, associationID string) error {
	if m.DisassociateAddressFunc != nil {
		return m.DisassociateAddressFunc(ctx, associationID)
	}
	return nil
}

// ListInstances mocks instance enumeration.
func (m *MockClient) ListInstances(ctx context.Context, project string) ([]Instance, error) {
	if m.ListInstancesFunc != nil {
		return m.ListInstancesFunc(ctx, project)
	}
	return nil, nil
}

// ListSpotRequests mocks spot request enumeration.
func (m *MockClient) ListSpotRequests(ctx context.Context, project string) ([]CapacityRequest, error) {
	if m.ListSpotRequestsFunc != nil {
		return m.ListSpotRequestsFunc(ctx, project)
	}
	return nil, nil
}

// ListVolumes mocks volume enumeration.
func (m *MockClient) ListVolumes(ctx context.Context, project string) ([]Volume, error) {
	if m.ListVolumesFunc != nil {
		return m.ListVolumesFunc(ctx, project)
	}
	return nil, nil
}

// ListSecurityGroups mocks security group enumeration.
func (m *MockClient) ListSecurityGroups(ctx context.Context, project string) ([]SecurityGroup, error) {
	if m.ListSecurityGroupsFunc != nil {
		return m.ListSecurityGroupsFunc(ctx, project)
	}
	return nil, nil
}

// ListAddresses mocks address enumeration.
func (m *MockClient) ListAddresses(ctx context.Context, project string) ([]Address, error) {
	if m.ListAddressesFunc != nil {
		return m.ListAddressesFunc(ctx, project)
	}
	return nil, nil
}

// DeleteVolume mocks volume deletion.
func (m *MockClient) DeleteVolume(ctx context.Context, volumeID string) error {
	if m.DeleteVolumeFunc != nil {
		return m.DeleteVolumeFunc(ctx, volumeID)
	}
	return nil
}

// DeleteSecurityGroup mocks security group deletion.
func (m *MockClient) DeleteSecurityGroup(ctx context.Context, groupID string) error {
	if m.DeleteSecurityGroupFunc != nil {
		return m.DeleteSecurityGroupFunc(ctx, groupID)
	}
	return nil
}
