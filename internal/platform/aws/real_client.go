package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/voicekit/xttsdeploy/internal/util/labels"
)

// ec2API is the subset of *ec2.Client the RealClient calls.
// Narrowing the SDK surface keeps the client testable without AWS.
type ec2API interface {
	RequestSpotInstances(ctx context.Context, params *ec2.RequestSpotInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RequestSpotInstancesOutput, error)
	DescribeSpotInstanceRequests(ctx context.Context, params *ec2.DescribeSpotInstanceRequestsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotInstanceRequestsOutput, error)
	CancelSpotInstanceRequests(ctx context.Context, params *ec2.CancelSpotInstanceRequestsInput, optFns ...func(*ec2.Options)) (*ec2.CancelSpotInstanceRequestsOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
	CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
	DescribeAddresses(ctx context.Context, params *ec2.DescribeAddressesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAddressesOutput, error)
	AssociateAddress(ctx context.Context, params *ec2.AssociateAddressInput, optFns ...func(*ec2.Options)) (*ec2.AssociateAddressOutput, error)
	DisassociateAddress(ctx context.Context, params *ec2.DisassociateAddressInput, optFns ...func(*ec2.Options)) (*ec2.DisassociateAddressOutput, error)
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	DeleteVolume(ctx context.Context, params *ec2.DeleteVolumeInput, optFns ...func(*ec2.Options)) (*ec2.DeleteVolumeOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	DeleteSecurityGroup(ctx context.Context, params *ec2.DeleteSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error)
}

// RealClient implements CapacityClient against the EC2 API.
type RealClient struct {
	api ec2API
}

// ClientOption configures a RealClient.
type ClientOption func(*RealClient)

// WithEC2API sets a custom EC2 API implementation (useful for testing).
func WithEC2API(api ec2API) ClientOption {
	return func(c *RealClient) {
		c.api = api
	}
}

// NewRealClient creates a client for the given region. Static credentials
// are optional; when empty the default AWS credential chain applies.
func NewRealClient(ctx context.Context, region, accessKeyID, secretAccessKey string, opts ...ClientOption) (*RealClient, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	c := &RealClient{api: ec2.NewFromConfig(cfg)}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ CapacityClient = (*RealClient)(nil)

// SubmitSpotRequest submits a one-time spot request with a price ceiling.
func (c *RealClient) SubmitSpotRequest(ctx context.Context, opts SpotRequestOpts) (string, error) {
	input := &ec2.RequestSpotInstancesInput{
		InstanceCount: aws.Int32(1),
		Type:          ec2types.SpotInstanceTypeOneTime,
		LaunchSpecification: &ec2types.RequestSpotLaunchSpecification{
			ImageId:      aws.String(opts.ImageID),
			InstanceType: ec2types.InstanceType(opts.InstanceType),
			KeyName:      aws.String(opts.KeyName),
			BlockDeviceMappings: []ec2types.BlockDeviceMapping{
				{
					DeviceName: aws.String("/dev/sda1"),
					Ebs: &ec2types.EbsBlockDevice{
						VolumeSize:          aws.Int32(opts.VolumeSizeGB),
						VolumeType:          ec2types.VolumeTypeGp3,
						DeleteOnTermination: aws.Bool(true),
					},
				},
			},
		},
		TagSpecifications: []ec2types.TagSpecification{
			{
				ResourceType: ec2types.ResourceTypeSpotInstancesRequest,
				Tags:         labels.ToTags(opts.Labels),
			},
		},
	}
	if opts.MaxPrice != "" {
		input.SpotPrice = aws.String(opts.MaxPrice)
	}
	if opts.SecurityGroupID != "" {
		input.LaunchSpecification.SecurityGroupIds = []string{opts.SecurityGroupID}
	}

	out, err := c.api.RequestSpotInstances(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to request spot capacity: %w", err)
	}
	if len(out.SpotInstanceRequests) == 0 || out.SpotInstanceRequests[0].SpotInstanceRequestId == nil {
		return "", fmt.Errorf("spot request submitted but no request ID returned")
	}
	return *out.SpotInstanceRequests[0].SpotInstanceRequestId, nil
}

// DescribeSpotRequest returns the state of a spot capacity request.
func (c *RealClient) DescribeSpotRequest(ctx context.Context, requestID string) (*CapacityRequest, error) {
	out, err := c.api.DescribeSpotInstanceRequests(ctx, &ec2.DescribeSpotInstanceRequestsInput{
		SpotInstanceRequestIds: []string{requestID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe spot request %s: %w", requestID, err)
	}
	if len(out.SpotInstanceRequests) == 0 {
		return nil, fmt.Errorf("spot request %s not found", requestID)
	}
	return convertSpotRequest(out.SpotInstanceRequests[0]), nil
}

// CancelSpotRequest cancels a spot request; already-closed requests are fine.
func (c *RealClient) CancelSpotRequest(ctx context.Context, requestID string) error {
	_, err := c.api.CancelSpotInstanceRequests(ctx, &ec2.CancelSpotInstanceRequestsInput{
		SpotInstanceRequestIds: []string{requestID},
	})
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to cancel spot request %s: %w", requestID, err)
	}
	return nil
}

// DescribeInstance returns the instance for an ID.
func (c *RealClient) DescribeInstance(ctx context.Context, instanceID string) (*Instance, error) {
	out, err := c.api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe instance %s: %w", instanceID, err)
	}
	for _, reservation := range out.Reservations {
		for _, inst := range reservation.Instances {
			return convertInstance(inst), nil
		}
	}
	return nil, fmt.Errorf("instance %s not found", instanceID)
}

// TerminateInstance terminates an instance; already-gone instances are fine.
func (c *RealClient) TerminateInstance(ctx context.Context, instanceID string) error {
	_, err := c.api.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to terminate instance %s: %w", instanceID, err)
	}
	return nil
}

// TagResources applies labels to resources.
func (c *RealClient) TagResources(ctx context.Context, resourceIDs []string, lbls map[string]string) error {
	if len(resourceIDs) == 0 || len(lbls) == 0 {
		return nil
	}
	_, err := c.api.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: resourceIDs,
		Tags:      labels.ToTags(lbls),
	})
	if err != nil {
		return fmt.Errorf("failed to tag resources %v: %w", resourceIDs, err)
	}
	return nil
}

// DescribeAddress returns the elastic address for an allocation ID.
func (c *RealClient) DescribeAddress(ctx context.Context, allocationID string) (*Address, error) {
	out, err := c.api.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{
		AllocationIds: []string{allocationID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe address %s: %w", allocationID, err)
	}
	if len(out.Addresses) == 0 {
		return nil, fmt.Errorf("address allocation %s not found", allocationID)
	}
	return convertAddress(out.Addresses[0]), nil
}

// AssociateAddress binds the elastic address to the instance.
// AllowReassociation makes rebinding across instance replacements safe.
func (c *RealClient) AssociateAddress(ctx context.Context, allocationID, instanceID string) error {
	_, err := c.api.AssociateAddress(ctx, &ec2.AssociateAddressInput{
		AllocationId:       aws.String(allocationID),
		InstanceId:         aws.String(instanceID),
		AllowReassociation: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to associate address %s with instance %s: %w", allocationID, instanceID, err)
	}
	return nil
}

// DisassociateAddress unbinds an association; missing ones are fine.
func (c *RealClient) DisassociateAddress(ctx context.Context, associationID string) error {
	_, err := c.api.DisassociateAddress(ctx, &ec2.DisassociateAddressInput{
		AssociationId: aws.String(associationID),
	})
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to disassociate address %s: %w", associationID, err)
	}
	return nil
}

// ListInstances lists non-terminated instances owned by the project.
func (c *RealClient) ListInstances(ctx context.Context, project string) ([]Instance, error) {
	filters := append(labels.OwnershipFilter(project), ec2types.Filter{
		Name:   aws.String("instance-state-name"),
		Values: []string{"pending", "running", "stopping", "stopped"},
	})
	out, err := c.api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{Filters: filters})
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	var instances []Instance
	for _, reservation := range out.Reservations {
		for _, inst := range reservation.Instances {
			instances = append(instances, *convertInstance(inst))
		}
	}
	return instances, nil
}

// ListSpotRequests lists open or active spot requests owned by the project.
func (c *RealClient) ListSpotRequests(ctx context.Context, project string) ([]CapacityRequest, error) {
	filters := append(labels.OwnershipFilter(project), ec2types.Filter{
		Name:   aws.String("state"),
		Values: []string{"open", "active"},
	})
	out, err := c.api.DescribeSpotInstanceRequests(ctx, &ec2.DescribeSpotInstanceRequestsInput{Filters: filters})
	if err != nil {
		return nil, fmt.Errorf("failed to list spot requests: %w", err)
	}
	requests := make([]CapacityRequest, 0, len(out.SpotInstanceRequests))
	for _, req := range out.SpotInstanceRequests {
		requests = append(requests, *convertSpotRequest(req))
	}
	return requests, nil
}

// ListVolumes lists available volumes owned by the project. In-use
// volumes disappear with their instance (DeleteOnTermination).
func (c *RealClient) ListVolumes(ctx context.Context, project string) ([]Volume, error) {
	filters := append(labels.OwnershipFilter(project), ec2types.Filter{
		Name:   aws.String("status"),
		Values: []string{"available"},
	})
	out, err := c.api.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{Filters: filters})
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}
	volumes := make([]Volume, 0, len(out.Volumes))
	for _, v := range out.Volumes {
		volumes = append(volumes, Volume{
			ID:     aws.ToString(v.VolumeId),
			SizeGB: aws.ToInt32(v.Size),
			State:  string(v.State),
		})
	}
	return volumes, nil
}

// ListSecurityGroups lists security groups owned by the project.
func (c *RealClient) ListSecurityGroups(ctx context.Context, project string) ([]SecurityGroup, error) {
	out, err := c.api.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: labels.OwnershipFilter(project),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list security groups: %w", err)
	}
	groups := make([]SecurityGroup, 0, len(out.SecurityGroups))
	for _, sg := range out.SecurityGroups {
		groups = append(groups, SecurityGroup{
			ID:   aws.ToString(sg.GroupId),
			Name: aws.ToString(sg.GroupName),
		})
	}
	return groups, nil
}

// ListAddresses lists elastic addresses owned by the project.
func (c *RealClient) ListAddresses(ctx context.Context, project string) ([]Address, error) {
	out, err := c.api.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{
		Filters: labels.OwnershipFilter(project),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}
	addresses := make([]Address, 0, len(out.Addresses))
	for _, addr := range out.Addresses {
		addresses = append(addresses, *convertAddress(addr))
	}
	return addresses, nil
}

// DeleteVolume deletes a volume; already-gone volumes are fine.
func (c *RealClient) DeleteVolume(ctx context.Context, volumeID string) error {
	_, err := c.api.DeleteVolume(ctx, &ec2.DeleteVolumeInput{VolumeId: aws.String(volumeID)})
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to delete volume %s: %w", volumeID, err)
	}
	return nil
}

// DeleteSecurityGroup deletes a security group; already-gone groups are fine.
func (c *RealClient) DeleteSecurityGroup(ctx context.Context, groupID string) error {
	_, err := c.api.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: aws.String(groupID)})
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to delete security group %s: %w", groupID, err)
	}
	return nil
}

// convertInstance maps an EC2 instance to the domain type.
func convertInstance(inst ec2types.Instance) *Instance {
	out := &Instance{
		ID:       aws.ToString(inst.InstanceId),
		Type:     string(inst.InstanceType),
		PublicIP: aws.ToString(inst.PublicIpAddress),
	}
	if inst.InstanceLifecycle == ec2types.InstanceLifecycleTypeSpot {
		out.Lifecycle = "spot"
	} else {
		out.Lifecycle = "on-demand"
	}
	if inst.State != nil {
		out.State = convertInstanceState(inst.State.Name)
	}
	return out
}

// convertInstanceState maps EC2 state names onto the four lifecycle
// states the orchestrator tracks.
func convertInstanceState(name ec2types.InstanceStateName) InstanceState {
	switch name {
	case ec2types.InstanceStateNamePending:
		return StatePending
	case ec2types.InstanceStateNameRunning:
		return StateRunning
	case ec2types.InstanceStateNameShuttingDown, ec2types.InstanceStateNameTerminated,
		ec2types.InstanceStateNameStopping, ec2types.InstanceStateNameStopped:
		return StateTerminated
	default:
		return StateRequesting
	}
}

// convertSpotRequest maps an EC2 spot request to the domain type.
func convertSpotRequest(req ec2types.SpotInstanceRequest) *CapacityRequest {
	out := &CapacityRequest{
		ID:         aws.ToString(req.SpotInstanceRequestId),
		InstanceID: aws.ToString(req.InstanceId),
	}
	if req.Status != nil {
		out.StatusCode = aws.ToString(req.Status.Code)
	}
	switch req.State {
	case ec2types.SpotInstanceStateOpen:
		out.State = RequestPending
	case ec2types.SpotInstanceStateActive:
		out.State = RequestFulfilled
	default:
		out.State = RequestFailed
	}
	return out
}

// convertAddress maps an EC2 elastic address to the domain type.
func convertAddress(addr ec2types.Address) *Address {
	return &Address{
		AllocationID:  aws.ToString(addr.AllocationId),
		AssociationID: aws.ToString(addr.AssociationId),
		InstanceID:    aws.ToString(addr.InstanceId),
		PublicIP:      aws.ToString(addr.PublicIp),
	}
}
