// Package labels provides consistent ownership labeling for provider resources.
//
// Every resource the orchestrator creates (instances, spot requests,
// addresses) carries the same label set, so cleanup can rediscover
// resources leaked by an aborted run without resource-type special
// cases.
package labels

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// Standard tag keys for provider resources.
const (
	// KeyProject identifies which deployment project owns a resource.
	KeyProject = "xttsdeploy.io/project"

	// KeyManagedBy identifies the management system.
	KeyManagedBy = "xttsdeploy.io/managed-by"

	// KeyRole identifies what a resource is for (workload, build).
	KeyRole = "xttsdeploy.io/role"

	// KeyName is the conventional AWS display-name tag.
	KeyName = "Name"
)

// ManagedBy value for resources created by this tool.
const ManagedByDeployer = "xttsdeploy"

// Role values.
const (
	RoleWorkload = "workload"
)

// Builder provides a fluent interface for building resource label sets.
type Builder struct {
	labels map[string]string
}

// NewBuilder creates a label builder with the project label pre-set.
func NewBuilder(project string) *Builder {
	return &Builder{
		labels: map[string]string{
			KeyProject:   project,
			KeyManagedBy: ManagedByDeployer,
		},
	}
}

// WithRole adds a role label.
func (b *Builder) WithRole(role string) *Builder {
	b.labels[KeyRole] = role
	return b
}

// WithName adds the AWS display-name tag.
func (b *Builder) WithName(name string) *Builder {
	b.labels[KeyName] = name
	return b
}

// Merge adds all labels from the provided map.
func (b *Builder) Merge(extra map[string]string) *Builder {
	for k, v := range extra {
		b.labels[k] = v
	}
	return b
}

// Build returns a copy of the labels map.
func (b *Builder) Build() map[string]string {
	result := make(map[string]string, len(b.labels))
	for k, v := range b.labels {
		result[k] = v
	}
	return result
}

// Tags converts the label set to EC2 tags.
func (b *Builder) Tags() []ec2types.Tag {
	return ToTags(b.labels)
}

// ToTags converts a label map to EC2 tags.
func ToTags(labels map[string]string) []ec2types.Tag {
	tags := make([]ec2types.Tag, 0, len(labels))
	for k, v := range labels {
		tags = append(tags, ec2types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return tags
}

// OwnershipFilter returns the EC2 filter matching resources owned by project.
func OwnershipFilter(project string) []ec2types.Filter {
	return []ec2types.Filter{
		{Name: aws.String("tag:" + KeyProject), Values: []string{project}},
		{Name: aws.String("tag:" + KeyManagedBy), Values: []string{ManagedByDeployer}},
	}
}
