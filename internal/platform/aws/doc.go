// Package aws wraps the EC2 operations behind the provisioning boundary:
// spot capacity requests, instance lifecycle, elastic address binding,
// ownership tagging, and label-scoped resource enumeration for cleanup.
//
// The [CapacityClient] interface is what the rest of the orchestrator
// depends on; [RealClient] implements it with aws-sdk-go-v2 and
// [MockClient] implements it with function fields for tests.
package aws
