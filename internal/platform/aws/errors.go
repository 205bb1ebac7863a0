package aws

import (
	"errors"
	"strings"

	"github.com/aws/smithy-go"
)

// IsNotFound checks if an error indicates a resource was not found.
// EC2 encodes these as per-resource codes ending in ".NotFound"
// (InvalidInstanceID.NotFound, InvalidAllocationID.NotFound, ...).
func IsNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return strings.HasSuffix(code, ".NotFound") || strings.HasSuffix(code, ".Malformed")
	}
	return false
}

// IsRateLimited checks if an error indicates API throttling.
func IsRateLimited(err error) bool {
	return isErrorCode(err, "RequestLimitExceeded", "Throttling")
}

// IsCapacityError checks if an error indicates the spot request cannot
// be fulfilled at the configured price or capacity. These are fatal for
// the current acquire attempt, not transient.
func IsCapacityError(err error) bool {
	return isErrorCode(err,
		"MaxSpotInstanceCountExceeded",
		"InsufficientInstanceCapacity",
		"SpotMaxPriceTooLow",
	)
}

// isErrorCode checks if the error is an API error with one of the given codes.
func isErrorCode(err error, codes ...string) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		for _, code := range codes {
			if apiErr.ErrorCode() == code {
				return true
			}
		}
	}
	return false
}
