// Package retry provides exponential backoff retry logic for transient failures.
//
// The [Do] function retries an operation with configurable max attempts,
// initial delay, and maximum delay. It backs the capacity-request
// fulfillment poll, the instance-ready wait, and SSH dialing, so all
// three share one bounded-wait implementation.
package retry
