// Package health polls the workload's health endpoint until it answers
// or the attempt budget runs out.
//
// A deployment is only declared healthy after the inference server
// itself responds, not when the container starts: model loading can take
// minutes and a started container that never finishes loading must fail
// verification, not pass it.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/voicekit/xttsdeploy/internal/observe"
)

// Outcome classifies a single probe.
type Outcome string

// Probe outcomes.
const (
	// OutcomeOk means the endpoint answered with a success status.
	OutcomeOk Outcome = "ok"
	// OutcomeUnreachable means the connection failed or the endpoint
	// answered with a non-success status.
	OutcomeUnreachable Outcome = "unreachable"
	// OutcomeTimeout means the probe's own request timeout elapsed.
	OutcomeTimeout Outcome = "timeout"
)

// Result records one probe attempt. Results accumulate in attempt order.
type Result struct {
	Attempt int
	Elapsed time.Duration
	Outcome Outcome
	Status  int   // HTTP status, 0 when no response was received
	Err     error // set unless Outcome == OutcomeOk
}

// Config controls the probe loop.
type Config struct {
	MaxAttempts    int
	Interval       time.Duration
	RequestTimeout time.Duration
}

// Verifier polls an HTTP health endpoint.
type Verifier struct {
	client   *http.Client
	observer observe.Observer
}

// NewVerifier creates a verifier. The client may be nil, in which case a
// plain http.Client is used; per-probe timeouts come from Config, not
// the client.
func NewVerifier(client *http.Client, observer observe.Observer) *Verifier {
	if client == nil {
		client = &http.Client{}
	}
	return &Verifier{client: client, observer: observer}
}

// Verify probes endpoint up to cfg.MaxAttempts times, waiting
// cfg.Interval between attempts. It returns the full probe history and
// whether the endpoint ever answered healthy. Probing stops at the
// first healthy answer; an unhealthy endpoint yields exactly
// cfg.MaxAttempts results. The error is non-nil only when the loop was
// cut short by ctx.
func (v *Verifier) Verify(ctx context.Context, endpoint string, cfg Config) ([]Result, bool, error) {
	results := make([]Result, 0, cfg.MaxAttempts)

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return results, false, fmt.Errorf("verification interrupted after %d probes: %w", len(results), ctx.Err())
			case <-time.After(cfg.Interval):
			}
		}

		result := v.probe(ctx, endpoint, attempt, cfg.RequestTimeout)
		results = append(results, result)
		v.observer.Event(observe.Event{
			Type:     observe.EventHealthProbe,
			Stage:    "verifying",
			Resource: endpoint,
			Message:  fmt.Sprintf("probe %d/%d: %s", attempt, cfg.MaxAttempts, result.Outcome),
			Fields:   map[string]string{"elapsed": result.Elapsed.String()},
		})

		if result.Outcome == OutcomeOk {
			return results, true, nil
		}
		if ctx.Err() != nil {
			return results, false, fmt.Errorf("verification interrupted after %d probes: %w", len(results), ctx.Err())
		}
	}

	return results, false, nil
}

// probe performs one GET against the endpoint with its own timeout.
func (v *Verifier) probe(ctx context.Context, endpoint string, attempt int, timeout time.Duration) Result {
	start := time.Now()
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := Result{Attempt: attempt}
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		result.Elapsed = time.Since(start)
		result.Outcome = OutcomeUnreachable
		result.Err = err
		return result
	}

	resp, err := v.client.Do(req)
	result.Elapsed = time.Since(start)
	if err != nil {
		if errors.Is(probeCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			result.Outcome = OutcomeTimeout
		} else {
			result.Outcome = OutcomeUnreachable
		}
		result.Err = err
		return result
	}
	defer resp.Body.Close()

	result.Status = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.Outcome = OutcomeOk
		return result
	}
	result.Outcome = OutcomeUnreachable
	result.Err = fmt.Errorf("endpoint answered %d", resp.StatusCode)
	return result
}
