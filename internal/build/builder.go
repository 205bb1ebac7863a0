// Package build produces a deployable image by trying build variants in
// priority order.
//
// GPU-optimized builds fail on heterogeneous host kernels and CUDA
// toolchains often enough that a strictly ordered fallback chain is the
// difference between a degraded deploy and a page at 3am. The chain
// trades peak performance for guaranteed deployability: the first
// variant whose recipe succeeds wins, and the attempt log records which
// one is serving.
package build

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/voicekit/xttsdeploy/internal/config"
	"github.com/voicekit/xttsdeploy/internal/observe"
	"github.com/voicekit/xttsdeploy/internal/platform/ssh"
)

// Outcome is the result of one build attempt.
type Outcome string

// Attempt outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Attempt records one variant invocation. Attempts are appended in
// variant priority order and never reordered.
type Attempt struct {
	Variant     string
	Outcome     Outcome
	Timestamp   time.Time
	ArtifactRef string // set iff Outcome == OutcomeSuccess
	Err         error  // set iff Outcome == OutcomeFailed
}

// ExhaustedError reports that every variant in the chain failed.
// Reasons holds one entry per variant, in priority order.
type ExhaustedError struct {
	Reasons []error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d build variants exhausted: %v", len(e.Reasons), errors.Join(e.Reasons...))
}

func (e *ExhaustedError) Unwrap() error {
	return errors.Join(e.Reasons...)
}

// Builder runs build recipes on the target host over the remote channel.
type Builder struct {
	runner   ssh.Communicator
	variants []config.BuildVariant
	timeout  time.Duration
	observer observe.Observer
}

// NewBuilder creates a builder for the given ordered variant chain.
func NewBuilder(runner ssh.Communicator, variants []config.BuildVariant, timeout time.Duration, observer observe.Observer) *Builder {
	return &Builder{
		runner:   runner,
		variants: variants,
		timeout:  timeout,
		observer: observer,
	}
}

// Build tries each variant in priority order inside sourceDir and
// returns the first successful artifact reference along with the full
// attempt log. When every variant fails it returns an *ExhaustedError
// aggregating each variant's failure reason; the attempt log is
// returned either way.
func (b *Builder) Build(ctx context.Context, sourceDir string) (string, []Attempt, error) {
	attempts := make([]Attempt, 0, len(b.variants))
	reasons := make([]error, 0, len(b.variants))

	for _, variant := range b.variants {
		if err := ctx.Err(); err != nil {
			return "", attempts, fmt.Errorf("build cancelled before variant %q: %w", variant.Name, err)
		}

		ref, err := b.tryVariant(ctx, sourceDir, variant)
		attempt := Attempt{
			Variant:   variant.Name,
			Timestamp: time.Now(),
		}
		if err == nil {
			attempt.Outcome = OutcomeSuccess
			attempt.ArtifactRef = ref
			attempts = append(attempts, attempt)
			b.observer.Event(observe.Event{
				Type:     observe.EventBuildAttempt,
				Stage:    "building",
				Resource: variant.Name,
				Message:  fmt.Sprintf("variant succeeded, artifact %s", ref),
				Fields:   map[string]string{"outcome": string(OutcomeSuccess), "description": variant.Description},
			})
			return ref, attempts, nil
		}

		attempt.Outcome = OutcomeFailed
		attempt.Err = err
		attempts = append(attempts, attempt)
		reasons = append(reasons, fmt.Errorf("variant %q: %w", variant.Name, err))
		b.observer.Event(observe.Event{
			Type:     observe.EventBuildAttempt,
			Stage:    "building",
			Resource: variant.Name,
			Message:  fmt.Sprintf("variant failed, trying next: %v", err),
			Fields:   map[string]string{"outcome": string(OutcomeFailed)},
		})
	}

	return "", attempts, &ExhaustedError{Reasons: reasons}
}

// tryVariant runs one recipe and verifies the artifact exists.
func (b *Builder) tryVariant(ctx context.Context, sourceDir string, variant config.BuildVariant) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	cmd := fmt.Sprintf("cd %q && %s", sourceDir, variant.Recipe)
	status, output, err := b.runner.Run(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("recipe exited %d: %w (output: %s)", status, err, tail(output, 2000))
	}

	// A recipe can exit zero without producing the tag it promised.
	check := fmt.Sprintf("docker image inspect %q >/dev/null", variant.ImageRef)
	if _, output, err := b.runner.Run(ctx, check); err != nil {
		return "", fmt.Errorf("recipe succeeded but image %s does not exist: %w (output: %s)", variant.ImageRef, err, tail(output, 2000))
	}
	return variant.ImageRef, nil
}

// tail returns at most n trailing bytes of s; build logs can be huge
// and only the end carries the failure.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
