package build

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/voicekit/xttsdeploy/internal/config"
	"github.com/voicekit/xttsdeploy/internal/observe"
	"github.com/voicekit/xttsdeploy/internal/platform/ssh"
)

// fakeRunner scripts per-command results keyed by substring match.
type fakeRunner struct {
	failing map[string]bool // recipe substring -> should fail
	ran     []string
}

func (f *fakeRunner) Run(_ context.Context, command string) (int, string, error) {
	f.ran = append(f.ran, command)
	for substr := range f.failing {
		if strings.Contains(command, substr) {
			return 1, "nvcc: command not found", &ssh.CommandError{Command: command, ExitStatus: 1, Output: "nvcc: command not found"}
		}
	}
	return 0, "ok", nil
}

func (f *fakeRunner) Upload(context.Context, []byte, string) error { return nil }

func variants() []config.BuildVariant {
	return []config.BuildVariant{
		{Name: "gpu-optimized", Recipe: "docker build -f Dockerfile.gpu -t xtts:gpu .", ImageRef: "xtts:gpu"},
		{Name: "cpu-fallback", Recipe: "docker build -f Dockerfile -t xtts:cpu .", ImageRef: "xtts:cpu"},
	}
}

func TestBuild_FirstVariantWins(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{}
	b := NewBuilder(runner, variants(), time.Minute, observe.Nop{})

	ref, attempts, err := b.Build(context.Background(), "/opt/xtts")
	if err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	if ref != "xtts:gpu" {
		t.Errorf("expected gpu artifact, got %q", ref)
	}
	if len(attempts) != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", len(attempts))
	}
	if attempts[0].Outcome != OutcomeSuccess || attempts[0].ArtifactRef != "xtts:gpu" {
		t.Errorf("unexpected attempt record: %+v", attempts[0])
	}
	// Fallback must not have been touched: one recipe plus its image check.
	if len(runner.ran) != 2 {
		t.Errorf("expected recipe and image check only, got %v", runner.ran)
	}
	for _, cmd := range runner.ran {
		if strings.Contains(cmd, "Dockerfile -t xtts:cpu") {
			t.Errorf("fallback recipe ran despite primary success: %s", cmd)
		}
	}
}

// A recipe that exits zero without producing its tag counts as a failed
// variant and the chain moves on.
func TestBuild_MissingImageFailsVariant(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{failing: map[string]bool{`image inspect "xtts:gpu"`: true}}
	b := NewBuilder(runner, variants(), time.Minute, observe.Nop{})

	ref, attempts, err := b.Build(context.Background(), "/opt/xtts")
	if err != nil {
		t.Fatalf("expected fallback success, got: %v", err)
	}
	if ref != "xtts:cpu" {
		t.Errorf("expected cpu artifact, got %q", ref)
	}
	if len(attempts) != 2 || attempts[0].Outcome != OutcomeFailed {
		t.Fatalf("gpu variant should have failed its image check, got %+v", attempts)
	}
	if attempts[0].Err == nil || !strings.Contains(attempts[0].Err.Error(), "does not exist") {
		t.Errorf("failure should name the missing image, got: %v", attempts[0].Err)
	}
}

func TestBuild_FallbackAfterPrimaryFails(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{failing: map[string]bool{"Dockerfile.gpu": true}}
	b := NewBuilder(runner, variants(), time.Minute, observe.Nop{})

	ref, attempts, err := b.Build(context.Background(), "/opt/xtts")
	if err != nil {
		t.Fatalf("expected fallback success, got: %v", err)
	}
	if ref != "xtts:cpu" {
		t.Errorf("expected cpu artifact, got %q", ref)
	}

	// Attempt log must read [gpu:Failed, cpu:Success], never reordered.
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	if attempts[0].Variant != "gpu-optimized" || attempts[0].Outcome != OutcomeFailed {
		t.Errorf("first attempt should be gpu-optimized:failed, got %+v", attempts[0])
	}
	if attempts[1].Variant != "cpu-fallback" || attempts[1].Outcome != OutcomeSuccess {
		t.Errorf("second attempt should be cpu-fallback:success, got %+v", attempts[1])
	}
	if attempts[0].Err == nil {
		t.Error("failed attempt must carry its error")
	}
}

func TestBuild_AllVariantsExhausted(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{failing: map[string]bool{"docker build": true}}
	b := NewBuilder(runner, variants(), time.Minute, observe.Nop{})

	_, attempts, err := b.Build(context.Background(), "/opt/xtts")
	if err == nil {
		t.Fatal("expected exhaustion error, got nil")
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *ExhaustedError, got %T: %v", err, err)
	}
	// One reason per variant, exactly.
	if len(exhausted.Reasons) != len(variants()) {
		t.Errorf("expected %d reasons, got %d", len(variants()), len(exhausted.Reasons))
	}
	if len(attempts) != 2 {
		t.Errorf("expected attempt log for every variant, got %d entries", len(attempts))
	}
	for _, a := range attempts {
		if a.Outcome != OutcomeFailed {
			t.Errorf("attempt %q should be failed, got %s", a.Variant, a.Outcome)
		}
	}
}

func TestBuild_ManyVariants(t *testing.T) {
	t.Parallel()
	chain := []config.BuildVariant{
		{Name: "v1", Recipe: "make variant-one", ImageRef: "xtts:v1"},
		{Name: "v2", Recipe: "make variant-two", ImageRef: "xtts:v2"},
		{Name: "v3", Recipe: "make variant-three", ImageRef: "xtts:v3"},
		{Name: "v4", Recipe: "make variant-four", ImageRef: "xtts:v4"},
	}
	runner := &fakeRunner{failing: map[string]bool{"variant-one": true, "variant-two": true, "variant-three": true}}
	b := NewBuilder(runner, chain, time.Minute, observe.Nop{})

	ref, attempts, err := b.Build(context.Background(), "/src")
	if err != nil {
		t.Fatalf("expected v4 to succeed, got: %v", err)
	}
	if ref != "xtts:v4" {
		t.Errorf("expected xtts:v4, got %q", ref)
	}
	if len(attempts) != 4 {
		t.Errorf("expected 4 attempts, got %d", len(attempts))
	}
	for i, want := range []string{"v1", "v2", "v3", "v4"} {
		if attempts[i].Variant != want {
			t.Errorf("attempt %d should be %s, got %s", i, want, attempts[i].Variant)
		}
	}
}

func TestBuild_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewBuilder(&fakeRunner{}, variants(), time.Minute, observe.Nop{})
	_, _, err := b.Build(ctx, "/opt/xtts")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
}

func TestBuild_RecipeRunsInSourceDir(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{}
	b := NewBuilder(runner, variants(), time.Minute, observe.Nop{})

	if _, _, err := b.Build(context.Background(), "/opt/xtts"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(runner.ran[0], `cd "/opt/xtts" && `) {
		t.Errorf("recipe should run inside the source dir, got: %s", runner.ran[0])
	}
}
