package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/voicekit/xttsdeploy/internal/config"
	"github.com/voicekit/xttsdeploy/internal/platform/ssh"
)

// ActivationError reports a failed workload swap on the target host.
type ActivationError struct {
	Artifact string
	Err      error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("failed to activate artifact %s: %v", e.Artifact, e.Err)
}

func (e *ActivationError) Unwrap() error {
	return e.Err
}

// activator swaps the serving container on a host.
type activator struct {
	runner   ssh.Communicator
	workload config.WorkloadConfig
}

// Activate stops the current workload container and starts the given
// artifact in its place. Stopping a container that is not running is
// not an error; the swap must work on a fresh host.
func (a *activator) Activate(ctx context.Context, artifact string) error {
	if err := a.stop(ctx); err != nil {
		return &ActivationError{Artifact: artifact, Err: err}
	}
	if err := a.start(ctx, artifact); err != nil {
		return &ActivationError{Artifact: artifact, Err: err}
	}
	return nil
}

func (a *activator) stop(ctx context.Context) error {
	cmd := fmt.Sprintf("docker rm -f %q", a.workload.ContainerName)
	_, output, err := a.runner.Run(ctx, cmd)
	if err != nil {
		var cmdErr *ssh.CommandError
		if errors.As(err, &cmdErr) && strings.Contains(output, "No such container") {
			return nil
		}
		return fmt.Errorf("failed to stop previous workload: %w", err)
	}
	return nil
}

func (a *activator) start(ctx context.Context, artifact string) error {
	cmd := a.runCommand(artifact)
	if _, output, err := a.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("failed to start workload: %w (output: %s)", err, output)
	}
	return nil
}

// runCommand builds the docker run invocation for the workload.
func (a *activator) runCommand(artifact string) string {
	w := a.workload
	args := []string{
		"docker", "run", "-d",
		"--name", fmt.Sprintf("%q", w.ContainerName),
		"--restart", "unless-stopped",
		"-p", fmt.Sprintf("%d:%d", w.Port, w.Port),
	}
	if w.DeviceMode == config.DeviceGPU {
		args = append(args, "--gpus", "all")
	}
	if w.UseCache {
		args = append(args, "-v", "/opt/xtts/cache:/app/tts_models")
	}
	args = append(args, artifact)
	args = append(args, "--listen-port", fmt.Sprintf("%d", w.Port), "--device", w.DeviceMode)
	if w.UseCache {
		args = append(args, "--use-cache")
	}
	if w.UseDeepSpeed {
		args = append(args, "--deepspeed")
	}
	return strings.Join(args, " ")
}
