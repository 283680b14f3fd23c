// Package execlocal runs instance commands as local subprocesses. It is the
// reference Executor for CLI and test use; production deployments substitute
// an isolated container or VM executor behind the same interface.
package execlocal

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/vk/mergegate/internal/ctxlog"
	"github.com/vk/mergegate/internal/retry"
	"github.com/vk/mergegate/internal/scheduler"
)

// envPrefix namespaces the variables injected into instance processes.
const envPrefix = "MERGEGATE_"

// Executor shells out per attempt. Dir, when set, is the working directory
// every instance runs in.
type Executor struct {
	Dir string
}

// New returns a local subprocess executor rooted at dir.
func New(dir string) *Executor {
	return &Executor{Dir: dir}
}

// Run implements scheduler.Executor. The instance's job name, ID, attempt
// and matrix axis values are injected into the process environment. A
// command that exits non-zero surfaces as that exit code; a command killed
// by a signal surfaces as the agent-lost code.
func (e *Executor) Run(ctx context.Context, spec scheduler.InstanceSpec) (retry.OutcomeCode, error) {
	logger := ctxlog.FromContext(ctx).With("instanceID", spec.ID, "attempt", spec.Attempt)

	if len(spec.Command) == 0 {
		logger.Debug("Instance has no command, treating as success.")
		return retry.CodeSuccess, nil
	}

	cmd := exec.CommandContext(ctx, spec.Command[0], spec.Command[1:]...)
	cmd.Dir = e.Dir
	cmd.Env = append(os.Environ(),
		envPrefix+"INSTANCE="+spec.ID,
		envPrefix+"JOB="+spec.Job,
		envPrefix+"ATTEMPT="+strconv.Itoa(spec.Attempt),
	)
	for axis, value := range spec.Axes {
		cmd.Env = append(cmd.Env, envPrefix+"AXIS_"+strings.ToUpper(axis)+"="+value)
	}

	output, err := cmd.CombinedOutput()
	if err == nil {
		return retry.CodeSuccess, nil
	}
	if ctx.Err() != nil {
		return retry.CodeSuccess, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		logger.Warn("Instance command failed.", "code", code, "output", strings.TrimSpace(string(output)))
		if code < 0 {
			// Killed by a signal: report the distinguished agent-lost code.
			return retry.CodeAgentLost, nil
		}
		return retry.OutcomeCode(code), nil
	}
	// The command never started (missing binary, bad permissions).
	return retry.CodeSuccess, err
}
