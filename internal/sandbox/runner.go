// Package sandbox runs authorized commands in child processes with a wall-time
// budget and a cap on captured output.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultMaxOutputBytes = 65536
	// waitDelay bounds how long Wait keeps draining pipes held open by
	// grandchildren after the direct child is gone.
	waitDelay = 2 * time.Second
)

// baseEnvKeys are always passed through when set.
var baseEnvKeys = []string{"PATH", "HOME", "USERPROFILE", "SYSTEMROOT", "TEMP", "TMP", "LANG"}

// Result is the captured outcome of one process run. A non-zero ExitCode is
// data for the caller, not an error.
type Result struct {
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	ExitCode  int           `json:"exitCode"`
	Duration  time.Duration `json:"duration"`
	Truncated bool          `json:"truncated"`
}

// Config sets where commands run and which environment variables they see.
// An empty WorkingDir means the server's current directory.
type Config struct {
	WorkingDir     string
	EnvPassthrough []string
	Logger         *slog.Logger
}

// Runner spawns processes. It holds no per-run state and is safe for
// concurrent use.
type Runner struct {
	workingDir string
	env        []string
	logger     *slog.Logger
}

// NewRunner resolves WorkingDir to an absolute path and snapshots the child
// environment: the base keys plus EnvPassthrough, when set.
func NewRunner(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dir := cfg.WorkingDir
	if dir != "" {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
	}
	return &Runner{
		workingDir: dir,
		env:        buildEnvironment(cfg.EnvPassthrough),
		logger:     logger,
	}
}

// Run executes command through the host shell.
func (r *Runner) Run(ctx context.Context, command string, timeout time.Duration, maxOutputBytes int) (*Result, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, fmt.Errorf("missing command")
	}
	return r.run(ctx, shellArgv(command), timeout, maxOutputBytes)
}

// Exec executes argv directly, without a shell.
func (r *Runner) Exec(ctx context.Context, argv []string, timeout time.Duration, maxOutputBytes int) (*Result, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, fmt.Errorf("missing command")
	}
	return r.run(ctx, argv, timeout, maxOutputBytes)
}

func (r *Runner) run(ctx context.Context, argv []string, timeout time.Duration, maxOutputBytes int) (*Result, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxOutputBytes <= 0 {
		maxOutputBytes = defaultMaxOutputBytes
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Overflowing the output budget cancels the run, which kills the process.
	stdout, stderr, limit := newBoundedPair(maxOutputBytes, cancel)

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	configureProcess(cmd)
	cmd.Dir = r.workingDir
	cmd.Env = r.env
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err := cmd.Run()
	reapGroup(cmd)

	res := &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ExitCode:  -1,
		Duration:  time.Since(start),
		Truncated: limit.Exceeded(),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	r.logger.Debug("process finished",
		"argv0", argv[0],
		"exit", res.ExitCode,
		"ms", res.Duration.Milliseconds(),
		"stdout_bytes", len(res.Stdout),
		"stderr_bytes", len(res.Stderr),
		"truncated", res.Truncated,
	)

	switch {
	case res.Truncated:
		return res, fmt.Errorf("%w: exceeded %d bytes", ErrOutputTooLarge, maxOutputBytes)
	case ctx.Err() != nil:
		return res, ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return res, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) || errors.Is(err, exec.ErrWaitDelay) {
			return res, nil
		}
		return res, fmt.Errorf("start %s: %w", argv[0], err)
	}
	return res, nil
}

// buildEnvironment constructs a minimal environment for child processes.
func buildEnvironment(passthrough []string) []string {
	var env []string
	seen := make(map[string]bool)
	for _, key := range append(append([]string(nil), baseEnvKeys...), passthrough...) {
		if seen[key] {
			continue
		}
		seen[key] = true
		if val, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+val)
		}
	}
	return env
}
