package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"toolbox/internal/domain"
	"toolbox/internal/metrics"
	"toolbox/internal/sandbox"
	"toolbox/internal/security"
)

const (
	defaultCommandTimeout = 30 * time.Second
	maxCommandLength      = 1000
)

// ExecError is a process run that ended abnormally, with whatever output was
// captured before it was stopped.
type ExecError struct {
	Err    error
	Result *sandbox.Result
}

func (e *ExecError) Error() string { return e.Err.Error() }
func (e *ExecError) Unwrap() error { return e.Err }

// Output returns the captured streams, if any.
func (e *ExecError) Output() string {
	if e.Result == nil {
		return ""
	}
	return joinStreams(e.Result.Stdout, e.Result.Stderr)
}

// CommandConfig bounds every executeCommand run.
type CommandConfig struct {
	Timeout        time.Duration
	MaxOutputBytes int
}

// CommandTool runs allow-listed shell commands.
type CommandTool struct {
	authorizer     *security.Authorizer
	runner         *sandbox.Runner
	timeout        time.Duration
	maxOutputBytes int
}

// NewCommandTool gates each command through authorizer before runner starts it.
func NewCommandTool(authorizer *security.Authorizer, runner *sandbox.Runner, cfg CommandConfig) *CommandTool {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCommandTimeout
	}
	return &CommandTool{
		authorizer:     authorizer,
		runner:         runner,
		timeout:        cfg.Timeout,
		maxOutputBytes: cfg.MaxOutputBytes,
	}
}

func (t *CommandTool) Descriptor() Descriptor {
	return Descriptor{
		Name:  "executeCommand",
		Title: "Execute Command",
		Description: "Run a shell command from a fixed allow-list (for example 'ls', 'git status', 'az account show'). " +
			"Returns stdout, stderr and the exit code. Commands outside the allow-list are refused.",
		Schema: Schema{Fields: []Field{
			{Name: "command", Type: TypeString, Required: true, MaxLength: maxCommandLength,
				Description: "The command line to execute"},
		}},
	}
}

func (t *CommandTool) Handle(ctx context.Context, call *Call) (*domain.Result, error) {
	command := strings.TrimSpace(call.Args.String("command"))

	if err := t.authorizer.Authorize(ctx, call.InvocationID, call.Tool, command); err != nil {
		metrics.CommandsBlocked.Inc()
		return nil, err
	}

	res, err := t.runner.Run(ctx, command, t.timeout, t.maxOutputBytes)
	if err != nil {
		switch {
		case errors.Is(err, sandbox.ErrTimeout):
			metrics.ProcessFaults("timeout").Inc()
		case errors.Is(err, sandbox.ErrOutputTooLarge):
			metrics.ProcessFaults("output").Inc()
		}
		return nil, &ExecError{Err: fmt.Errorf("command %q: %w", command, err), Result: res}
	}

	text := formatExecution(command, res)
	if res.ExitCode != 0 {
		return domain.ErrorResult(text), nil
	}
	return domain.TextResult(text), nil
}

func formatExecution(command string, res *sandbox.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "$ %s\n", command)
	if out := joinStreams(res.Stdout, res.Stderr); out != "" {
		sb.WriteString(out)
		sb.WriteString("\n")
	} else {
		sb.WriteString("(no output)\n")
	}
	fmt.Fprintf(&sb, "[exit code: %d, %s]", res.ExitCode, res.Duration.Round(time.Millisecond))
	return sb.String()
}

func joinStreams(stdout, stderr string) string {
	stdout = strings.TrimRight(stdout, "\n")
	stderr = strings.TrimRight(stderr, "\n")
	switch {
	case stderr == "":
		return stdout
	case stdout == "":
		return "[stderr]\n" + stderr
	}
	return stdout + "\n[stderr]\n" + stderr
}
