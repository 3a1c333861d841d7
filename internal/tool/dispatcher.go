package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"toolbox/internal/domain"
	"toolbox/internal/elicitation"
	"toolbox/internal/metrics"
	"toolbox/internal/security"
)

const (
	defaultMaxConcurrent = 8
	maxAuditDetails      = 512
)

// DispatcherOptions configure a Dispatcher. Zero values fall back to
// defaults: no elicitor, 8 concurrent calls, no audit, slog.Default.
type DispatcherOptions struct {
	Elicitor      elicitation.Elicitor
	ElicitTimeout time.Duration
	MaxConcurrent int
	Audit         domain.AuditLogger
	Logger        *slog.Logger
}

// Dispatcher is the failure boundary around every tool invocation: whatever
// the handler does, Invoke returns a result.
type Dispatcher struct {
	registry      *Registry
	sem           *semaphore.Weighted
	elicitTimeout time.Duration
	audit         domain.AuditLogger
	logger        *slog.Logger

	mu       sync.RWMutex
	elicitor elicitation.Elicitor
}

// NewDispatcher wraps reg. Tools are looked up on every call, so the
// registry must be filled before the first Invoke.
func NewDispatcher(reg *Registry, opts DispatcherOptions) *Dispatcher {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.Audit == nil {
		opts.Audit = domain.NopAudit{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		registry:      reg,
		sem:           semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		elicitTimeout: opts.ElicitTimeout,
		audit:         opts.Audit,
		logger:        opts.Logger,
		elicitor:      opts.Elicitor,
	}
}

// SetElicitor replaces the client bridge used for elicitation. The transport
// calls it once its server exists.
func (d *Dispatcher) SetElicitor(e elicitation.Elicitor) {
	d.mu.Lock()
	d.elicitor = e
	d.mu.Unlock()
}

func (d *Dispatcher) Registry() *Registry { return d.registry }

// Invoke validates and runs one tool call. It never panics and never returns
// nil; failures come back as error-flagged results.
func (d *Dispatcher) Invoke(ctx context.Context, name string, raw map[string]any) (res *domain.Result) {
	id := uuid.NewString()
	logger := d.logger.With("tool", name, "invocation", id)
	start := time.Now()
	outcome := "ok"
	var cause error

	defer func() {
		if p := recover(); p != nil {
			logger.Error("tool panicked", "panic", p, "stack", string(debug.Stack()))
			outcome = "panic"
			cause = fmt.Errorf("panic: %v", p)
			res = domain.ErrorResult(fmt.Sprintf("Error: tool %s failed unexpectedly: %v", name, p))
		}
		d.finish(ctx, logger, id, name, outcome, cause, time.Since(start))
	}()

	handler, args, err := d.registry.ValidateAndLookup(name, raw)
	if err != nil {
		outcome, cause = "invalid", err
		return domain.ErrorResult(d.describe(name, err))
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		outcome, cause = "error", err
		return domain.ErrorResult(fmt.Sprintf("Error: invocation of %s cancelled before it started: %v", name, err))
	}
	defer d.sem.Release(1)
	metrics.CallsInFlight.Inc()
	defer metrics.CallsInFlight.Dec()

	d.mu.RLock()
	elicitor := d.elicitor
	d.mu.RUnlock()

	call := &Call{
		InvocationID:  id,
		Tool:          name,
		Args:          args,
		Logger:        logger,
		elicitor:      elicitor,
		elicitTimeout: d.elicitTimeout,
		audit:         d.audit,
	}

	logger.Debug("tool invoked")
	result, err := handler(ctx, call)
	if err != nil {
		outcome, cause = "error", err
		return domain.ErrorResult(d.describe(name, err))
	}
	if result == nil {
		return domain.TextResult("(no output)")
	}
	if result.IsError {
		outcome = "error"
	}
	return result
}

func (d *Dispatcher) finish(ctx context.Context, logger *slog.Logger, id, name, outcome string, cause error, elapsed time.Duration) {
	metrics.ToolCalls(name, outcome).Inc()
	metrics.ToolLatency(name).Observe(elapsed.Seconds())

	entry := domain.AuditEntry{
		InvocationID: id,
		Action:       domain.AuditToolCall,
		ToolName:     name,
		Result:       outcome,
	}
	if cause != nil {
		entry.Details = truncate(cause.Error(), maxAuditDetails)
		logger.Warn("tool failed", "outcome", outcome, "ms", elapsed.Milliseconds(), "err", cause)
	} else {
		logger.Info("tool completed", "outcome", outcome, "ms", elapsed.Milliseconds())
	}
	// the caller's context may already be done; the audit row is still wanted
	if err := d.audit.LogAudit(context.WithoutCancel(ctx), entry); err != nil {
		logger.Warn("audit write failed", "err", err)
	}
}

// describe renders err as the user-facing text of an error result.
func (d *Dispatcher) describe(name string, err error) string {
	var sb strings.Builder

	var verr *ValidationError
	var denied *security.DeniedError
	var execErr *ExecError
	switch {
	case errors.As(err, &verr):
		fmt.Fprintf(&sb, "Error: invalid arguments for %s: %s", name, verr.Error())
	case errors.Is(err, ErrUnknownTool):
		fmt.Fprintf(&sb, "Error: unknown tool %q. Available tools: %s", name, strings.Join(d.registry.Names(), ", "))
	case errors.As(err, &denied):
		fmt.Fprintf(&sb, "Error: command not allowed: %s (%s)\n\nAllowed command prefixes:", denied.Command, denied.Reason)
		for _, p := range denied.AllowList {
			fmt.Fprintf(&sb, "\n  - %s", p)
		}
	case errors.As(err, &execErr):
		fmt.Fprintf(&sb, "Error: %v", execErr.Err)
		if out := execErr.Output(); out != "" {
			fmt.Fprintf(&sb, "\n\nCaptured output:\n%s", out)
		}
	default:
		fmt.Fprintf(&sb, "Error: %v", err)
	}

	if hint := remediationHint(err); hint != "" {
		fmt.Fprintf(&sb, "\n\nHint: %s", hint)
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
