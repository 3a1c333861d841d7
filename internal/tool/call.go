package tool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"toolbox/internal/domain"
	"toolbox/internal/elicitation"
	"toolbox/internal/metrics"
)

// Call is the per-invocation context handed to a Handler. It is never shared
// between invocations.
type Call struct {
	InvocationID string
	Tool         string
	Args         Args
	Logger       *slog.Logger

	elicitor      elicitation.Elicitor
	elicitTimeout time.Duration
	audit         domain.AuditLogger

	mu     sync.Mutex
	active *elicitation.Session
}

// Elicit asks the client for input and blocks until the exchange is
// resolved. Only one exchange may be open per invocation; a second one can
// start after the first reaches a terminal state.
func (c *Call) Elicit(ctx context.Context, req elicitation.Request) (elicitation.Outcome, error) {
	c.mu.Lock()
	if c.active != nil && !c.active.State().Terminal() {
		c.mu.Unlock()
		return elicitation.Outcome{State: elicitation.Requested}, elicitation.ErrInFlight
	}
	s := elicitation.NewSession(c.elicitor, elicitation.Options{
		Timeout: c.elicitTimeout,
		Logger:  c.Logger,
	})
	c.active = s
	c.mu.Unlock()

	out, err := s.Request(ctx, req)
	if out.State == elicitation.Idle {
		// rejected before anything was sent
		c.mu.Lock()
		c.active = nil
		c.mu.Unlock()
		return out, err
	}

	metrics.Elicitations(out.State.String()).Inc()
	entry := domain.AuditEntry{
		InvocationID: c.InvocationID,
		Action:       domain.AuditElicitation,
		ToolName:     c.Tool,
		Result:       out.State.String(),
		Details:      "field=" + req.Field + " session=" + s.ID(),
	}
	if err != nil {
		entry.Details += " err=" + err.Error()
	}
	if auditErr := c.audit.LogAudit(context.WithoutCancel(ctx), entry); auditErr != nil {
		c.Logger.Warn("audit write failed", "action", entry.Action, "err", auditErr)
	}
	return out, err
}
