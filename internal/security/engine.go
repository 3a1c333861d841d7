package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"toolbox/internal/config"
	"toolbox/internal/domain"
)

// ErrDenied is wrapped by every authorization failure.
var ErrDenied = errors.New("command not permitted")

// shellMetacharacters are rejected anywhere in a command when strict mode is on.
// "&" also covers "&&", "|" covers "||" and "$" covers "$(" and "${".
var shellMetacharacters = []string{
	"&", "|", ";", "`", "$", "(", ")", ">", "<", "\n", "\r",
}

// DeniedError reports why a command was refused, along with the allow-list.
type DeniedError struct {
	Command   string
	Reason    string
	AllowList []string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("command %q denied: %s", e.Command, e.Reason)
}

func (e *DeniedError) Unwrap() error { return ErrDenied }

// Authorizer decides whether free-form shell commands may run. It is read-only
// after construction and safe to share between invocations.
type Authorizer struct {
	entries     []string // as configured, for display
	prefixes    []string // trimmed + lower-cased
	rejectMeta  bool
	auditLogger domain.AuditLogger
	logger      *slog.Logger
}

// NewAuthorizer builds an Authorizer from the security section. Blank
// allow-list entries are dropped. A nil auditLogger discards audit entries.
func NewAuthorizer(cfg config.SecurityConfig, auditLogger domain.AuditLogger, logger *slog.Logger) *Authorizer {
	if auditLogger == nil {
		auditLogger = domain.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Authorizer{
		rejectMeta:  cfg.RejectMetacharacters,
		auditLogger: auditLogger,
		logger:      logger,
	}
	for _, e := range cfg.AllowList {
		p := strings.ToLower(strings.TrimSpace(e))
		if p == "" {
			// an empty prefix would match everything
			continue
		}
		a.entries = append(a.entries, strings.TrimSpace(e))
		a.prefixes = append(a.prefixes, p)
	}
	return a
}

// IsAllowed reports whether the trimmed, lower-cased command starts with any
// allow-list entry. Arguments after the prefix are not inspected.
func (a *Authorizer) IsAllowed(command string) bool {
	cmd := strings.ToLower(strings.TrimSpace(command))
	if cmd == "" {
		return false
	}
	for _, p := range a.prefixes {
		if strings.HasPrefix(cmd, p) {
			return true
		}
	}
	return false
}

// Authorize applies IsAllowed and, in strict mode, the metacharacter check.
// It records the decision in the audit log.
func (a *Authorizer) Authorize(ctx context.Context, invocationID, toolName, command string) error {
	cmd := strings.TrimSpace(command)

	if !a.IsAllowed(cmd) {
		return a.deny(ctx, invocationID, toolName, cmd, "no allow-list entry matches")
	}
	if a.rejectMeta {
		for _, m := range shellMetacharacters {
			if strings.Contains(cmd, m) {
				return a.deny(ctx, invocationID, toolName, cmd, fmt.Sprintf("contains shell metacharacter %q", m))
			}
		}
	}

	a.logAction(ctx, domain.AuditEntry{
		InvocationID: invocationID,
		Action:       domain.AuditCommandExec,
		ToolName:     toolName,
		Command:      cmd,
		Result:       "allowed",
	})
	return nil
}

// AllowList returns a copy of the configured entries.
func (a *Authorizer) AllowList() []string {
	return append([]string(nil), a.entries...)
}

func (a *Authorizer) deny(ctx context.Context, invocationID, toolName, cmd, reason string) error {
	a.logger.Warn("command BLOCKED",
		"tool", toolName,
		"command", cmd,
		"reason", reason,
	)
	a.logAction(ctx, domain.AuditEntry{
		InvocationID: invocationID,
		Action:       domain.AuditCommandBlocked,
		ToolName:     toolName,
		Command:      cmd,
		Result:       "blocked",
		Details:      reason,
	})
	return &DeniedError{Command: cmd, Reason: reason, AllowList: a.AllowList()}
}

func (a *Authorizer) logAction(ctx context.Context, entry domain.AuditEntry) {
	if err := a.auditLogger.LogAudit(ctx, entry); err != nil {
		a.logger.Warn("audit write failed", "action", entry.Action, "err", err)
	}
}
