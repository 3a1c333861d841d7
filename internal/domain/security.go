package domain

import (
	"context"
	"time"
)

// Audit actions.
const (
	AuditToolCall       = "tool_call"
	AuditCommandExec    = "command_exec"
	AuditCommandBlocked = "command_blocked"
	AuditElicitation    = "elicitation"
)

// AuditEntry is one row of the audit log.
type AuditEntry struct {
	ID           int64     `json:"id,omitempty"`
	InvocationID string    `json:"invocationId,omitempty"`
	Action       string    `json:"action"` // tool_call | command_exec | command_blocked | elicitation
	ToolName     string    `json:"toolName,omitempty"`
	Command      string    `json:"command,omitempty"`
	Result       string    `json:"result"` // ok | error | allowed | blocked | accepted | declined | cancelled | failed
	Details      string    `json:"details,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// AuditLogger persists audit entries. Implementations must be safe for concurrent use.
type AuditLogger interface {
	LogAudit(ctx context.Context, entry AuditEntry) error
}

// NopAudit discards all entries.
type NopAudit struct{}

func (NopAudit) LogAudit(context.Context, AuditEntry) error { return nil }
