package security

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"toolbox/internal/config"
	"toolbox/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recordingAudit keeps every entry for inspection.
type recordingAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (r *recordingAudit) LogAudit(ctx context.Context, entry domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func defaultTestCfg() config.SecurityConfig {
	return config.SecurityConfig{
		AllowList:            []string{"ls", "echo", "git status", "git log --oneline -10", "  PWD  "},
		RejectMetacharacters: true,
	}
}

func mustAuthorizer(t *testing.T, cfg config.SecurityConfig) (*Authorizer, *recordingAudit) {
	t.Helper()
	audit := &recordingAudit{}
	return NewAuthorizer(cfg, audit, testLogger()), audit
}

// --- IsAllowed ---

func TestIsAllowed_PrefixMatch(t *testing.T) {
	a, _ := mustAuthorizer(t, defaultTestCfg())
	for _, cmd := range []string{"ls", "ls -la", "echo hi", "git status", "git log --oneline -10"} {
		if !a.IsAllowed(cmd) {
			t.Errorf("expected %q to be allowed", cmd)
		}
	}
}

func TestIsAllowed_CaseInsensitive(t *testing.T) {
	a, _ := mustAuthorizer(t, defaultTestCfg())
	if !a.IsAllowed("GIT STATUS --short") {
		t.Fatal("expected upper-case git status to be allowed")
	}
	if !a.IsAllowed("pwd") {
		t.Fatal("expected entry with surrounding whitespace to match")
	}
}

func TestIsAllowed_Denied(t *testing.T) {
	a, _ := mustAuthorizer(t, defaultTestCfg())
	for _, cmd := range []string{"rm -rf /", "git push", "cat /etc/passwd", ""} {
		if a.IsAllowed(cmd) {
			t.Errorf("expected %q to be denied", cmd)
		}
	}
}

func TestIsAllowed_TrimsCandidate(t *testing.T) {
	a, _ := mustAuthorizer(t, defaultTestCfg())
	if !a.IsAllowed("   echo padded   ") {
		t.Fatal("expected surrounding whitespace to be ignored")
	}
}

func TestIsAllowed_PrefixIsNotExact(t *testing.T) {
	a, _ := mustAuthorizer(t, defaultTestCfg())
	// "git log" alone is shorter than the configured entry.
	if a.IsAllowed("git log") {
		t.Fatal("expected shorter command not to match a longer entry")
	}
	// Suffixes are not inspected by IsAllowed.
	if !a.IsAllowed("echo hi; rm -rf /") {
		t.Fatal("IsAllowed should only look at the prefix")
	}
}

func TestIsAllowed_EmptyEntriesIgnored(t *testing.T) {
	a, _ := mustAuthorizer(t, config.SecurityConfig{AllowList: []string{"", "   "}})
	if a.IsAllowed("anything") {
		t.Fatal("blank entries must not match every command")
	}
	if len(a.AllowList()) != 0 {
		t.Fatalf("expected empty allow-list, got %v", a.AllowList())
	}
}

// --- Authorize ---

func TestAuthorize_Allowed(t *testing.T) {
	a, audit := mustAuthorizer(t, defaultTestCfg())
	if err := a.Authorize(context.Background(), "inv-1", "executeCommand", "echo hi"); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if len(audit.entries) != 1 || audit.entries[0].Action != domain.AuditCommandExec {
		t.Fatalf("expected one command_exec audit entry, got %+v", audit.entries)
	}
}

func TestAuthorize_DeniedCarriesAllowList(t *testing.T) {
	a, audit := mustAuthorizer(t, defaultTestCfg())
	err := a.Authorize(context.Background(), "inv-1", "executeCommand", "rm -rf /")
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	var de *DeniedError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DeniedError, got %T", err)
	}
	if len(de.AllowList) != 5 {
		t.Fatalf("expected 5 allow-list entries, got %v", de.AllowList)
	}
	if audit.entries[0].Action != domain.AuditCommandBlocked {
		t.Fatalf("expected command_blocked audit, got %q", audit.entries[0].Action)
	}
}

func TestAuthorize_MetacharactersRejected(t *testing.T) {
	a, _ := mustAuthorizer(t, defaultTestCfg())
	for _, cmd := range []string{
		"echo hi; rm -rf /", "echo $(whoami)", "ls | sh", "echo x > /etc/hosts", "ls && reboot",
		"echo hi & touch x", "echo ${HOME}", "ls (x)",
	} {
		if err := a.Authorize(context.Background(), "", "executeCommand", cmd); !errors.Is(err, ErrDenied) {
			t.Errorf("expected %q to be denied, got %v", cmd, err)
		}
	}
}

func TestAuthorize_MetacharactersPermissiveMode(t *testing.T) {
	cfg := defaultTestCfg()
	cfg.RejectMetacharacters = false
	a, _ := mustAuthorizer(t, cfg)
	if err := a.Authorize(context.Background(), "", "executeCommand", "echo a | tr a b"); err != nil {
		t.Fatalf("expected permissive mode to allow pipes, got %v", err)
	}
}

func TestNewAuthorizer_NilCollaborators(t *testing.T) {
	a := NewAuthorizer(defaultTestCfg(), nil, nil)
	if err := a.Authorize(context.Background(), "", "executeCommand", "ls"); err != nil {
		t.Fatalf("authorize with nil audit: %v", err)
	}
}
