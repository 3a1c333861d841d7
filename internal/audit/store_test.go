package audit

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"toolbox/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "audit.db"), testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_MigratesToCurrentVersion(t *testing.T) {
	s := testStore(t)
	v, err := GetSchemaVersion(s.db)
	if err != nil {
		t.Fatal(err)
	}
	if v != schemaVersion {
		t.Errorf("schema version = %d, want %d", v, schemaVersion)
	}
	if err := RunMigrations(s.db, testLogger()); err != nil {
		t.Errorf("migrations should be idempotent: %v", err)
	}
}

func TestLogAuditAndRecent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	entries := []domain.AuditEntry{
		{InvocationID: "inv-1", Action: domain.AuditToolCall, ToolName: "getWeather", Result: "ok", CreatedAt: base},
		{InvocationID: "inv-2", Action: domain.AuditCommandBlocked, ToolName: "executeCommand", Command: "rm -rf /", Result: "blocked", Details: "no allow-list entry matches", CreatedAt: base.Add(time.Minute)},
		{InvocationID: "inv-2", Action: domain.AuditToolCall, ToolName: "executeCommand", Result: "error", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		if err := s.LogAudit(ctx, e); err != nil {
			t.Fatalf("LogAudit: %v", err)
		}
	}

	all, err := s.Recent(ctx, Query{})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d", len(all))
	}
	if all[0].Result != "error" || !all[0].CreatedAt.Equal(base.Add(2*time.Minute)) {
		t.Errorf("newest first expected, got %+v", all[0])
	}

	blocked, _ := s.Recent(ctx, Query{Action: domain.AuditCommandBlocked})
	if len(blocked) != 1 || blocked[0].Command != "rm -rf /" || blocked[0].Details == "" {
		t.Errorf("blocked = %+v", blocked)
	}

	byInv, _ := s.Recent(ctx, Query{InvocationID: "inv-2"})
	if len(byInv) != 2 {
		t.Errorf("by invocation = %d entries", len(byInv))
	}

	limited, _ := s.Recent(ctx, Query{Limit: 1, ToolName: "executeCommand"})
	if len(limited) != 1 {
		t.Errorf("limit not applied: %d", len(limited))
	}
}

func TestLogAudit_DefaultsTimestamp(t *testing.T) {
	s := testStore(t)
	before := time.Now().Add(-time.Second)
	if err := s.LogAudit(context.Background(), domain.AuditEntry{Action: domain.AuditToolCall, Result: "ok"}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Recent(context.Background(), Query{})
	if len(got) != 1 || got[0].CreatedAt.Before(before) {
		t.Errorf("got %+v", got)
	}
}

func TestPrune(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

	s.LogAudit(ctx, domain.AuditEntry{Action: "a", Result: "old", CreatedAt: now.Add(-40 * 24 * time.Hour)})
	s.LogAudit(ctx, domain.AuditEntry{Action: "a", Result: "new", CreatedAt: now.Add(-time.Hour)})

	n, err := s.Prune(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}
	if c, _ := s.Count(ctx); c != 1 {
		t.Errorf("count = %d", c)
	}
}

func TestPruner_RunOnce(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	s.LogAudit(ctx, domain.AuditEntry{Action: "a", Result: "old", CreatedAt: now.Add(-8 * 24 * time.Hour)})
	s.LogAudit(ctx, domain.AuditEntry{Action: "a", Result: "recent", CreatedAt: now.Add(-6 * 24 * time.Hour)})

	p, err := NewPruner(s, 7, "@daily", testLogger())
	if err != nil {
		t.Fatalf("NewPruner: %v", err)
	}
	p.now = func() time.Time { return now }

	n, err := p.RunOnce(ctx)
	if err != nil || n != 1 {
		t.Errorf("RunOnce = %d, %v", n, err)
	}
	left, _ := s.Recent(ctx, Query{})
	if len(left) != 1 || left[0].Result != "recent" {
		t.Errorf("left = %+v", left)
	}
}

func TestNewPruner_Validation(t *testing.T) {
	s := testStore(t)
	if _, err := NewPruner(s, 0, "@daily", testLogger()); err == nil {
		t.Error("expected error for zero retention")
	}
	if _, err := NewPruner(s, 7, "not a schedule", testLogger()); err == nil {
		t.Error("expected error for bad schedule")
	}
}

func TestPruner_StartStops(t *testing.T) {
	s := testStore(t)
	p, err := NewPruner(s, 30, "@every 1h", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()
}
