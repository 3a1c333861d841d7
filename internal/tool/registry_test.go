package tool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"toolbox/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingAudit keeps audit entries in memory.
type recordingAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (r *recordingAudit) LogAudit(ctx context.Context, e domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *recordingAudit) byAction(action string) []domain.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range r.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func echoHandler(text string) Handler {
	return func(ctx context.Context, call *Call) (*domain.Result, error) {
		return domain.TextResult(text), nil
	}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewRegistry(testLogger())
	if err := reg.Register(Descriptor{Name: "alpha", Description: "a"}, echoHandler("a")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	e, ok := reg.lookup("alpha")
	if !ok || e.desc.Description != "a" {
		t.Fatalf("lookup = %+v, %v", e.desc, ok)
	}
	if _, ok := reg.lookup("missing"); ok {
		t.Error("expected missing tool not found")
	}
}

func TestRegistry_DuplicateLeavesRegistryUnchanged(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.MustRegister(Descriptor{Name: "alpha", Description: "first"}, echoHandler("first"))

	err := reg.Register(Descriptor{Name: "alpha", Description: "second"}, echoHandler("second"))
	if !errors.Is(err, ErrDuplicateTool) {
		t.Fatalf("err = %v, want ErrDuplicateTool", err)
	}
	if reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", reg.Len())
	}
	if e, _ := reg.lookup("alpha"); e.desc.Description != "first" {
		t.Errorf("original descriptor replaced: %+v", e.desc)
	}
}

func TestRegistry_MustRegisterPanicsOnDuplicate(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.MustRegister(Descriptor{Name: "alpha"}, echoHandler(""))
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	reg.MustRegister(Descriptor{Name: "alpha"}, echoHandler(""))
}

func TestRegistry_RejectsInvalidRegistration(t *testing.T) {
	reg := NewRegistry(testLogger())
	if err := reg.Register(Descriptor{}, echoHandler("")); err == nil {
		t.Error("expected error for empty name")
	}
	if err := reg.Register(Descriptor{Name: "x"}, nil); err == nil {
		t.Error("expected error for nil handler")
	}
	if reg.Len() != 0 {
		t.Errorf("Len = %d", reg.Len())
	}
}

func TestRegistry_ValidateAndLookup(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.MustRegister(Descriptor{Name: "greet", Schema: Schema{Fields: []Field{
		{Name: "name", Type: TypeString, Required: true},
		{Name: "times", Type: TypeInteger, Default: 1},
	}}}, echoHandler("hi"))

	h, args, err := reg.ValidateAndLookup("greet", map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("ValidateAndLookup: %v", err)
	}
	if h == nil || args.String("name") != "Ada" || args.Int("times") != 1 {
		t.Errorf("args = %v", args)
	}

	_, _, err = reg.ValidateAndLookup("greet", map[string]any{})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "name" {
		t.Errorf("err = %v, want ValidationError on name", err)
	}

	if _, _, err := reg.ValidateAndLookup("nope", nil); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("err = %v, want ErrUnknownTool", err)
	}
}

func TestRegistry_DescriptorsSorted(t *testing.T) {
	reg := NewRegistry(testLogger())
	for _, n := range []string{"gamma", "alpha", "beta"} {
		reg.MustRegister(Descriptor{Name: n}, echoHandler(n))
	}
	names := reg.Names()
	if len(names) != 3 || names[0] != "alpha" || names[1] != "beta" || names[2] != "gamma" {
		t.Errorf("Names = %v", names)
	}
}

type stubTool struct{ name string }

func (s stubTool) Descriptor() Descriptor { return Descriptor{Name: s.name} }
func (s stubTool) Handle(ctx context.Context, call *Call) (*domain.Result, error) {
	return domain.TextResult(s.name), nil
}

func TestRegistry_Add(t *testing.T) {
	reg := NewRegistry(testLogger())
	if err := reg.Add(stubTool{name: "s"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := reg.Add(stubTool{name: "s"}); !errors.Is(err, ErrDuplicateTool) {
		t.Errorf("err = %v", err)
	}
}
