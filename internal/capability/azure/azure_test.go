package azure

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"toolbox/internal/sandbox"
)

type stubCLI struct {
	out   map[string]string
	err   error
	calls [][]string
}

func (s *stubCLI) Run(ctx context.Context, args ...string) ([]byte, error) {
	s.calls = append(s.calls, args)
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.out[args[0]]), nil
}

func TestSubscriptions(t *testing.T) {
	cli := &stubCLI{out: map[string]string{
		"account": `[{"id":"sub-1","name":"Dev","state":"Enabled","isDefault":true,"tenantId":"t"}]`,
	}}
	subs, err := NewClient(cli).Subscriptions(context.Background())
	if err != nil {
		t.Fatalf("Subscriptions: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != "sub-1" || !subs[0].IsDefault {
		t.Errorf("subs = %+v", subs)
	}
	if want := []string{"account", "list", "--output", "json"}; !reflect.DeepEqual(cli.calls[0], want) {
		t.Errorf("args = %v", cli.calls[0])
	}
}

func TestResourceGroups_PassesSubscription(t *testing.T) {
	cli := &stubCLI{out: map[string]string{
		"group": `[{"name":"rg-web","location":"westeurope","properties":{"provisioningState":"Succeeded"}}]`,
	}}
	groups, err := NewClient(cli).ResourceGroups(context.Background(), "sub-2")
	if err != nil {
		t.Fatalf("ResourceGroups: %v", err)
	}
	if len(groups) != 1 || groups[0].Location != "westeurope" || groups[0].Properties.ProvisioningState != "Succeeded" {
		t.Errorf("groups = %+v", groups)
	}
	args := strings.Join(cli.calls[0], " ")
	if !strings.Contains(args, "--subscription sub-2") {
		t.Errorf("args = %s", args)
	}
}

func TestSubscriptions_EmptyOutput(t *testing.T) {
	subs, err := NewClient(&stubCLI{out: map[string]string{}}).Subscriptions(context.Background())
	if err != nil || len(subs) != 0 {
		t.Errorf("got %v, %v", subs, err)
	}
}

func TestSubscriptions_Error(t *testing.T) {
	cause := errors.New("Please run 'az login' to setup account.")
	_, err := NewClient(&stubCLI{err: cause}).Subscriptions(context.Background())
	if !errors.Is(err, cause) {
		t.Errorf("err = %v", err)
	}
}

func TestSubscriptions_BadJSON(t *testing.T) {
	_, err := NewClient(&stubCLI{out: map[string]string{"account": "WARNING: something"}}).Subscriptions(context.Background())
	if err == nil || !strings.Contains(err.Error(), "decode output") {
		t.Errorf("err = %v", err)
	}
}

// fakeAz writes a shell script standing in for the az binary.
func fakeAz(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stub")
	}
	path := filepath.Join(t.TempDir(), "az")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func testRunner() *sandbox.Runner {
	return sandbox.NewRunner(sandbox.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
}

func TestProcessCLI_Stdout(t *testing.T) {
	path := fakeAz(t, `echo '{"azure-cli":"2.64.0"}'`)
	v, err := NewClient(NewProcessCLI(path, testRunner(), 5*time.Second)).Version(context.Background())
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v != "2.64.0" {
		t.Errorf("version = %q", v)
	}
}

func TestProcessCLI_NonZeroExit(t *testing.T) {
	path := fakeAz(t, `echo "ERROR: Please run 'az login' to setup account." >&2; exit 1`)
	_, err := NewProcessCLI(path, testRunner(), 5*time.Second).Run(context.Background(), "account", "list")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "exited with code 1") || !strings.Contains(err.Error(), "az login") {
		t.Errorf("err = %v", err)
	}
}

func TestProcessCLI_MissingBinary(t *testing.T) {
	_, err := NewProcessCLI(filepath.Join(t.TempDir(), "no-az"), testRunner(), time.Second).Run(context.Background(), "version")
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}
