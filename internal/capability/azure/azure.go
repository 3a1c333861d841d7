// Package azure wraps the Azure CLI. Every call asks for JSON output and
// decodes stdout.
package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"toolbox/internal/sandbox"
)

const defaultMaxOutputBytes = 1 << 20

// CLI runs one az command and returns its stdout.
type CLI interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// ProcessCLI runs the az binary through the sandbox runner, without a shell.
type ProcessCLI struct {
	path           string
	runner         *sandbox.Runner
	timeout        time.Duration
	maxOutputBytes int
}

// NewProcessCLI runs path ("az" when empty) with a per-call timeout.
func NewProcessCLI(path string, runner *sandbox.Runner, timeout time.Duration) *ProcessCLI {
	if path == "" {
		path = "az"
	}
	return &ProcessCLI{path: path, runner: runner, timeout: timeout, maxOutputBytes: defaultMaxOutputBytes}
}

// Run returns stdout. A non-zero exit becomes an error carrying stderr.
func (c *ProcessCLI) Run(ctx context.Context, args ...string) ([]byte, error) {
	argv := append([]string{c.path}, args...)
	res, err := c.runner.Exec(ctx, argv, c.timeout, c.maxOutputBytes)
	if err != nil {
		return nil, fmt.Errorf("az %s: %w", strings.Join(args, " "), err)
	}
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(res.Stdout)
		}
		return nil, fmt.Errorf("az %s exited with code %d: %s", strings.Join(args, " "), res.ExitCode, msg)
	}
	return []byte(res.Stdout), nil
}

type Subscription struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	State     string `json:"state"`
	IsDefault bool   `json:"isDefault"`
	TenantID  string `json:"tenantId"`
}

type ResourceGroup struct {
	Name       string `json:"name"`
	Location   string `json:"location"`
	Properties struct {
		ProvisioningState string `json:"provisioningState"`
	} `json:"properties"`
}

// Client exposes the few az queries the tools need.
type Client struct {
	cli CLI
}

// NewClient wraps cli; tests pass a stub.
func NewClient(cli CLI) *Client {
	return &Client{cli: cli}
}

// Version returns the output of `az version`, used by health checks.
func (c *Client) Version(ctx context.Context) (string, error) {
	out, err := c.cli.Run(ctx, "version", "--output", "json")
	if err != nil {
		return "", err
	}
	var v map[string]any
	if err := json.Unmarshal(out, &v); err != nil {
		return "", fmt.Errorf("az version: decode output: %w", err)
	}
	s, _ := v["azure-cli"].(string)
	return s, nil
}

func (c *Client) Subscriptions(ctx context.Context) ([]Subscription, error) {
	out, err := c.cli.Run(ctx, "account", "list", "--output", "json")
	if err != nil {
		return nil, err
	}
	var subs []Subscription
	if err := decode(out, &subs); err != nil {
		return nil, fmt.Errorf("az account list: %w", err)
	}
	return subs, nil
}

func (c *Client) ResourceGroups(ctx context.Context, subscription string) ([]ResourceGroup, error) {
	args := []string{"group", "list", "--output", "json"}
	if subscription != "" {
		args = append(args, "--subscription", subscription)
	}
	out, err := c.cli.Run(ctx, args...)
	if err != nil {
		return nil, err
	}
	var groups []ResourceGroup
	if err := decode(out, &groups); err != nil {
		return nil, fmt.Errorf("az group list: %w", err)
	}
	return groups, nil
}

func decode(out []byte, v any) error {
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		trimmed = "[]"
	}
	if err := json.Unmarshal([]byte(trimmed), v); err != nil {
		return fmt.Errorf("decode output: %w", err)
	}
	return nil
}
