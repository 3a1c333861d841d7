package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"toolbox/internal/mcpserver"
	"toolbox/internal/security"
)

func toolsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools the server would expose",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			descs := a.dispatcher.Registry().Descriptors()
			if asJSON {
				out := make([]mcp.Tool, 0, len(descs))
				for _, d := range descs {
					out = append(out, mcpserver.ToolDefinition(d))
				}
				data, _ := json.MarshalIndent(out, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tARGS\tDESCRIPTION")
			for _, d := range descs {
				var names []string
				for _, f := range d.Schema.Fields {
					n := f.Name
					if !f.Required {
						n += "?"
					}
					names = append(names, n)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, strings.Join(names, ","), d.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print descriptors with their input schemas as JSON")
	return cmd
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <command...>",
		Short: "Report whether executeCommand would allow a command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			auth := security.NewAuthorizer(cfg.Security, nil, logger)
			command := strings.Join(args, " ")

			err = auth.Authorize(context.Background(), "", "check", command)
			var denied *security.DeniedError
			if errors.As(err, &denied) {
				fmt.Printf("DENIED  %s\n  reason: %s\n", command, denied.Reason)
				return fmt.Errorf("command not allowed")
			}
			if err != nil {
				return err
			}
			fmt.Printf("ALLOWED %s\n", command)
			return nil
		},
	}
}

func callCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool> [json-args]",
		Short: "Invoke one tool locally and print its result",
		Long: `Runs a tool through the same validation, authorization and audit path as
the MCP server. Elicitation prompts are answered on the terminal.

Example:
  toolbox call getWeather '{"city":"Seattle","days":2}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw map[string]any
			if len(args) == 2 {
				dec := json.NewDecoder(strings.NewReader(args[1]))
				dec.UseNumber()
				if err := dec.Decode(&raw); err != nil {
					return fmt.Errorf("arguments must be a JSON object: %w", err)
				}
			}

			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()
			a.dispatcher.SetElicitor(newTerminalElicitor(os.Stdin, os.Stderr))

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res := a.dispatcher.Invoke(ctx, args[0], raw)
			for _, c := range res.Content {
				fmt.Println(c.Text)
			}
			if res.IsError {
				return fmt.Errorf("%s returned an error", args[0])
			}
			return nil
		},
	}
}

// loadApp loads config, configures logging and wires the tools.
func loadApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if _, err := setupLogger(cfg); err != nil {
		return nil, err
	}
	return buildApp(cfg)
}
