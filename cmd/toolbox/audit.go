package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"toolbox/internal/audit"
	"toolbox/internal/config"
)

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect and prune the audit log",
	}

	var q audit.Query
	var asJSON bool
	recent := &cobra.Command{
		Use:   "recent",
		Short: "Show recent audit entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openAudit()
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(context.Background(), q)
			if err != nil {
				return err
			}
			if asJSON {
				data, _ := json.MarshalIndent(entries, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tACTION\tTOOL\tRESULT\tCOMMAND\tINVOCATION")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.CreatedAt.Local().Format(time.DateTime), e.Action, e.ToolName, e.Result, e.Command, e.InvocationID)
			}
			return tw.Flush()
		},
	}
	recent.Flags().IntVarP(&q.Limit, "limit", "n", 20, "maximum entries to show")
	recent.Flags().StringVar(&q.Action, "action", "", "filter by action (tool_call, command_exec, command_blocked, elicitation)")
	recent.Flags().StringVar(&q.ToolName, "tool", "", "filter by tool name")
	recent.Flags().StringVar(&q.InvocationID, "invocation", "", "filter by invocation id")
	recent.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete entries older than audit.retentionDays now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			store, err := audit.Open(cfg.Audit.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()
			p, err := audit.NewPruner(store, cfg.Audit.RetentionDays, cfg.Audit.PruneSchedule, logger)
			if err != nil {
				return err
			}
			n, err := p.RunOnce(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d entr(ies) older than %d day(s)\n", n, cfg.Audit.RetentionDays)
			return nil
		},
	}

	cmd.AddCommand(recent, prune)
	return cmd
}

func openAudit() (*audit.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	path := cfg.Audit.DBPath
	if path == "" {
		path = config.ExpandPath(config.Defaults().Audit.DBPath)
	}
	return audit.Open(path, logger)
}
