package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"toolbox/internal/admin"
	"toolbox/internal/audit"
	"toolbox/internal/mcpserver"
	"toolbox/internal/metrics"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve tools over MCP on stdin/stdout",
		Long: `Starts the MCP server on stdio. When admin.enabled is set, the admin HTTP
server runs alongside it; when audit is enabled, old audit rows are pruned on
audit.pruneSchedule. The process exits when the client closes stdin.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	closeLog, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := mcpserver.New(cfg.Server.Name, version, a.dispatcher, logger)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)
	ctx, cancel := context.WithCancel(gctx)
	defer cancel()

	if a.audit != nil {
		pruner, err := audit.NewPruner(a.audit, cfg.Audit.RetentionDays, cfg.Audit.PruneSchedule, logger)
		if err != nil {
			return err
		}
		pruner.Start(ctx)
	}

	if cfg.Admin.Enabled {
		adminSrv := admin.New(admin.Options{
			Addr:       cfg.Admin.Addr,
			Token:      cfg.Admin.Token,
			Dispatcher: a.dispatcher,
			Audit:      auditReader(a.audit),
			Metrics:    metrics.Default,
			Version:    version,
			Logger:     logger,
		})
		g.Go(func() error {
			if err := adminSrv.ListenAndServe(ctx); err != nil {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		// client disconnect ends the whole process
		defer cancel()
		err := srv.ServeStdio(ctx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

// auditReader avoids handing admin a typed nil.
func auditReader(s *audit.Store) admin.AuditReader {
	if s == nil {
		return nil
	}
	return s
}
