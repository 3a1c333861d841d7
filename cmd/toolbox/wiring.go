package main

import (
	"fmt"
	"time"

	"toolbox/internal/audit"
	"toolbox/internal/capability"
	"toolbox/internal/capability/azure"
	"toolbox/internal/capability/image"
	"toolbox/internal/capability/weather"
	"toolbox/internal/config"
	"toolbox/internal/domain"
	"toolbox/internal/sandbox"
	"toolbox/internal/security"
	"toolbox/internal/tool"
)

// app holds everything a command needs to invoke tools.
type app struct {
	cfg        *config.Config
	dispatcher *tool.Dispatcher
	authorizer *security.Authorizer
	audit      *audit.Store // nil when auditing is disabled
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func buildApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	var auditLogger domain.AuditLogger = domain.NopAudit{}
	if cfg.Audit.Enabled {
		store, err := audit.Open(cfg.Audit.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("audit store: %w", err)
		}
		a.audit = store
		auditLogger = store
	}

	a.authorizer = security.NewAuthorizer(cfg.Security, auditLogger, logger)
	runner := sandbox.NewRunner(sandbox.Config{
		WorkingDir:     cfg.General.WorkingDir,
		EnvPassthrough: cfg.Tools.Shell.EnvPassthrough,
		Logger:         logger,
	})

	reg := tool.NewRegistry(logger)
	if err := registerTools(cfg, reg, a.authorizer, runner); err != nil {
		a.Close()
		return nil, err
	}

	a.dispatcher = tool.NewDispatcher(reg, tool.DispatcherOptions{
		ElicitTimeout: seconds(cfg.Elicitation.TimeoutSeconds),
		MaxConcurrent: cfg.Server.MaxConcurrentCalls,
		Audit:         auditLogger,
		Logger:        logger,
	})
	return a, nil
}

func (a *app) Close() {
	if a.audit != nil {
		a.audit.Close()
	}
}

// registerTools creates the enabled tools and adds them to the registry.
func registerTools(cfg *config.Config, reg *tool.Registry, auth *security.Authorizer, runner *sandbox.Runner) error {
	tools := []tool.Tool{
		tool.NewCommandTool(auth, runner, tool.CommandConfig{
			Timeout:        seconds(cfg.Tools.Shell.Timeout),
			MaxOutputBytes: cfg.Tools.Shell.MaxOutputBytes,
		}),
	}

	if w := cfg.Tools.Weather; w.Enabled {
		client := weather.NewClient(w.GeocodeURL, w.ForecastURL, capability.SharedHTTPClient(seconds(w.Timeout)))
		tools = append(tools, tool.NewWeatherTool(client, client))
	}

	if az := cfg.Tools.Azure; az.Enabled {
		client := azure.NewClient(azure.NewProcessCLI(az.CLIPath, runner, seconds(az.Timeout)))
		tools = append(tools, tool.NewSubscriptionsTool(client), tool.NewResourceGroupsTool(client))
	}

	if img := cfg.Tools.Image; img.Enabled {
		client := image.NewClient(img.APIBase, img.APIKey, capability.SharedHTTPClient(seconds(img.Timeout)))
		tools = append(tools, tool.NewImageTool(client, img.DefaultModel))
	}

	for _, t := range tools {
		if err := reg.Add(t); err != nil {
			return fmt.Errorf("register %s: %w", t.Descriptor().Name, err)
		}
	}
	logger.Debug("tools registered", "names", reg.Names())
	return nil
}
