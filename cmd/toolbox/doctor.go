package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"toolbox/internal/audit"
	"toolbox/internal/capability/azure"
	"toolbox/internal/config"
	"toolbox/internal/sandbox"
)

type doctorReport struct {
	passed, warned, failed int
}

func (r *doctorReport) pass(check, detail string) {
	r.passed++
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func (r *doctorReport) warn(check, detail string) {
	r.warned++
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}

func (r *doctorReport) fail(check, detail string) {
	r.failed++
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the toolbox installation",
		Long: `Verifies configuration, the audit database, the Azure CLI, API credentials and
the admin port. Reports pass/warn/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("toolbox doctor v%s\n\n", version)
			r := &doctorReport{}

			if _, err := os.Stat(cfgPath); err != nil {
				r.warn("Config file", fmt.Sprintf("not found at %s, using defaults (run 'toolbox init')", cfgPath))
			} else {
				r.pass("Config file", cfgPath)
			}

			cfg, err := loadConfig()
			if err != nil {
				r.fail("Config validation", err.Error())
				return r.summary()
			}
			r.pass("Config validation", "valid")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			checkWorkingDir(r, cfg)
			checkAuditDB(ctx, r, cfg)
			checkAzure(ctx, r, cfg)
			checkEndpoints(r, cfg)
			checkAdmin(r, cfg)
			checkLogFile(r, cfg)

			if len(cfg.Security.AllowList) == 0 {
				r.warn("Allow-list", "empty: executeCommand will deny every command")
			} else {
				r.pass("Allow-list", fmt.Sprintf("%d prefix(es), metacharacter rejection %v",
					len(cfg.Security.AllowList), cfg.Security.RejectMetacharacters))
			}
			return r.summary()
		},
	}
}

func (r *doctorReport) summary() error {
	fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	return nil
}

func checkWorkingDir(r *doctorReport, cfg *config.Config) {
	dir := cfg.General.WorkingDir
	if dir == "" {
		r.pass("Working dir", "current directory")
		return
	}
	if info, err := os.Stat(dir); err != nil {
		r.fail("Working dir", fmt.Sprintf("not found: %s", dir))
	} else if !info.IsDir() {
		r.fail("Working dir", fmt.Sprintf("not a directory: %s", dir))
	} else {
		r.pass("Working dir", dir)
	}
}

func checkAuditDB(ctx context.Context, r *doctorReport, cfg *config.Config) {
	if !cfg.Audit.Enabled {
		r.warn("Audit log", "disabled")
		return
	}
	store, err := audit.Open(cfg.Audit.DBPath, logger)
	if err != nil {
		r.fail("Audit log", err.Error())
		return
	}
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		r.fail("Audit log", fmt.Sprintf("cannot ping: %v", err))
		return
	}
	n, _ := store.Count(ctx)
	r.pass("Audit log", fmt.Sprintf("%s (%d entries)", cfg.Audit.DBPath, n))
}

func checkAzure(ctx context.Context, r *doctorReport, cfg *config.Config) {
	az := cfg.Tools.Azure
	if !az.Enabled {
		r.warn("Azure CLI", "azure tools disabled")
		return
	}
	path, err := exec.LookPath(az.CLIPath)
	if err != nil {
		r.fail("Azure CLI", fmt.Sprintf("%s not found on PATH; install it from https://aka.ms/azure-cli", az.CLIPath))
		return
	}
	runner := sandbox.NewRunner(sandbox.Config{Logger: logger})
	client := azure.NewClient(azure.NewProcessCLI(path, runner, seconds(az.Timeout)))
	v, err := client.Version(ctx)
	if err != nil {
		r.warn("Azure CLI", fmt.Sprintf("%s: %v", path, err))
		return
	}
	r.pass("Azure CLI", fmt.Sprintf("%s (azure-cli %s)", path, v))
}

func checkEndpoints(r *doctorReport, cfg *config.Config) {
	if w := cfg.Tools.Weather; w.Enabled {
		if err := checkURL(w.GeocodeURL); err != nil {
			r.fail("Weather geocode", err.Error())
		} else if err := checkURL(w.ForecastURL); err != nil {
			r.fail("Weather forecast", err.Error())
		} else {
			r.pass("Weather API", w.ForecastURL)
		}
	}
	if img := cfg.Tools.Image; img.Enabled {
		err := checkURL(img.APIBase)
		switch {
		case err != nil:
			r.fail("Image API", err.Error())
		case img.APIKey == "":
			r.warn("Image API", fmt.Sprintf("no API key; set tools.image.apiKey or %s", config.EnvImageAPIKey))
		default:
			r.pass("Image API", img.APIBase)
		}
	}
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("invalid URL %q: need http(s)://host", raw)
	}
	return nil
}

func checkAdmin(r *doctorReport, cfg *config.Config) {
	if !cfg.Admin.Enabled {
		return
	}
	ln, err := net.Listen("tcp", cfg.Admin.Addr)
	if err != nil {
		r.warn("Admin addr", fmt.Sprintf("%s may be in use: %v", cfg.Admin.Addr, err))
	} else {
		ln.Close()
		r.pass("Admin addr", cfg.Admin.Addr)
	}
}

func checkLogFile(r *doctorReport, cfg *config.Config) {
	if cfg.General.LogFile == "" {
		r.pass("Log output", "stderr")
		return
	}
	if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
		r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
		return
	}
	r.pass("Log file", cfg.General.LogFile)
}
