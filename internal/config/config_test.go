package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for logLevel=verbose")
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogFormat = "xml"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for logFormat=xml")
	}
}

func TestValidate_MaxConcurrentCalls_Boundary(t *testing.T) {
	cfg := Defaults()

	cfg.Server.MaxConcurrentCalls = 1
	if err := Validate(cfg); err != nil {
		t.Fatalf("maxConcurrentCalls=1 should be valid: %v", err)
	}

	cfg.Server.MaxConcurrentCalls = 64
	if err := Validate(cfg); err != nil {
		t.Fatalf("maxConcurrentCalls=64 should be valid: %v", err)
	}

	cfg.Server.MaxConcurrentCalls = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for maxConcurrentCalls=0")
	}
}

func TestValidate_BlankAllowListEntry(t *testing.T) {
	cfg := Defaults()
	cfg.Security.AllowList = append(cfg.Security.AllowList, "   ")
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for blank allow-list entry")
	}
	if !strings.Contains(err.Error(), "security.allowList") {
		t.Fatalf("error should name the field, got: %v", err)
	}
}

func TestValidate_InvalidShellLimits(t *testing.T) {
	cfg := Defaults()
	cfg.Tools.Shell.Timeout = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for shell timeout=0")
	}

	cfg = Defaults()
	cfg.Tools.Shell.MaxOutputBytes = 10
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for tiny maxOutputBytes")
	}
}

func TestValidate_PruneSchedule(t *testing.T) {
	cfg := Defaults()
	cfg.Audit.PruneSchedule = "0 3 * * *"
	if err := Validate(cfg); err != nil {
		t.Fatalf("standard cron spec should be valid: %v", err)
	}

	cfg.Audit.PruneSchedule = "every tuesday"
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "audit.pruneSchedule") {
		t.Fatalf("expected pruneSchedule error, got: %v", err)
	}
}

func TestValidate_AdminRequiresAddr(t *testing.T) {
	cfg := Defaults()
	cfg.Admin.Enabled = true
	cfg.Admin.Token = "secret"
	cfg.Admin.Addr = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for admin without addr")
	}
}

func TestValidate_AdminRequiresToken(t *testing.T) {
	cfg := Defaults()
	cfg.Admin.Enabled = true
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "admin.token") {
		t.Fatalf("expected admin.token error, got %v", err)
	}
	cfg.Admin.Token = "secret"
	if err := Validate(cfg); err != nil {
		t.Fatalf("admin with token should validate: %v", err)
	}
}

func TestValidate_DisabledToolsSkipChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Tools.Image.Enabled = false
	cfg.Tools.Image.APIBase = ""
	cfg.Tools.Azure.Enabled = false
	cfg.Tools.Azure.CLIPath = ""
	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled tools should not be validated: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "loud"
	cfg.Elicitation.TimeoutSeconds = -1
	cfg.Audit.RetentionDays = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"general.logLevel", "elicitation.timeoutSeconds", "audit.retentionDays"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTripJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	original := Defaults()
	original.Server.Name = "test-server"

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Server.Name != "test-server" {
		t.Fatalf("expected 'test-server', got %q", loaded.Server.Name)
	}
}

func TestLoadSave_RoundTripYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	original := Defaults()
	original.Security.AllowList = []string{"ls", "git status"}
	original.Tools.Shell.Timeout = 5

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Security.AllowList) != 2 || loaded.Security.AllowList[1] != "git status" {
		t.Fatalf("unexpected allow-list: %v", loaded.Security.AllowList)
	}
	if loaded.Tools.Shell.Timeout != 5 {
		t.Fatalf("expected shell timeout 5, got %d", loaded.Tools.Shell.Timeout)
	}
}

func TestLoad_PartialYAMLKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := "general:\n  logLevel: debug\nsecurity:\n  allowList:\n    - echo\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.General.LogLevel != "debug" {
		t.Fatalf("expected debug, got %q", cfg.General.LogLevel)
	}
	if cfg.Tools.Shell.MaxOutputBytes != 65536 {
		t.Fatalf("expected default maxOutputBytes, got %d", cfg.Tools.Shell.MaxOutputBytes)
	}
	if len(cfg.Security.AllowList) != 1 {
		t.Fatalf("expected allow-list replaced, got %v", cfg.Security.AllowList)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_ValidatesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"server": {"maxConcurrentCalls": 0}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for maxConcurrentCalls=0")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TOOLBOX_TEST_TOKEN", "secret-token-value")
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"admin": {"enabled": true, "addr": "${TOOLBOX_TEST_ADDR:-127.0.0.1:9999}", "token": "${TOOLBOX_TEST_TOKEN}"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Admin.Addr != "127.0.0.1:9999" {
		t.Fatalf("expected default addr, got %q", cfg.Admin.Addr)
	}
	if cfg.Admin.Token != "secret-token-value" {
		t.Fatalf("expected token from env, got %q", cfg.Admin.Token)
	}
}

// --- ApplyEnv ---

func TestApplyEnv_FillsEmptyAPIKey(t *testing.T) {
	t.Setenv(EnvImageAPIKey, "sk-from-env")
	cfg := Defaults()
	ApplyEnv(cfg)
	if cfg.Tools.Image.APIKey != "sk-from-env" {
		t.Fatalf("expected key from env, got %q", cfg.Tools.Image.APIKey)
	}
}

func TestApplyEnv_KeepsConfiguredAPIKey(t *testing.T) {
	t.Setenv(EnvImageAPIKey, "sk-from-env")
	cfg := Defaults()
	cfg.Tools.Image.APIKey = "sk-configured"
	ApplyEnv(cfg)
	if cfg.Tools.Image.APIKey != "sk-configured" {
		t.Fatalf("configured key should win, got %q", cfg.Tools.Image.APIKey)
	}
}

func TestApplyEnv_EndpointOverrides(t *testing.T) {
	t.Setenv(EnvGeocodeURL, "http://localhost:1/geo")
	t.Setenv(EnvForecastURL, "http://localhost:1/forecast")
	cfg := Defaults()
	ApplyEnv(cfg)
	if cfg.Tools.Weather.GeocodeURL != "http://localhost:1/geo" {
		t.Fatalf("unexpected geocode url %q", cfg.Tools.Weather.GeocodeURL)
	}
	if cfg.Tools.Weather.ForecastURL != "http://localhost:1/forecast" {
		t.Fatalf("unexpected forecast url %q", cfg.Tools.Weather.ForecastURL)
	}
}

// --- Accessor ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()

	val, err := GetByPath(cfg, "server.name")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "toolbox" {
		t.Fatalf("expected 'toolbox', got %v", val)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	cfg := Defaults()
	_, err := GetByPath(cfg, "nonexistent.path")
	if err == nil {
		t.Fatal("expected error for nonexistent path")
	}
}

func TestSetByPath_IntConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "tools.shell.timeout", "45"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if cfg.Tools.Shell.Timeout != 45 {
		t.Fatalf("expected 45, got %d", cfg.Tools.Shell.Timeout)
	}
}

func TestSetByPath_BoolConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "security.rejectMetacharacters", "false"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if cfg.Security.RejectMetacharacters {
		t.Fatal("expected rejectMetacharacters=false")
	}
}

func TestSetByPath_OmitEmptyFieldsAreAddressable(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "admin.token", "s3cret"); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if cfg.Admin.Token != "s3cret" {
		t.Fatalf("token = %q", cfg.Admin.Token)
	}
}

func TestSetByPath_ListValue(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "security.allowList", "ls, git status ,,pwd"); err != nil {
		t.Fatalf("set list: %v", err)
	}
	want := []string{"ls", "git status", "pwd"}
	if !reflect.DeepEqual(cfg.Security.AllowList, want) {
		t.Fatalf("allowList = %q", cfg.Security.AllowList)
	}
}

func TestSetByPath_Errors(t *testing.T) {
	cfg := Defaults()
	for path, value := range map[string]string{
		"tools.shell.timout":            "5",
		"tools.shell":                   "5",
		"security.rejectMetacharacters": "maybe",
		"tools.shell.timeout":           "soon",
		"":                              "x",
	} {
		if err := SetByPath(cfg, path, value); err == nil {
			t.Errorf("SetByPath(%q, %q) should fail", path, value)
		}
	}
	if cfg.Tools.Shell.Timeout != 30 {
		t.Errorf("failed set changed timeout to %d", cfg.Tools.Shell.Timeout)
	}
}

// --- Sanitize ---

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Tools.Image.APIKey = "sk-1234567890abcdefghijklmnop"
	cfg.Admin.Token = "admin-token-123456789"

	sanitized := Sanitize(cfg)

	if sanitized.Tools.Image.APIKey == cfg.Tools.Image.APIKey {
		t.Fatal("API key should be masked")
	}
	if sanitized.Admin.Token == cfg.Admin.Token {
		t.Fatal("admin token should be masked")
	}
	if cfg.Tools.Image.APIKey != "sk-1234567890abcdefghijklmnop" {
		t.Fatal("original config should not be modified")
	}
}

func TestSanitize_ShortSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Admin.Token = "short"
	sanitized := Sanitize(cfg)
	if sanitized.Admin.Token != "***" {
		t.Fatalf("short secret should be '***', got %q", sanitized.Admin.Token)
	}
}

// --- ListPaths ---

func TestListPaths_ReturnsAllLeaves(t *testing.T) {
	paths := ListPaths(Defaults())
	for _, expected := range []string{"general.logLevel", "tools.shell.timeout", "audit.enabled"} {
		if _, ok := paths[expected]; !ok {
			t.Errorf("missing expected path: %s", expected)
		}
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_SimpleSubstitution(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-abc123")
	result := ExpandEnvVars(`{"apiKey": "${TEST_API_KEY}"}`)
	expected := `{"apiKey": "sk-abc123"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	os.Unsetenv("NONEXISTENT_VAR_12345")
	result := ExpandEnvVars(`{"port": "${NONEXISTENT_VAR_12345:-8080}"}`)
	expected := `{"port": "8080"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_UnsetVarNoDefault_KeepsOriginal(t *testing.T) {
	os.Unsetenv("TOTALLY_UNSET_VAR_XYZ")
	result := ExpandEnvVars(`"${TOTALLY_UNSET_VAR_XYZ}"`)
	expected := `"${TOTALLY_UNSET_VAR_XYZ}"`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

// --- ExpandPath ---

func TestExpandPath_Home(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandPath("~/x/y.db"); got != filepath.Join(home, "x/y.db") {
		t.Fatalf("unexpected expansion %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Fatalf("absolute path should be unchanged, got %q", got)
	}
}
