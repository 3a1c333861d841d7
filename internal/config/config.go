package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for toolbox.
type Config struct {
	General     GeneralConfig     `json:"general" yaml:"general"`
	Server      ServerConfig      `json:"server" yaml:"server"`
	Admin       AdminConfig       `json:"admin" yaml:"admin"`
	Security    SecurityConfig    `json:"security" yaml:"security"`
	Tools       ToolsConfig       `json:"tools" yaml:"tools"`
	Elicitation ElicitationConfig `json:"elicitation" yaml:"elicitation"`
	Audit       AuditConfig       `json:"audit" yaml:"audit"`
}

type GeneralConfig struct {
	LogLevel   string `json:"logLevel" yaml:"logLevel"`
	LogFormat  string `json:"logFormat" yaml:"logFormat"`                       // "text" | "json"
	LogFile    string `json:"logFile,omitempty" yaml:"logFile,omitempty"`       // stderr when empty
	WorkingDir string `json:"workingDir,omitempty" yaml:"workingDir,omitempty"` // cwd for executeCommand
}

type ServerConfig struct {
	Name               string `json:"name" yaml:"name"`
	MaxConcurrentCalls int    `json:"maxConcurrentCalls" yaml:"maxConcurrentCalls"`
}

// AdminConfig configures the optional HTTP surface (health, metrics, tools, audit).
type AdminConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
	Token   string `json:"token,omitempty" yaml:"token,omitempty"`
}

// SecurityConfig governs which commands executeCommand may run.
type SecurityConfig struct {
	AllowList            []string `json:"allowList" yaml:"allowList"`
	RejectMetacharacters bool     `json:"rejectMetacharacters" yaml:"rejectMetacharacters"`
}

type ToolsConfig struct {
	Shell   ShellToolConfig   `json:"shell" yaml:"shell"`
	Azure   AzureToolConfig   `json:"azure" yaml:"azure"`
	Weather WeatherToolConfig `json:"weather" yaml:"weather"`
	Image   ImageToolConfig   `json:"image" yaml:"image"`
}

type ShellToolConfig struct {
	Timeout        int      `json:"timeout" yaml:"timeout"` // seconds
	MaxOutputBytes int      `json:"maxOutputBytes" yaml:"maxOutputBytes"`
	EnvPassthrough []string `json:"envPassthrough,omitempty" yaml:"envPassthrough,omitempty"`
}

type AzureToolConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	CLIPath string `json:"cliPath" yaml:"cliPath"`
	Timeout int    `json:"timeout" yaml:"timeout"` // seconds
}

type WeatherToolConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	GeocodeURL  string `json:"geocodeUrl" yaml:"geocodeUrl"`
	ForecastURL string `json:"forecastUrl" yaml:"forecastUrl"`
	Timeout     int    `json:"timeout" yaml:"timeout"` // seconds
}

type ImageToolConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	APIBase      string `json:"apiBase" yaml:"apiBase"`
	APIKey       string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	DefaultModel string `json:"defaultModel" yaml:"defaultModel"`
	Timeout      int    `json:"timeout" yaml:"timeout"` // seconds
}

// ElicitationConfig bounds how long a tool waits for the client's answer.
// Zero waits until the client answers or the connection closes.
type ElicitationConfig struct {
	TimeoutSeconds int `json:"timeoutSeconds" yaml:"timeoutSeconds"`
}

// AuditConfig controls the SQLite audit log and its retention.
type AuditConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	DBPath        string `json:"dbPath" yaml:"dbPath"`
	RetentionDays int    `json:"retentionDays" yaml:"retentionDays"`
	PruneSchedule string `json:"pruneSchedule" yaml:"pruneSchedule"` // cron spec
}

// DefaultConfigDir returns the default config directory (~/.toolbox).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".toolbox"
	}
	return filepath.Join(home, ".toolbox")
}

// DefaultConfigPath is config.yaml under DefaultConfigDir.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads a JSON or YAML config file (chosen by extension) over the defaults.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	ApplyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Endpoint and credential overrides read from the environment when the
// config leaves them empty.
const (
	EnvImageAPIKey  = "OPENAI_API_KEY"
	EnvImageAPIBase = "IMAGE_API_BASE"
	EnvGeocodeURL   = "WEATHER_GEOCODE_URL"
	EnvForecastURL  = "WEATHER_FORECAST_URL"
	EnvAzureCLIPath = "AZURE_CLI_PATH"
)

// ApplyEnv fills empty endpoint/credential fields from the environment and
// expands ~/ in paths.
func ApplyEnv(cfg *Config) {
	fill := func(dst *string, key string) {
		if *dst != "" {
			return
		}
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	fill(&cfg.Tools.Image.APIKey, EnvImageAPIKey)
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&cfg.Tools.Image.APIBase, EnvImageAPIBase)
	override(&cfg.Tools.Weather.GeocodeURL, EnvGeocodeURL)
	override(&cfg.Tools.Weather.ForecastURL, EnvForecastURL)
	override(&cfg.Tools.Azure.CLIPath, EnvAzureCLIPath)

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.General.WorkingDir = ExpandPath(cfg.General.WorkingDir)
	cfg.Audit.DBPath = ExpandPath(cfg.Audit.DBPath)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Save writes cfg as JSON or YAML depending on the path extension.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}

	if cfg.Server.MaxConcurrentCalls < 1 || cfg.Server.MaxConcurrentCalls > 64 {
		errs = append(errs, "server.maxConcurrentCalls must be between 1 and 64")
	}

	if cfg.Admin.Enabled && cfg.Admin.Addr == "" {
		errs = append(errs, "admin.addr is required when admin is enabled")
	}
	if cfg.Admin.Enabled && cfg.Admin.Token == "" {
		errs = append(errs, "admin.token is required when admin is enabled")
	}

	for i, entry := range cfg.Security.AllowList {
		if strings.TrimSpace(entry) == "" {
			errs = append(errs, fmt.Sprintf("security.allowList[%d] must not be blank", i))
		}
	}

	if cfg.Tools.Shell.Timeout < 1 || cfg.Tools.Shell.Timeout > 600 {
		errs = append(errs, "tools.shell.timeout must be between 1 and 600")
	}
	if cfg.Tools.Shell.MaxOutputBytes < 1024 {
		errs = append(errs, "tools.shell.maxOutputBytes must be >= 1024")
	}
	if cfg.Tools.Azure.Enabled {
		if cfg.Tools.Azure.CLIPath == "" {
			errs = append(errs, "tools.azure.cliPath is required when azure is enabled")
		}
		if cfg.Tools.Azure.Timeout < 1 {
			errs = append(errs, "tools.azure.timeout must be >= 1")
		}
	}
	if cfg.Tools.Weather.Enabled {
		if cfg.Tools.Weather.GeocodeURL == "" || cfg.Tools.Weather.ForecastURL == "" {
			errs = append(errs, "tools.weather.geocodeUrl and forecastUrl are required when weather is enabled")
		}
		if cfg.Tools.Weather.Timeout < 1 {
			errs = append(errs, "tools.weather.timeout must be >= 1")
		}
	}
	if cfg.Tools.Image.Enabled {
		if cfg.Tools.Image.APIBase == "" {
			errs = append(errs, "tools.image.apiBase is required when image is enabled")
		}
		if cfg.Tools.Image.Timeout < 1 {
			errs = append(errs, "tools.image.timeout must be >= 1")
		}
	}

	if cfg.Elicitation.TimeoutSeconds < 0 {
		errs = append(errs, "elicitation.timeoutSeconds must be >= 0")
	}

	if cfg.Audit.Enabled {
		if cfg.Audit.DBPath == "" {
			errs = append(errs, "audit.dbPath is required when audit is enabled")
		}
		if cfg.Audit.RetentionDays < 1 {
			errs = append(errs, "audit.retentionDays must be >= 1")
		}
		if cfg.Audit.PruneSchedule != "" {
			if _, err := cron.ParseStandard(cfg.Audit.PruneSchedule); err != nil {
				errs = append(errs, fmt.Sprintf("audit.pruneSchedule is not a valid cron expression: %v", err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
