package config

// Defaults returns the configuration written by "toolbox init".
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Server: ServerConfig{
			Name:               "toolbox",
			MaxConcurrentCalls: 8,
		},
		Admin: AdminConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
		Security: SecurityConfig{
			AllowList:            defaultAllowList(),
			RejectMetacharacters: true,
		},
		Tools: ToolsConfig{
			Shell: ShellToolConfig{
				Timeout:        30,
				MaxOutputBytes: 65536,
			},
			Azure: AzureToolConfig{
				Enabled: true,
				CLIPath: "az",
				Timeout: 60,
			},
			Weather: WeatherToolConfig{
				Enabled:     true,
				GeocodeURL:  "https://geocoding-api.open-meteo.com/v1/search",
				ForecastURL: "https://api.open-meteo.com/v1/forecast",
				Timeout:     15,
			},
			Image: ImageToolConfig{
				Enabled:      true,
				APIBase:      "https://api.openai.com/v1/images/generations",
				DefaultModel: "dall-e-3",
				Timeout:      120,
			},
		},
		Elicitation: ElicitationConfig{
			TimeoutSeconds: 300,
		},
		Audit: AuditConfig{
			Enabled:       true,
			DBPath:        "~/.toolbox/audit.db",
			RetentionDays: 30,
			PruneSchedule: "@daily",
		},
	}
}

// Prefixes are matched case-insensitively; anything after them is unchecked
// unless metacharacter rejection is on, so keep entries narrow.
func defaultAllowList() []string {
	return []string{
		"ls",
		"pwd",
		"echo",
		"date",
		"whoami",
		"hostname",
		"uname",
		"git status",
		"git log --oneline -10",
		"git branch",
		"git diff --stat",
		"node --version",
		"npm --version",
		"go version",
		"python --version",
		"python3 --version",
		"az --version",
		"az account show",
	}
}
