package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         5000,
			Path:         "/mcp",
			MaxBodyBytes: 1 << 20,
			RateLimit: RateLimitConfig{
				Burst: 10,
			},
		},
		Tools: ToolsConfig{
			Code: CodeToolConfig{
				DefaultLanguage: "Python",
			},
			Deploy: DeployToolConfig{
				DefaultTarget: "staging",
			},
			Website: WebsiteToolConfig{
				DefaultURL:     "https://example.com",
				TimeoutSeconds: 5,
			},
			Command: CommandToolConfig{
				TimeoutSeconds: 10,
				MaxOutputBytes: 65536,
			},
			GitHub: GitHubToolConfig{
				APIBase:        "https://api.github.com",
				DefaultOwner:   "Linkan4242",
				DefaultRepo:    "mcp",
				TimeoutSeconds: 5,
			},
		},
		Security: SecurityConfig{
			DefaultPolicy: "allow",
			Blacklist:     defaultBlacklist(),
		},
		Journal: JournalConfig{
			Enabled:       false,
			DBPath:        "~/.toolcall/journal.db",
			RetentionDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}

func defaultBlacklist() []string {
	return []string{
		"rm -rf /",
		"rm -rf /*",
		"mkfs",
		"dd if=",
		":(){:|:&};:",
		"chmod -R 777 /",
		"mv /* /dev/null",
		"shutdown",
		"reboot",
	}
}
