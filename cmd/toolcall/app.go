package main

import (
	"fmt"
	"time"

	"toolcall/internal/config"
	"toolcall/internal/ctxstore"
	"toolcall/internal/dispatch"
	"toolcall/internal/domain"
	"toolcall/internal/journal"
	"toolcall/internal/security"
	"toolcall/internal/tool"
)

// runtime is everything a transport needs to serve envelopes.
type runtime struct {
	registry   *tool.Registry
	dispatcher *dispatch.Dispatcher
	journal    *journal.SQLiteJournal // nil when disabled
}

func (r *runtime) Close() {
	if r.journal != nil {
		r.journal.Close()
	}
}

func newRuntime(cfg *config.Config) (*runtime, error) {
	reg, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	rt := &runtime{registry: reg}
	var j domain.Journal
	if cfg.Journal.Enabled {
		rt.journal, err = journal.NewSQLiteJournal(cfg.Journal.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		j = rt.journal
	}

	rt.dispatcher = dispatch.New(dispatch.Config{
		Catalog: reg,
		Store:   ctxstore.New(),
		Journal: j,
		Logger:  logger,
	})
	return rt, nil
}

// buildRegistry registers the built-in tools, then any YAML template tools,
// and freezes the registry.
func buildRegistry(cfg *config.Config) (*tool.Registry, error) {
	policy, err := security.NewPolicy(cfg.Security, logger)
	if err != nil {
		return nil, fmt.Errorf("command policy: %w", err)
	}

	tc := cfg.Tools
	reg := tool.NewRegistry(logger)
	err = reg.Register(
		tool.NewCodeGenerationTool(tc.Code.DefaultLanguage),
		tool.NewDebuggingTool(),
		tool.NewTestingTool(),
		tool.NewDeploymentTool(tc.Deploy.DefaultTarget),
		tool.NewMonitoringTool(),
		tool.NewWebsiteCheckTool(tool.WebsiteConfig{
			DefaultURL: tc.Website.DefaultURL,
			Timeout:    seconds(tc.Website.TimeoutSeconds),
		}),
		tool.NewLocalCommandTool(tool.CommandConfig{
			WorkingDir:     tc.Command.WorkingDir,
			Timeout:        seconds(tc.Command.TimeoutSeconds),
			MaxOutputBytes: tc.Command.MaxOutputBytes,
			Policy:         policy,
			Logger:         logger,
		}),
		tool.NewLatestCommitTool(tool.GitHubConfig{
			APIBase:      tc.GitHub.APIBase,
			Token:        tc.GitHub.Token,
			DefaultOwner: tc.GitHub.DefaultOwner,
			DefaultRepo:  tc.GitHub.DefaultRepo,
			Timeout:      seconds(tc.GitHub.TimeoutSeconds),
		}),
	)
	if err != nil {
		return nil, err
	}

	templates, err := tool.LoadFromDirectory(tc.ExtraDir, logger)
	if err != nil {
		return nil, err
	}
	for _, t := range templates {
		if err := reg.Register(t); err != nil {
			logger.Warn("skipping template tool", "id", t.Descriptor().ID, "err", err)
		}
	}

	reg.Freeze()
	logger.Debug("registry ready", "tools", len(reg.IDs()))
	return reg, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
