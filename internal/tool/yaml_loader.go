package tool

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"toolcall/internal/domain"
)

// TemplateDefinition is the YAML shape of an operator-defined tool. The output
// template sees .params (defaults overlaid by call parameters) and .context.
//
//	tool_id: release_notes
//	name: Release Notes
//	description: Summarise the last deployment.
//	parameters:
//	  version: string
//	defaults:
//	  version: unreleased
//	context_key: release_notes
//	output: "{{ .params.version }}: {{ .context.deployment_result }}"
type TemplateDefinition struct {
	ID          string            `yaml:"tool_id"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Parameters  map[string]string `yaml:"parameters"`
	Defaults    map[string]any    `yaml:"defaults"`
	ContextKey  string            `yaml:"context_key"`
	Output      string            `yaml:"output"`
}

// TemplateTool renders a text/template and stores the result in the context.
type TemplateTool struct {
	def  TemplateDefinition
	tmpl *template.Template
}

func NewTemplateTool(def TemplateDefinition) (*TemplateTool, error) {
	if def.ID == "" {
		return nil, fmt.Errorf("template tool: tool_id is required")
	}
	if def.Output == "" {
		return nil, fmt.Errorf("template tool %s: output is required", def.ID)
	}
	if def.Name == "" {
		def.Name = def.ID
	}
	if def.ContextKey == "" {
		def.ContextKey = def.ID
	}
	if def.Parameters == nil {
		def.Parameters = map[string]string{}
	}

	tmpl, err := template.New(def.ID).Option("missingkey=zero").Parse(def.Output)
	if err != nil {
		return nil, fmt.Errorf("template tool %s: %w", def.ID, err)
	}
	return &TemplateTool{def: def, tmpl: tmpl}, nil
}

func (t *TemplateTool) Descriptor() domain.ToolDescriptor {
	return domain.ToolDescriptor{
		ID:          t.def.ID,
		Name:        t.def.Name,
		Description: t.def.Description,
		Parameters:  t.def.Parameters,
	}
}

// Execute renders the template. A rendering error escapes as a fault.
func (t *TemplateTool) Execute(_ context.Context, params map[string]any, tc domain.Context) (domain.Result, error) {
	tc = ensureContext(tc)

	merged := make(map[string]any, len(t.def.Defaults)+len(params))
	for k, v := range t.def.Defaults {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}

	var buf bytes.Buffer
	data := map[string]any{"params": merged, "context": map[string]any(tc)}
	if err := t.tmpl.Execute(&buf, data); err != nil {
		return domain.Result{}, fmt.Errorf("render %s: %w", t.def.ID, err)
	}

	out := buf.String()
	tc[t.def.ContextKey] = out
	return domain.OK(out, tc), nil
}

// LoadFromDirectory loads template tools from .yaml/.yml files in dir.
// Unreadable or invalid files are logged and skipped; a missing dir is not an error.
func LoadFromDirectory(dir string, logger *slog.Logger) ([]*TemplateTool, error) {
	if dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("tools directory does not exist, skipping", "dir", dir)
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read tools dir: %w", err)
	}

	var tools []*TemplateTool
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read tool file", "path", path, "err", err)
			continue
		}

		var def TemplateDefinition
		if err := yaml.Unmarshal(data, &def); err != nil {
			logger.Warn("cannot parse tool file", "path", path, "err", err)
			continue
		}
		if def.ID == "" {
			def.ID = strings.TrimSuffix(name, filepath.Ext(name))
		}

		t, err := NewTemplateTool(def)
		if err != nil {
			logger.Warn("invalid tool definition", "path", path, "err", err)
			continue
		}

		logger.Info("loaded template tool", "id", def.ID, "path", path)
		tools = append(tools, t)
	}

	return tools, nil
}
