package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"toolcall/internal/config"
)

func init() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestParseKeyValues(t *testing.T) {
	got, err := parseKeyValues([]string{
		"description=auth endpoint",
		"count=3",
		"flags={\"a\":true}",
		"empty=",
		"eq=a=b",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := map[string]any{
		"description": "auth endpoint",
		"count":       3.0,
		"flags":       map[string]any{"a": true},
		"empty":       "",
		"eq":          "a=b",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestParseKeyValues_Invalid(t *testing.T) {
	for _, pair := range []string{"novalue", "=x"} {
		if _, err := parseKeyValues([]string{pair}); err == nil {
			t.Fatalf("expected error for %q", pair)
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	os.WriteFile(path, []byte("TOOLCALL_DOTENV_NEW=from-file\nTOOLCALL_DOTENV_SET=from-file\n"), 0o644)

	t.Setenv("TOOLCALL_DOTENV_SET", "from-shell")
	t.Cleanup(func() { os.Unsetenv("TOOLCALL_DOTENV_NEW") })

	if err := loadDotEnv(path); err != nil {
		t.Fatalf("loadDotEnv: %v", err)
	}
	if got := os.Getenv("TOOLCALL_DOTENV_NEW"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
	if got := os.Getenv("TOOLCALL_DOTENV_SET"); got != "from-shell" {
		t.Fatalf("existing variables must win, got %q", got)
	}
}

func TestLoadDotEnv_Missing(t *testing.T) {
	if err := loadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}
	if err := loadDotEnv(""); err != nil {
		t.Fatalf("empty path should be ignored: %v", err)
	}
}

func TestBuildRegistry(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "notes.yaml"), []byte("tool_id: notes\noutput: \"{{ .params.x }}\"\n"), 0o644)
	os.WriteFile(filepath.Join(dir, "dup.yaml"), []byte("tool_id: testing\noutput: clash\n"), 0o644)

	cfg := config.Defaults()
	cfg.Tools.ExtraDir = dir

	reg, err := buildRegistry(cfg)
	if err != nil {
		t.Fatalf("buildRegistry: %v", err)
	}
	want := []string{
		"code_generation", "debugging", "testing", "deployment", "monitoring",
		"website_check", "local_command", "latest_commit", "notes",
	}
	if !reflect.DeepEqual(reg.IDs(), want) {
		t.Fatalf("unexpected ids %v", reg.IDs())
	}
	if err := reg.Register(nil); err == nil {
		t.Fatal("registry should be frozen")
	}
}

func TestBuildRegistry_InvalidPolicy(t *testing.T) {
	cfg := config.Defaults()
	cfg.Security.Blacklist = []string{"re:[broken"}
	if _, err := buildRegistry(cfg); err == nil {
		t.Fatal("expected error for invalid policy pattern")
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	configPath = filepath.Join(t.TempDir(), "absent.json")
	t.Cleanup(func() { configPath = "" })

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Fatalf("expected default port, got %d", cfg.Server.Port)
	}
}

func TestNewRuntime_WithJournal(t *testing.T) {
	cfg := config.Defaults()
	cfg.Journal.Enabled = true
	cfg.Journal.DBPath = filepath.Join(t.TempDir(), "journal.db")

	rt, err := newRuntime(cfg)
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	defer rt.Close()

	if rt.journal == nil {
		t.Fatal("expected journal to be opened")
	}
	if len(rt.dispatcher.ListTools()) != 8 {
		t.Fatalf("expected 8 built-in tools, got %d", len(rt.dispatcher.ListTools()))
	}
}

func TestOneShotCommandsHonourLogConfig(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "toolcall.log")

	cfg := config.Defaults()
	cfg.General.LogLevel = "debug"
	cfg.General.LogFile = logFile
	if err := config.Save(filepath.Join(dir, "config.json"), cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	prev := logger
	configPath = filepath.Join(dir, "config.json")
	t.Cleanup(func() {
		logger = prev
		configPath = ""
	})

	var out bytes.Buffer
	cmd := toolsCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("tools: %v", err)
	}
	if !strings.Contains(out.String(), `"code_generation"`) {
		t.Fatalf("unexpected output %s", out.String())
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "registry ready") {
		t.Fatalf("expected debug output in log file, got %q", data)
	}
}
