package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"toolcall/internal/domain"
)

const (
	defaultCommandTimeout = 10 * time.Second
	defaultMaxOutputBytes = 65536
)

// LocalCommandTool runs a shell command on the host. Every failure (policy
// block, non-zero exit, timeout) is reported as output text.
type LocalCommandTool struct {
	workingDir     string
	timeout        time.Duration
	maxOutputBytes int
	policy         domain.CommandPolicy
	logger         *slog.Logger
}

type CommandConfig struct {
	WorkingDir     string
	Timeout        time.Duration
	MaxOutputBytes int
	Policy         domain.CommandPolicy // nil allows everything
	Logger         *slog.Logger
}

func NewLocalCommandTool(cfg CommandConfig) *LocalCommandTool {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCommandTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutputBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &LocalCommandTool{
		workingDir:     cfg.WorkingDir,
		timeout:        cfg.Timeout,
		maxOutputBytes: cfg.MaxOutputBytes,
		policy:         cfg.Policy,
		logger:         cfg.Logger,
	}
}

func (t *LocalCommandTool) Descriptor() domain.ToolDescriptor {
	return domain.ToolDescriptor{
		ID:          "local_command",
		Name:        "Local Command Execution",
		Description: "Execute a local shell command.",
		Parameters:  map[string]string{"command": "string"},
	}
}

func (t *LocalCommandTool) Execute(ctx context.Context, params map[string]any, tc domain.Context) (domain.Result, error) {
	tc = ensureContext(tc)
	command := strings.TrimSpace(ArgsString(params, "command"))
	if command == "" {
		return domain.Reported("No command provided.", tc), nil
	}

	if t.policy != nil {
		if action, reason := t.policy.Check(command); action == domain.ActionBlock {
			result := fmt.Sprintf("Error executing command: blocked by policy (%s)", reason)
			tc[KeyCommandOutput] = result
			return domain.Reported(result, tc), nil
		}
	}

	output, err := t.run(ctx, command)
	if err != nil {
		result := "Error executing command: " + err.Error()
		if output != "" {
			result += "\n" + output
		}
		tc[KeyCommandOutput] = result
		return domain.Reported(result, tc), nil
	}

	tc[KeyCommandOutput] = output
	return domain.OK(output, tc), nil
}

func (t *LocalCommandTool) run(ctx context.Context, command string) (string, error) {
	dir := t.workingDir
	if dir == "" {
		dir = "."
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	// Children that inherit the output pipe must not keep Wait blocked past the deadline.
	cmd.WaitDelay = time.Second

	t.logger.Debug("running local command", "command", command, "dir", dir)
	out, err := cmd.CombinedOutput()
	output := t.truncate(string(out))

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return output, fmt.Errorf("command timed out after %s", t.timeout)
		}
		return output, err
	}
	return output, nil
}

func (t *LocalCommandTool) truncate(s string) string {
	if t.maxOutputBytes > 0 && len(s) > t.maxOutputBytes {
		return s[:t.maxOutputBytes] + "\n... (output truncated)"
	}
	return s
}
