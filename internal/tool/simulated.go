package tool

import (
	"context"
	"fmt"
	"strings"

	"toolcall/internal/domain"
)

// Context keys written by the built-in tools.
const (
	KeyGeneratedCode    = "generated_code"
	KeyDebugResult      = "debug_result"
	KeyTestResult       = "test_result"
	KeyDeploymentResult = "deployment_result"
	KeyMonitoringReport = "monitoring_report"
	KeyWebsiteStatus    = "website_status"
	KeyCommandOutput    = "command_output"
	KeyLatestCommit     = "latest_commit"
)

// CodeGenerationTool produces a code stub for a description.
type CodeGenerationTool struct {
	defaultLanguage string
}

func NewCodeGenerationTool(defaultLanguage string) *CodeGenerationTool {
	if defaultLanguage == "" {
		defaultLanguage = "Python"
	}
	return &CodeGenerationTool{defaultLanguage: defaultLanguage}
}

func (t *CodeGenerationTool) Descriptor() domain.ToolDescriptor {
	return domain.ToolDescriptor{
		ID:          "code_generation",
		Name:        "Code Generation",
		Description: "Generate code based on a description.",
		Parameters:  map[string]string{"description": "string", "language": "string"},
	}
}

func (t *CodeGenerationTool) Execute(_ context.Context, params map[string]any, tc domain.Context) (domain.Result, error) {
	tc = ensureContext(tc)
	description := ArgsStringDefault(params, "description", "No description provided")
	language := ArgsStringDefault(params, "language", t.defaultLanguage)

	code := fmt.Sprintf("# %s code generated for: %s\ndef generated_function():\n    pass", language, description)
	tc[KeyGeneratedCode] = code
	return domain.OK(code, tc), nil
}

// DebuggingTool inspects the code left in the context by code_generation.
type DebuggingTool struct{}

func NewDebuggingTool() *DebuggingTool { return &DebuggingTool{} }

func (t *DebuggingTool) Descriptor() domain.ToolDescriptor {
	return domain.ToolDescriptor{
		ID:          "debugging",
		Name:        "Debugging",
		Description: "Analyze generated code for issues.",
		Parameters:  map[string]string{},
	}
}

func (t *DebuggingTool) Execute(_ context.Context, _ map[string]any, tc domain.Context) (domain.Result, error) {
	tc = ensureContext(tc)
	code := tc.String(KeyGeneratedCode)

	var result string
	switch {
	case code == "":
		result = "No code available to debug."
	case strings.Contains(code, "def"):
		result = "No issues found."
	default:
		result = "Error: No function definition detected."
	}
	tc[KeyDebugResult] = result
	return domain.OK(result, tc), nil
}

// TestingTool reports a fixed test outcome.
type TestingTool struct{}

func NewTestingTool() *TestingTool { return &TestingTool{} }

func (t *TestingTool) Descriptor() domain.ToolDescriptor {
	return domain.ToolDescriptor{
		ID:          "testing",
		Name:        "Testing",
		Description: "Run tests on the current code.",
		Parameters:  map[string]string{},
	}
}

func (t *TestingTool) Execute(_ context.Context, _ map[string]any, tc domain.Context) (domain.Result, error) {
	tc = ensureContext(tc)
	result := "All tests passed."
	tc[KeyTestResult] = result
	return domain.OK(result, tc), nil
}

// DeploymentTool formats a deployment message for a target environment.
type DeploymentTool struct {
	defaultTarget string
}

func NewDeploymentTool(defaultTarget string) *DeploymentTool {
	if defaultTarget == "" {
		defaultTarget = "staging"
	}
	return &DeploymentTool{defaultTarget: defaultTarget}
}

func (t *DeploymentTool) Descriptor() domain.ToolDescriptor {
	return domain.ToolDescriptor{
		ID:          "deployment",
		Name:        "Deployment",
		Description: "Deploy the current build to a target environment.",
		Parameters:  map[string]string{"target": "string"},
	}
}

func (t *DeploymentTool) Execute(_ context.Context, params map[string]any, tc domain.Context) (domain.Result, error) {
	tc = ensureContext(tc)
	target := ArgsStringDefault(params, "target", t.defaultTarget)
	result := fmt.Sprintf("Deployed successfully to %s.", target)
	tc[KeyDeploymentResult] = result
	return domain.OK(result, tc), nil
}

// MonitoringTool reports a fixed system health line.
type MonitoringTool struct{}

func NewMonitoringTool() *MonitoringTool { return &MonitoringTool{} }

func (t *MonitoringTool) Descriptor() domain.ToolDescriptor {
	return domain.ToolDescriptor{
		ID:          "monitoring",
		Name:        "Monitoring",
		Description: "Monitor system performance and health.",
		Parameters:  map[string]string{},
	}
}

func (t *MonitoringTool) Execute(_ context.Context, _ map[string]any, tc domain.Context) (domain.Result, error) {
	tc = ensureContext(tc)
	report := "System operational. No alerts."
	tc[KeyMonitoringReport] = report
	return domain.OK(report, tc), nil
}
