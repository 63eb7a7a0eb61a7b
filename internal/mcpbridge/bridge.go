// Package mcpbridge serves the tool registry over the Model Context Protocol.
// Every MCP tool call goes through the same dispatcher as the HTTP endpoint,
// so both transports share one global context.
package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"toolcall/internal/dispatch"
	"toolcall/internal/domain"
	"toolcall/internal/protocol"
	"toolcall/internal/tool"
)

// ContextArgument is the reserved argument carrying client-supplied context.
const ContextArgument = "_context"

type Bridge struct {
	server     *mcp.Server
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// New registers every tool the dispatcher lists as an MCP tool.
func New(name, version string, d *dispatch.Dispatcher, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	server := mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: version,
	}, nil)

	b := &Bridge{server: server, dispatcher: d, logger: logger}
	for _, desc := range d.ListTools() {
		t, err := toSDKTool(desc)
		if err != nil {
			return nil, err
		}
		server.AddTool(t, b.handler(desc.ID))
	}
	return b, nil
}

// Serve reads MCP requests from in and writes responses to out until ctx is
// cancelled or the transport closes.
func (b *Bridge) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	transport := &mcp.IOTransport{
		Reader: io.NopCloser(in),
		Writer: nopWriteCloser{out},
	}
	return b.run(ctx, transport)
}

func (b *Bridge) run(ctx context.Context, transport mcp.Transport) error {
	return b.server.Run(ctx, transport)
}

func toSDKTool(d domain.ToolDescriptor) (*mcp.Tool, error) {
	schema := tool.InputSchema(d)
	props := schema["properties"].(map[string]any)
	props[ContextArgument] = map[string]any{
		"type":        "object",
		"description": "Context values layered over the global context for this call.",
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("schema for %s: %w", d.ID, err)
	}
	return &mcp.Tool{
		Name:        d.ID,
		Title:       d.Name,
		Description: d.Description,
		InputSchema: json.RawMessage(raw),
	}, nil
}

// handler splits the arguments into parameters and client context and
// returns the output followed by the global context as JSON text.
func (b *Bridge) handler(toolID string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, clientCtx, err := splitArguments(req.Params.Arguments)
		if err != nil {
			return errorResult(err.Error()), nil
		}

		res, err := b.dispatcher.CallTool(ctx, toolID, params, clientCtx)
		if err != nil {
			resp, _ := protocol.FromError(err)
			return errorResult(resp.Message), nil
		}

		output, err := textOf(res.Output)
		if err != nil {
			return nil, err
		}
		globalCtx, err := json.Marshal(res.Context)
		if err != nil {
			return nil, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: output},
				&mcp.TextContent{Text: string(globalCtx)},
			},
		}, nil
	}
}

func splitArguments(raw json.RawMessage) (map[string]any, domain.Context, error) {
	params := map[string]any{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}

	clientCtx := domain.Context{}
	if v, ok := params[ContextArgument]; ok {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, nil, fmt.Errorf("invalid arguments: %s must be an object", ContextArgument)
		}
		clientCtx = m
		delete(params, ContextArgument)
	}
	return params, clientCtx, nil
}

func textOf(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// nopWriteCloser wraps an io.Writer as an io.WriteCloser with a no-op Close.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
