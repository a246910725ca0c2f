package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"taskhive/internal/logging"
	"taskhive/internal/protocol"
	"taskhive/internal/session"
)

// MCPToolkit exposes the tools of one external MCP server to an agent. It
// supports stdio servers (command plus args) and streamable HTTP servers
// (url). Closing the underlying client is deferred to session cleanup.
type MCPToolkit struct {
	*Base
	client *client.Client
	tools  []mcp.Tool
}

var _ session.Toolkit = (*MCPToolkit)(nil)
var _ session.Cleaner = (*MCPToolkit)(nil)

// NewMCPToolkit connects to the server described by spec, performs the MCP
// handshake, and lists the available tools. The returned toolkit must be
// registered on the session so cleanup can close the transport.
func NewMCPToolkit(ctx context.Context, name, agentName string, spec protocol.McpServerSpec, sess *session.Session, logger logging.Logger) (*MCPToolkit, error) {
	var (
		c   *client.Client
		err error
	)
	switch {
	case spec.Command != "":
		env := make([]string, 0, len(spec.Env))
		for k, v := range spec.Env {
			env = append(env, k+"="+v)
		}
		c, err = client.NewStdioMCPClient(spec.Command, env, spec.Args...)
		if err != nil {
			return nil, fmt.Errorf("start mcp server %s: %w", name, err)
		}
	case spec.URL != "":
		c, err = client.NewStreamableHttpClient(spec.URL)
		if err != nil {
			return nil, fmt.Errorf("connect mcp server %s: %w", name, err)
		}
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("start mcp transport %s: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("mcp server %s: neither command nor url given", name)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "taskhive", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize mcp server %s: %w", name, err)
	}

	toolsRes, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("list tools of mcp server %s: %w", name, err)
	}

	tk := &MCPToolkit{
		Base:   NewBase(name, agentName, sess, logger),
		client: c,
		tools:  toolsRes.Tools,
	}
	return tk, nil
}

// Tools returns the tool descriptors advertised by the server.
func (t *MCPToolkit) Tools() []mcp.Tool { return t.tools }

// ToolNames returns the advertised tool names.
func (t *MCPToolkit) ToolNames() []string {
	names := make([]string, len(t.tools))
	for i, tool := range t.tools {
		names[i] = tool.Name
	}
	return names
}

// CallTool invokes one tool and returns the concatenated text content of the
// result. The call is instrumented, so the session stream sees activation and
// deactivation events around it.
func (t *MCPToolkit) CallTool(ctx context.Context, toolName string, args map[string]any) (string, error) {
	argsJSON, _ := json.Marshal(args)
	return t.Instrument(ctx, toolName, string(argsJSON), func(ctx context.Context) (string, error) {
		req := mcp.CallToolRequest{}
		req.Params.Name = toolName
		req.Params.Arguments = args
		res, err := t.client.CallTool(ctx, req)
		if err != nil {
			return "", fmt.Errorf("call %s on mcp server %s: %w", toolName, t.Name(), err)
		}
		text := flattenContent(res.Content)
		if res.IsError {
			return "", fmt.Errorf("tool %s reported an error: %s", toolName, text)
		}
		return text, nil
	})
}

// Cleanup implements session.Cleaner by closing the server transport.
func (t *MCPToolkit) Cleanup(ctx context.Context) error {
	return t.client.Close()
}

func flattenContent(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		if tc, ok := c.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
