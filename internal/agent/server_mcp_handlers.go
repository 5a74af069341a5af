package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcporter/internal/runtime"
)

type serverSummary struct {
	Name        string `json:"name"`
	Transport   string `json:"transport"`
	Description string `json:"description,omitempty"`
	OAuth       bool   `json:"oauth,omitempty"`
}

// handleListServers handles the list_servers tool request
func (m *MCPServer) handleListServers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defs := m.rt.Definitions()
	servers := make([]serverSummary, 0, len(defs))
	for _, def := range defs {
		servers = append(servers, serverSummary{
			Name:        def.Name,
			Transport:   string(def.Command.Kind()),
			Description: def.Description,
			OAuth:       def.IsOAuth(),
		})
	}
	return jsonResult(servers, "servers")
}

// handleListTools handles the list_tools tool request
func (m *MCPServer) handleListTools(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("server")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// A server-mode client cannot complete a browser flow on our behalf.
	tools, err := m.rt.ListTools(ctx, name, runtime.ListToolsOptions{})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tools of '%s': %v", name, err)), nil
	}
	if tools == nil {
		tools = []runtime.ToolInfo{}
	}
	return jsonResult(tools, "tools")
}

// handleListResources handles the list_resources tool request
func (m *MCPServer) handleListResources(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("server")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resources, err := m.rt.ListResources(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list resources of '%s': %v", name, err)), nil
	}
	return jsonResult(resources, "resources")
}

// handleCallTool handles the call_tool request. The downstream result is
// returned as is, including its error flag.
func (m *MCPServer) handleCallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("server")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tool, err := request.RequireString("tool")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var args map[string]any
	if raw, ok := request.GetArguments()["arguments"]; ok && raw != nil {
		args, ok = raw.(map[string]any)
		if !ok {
			return mcp.NewToolResultError("'arguments' must be a JSON object"), nil
		}
	}

	m.logger.Debug("Proxying %s.%s", name, tool)
	result, err := m.rt.CallTool(ctx, name, tool, runtime.CallOptions{Args: args, Timeout: m.opts.CallTimeout})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("tool execution failed: %v", err)), nil
	}
	return result, nil
}

func jsonResult(v any, what string) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal %s: %v", what, err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
