package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolInfo is a tool as reported by a server. A nil schema means the server
// did not provide one; it is never replaced by an empty object.
type ToolInfo struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	InputSchema  json.RawMessage `json:"inputSchema,omitempty"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
}

// ListToolsOptions tunes ListTools.
type ListToolsOptions struct {
	// AutoAuthorize runs the OAuth browser flow when the server asks for it.
	AutoAuthorize bool
}

// CallOptions tunes CallTool.
type CallOptions struct {
	Args          map[string]any
	AutoAuthorize bool
	// Timeout bounds connection and call together. Zero means no limit.
	Timeout time.Duration
}

// ListTools returns every tool of server name, following pagination.
func (r *Runtime) ListTools(ctx context.Context, name string, opts ListToolsOptions) ([]ToolInfo, error) {
	conn, err := r.connection(ctx, name, opts.AutoAuthorize)
	if err != nil {
		return nil, err
	}

	var tools []ToolInfo
	req := mcp.ListToolsRequest{}
	seen := map[mcp.Cursor]bool{}
	for {
		var res *mcp.ListToolsResult
		r.logger.Request("tools/list", req.Params)
		err := r.withAuthorization(ctx, conn.def, opts.AutoAuthorize, "tools/list", func() error {
			var err error
			res, err = conn.client.ListTools(ctx, req)
			return err
		})
		if err != nil {
			return nil, err
		}
		r.logger.Response("tools/list", res)

		for _, tool := range res.Tools {
			info, err := normalizeTool(tool)
			if err != nil {
				return nil, fmt.Errorf("server '%s' returned an invalid tool: %w", name, err)
			}
			tools = append(tools, info)
		}
		if res.NextCursor == "" || seen[res.NextCursor] {
			break
		}
		seen[res.NextCursor] = true
		req.Params.Cursor = res.NextCursor
	}
	return tools, nil
}

// CallTool invokes tool on server name. The result is returned unchanged.
func (r *Runtime) CallTool(ctx context.Context, name, tool string, opts CallOptions) (*mcp.CallToolResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	conn, err := r.connection(ctx, name, opts.AutoAuthorize)
	if err != nil {
		return nil, err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	if opts.Args != nil {
		req.Params.Arguments = opts.Args
	}

	var res *mcp.CallToolResult
	r.logger.Request("tools/call", req.Params)
	err = r.withAuthorization(ctx, conn.def, opts.AutoAuthorize, "tools/call", func() error {
		var err error
		res, err = conn.client.CallTool(ctx, req)
		return err
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("call to %s.%s timed out after %s: %w", name, tool, opts.Timeout, err)
		}
		return nil, err
	}
	r.logger.Response("tools/call", res)
	return res, nil
}

// ListResources returns the resources of server name, following pagination.
func (r *Runtime) ListResources(ctx context.Context, name string) ([]mcp.Resource, error) {
	conn, err := r.connection(ctx, name, false)
	if err != nil {
		return nil, err
	}

	var resources []mcp.Resource
	req := mcp.ListResourcesRequest{}
	seen := map[mcp.Cursor]bool{}
	for {
		r.logger.Request("resources/list", req.Params)
		res, err := conn.client.ListResources(ctx, req)
		if err != nil {
			return nil, err
		}
		r.logger.Response("resources/list", res)
		resources = append(resources, res.Resources...)
		if res.NextCursor == "" || seen[res.NextCursor] {
			break
		}
		seen[res.NextCursor] = true
		req.Params.Cursor = res.NextCursor
	}
	return resources, nil
}

// ServerInfo returns what server name reported during initialization,
// connecting first if needed.
func (r *Runtime) ServerInfo(ctx context.Context, name string) (mcp.Implementation, error) {
	conn, err := r.connection(ctx, name, false)
	if err != nil {
		return mcp.Implementation{}, err
	}
	return conn.serverInfo, nil
}

// normalizeTool goes through the wire form so raw and structured schemas
// are handled alike.
func normalizeTool(tool mcp.Tool) (ToolInfo, error) {
	data, err := json.Marshal(tool)
	if err != nil {
		return ToolInfo{}, err
	}
	var wire struct {
		Name         string          `json:"name"`
		Description  string          `json:"description"`
		InputSchema  json.RawMessage `json:"inputSchema"`
		OutputSchema json.RawMessage `json:"outputSchema"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return ToolInfo{}, err
	}
	return ToolInfo{
		Name:         wire.Name,
		Description:  wire.Description,
		InputSchema:  normalizeSchema(wire.InputSchema),
		OutputSchema: normalizeSchema(wire.OutputSchema),
	}, nil
}

// normalizeSchema returns nil for a missing, null or empty schema. An untyped
// schema whose only members are empty is empty too.
func normalizeSchema(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil
	}
	if t, ok := fields["type"]; ok && (string(t) == `""` || string(t) == "null") {
		delete(fields, "type")
	}
	_, typed := fields["type"]
	for k, v := range fields {
		switch string(v) {
		case "null":
			delete(fields, k)
		case "{}", "[]":
			if !typed {
				delete(fields, k)
			}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return raw
}
