package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcporter/internal/callargs"
	"github.com/giantswarm/mcporter/internal/logging"
	"github.com/giantswarm/mcporter/internal/runtime"
)

// findTool finds a tool by name in the current server's tool list
func (r *REPL) findTool(ctx context.Context, toolName string) (runtime.ToolInfo, error) {
	tools, err := r.toolList(ctx)
	if err != nil {
		return runtime.ToolInfo{}, err
	}
	for _, t := range tools {
		if t.Name == toolName {
			return t, nil
		}
	}
	return runtime.ToolInfo{}, fmt.Errorf("tool not found: %s", toolName)
}

// parseToolArgs accepts either one JSON object or key=value tokens, then
// coerces string values against the tool's input schema.
func parseToolArgs(tokens []string, tool runtime.ToolInfo) (map[string]any, error) {
	var (
		args map[string]any
		err  error
	)
	joined := strings.TrimSpace(strings.Join(tokens, " "))
	if strings.HasPrefix(joined, "{") {
		args, err = callargs.Parse(nil, joined)
		if err != nil {
			return nil, fmt.Errorf("%w\nExample: call %s {\"param1\": \"value1\", \"param2\": 123}", err, tool.Name)
		}
	} else {
		args, err = callargs.Parse(tokens, "")
		if err != nil {
			return nil, err
		}
	}

	args, err = callargs.Coerce(args, tool.InputSchema)
	if err != nil {
		return nil, err
	}
	if missing := callargs.MissingRequired(args, tool.InputSchema); len(missing) > 0 {
		return nil, fmt.Errorf("missing required argument(s): %s", strings.Join(missing, ", "))
	}
	return args, nil
}

// displayToolResultContent displays a single content item from a tool result
func displayToolResultContent(w io.Writer, content mcp.Content) {
	if textContent, ok := mcp.AsTextContent(content); ok {
		displayTextContent(w, textContent.Text)
	} else if imageContent, ok := mcp.AsImageContent(content); ok {
		fmt.Fprintf(w, "[Image: MIME type %s, %d bytes]\n", imageContent.MIMEType, len(imageContent.Data))
	} else if audioContent, ok := mcp.AsAudioContent(content); ok {
		fmt.Fprintf(w, "[Audio: MIME type %s, %d bytes]\n", audioContent.MIMEType, len(audioContent.Data))
	}
}

// displayTextContent displays text content, pretty-printing JSON if possible
func displayTextContent(w io.Writer, text string) {
	var jsonData interface{}
	if err := json.Unmarshal([]byte(text), &jsonData); err == nil {
		fmt.Fprintln(w, logging.PrettyJSON(jsonData))
	} else {
		fmt.Fprintln(w, text)
	}
}

// displayToolResult displays the result of a tool call
func displayToolResult(w io.Writer, result *mcp.CallToolResult) {
	if result.IsError {
		fmt.Fprintln(w, "Tool returned an error:")
		for _, content := range result.Content {
			if textContent, ok := mcp.AsTextContent(content); ok {
				fmt.Fprintf(w, "  %s\n", textContent.Text)
			}
		}
		return
	}

	fmt.Fprintln(w, "Result:")
	if len(result.Content) == 0 && result.StructuredContent != nil {
		fmt.Fprintln(w, logging.PrettyJSON(result.StructuredContent))
		return
	}
	for _, content := range result.Content {
		displayToolResultContent(w, content)
	}
}

// handleCallTool executes a tool with the given arguments
func (r *REPL) handleCallTool(ctx context.Context, toolName string, tokens []string) error {
	tool, err := r.findTool(ctx, toolName)
	if err != nil {
		return err
	}

	args, err := parseToolArgs(tokens, tool)
	if err != nil {
		return err
	}

	server := r.currentServer()
	fmt.Fprintf(r.out, "Executing %s.%s...\n", server, toolName)
	result, err := r.rt.CallTool(ctx, server, toolName, runtime.CallOptions{Args: args, AutoAuthorize: true})
	if err != nil {
		return fmt.Errorf("tool execution failed: %w", err)
	}

	displayToolResult(r.out, result)
	return nil
}
