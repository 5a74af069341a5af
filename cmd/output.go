package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcporter/internal/logging"
)

// Output formats of the call command.
const (
	outputText = "text"
	outputJSON = "json"
	outputRaw  = "raw"
)

// writeCallResult prints res in format. Text mode pretty-prints JSON text
// content and summarizes binary content.
func writeCallResult(w io.Writer, res *mcp.CallToolResult, format string) error {
	switch format {
	case outputJSON:
		return writeJSON(w, res)
	case outputRaw:
		data, err := json.Marshal(res)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	if len(res.Content) == 0 && res.StructuredContent != nil {
		fmt.Fprintln(w, logging.PrettyJSON(res.StructuredContent))
		return nil
	}
	for _, content := range res.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			var v any
			if err := json.Unmarshal([]byte(text.Text), &v); err == nil {
				fmt.Fprintln(w, logging.PrettyJSON(v))
			} else {
				fmt.Fprintln(w, text.Text)
			}
		} else if img, ok := mcp.AsImageContent(content); ok {
			fmt.Fprintf(w, "[image %s, %d bytes base64]\n", img.MIMEType, len(img.Data))
		} else if audio, ok := mcp.AsAudioContent(content); ok {
			fmt.Fprintf(w, "[audio %s, %d bytes base64]\n", audio.MIMEType, len(audio.Data))
		} else {
			fmt.Fprintln(w, logging.PrettyJSON(content))
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
