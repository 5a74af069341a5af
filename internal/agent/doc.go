// Package agent provides the interactive surfaces built on top of a Runtime.
//
// # Key Components
//
//   - REPL: readline shell bound to one server at a time, with tab completion
//     of commands, tool names and server names
//   - MCPServer: exposes every configured server through a single MCP server
//     (list_servers, list_tools, list_resources, call_tool) over stdio or
//     streamable HTTP
package agent
