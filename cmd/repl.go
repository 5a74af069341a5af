package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcporter/internal/agent"
)

// newREPLCmd creates the repl command
func newREPLCmd() *cobra.Command {
	eph := &ephemeralFlags{}
	cmd := &cobra.Command{
		Use:   "repl <server|url>",
		Short: "Explore a server interactively",
		Long: `Open an interactive shell against a server.

In the shell you can:
- List tools and resources
- Show a tool's input schema
- Call tools with JSON or key=value arguments
- Switch to another configured server

TAB completes commands, tool names and server names.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !eph.requested() {
				return usageErrorf("repl requires a server name or URL")
			}
			ctx := cmd.Context()
			rt, err := session.Runtime(ctx)
			if err != nil {
				return err
			}
			name, err := targetServer(rt, eph, args, session.logger)
			if err != nil {
				return err
			}

			// Create and run the REPL
			r := agent.NewREPL(rt, name, session.logger)
			if err := r.Run(ctx); err != nil {
				return fmt.Errorf("REPL error: %w", err)
			}
			return nil
		},
	}
	// Add flags
	eph.register(cmd.Flags())
	return cmd
}
