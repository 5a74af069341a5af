package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcporter/internal/emit"
	"github.com/giantswarm/mcporter/internal/runtime"
)

type emitOptions struct {
	out  string
	mode string
	eph  ephemeralFlags
}

// newEmitTSCmd creates the emit-ts command
func newEmitTSCmd() *cobra.Command {
	o := &emitOptions{}
	cmd := &cobra.Command{
		Use:   "emit-ts <server|url>",
		Short: "Emit TypeScript declarations for a server's tools",
		Long: `Write TypeScript interfaces describing the arguments of every tool of a
server. With --mode client, also emit a small client that runs
'mcporter call' for each tool.`,
		Args: cobra.MaximumNArgs(1),
		RunE: o.run,
	}
	// Add flags
	cmd.Flags().StringVar(&o.out, "out", "", "Write to this file instead of stdout")
	cmd.Flags().StringVar(&o.mode, "mode", string(emit.ModeTypes), "What to emit: types or client")
	o.eph.register(cmd.Flags())
	return cmd
}

func (o *emitOptions) run(cmd *cobra.Command, args []string) error {
	mode, err := emit.ParseMode(o.mode)
	if err != nil {
		return &UsageError{Err: err}
	}
	if len(args) == 0 && !o.eph.requested() {
		return usageErrorf("emit-ts requires a server name or URL")
	}

	ctx := cmd.Context()
	rt, err := session.Runtime(ctx)
	if err != nil {
		return err
	}
	name, err := targetServer(rt, &o.eph, args, session.logger)
	if err != nil {
		return err
	}

	tools, err := rt.ListTools(ctx, name, runtime.ListToolsOptions{AutoAuthorize: true})
	if err != nil {
		return fmt.Errorf("failed to list tools of '%s': %w", name, err)
	}
	src, err := emit.TypeScript(emit.Options{Server: name, Mode: mode, Tools: tools})
	if err != nil {
		return err
	}

	// Write to stdout unless --out is given
	if o.out == "" {
		_, err = fmt.Fprint(cmd.OutOrStdout(), src)
		return err
	}
	if err := os.WriteFile(o.out, []byte(src), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", o.out, err)
	}
	session.logger.Success("Wrote %d tool definitions to %s", len(tools), o.out)
	return nil
}
