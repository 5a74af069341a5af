package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcporter/internal/runtime"
)

type authOptions struct {
	reset bool
	eph   ephemeralFlags
}

// newAuthCmd creates the auth command
func newAuthCmd() *cobra.Command {
	o := &authOptions{}
	cmd := &cobra.Command{
		Use:   "auth <server|url>",
		Short: "Authorize a server with the OAuth browser flow",
		Long: `Connect to a server and complete its OAuth authorization in the browser.
Tokens are cached in the server's token directory (default ~/.mcporter/<name>).

The first attempt reuses cached credentials. If the server rejects them the
flow runs once more; a second rejection is reported as a failure.`,
		Args: cobra.MaximumNArgs(1),
		RunE: o.run,
	}
	// Add flags
	cmd.Flags().BoolVar(&o.reset, "reset", false, "Delete cached credentials before authorizing")
	o.eph.register(cmd.Flags())
	return cmd
}

func (o *authOptions) run(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !o.eph.requested() {
		return usageErrorf("auth requires a server name or URL")
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

	// Run the browser flow, retrying once with fresh credentials
	res, err := rt.Authorize(ctx, name, runtime.AuthorizeOptions{Reset: o.reset})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Authorized '%s' (%d tools available).\n", res.Server, res.ToolCount)
	return nil
}
