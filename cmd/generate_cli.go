package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcporter/internal/artifact"
)

type generateOptions struct {
	server      string
	name        string
	command     string
	description string
	output      string
	bundle      artifact.Toggle
	compile     artifact.Toggle
	runtime     string
	timeoutMs   int
	minify      bool
	noMinify    bool
	from        string
	dryRun      bool
}

// newGenerateCLICmd creates the generate-cli command
func newGenerateCLICmd() *cobra.Command {
	o := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate-cli",
		Short: "Generate a standalone CLI bound to one server",
		Long: `Generate a Go program that talks to a single MCP server and exposes its tools
as subcommands. The server's tool list and the generation settings are embedded
so the CLI can be inspected with inspect-cli and regenerated with --from.

Artifacts:
  (default)          <name>.go, a single source file
  --bundle[=dir]     a module directory (default <name>-cli) with main.go and go.mod
  --compile[=path]   a compiled binary (default ./<name>)

Settings come from flags first, then the metadata of the --from artifact, then
defaults.`,
		Args: cobra.NoArgs,
		RunE: o.run,
	}
	// Add flags
	f := cmd.Flags()
	f.StringVar(&o.server, "server", "", "Server name, URL, command or JSON definition")
	f.StringVar(&o.name, "name", "", "Name of the server built from --command")
	f.StringVar(&o.command, "command", "", "Command or URL of a server that is not configured")
	f.StringVar(&o.description, "description", "", "Description of the server built from --command")
	f.StringVar(&o.output, "output", "", "Path of the generated source file (default <name>.go)")
	f.Var(&o.bundle, "bundle", "Also write a module directory, optionally at --bundle=<dir>")
	f.Lookup("bundle").NoOptDefVal = "true"
	f.Var(&o.compile, "compile", "Also compile a binary, optionally at --compile=<path>")
	f.Lookup("compile").NoOptDefVal = "true"
	f.StringVar(&o.runtime, "runtime", "", "Toolchain for --bundle/--compile: go or tinygo (default: detected)")
	f.IntVar(&o.timeoutMs, "timeout", artifact.DefaultTimeoutMs, "Timeout in milliseconds for listing the server's tools")
	f.BoolVar(&o.minify, "minify", false, "Strip comments and debug information")
	f.BoolVar(&o.noMinify, "no-minify", false, "Keep comments even if the --from artifact was minified")
	f.StringVar(&o.from, "from", "", "Regenerate from an existing artifact")
	f.BoolVar(&o.dryRun, "dry-run", false, "With --from, print the command that would run and exit")
	// Mark flags as mutually exclusive
	cmd.MarkFlagsMutuallyExclusive("minify", "no-minify")
	return cmd
}

// flags collects what was passed explicitly; unset flags stay nil so
// recorded metadata can fill them in.
func (o *generateOptions) flags(cmd *cobra.Command) (artifact.Flags, error) {
	changed := cmd.Flags().Changed
	f := artifact.Flags{
		Server:      o.server,
		Name:        o.name,
		Command:     o.command,
		Description: o.description,
		Output:      o.output,
		From:        o.from,
		DryRun:      o.dryRun,
	}
	if o.runtime != "" {
		r, err := artifact.ParseRuntime(o.runtime)
		if err != nil {
			return artifact.Flags{}, &UsageError{Err: err}
		}
		f.Runtime = r
	}
	if changed("bundle") {
		b := o.bundle
		f.Bundle = &b
	}
	if changed("compile") {
		c := o.compile
		f.Compile = &c
	}
	if changed("timeout") {
		t := o.timeoutMs
		f.TimeoutMs = &t
	}
	if changed("minify") || changed("no-minify") {
		m := o.minify && !o.noMinify
		f.Minify = &m
	}
	return f, nil
}

func (o *generateOptions) run(cmd *cobra.Command, args []string) error {
	f, err := o.flags(cmd)
	if err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return &UsageError{Err: err}
	}

	g := artifact.Globals{ConfigPath: configPath, RootDir: rootDir}
	out := cmd.OutOrStdout()

	var req artifact.Request
	if f.From != "" {
		// Unreadable metadata fails before anything is resolved or written.
		m, err := artifact.ReadMetadata(f.From)
		if err != nil {
			return err
		}
		req, err = artifact.ResolveFromMetadata(f, g, m)
		if err != nil {
			return err
		}
		if f.DryRun {
			fmt.Fprintln(out, "Dry run, would execute:")
			fmt.Fprintf(out, "  %s\n", artifact.BuildCommand(req.Invocation(), m.Server.Definition, g))
			return nil
		}
	} else {
		req, err = artifact.ResolveRequest(f, g)
		if err != nil {
			return &UsageError{Err: err}
		}
	}

	// Connect with the config the request names
	ctx := cmd.Context()
	rt, err := session.runtimeFor(ctx, req.ConfigPath, req.RootDir)
	if err != nil {
		return err
	}

	gen := &artifact.Generator{
		Introspector: rt,
		Logger:       session.logger,
		Version:      version,
	}
	res, err := gen.Generate(ctx, req)
	if err != nil {
		return err
	}

	// Report what was written
	fmt.Fprintf(out, "Generated CLI for '%s'\n", res.Definition.Name)
	fmt.Fprintf(out, "  source:  %s\n", res.OutputPath)
	if res.BundlePath != "" {
		fmt.Fprintf(out, "  bundle:  %s\n", res.BundlePath)
	}
	if res.CompilePath != "" {
		fmt.Fprintf(out, "  binary:  %s\n", res.CompilePath)
	}
	return nil
}
