package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcporter/internal/artifact"
)

type inspectOptions struct {
	json   bool
	format string
}

// newInspectCLICmd creates the inspect-cli command
func newInspectCLICmd() *cobra.Command {
	o := &inspectOptions{}
	cmd := &cobra.Command{
		Use:   "inspect-cli <artifact>",
		Short: "Show the metadata embedded in a generated CLI",
		Long: `Read the metadata of a CLI produced by generate-cli. The artifact may be the
generated Go file, a bundle directory or a compiled binary.`,
		Args: cobra.ExactArgs(1),
		RunE: o.run,
	}
	// Add flags
	cmd.Flags().BoolVar(&o.json, "json", false, "Print the metadata as JSON")
	cmd.Flags().StringVar(&o.format, "format", "text", "Output format: text or json")
	return cmd
}

func (o *inspectOptions) run(cmd *cobra.Command, args []string) error {
	format := o.format
	if o.json {
		format = "json"
	}
	if format != "text" && format != "json" {
		return usageErrorf("invalid --format %q (expected text or json)", o.format)
	}

	m, err := artifact.ReadMetadata(args[0])
	if err != nil {
		return err
	}
	if format == "json" {
		return writeJSON(cmd.OutOrStdout(), m)
	}
	writeMetadata(cmd.OutOrStdout(), args[0], m)
	return nil
}

// writeMetadata prints the metadata of the artifact at path
func writeMetadata(w io.Writer, path string, m artifact.Metadata) {
	inv := m.Invocation
	fmt.Fprintf(w, "Artifact:   %s (%s)\n", m.Artifact.Path, m.Artifact.Kind)
	fmt.Fprintf(w, "Server:     %s\n", m.Server.Name)
	if m.Server.Source != nil {
		source := string(m.Server.Source.Kind)
		if m.Server.Source.Path != "" {
			source += " " + m.Server.Source.Path
		}
		fmt.Fprintf(w, "Source:     %s\n", source)
	}
	if m.Server.Definition.Command != nil {
		fmt.Fprintf(w, "Transport:  %s\n", fmtServerKind(m.Server.Definition))
	}
	fmt.Fprintf(w, "Generated:  %s by %s %s\n", m.GeneratedAt.Format(time.RFC3339), m.Generator.Name, m.Generator.Version)
	fmt.Fprintln(w, "Invocation:")
	if inv.ServerRef != "" {
		fmt.Fprintf(w, "  serverRef:  %s\n", inv.ServerRef)
	}
	if inv.ConfigPath != "" {
		fmt.Fprintf(w, "  config:     %s\n", inv.ConfigPath)
	}
	if inv.RootDir != "" {
		fmt.Fprintf(w, "  root:       %s\n", inv.RootDir)
	}
	if inv.OutputPath != "" {
		fmt.Fprintf(w, "  output:     %s\n", inv.OutputPath)
	}
	if inv.Runtime != "" {
		fmt.Fprintf(w, "  runtime:    %s\n", inv.Runtime)
	}
	fmt.Fprintf(w, "  bundle:     %s\n", inv.Bundle.String())
	fmt.Fprintf(w, "  compile:    %s\n", inv.Compile.String())
	fmt.Fprintf(w, "  timeoutMs:  %d\n", inv.TimeoutMs)
	fmt.Fprintf(w, "  minify:     %t\n", inv.Minify)
	fmt.Fprintln(w)
	// Regenerating from the artifact itself, then the command it stands for
	fmt.Fprintln(w, "Regenerate with:")
	fmt.Fprintf(w, "  mcporter generate-cli --from %s\n", artifact.ShellQuote(path))
	fmt.Fprintln(w, "Underlying generate-cli command:")
	fmt.Fprintf(w, "  %s\n", artifact.BuildCommand(inv, m.Server.Definition, artifact.Globals{}))
}
