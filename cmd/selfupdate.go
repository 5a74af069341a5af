package cmd

import (
	"errors"
	"fmt"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

const githubRepoSlug = "giantswarm/mcporter"

// newSelfUpdateCmd creates the self-update command
func newSelfUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self-update",
		Short: "Update mcporter to the latest release",
		Long:  `Download the latest mcporter release from GitHub and replace the running binary.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if version == "" || version == "dev" {
				return errors.New("self-update is not available for development builds")
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			// Find the newest release for this platform
			latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(githubRepoSlug))
			if err != nil {
				return fmt.Errorf("failed to detect latest release: %w", err)
			}
			if !found {
				return fmt.Errorf("no release found for %s", githubRepoSlug)
			}
			if latest.LessOrEqual(version) {
				fmt.Fprintf(out, "mcporter %s is up to date.\n", version)
				return nil
			}

			// Replace the running binary
			exe, err := selfupdate.ExecutablePath()
			if err != nil {
				return fmt.Errorf("failed to locate executable: %w", err)
			}
			session.logger.Info("Downloading %s", latest.AssetURL)
			if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
				return fmt.Errorf("failed to update binary: %w", err)
			}
			fmt.Fprintf(out, "Updated mcporter %s -> %s\n", version, latest.Version())
			return nil
		},
	}
}
