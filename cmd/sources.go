package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/forumwatch/internal/pipeline"
)

func newSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage monitored communities",
	}

	var platformName, rawURL, note string
	add := &cobra.Command{
		Use:   "add <host>",
		Short: "Add a community by hand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			src, err := pipeline.AddSource(cmd.Context(), a.Store(), args[0], rawURL, platformName, note)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), src)
		},
	}
	add.Flags().StringVar(&platformName, "platform", "", "forum software (detected when empty)")
	add.Flags().StringVar(&rawURL, "url", "", "example page used for platform detection")
	add.Flags().StringVar(&note, "note", "", "free-form note")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the sources the next scan will poll",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			sources, err := a.Store().ListScanSources(cmd.Context(), 0)
			if err != nil {
				return fmt.Errorf("list sources: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), sources)
		},
	}

	cmd.AddCommand(
		add,
		list,
		toggleCmd("pause", "Keep a source enabled but skip it during scans", func(ctx context.Context, s sourceToggler, host string) error {
			return s.SetSourcePaused(ctx, host, true)
		}),
		toggleCmd("resume", "Resume scanning a paused source", func(ctx context.Context, s sourceToggler, host string) error {
			return s.SetSourcePaused(ctx, host, false)
		}),
		toggleCmd("enable", "Enable a source", func(ctx context.Context, s sourceToggler, host string) error {
			return s.SetSourceEnabled(ctx, host, true)
		}),
		toggleCmd("disable", "Disable a source", func(ctx context.Context, s sourceToggler, host string) error {
			return s.SetSourceEnabled(ctx, host, false)
		}),
	)
	return cmd
}

type sourceToggler interface {
	SetSourcePaused(ctx context.Context, host string, paused bool) error
	SetSourceEnabled(ctx context.Context, host string, enabled bool) error
}

func toggleCmd(use, short string, apply func(context.Context, sourceToggler, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <host>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := apply(cmd.Context(), a.Store(), args[0]); err != nil {
				return fmt.Errorf("%s %s: %w", use, args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], use)
			return nil
		},
	}
}
