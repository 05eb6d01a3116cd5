package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/forumwatch/internal/pipeline"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run discovery, verification and scan once and print the summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), a.Pipeline().Run(cmd.Context()))
		},
	}
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan monitored sources once and print the summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), a.Pipeline().Scan(cmd.Context()))
		},
	}
}

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Ask the completion API for new candidate communities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res, err := a.Pipeline().Discover(cmd.Context())
			if err != nil {
				return fmt.Errorf("discover: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify pending candidates and promote fresh ones to sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res, err := a.Pipeline().Verify(cmd.Context())
			if err != nil {
				return fmt.Errorf("verify: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}

// printSummary writes the summary and turns a failed run into a non-zero exit. A busy guard is
// not a failure.
func printSummary(w io.Writer, summary pipeline.Summary) error {
	if err := writeJSON(w, summary); err != nil {
		return err
	}
	if summary.OK || summary.Error == "busy" {
		return nil
	}
	return errors.New(summary.Error)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
