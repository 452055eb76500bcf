package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stratlens/stratlens/pkg/client"
)

func newGenerateCmd(opts *Options) *cobra.Command {
	var topic string
	var force bool

	cmd := &cobra.Command{
		Use:   "generate <session-id>",
		Short: "Queue a results generation run for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.Client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()

			ack, err := c.Results().Generate(ctx, args[0], client.GenerateRequest{
				Topic: topic, Force: force,
			})
			if err != nil {
				return err
			}
			if opts.Output == "json" {
				return printJSON(cmd.OutOrStdout(), ack)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "generation %s for session %s\n", ack.Status, ack.SessionID)
			return nil
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "analysis topic (required)")
	cmd.Flags().BoolVar(&force, "force", false, "discard existing results and regenerate")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func newStatusCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show the generation progress of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.Client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()

			status, err := c.Results().Status(ctx, args[0])
			if err != nil {
				return err
			}
			if opts.Output == "json" {
				return printJSON(cmd.OutOrStdout(), status)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "session:   %s\n", status.SessionID)
			fmt.Fprintf(out, "status:    %s\n", status.Status)
			fmt.Fprintf(out, "stage:     %s\n", status.CurrentStage)
			fmt.Fprintf(out, "progress:  %.0f%% (%d/%d segments)\n",
				status.ProgressPercentage, status.CompletedSegments, status.TotalSegments)
			if status.ErrorMessage != "" {
				fmt.Fprintf(out, "error:     %s\n", status.ErrorMessage)
			}
			return nil
		},
	}
}

func newResultsCmd(opts *Options) *cobra.Command {
	var segment string

	cmd := &cobra.Command{
		Use:   "results <session-id>",
		Short: "Fetch the analysis bundles of a completed session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.Client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()

			if segment != "" {
				bundle, err := c.Results().Segment(ctx, args[0], segment)
				if err != nil {
					return err
				}
				if opts.Output == "json" {
					return printJSON(cmd.OutOrStdout(), bundle)
				}
				printBundleSummary(cmd, bundle)
				return nil
			}

			results, err := c.Results().Get(ctx, args[0])
			if err != nil {
				return err
			}
			if opts.Output == "json" {
				return printJSON(cmd.OutOrStdout(), results)
			}
			for i := range results.Segments {
				printBundleSummary(cmd, &results.Segments[i])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&segment, "segment", "", "restrict to one segment (market, consumer, product, brand, experience)")
	return cmd
}

func newClearCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <session-id>",
		Short: "Delete all persisted results of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.Client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()

			if err := c.Results().Clear(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "results cleared for session %s\n", args[0])
			return nil
		},
	}
}

func printBundleSummary(cmd *cobra.Command, bundle *client.SegmentBundle) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d factors, %d patterns, %d scenarios",
		bundle.Segment, len(bundle.Factors), len(bundle.Patterns), len(bundle.Scenarios))
	if len(bundle.Personas) > 0 {
		fmt.Fprintf(out, ", %d personas", len(bundle.Personas))
	}
	fmt.Fprintln(out)
}
