package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-photo-pipeline/pkg/client"
	"github.com/tendant/simple-photo-pipeline/pkg/pipeline"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var events int
	var follow bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running photobooth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			c := client.New(rootOpts.Addr)

			status, err := c.Status(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "State:        %s\n", status.State)
			fmt.Fprintf(out, "Watch folder: %s\n", status.Settings.WatchFolder)
			fmt.Fprintf(out, "Template:     %s (%s, %d%%)\n", status.Settings.TemplatePath, status.Settings.Position, status.Settings.Opacity)
			fmt.Fprintf(out, "Output:       %s\n", status.Settings.OutputFolder)
			if status.Settings.PrintEnabled {
				fmt.Fprintf(out, "Printing:     %s x%d\n", status.Settings.PrinterName, status.Settings.Copies)
			} else {
				fmt.Fprintln(out, "Printing:     disabled")
			}
			fmt.Fprintf(out, "Queue:        %d waiting, %d settling\n", status.QueueDepth, len(status.Settling))
			for _, p := range status.Recent {
				mark := "✓"
				if !p.Success {
					mark = "✗"
				}
				fmt.Fprintf(out, "  %s %s %s\n", mark, p.Timestamp.Local().Format(time.TimeOnly), filepath.Base(p.SourcePath))
			}

			since := status.LastEvent - int64(events)
			if since < 0 {
				since = 0
			}
			if events == 0 && !follow {
				return nil
			}
			return printEvents(ctx, c, since, follow, func(e pipeline.StatusEvent) {
				fmt.Fprintf(out, "%s %s\n", e.Timestamp.Local().Format(time.TimeOnly), e.Message)
			})
		},
	}

	cmd.Flags().IntVarP(&events, "events", "n", 10, "number of recent status lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new status lines")

	return cmd
}

func printEvents(ctx context.Context, c *client.Client, since int64, follow bool, emit func(pipeline.StatusEvent)) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		events, err := c.Events(ctx, since)
		if err != nil {
			return err
		}
		for _, e := range events {
			emit(e)
			since = e.Seq
		}
		if !follow {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// NewReprocessCommand creates the reprocess command.
func NewReprocessCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess <photo>",
		Short: "Process a photo in the watch folder again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.New(rootOpts.Addr).Reprocess(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued for reprocessing: %s\n", args[0])
			return nil
		},
	}
}
