package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-photo-pipeline/internal/printing"
	"github.com/tendant/simple-photo-pipeline/pkg/pipeline"
)

// NewPrintersCommand creates the printers command.
func NewPrintersCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "printers",
		Short: "List printer destinations known to the local spooler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			var spooler printing.Spooler
			if cups := printing.NewCUPSSpooler(); cups.Available() {
				spooler = cups
			}
			d := printing.NewDispatcher(spooler)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, pipeline.DefaultDestinationLabel)
			for _, name := range d.ListDestinations(ctx) {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
}
