package main

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Addr       string // control API of a running instance
}

// NewRootCommand creates the photobooth command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "photobooth",
		Short: "Watch a folder, frame new photos with a template and print them",
		Long: `photobooth watches a folder for new photos. Once a photo has stopped
changing it is composited with an overlay template, saved to the output
folder with a timestamped name and optionally sent to a printer.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.Addr, "addr", "http://localhost:8090", "control API of a running photobooth")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewPrintersCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewReprocessCommand(opts))
	cmd.AddCommand(NewTemplateCommand(opts))

	return cmd
}
