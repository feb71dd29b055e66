package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-photo-pipeline/internal/compositor"
	"github.com/tendant/simple-photo-pipeline/internal/config"
)

// NewTemplateCommand creates the template command.
func NewTemplateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "template [path]",
		Short: "Write a sample overlay template",
		Long: `Write a transparent PNG with a golden border frame and watermark text.
Without a path the configured template_path is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Default().TemplatePath
			if len(args) == 1 {
				path = args[0]
			} else if rootOpts.ConfigPath != "" {
				cfg, err := config.Load(rootOpts.ConfigPath)
				if err != nil {
					return err
				}
				path = cfg.TemplatePath
			}

			if err := createTemplate(path); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sample template created: %s\n", path)
			fmt.Fprintf(out, "Template size: %dx%d pixels\n", compositor.SampleWidth, compositor.SampleHeight)
			fmt.Fprintln(out, "You can replace this with your own template image.")
			return nil
		},
	}
}
