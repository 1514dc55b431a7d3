package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "export",
		Short:   "Write the registry catalog as versioned JSON",
		PreRunE: bindFlags,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()
			return writeExport(cmd, a, viper.GetString("output"), viper.GetBool("active-only"))
		},
	}

	cmd.Flags().String("output", defaultExportPath, "export file path, - for stdout")
	cmd.Flags().Bool("active-only", false, "include only active assets")

	return cmd
}
