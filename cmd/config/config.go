package config

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/rf2bridge/internal/conf"
)

// Command creates the command that prints the effective settings.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := conf.RedactedYAML(settings)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
