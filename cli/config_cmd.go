package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/i2y/interpreter/config"
	"github.com/i2y/interpreter/schema"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View configuration",
		Long: fmt.Sprintf(`Settings are read from %s/config.yaml, then .interpreter.yaml in the
working directory, then INTERPRETER_* environment variables, then flags.
Later sources win.`, config.ConfigDir()),
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the resolved settings with secrets redacted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				out, err := a.settings.YAML()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(out)
				return err
			},
		},
		&cobra.Command{
			Use:   "schema",
			Short: "Print the JSON schema of the config file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				out, err := schema.GenerateIndent[config.Settings]()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			},
		},
	)
	return cmd
}
