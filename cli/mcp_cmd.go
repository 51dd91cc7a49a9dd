package cli

import (
	"github.com/spf13/cobra"

	"github.com/i2y/interpreter/mcp"
)

func newMCPCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve run_code to MCP clients over stdio",
		Long: `Serve run_code over the Model Context Protocol on stdin and stdout.
Code runs without approval; the MCP client is expected to ask the user.
Logs go to stderr or the log file so they never mix with the protocol.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := a.settings
			runner, stop := a.newRunner(nil)
			defer stop()
			server := mcp.NewServer(runner,
				mcp.WithMaxOutputChars(s.MaxOutputChars),
				mcp.WithVersion(version(a.version)),
				mcp.WithServerLogger(a.logger),
			)
			a.logger.Info("serving MCP over stdio")
			return server.Run(cmd.Context())
		},
	}
}
