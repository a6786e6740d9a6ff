package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leafscope",
		Short: "Plant disease diagnosis from leaf photos",
		Long: `LeafScope analyzes plant photos through a remote detection service:
it finds individual leaves, segments them, and classifies their diseases.

Run the web dashboard with "leafscope serve", or analyze a single image
from the command line with "leafscope analyze".`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAnalyzeCmd())

	return cmd
}
