// Package cli implements the procwatch command line interface.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/marcobitx/procwatch/internal/api"
)

var rootCmd = &cobra.Command{
	Use:   "procwatch",
	Short: "Terminal client for the procurement document-analysis service",
	Long: `procwatch uploads procurement documents to the analysis backend,
follows the multi-phase analysis live in the terminal, and fetches the
finished reports.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("server", "s", "",
		"backend base URL (default $PROCWATCH_SERVER or "+api.DefaultServer+")")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newClient builds a backend client from the --server flag, falling back to
// the environment and then the default address.
func newClient(cmd *cobra.Command) *api.Client {
	server, _ := cmd.Flags().GetString("server")
	if server == "" {
		server = os.Getenv("PROCWATCH_SERVER")
	}
	if server == "" {
		server = api.DefaultServer
	}
	return api.New(server)
}
