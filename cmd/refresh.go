// -- cmd/refresh.go --
package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ch-sander/zotero-rdf-server/internal/observability"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one ingestion pass and exit.",
	Long: `Fetches every configured library, rebuilds the graph and exits.
With a directory-backed store the finished pass is persisted as a snapshot,
so a later "serve" with refresh disabled serves exactly this state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		_, orchestrator, cleanup, err := buildComponents(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := orchestrator.RunOnce(ctx); err != nil {
			return err
		}
		observability.GetLogger().Info("Refresh complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
