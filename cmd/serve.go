// -- cmd/serve.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
	"github.com/ch-sander/zotero-rdf-server/internal/httpapi"
	"github.com/ch-sander/zotero-rdf-server/internal/identity"
	"github.com/ch-sander/zotero-rdf-server/internal/ingest"
	"github.com/ch-sander/zotero-rdf-server/internal/notes"
	"github.com/ch-sander/zotero-rdf-server/internal/observability"
	"github.com/ch-sander/zotero-rdf-server/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion schedule and the admin API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		provider, orchestrator, cleanup, err := buildComponents(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		log := observability.GetLogger()
		api := httpapi.NewServer(appConfig, provider, orchestrator,
			notes.NewService(identity.NewResolver(log)))

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return orchestrator.Run(ctx) })
		g.Go(func() error { return api.Run(ctx) })

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		log.Info("Shutdown complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// buildComponents wires the store provider and the ingestion orchestrator for
// the configured store mode. The returned cleanup releases the database pool
// when one was opened.
func buildComponents(ctx context.Context) (*store.Provider, *ingest.Orchestrator, func(), error) {
	log := observability.GetLogger()
	cleanup := func() {}

	var factory ingest.StoreFactory
	switch mode := appConfig.Store().Mode; mode {
	case "memory", "directory":
		// Directory mode persists each finished pass as an N-Quads snapshot;
		// the working store is still in memory.
		factory = func(context.Context) (schemas.QuadStore, error) {
			return store.NewMemoryStore(log), nil
		}
	case "postgres":
		pool, err := pgxpool.New(ctx, appConfig.Store().Postgres.DSN())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open database pool: %w", err)
		}
		cleanup = pool.Close
		// The table outlives the process. Each pass starts from a cleared
		// table so removed upstream records do not linger.
		factory = func(ctx context.Context) (schemas.QuadStore, error) {
			st, err := store.NewPostgresStore(ctx, pool, log)
			if err != nil {
				return nil, err
			}
			if err := st.Clear(ctx, nil); err != nil {
				return nil, err
			}
			return st, nil
		}
	default:
		return nil, nil, nil, fmt.Errorf("unsupported store mode %q", mode)
	}

	initial, err := factory(ctx)
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("failed to create initial store: %w", err)
	}
	provider := store.NewProvider(initial)
	orchestrator := ingest.New(appConfig, provider, factory, nil)
	log.Info("Store backend ready", zap.String("mode", appConfig.Store().Mode))
	return provider, orchestrator, cleanup, nil
}
