package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
	"github.com/ch-sander/zotero-rdf-server/internal/rdfio"
)

// snapshotFile is the on-disk image of the store in directory mode.
const snapshotFile = "store.nq"

// snapshotDir returns the snapshot directory, or empty when the store mode
// does not persist to disk.
func (o *Orchestrator) snapshotDir() string {
	sc := o.cfg.Store()
	if sc.Mode != "directory" {
		return ""
	}
	return sc.Directory
}

// persistSnapshot serializes the whole store as N-Quads. The file is written
// next to its final name and renamed into place so readers never observe a
// torn snapshot.
func (o *Orchestrator) persistSnapshot(ctx context.Context, st schemas.QuadStore, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	quads, err := st.Match(ctx, nil, nil, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to read store for snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(dir, snapshotFile+".*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	if err := rdfio.WriteNQuads(tmp, quads); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}

	final := filepath.Join(dir, snapshotFile)
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	o.log.Info("Snapshot persisted", zap.String("path", final), zap.Int("quads", len(quads)))
	return nil
}

// loadSnapshot restores the last persisted snapshot into a fresh store and
// swaps it in. Used when refresh is disabled: the service serves whatever
// the previous run left on disk.
func (o *Orchestrator) loadSnapshot(ctx context.Context) error {
	dir := o.snapshotDir()
	if dir == "" {
		o.log.Warn("Refresh disabled and store is not directory-backed; serving an empty store")
		return nil
	}
	path := filepath.Join(dir, snapshotFile)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		o.log.Warn("No snapshot found", zap.String("path", path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	quads, err := rdfio.Decode(f, rdfio.FormatNQuads, schemas.Term{}, "")
	if err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	st, err := o.stores(ctx)
	if err != nil {
		return fmt.Errorf("failed to create store for snapshot: %w", err)
	}
	for _, q := range quads {
		if _, err := st.Add(ctx, q); err != nil {
			return fmt.Errorf("failed to restore snapshot: %w", err)
		}
	}
	o.provider.Swap(st)
	o.log.Info("Snapshot restored", zap.String("path", path), zap.Int("quads", len(quads)))
	return nil
}
