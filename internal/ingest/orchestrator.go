// Package ingest drives the refresh cycle: build a fresh store, import the
// schema ontology, ingest every configured library, then atomically swap the
// active store reference. Failures are contained per library so one broken
// source never aborts a cycle.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
	"github.com/ch-sander/zotero-rdf-server/internal/config"
	"github.com/ch-sander/zotero-rdf-server/internal/identity"
	"github.com/ch-sander/zotero-rdf-server/internal/mapper"
	"github.com/ch-sander/zotero-rdf-server/internal/notes"
	"github.com/ch-sander/zotero-rdf-server/internal/observability"
	"github.com/ch-sander/zotero-rdf-server/internal/rdfio"
	"github.com/ch-sander/zotero-rdf-server/internal/schema"
	"github.com/ch-sander/zotero-rdf-server/internal/store"
	"github.com/ch-sander/zotero-rdf-server/internal/zotero"
)

// minRefreshInterval is the smallest valid periodic refresh, in seconds.
const minRefreshInterval = 30

// LibrarySource supplies a library's records and its serialized RDF export.
type LibrarySource interface {
	schemas.RecordSource
	FetchRDFExport(ctx context.Context) ([]byte, error)
}

// StoreFactory builds the fresh store a refresh pass writes into.
type StoreFactory func(ctx context.Context) (schemas.QuadStore, error)

// SourceFactory builds the record source for one library.
type SourceFactory func(lib config.LibraryConfig) LibrarySource

// Orchestrator owns the refresh cycle and is the sole writer of the store
// provider.
type Orchestrator struct {
	cfg        config.Interface
	provider   *store.Provider
	stores     StoreFactory
	sources    SourceFactory
	notes      *notes.Service
	httpClient *http.Client
	log        *zap.Logger
}

// New wires an orchestrator. A nil store factory defaults to fresh memory
// stores; a nil source factory defaults to the Zotero API client.
func New(cfg config.Interface, provider *store.Provider, stores StoreFactory, sources SourceFactory) *Orchestrator {
	log := observability.GetLogger().Named("ingest")
	if stores == nil {
		stores = func(context.Context) (schemas.QuadStore, error) {
			return store.NewMemoryStore(log), nil
		}
	}
	if sources == nil {
		sources = func(lib config.LibraryConfig) LibrarySource {
			return zotero.NewClient(cfg.Zotero(), lib)
		}
	}
	return &Orchestrator{
		cfg:        cfg,
		provider:   provider,
		stores:     stores,
		sources:    sources,
		notes:      notes.NewService(identity.NewResolver(log)),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

// Run executes the refresh schedule until the context is canceled. Intervals
// of minRefreshInterval seconds or more loop; zero runs exactly one pass;
// negative disables ingestion and serves the last on-disk snapshot; values
// between 1 and 29 are a configuration defect and treated as disabled.
func (o *Orchestrator) Run(ctx context.Context) error {
	interval := o.cfg.Server().RefreshInterval
	switch {
	case interval < 0:
		o.log.Info("Refresh disabled, serving stored data", zap.Int("interval", interval))
		return o.loadSnapshot(ctx)
	case interval == 0:
		o.log.Info("Single ingestion pass requested")
		return o.RunOnce(ctx)
	case interval < minRefreshInterval:
		o.log.Warn("Refresh interval below minimum, refresh disabled",
			zap.Int("interval", interval),
			zap.Int("minimum", minRefreshInterval))
		return o.loadSnapshot(ctx)
	}

	for {
		if err := o.RunOnce(ctx); err != nil {
			o.log.Error("Refresh cycle failed", zap.Error(err))
		}
		o.log.Info("Next refresh scheduled", zap.Int("seconds", interval))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(interval) * time.Second):
		}
	}
}

// RunOnce performs one full refresh pass: build a new store, load the schema
// and every library into it, swap it in, and persist a snapshot in directory
// mode. Manual reloads call this directly.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	started := time.Now()
	st, err := o.stores(ctx)
	if err != nil {
		return fmt.Errorf("failed to create store for refresh: %w", err)
	}

	o.importSchema(ctx, st)

	for _, lib := range o.cfg.Libraries() {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.ingestLibrary(ctx, st, lib)
	}

	o.provider.Swap(st)

	total, err := st.Len(ctx)
	if err == nil {
		graphs, _ := st.GraphNames(ctx)
		o.log.Info("Refresh completed",
			zap.Int("quads", total),
			zap.Int("graphs", len(graphs)),
			zap.Duration("took", time.Since(started)))
	}

	if dir := o.snapshotDir(); dir != "" {
		if err := o.persistSnapshot(ctx, st, dir); err != nil {
			o.log.Error("Failed to persist store snapshot", zap.Error(err))
		}
	}
	return nil
}

// importSchema loads the ontology when a schema URL is configured. Failure
// is logged and never blocks library ingestion.
func (o *Orchestrator) importSchema(ctx context.Context, st schemas.QuadStore) {
	url := o.cfg.Server().SchemaURL
	if url == "" {
		return
	}
	doc, err := schema.Fetch(ctx, o.httpClient, url)
	if err != nil {
		o.log.Error("Schema could not be loaded", zap.String("url", url), zap.Error(err))
		return
	}
	if err := schema.NewImporter(st).Import(ctx, doc, config.ZoteroNS); err != nil {
		o.log.Error("Schema import failed", zap.Error(err))
	}
}

// ingestLibrary dispatches one library by load mode. Errors are contained:
// they are logged and the cycle moves on to the next library.
func (o *Orchestrator) ingestLibrary(ctx context.Context, st schemas.QuadStore, lib config.LibraryConfig) {
	for _, problem := range lib.Problems() {
		o.log.Warn("Library configuration defect",
			zap.String("library", lib.Name),
			zap.String("problem", problem))
	}

	var err error
	switch lib.LoadMode {
	case "json":
		err = o.ingestRecords(ctx, st, lib)
	case "rdf":
		err = o.ingestRDFExport(ctx, st, lib)
	case "manual_import":
		err = o.ingestFromDisk(ctx, st, lib)
	default:
		o.log.Warn("Unknown load mode, skipping library",
			zap.String("library", lib.Name),
			zap.String("load_mode", lib.LoadMode))
		return
	}
	if err != nil {
		o.log.Error("Library ingestion failed",
			zap.String("library", lib.Name),
			zap.String("load_mode", lib.LoadMode),
			zap.Error(err))
		return
	}

	if lib.Notes.Mode == "auto" {
		if _, err := o.notes.ParseAll(ctx, st, lib); err != nil {
			o.log.Error("Note parsing failed", zap.String("library", lib.Name), zap.Error(err))
		}
	}
}

// ingestRecords fetches items and collections concurrently, then maps them
// sequentially so entity lookups always observe prior writes.
func (o *Orchestrator) ingestRecords(ctx context.Context, st schemas.QuadStore, lib config.LibraryConfig) error {
	source := o.sources(lib)

	var items, collections []schemas.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = source.Items(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		collections, err = source.Collections(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to fetch records: %w", err)
	}

	o.log.Info("Fetched records",
		zap.String("library", lib.Name),
		zap.Int("items", len(items)),
		zap.Int("collections", len(collections)))
	return o.buildGraph(ctx, st, lib, items, collections)
}

// buildGraph maps fetched records into the library's assertion graph.
func (o *Orchestrator) buildGraph(ctx context.Context, st schemas.QuadStore, lib config.LibraryConfig, items, collections []schemas.Record) error {
	m := mapper.New(st, identity.NewResolver(o.log), o.log)
	graph := schemas.SafeIRI(strings.TrimRight(lib.BaseURL, "/#"), true)
	target := &mapper.Target{
		Graph:   graph,
		KBGraph: schemas.SafeIRI(strings.TrimRight(lib.KnowledgeBaseGraph, "/#"), true),
		BaseURL: strings.TrimRight(lib.BaseURL, "/#"),
		Mapping: lib.Mapping,
	}

	libraryNode := o.assertLibraryNode(ctx, st, m, target, lib, firstRecord(items, collections))

	for _, col := range collections {
		if err := ctx.Err(); err != nil {
			return err
		}
		node := mapper.CollectionNode(target.BaseURL, col)
		o.linkLibrary(ctx, st, target, node, libraryNode, lib)
		data := col.Data()
		target.LanguageHint = ""
		if err := m.ApplyTypes(ctx, collectionTarget(target), node, data); err != nil {
			return err
		}
		if err := m.ApplyAdditionalProperties(ctx, target, node, data); err != nil {
			return err
		}
		if err := m.MapRecord(ctx, target, node, data); err != nil {
			o.log.Error("Skipping malformed collection", zap.String("node", node.Value), zap.Error(err))
			continue
		}
		o.timestamp(ctx, st, node, graph)
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		node := mapper.ItemNode(target.BaseURL, item)
		o.linkLibrary(ctx, st, target, node, libraryNode, lib)
		data := item.Data()
		target.LanguageHint = mapper.LanguageHint(lib.Mapping, item)

		if label := mapper.ItemLabel(item); label != "" {
			if _, err := st.Add(ctx, schemas.Quad{
				Subject:   node,
				Predicate: schemas.IRI(schemas.RDFSLabel),
				Object:    schemas.Literal(label),
				Graph:     graph,
			}); err != nil {
				return err
			}
		}
		if err := m.ApplyTypes(ctx, target, node, data); err != nil {
			return err
		}
		if err := m.ApplyAdditionalProperties(ctx, target, node, data); err != nil {
			return err
		}
		if err := m.MapRecord(ctx, target, node, data); err != nil {
			o.log.Error("Skipping malformed item", zap.String("node", node.Value), zap.Error(err))
			continue
		}
		o.timestamp(ctx, st, node, graph)
	}
	return nil
}

// assertLibraryNode types and maps the library metadata node when the
// mapping opts in via named_library. Returns the zero term when disabled.
func (o *Orchestrator) assertLibraryNode(ctx context.Context, st schemas.QuadStore, m *mapper.Mapper, target *mapper.Target, lib config.LibraryConfig, sample schemas.Record) schemas.Term {
	if lib.Mapping.NamedLibrary == "" || sample == nil {
		return schemas.Term{}
	}
	meta, ok := sample["library"].(map[string]any)
	if !ok {
		return schemas.Term{}
	}
	href := libraryHref(meta)
	if href == "" {
		href = target.BaseURL
	}
	node := schemas.SafeIRI(href, true)
	if _, err := st.Add(ctx, schemas.Quad{
		Subject:   node,
		Predicate: schemas.IRI(schemas.RDFType),
		Object:    schemas.SafeIRI(lib.Mapping.Namespace+"library", true),
		Graph:     target.Graph,
	}); err != nil {
		o.log.Error("Failed to assert library node", zap.Error(err))
		return schemas.Term{}
	}
	if err := m.ApplyAdditionalProperties(ctx, target, node, meta); err != nil {
		o.log.Error("Failed to map library properties", zap.Error(err))
	}
	if err := m.MapRecord(ctx, target, node, meta); err != nil {
		o.log.Error("Failed to map library metadata", zap.Error(err))
	}
	return node
}

// linkLibrary points a record node at the library node.
func (o *Orchestrator) linkLibrary(ctx context.Context, st schemas.QuadStore, target *mapper.Target, node, libraryNode schemas.Term, lib config.LibraryConfig) {
	if libraryNode.IsZero() {
		return
	}
	prop := lib.Mapping.NamedLibrary
	pred := schemas.SafeIRI(lib.Mapping.Namespace+prop, true)
	if strings.HasPrefix(prop, "http") {
		pred = schemas.SafeIRI(prop, true)
	}
	if _, err := st.Add(ctx, schemas.Quad{
		Subject: node, Predicate: pred, Object: libraryNode, Graph: target.Graph,
	}); err != nil {
		o.log.Error("Failed to link library", zap.Error(err))
	}
}

// timestamp marks a node with the generation time of this pass.
func (o *Orchestrator) timestamp(ctx context.Context, st schemas.QuadStore, node, graph schemas.Term) {
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := st.Add(ctx, schemas.Quad{
		Subject:   node,
		Predicate: schemas.IRI(schemas.PROVGeneratedAtTime),
		Object:    schemas.TypedLiteral(now, schemas.XSDDateTime),
		Graph:     graph,
	}); err != nil {
		o.log.Error("Failed to timestamp node", zap.Error(err))
	}
}

// ingestRDFExport downloads the library's serialized export, spools it to a
// temporary file and bulk-loads it into the assertion graph. The temporary
// file is removed even when loading fails.
func (o *Orchestrator) ingestRDFExport(ctx context.Context, st schemas.QuadStore, lib config.LibraryConfig) error {
	data, err := o.sources(lib).FetchRDFExport(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch RDF export: %w", err)
	}

	tmp, err := os.CreateTemp("", "zotero-export-*.rdf")
	if err != nil {
		return fmt.Errorf("failed to create temporary export file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to spool RDF export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary export file: %w", err)
	}

	return o.loadRDFFile(ctx, st, lib, tmp.Name(), rdfio.FormatRDFXML)
}

// ingestFromDisk scans the library's import directory and loads every file
// with a recognized extension. JSON files go through record classification
// and the regular mapping path.
func (o *Orchestrator) ingestFromDisk(ctx context.Context, st schemas.QuadStore, lib config.LibraryConfig) error {
	dir := lib.ManualImportDir
	if dir == "" {
		return fmt.Errorf("manual_import requires manual_import_dir")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read import directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		format, ok := rdfio.DetectFormat(path)
		if !ok {
			o.log.Info("Skipping unsupported file", zap.String("file", entry.Name()))
			continue
		}
		if format == rdfio.FormatJSON {
			if err := o.ingestJSONFile(ctx, st, lib, path); err != nil {
				o.log.Error("Failed to import JSON file",
					zap.String("file", entry.Name()), zap.Error(err))
			}
			continue
		}
		if err := o.loadRDFFile(ctx, st, lib, path, format); err != nil {
			o.log.Error("Failed to import RDF file",
				zap.String("file", entry.Name()), zap.Error(err))
		}
	}
	return nil
}

func (o *Orchestrator) ingestJSONFile(ctx context.Context, st schemas.QuadStore, lib config.LibraryConfig, path string) error {
	records, err := zotero.LoadRecords(path)
	if err != nil {
		return err
	}
	kind, err := zotero.Classify(records)
	if err != nil {
		return fmt.Errorf("cannot classify %s: %w", path, err)
	}
	if kind == zotero.KindItems {
		return o.buildGraph(ctx, st, lib, records, nil)
	}
	return o.buildGraph(ctx, st, lib, nil, records)
}

func (o *Orchestrator) loadRDFFile(ctx context.Context, st schemas.QuadStore, lib config.LibraryConfig, path string, format rdfio.Format) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	base := strings.TrimRight(lib.BaseURL, "/#")
	graph := schemas.SafeIRI(base, true)
	quads, err := rdfio.Decode(bytes.NewReader(data), format, graph, base+"/items/")
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	for _, q := range quads {
		if _, err := st.Add(ctx, q); err != nil {
			return fmt.Errorf("failed to store imported statements: %w", err)
		}
	}
	o.log.Info("Imported serialized RDF",
		zap.String("library", lib.Name),
		zap.String("file", filepath.Base(path)),
		zap.Int("quads", len(quads)))
	return nil
}

func firstRecord(items, collections []schemas.Record) schemas.Record {
	if len(items) > 0 {
		return items[0]
	}
	if len(collections) > 0 {
		return collections[0]
	}
	return nil
}

// libraryHref digs the library's public link out of the record metadata.
func libraryHref(meta map[string]any) string {
	links, _ := meta["links"].(map[string]any)
	alternate, _ := links["alternate"].(map[string]any)
	href, _ := alternate["href"].(string)
	return href
}

// collectionTarget returns a target whose type fields and default type are
// the collection variants.
func collectionTarget(t *mapper.Target) *mapper.Target {
	ct := *t
	ct.Mapping.TypeFields = nil
	ct.Mapping.DefaultType = "collection"
	return &ct
}
