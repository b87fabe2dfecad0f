// Package httpapi exposes the admin surface: export, backup, manual reload,
// graph and library listings, and note parsing. Responses are JSON; errors
// are {"error": ...} with an appropriate status code.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
	"github.com/ch-sander/zotero-rdf-server/internal/config"
	"github.com/ch-sander/zotero-rdf-server/internal/notes"
	"github.com/ch-sander/zotero-rdf-server/internal/observability"
	"github.com/ch-sander/zotero-rdf-server/internal/rdfio"
	"github.com/ch-sander/zotero-rdf-server/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Reloader triggers one full ingestion pass on demand.
type Reloader interface {
	RunOnce(ctx context.Context) error
}

// Server handles the admin endpoints.
type Server struct {
	cfg      config.Interface
	provider *store.Provider
	reloader Reloader
	notes    *notes.Service
	log      *zap.Logger
}

func NewServer(cfg config.Interface, provider *store.Provider, reloader Reloader, notesSvc *notes.Service) *Server {
	return &Server{
		cfg:      cfg,
		provider: provider,
		reloader: reloader,
		notes:    notesSvc,
		log:      observability.GetLogger().Named("httpapi"),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /export", s.handleExport)
	mux.HandleFunc("GET /backup", s.handleBackup)
	mux.HandleFunc("GET /reload", s.handleReload)
	mux.HandleFunc("GET /graphs", s.handleGraphs)
	mux.HandleFunc("GET /libs", s.handleLibs)
	mux.HandleFunc("GET /parse_notes", s.handleParseNotes)
	return mux
}

// Run serves the admin surface until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	sc := s.cfg.Server()
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", sc.Host, sc.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Admin API listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down admin API: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("admin API failed: %w", err)
	}
}

// handleExport serializes the store, or one named graph, to the export
// directory. Formats: nq (default, keeps graph names) and nt.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	st := s.provider.Get()
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "nq"
	}
	if format != "nq" && format != "nt" {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported export format %q", format))
		return
	}

	graph, ok, err := s.graphParam(r, st)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unknown graph IRI; see /graphs")
		return
	}

	quads, err := st.Match(r.Context(), nil, nil, nil, graph)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	dir := s.cfg.Server().ExportDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	name := "store"
	if graph != nil {
		name = iriToFilename(graph.Value)
	}
	path := filepath.Join(dir, name+"."+format)
	f, err := os.Create(path)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()

	if format == "nt" {
		err = rdfio.WriteNTriples(f, quads)
	} else {
		err = rdfio.WriteNQuads(f, quads)
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info("Export written", zap.String("path", path), zap.Int("quads", len(quads)))
	s.writeJSON(w, http.StatusOK, map[string]any{"success": "Export to: " + path})
}

// handleBackup snapshots the whole store into the backup directory.
func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	st := s.provider.Get()
	quads, err := st.Match(r.Context(), nil, nil, nil, nil)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	dir := s.cfg.Server().BackupDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	path := filepath.Join(dir, "store.nq")
	f, err := os.Create(path)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()
	if err := rdfio.WriteNQuads(f, quads); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logLine := fmt.Sprintf("[%s] Created new backup in %s\n", time.Now().Format(time.RFC3339), path)
	logPath := filepath.Join(dir, "backup.log")
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err == nil {
		logFile.WriteString(logLine)
		logFile.Close()
	}

	graphs, err := st.GraphNames(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"backup": map[string]any{
			"path":         path,
			"named_graphs": graphValues(graphs),
			"len":          len(quads),
		},
	})
}

// handleReload triggers one ingestion pass regardless of the refresh
// schedule.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.reloader.RunOnce(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.storeSummary(w, r, "success")
}

func (s *Server) handleGraphs(w http.ResponseWriter, r *http.Request) {
	s.storeSummary(w, r, "success")
}

// handleLibs lists the configured libraries. Credentials stay private.
func (s *Server) handleLibs(w http.ResponseWriter, r *http.Request) {
	type libView struct {
		Name               string `json:"name"`
		LibraryID          string `json:"library_id"`
		LibraryType        string `json:"library_type"`
		LoadMode           string `json:"load_mode"`
		BaseURL            string `json:"base_url"`
		KnowledgeBaseGraph string `json:"knowledge_base_graph"`
		NotesMode          string `json:"notes_mode"`
	}
	var out []libView
	for _, lib := range s.cfg.Libraries() {
		out = append(out, libView{
			Name:               lib.Name,
			LibraryID:          lib.LibraryID,
			LibraryType:        lib.LibraryType,
			LoadMode:           lib.LoadMode,
			BaseURL:            lib.BaseURL,
			KnowledgeBaseGraph: lib.KnowledgeBaseGraph,
			NotesMode:          lib.Notes.Mode,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": out})
}

// handleParseNotes runs note extraction for every library, or only the one
// whose assertion graph is given.
func (s *Server) handleParseNotes(w http.ResponseWriter, r *http.Request) {
	st := s.provider.Get()
	graphFilter := strings.Trim(strings.TrimSpace(r.URL.Query().Get("graph")), "<>")

	total := 0
	matched := false
	for _, lib := range s.cfg.Libraries() {
		base := strings.TrimRight(lib.BaseURL, "/#")
		if graphFilter != "" && graphFilter != base {
			continue
		}
		matched = true
		count, err := s.notes.ParseAll(r.Context(), st, lib)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		total += count
	}
	if graphFilter != "" && !matched {
		s.writeError(w, http.StatusBadRequest, "no library matches graph "+graphFilter)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": fmt.Sprintf("%d notes parsed", total)})
}

// storeSummary reports the graph listing and the quad count.
func (s *Server) storeSummary(w http.ResponseWriter, r *http.Request, status string) {
	st := s.provider.Get()
	graphs, err := st.GraphNames(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	n, err := st.Len(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"store":  map[string]any{"named_graphs": graphValues(graphs), "len": n},
	})
}

// graphParam resolves the optional graph query parameter against the store's
// graph listing. A missing parameter is a nil wildcard.
func (s *Server) graphParam(r *http.Request, st schemas.QuadStore) (*schemas.Term, bool, error) {
	raw := strings.Trim(strings.TrimSpace(r.URL.Query().Get("graph")), "<>")
	if raw == "" {
		return nil, true, nil
	}
	graphs, err := st.GraphNames(r.Context())
	if err != nil {
		return nil, false, err
	}
	for _, g := range graphs {
		if g.Value == raw {
			return &g, true, nil
		}
	}
	return nil, false, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]any{"error": msg})
}

func graphValues(graphs []schemas.Term) []string {
	out := make([]string, len(graphs))
	for i, g := range graphs {
		out[i] = g.Value
	}
	return out
}

// iriToFilename flattens a graph IRI into a safe file name.
func iriToFilename(iri string) string {
	s := strings.TrimPrefix(strings.TrimPrefix(iri, "https://"), "http://")
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
