package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for
// mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const createQuadsTable = `
    CREATE TABLE IF NOT EXISTS quads (
        graph           TEXT NOT NULL,
        subject_kind    SMALLINT NOT NULL,
        subject         TEXT NOT NULL,
        predicate       TEXT NOT NULL,
        object_kind     SMALLINT NOT NULL,
        object          TEXT NOT NULL,
        object_datatype TEXT NOT NULL DEFAULT '',
        object_language TEXT NOT NULL DEFAULT '',
        PRIMARY KEY (graph, subject_kind, subject, predicate,
                     object_kind, object, object_datatype, object_language)
    );
`

const insertQuad = `
    INSERT INTO quads (graph, subject_kind, subject, predicate,
                       object_kind, object, object_datatype, object_language)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    ON CONFLICT DO NOTHING;
`

// PostgresStore is a persistent quad store backed by PostgreSQL. Statement
// deduplication is enforced by the table's primary key, so re-ingestion of
// identical input is idempotent at the database level.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.QuadStore = (*PostgresStore)(nil)

// NewPostgresStore creates a store instance, verifies the connection and
// ensures the quads table exists.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, createQuadsTable); err != nil {
		return nil, fmt.Errorf("failed to ensure quads table: %w", err)
	}
	return &PostgresStore{
		pool: pool,
		log:  logger.Named("PostgresStore"),
	}, nil
}

// Add inserts a quad; the boolean reports whether it was new.
func (s *PostgresStore) Add(ctx context.Context, q schemas.Quad) (bool, error) {
	tag, err := s.pool.Exec(ctx, insertQuad, quadArgs(q)...)
	if err != nil {
		return false, fmt.Errorf("failed to insert quad: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// AddBatch inserts many quads in one transaction. Duplicates are skipped.
func (s *PostgresStore) AddBatch(ctx context.Context, quads []schemas.Quad) error {
	if len(quads) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	batch := &pgx.Batch{}
	for _, q := range quads {
		batch.Queue(insertQuad, quadArgs(q)...)
	}

	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return fmt.Errorf("failed to send batch: batch results is nil")
	}
	for i := range quads {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to execute batch insert for quad %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Remove deletes a quad and reports whether it existed.
func (s *PostgresStore) Remove(ctx context.Context, q schemas.Quad) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
        DELETE FROM quads
        WHERE graph = $1 AND subject_kind = $2 AND subject = $3 AND predicate = $4
          AND object_kind = $5 AND object = $6 AND object_datatype = $7 AND object_language = $8;
    `, quadArgs(q)...)
	if err != nil {
		return false, fmt.Errorf("failed to delete quad: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Match returns all quads matching the pattern; nil terms are wildcards.
func (s *PostgresStore) Match(ctx context.Context, sub, pred, obj, graph *schemas.Term) ([]schemas.Quad, error) {
	query := `
        SELECT graph, subject_kind, subject, predicate,
               object_kind, object, object_datatype, object_language
        FROM quads`
	var (
		clauses []string
		args    []any
	)
	addClause := func(clause string, val any) {
		args = append(args, val)
		clauses = append(clauses, clause+"$"+strconv.Itoa(len(args)))
	}
	if sub != nil {
		addClause("subject_kind = ", int16(sub.Kind))
		addClause("subject = ", sub.Value)
	}
	if pred != nil {
		addClause("predicate = ", pred.Value)
	}
	if obj != nil {
		addClause("object_kind = ", int16(obj.Kind))
		addClause("object = ", obj.Value)
		addClause("object_datatype = ", obj.Datatype)
		addClause("object_language = ", obj.Language)
	}
	if graph != nil {
		addClause("graph = ", graph.Value)
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY ctid;"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query quads: %w", err)
	}
	defer rows.Close()

	var out []schemas.Quad
	for rows.Next() {
		var (
			q             schemas.Quad
			graphIRI      string
			subKind, oKind int16
		)
		if err := rows.Scan(&graphIRI, &subKind, &q.Subject.Value, &q.Predicate.Value,
			&oKind, &q.Object.Value, &q.Object.Datatype, &q.Object.Language); err != nil {
			return nil, fmt.Errorf("failed to scan quad row: %w", err)
		}
		q.Graph = schemas.IRI(graphIRI)
		q.Subject.Kind = schemas.TermKind(subKind)
		q.Predicate.Kind = schemas.KindIRI
		q.Object.Kind = schemas.TermKind(oKind)
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// Len returns the total number of stored quads.
func (s *PostgresStore) Len(ctx context.Context) (int, error) {
	rows, err := s.pool.Query(ctx, "SELECT count(*) FROM quads;")
	if err != nil {
		return 0, fmt.Errorf("failed to count quads: %w", err)
	}
	defer rows.Close()

	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("failed to scan quad count: %w", err)
		}
	}
	return n, rows.Err()
}

// GraphNames returns the distinct named graphs present in the store.
func (s *PostgresStore) GraphNames(ctx context.Context) ([]schemas.Term, error) {
	rows, err := s.pool.Query(ctx, "SELECT DISTINCT graph FROM quads ORDER BY graph;")
	if err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}
	defer rows.Close()

	var out []schemas.Term
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("failed to scan graph name: %w", err)
		}
		out = append(out, schemas.IRI(g))
	}
	return out, rows.Err()
}

// Clear removes every quad, or only those in the given graph.
func (s *PostgresStore) Clear(ctx context.Context, graph *schemas.Term) error {
	var err error
	if graph == nil {
		_, err = s.pool.Exec(ctx, "DELETE FROM quads;")
	} else {
		_, err = s.pool.Exec(ctx, "DELETE FROM quads WHERE graph = $1;", graph.Value)
	}
	if err != nil {
		return fmt.Errorf("failed to clear quads: %w", err)
	}
	return nil
}

func quadArgs(q schemas.Quad) []any {
	return []any{
		q.Graph.Value,
		int16(q.Subject.Kind), q.Subject.Value,
		q.Predicate.Value,
		int16(q.Object.Kind), q.Object.Value, q.Object.Datatype, q.Object.Language,
	}
}
