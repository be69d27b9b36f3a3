// Package vectorindex provides the SQLite-backed embedding store used for
// semantic retrieval over knowledge-base documents.
package vectorindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/algerknown/algerknown/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	content       TEXT NOT NULL DEFAULT '',
	doc_type      TEXT NOT NULL DEFAULT 'entry',
	topic         TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT '',
	tags          TEXT NOT NULL DEFAULT '[]',
	date          TEXT NOT NULL DEFAULT '',
	file_path     TEXT NOT NULL DEFAULT '',
	last_ingested TEXT NOT NULL DEFAULT '',
	checksum      TEXT NOT NULL DEFAULT '',
	embedding     BLOB,
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(doc_type);
`

// Store wraps a sql.DB with document and embedding operations.
type Store struct {
	conn     *sql.DB
	embedder Embedder
	logger   *slog.Logger
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string, embedder Embedder, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("vectorindex: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("vectorindex: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("vectorindex: apply schema: %w", err)
	}
	return &Store{conn: conn, embedder: embedder, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Upsert embeds and inserts-or-replaces documents, returning the number
// stored.
func (s *Store) Upsert(ctx context.Context, docs []models.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("vectorindex: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stmt, err := tx.Prepare(`
		INSERT INTO documents
			(id, content, doc_type, topic, status, tags, date, file_path, last_ingested, checksum, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content       = excluded.content,
			doc_type      = excluded.doc_type,
			topic         = excluded.topic,
			status        = excluded.status,
			tags          = excluded.tags,
			date          = excluded.date,
			file_path     = excluded.file_path,
			last_ingested = excluded.last_ingested,
			checksum      = excluded.checksum,
			embedding     = excluded.embedding,
			updated_at    = excluded.updated_at
	`)
	if err != nil {
		return 0, fmt.Errorf("vectorindex: prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for i, d := range docs {
		tagsJSON, _ := json.Marshal(d.Metadata.Tags)
		_, err := stmt.Exec(d.ID, d.Content, d.Metadata.Type, d.Metadata.Topic,
			d.Metadata.Status, string(tagsJSON), d.Metadata.Date, d.Metadata.FilePath,
			d.Metadata.LastIngested, d.Checksum, encodeVector(vectors[i]), now)
		if err != nil {
			return 0, fmt.Errorf("vectorindex: upsert %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("vectorindex: commit: %w", err)
	}
	s.logger.Info("vectorindex: indexed documents", slog.Int("count", len(docs)))
	return len(docs), nil
}

const docColumns = `id, content, doc_type, topic, status, tags, date, file_path, last_ingested, checksum`

// Get returns one document by id, without its raw tree (only the store's
// columns survive indexing).
func (s *Store) Get(id string) (*models.Document, error) {
	row := s.conn.QueryRow(`SELECT `+docColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vectorindex: get %s: %w", id, err)
	}
	return doc, nil
}

// All returns every stored document.
func (s *Store) All() ([]models.Document, error) {
	return s.list(`SELECT ` + docColumns + ` FROM documents ORDER BY id`)
}

// Summaries returns all summary-type documents.
func (s *Store) Summaries() ([]models.Document, error) {
	return s.list(`SELECT `+docColumns+` FROM documents WHERE doc_type = ? ORDER BY id`, models.TypeSummary)
}

func (s *Store) list(query string, args ...any) ([]models.Document, error) {
	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: list: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("vectorindex: scan: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// Count returns the number of stored documents.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("vectorindex: count: %w", err)
	}
	return n, nil
}

// Checksum returns the stored content checksum for id, or empty when absent.
func (s *Store) Checksum(id string) (string, error) {
	var cs string
	err := s.conn.QueryRow(`SELECT checksum FROM documents WHERE id = ?`, id).Scan(&cs)
	if err != nil {
		return "", nil
	}
	return cs, nil
}

// Delete removes a document by id.
func (s *Store) Delete(id string) error {
	if _, err := s.conn.Exec(`DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("vectorindex: delete %s: %w", id, err)
	}
	return nil
}

// DeleteByFilePath removes whichever document was indexed from path.
func (s *Store) DeleteByFilePath(path string) error {
	if _, err := s.conn.Exec(`DELETE FROM documents WHERE file_path = ?`, path); err != nil {
		return fmt.Errorf("vectorindex: delete by path %s: %w", path, err)
	}
	return nil
}

// Query embeds text and returns the n nearest documents by cosine distance,
// optionally restricted to one document type. The scan is brute force over
// all stored vectors, which is fine at personal-knowledge-base scale.
func (s *Store) Query(ctx context.Context, text string, n int, typeFilter string) ([]models.Hit, error) {
	if n <= 0 {
		n = 5
	}
	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	query := vectors[0]

	sqlQuery := `SELECT ` + docColumns + `, embedding FROM documents`
	var args []any
	if typeFilter != "" {
		sqlQuery += ` WHERE doc_type = ?`
		args = append(args, typeFilter)
	}
	rows, err := s.conn.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: query: %w", err)
	}
	defer rows.Close()

	var hits []models.Hit
	for rows.Next() {
		var (
			doc      models.Document
			tagsJSON string
			blob     []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &doc.Metadata.Type, &doc.Metadata.Topic,
			&doc.Metadata.Status, &tagsJSON, &doc.Metadata.Date, &doc.Metadata.FilePath,
			&doc.Metadata.LastIngested, &doc.Checksum, &blob); err != nil {
			return nil, fmt.Errorf("vectorindex: scan: %w", err)
		}
		_ = json.Unmarshal([]byte(tagsJSON), &doc.Metadata.Tags)
		hits = append(hits, models.Hit{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: doc.Metadata,
			Distance: cosineDistance(query, decodeVector(blob)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortHits(hits)
	if len(hits) > n {
		hits = hits[:n]
	}
	return hits, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc      models.Document
		tagsJSON string
	)
	err := row.Scan(&doc.ID, &doc.Content, &doc.Metadata.Type, &doc.Metadata.Topic,
		&doc.Metadata.Status, &tagsJSON, &doc.Metadata.Date, &doc.Metadata.FilePath,
		&doc.Metadata.LastIngested, &doc.Checksum)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(tagsJSON), &doc.Metadata.Tags)
	return &doc, nil
}

func sortHits(hits []models.Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec
}

// cosineDistance is 1 - cosine similarity; 0 means identical direction.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
