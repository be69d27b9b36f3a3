// Package kbservice coordinates the loader, vector index, diff engine,
// proposer, synthesizer, and writer behind one service facade the HTTP and
// MCP surfaces share.
package kbservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/algerknown/algerknown/internal/apperr"
	"github.com/algerknown/algerknown/internal/diffengine"
	"github.com/algerknown/algerknown/internal/loader"
	"github.com/algerknown/algerknown/internal/models"
	"github.com/algerknown/algerknown/internal/propose"
	"github.com/algerknown/algerknown/internal/synth"
	"github.com/algerknown/algerknown/internal/vectorindex"
	"github.com/algerknown/algerknown/internal/writer"
)

// Service is the application core. All state behind it is safe for
// concurrent use.
type Service struct {
	loader   *loader.Loader
	store    *vectorindex.Store
	engine   *diffengine.Engine
	proposer *propose.Proposer
	synth    *synth.Synthesizer
	writer   *writer.Writer
	logger   *slog.Logger

	mu      sync.RWMutex
	entries map[string]models.Document

	statsMu    sync.Mutex
	stats      *ChangelogStats
	statsMtime time.Time
	statsSize  int64
}

// New assembles the service. Call Reindex afterwards to load and index the
// content directory.
func New(ld *loader.Loader, store *vectorindex.Store, engine *diffengine.Engine,
	proposer *propose.Proposer, synthesizer *synth.Synthesizer, wr *writer.Writer,
	logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		loader:   ld,
		store:    store,
		engine:   engine,
		proposer: proposer,
		synth:    synthesizer,
		writer:   wr,
		logger:   logger,
		entries:  map[string]models.Document{},
	}
}

// Health reports index size and the content root.
type Health struct {
	Status           string `json:"status"`
	DocumentsIndexed int    `json:"documents_indexed"`
	ContentDir       string `json:"content_dir"`
}

func (s *Service) Health() Health {
	count, err := s.store.Count()
	if err != nil {
		s.logger.Warn("kbservice: count failed", slog.String("error", err.Error()))
	}
	return Health{Status: "healthy", DocumentsIndexed: count, ContentDir: s.loader.Root()}
}

// Query retrieves the n nearest documents and synthesizes a cited answer.
func (s *Service) Query(ctx context.Context, query string, n int) (*synth.Answer, error) {
	hits, err := s.store.Query(ctx, query, n, "")
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return &synth.Answer{
			Answer:  "No relevant documents found for your query.",
			Sources: []string{},
		}, nil
	}
	return s.synth.Synthesize(ctx, query, hits)
}

// SearchResult is one raw retrieval hit without synthesis.
type SearchResult struct {
	ID       string  `json:"id"`
	Topic    string  `json:"topic"`
	Type     string  `json:"type"`
	Distance float64 `json:"distance"`
	Snippet  string  `json:"snippet"`
}

// Search returns raw nearest-neighbour results for browsing.
func (s *Service) Search(ctx context.Context, query string, n int, typeFilter string) ([]SearchResult, error) {
	hits, err := s.store.Query(ctx, query, n, typeFilter)
	if err != nil {
		return nil, err
	}
	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		docType := h.Metadata.Type
		if docType == "" {
			docType = models.TypeEntry
		}
		results = append(results, SearchResult{
			ID:       h.ID,
			Topic:    h.Metadata.Topic,
			Type:     docType,
			Distance: h.Distance,
			Snippet:  snippet(h.Content, 200),
		})
	}
	return results, nil
}

// IngestResult is what a full ingestion of one entry produced.
type IngestResult struct {
	EntryID   string            `json:"entry_id"`
	Proposals []models.Proposal `json:"proposals"`
}

// Ingest loads an entry file, stamps last_ingested, indexes it, records the
// diff in the changelog, and generates update proposals for related
// summaries.
func (s *Service) Ingest(ctx context.Context, filePath string, maxProposals int) (*IngestResult, error) {
	absPath, doc, err := s.loadEntry(filePath)
	if err != nil {
		return nil, err
	}

	s.stampLastIngested(absPath, doc)

	if _, err := s.store.Upsert(ctx, []models.Document{*doc}); err != nil {
		return nil, err
	}
	s.cacheDocument(*doc)
	s.logger.Info("kbservice: ingested entry", slog.String("id", doc.ID))

	if changes, err := s.engine.DiffAndLog(absPath, doc.Raw, time.Time{}); err != nil {
		s.logger.Warn("kbservice: changelog update failed",
			slog.String("source", absPath), slog.String("error", err.Error()))
	} else {
		s.invalidateStats()
		s.logger.Info("kbservice: logged changes",
			slog.String("id", doc.ID), slog.Int("count", len(changes)))
	}

	proposals, err := s.proposer.GenerateAll(ctx, *doc, maxProposals)
	if err != nil {
		return nil, err
	}
	if proposals == nil {
		proposals = []models.Proposal{}
	}
	return &IngestResult{EntryID: doc.ID, Proposals: proposals}, nil
}

// IndexFile indexes an entry without proposals, changelog, or the
// last_ingested stamp. Used when a record is created but not yet ingested.
func (s *Service) IndexFile(ctx context.Context, filePath string) (string, error) {
	_, doc, err := s.loadEntry(filePath)
	if err != nil {
		return "", err
	}
	if _, err := s.store.Upsert(ctx, []models.Document{*doc}); err != nil {
		return "", err
	}
	s.cacheDocument(*doc)
	s.logger.Info("kbservice: indexed entry", slog.String("id", doc.ID))
	return doc.ID, nil
}

// Approve applies a proposal to its target summary, then reloads, reindexes,
// and diff-logs the updated file.
func (s *Service) Approve(ctx context.Context, proposal models.Proposal) (*writer.Result, error) {
	result, err := s.writer.Apply(proposal)
	if err != nil {
		return nil, err
	}

	doc, loadErr := s.loader.LoadFile(result.File)
	if loadErr != nil {
		s.logger.Warn("kbservice: reload after approve failed",
			slog.String("file", result.File), slog.String("error", loadErr.Error()))
		return result, nil
	}
	if _, err := s.store.Upsert(ctx, []models.Document{*doc}); err != nil {
		s.logger.Warn("kbservice: reindex after approve failed",
			slog.String("id", doc.ID), slog.String("error", err.Error()))
	}
	s.cacheDocument(*doc)
	if _, err := s.engine.DiffAndLog(result.File, doc.Raw, time.Time{}); err != nil {
		s.logger.Warn("kbservice: changelog update failed",
			slog.String("source", result.File), slog.String("error", err.Error()))
	} else {
		s.invalidateStats()
	}
	return result, nil
}

// Preview reports what approving the proposal would change.
func (s *Service) Preview(proposal models.Proposal) (*writer.Preview, error) {
	return s.writer.PreviewUpdate(proposal)
}

// Reindex reloads every document from disk and reindexes the ones whose
// content checksum changed. Returns the number of documents loaded.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	documents, err := s.loader.LoadAll()
	if err != nil {
		return 0, err
	}

	var changed []models.Document
	for _, doc := range documents {
		stored, err := s.store.Checksum(doc.ID)
		if err != nil || stored != doc.Checksum {
			changed = append(changed, doc)
		}
	}
	if len(changed) > 0 {
		if _, err := s.store.Upsert(ctx, changed); err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	s.entries = make(map[string]models.Document, len(documents))
	for _, doc := range documents {
		s.entries[doc.ID] = doc
	}
	s.mu.Unlock()

	s.logger.Info("kbservice: reindexed",
		slog.Int("loaded", len(documents)), slog.Int("updated", len(changed)))
	return len(documents), nil
}

// SyncPath reindexes one file (watcher callback) and logs its diff. It
// reports whether the file's content actually changed.
func (s *Service) SyncPath(ctx context.Context, path string) (bool, error) {
	doc, err := s.loader.LoadFile(path)
	if err != nil {
		return false, err
	}
	stored, _ := s.store.Checksum(doc.ID)
	if stored == doc.Checksum {
		return false, nil
	}
	if _, err := s.store.Upsert(ctx, []models.Document{*doc}); err != nil {
		return false, err
	}
	s.cacheDocument(*doc)
	if _, err := s.engine.DiffAndLog(path, doc.Raw, time.Time{}); err != nil {
		s.logger.Warn("kbservice: changelog update failed",
			slog.String("source", path), slog.String("error", err.Error()))
	} else {
		s.invalidateStats()
	}
	return true, nil
}

// RemovePath drops whatever document was indexed from path.
func (s *Service) RemovePath(path string) error {
	if err := s.store.DeleteByFilePath(path); err != nil {
		return err
	}
	s.mu.Lock()
	for id, doc := range s.entries {
		if doc.Metadata.FilePath == path {
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()
	return nil
}

// EntryListItem is one row in the entries listing.
type EntryListItem struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Topic        string `json:"topic"`
	Status       string `json:"status"`
	Path         string `json:"path"`
	LastIngested string `json:"last_ingested,omitempty"`
}

// Entries lists the cached documents, summaries first, then by id.
func (s *Service) Entries() []EntryListItem {
	s.mu.RLock()
	items := make([]EntryListItem, 0, len(s.entries))
	for id, doc := range s.entries {
		docType := doc.Metadata.Type
		if docType == "" {
			docType = models.TypeEntry
		}
		items = append(items, EntryListItem{
			ID:           id,
			Type:         docType,
			Topic:        doc.Metadata.Topic,
			Status:       doc.Metadata.Status,
			Path:         doc.Metadata.FilePath,
			LastIngested: doc.Metadata.LastIngested,
		})
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if (items[i].Type == models.TypeSummary) != (items[j].Type == models.TypeSummary) {
			return items[i].Type == models.TypeSummary
		}
		return items[i].ID < items[j].ID
	})
	return items
}

// Entry returns one cached document by id.
func (s *Service) Entry(id string) (*models.Document, error) {
	s.mu.RLock()
	doc, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("kbservice: entry %s: %w", id, apperr.ErrNotFound)
	}
	return &doc, nil
}

// SummaryListItem is one row in the summaries listing.
type SummaryListItem struct {
	ID    string `json:"id"`
	Topic string `json:"topic"`
}

// Summaries lists the indexed summary documents.
func (s *Service) Summaries() ([]SummaryListItem, error) {
	docs, err := s.store.Summaries()
	if err != nil {
		return nil, err
	}
	items := make([]SummaryListItem, 0, len(docs))
	for _, d := range docs {
		items = append(items, SummaryListItem{ID: d.ID, Topic: d.Metadata.Topic})
	}
	return items, nil
}

// ChangelogPage is a filtered, limited slice of the changelog with the
// pre-limit match count.
type ChangelogPage struct {
	Changes []diffengine.ChangeRecord `json:"changes"`
	Total   int                       `json:"total"`
}

// Changelog reads recent changes, optionally filtered by source file, path
// prefix, and change type. Filters combine with AND.
func (s *Service) Changelog(limit int, source, pathPrefix, changeType string) (*ChangelogPage, error) {
	var typeFilter diffengine.ChangeType
	if changeType != "" {
		t, ok := diffengine.ParseChangeType(changeType)
		if !ok {
			return nil, fmt.Errorf("kbservice: change type %q: %w", changeType, apperr.ErrInvalidEntry)
		}
		typeFilter = t
	}
	if limit <= 0 {
		limit = diffengine.DefaultRecentLimit
	}

	changes, err := s.engine.Changelog().ReadAll()
	if err != nil {
		return nil, err
	}
	filtered := changes[:0:0]
	for _, c := range changes {
		if source != "" && c.Source != source {
			continue
		}
		if pathPrefix != "" && !strings.HasPrefix(c.Path, pathPrefix) {
			continue
		}
		if typeFilter != "" && c.Type != typeFilter {
			continue
		}
		filtered = append(filtered, c)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp > filtered[j].Timestamp
	})

	total := len(filtered)
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	if filtered == nil {
		filtered = []diffengine.ChangeRecord{}
	}
	return &ChangelogPage{Changes: filtered, Total: total}, nil
}

// ChangelogSources lists the distinct source files in the changelog.
func (s *Service) ChangelogSources() ([]string, error) {
	changes, err := s.engine.Changelog().ReadAll()
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var sources []string
	for _, c := range changes {
		if c.Source != "" && !seen[c.Source] {
			seen[c.Source] = true
			sources = append(sources, c.Source)
		}
	}
	sort.Strings(sources)
	if sources == nil {
		sources = []string{}
	}
	return sources, nil
}

// ChangelogStats summarizes the changelog.
type ChangelogStats struct {
	TotalChanges int            `json:"total_changes"`
	ByType       map[string]int `json:"by_type"`
	FirstChange  *string        `json:"first_change"`
	LastChange   *string        `json:"last_change"`
}

// ChangelogStats computes counts by type and the timestamp range. Results
// are cached against the changelog file's mtime and size so repeated calls
// do not reread an unchanged log.
func (s *Service) ChangelogStats() (*ChangelogStats, error) {
	var mtime time.Time
	var size int64
	if info, err := os.Stat(s.engine.Changelog().Path()); err == nil {
		mtime, size = info.ModTime(), info.Size()
	}

	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if s.stats != nil && s.statsMtime.Equal(mtime) && s.statsSize == size {
		return s.stats, nil
	}

	changes, err := s.engine.Changelog().ReadAll()
	if err != nil {
		return nil, err
	}
	stats := &ChangelogStats{
		ByType: map[string]int{
			string(diffengine.Added):    0,
			string(diffengine.Modified): 0,
			string(diffengine.Removed):  0,
		},
	}
	stats.TotalChanges = len(changes)
	for _, c := range changes {
		if _, ok := stats.ByType[string(c.Type)]; ok {
			stats.ByType[string(c.Type)]++
		}
	}
	for _, c := range changes {
		ts := c.Timestamp
		if ts == "" {
			continue
		}
		if stats.FirstChange == nil || ts < *stats.FirstChange {
			first := ts
			stats.FirstChange = &first
		}
		if stats.LastChange == nil || ts > *stats.LastChange {
			last := ts
			stats.LastChange = &last
		}
	}

	s.stats, s.statsMtime, s.statsSize = stats, mtime, size
	return stats, nil
}

// HistoryPage is the change history of one entry.
type HistoryPage struct {
	EntryID string                    `json:"entry_id"`
	Changes []diffengine.ChangeRecord `json:"changes"`
	Total   int                       `json:"total"`
}

// EntryHistory returns the changelog records for one entry. The cached
// file path is preferred; otherwise only sources named exactly
// "{id}.yaml" match, so short ids cannot collide with longer file names.
func (s *Service) EntryHistory(id string, limit int) (*HistoryPage, error) {
	if limit <= 0 {
		limit = diffengine.DefaultRecentLimit
	}

	s.mu.RLock()
	doc, cached := s.entries[id]
	s.mu.RUnlock()

	var changes []diffengine.ChangeRecord
	var err error
	if cached && doc.Metadata.FilePath != "" {
		changes, err = s.engine.Changelog().ReadBySource(doc.Metadata.FilePath)
	} else {
		var all []diffengine.ChangeRecord
		all, err = s.engine.Changelog().ReadAll()
		for _, c := range all {
			if strings.HasSuffix(c.Source, "/"+id+".yaml") || c.Source == id+".yaml" {
				changes = append(changes, c)
			}
		}
		sort.SliceStable(changes, func(i, j int) bool {
			return changes[i].Timestamp > changes[j].Timestamp
		})
	}
	if err != nil {
		return nil, err
	}

	total := len(changes)
	if len(changes) > limit {
		changes = changes[:limit]
	}
	if changes == nil {
		changes = []diffengine.ChangeRecord{}
	}
	return &HistoryPage{EntryID: id, Changes: changes, Total: total}, nil
}

// loadEntry resolves filePath inside the content root and parses it.
func (s *Service) loadEntry(filePath string) (string, *models.Document, error) {
	absPath, err := s.resolveContentPath(filePath)
	if err != nil {
		return "", nil, err
	}
	if _, err := os.Stat(absPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, fmt.Errorf("kbservice: %s: %w", filePath, apperr.ErrNotFound)
		}
		return "", nil, fmt.Errorf("kbservice: stat %s: %w", absPath, err)
	}
	doc, err := s.loader.LoadFile(absPath)
	if err != nil {
		return "", nil, fmt.Errorf("kbservice: %w: %v", apperr.ErrInvalidEntry, err)
	}
	return absPath, doc, nil
}

// resolveContentPath makes filePath absolute (relative paths resolve against
// the content root) and rejects anything that escapes the root, including
// sibling-directory prefix tricks.
func (s *Service) resolveContentPath(filePath string) (string, error) {
	root := s.loader.Root()
	abs := filePath
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("kbservice: %s: %w", filePath, apperr.ErrOutsideContentDir)
	}
	return abs, nil
}

// stampLastIngested writes today's date into the entry file. When the write
// fails the document keeps its previous state and the failure is logged.
func (s *Service) stampLastIngested(absPath string, doc *models.Document) {
	today := time.Now().Format("2006-01-02")
	raw := doc.Raw
	prev, hadPrev := raw["last_ingested"]
	raw["last_ingested"] = today

	out, err := yaml.Marshal(raw)
	if err == nil {
		err = os.WriteFile(absPath, out, 0o644)
	}
	if err != nil {
		if hadPrev {
			raw["last_ingested"] = prev
		} else {
			delete(raw, "last_ingested")
		}
		s.logger.Warn("kbservice: last_ingested update failed",
			slog.String("path", absPath), slog.String("error", err.Error()))
		return
	}
	doc.Metadata.LastIngested = today
	s.logger.Info("kbservice: updated last_ingested", slog.String("id", doc.ID))
}

func (s *Service) cacheDocument(doc models.Document) {
	s.mu.Lock()
	s.entries[doc.ID] = doc
	s.mu.Unlock()
}

func (s *Service) invalidateStats() {
	s.statsMu.Lock()
	s.stats = nil
	s.statsMu.Unlock()
}

func snippet(content string, max int) string {
	if len(content) <= max {
		return content
	}
	return content[:max] + "..."
}
