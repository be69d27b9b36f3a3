// Package diffengine tracks node-level changes to YAML knowledge-base
// documents. It flattens nested documents into path-addressable leaves,
// diffs versions, and maintains an append-only changelog plus a per-source
// previous-version cache so that re-ingesting an unchanged document is a
// no-op.
package diffengine

import (
	"fmt"
	"log/slog"
	"time"
)

// Engine composes the version cache, diff algorithm, and changelog into one
// idempotent ingest operation.
type Engine struct {
	changelog *Changelog
	cache     *VersionCache
	logger    *slog.Logger
}

// NewEngine creates an engine over the given changelog and version cache.
func NewEngine(changelog *Changelog, cache *VersionCache, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{changelog: changelog, cache: cache, logger: logger}
}

// Changelog exposes the underlying store for the read-side query views.
func (e *Engine) Changelog() *Changelog {
	return e.changelog
}

// DiffAndLog compares doc to the previously seen version of source, appends
// any changes to the changelog, updates the version cache, and returns the
// changes. A zero timestamp means "now". Calling twice with an identical
// document yields no changes on the second call, provided the first cache
// save succeeded.
func (e *Engine) DiffAndLog(source string, doc Document, timestamp time.Time) ([]ChangeRecord, error) {
	old := e.cache.GetPrevious(source)

	changes := ComputeDiff(old, doc, source, timestamp)

	if len(changes) > 0 {
		if _, err := e.changelog.Append(changes); err != nil {
			return nil, fmt.Errorf("diffengine: log changes for %s: %w", source, err)
		}
		e.logger.Info("diffengine: logged changes",
			slog.String("source", source), slog.Int("count", len(changes)))
	} else {
		e.logger.Debug("diffengine: no changes detected", slog.String("source", source))
	}

	e.cache.SaveCurrent(source, doc)
	return changes, nil
}
