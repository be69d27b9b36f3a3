package diffengine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// cacheKeyReplacer makes a source identifier filesystem-safe. The fixed
// substitution is not injective for pathological names (a source literally
// containing "__" can collide); that risk is accepted.
var cacheKeyReplacer = strings.NewReplacer("/", "__", "\\", "__")

// VersionCache stores the last-seen version of each source document, one
// YAML snapshot per source, used as the baseline for the next diff. Entries
// are overwritten in place; no older generations are kept.
type VersionCache struct {
	dir    string
	logger *slog.Logger
}

// NewVersionCache creates the cache directory if needed.
func NewVersionCache(dir string, logger *slog.Logger) (*VersionCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("versioncache: create dir: %w", err)
	}
	return &VersionCache{dir: dir, logger: logger}, nil
}

// entryPath maps a source identifier to its cache file, e.g.
// "entries/zkSNARKs.yaml" -> ".entries__zkSNARKs.yaml.prev".
func (vc *VersionCache) entryPath(source string) string {
	return filepath.Join(vc.dir, "."+cacheKeyReplacer.Replace(source)+".prev")
}

// GetPrevious returns the cached previous version of a source document, or
// nil when there is none. Read and parse failures are logged, not raised.
func (vc *VersionCache) GetPrevious(source string) Document {
	data, err := os.ReadFile(vc.entryPath(source))
	if err != nil {
		if !os.IsNotExist(err) {
			vc.logger.Warn("versioncache: read failed",
				slog.String("source", source), slog.String("error", err.Error()))
		}
		return nil
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		vc.logger.Warn("versioncache: parse failed",
			slog.String("source", source), slog.String("error", err.Error()))
		return nil
	}
	return doc
}

// SaveCurrent persists doc as the new baseline for source, overwriting any
// prior entry. Failure is logged, not raised: the next diff then runs against
// a stale baseline and re-reports already-seen changes, which is the accepted
// trade-off.
func (vc *VersionCache) SaveCurrent(source string, doc Document) {
	data, err := yaml.Marshal(doc)
	if err != nil {
		vc.logger.Warn("versioncache: marshal failed",
			slog.String("source", source), slog.String("error", err.Error()))
		return
	}
	if err := os.WriteFile(vc.entryPath(source), data, 0o644); err != nil {
		vc.logger.Warn("versioncache: write failed",
			slog.String("source", source), slog.String("error", err.Error()))
	}
}
