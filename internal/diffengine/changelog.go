package diffengine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultRecentLimit is the result cap applied when a read view is called
// with a non-positive limit.
const DefaultRecentLimit = 50

// dateRangeCeiling sorts after every real fixed-format timestamp, so an open
// upper bound can use plain string comparison.
const dateRangeCeiling = "9999"

// Changelog is an append-only log of change records stored as
// newline-delimited JSON, one record per line. The file (and its parent
// directories) is created on construction. Reads tolerate an absent file and
// skip lines that fail to parse.
type Changelog struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex // serialises appends within this process
}

// NewChangelog opens (creating if necessary) the changelog at path.
func NewChangelog(path string, logger *slog.Logger) (*Changelog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("changelog: create dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("changelog: create file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("changelog: close file: %w", err)
	}
	return &Changelog{path: path, logger: logger}, nil
}

// Path returns the changelog file location.
func (c *Changelog) Path() string {
	return c.path
}

// Append writes records to the end of the log, one JSON object per line, and
// returns the number written.
func (c *Changelog) Append(records []ChangeRecord) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("changelog: open for append: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return 0, fmt.Errorf("changelog: marshal record: %w", err)
		}
		if _, err := w.Write(line); err != nil {
			return 0, fmt.Errorf("changelog: write: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return 0, fmt.Errorf("changelog: write: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("changelog: flush: %w", err)
	}
	c.logger.Info("changelog: appended changes", slog.Int("count", len(records)))
	return len(records), nil
}

// ReadAll returns every record in append order, oldest first. Corrupt lines
// are logged and dropped; they never abort the read.
func (c *Changelog) ReadAll() ([]ChangeRecord, error) {
	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("changelog: open: %w", err)
	}
	defer f.Close()

	var records []ChangeRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec ChangeRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			c.logger.Warn("changelog: skipping invalid line", slog.String("error", err.Error()))
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("changelog: scan: %w", err)
	}
	return records, nil
}

// ReadRecent returns up to limit records, newest first.
func (c *Changelog) ReadRecent(limit int) ([]ChangeRecord, error) {
	records, err := c.ReadAll()
	if err != nil {
		return nil, err
	}
	sortNewestFirst(records)
	return truncate(records, limit), nil
}

// ReadBySource returns all records for one source document, newest first.
func (c *Changelog) ReadBySource(source string) ([]ChangeRecord, error) {
	records, err := c.ReadAll()
	if err != nil {
		return nil, err
	}
	filtered := filter(records, func(r ChangeRecord) bool { return r.Source == source })
	sortNewestFirst(filtered)
	return filtered, nil
}

// ReadByPath returns records whose path starts with prefix, newest first.
// Matching is plain string-prefix, so "foo" also matches "foobar".
func (c *Changelog) ReadByPath(prefix string) ([]ChangeRecord, error) {
	records, err := c.ReadAll()
	if err != nil {
		return nil, err
	}
	filtered := filter(records, func(r ChangeRecord) bool { return strings.HasPrefix(r.Path, prefix) })
	sortNewestFirst(filtered)
	return filtered, nil
}

// ReadByDateRange returns records within [start, end] inclusive, newest
// first. Zero bounds are open: a zero start admits everything from the
// beginning, a zero end compares against a "9999" ceiling string.
func (c *Changelog) ReadByDateRange(start, end time.Time) ([]ChangeRecord, error) {
	records, err := c.ReadAll()
	if err != nil {
		return nil, err
	}
	startStr := ""
	if !start.IsZero() {
		startStr = FormatTimestamp(start)
	}
	endStr := dateRangeCeiling
	if !end.IsZero() {
		endStr = FormatTimestamp(end)
	}
	filtered := filter(records, func(r ChangeRecord) bool {
		return startStr <= r.Timestamp && r.Timestamp <= endStr
	})
	sortNewestFirst(filtered)
	return filtered, nil
}

// ReadByType returns records of one change type, newest first.
func (c *Changelog) ReadByType(t ChangeType) ([]ChangeRecord, error) {
	records, err := c.ReadAll()
	if err != nil {
		return nil, err
	}
	filtered := filter(records, func(r ChangeRecord) bool { return r.Type == t })
	sortNewestFirst(filtered)
	return filtered, nil
}

func filter(records []ChangeRecord, keep func(ChangeRecord) bool) []ChangeRecord {
	var out []ChangeRecord
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// sortNewestFirst orders by descending timestamp string; valid because the
// timestamp format is fixed-width.
func sortNewestFirst(records []ChangeRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})
}

func truncate(records []ChangeRecord, limit int) []ChangeRecord {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if len(records) > limit {
		return records[:limit]
	}
	return records
}
