package diffengine

import (
	"path/filepath"
	"testing"
	"time"
)

func tempEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	c, err := NewChangelog(filepath.Join(dir, "changelog.jsonl"), nil)
	if err != nil {
		t.Fatalf("NewChangelog: %v", err)
	}
	vc, err := NewVersionCache(filepath.Join(dir, ".version_cache"), nil)
	if err != nil {
		t.Fatalf("NewVersionCache: %v", err)
	}
	return NewEngine(c, vc, nil)
}

func TestDiffAndLogFirstIngest(t *testing.T) {
	e := tempEngine(t)
	doc := map[string]any{"id": "x", "topic": "T"}

	changes, err := e.DiffAndLog("entries/x.yaml", doc, time.Time{})
	if err != nil {
		t.Fatalf("DiffAndLog: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("first ingest should report all leaves as added, got %d", len(changes))
	}

	logged, err := e.Changelog().ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(logged) != 2 {
		t.Errorf("changelog should hold %d records, has %d", 2, len(logged))
	}
}

func TestDiffAndLogIdempotent(t *testing.T) {
	e := tempEngine(t)
	doc := map[string]any{"id": "x", "tags": []any{"a"}}

	if _, err := e.DiffAndLog("x.yaml", doc, time.Time{}); err != nil {
		t.Fatalf("first DiffAndLog: %v", err)
	}
	changes, err := e.DiffAndLog("x.yaml", doc, time.Time{})
	if err != nil {
		t.Fatalf("second DiffAndLog: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("re-ingesting an identical document should yield no changes, got %+v", changes)
	}
}

func TestDiffAndLogIncremental(t *testing.T) {
	e := tempEngine(t)

	v1 := map[string]any{"id": "x", "tags": []any{"a", "b"}}
	v2 := map[string]any{"id": "x", "tags": []any{"a", "b", "c"}}

	if _, err := e.DiffAndLog("x.yaml", v1, time.Time{}); err != nil {
		t.Fatal(err)
	}
	changes, err := e.DiffAndLog("x.yaml", v2, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 || changes[0].Type != Added || changes[0].Path != "tags[2]" {
		t.Errorf("incremental diff = %+v", changes)
	}
}

func TestDiffAndLogNoAppendWhenUnchanged(t *testing.T) {
	e := tempEngine(t)
	doc := map[string]any{"id": "x"}

	_, _ = e.DiffAndLog("x.yaml", doc, time.Time{})
	before, _ := e.Changelog().ReadAll()
	_, _ = e.DiffAndLog("x.yaml", doc, time.Time{})
	after, _ := e.Changelog().ReadAll()

	if len(before) != len(after) {
		t.Errorf("changelog grew on a no-op ingest: %d -> %d", len(before), len(after))
	}
}
