package diffengine

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func tempVersionCache(t *testing.T) *VersionCache {
	t.Helper()
	vc, err := NewVersionCache(filepath.Join(t.TempDir(), ".version_cache"), nil)
	if err != nil {
		t.Fatalf("NewVersionCache: %v", err)
	}
	return vc
}

func TestVersionCacheRoundTrip(t *testing.T) {
	vc := tempVersionCache(t)
	doc := map[string]any{
		"id":   "zk",
		"tags": []any{"a", "b"},
		"meta": map[string]any{"n": 1},
	}
	vc.SaveCurrent("e.yaml", doc)

	got := vc.GetPrevious("e.yaml")
	if got == nil {
		t.Fatal("GetPrevious returned nil after SaveCurrent")
	}
	if !reflect.DeepEqual(got, doc) {
		t.Errorf("round trip = %#v, want %#v", got, doc)
	}
}

func TestVersionCacheMissingEntry(t *testing.T) {
	vc := tempVersionCache(t)
	if got := vc.GetPrevious("never-seen.yaml"); got != nil {
		t.Errorf("missing entry should be nil, got %#v", got)
	}
}

func TestVersionCacheOverwrite(t *testing.T) {
	vc := tempVersionCache(t)
	vc.SaveCurrent("e.yaml", map[string]any{"v": 1})
	vc.SaveCurrent("e.yaml", map[string]any{"v": 2})

	got := vc.GetPrevious("e.yaml")
	if got == nil || got["v"] != 2 {
		t.Errorf("cache should hold only the latest generation, got %#v", got)
	}
}

func TestVersionCacheKeySanitization(t *testing.T) {
	vc := tempVersionCache(t)
	vc.SaveCurrent("entries/zkSNARKs.yaml", map[string]any{"id": "zk"})

	want := filepath.Join(vc.dir, ".entries__zkSNARKs.yaml.prev")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("expected cache entry at %s: %v", want, err)
	}

	// Sibling-like names must not collide.
	vc.SaveCurrent("summaries/zkSNARKs.yaml", map[string]any{"id": "zk-sum"})
	if got := vc.GetPrevious("entries/zkSNARKs.yaml"); got == nil || got["id"] != "zk" {
		t.Errorf("entries snapshot clobbered: %#v", got)
	}
}

func TestVersionCacheCorruptEntry(t *testing.T) {
	vc := tempVersionCache(t)
	vc.SaveCurrent("e.yaml", map[string]any{"v": 1})

	if err := os.WriteFile(vc.entryPath("e.yaml"), []byte("\t: not: yaml: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := vc.GetPrevious("e.yaml"); got != nil {
		t.Errorf("corrupt entry should read as nil, got %#v", got)
	}
}
