// Package testutil provides shared test helpers for setting up content
// directories and vector stores.
package testutil

import (
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/algerknown/algerknown/internal/vectorindex"
)

// TestStore creates a temporary SQLite-backed vector store with a
// deterministic embedder, cleaned up with the test.
func TestStore(t *testing.T) *vectorindex.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "algerknown-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	store, err := vectorindex.Open(dbFile.Name(), HashEmbedder{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestContentDir creates a temporary content root with entries/ and
// summaries/ subdirectories.
func TestContentDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, sub := range []string{"entries", "summaries"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// WriteYAML writes a record file under the content root, e.g.
// WriteYAML(t, dir, "entries/zk-001.yaml", data).
func WriteYAML(t *testing.T, dir, rel string, data string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// HashEmbedder is a tiny deterministic embedder for tests. Texts sharing
// tokens embed to nearby vectors.
type HashEmbedder struct{}

func (HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	const dim = 64
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, dim)
		for _, token := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(token))
			vec[h.Sum32()%dim]++
		}
		vectors[i] = vec
	}
	return vectors, nil
}
