package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeContent(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const sampleEntry = `id: zk-intro
type: entry
topic: zkSNARKs
status: active
date: "2026-08-01"
tags:
  - zk
  - crypto
context: First pass at understanding proving systems.
learnings:
  - insight: Trusted setup is per-circuit for Groth16
    context: Setup ceremonies
decisions:
  - decision: Use PLONK for prototyping
    rationale: Universal setup
open_questions:
  - How do folding schemes compare?
outcome:
  worked:
    - Small circuit compiled
  failed:
    - Recursive proof too slow
links:
  - id: zk-summary
    relationship: informs
`

func tempLoader(t *testing.T) (*Loader, string) {
	t.Helper()
	root := t.TempDir()
	l, err := New(root, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, root
}

func TestLoadFile(t *testing.T) {
	l, root := tempLoader(t)
	writeContent(t, root, "entries/zk-intro.yaml", sampleEntry)

	doc, err := l.LoadFile(filepath.Join(root, "entries/zk-intro.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if doc.ID != "zk-intro" {
		t.Errorf("id = %q", doc.ID)
	}
	if doc.Metadata.Type != "entry" || doc.Metadata.Topic != "zkSNARKs" {
		t.Errorf("metadata = %+v", doc.Metadata)
	}
	if len(doc.Metadata.Tags) != 2 || doc.Metadata.Tags[0] != "zk" {
		t.Errorf("tags = %v", doc.Metadata.Tags)
	}
	if doc.Metadata.Date != "2026-08-01" {
		t.Errorf("date = %q", doc.Metadata.Date)
	}
	if doc.Checksum == "" {
		t.Error("checksum should be set")
	}
}

func TestLoadFileMissingID(t *testing.T) {
	l, root := tempLoader(t)
	writeContent(t, root, "entries/bad.yaml", "topic: no id here\n")

	if _, err := l.LoadFile(filepath.Join(root, "entries/bad.yaml")); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestLoadAllSkipsInvalid(t *testing.T) {
	l, root := tempLoader(t)
	writeContent(t, root, "entries/good.yaml", "id: good\ntopic: T\n")
	writeContent(t, root, "entries/noid.yaml", "topic: orphan\n")
	writeContent(t, root, "summaries/sum.yaml", "id: sum-1\ntype: summary\nsummary: rollup\n")

	docs, err := l.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len(docs) = %d, want 2", len(docs))
	}
	// entries/ is scanned before summaries/.
	if docs[0].ID != "good" || docs[1].ID != "sum-1" {
		t.Errorf("ids = %s, %s", docs[0].ID, docs[1].ID)
	}
}

func TestLoadAllMissingSubdirs(t *testing.T) {
	l, _ := tempLoader(t)
	docs, err := l.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll on empty root: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected no documents, got %d", len(docs))
	}
}

func TestFlattenDocument(t *testing.T) {
	l, root := tempLoader(t)
	writeContent(t, root, "entries/zk-intro.yaml", sampleEntry)
	doc, err := l.LoadFile(filepath.Join(root, "entries/zk-intro.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"Topic: zkSNARKs",
		"Context: First pass at understanding proving systems.",
		"Learning: Trusted setup is per-circuit for Groth16",
		"  Context: Setup ceremonies",
		"Decision: Use PLONK for prototyping",
		"  Rationale: Universal setup",
		"Open question: How do folding schemes compare?",
		"Worked: Small circuit compiled",
		"Failed: Recursive proof too slow",
		"Link: zk-summary (informs)",
	} {
		if !strings.Contains(doc.Content, want) {
			t.Errorf("content missing %q\ncontent:\n%s", want, doc.Content)
		}
	}
}

func TestExtractMetadataDateRange(t *testing.T) {
	raw := map[string]any{
		"id":   "s1",
		"type": "summary",
		"date_range": map[string]any{
			"start": "2026-01-01",
			"end":   "2026-06-30",
		},
	}
	meta := ExtractMetadata(raw, "summaries/s1.yaml")
	if meta.Date != "2026-01-01" {
		t.Errorf("date = %q, want date_range start", meta.Date)
	}
	if meta.Type != "summary" {
		t.Errorf("type = %q", meta.Type)
	}
}
