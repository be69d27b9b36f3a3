// Package loader parses YAML knowledge-base records (entries and summaries)
// into documents ready for embedding and diffing.
package loader

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/algerknown/algerknown/internal/checksum"
	"github.com/algerknown/algerknown/internal/models"
)

// contentSubdirs are the directories scanned under the content root.
var contentSubdirs = []string{"entries", "summaries"}

// Loader reads entry and summary files from a content directory.
type Loader struct {
	root   string // absolute path to the content directory
	logger *slog.Logger
}

// New creates a loader rooted at dir. The directory must already exist.
func New(dir string, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("loader: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("loader: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("loader: root is not a directory: %s", abs)
	}
	return &Loader{root: abs, logger: logger}, nil
}

// Root returns the absolute content directory path.
func (l *Loader) Root() string {
	return l.root
}

// LoadAll reads every *.yaml file under entries/ and summaries/. Files that
// fail to parse or lack an id are logged and skipped.
func (l *Loader) LoadAll() ([]models.Document, error) {
	var documents []models.Document
	for _, sub := range contentSubdirs {
		dir := filepath.Join(l.root, sub)
		matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
		if err != nil {
			return nil, fmt.Errorf("loader: glob %s: %w", dir, err)
		}
		if matches == nil {
			if _, statErr := os.Stat(dir); os.IsNotExist(statErr) {
				l.logger.Warn("loader: directory not found", slog.String("dir", dir))
			}
			continue
		}
		for _, file := range matches {
			doc, err := l.LoadFile(file)
			if err != nil {
				l.logger.Warn("loader: skipping file",
					slog.String("path", file), slog.String("error", err.Error()))
				continue
			}
			documents = append(documents, *doc)
		}
	}
	l.logger.Info("loader: loaded documents",
		slog.Int("count", len(documents)), slog.String("root", l.root))
	return documents, nil
}

// LoadFile parses one YAML record into a document. The file must contain a
// top-level mapping with an "id" field.
func (l *Loader) LoadFile(path string) (*models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("loader: parse %s: %w", path, err)
	}
	id, _ := raw["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("loader: %s: missing 'id' field", path)
	}
	return &models.Document{
		ID:       id,
		Content:  FlattenDocument(raw),
		Metadata: ExtractMetadata(raw, path),
		Raw:      raw,
		Checksum: checksum.Sum(data),
	}, nil
}

// ExtractMetadata pulls the filterable fields out of a raw record. Entries
// carry a "date"; summaries carry a "date_range" whose start is used instead.
func ExtractMetadata(raw map[string]any, path string) models.Metadata {
	meta := models.Metadata{
		Type:     stringField(raw, "type", models.TypeEntry),
		Topic:    stringField(raw, "topic", ""),
		Status:   stringField(raw, "status", ""),
		FilePath: path,
		Tags:     stringList(raw["tags"]),
	}
	if d, ok := raw["date"]; ok {
		meta.Date = scalarString(d)
	} else if dr, ok := raw["date_range"].(map[string]any); ok {
		meta.Date = scalarString(dr["start"])
	}
	if li, ok := raw["last_ingested"]; ok {
		meta.LastIngested = scalarString(li)
	}
	return meta
}

// FlattenDocument renders a structured record as flat text for embedding.
// Both the entry and summary schemas are handled.
func FlattenDocument(raw map[string]any) string {
	var parts []string
	add := func(format string, args ...any) {
		parts = append(parts, fmt.Sprintf(format, args...))
	}

	if topic := stringField(raw, "topic", ""); topic != "" {
		add("Topic: %s", topic)
	}
	if summary := stringField(raw, "summary", ""); summary != "" {
		add("Summary: %s", summary)
	}
	if ctx := stringField(raw, "context", ""); ctx != "" {
		add("Context: %s", ctx)
	}
	if approach := stringField(raw, "approach", ""); approach != "" {
		add("Approach: %s", approach)
	}

	for _, item := range mapList(raw["learnings"]) {
		add("Learning: %s", stringField(item, "insight", ""))
		if ctx := stringField(item, "context", ""); ctx != "" {
			add("  Context: %s", ctx)
		}
		if details := stringField(item, "details", ""); details != "" {
			add("  Details: %s", details)
		}
	}

	for _, item := range mapList(raw["decisions"]) {
		add("Decision: %s", stringField(item, "decision", ""))
		if rationale := stringField(item, "rationale", ""); rationale != "" {
			add("  Rationale: %s", rationale)
		}
	}

	for _, q := range stringList(raw["open_questions"]) {
		add("Open question: %s", q)
	}

	if outcome, ok := raw["outcome"].(map[string]any); ok {
		for _, item := range stringList(outcome["worked"]) {
			add("Worked: %s", item)
		}
		for _, item := range stringList(outcome["failed"]) {
			add("Failed: %s", item)
		}
		for _, item := range stringList(outcome["surprised"]) {
			add("Surprised: %s", item)
		}
	}

	for _, link := range mapList(raw["links"]) {
		add("Link: %s (%s)", stringField(link, "id", ""), stringField(link, "relationship", ""))
	}

	return strings.Join(parts, "\n")
}

func stringField(m map[string]any, key, fallback string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return fallback
}

// scalarString renders a scalar of any YAML type (dates can decode as
// time.Time) as a string.
func scalarString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func mapList(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []map[string]any
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
