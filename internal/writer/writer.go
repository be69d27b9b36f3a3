// Package writer applies approved update proposals to summary YAML files.
package writer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/algerknown/algerknown/internal/apperr"
	"github.com/algerknown/algerknown/internal/models"
)

// Result reports what an applied proposal changed.
type Result struct {
	Success   bool     `json:"success"`
	File      string   `json:"file,omitempty"`
	SummaryID string   `json:"summary_id,omitempty"`
	Changes   []string `json:"changes"`
	Message   string   `json:"message,omitempty"`
}

// Preview reports what a proposal would change, without touching the file.
type Preview struct {
	Valid                 bool   `json:"valid"`
	File                  string `json:"file,omitempty"`
	SummaryID             string `json:"summary_id,omitempty"`
	CurrentLearningsCount int    `json:"current_learnings_count"`
	CurrentDecisionsCount int    `json:"current_decisions_count"`
	CurrentQuestionsCount int    `json:"current_questions_count"`
	CurrentLinksCount     int    `json:"current_links_count"`
	ProposedNewLearnings  int    `json:"proposed_new_learnings"`
	ProposedNewDecisions  int    `json:"proposed_new_decisions"`
	ProposedNewQuestions  int    `json:"proposed_new_questions"`
	ProposedNewLinks      int    `json:"proposed_new_links"`
}

// Writer mutates summary files under one content directory.
type Writer struct {
	contentDir string
	logger     *slog.Logger
}

func New(contentDir string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{contentDir: contentDir, logger: logger}
}

// FindSummaryFile locates the YAML file whose id field matches summaryID.
// The summaries directory is checked first, then entries in case the record
// is mistyped. Returns apperr.ErrNotFound when no file carries the id.
func (w *Writer) FindSummaryFile(summaryID string) (string, error) {
	for _, subdir := range []string{"summaries", "entries"} {
		files, err := filepath.Glob(filepath.Join(w.contentDir, subdir, "*.yaml"))
		if err != nil {
			return "", fmt.Errorf("writer: glob %s: %w", subdir, err)
		}
		for _, file := range files {
			raw, err := os.ReadFile(file)
			if err != nil {
				w.logger.Warn("writer: unreadable file", slog.String("path", file))
				continue
			}
			var doc map[string]any
			if err := yaml.Unmarshal(raw, &doc); err != nil {
				w.logger.Warn("writer: unparseable file", slog.String("path", file))
				continue
			}
			if id, _ := doc["id"].(string); id == summaryID {
				return file, nil
			}
		}
	}
	return "", fmt.Errorf("writer: summary file for %s: %w", summaryID, apperr.ErrNotFound)
}

// Apply validates the proposal and appends its additions to the target
// summary, skipping anything already present. The file is rewritten only
// when at least one change lands.
func (w *Writer) Apply(proposal models.Proposal) (*Result, error) {
	if err := proposal.Validate(); err != nil {
		return nil, fmt.Errorf("writer: %w: %v", apperr.ErrInvalidEntry, err)
	}

	file, err := w.FindSummaryFile(proposal.TargetSummaryID)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("writer: read %s: %w", file, err)
	}
	var summary map[string]any
	if err := yaml.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("writer: parse %s: %w", file, err)
	}

	changes := applyToTree(summary, proposal)
	result := &Result{
		Success:   true,
		File:      file,
		SummaryID: proposal.TargetSummaryID,
		Changes:   changes,
	}
	if len(changes) == 0 {
		result.Changes = []string{}
		result.Message = "No new changes to apply (all proposed updates already exist)"
		return result, nil
	}

	out, err := yaml.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("writer: marshal %s: %w", file, err)
	}
	if err := os.WriteFile(file, out, 0o644); err != nil {
		return nil, fmt.Errorf("writer: write %s: %w", file, err)
	}
	w.logger.Info("writer: applied proposal",
		slog.String("file", file),
		slog.Int("changes", len(changes)))
	return result, nil
}

// PreviewUpdate summarizes what Apply would do, without writing.
func (w *Writer) PreviewUpdate(proposal models.Proposal) (*Preview, error) {
	if err := proposal.Validate(); err != nil {
		return nil, fmt.Errorf("writer: %w: %v", apperr.ErrInvalidEntry, err)
	}
	file, err := w.FindSummaryFile(proposal.TargetSummaryID)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("writer: read %s: %w", file, err)
	}
	var summary map[string]any
	if err := yaml.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("writer: parse %s: %w", file, err)
	}
	return &Preview{
		Valid:                 true,
		File:                  file,
		SummaryID:             proposal.TargetSummaryID,
		CurrentLearningsCount: listLen(summary, "learnings"),
		CurrentDecisionsCount: listLen(summary, "decisions"),
		CurrentQuestionsCount: listLen(summary, "open_questions"),
		CurrentLinksCount:     listLen(summary, "links"),
		ProposedNewLearnings:  len(proposal.NewLearnings),
		ProposedNewDecisions:  len(proposal.NewDecisions),
		ProposedNewQuestions:  len(proposal.NewOpenQuestions),
		ProposedNewLinks:      len(proposal.NewLinks),
	}, nil
}

func applyToTree(summary map[string]any, proposal models.Proposal) []string {
	var changes []string

	if len(proposal.NewLearnings) > 0 {
		existing := stringValues(summary, "learnings", "insight")
		items, _ := summary["learnings"].([]any)
		for _, l := range proposal.NewLearnings {
			if existing[l.Insight] {
				continue
			}
			if !contains(l.Relevance, proposal.SourceEntryID) {
				l.Relevance = append(l.Relevance, proposal.SourceEntryID)
			}
			items = append(items, learningTree(l))
			existing[l.Insight] = true
			changes = append(changes, "Added learning: "+clip(l.Insight))
		}
		summary["learnings"] = items
	}

	if len(proposal.NewDecisions) > 0 {
		existing := stringValues(summary, "decisions", "decision")
		items, _ := summary["decisions"].([]any)
		for _, d := range proposal.NewDecisions {
			if existing[d.Decision] {
				continue
			}
			if d.Date == "" {
				d.Date = time.Now().Format("2006-01-02")
			}
			items = append(items, decisionTree(d))
			existing[d.Decision] = true
			changes = append(changes, "Added decision: "+clip(d.Decision))
		}
		summary["decisions"] = items
	}

	if len(proposal.NewOpenQuestions) > 0 {
		items, _ := summary["open_questions"].([]any)
		existing := make(map[string]bool, len(items))
		for _, q := range items {
			if s, ok := q.(string); ok {
				existing[s] = true
			}
		}
		for _, q := range proposal.NewOpenQuestions {
			if existing[q] {
				continue
			}
			items = append(items, q)
			existing[q] = true
			changes = append(changes, "Added question: "+clip(q))
		}
		summary["open_questions"] = items
	}

	if len(proposal.NewLinks) > 0 {
		existing := stringValues(summary, "links", "id")
		items, _ := summary["links"].([]any)
		for _, link := range proposal.NewLinks {
			if existing[link.ID] {
				continue
			}
			items = append(items, linkTree(link))
			existing[link.ID] = true
			changes = append(changes, "Added link: "+link.ID)
		}
		summary["links"] = items
	}

	return changes
}

func learningTree(l models.Learning) map[string]any {
	tree := map[string]any{"insight": l.Insight}
	if l.Context != "" {
		tree["context"] = l.Context
	}
	if l.Details != "" {
		tree["details"] = l.Details
	}
	if len(l.Relevance) > 0 {
		rel := make([]any, len(l.Relevance))
		for i, r := range l.Relevance {
			rel[i] = r
		}
		tree["relevance"] = rel
	}
	return tree
}

func decisionTree(d models.Decision) map[string]any {
	tree := map[string]any{"decision": d.Decision, "date": d.Date}
	if d.Rationale != "" {
		tree["rationale"] = d.Rationale
	}
	return tree
}

func linkTree(l models.LinkRef) map[string]any {
	tree := map[string]any{"id": l.ID}
	if l.Relationship != "" {
		tree["relationship"] = l.Relationship
	}
	if l.Notes != "" {
		tree["notes"] = l.Notes
	}
	return tree
}

// stringValues collects field values from the named list of mappings for
// duplicate detection.
func stringValues(summary map[string]any, listKey, field string) map[string]bool {
	set := map[string]bool{}
	items, _ := summary[listKey].([]any)
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			if v, ok := m[field].(string); ok {
				set[v] = true
			}
		}
	}
	return set
}

func listLen(summary map[string]any, key string) int {
	items, _ := summary[key].([]any)
	return len(items)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func clip(s string) string {
	if len(s) <= 50 {
		return s
	}
	return s[:50] + "..."
}
