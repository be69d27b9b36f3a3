// Package models defines the domain types for Algerknown.
package models

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Document type values.
const (
	TypeEntry   = "entry"
	TypeSummary = "summary"
)

// Metadata carries the filterable fields extracted from a YAML record.
type Metadata struct {
	Type         string   `json:"type"`
	Topic        string   `json:"topic"`
	Status       string   `json:"status,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Date         string   `json:"date,omitempty"`
	FilePath     string   `json:"file_path"`
	LastIngested string   `json:"last_ingested,omitempty"`
}

// Document is a loaded knowledge-base record ready for indexing: the raw
// parsed YAML plus the flattened embeddable text and extracted metadata.
type Document struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata Metadata       `json:"metadata"`
	Raw      map[string]any `json:"raw,omitempty"`
	Checksum string         `json:"checksum,omitempty"`
}

// Hit is a document returned from a nearest-neighbour query, with its
// distance from the query vector (smaller is closer).
type Hit struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
	Distance float64  `json:"distance"`
}

// Learning is one insight proposed for (or held in) a summary.
type Learning struct {
	Insight   string   `json:"insight" yaml:"insight"`
	Context   string   `json:"context,omitempty" yaml:"context,omitempty"`
	Details   string   `json:"details,omitempty" yaml:"details,omitempty"`
	Relevance []string `json:"relevance,omitempty" yaml:"relevance,omitempty"`
}

// Validate checks the required insight field.
func (l Learning) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Insight, validation.Required),
	)
}

// Decision is one decision proposed for (or held in) a summary.
type Decision struct {
	Decision  string `json:"decision" yaml:"decision"`
	Rationale string `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	Date      string `json:"date,omitempty" yaml:"date,omitempty"`
}

// Validate checks the required decision field.
func (d Decision) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Decision, validation.Required),
	)
}

// LinkRef is a typed reference from one record to another.
type LinkRef struct {
	ID           string `json:"id" yaml:"id"`
	Relationship string `json:"relationship,omitempty" yaml:"relationship,omitempty"`
	Notes        string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Validate checks the required id field.
func (l LinkRef) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.ID, validation.Required),
	)
}

// Proposal is a structured update suggestion for one summary, generated
// during ingestion from a new entry.
type Proposal struct {
	TargetSummaryID  string     `json:"target_summary_id"`
	SourceEntryID    string     `json:"source_entry_id"`
	NewLearnings     []Learning `json:"new_learnings,omitempty"`
	NewDecisions     []Decision `json:"new_decisions,omitempty"`
	NewOpenQuestions []string   `json:"new_open_questions,omitempty"`
	NewLinks         []LinkRef  `json:"new_links,omitempty"`
	Rationale        string     `json:"rationale,omitempty"`
	MatchScore       float64    `json:"match_score,omitempty"`
	MatchReason      string     `json:"match_reason,omitempty"`
	NoUpdates        bool       `json:"no_updates,omitempty"`
}

// Validate checks the proposal structure before it is applied. Element
// validation runs through each slice member's own Validate.
func (p Proposal) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.TargetSummaryID, validation.Required),
		validation.Field(&p.SourceEntryID, validation.Required),
		validation.Field(&p.NewLearnings),
		validation.Field(&p.NewDecisions),
		validation.Field(&p.NewLinks),
	)
}
