package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/algerknown/algerknown/internal/kbservice"
	"github.com/algerknown/algerknown/internal/models"
	"github.com/algerknown/algerknown/internal/synth"
)

// QueryRequest is the request body for /query.
type QueryRequest struct {
	Query    string `json:"query" example:"how do folding schemes work?" validate:"required"`
	NResults int    `json:"n_results,omitempty" example:"5"`
}

// Validate checks field constraints.
func (r QueryRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Query, validation.Required),
		validation.Field(&r.NResults, validation.Min(0), validation.Max(20)),
	)
}

// QueryResponse is the synthesized answer (aliased from the domain layer).
type QueryResponse = synth.Answer

// SearchRequest is the request body for /search.
type SearchRequest struct {
	Query      string `json:"query" example:"recursion" validate:"required"`
	NResults   int    `json:"n_results,omitempty" example:"10"`
	TypeFilter string `json:"type_filter,omitempty" example:"summary"`
}

// Validate checks field constraints.
func (r SearchRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Query, validation.Required),
		validation.Field(&r.NResults, validation.Min(0), validation.Max(50)),
		validation.Field(&r.TypeFilter, validation.In("", models.TypeEntry, models.TypeSummary)),
	)
}

// SearchResponse wraps raw retrieval results.
type SearchResponse struct {
	Results []kbservice.SearchResult `json:"results" validate:"required"`
}

// IngestRequest is the request body for /ingest.
type IngestRequest struct {
	FilePath     string `json:"file_path" example:"entries/zk-note-001.yaml" validate:"required"`
	MaxProposals int    `json:"max_proposals,omitempty" example:"5"`
}

// Validate checks field constraints.
func (r IngestRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FilePath, validation.Required),
		validation.Field(&r.MaxProposals, validation.Min(0), validation.Max(20)),
	)
}

// IndexRequest is the request body for /index.
type IndexRequest struct {
	FilePath string `json:"file_path" example:"entries/zk-note-001.yaml" validate:"required"`
}

// Validate checks field constraints.
func (r IndexRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FilePath, validation.Required),
	)
}

// ProposalData is the wire form of an update proposal.
type ProposalData = models.Proposal

// ApproveRequest is the request body for /approve.
type ApproveRequest struct {
	Proposal ProposalData `json:"proposal" validate:"required"`
}

// PreviewRequest is the request body for /preview.
type PreviewRequest struct {
	Proposal ProposalData `json:"proposal" validate:"required"`
}

// ApproveResponse reports the outcome of applying a proposal.
type ApproveResponse struct {
	Success bool     `json:"success" validate:"required"`
	File    string   `json:"file,omitempty"`
	Changes []string `json:"changes,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// EntryListResponse wraps the entries listing.
type EntryListResponse struct {
	Entries []kbservice.EntryListItem `json:"entries" validate:"required"`
	Total   int                       `json:"total" example:"42" validate:"required"`
}

// SummaryListResponse wraps the summaries listing.
type SummaryListResponse struct {
	Summaries []kbservice.SummaryListItem `json:"summaries" validate:"required"`
	Total     int                         `json:"total" example:"7" validate:"required"`
}
