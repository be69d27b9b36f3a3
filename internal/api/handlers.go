package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/algerknown/algerknown/internal/apperr"
	"github.com/algerknown/algerknown/internal/kbservice"
	"github.com/algerknown/algerknown/internal/sse"
)

// Handler holds API route handlers.
type Handler struct {
	svc    *kbservice.Service
	broker *sse.Broker
}

// NewHandler creates a new Handler. broker may be nil when SSE is disabled.
func NewHandler(svc *kbservice.Service, broker *sse.Broker) *Handler {
	return &Handler{svc: svc, broker: broker}
}

func (h *Handler) publishRecordEvent(kind, id string) {
	if h.broker != nil {
		h.broker.PublishRecordEvent(kind, id)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{ Validate() error }) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if err := v.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

// Health handles GET /health.
//
//	@Summary		Health check with index size
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	kbservice.Health
//	@Router			/health [get]
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Health())
}

// Query handles POST /query.
//
//	@Summary		Query the knowledge base and get a synthesized answer
//	@Tags			query
//	@Accept			json
//	@Produce		json
//	@Param			body	body		QueryRequest	true	"Query"
//	@Success		200		{object}	QueryResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/query [post]
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	answer, err := h.svc.Query(r.Context(), req.Query, req.NResults)
	if err != nil {
		slog.Error("query failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// Search handles POST /search.
//
//	@Summary		Search the knowledge base without synthesis
//	@Tags			query
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SearchRequest	true	"Search"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [post]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	results, err := h.svc.Search(r.Context(), req.Query, req.NResults, req.TypeFilter)
	if err != nil {
		slog.Error("search failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Ingest handles POST /ingest.
//
//	@Summary		Ingest an entry and generate update proposals
//	@Tags			ingest
//	@Accept			json
//	@Produce		json
//	@Param			body	body		IngestRequest	true	"Entry file"
//	@Success		200		{object}	kbservice.IngestResult
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ingest [post]
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.svc.Ingest(r.Context(), req.FilePath, req.MaxProposals)
	if err != nil {
		h.writeIngestError(w, req.FilePath, err)
		return
	}
	h.publishRecordEvent(sse.KindIngested, result.EntryID)
	writeJSON(w, http.StatusOK, result)
}

// Index handles POST /index.
//
//	@Summary		Index an entry without proposals or an ingest stamp
//	@Tags			ingest
//	@Accept			json
//	@Produce		json
//	@Param			body	body		IndexRequest	true	"Entry file"
//	@Success		200		{object}	map[string]string
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/index [post]
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	var req IndexRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := h.svc.IndexFile(r.Context(), req.FilePath)
	if err != nil {
		h.writeIngestError(w, req.FilePath, err)
		return
	}
	h.publishRecordEvent(sse.KindIndexed, id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "indexed", "id": id})
}

func (h *Handler) writeIngestError(w http.ResponseWriter, path string, err error) {
	switch {
	case errors.Is(err, apperr.ErrOutsideContentDir):
		writeJSON(w, http.StatusBadRequest, errorBody("file must be within the content directory"))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("entry file not found"))
	case errors.Is(err, apperr.ErrInvalidEntry):
		writeJSON(w, http.StatusBadRequest, errorBody("invalid entry file"))
	default:
		slog.Error("ingest failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// Approve handles POST /approve.
//
//	@Summary		Apply an approved proposal to its target summary
//	@Tags			ingest
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ApproveRequest	true	"Proposal"
//	@Success		200		{object}	ApproveResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/approve [post]
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	result, err := h.svc.Approve(r.Context(), req.Proposal)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrInvalidEntry), errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusOK, ApproveResponse{Success: false, Error: err.Error()})
		default:
			slog.Error("approve failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	h.publishRecordEvent(sse.KindUpdated, req.Proposal.TargetSummaryID)
	writeJSON(w, http.StatusOK, ApproveResponse{
		Success: result.Success,
		File:    result.File,
		Changes: result.Changes,
	})
}

// Preview handles POST /preview.
//
//	@Summary		Preview what changes a proposal would make
//	@Tags			ingest
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PreviewRequest	true	"Proposal"
//	@Success		200		{object}	writer.Preview
//	@Security		BearerAuth
//	@Router			/preview [post]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	preview, err := h.svc.Preview(req.Proposal)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// Reindex handles POST /reindex.
//
//	@Summary		Reload and reindex the whole content directory
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	map[string]int
//	@Security		BearerAuth
//	@Router			/reindex [post]
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Reindex(r.Context())
	if err != nil {
		slog.Error("reindex failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"indexed": n})
}

// ListEntries handles GET /entries.
//
//	@Summary		List indexed records, summaries first
//	@Tags			entries
//	@Produce		json
//	@Success		200	{object}	EntryListResponse
//	@Security		BearerAuth
//	@Router			/entries [get]
func (h *Handler) ListEntries(w http.ResponseWriter, _ *http.Request) {
	entries := h.svc.Entries()
	writeJSON(w, http.StatusOK, EntryListResponse{Entries: entries, Total: len(entries)})
}

// GetEntry handles GET /entries/{id}.
//
//	@Summary		Get one record by id
//	@Tags			entries
//	@Produce		json
//	@Param			id	path		string	true	"Record id"
//	@Success		200	{object}	models.Document
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entries/{id} [get]
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.svc.Entry(id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("entry not found"))
		} else {
			slog.Error("get entry failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// EntryHistory handles GET /entries/{id}/history.
//
//	@Summary		Get the change history of one record
//	@Tags			changelog
//	@Produce		json
//	@Param			id		path		string	true	"Record id"
//	@Param			limit	query		int		false	"Max records"
//	@Success		200		{object}	kbservice.HistoryPage
//	@Security		BearerAuth
//	@Router			/entries/{id}/history [get]
func (h *Handler) EntryHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page, err := h.svc.EntryHistory(id, limit)
	if err != nil {
		slog.Error("entry history failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// ListSummaries handles GET /summaries.
//
//	@Summary		List summary records
//	@Tags			entries
//	@Produce		json
//	@Success		200	{object}	SummaryListResponse
//	@Security		BearerAuth
//	@Router			/summaries [get]
func (h *Handler) ListSummaries(w http.ResponseWriter, _ *http.Request) {
	summaries, err := h.svc.Summaries()
	if err != nil {
		slog.Error("list summaries failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, SummaryListResponse{Summaries: summaries, Total: len(summaries)})
}

// Changelog handles GET /changelog.
//
//	@Summary		Read recent changes with optional filters
//	@Tags			changelog
//	@Produce		json
//	@Param			limit		query		int		false	"Max records"
//	@Param			source		query		string	false	"Filter by source file"
//	@Param			path		query		string	false	"Filter by node path prefix"
//	@Param			change_type	query		string	false	"Filter by change type"	Enums(added, modified, removed)
//	@Success		200			{object}	kbservice.ChangelogPage
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/changelog [get]
func (h *Handler) Changelog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	page, err := h.svc.Changelog(limit, q.Get("source"), q.Get("path"), q.Get("change_type"))
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidEntry) {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid change_type, must be: added, modified, removed"))
		} else {
			slog.Error("changelog failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// ChangelogSources handles GET /changelog/sources.
//
//	@Summary		List distinct source files in the changelog
//	@Tags			changelog
//	@Produce		json
//	@Success		200	{object}	map[string][]string
//	@Security		BearerAuth
//	@Router			/changelog/sources [get]
func (h *Handler) ChangelogSources(w http.ResponseWriter, _ *http.Request) {
	sources, err := h.svc.ChangelogSources()
	if err != nil {
		slog.Error("changelog sources failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sources": sources})
}

// ChangelogStats handles GET /changelog/stats.
//
//	@Summary		Changelog statistics
//	@Tags			changelog
//	@Produce		json
//	@Success		200	{object}	kbservice.ChangelogStats
//	@Security		BearerAuth
//	@Router			/changelog/stats [get]
func (h *Handler) ChangelogStats(w http.ResponseWriter, _ *http.Request) {
	stats, err := h.svc.ChangelogStats()
	if err != nil {
		slog.Error("changelog stats failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
