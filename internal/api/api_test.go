package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/algerknown/algerknown/internal/diffengine"
	"github.com/algerknown/algerknown/internal/kbservice"
	"github.com/algerknown/algerknown/internal/loader"
	"github.com/algerknown/algerknown/internal/models"
	"github.com/algerknown/algerknown/internal/propose"
	"github.com/algerknown/algerknown/internal/synth"
	"github.com/algerknown/algerknown/internal/testutil"
	"github.com/algerknown/algerknown/internal/writer"
)

const testEntryYAML = `id: zk-note-001
type: entry
topic: zk-proofs
tags:
  - recursion
summary: Notes on recursive proof composition
learnings:
  - insight: Recursion lets a verifier check proofs of proofs
links:
  - id: zk-summary
    relationship: informs
`

const testSummaryYAML = `id: zk-summary
type: summary
topic: zk-proofs
tags:
  - recursion
summary: Running summary of zero knowledge proof work
learnings:
  - insight: SNARKs need trusted setup ceremonies
`

type stubLLM struct{}

func (stubLLM) Complete(_ context.Context, _, prompt string, _ int) (string, error) {
	if strings.Contains(prompt, "propose updates to a related summary") {
		return `{"new_learnings": [{"insight": "Recursion halves verifier cost"}], "rationale": "new"}`, nil
	}
	return "Recursion composes proofs [zk-note-001].", nil
}

// testEnv sets up a temp content dir, vector store, service, and router.
// authEnabled=false means disabled mode; authEnabled=true with non-empty
// token means token mode.
func testEnv(t *testing.T, authToken string) (*kbservice.Service, http.Handler) {
	t.Helper()

	dir := testutil.TestContentDir(t)
	testutil.WriteYAML(t, dir, "entries/zk-note-001.yaml", testEntryYAML)
	testutil.WriteYAML(t, dir, "summaries/zk-summary.yaml", testSummaryYAML)

	ld, err := loader.New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	store := testutil.TestStore(t)

	stateDir := t.TempDir()
	changelog, err := diffengine.NewChangelog(filepath.Join(stateDir, "changelog.jsonl"), nil)
	if err != nil {
		t.Fatal(err)
	}
	cache, err := diffengine.NewVersionCache(filepath.Join(stateDir, ".version_cache"), nil)
	if err != nil {
		t.Fatal(err)
	}

	client := stubLLM{}
	svc := kbservice.New(ld, store,
		diffengine.NewEngine(changelog, cache, nil),
		propose.New(store, client, nil),
		synth.New(client, 0, nil),
		writer.New(dir, nil),
		nil)
	if _, err := svc.Reindex(context.Background()); err != nil {
		t.Fatal(err)
	}

	router := NewRouter(svc, nil, authToken != "", authToken, nil)
	return svc, router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealthEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	w := doJSON(t, router, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	h := decode[kbservice.Health](t, w)
	if h.Status != "healthy" || h.DocumentsIndexed != 2 {
		t.Errorf("health = %+v", h)
	}
}

func TestHealthBypassesAuth(t *testing.T) {
	_, router := testEnv(t, "secret")
	w := doJSON(t, router, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("health should not require auth, got %d", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/entries", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("entries without token = %d, want 401", w.Code)
	}
}

func TestAuthToken(t *testing.T) {
	_, router := testEnv(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/entries", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("with token = %d, want 200", w.Code)
	}
}

func TestQueryEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	w := doJSON(t, router, http.MethodPost, "/query", QueryRequest{Query: "recursive proofs"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	ans := decode[QueryResponse](t, w)
	if !strings.Contains(ans.Answer, "[zk-note-001]") {
		t.Errorf("answer = %q", ans.Answer)
	}
}

func TestQueryRequiresQuery(t *testing.T) {
	_, router := testEnv(t, "")
	w := doJSON(t, router, http.MethodPost, "/query", QueryRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSearchEndpointTypeFilter(t *testing.T) {
	_, router := testEnv(t, "")
	w := doJSON(t, router, http.MethodPost, "/search", SearchRequest{Query: "proof", NResults: 10, TypeFilter: models.TypeSummary})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[SearchResponse](t, w)
	if len(resp.Results) != 1 || resp.Results[0].ID != "zk-summary" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearchRejectsUnknownType(t *testing.T) {
	_, router := testEnv(t, "")
	w := doJSON(t, router, http.MethodPost, "/search", SearchRequest{Query: "x", TypeFilter: "draft"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestIngestEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	w := doJSON(t, router, http.MethodPost, "/ingest", IngestRequest{FilePath: "entries/zk-note-001.yaml"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	res := decode[kbservice.IngestResult](t, w)
	if res.EntryID != "zk-note-001" || len(res.Proposals) == 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestIngestOutsideContentDir(t *testing.T) {
	_, router := testEnv(t, "")
	w := doJSON(t, router, http.MethodPost, "/ingest", IngestRequest{FilePath: "../escape.yaml"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestIngestMissingEntry(t *testing.T) {
	_, router := testEnv(t, "")
	w := doJSON(t, router, http.MethodPost, "/ingest", IngestRequest{FilePath: "entries/ghost.yaml"})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestIndexEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	w := doJSON(t, router, http.MethodPost, "/index", IndexRequest{FilePath: "entries/zk-note-001.yaml"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[map[string]string](t, w)
	if resp["status"] != "indexed" || resp["id"] != "zk-note-001" {
		t.Errorf("resp = %v", resp)
	}
}

func TestApproveAndChangelogFlow(t *testing.T) {
	_, router := testEnv(t, "")
	proposal := models.Proposal{
		TargetSummaryID: "zk-summary",
		SourceEntryID:   "zk-note-001",
		NewLearnings:    []models.Learning{{Insight: "Folding amortizes verification"}},
	}
	w := doJSON(t, router, http.MethodPost, "/approve", ApproveRequest{Proposal: proposal})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[ApproveResponse](t, w)
	if !resp.Success || len(resp.Changes) != 1 {
		t.Errorf("approve = %+v", resp)
	}

	w = doJSON(t, router, http.MethodGet, "/changelog", nil)
	page := decode[kbservice.ChangelogPage](t, w)
	if page.Total == 0 {
		t.Error("approve should have produced changelog records")
	}

	w = doJSON(t, router, http.MethodGet, "/changelog/stats", nil)
	stats := decode[kbservice.ChangelogStats](t, w)
	if stats.TotalChanges == 0 {
		t.Errorf("stats = %+v", stats)
	}

	w = doJSON(t, router, http.MethodGet, "/changelog/sources", nil)
	sources := decode[map[string][]string](t, w)
	if len(sources["sources"]) == 0 {
		t.Error("expected at least one source")
	}
}

func TestApproveInvalidProposal(t *testing.T) {
	_, router := testEnv(t, "")
	w := doJSON(t, router, http.MethodPost, "/approve", ApproveRequest{
		Proposal: models.Proposal{SourceEntryID: "zk-note-001"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[ApproveResponse](t, w)
	if resp.Success || resp.Error == "" {
		t.Errorf("approve = %+v, want failure with error", resp)
	}
}

func TestPreviewEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	w := doJSON(t, router, http.MethodPost, "/preview", PreviewRequest{
		Proposal: models.Proposal{
			TargetSummaryID: "zk-summary",
			SourceEntryID:   "zk-note-001",
			NewLearnings:    []models.Learning{{Insight: "x"}},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	pv := decode[writer.Preview](t, w)
	if !pv.Valid || pv.ProposedNewLearnings != 1 {
		t.Errorf("preview = %+v", pv)
	}
}

func TestEntriesEndpoints(t *testing.T) {
	_, router := testEnv(t, "")
	w := doJSON(t, router, http.MethodGet, "/entries", nil)
	list := decode[EntryListResponse](t, w)
	if list.Total != 2 || list.Entries[0].ID != "zk-summary" {
		t.Errorf("list = %+v", list)
	}

	w = doJSON(t, router, http.MethodGet, "/entries/zk-note-001", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	doc := decode[models.Document](t, w)
	if doc.ID != "zk-note-001" || doc.Metadata.Topic != "zk-proofs" {
		t.Errorf("doc = %+v", doc)
	}

	w = doJSON(t, router, http.MethodGet, "/entries/ghost", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestEntryHistoryEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	if w := doJSON(t, router, http.MethodPost, "/ingest", IngestRequest{FilePath: "entries/zk-note-001.yaml"}); w.Code != http.StatusOK {
		t.Fatalf("ingest failed: %d", w.Code)
	}
	w := doJSON(t, router, http.MethodGet, "/entries/zk-note-001/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	page := decode[kbservice.HistoryPage](t, w)
	if page.EntryID != "zk-note-001" || page.Total == 0 {
		t.Errorf("history = %+v", page)
	}
}

func TestSummariesEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	w := doJSON(t, router, http.MethodGet, "/summaries", nil)
	resp := decode[SummaryListResponse](t, w)
	if resp.Total != 1 || resp.Summaries[0].ID != "zk-summary" {
		t.Errorf("summaries = %+v", resp)
	}
}

func TestChangelogRejectsBadType(t *testing.T) {
	_, router := testEnv(t, "")
	w := doJSON(t, router, http.MethodGet, "/changelog?change_type=renamed", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestReindexEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	w := doJSON(t, router, http.MethodPost, "/reindex", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[map[string]int](t, w)
	if resp["indexed"] != 2 {
		t.Errorf("indexed = %d", resp["indexed"])
	}
}
