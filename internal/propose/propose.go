// Package propose finds the summaries a new entry should feed into and asks
// the model for structured update proposals against each.
package propose

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/algerknown/algerknown/internal/llm"
	"github.com/algerknown/algerknown/internal/models"
)

// DefaultMaxCandidates caps how many summaries one entry can target.
const DefaultMaxCandidates = 5

const (
	semanticCandidates = 10
	proposalMaxTokens  = 1024
)

// Match reasons recorded on candidates and proposals.
const (
	ReasonExplicitLink = "explicit_link"
	ReasonSemantic     = "semantic_similarity"
	ReasonTagOverlap   = "tag_overlap"
)

// SummarySource is the slice of the index the proposer needs.
type SummarySource interface {
	Summaries() ([]models.Document, error)
	Query(ctx context.Context, text string, n int, typeFilter string) ([]models.Hit, error)
}

// Candidate is a summary ranked against an entry.
type Candidate struct {
	models.Document
	Score       float64 `json:"score"`
	MatchReason string  `json:"match_reason"`
}

// Proposer generates update proposals for summaries related to new entries.
type Proposer struct {
	store  SummarySource
	client llm.Client
	logger *slog.Logger
}

func New(store SummarySource, client llm.Client, logger *slog.Logger) *Proposer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Proposer{store: store, client: client, logger: logger}
}

// RelatedSummaries ranks summaries against entry. Explicit links win
// outright, semantic neighbours score by rank, and topic or tag overlap
// boosts (or seeds) a candidate.
func (p *Proposer) RelatedSummaries(ctx context.Context, entry models.Document, maxResults int) ([]Candidate, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxCandidates
	}
	summaries, err := p.store.Summaries()
	if err != nil {
		return nil, fmt.Errorf("propose: list summaries: %w", err)
	}
	if len(summaries) == 0 {
		p.logger.Warn("propose: no summaries in index")
		return nil, nil
	}
	byID := make(map[string]models.Document, len(summaries))
	for _, s := range summaries {
		byID[s.ID] = s
	}

	candidates := map[string]*Candidate{}

	for _, linkID := range entryLinkIDs(entry) {
		if s, ok := byID[linkID]; ok {
			candidates[linkID] = &Candidate{Document: s, Score: 1.0, MatchReason: ReasonExplicitLink}
		}
	}

	hits, err := p.store.Query(ctx, entry.Content, semanticCandidates, models.TypeSummary)
	if err != nil {
		return nil, fmt.Errorf("propose: semantic search: %w", err)
	}
	for i, h := range hits {
		if _, seen := candidates[h.ID]; seen {
			continue
		}
		doc := byID[h.ID]
		if doc.ID == "" {
			doc = models.Document{ID: h.ID, Content: h.Content, Metadata: h.Metadata}
		}
		candidates[h.ID] = &Candidate{
			Document:    doc,
			Score:       0.8 - float64(i)*0.05,
			MatchReason: ReasonSemantic,
		}
	}

	entryTags := tagSet(entry.Metadata.Tags)
	for _, s := range summaries {
		if c, ok := candidates[s.ID]; ok && c.Score >= 1.0 {
			continue
		}
		var boost float64
		if entry.Metadata.Topic != "" && s.Metadata.Topic == entry.Metadata.Topic {
			boost += 0.3
		}
		common := 0
		for _, tag := range s.Metadata.Tags {
			if entryTags[tag] {
				common++
			}
		}
		boost += 0.1 * float64(common)
		if boost == 0 {
			continue
		}
		if c, ok := candidates[s.ID]; ok {
			c.Score += boost
			c.MatchReason += "," + ReasonTagOverlap
		} else {
			candidates[s.ID] = &Candidate{Document: s, Score: 0.2 + boost, MatchReason: ReasonTagOverlap}
		}
	}

	ranked := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, *c)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}
	return ranked, nil
}

// ProposeUpdates asks the model for a structured update to one summary.
func (p *Proposer) ProposeUpdates(ctx context.Context, entry models.Document, candidate Candidate) (*models.Proposal, error) {
	prompt := buildProposalPrompt(entry, candidate.Document)
	text, err := p.client.Complete(ctx, "", prompt, proposalMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("propose: complete for %s: %w", candidate.ID, err)
	}

	var proposal models.Proposal
	if err := json.Unmarshal([]byte(llm.StripCodeFence(text)), &proposal); err != nil {
		return nil, fmt.Errorf("propose: parse reply for %s: %w", candidate.ID, err)
	}
	proposal.TargetSummaryID = candidate.ID
	proposal.SourceEntryID = entry.ID
	proposal.MatchScore = candidate.Score
	proposal.MatchReason = candidate.MatchReason
	return &proposal, nil
}

// GenerateAll produces proposals for every related summary, dropping
// no-update replies and logging (not failing on) per-summary errors.
// maxProposals caps the candidate set; zero or negative means the default.
func (p *Proposer) GenerateAll(ctx context.Context, entry models.Document, maxProposals int) ([]models.Proposal, error) {
	related, err := p.RelatedSummaries(ctx, entry, maxProposals)
	if err != nil {
		return nil, err
	}
	if len(related) == 0 {
		p.logger.Info("propose: no related summaries", slog.String("entry", entry.ID))
		return nil, nil
	}

	var proposals []models.Proposal
	for _, c := range related {
		p.logger.Info("propose: generating proposal",
			slog.String("summary", c.ID),
			slog.Float64("score", c.Score))
		proposal, err := p.ProposeUpdates(ctx, entry, c)
		if err != nil {
			p.logger.Warn("propose: proposal failed",
				slog.String("summary", c.ID),
				slog.String("error", err.Error()))
			continue
		}
		if proposal.NoUpdates {
			continue
		}
		proposals = append(proposals, *proposal)
	}
	p.logger.Info("propose: proposals generated",
		slog.String("entry", entry.ID),
		slog.Int("count", len(proposals)))
	return proposals, nil
}

func buildProposalPrompt(entry, summary models.Document) string {
	return fmt.Sprintf(`You are helping maintain a personal knowledge base. A new entry has been added, and you need to propose updates to a related summary.

<new_entry>
ID: %s
Type: %s
Topic: %s

%s
</new_entry>

<existing_summary>
ID: %s
Topic: %s

%s
</existing_summary>

Based on the new entry, propose updates to the summary. Return a JSON object with these optional fields:

- "new_learnings": Array of {"insight": "...", "context": "...", "relevance": ["%s"]} objects to add
- "new_decisions": Array of {"decision": "...", "rationale": "...", "date": "YYYY-MM-DD"} objects to add
- "new_open_questions": Array of question strings to add
- "new_links": Array of {"id": "%s", "relationship": "informs|depends_on|relates_to", "notes": "..."} objects to add
- "rationale": Why these updates are relevant

Rules:
1. Only include fields where you have meaningful additions
2. Do NOT duplicate content that already exists in the summary
3. Extract specific, actionable insights from the entry
4. If the entry doesn't warrant any updates to this summary, return {"no_updates": true, "rationale": "..."}
5. Keep learnings concise but informative

Return only valid JSON, no markdown code blocks:`,
		entry.ID, entry.Metadata.Type, entry.Metadata.Topic, entry.Content,
		summary.ID, summary.Metadata.Topic, summary.Content,
		entry.ID, entry.ID)
}

// entryLinkIDs pulls the link target ids out of the raw YAML tree.
func entryLinkIDs(entry models.Document) []string {
	links, ok := entry.Raw["links"].([]any)
	if !ok {
		return nil
	}
	var ids []string
	for _, item := range links {
		link, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := link["id"].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func tagSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}
	return set
}
