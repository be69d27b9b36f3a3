// Package synth turns retrieved documents into a synthesized, cited answer.
package synth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/algerknown/algerknown/internal/llm"
	"github.com/algerknown/algerknown/internal/models"
)

const (
	// DefaultMaxContextTokens bounds how much retrieved content is fed to
	// the model, with a rough four-chars-per-token estimate.
	DefaultMaxContextTokens = 12000

	answerMaxTokens = 1024
)

const answerInstructions = `You are a knowledge assistant helping query a personal knowledge base about ZK proofs, privacy, cryptography, and related topics.

Based on the retrieved documents below, answer the user's query.

Rules:
- Synthesize information across documents when relevant
- Cite specific document IDs when making claims using this format: [document-id]
- If the documents don't contain relevant information, say so clearly
- Be concise and direct
- Prioritize learnings and decisions from the documents
- If there are open questions related to the query, mention them`

// Answer is a synthesized reply plus the ids of the documents it drew on.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
	Model   string   `json:"model,omitempty"`
}

// Synthesizer formats retrieved hits into a prompt and asks the model.
type Synthesizer struct {
	client           llm.Client
	maxContextTokens int
	logger           *slog.Logger
}

func New(client llm.Client, maxContextTokens int, logger *slog.Logger) *Synthesizer {
	if maxContextTokens <= 0 {
		maxContextTokens = DefaultMaxContextTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{client: client, maxContextTokens: maxContextTokens, logger: logger}
}

// Synthesize answers query from hits. Retrieved content is packed in ranked
// order until the context budget runs out; sources lists only the documents
// that made it into the prompt.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, hits []models.Hit) (*Answer, error) {
	var (
		parts      []string
		totalChars int
	)
	maxChars := s.maxContextTokens * 4
	for _, h := range hits {
		docType := h.Metadata.Type
		if docType == "" {
			docType = models.TypeEntry
		}
		part := fmt.Sprintf("<document id=%q type=%q topic=%q>\n%s\n</document>",
			h.ID, docType, h.Metadata.Topic, h.Content)
		if totalChars+len(part) > maxChars {
			s.logger.Warn("synth: context truncated", slog.Int("documents", len(parts)))
			break
		}
		parts = append(parts, part)
		totalChars += len(part)
	}

	prompt := fmt.Sprintf(`%s

<retrieved_documents>
%s
</retrieved_documents>

<query>%s</query>

Provide a synthesized answer with citations:`, answerInstructions, strings.Join(parts, "\n\n"), query)

	text, err := s.client.Complete(ctx, "", prompt, answerMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("synth: synthesize answer: %w", err)
	}

	sources := make([]string, len(parts))
	for i := range parts {
		sources[i] = hits[i].ID
	}
	return &Answer{Answer: text, Sources: sources}, nil
}
