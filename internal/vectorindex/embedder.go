package vectorindex

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder turns texts into dense vectors for similarity search.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// DefaultEmbeddingModel is used when the config does not name one.
const DefaultEmbeddingModel = string(openai.SmallEmbedding3)

// localEmbedderDim is the dimensionality of the fallback embedder.
const localEmbedderDim = 256

// NewEmbedder selects the embedding backend. A usable OpenAI key selects the
// API embedder; otherwise (or when forceLocal is set) a deterministic local
// hashed-token embedder is used so the system works offline.
func NewEmbedder(apiKey, model string, forceLocal bool, logger *slog.Logger) Embedder {
	if logger == nil {
		logger = slog.Default()
	}
	if forceLocal {
		logger.Info("vectorindex: using local embeddings (forced)")
		return &localEmbedder{dim: localEmbedderDim}
	}
	if usableKey(apiKey) {
		if model == "" {
			model = DefaultEmbeddingModel
		}
		logger.Info("vectorindex: using OpenAI embeddings", slog.String("model", model))
		return &openAIEmbedder{
			client: openai.NewClient(apiKey),
			model:  openai.EmbeddingModel(model),
		}
	}
	logger.Info("vectorindex: using local embeddings (no usable API key)")
	return &localEmbedder{dim: localEmbedderDim}
}

// usableKey filters out placeholder and test keys.
func usableKey(key string) bool {
	return key != "" && strings.HasPrefix(key, "sk-") && key != "sk-..." && !strings.HasPrefix(key, "test")
}

type openAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func (e *openAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorindex: create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("vectorindex: got %d embeddings for %d texts", len(resp.Data), len(texts))
	}
	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// localEmbedder is a deterministic bag-of-hashed-tokens embedder. It is no
// substitute for a trained model but gives stable, useful-enough neighbours
// for offline development and tests.
type localEmbedder struct {
	dim int
}

func (e *localEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, e.dim)
		for _, token := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(strings.Trim(token, ".,:;()[]\"'")))
			vec[h.Sum32()%uint32(e.dim)]++
		}
		normalize(vec)
		vectors[i] = vec
	}
	return vectors, nil
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
