package vectorindex

import (
	"context"
	"math"
	"testing"
)

func TestUsableKey(t *testing.T) {
	cases := []struct {
		key  string
		want bool
	}{
		{"", false},
		{"sk-...", false},
		{"test-key", false},
		{"not-a-key", false},
		{"sk-abc123", true},
	}
	for _, c := range cases {
		if got := usableKey(c.key); got != c.want {
			t.Errorf("usableKey(%q) = %v, want %v", c.key, got, c.want)
		}
	}
}

func TestNewEmbedderFallsBackToLocal(t *testing.T) {
	e := NewEmbedder("", "", false, nil)
	if _, ok := e.(*localEmbedder); !ok {
		t.Fatalf("expected local embedder, got %T", e)
	}
	e = NewEmbedder("sk-realkey", "", true, nil)
	if _, ok := e.(*localEmbedder); !ok {
		t.Fatalf("forceLocal should win over the key, got %T", e)
	}
}

func TestLocalEmbedderDeterministic(t *testing.T) {
	e := &localEmbedder{dim: localEmbedderDim}
	a, err := e.Embed(context.Background(), []string{"zero knowledge proofs"})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.Embed(context.Background(), []string{"zero knowledge proofs"})
	if cosineDistance(a[0], b[0]) > 1e-9 {
		t.Error("same text should embed identically")
	}
}

func TestLocalEmbedderNormalized(t *testing.T) {
	e := &localEmbedder{dim: localEmbedderDim}
	vecs, err := e.Embed(context.Background(), []string{"alpha beta gamma"})
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	for _, v := range vecs[0] {
		sum += float64(v) * float64(v)
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Errorf("vector norm^2 = %v, want 1", sum)
	}
}

func TestLocalEmbedderRelatedTextsCloser(t *testing.T) {
	e := &localEmbedder{dim: localEmbedderDim}
	vecs, err := e.Embed(context.Background(), []string{
		"zero knowledge proof circuits",
		"zero knowledge proof systems",
		"sourdough bread hydration",
	})
	if err != nil {
		t.Fatal(err)
	}
	near := cosineDistance(vecs[0], vecs[1])
	far := cosineDistance(vecs[0], vecs[2])
	if near >= far {
		t.Errorf("related distance %v should beat unrelated %v", near, far)
	}
}
