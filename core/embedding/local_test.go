package embedding

import (
	"context"
	"math"
	"testing"
)

func TestLocalProviderDeterministic(t *testing.T) {
	p := NewLocalProvider(0)
	ctx := context.Background()

	a, err := p.Embed(ctx, "the quick brown fox")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := p.Embed(ctx, "the quick brown fox")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if len(a) != localDefaultDimension {
		t.Fatalf("dimension = %d, want %d", len(a), localDefaultDimension)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestLocalProviderNormalized(t *testing.T) {
	p := NewLocalProvider(128)

	vec, err := p.Embed(context.Background(), "normalize me please")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	var mag float64
	for _, v := range vec {
		mag += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(mag)-1.0) > 1e-5 {
		t.Errorf("magnitude = %v, want 1", math.Sqrt(mag))
	}
}

func TestLocalProviderSimilarTextsScoreHigher(t *testing.T) {
	p := NewLocalProvider(0)
	ctx := context.Background()

	base, _ := p.Embed(ctx, "golang database migration tooling")
	near, _ := p.Embed(ctx, "golang database migration scripts")
	far, _ := p.Embed(ctx, "chocolate cake recipe with frosting")

	if dot(base, near) <= dot(base, far) {
		t.Errorf("near sim %v <= far sim %v", dot(base, near), dot(base, far))
	}
}

func TestLocalProviderEmptyText(t *testing.T) {
	p := NewLocalProvider(0)

	vec, err := p.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for _, v := range vec {
		if v != 0 {
			t.Fatal("empty text should produce the zero vector")
		}
	}
}

func TestLocalProviderBatch(t *testing.T) {
	p := NewLocalProvider(0)
	ctx := context.Background()

	vecs, err := p.EmbedBatch(ctx, []string{"one", "two", "one"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors", len(vecs))
	}
	single, _ := p.Embed(ctx, "one")
	for i := range single {
		if vecs[0][i] != single[i] || vecs[2][i] != single[i] {
			t.Fatal("batch and single embeddings disagree")
		}
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
