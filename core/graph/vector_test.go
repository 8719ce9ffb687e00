package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0, 0}, []float32{1, 0, 0}), 1e-6)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0, 0}, []float32{0, 1, 0}), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)

	// Degenerate inputs score zero rather than erroring.
	assert.Zero(t, CosineSimilarity(nil, []float32{1, 0}))
	assert.Zero(t, CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}

func TestEmbeddingRoundTrip(t *testing.T) {
	store := setupTestStore(t)

	node, err := store.CreateNode(NodeMemory, "remember this", nil)
	require.NoError(t, err)

	vec := []float32{0.1, -0.5, 0.25, 3}
	require.NoError(t, store.SetEmbedding(node.ID, vec))

	got, err := store.GetEmbedding(node.ID)
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	// Overwrite replaces the stored vector.
	require.NoError(t, store.SetEmbedding(node.ID, []float32{1, 2, 3, 4}))
	got, err = store.GetEmbedding(node.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, got)

	_, err = store.GetEmbedding("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestVectorSearchRanking(t *testing.T) {
	store := setupTestStore(t)

	seed := []struct {
		name string
		vec  []float32
	}{
		{"exact", []float32{1, 0, 0}},
		{"close", []float32{0.9, 0.1, 0}},
		{"far", []float32{0, 1, 0}},
	}
	for _, s := range seed {
		node, err := store.CreateNode(NodeMemory, s.name, nil)
		require.NoError(t, err)
		require.NoError(t, store.SetEmbedding(node.ID, s.vec))
	}

	results, err := store.VectorSearch([]float32{1, 0, 0}, NodeMemory, 10, 0.0)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "exact", results[0].Node.Name)
	assert.Equal(t, "close", results[1].Node.Name)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
	}
	for _, r := range results {
		assert.InDelta(t, r.Score, r.VectorScore, 1e-9)
	}
}

func TestVectorSearchMinScore(t *testing.T) {
	store := setupTestStore(t)

	hi, err := store.CreateNode(NodeMemory, "hi", nil)
	require.NoError(t, err)
	require.NoError(t, store.SetEmbedding(hi.ID, []float32{1, 0}))

	lo, err := store.CreateNode(NodeMemory, "lo", nil)
	require.NoError(t, err)
	require.NoError(t, store.SetEmbedding(lo.ID, []float32{0, 1}))

	results, err := store.VectorSearch([]float32{1, 0}, NodeMemory, 10, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "hi", results[0].Node.Name)
}

func TestVectorSearchTypeScoped(t *testing.T) {
	store := setupTestStore(t)

	mem, err := store.CreateNode(NodeMemory, "m", nil)
	require.NoError(t, err)
	require.NoError(t, store.SetEmbedding(mem.ID, []float32{1, 0}))

	doc, err := store.CreateNode(NodeDocument, "d", nil)
	require.NoError(t, err)
	require.NoError(t, store.SetEmbedding(doc.ID, []float32{1, 0}))

	results, err := store.VectorSearch([]float32{1, 0}, NodeDocument, 10, 0.0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d", results[0].Node.Name)
}

func TestVectorSearchSkipsMismatchedDimensions(t *testing.T) {
	store := setupTestStore(t)

	a, err := store.CreateNode(NodeMemory, "a", nil)
	require.NoError(t, err)
	require.NoError(t, store.SetEmbedding(a.ID, []float32{1, 0, 0}))

	b, err := store.CreateNode(NodeMemory, "b", nil)
	require.NoError(t, err)
	require.NoError(t, store.SetEmbedding(b.ID, []float32{1, 0}))

	results, err := store.VectorSearch([]float32{1, 0, 0}, NodeMemory, 10, 0.0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Node.Name)
}

func TestStoreChunkWithEmbedding(t *testing.T) {
	store := setupTestStore(t)

	doc, err := store.CreateNode(NodeDocument, "handbook", nil)
	require.NoError(t, err)

	chunk, err := store.StoreChunkWithEmbedding(
		"Chapter one covers onboarding and the first-week checklist in detail.",
		[]float32{0.5, 0.5}, doc.ID, 0, Properties{"page": 1})
	require.NoError(t, err)
	assert.Equal(t, NodeChunk, chunk.Type)
	assert.Equal(t, 0, chunk.Props.Int("chunk_index"))

	vec, err := store.GetEmbedding(chunk.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, vec)

	chunks, err := store.GetRelated(doc.ID, RelHasChunk, DirectionOut, NodeChunk, 10)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, chunk.ID, chunks[0].ID)
}

func TestStoreEntityWithEmbeddingUpserts(t *testing.T) {
	store := setupTestStore(t)

	first, err := store.StoreEntityWithEmbedding("PostgreSQL", "technology", []float32{1, 0}, "a database", nil)
	require.NoError(t, err)

	second, err := store.StoreEntityWithEmbedding("PostgreSQL", "technology", []float32{0, 1}, "a relational database", nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	vec, err := store.GetEmbedding(first.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, vec)

	count, err := store.CountNodes(NodeEntity)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
