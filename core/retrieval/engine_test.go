package retrieval

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embermind/engram/core/embedding"
	"github.com/embermind/engram/core/graph"
	"github.com/embermind/engram/core/identity"
)

// mapEmbedder returns fixed vectors per text so ranking is fully
// controlled. Unknown texts get the fallback vector.
type mapEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
	calls    int
}

func (m *mapEmbedder) Dimension() int    { return 2 }
func (m *mapEmbedder) ModelName() string { return "map" }

func (m *mapEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.calls++
	if vec, ok := m.vectors[text]; ok {
		return vec, nil
	}
	return m.fallback, nil
}

func (m *mapEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Dimension() int    { return 2 }
func (failingEmbedder) ModelName() string { return "failing" }
func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedder offline")
}
func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedder offline")
}

func setupGraph(t *testing.T) (*graph.Store, *identity.Service) {
	t.Helper()
	store, err := graph.Open(filepath.Join(t.TempDir(), "retrieval.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := identity.NewService(store, nil)
	_, _, err = svc.EnsurePersona(identity.Seed{
		Name:               "Iris",
		Tagline:            "curious by default",
		PersonalitySummary: "warm and precise",
		CommunicationStyle: "direct",
		CoreValues:         []string{"honesty"},
		InitialTraits: []identity.TraitSeed{
			{Name: "curious", Description: "asks follow-ups", Type: "core"},
		},
	})
	require.NoError(t, err)
	return store, svc
}

func newEngine(t *testing.T, store *graph.Store, svc *identity.Service, p embedding.Provider) *Engine {
	t.Helper()
	engine, err := NewEngine(store, svc, p, nil)
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

func TestRetrieveAssemblesContext(t *testing.T) {
	store, svc := setupGraph(t)
	_, err := svc.EnsureUser("Sam", "", nil)
	require.NoError(t, err)
	_, err = svc.UpsertPreference("reply_length", "short", "communication", 0.9)
	require.NoError(t, err)
	_, err = svc.UpsertPreference("theme", "dark", "ui", 0.9)
	require.NoError(t, err)

	engine := newEngine(t, store, svc, embedding.NewLocalProvider(16))

	rc, err := engine.Retrieve(context.Background(), Options{Query: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "Iris", rc.Identity.Name)
	assert.Equal(t, "Sam", rc.User.Name)
	require.Len(t, rc.Preferences, 1, "only default categories load")
	assert.Equal(t, "reply_length", rc.Preferences[0].Name)
	assert.NotEmpty(t, rc.Traits)
	assert.False(t, rc.RetrievedAt.IsZero())
	assert.Equal(t, "hello", rc.QueryUsed)
}

func TestRetrieveTruncatesQueryUsed(t *testing.T) {
	store, svc := setupGraph(t)
	engine := newEngine(t, store, svc, embedding.NewLocalProvider(16))

	long := strings.Repeat("q", 300)
	rc, err := engine.Retrieve(context.Background(), Options{Query: long})
	require.NoError(t, err)
	assert.Len(t, rc.QueryUsed, 100)
}

func TestFullScanBackfillsThenIndexedServes(t *testing.T) {
	store, svc := setupGraph(t)

	emb := &mapEmbedder{
		vectors: map[string][]float32{
			"likes sqlite":   {1, 0},
			"likes postgres": {0.8, 0.6},
			"likes cooking":  {0, 1},
			"query":          {1, 0},
		},
		fallback: []float32{0, 0},
	}

	for _, content := range []string{"likes sqlite", "likes postgres", "likes cooking"} {
		_, err := svc.RecordMemory(content, content, "observation", "")
		require.NoError(t, err)
	}

	engine := newEngine(t, store, svc, emb)

	// No stored vectors yet: the indexed path yields nothing, the full
	// scan scores everything and writes embeddings back.
	rc, err := engine.Retrieve(context.Background(), Options{Query: "query", MemoryLimit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, rc.MemoriesConsidered)
	require.Len(t, rc.Memories, 2)
	assert.Equal(t, "likes sqlite", rc.Memories[0].Props.String("content"))
	assert.Equal(t, "likes postgres", rc.Memories[1].Props.String("content"))
	assert.InDelta(t, 1.0, rc.Memories[0].Relevance, 1e-6)
	assert.Greater(t, rc.Memories[0].Relevance, rc.Memories[1].Relevance)

	// The backfill persisted every embedding.
	mems, err := store.FindNodes(graph.NodeMemory, nil, 10)
	require.NoError(t, err)
	for _, m := range mems {
		_, err := store.GetEmbedding(m.ID)
		assert.NoError(t, err, "memory %q should have a stored vector", m.Name)
	}

	// Second retrieval is served by the indexed path: same ranking, and
	// only memories above the score threshold return.
	before := emb.calls
	rc2, err := engine.Retrieve(context.Background(), Options{Query: "query", MemoryLimit: 5})
	require.NoError(t, err)
	assert.Equal(t, 3, rc2.MemoriesConsidered)
	require.Len(t, rc2.Memories, 2, "orthogonal memory scores below 0.5")
	assert.Equal(t, "likes sqlite", rc2.Memories[0].Props.String("content"))
	assert.LessOrEqual(t, emb.calls-before, 1, "indexed path needs at most the query embedding")
}

func TestIndexedSearchScopedToPersonaMemories(t *testing.T) {
	store, svc := setupGraph(t)

	emb := &mapEmbedder{
		vectors:  map[string][]float32{"query": {1, 0}},
		fallback: []float32{0, 1},
	}

	owned, err := svc.RecordMemory("owned", "owned memory", "observation", "")
	require.NoError(t, err)
	require.NoError(t, store.SetEmbedding(owned.ID, []float32{1, 0}))

	// A memory node nothing links to the persona, indexed with a perfect
	// score for the query.
	foreign, err := store.CreateNode(graph.NodeMemory, "foreign", graph.Properties{"content": "foreign memory"})
	require.NoError(t, err)
	require.NoError(t, store.SetEmbedding(foreign.ID, []float32{1, 0}))

	engine := newEngine(t, store, svc, emb)

	rc, err := engine.Retrieve(context.Background(), Options{Query: "query", MemoryLimit: 5})
	require.NoError(t, err)
	require.Len(t, rc.Memories, 1)
	assert.Equal(t, owned.ID, rc.Memories[0].ID)
	assert.Equal(t, 1, rc.MemoriesConsidered)
}

func TestEmbeddingFailureFallsBackToRecency(t *testing.T) {
	store, svc := setupGraph(t)

	_, err := svc.RecordMemory("older", "older memory", "", "")
	require.NoError(t, err)
	_, err = svc.RecordMemory("newer", "newer memory", "", "")
	require.NoError(t, err)

	engine := newEngine(t, store, svc, failingEmbedder{})

	rc, err := engine.Retrieve(context.Background(), Options{Query: "anything", MemoryLimit: 5})
	require.NoError(t, err)
	assert.Equal(t, 0, rc.MemoriesConsidered, "recency fallback reports zero considered")
	require.Len(t, rc.Memories, 2)
	assert.Equal(t, "newer", rc.Memories[0].Name)
	for _, m := range rc.Memories {
		assert.Zero(t, m.Relevance)
	}
}

func TestEmptyQuerySkipsMemoryRetrieval(t *testing.T) {
	store, svc := setupGraph(t)
	_, err := svc.RecordMemory("something", "content", "", "")
	require.NoError(t, err)

	emb := &mapEmbedder{fallback: []float32{1, 0}}
	engine := newEngine(t, store, svc, emb)

	rc, err := engine.Retrieve(context.Background(), Options{})
	require.NoError(t, err)
	assert.Empty(t, rc.Memories)
	assert.Zero(t, rc.MemoriesConsidered)
	assert.Zero(t, emb.calls)
}

func TestRetrieveOnEmptyGraph(t *testing.T) {
	store, err := graph.Open(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine := newEngine(t, store, identity.NewService(store, nil), embedding.NewLocalProvider(8))

	rc, err := engine.Retrieve(context.Background(), Options{Query: "hello"})
	require.NoError(t, err, "an unseeded graph degrades, it does not fail")
	assert.Empty(t, rc.Identity.Name)
	assert.Empty(t, rc.Traits)
	assert.Empty(t, rc.Memories)
	assert.Zero(t, rc.MemoriesConsidered)
	assert.Nil(t, rc.User)

	// Seeding afterwards is picked up without an explicit Invalidate.
	svc := identity.NewService(store, nil)
	_, _, err = svc.EnsurePersona(identity.Seed{Name: "Iris"})
	require.NoError(t, err)

	rc, err = engine.Retrieve(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "Iris", rc.Identity.Name)
}

func TestInvalidateReloadsIdentity(t *testing.T) {
	store, svc := setupGraph(t)
	engine := newEngine(t, store, svc, embedding.NewLocalProvider(8))

	rc, err := engine.Retrieve(context.Background(), Options{})
	require.NoError(t, err)
	initial := len(rc.Traits)

	_, err = svc.RecordTrait("patient", "slows down", "adaptive", 0.7)
	require.NoError(t, err)

	// Cached identity still serves the old traits.
	rc, err = engine.Retrieve(context.Background(), Options{})
	require.NoError(t, err)
	assert.Len(t, rc.Traits, initial)

	engine.Invalidate()
	rc, err = engine.Retrieve(context.Background(), Options{})
	require.NoError(t, err)
	assert.Len(t, rc.Traits, initial+1)
}

func TestTraitsOrderedByStrength(t *testing.T) {
	store, svc := setupGraph(t)
	_, err := svc.RecordTrait("weak", "", "adaptive", 0.2)
	require.NoError(t, err)
	_, err = svc.RecordTrait("strong", "", "core", 0.95)
	require.NoError(t, err)

	engine := newEngine(t, store, svc, embedding.NewLocalProvider(8))
	rc, err := engine.Retrieve(context.Background(), Options{})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(rc.Traits), 3)
	assert.Equal(t, "strong", rc.Traits[0].Name)
	assert.Equal(t, "weak", rc.Traits[len(rc.Traits)-1].Name)
}
