package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/embermind/engram/core/embedding"
	"github.com/embermind/engram/core/graph"
	"github.com/embermind/engram/core/identity"
)

const (
	maxTraits        = 10
	maxPreferences   = 10
	minVectorScore   = 0.5
	fullScanPageSize = 1000

	queryCacheCounters = 1e4
	queryCacheMaxCost  = 8 << 20 // 8MB of cached query vectors
)

// DefaultPreferenceCategories are loaded when the caller does not name any.
var DefaultPreferenceCategories = []string{"communication", "general"}

// Options tunes one retrieval.
type Options struct {
	// Query drives memory relevance. Empty means no memory retrieval.
	Query string

	// Project, when set, is included verbatim in the context.
	Project *graph.Node

	// PreferenceCategories filters which preferences load. Nil takes
	// DefaultPreferenceCategories.
	PreferenceCategories []string

	// MemoryLimit caps retrieved memories. Zero means 5.
	MemoryLimit int

	// Budget is advisory; nil takes DefaultBudget.
	Budget *Budget
}

// Engine retrieves per-turn context from the graph. The loaded persona
// identity is cached between turns; call Invalidate after persona updates.
// Query embeddings are cached so repeated or similar turns skip the
// embedding call.
type Engine struct {
	store      *graph.Store
	identities *identity.Service
	embedder   embedding.Provider
	logger     *slog.Logger

	queryCache *ristretto.Cache

	mu      sync.Mutex
	idCache *identity.Identity
}

// NewEngine wires a retrieval engine. All arguments except logger are
// required.
func NewEngine(store *graph.Store, ids *identity.Service, embedder embedding.Provider, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: queryCacheCounters,
		MaxCost:     queryCacheMaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		store:      store,
		identities: ids,
		embedder:   embedder,
		logger:     logger,
		queryCache: cache,
	}, nil
}

// Close releases the engine's caches.
func (e *Engine) Close() {
	e.queryCache.Close()
}

// Invalidate drops the cached persona identity. Until the next Retrieve
// reloads it, callers may observe the pre-update identity.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.idCache = nil
	e.mu.Unlock()
}

// Retrieve assembles the context for one turn. A graph with no persona
// yields an empty identity rather than an error; Retrieve fails only when
// the store itself does. Every memory-ranking failure degrades to a
// weaker strategy instead of erroring.
func (e *Engine) Retrieve(ctx context.Context, opts Options) (*Context, error) {
	id, err := e.cachedIdentity()
	if err != nil {
		return nil, err
	}

	query := opts.Query
	queryUsed := query
	if len(queryUsed) > 100 {
		queryUsed = queryUsed[:100]
	}

	rc := &Context{
		Identity:    id,
		RetrievedAt: time.Now().UTC(),
		QueryUsed:   queryUsed,
		Project:     opts.Project,
	}

	rc.Traits = topTraits(id.Traits)

	if query != "" {
		limit := opts.MemoryLimit
		if limit <= 0 {
			limit = 5
		}
		rc.Memories, rc.MemoriesConsidered = e.relevantMemories(ctx, id.ID, query, limit)
	}

	categories := opts.PreferenceCategories
	if categories == nil {
		categories = DefaultPreferenceCategories
	}
	rc.Preferences = topPreferences(id.Preferences, categories)

	user, err := e.identities.GetUser()
	if err != nil {
		return nil, err
	}
	rc.User = user

	return rc, nil
}

func (e *Engine) cachedIdentity() (*identity.Identity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.idCache != nil {
		return e.idCache, nil
	}
	id, err := e.identities.Load()
	if errors.Is(err, identity.ErrNoPersona) {
		// Not cached: the next Retrieve picks up a freshly seeded persona.
		return &identity.Identity{}, nil
	}
	if err != nil {
		return nil, err
	}
	e.idCache = id
	return id, nil
}

// rankStrategy is one attempt at relevance ranking. ok=false means the
// strategy could not produce results and the next one should run.
type rankStrategy func(ctx context.Context, personaID string, queryVec []float32, limit int) (mems []Memory, considered int, ok bool)

// relevantMemories runs the fallback cascade: indexed vector search, then
// full-scan scoring with write-through embedding backfill, then recency.
// Weaker strategies never outrank stronger ones because only one strategy
// ever produces the result set.
func (e *Engine) relevantMemories(ctx context.Context, personaID, query string, limit int) ([]Memory, int) {
	queryVec, err := e.queryEmbedding(ctx, query)
	if err != nil {
		e.logger.Warn("query embedding failed, using recency", "error", err)
		return e.recentMemories(personaID, limit), 0
	}

	for _, strategy := range []rankStrategy{e.indexedVectorSearch, e.fullScanSearch} {
		if mems, considered, ok := strategy(ctx, personaID, queryVec, limit); ok {
			return mems, considered
		}
	}
	return e.recentMemories(personaID, limit), 0
}

// indexedVectorSearch ranks already-persisted memory embeddings,
// restricted to memories the persona owns so another aggregate's
// memories never leak in. Not ok when nothing scores above the
// threshold, so backfill gets a chance at memories that have no stored
// vector yet.
func (e *Engine) indexedVectorSearch(_ context.Context, personaID string, queryVec []float32, limit int) ([]Memory, int, bool) {
	owned, err := e.store.GetRelated(personaID, graph.RelHasMemory, graph.DirectionOut, graph.NodeMemory, fullScanPageSize)
	if err != nil {
		e.logger.Warn("memory ownership lookup failed, using full scan", "error", err)
		return nil, 0, false
	}
	ownedIDs := make(map[string]bool, len(owned))
	for _, r := range owned {
		ownedIDs[r.ID] = true
	}

	// Over-fetch so filtering out foreign hits still fills the limit.
	scored, err := e.store.VectorSearch(queryVec, graph.NodeMemory, limit+len(ownedIDs), minVectorScore)
	if err != nil {
		e.logger.Warn("vector search failed, using full scan", "error", err)
		return nil, 0, false
	}

	mems := make([]Memory, 0, limit)
	for _, s := range scored {
		if !ownedIDs[s.ID] {
			continue
		}
		mems = append(mems, Memory{Node: s.Node, Relevance: s.Score})
		if len(mems) == limit {
			break
		}
	}
	if len(mems) == 0 {
		return nil, 0, false
	}
	return mems, len(ownedIDs), true
}

// fullScanSearch loads every persona memory and scores it in process.
// Memories without a stored embedding are embedded on the fly and the
// vector written back, so the indexed path serves them next time. A
// memory whose embedding fails scores zero but still participates.
func (e *Engine) fullScanSearch(ctx context.Context, personaID string, queryVec []float32, limit int) ([]Memory, int, bool) {
	related, err := e.store.GetRelated(personaID, graph.RelHasMemory, graph.DirectionOut, graph.NodeMemory, fullScanPageSize)
	if err != nil {
		e.logger.Warn("memory scan failed, using recency", "error", err)
		return nil, 0, false
	}

	mems := make([]Memory, 0, len(related))
	for _, r := range related {
		mem := Memory{Node: r.Node}

		vec, err := e.store.GetEmbedding(r.ID)
		if errors.Is(err, graph.ErrNotFound) {
			vec, err = e.backfillEmbedding(ctx, &r.Node)
		}
		if err != nil {
			e.logger.Warn("memory left unscored", "memory_id", r.ID, "error", err)
		} else {
			mem.Relevance = graph.CosineSimilarity(queryVec, vec)
		}
		mems = append(mems, mem)
	}

	sort.SliceStable(mems, func(i, j int) bool { return mems[i].Relevance > mems[j].Relevance })
	if len(mems) > limit {
		mems = mems[:limit]
	}
	return mems, len(related), true
}

func (e *Engine) backfillEmbedding(ctx context.Context, mem *graph.Node) ([]float32, error) {
	content := mem.Props.String("content")
	if content == "" {
		content = mem.Name
	}

	vec, err := e.embedder.Embed(ctx, content)
	if err != nil {
		return nil, err
	}
	if err := e.store.SetEmbedding(mem.ID, vec); err != nil {
		e.logger.Warn("embedding write-back failed", "memory_id", mem.ID, "error", err)
	}
	return vec, nil
}

// recentMemories is the last resort: newest first, relevance zero.
func (e *Engine) recentMemories(personaID string, limit int) []Memory {
	related, err := e.store.GetRelated(personaID, graph.RelHasMemory, graph.DirectionOut, graph.NodeMemory, limit)
	if err != nil {
		e.logger.Error("recency fallback failed", "error", err)
		return nil
	}

	mems := make([]Memory, len(related))
	for i, r := range related {
		mems[i] = Memory{Node: r.Node}
	}
	return mems
}

func (e *Engine) queryEmbedding(ctx context.Context, query string) ([]float32, error) {
	if cached, found := e.queryCache.Get(query); found {
		if vec, ok := cached.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	e.queryCache.Set(query, vec, int64(4*len(vec)))
	return vec, nil
}

func topTraits(traits []graph.Related) []graph.Related {
	sorted := make([]graph.Related, len(traits))
	copy(sorted, traits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Props.Float("strength") > sorted[j].Props.Float("strength")
	})
	if len(sorted) > maxTraits {
		sorted = sorted[:maxTraits]
	}
	return sorted
}

func topPreferences(prefs []graph.Related, categories []string) []graph.Related {
	wanted := make(map[string]bool, len(categories))
	for _, c := range categories {
		wanted[c] = true
	}

	var filtered []graph.Related
	for _, p := range prefs {
		if wanted[p.Props.String("category")] {
			filtered = append(filtered, p)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Props.Float("confidence") > filtered[j].Props.Float("confidence")
	})
	if len(filtered) > maxPreferences {
		filtered = filtered[:maxPreferences]
	}
	return filtered
}
