// Package retrieval assembles the per-turn context for the agent: persona
// identity, traits, relevant memories, preferences, and project/user
// context, rendered into a bounded system prompt. Memory relevance runs a
// strict fallback cascade from indexed vector search down to plain recency.
package retrieval

// Budget allocates rough token counts to each context bucket. The budget
// is advisory: sections are capped by item counts and character
// truncation rather than exact token accounting.
type Budget struct {
	CoreIdentity   int
	Traits         int
	Memories       int
	Preferences    int
	ProjectContext int
	UserContext    int
}

// DefaultBudget returns the standard allocation.
func DefaultBudget() Budget {
	return Budget{
		CoreIdentity:   500,
		Traits:         300,
		Memories:       800,
		Preferences:    300,
		ProjectContext: 500,
		UserContext:    300,
	}
}

// Total is the whole prompt's budget.
func (b Budget) Total() int {
	return b.CoreIdentity + b.Traits + b.Memories +
		b.Preferences + b.ProjectContext + b.UserContext
}
