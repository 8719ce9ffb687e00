package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embermind/engram/core/graph"
	"github.com/embermind/engram/core/identity"
)

func trait(name, description string) graph.Related {
	return graph.Related{Node: graph.Node{
		Type: graph.NodeTrait, Name: name,
		Props: graph.Properties{"description": description},
	}}
}

func pref(name, value string) graph.Related {
	return graph.Related{Node: graph.Node{
		Type: graph.NodePreference, Name: name,
		Props: graph.Properties{"value": value},
	}}
}

func memory(content string) Memory {
	return Memory{Node: graph.Node{
		Type: graph.NodeMemory, Name: "m",
		Props: graph.Properties{"content": content},
	}}
}

func TestToSystemPromptSectionOrder(t *testing.T) {
	rc := &Context{
		Identity: &identity.Identity{
			Name:               "Iris",
			Tagline:            "curious by default",
			PersonalitySummary: "warm and precise",
			CoreValues:         []string{"honesty", "curiosity"},
			CommunicationStyle: "direct",
		},
		Traits:      []graph.Related{trait("curious", "asks follow-ups")},
		Memories:    []Memory{memory("the user ships on fridays")},
		Preferences: []graph.Related{pref("reply_length", "short")},
		User:        &graph.Node{Type: graph.NodeUser, Name: "Sam"},
		Project:     &graph.Node{Type: graph.NodeProject, Name: "Engram", Props: graph.Properties{"description": "memory layer"}},
	}

	prompt := rc.ToSystemPrompt()

	markers := []string{
		"You are Iris, curious by default.",
		"warm and precise",
		"Core values: honesty, curiosity",
		"Communication style: direct",
		"Personality traits:",
		"- curious: asks follow-ups",
		"Relevant memories/observations:",
		"- the user ships on fridays",
		"User preferences:",
		"- reply_length: short",
		"You are assisting Sam.",
		"Current project: Engram",
		"Remember: You ARE Iris. Speak authentically as yourself.",
	}

	last := -1
	for _, marker := range markers {
		idx := strings.Index(prompt, marker)
		require.GreaterOrEqual(t, idx, 0, "missing %q", marker)
		assert.Greater(t, idx, last, "%q out of order", marker)
		last = idx
	}
}

func TestToSystemPromptOmitsEmptyBuckets(t *testing.T) {
	rc := &Context{Identity: &identity.Identity{Name: "Iris", Tagline: "here"}}
	prompt := rc.ToSystemPrompt()

	assert.NotContains(t, prompt, "Personality traits:")
	assert.NotContains(t, prompt, "Relevant memories")
	assert.NotContains(t, prompt, "User preferences:")
	assert.NotContains(t, prompt, "You are assisting")
	assert.NotContains(t, prompt, "Current project:")
	assert.Contains(t, prompt, "Communication style: conversational")
}

func TestToSystemPromptDefaultsWithoutIdentity(t *testing.T) {
	rc := &Context{}
	prompt := rc.ToSystemPrompt()
	assert.Contains(t, prompt, "You are Assistant, your helpful companion.")
	assert.Contains(t, prompt, "Remember: You ARE Assistant.")
}

func TestToSystemPromptCapsAndTruncates(t *testing.T) {
	long := strings.Repeat("x", 350)
	rc := &Context{
		Identity: &identity.Identity{Name: "Iris"},
		Memories: []Memory{memory(long), memory("two"), memory("three"), memory("four")},
		Traits: []graph.Related{
			trait("t1", ""), trait("t2", ""), trait("t3", ""),
			trait("t4", ""), trait("t5", ""), trait("t6", ""),
		},
	}

	prompt := rc.ToSystemPrompt()

	assert.Contains(t, prompt, strings.Repeat("x", 200))
	assert.NotContains(t, prompt, strings.Repeat("x", 201), "memory content capped at 200 chars")
	assert.NotContains(t, prompt, "- four", "only top three memories render")
	assert.Contains(t, prompt, "- t5:")
	assert.NotContains(t, prompt, "- t6:", "only top five traits render")
}

func TestBudgetTotal(t *testing.T) {
	b := DefaultBudget()
	assert.Equal(t, 2700, b.Total())
	assert.Equal(t, 500, b.CoreIdentity)
}
