package retrieval

import (
	"fmt"
	"strings"
	"time"

	"github.com/embermind/engram/core/graph"
	"github.com/embermind/engram/core/identity"
)

// Prompt assembly caps. Memories beyond the first three and traits or
// preferences beyond the first five never reach the prompt regardless of
// what retrieval returned.
const (
	maxPromptTraits      = 5
	maxPromptMemories    = 3
	maxPromptPreferences = 5
	memoryContentCap     = 200
	projectDescCap       = 200
)

// Memory is a retrieved memory with its relevance to the query. Relevance
// is 0 for recency-fallback results.
type Memory struct {
	graph.Node
	Relevance float64
}

// Context holds everything retrieved for one turn.
type Context struct {
	Identity    *identity.Identity
	Traits      []graph.Related
	Memories    []Memory
	Preferences []graph.Related
	Project     *graph.Node
	User        *graph.Node

	// Retrieval metadata.
	RetrievedAt        time.Time
	QueryUsed          string
	MemoriesConsidered int
}

// ToSystemPrompt renders the context into the agent's system prompt.
// Section order is fixed; empty buckets are omitted entirely rather than
// rendered as empty headings.
func (c *Context) ToSystemPrompt() string {
	var sections []string

	name := "Assistant"
	tagline := "your helpful companion"
	if c.Identity != nil {
		if c.Identity.Name != "" {
			name = c.Identity.Name
		}
		if c.Identity.Tagline != "" {
			tagline = c.Identity.Tagline
		}
	}
	sections = append(sections, fmt.Sprintf("You are %s, %s.", name, tagline))

	if c.Identity != nil {
		if c.Identity.PersonalitySummary != "" {
			sections = append(sections, c.Identity.PersonalitySummary)
		}
		if len(c.Identity.CoreValues) > 0 {
			sections = append(sections, "Core values: "+strings.Join(c.Identity.CoreValues, ", "))
		}
	}

	style := "conversational"
	if c.Identity != nil && c.Identity.CommunicationStyle != "" {
		style = c.Identity.CommunicationStyle
	}
	sections = append(sections, "Communication style: "+style)

	if len(c.Traits) > 0 {
		var lines []string
		for _, t := range capRelated(c.Traits, maxPromptTraits) {
			lines = append(lines, fmt.Sprintf("- %s: %s", t.Name, t.Props.String("description")))
		}
		sections = append(sections, "Personality traits:\n"+strings.Join(lines, "\n"))
	}

	if len(c.Memories) > 0 {
		var lines []string
		for i, m := range c.Memories {
			if i == maxPromptMemories {
				break
			}
			content := m.Props.String("content")
			if content == "" {
				content = m.Name
			}
			if len(content) > memoryContentCap {
				content = content[:memoryContentCap]
			}
			lines = append(lines, "- "+content)
		}
		sections = append(sections, "Relevant memories/observations:\n"+strings.Join(lines, "\n"))
	}

	if len(c.Preferences) > 0 {
		var lines []string
		for _, p := range capRelated(c.Preferences, maxPromptPreferences) {
			lines = append(lines, fmt.Sprintf("- %s: %s", p.Name, p.Props.String("value")))
		}
		sections = append(sections, "User preferences:\n"+strings.Join(lines, "\n"))
	}

	if c.User != nil {
		sections = append(sections, fmt.Sprintf("You are assisting %s.", c.User.Name))
	}

	if c.Project != nil {
		desc := c.Project.Props.String("description")
		if len(desc) > projectDescCap {
			desc = desc[:projectDescCap]
		}
		sections = append(sections, fmt.Sprintf("Current project: %s\n%s", c.Project.Name, desc))
	}

	sections = append(sections, fmt.Sprintf("\nRemember: You ARE %s. Speak authentically as yourself.", name))

	return strings.Join(sections, "\n\n")
}

func capRelated(in []graph.Related, n int) []graph.Related {
	if len(in) > n {
		return in[:n]
	}
	return in
}
