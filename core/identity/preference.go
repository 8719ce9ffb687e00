package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/embermind/engram/core/graph"
)

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// UpsertPreference records a learned preference, merged by name. Repeated
// observations overwrite the value and confidence and increment
// observation_count, so often-seen preferences can be weighted higher.
func (s *Service) UpsertPreference(name, value, category string, confidence float64) (*graph.Node, error) {
	persona, err := s.persona()
	if err != nil {
		return nil, err
	}
	if category == "" {
		category = "general"
	}
	if confidence == 0 {
		confidence = 0.5
	}

	existing, err := s.store.FindNodeByName(graph.NodePreference, name)
	if err != nil && !errors.Is(err, graph.ErrNotFound) {
		return nil, err
	}

	var pref *graph.Node
	if existing != nil {
		count := existing.Props.Int("observation_count")
		if _, err := s.store.UpdateNode(existing.ID, graph.Properties{
			"value":             value,
			"confidence":        confidence,
			"observation_count": count + 1,
		}); err != nil {
			return nil, err
		}
		pref, err = s.store.GetNode(existing.ID)
		if err != nil {
			return nil, err
		}
	} else {
		pref, err = s.store.CreateNode(graph.NodePreference, name, graph.Properties{
			"value":             value,
			"category":          category,
			"confidence":        confidence,
			"observation_count": 1,
		})
		if err != nil {
			return nil, fmt.Errorf("create preference: %w", err)
		}
	}

	// Link is idempotent across repeated observations.
	if _, err := s.store.LinkOnce(persona.ID, pref.ID, graph.RelLearnedPreference); err != nil {
		return nil, err
	}
	return pref, nil
}

// PersonaUpdates is the batch of changes produced by a persona reflection
// cycle.
type PersonaUpdates struct {
	NewTraits          []TraitSeed
	NewMemories        []MemorySeed
	PreferencesLearned []PreferenceUpdate
	NewQuirks          []string
}

// PreferenceUpdate is one learned preference in a PersonaUpdates batch.
type PreferenceUpdate struct {
	Name       string
	Value      string
	Category   string
	Confidence float64
}

// ApplyPersonaUpdates writes a reflection cycle's output to the graph and
// stamps the persona with the cycle time. Returns how many nodes were
// touched.
func (s *Service) ApplyPersonaUpdates(updates PersonaUpdates) (int, error) {
	persona, err := s.persona()
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, trait := range updates.NewTraits {
		if _, err := s.RecordTrait(trait.Name, trait.Description, trait.Type, 0.6); err != nil {
			return applied, err
		}
		applied++
	}
	for _, mem := range updates.NewMemories {
		if _, err := s.RecordMemory(mem.Title, mem.Content, mem.Type, ""); err != nil {
			return applied, err
		}
		applied++
	}
	for _, pref := range updates.PreferencesLearned {
		if _, err := s.UpsertPreference(pref.Name, pref.Value, pref.Category, pref.Confidence); err != nil {
			return applied, err
		}
		applied++
	}

	props := graph.Properties{"last_persona_cycle": nowStamp()}
	if len(updates.NewQuirks) > 0 {
		quirks := append(persona.Props.StringList("quirks"), updates.NewQuirks...)
		props["quirks"] = quirks
		applied += len(updates.NewQuirks)
	}
	if _, err := s.store.UpdateNode(persona.ID, props); err != nil {
		return applied, err
	}

	s.logger.Info("applied persona updates",
		"traits", len(updates.NewTraits),
		"memories", len(updates.NewMemories),
		"preferences", len(updates.PreferencesLearned),
		"quirks", len(updates.NewQuirks))
	return applied, nil
}
