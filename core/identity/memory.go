package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/embermind/engram/core/graph"
)

// RecordTrait attaches a new trait to the persona. strength is 0..1; the
// persona cycle uses 0.8 for seeded core traits and 0.6 for adaptive ones.
func (s *Service) RecordTrait(name, description, traitType string, strength float64) (*graph.Node, error) {
	persona, err := s.persona()
	if err != nil {
		return nil, err
	}
	if traitType == "" {
		traitType = "adaptive"
	}

	trait, err := s.store.CreateNode(graph.NodeTrait, name, graph.Properties{
		"description": description,
		"trait_type":  traitType,
		"strength":    strength,
	})
	if err != nil {
		return nil, fmt.Errorf("record trait: %w", err)
	}
	if _, err := s.store.CreateRelationship(persona.ID, trait.ID, graph.RelHasTrait, nil); err != nil {
		return nil, err
	}
	return trait, nil
}

// RecordMemory attaches a new episodic memory to the persona.
func (s *Service) RecordMemory(title, content, memoryType, emotionalTone string) (*graph.Node, error) {
	persona, err := s.persona()
	if err != nil {
		return nil, err
	}
	if memoryType == "" {
		memoryType = "observation"
	}

	props := graph.Properties{
		"content":     content,
		"memory_type": memoryType,
		"times_used":  0,
	}
	if emotionalTone != "" {
		props["emotional_tone"] = emotionalTone
	}

	memory, err := s.store.CreateNode(graph.NodeMemory, title, props)
	if err != nil {
		return nil, fmt.Errorf("record memory: %w", err)
	}
	if _, err := s.store.CreateRelationship(persona.ID, memory.ID, graph.RelHasMemory, nil); err != nil {
		return nil, err
	}
	return memory, nil
}

// MarkMemoryUsed increments a memory's usage counter and stamps when it
// last surfaced in a prompt. Missing memories are ignored.
func (s *Service) MarkMemoryUsed(memoryID string) error {
	node, err := s.store.GetNode(memoryID)
	if errors.Is(err, graph.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.store.UpdateNode(memoryID, graph.Properties{
		"times_used": node.Props.Int("times_used") + 1,
		"last_used":  time.Now().UTC().Format(time.RFC3339),
	})
	return err
}

// RecordInsight stores a standalone insight node. sourceType describes
// how it was learned ("conversation", "research").
func (s *Service) RecordInsight(insight, sourceType string, confidence float64) (*graph.Node, error) {
	if sourceType == "" {
		sourceType = "conversation"
	}
	if confidence == 0 {
		confidence = 0.7
	}

	name := insight
	if len(name) > 80 {
		name = name[:80] + "..."
	}
	return s.store.CreateNode(graph.NodeInsight, name, graph.Properties{
		"insight":     insight,
		"source_type": sourceType,
		"confidence":  confidence,
	})
}
