// Package identity manages the persona half of the cognitive graph: the
// assistant's persona node, its traits, memories, and learned preferences,
// and the user node it is adapted for. All state lives in the graph store;
// this package owns the node shapes and linking conventions.
package identity

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/embermind/engram/core/graph"
)

// ErrNoPersona is returned when an operation needs a persona and none has
// been seeded yet.
var ErrNoPersona = errors.New("identity: no persona in graph")

// Service exposes persona lifecycle operations over a graph store.
type Service struct {
	store  *graph.Store
	logger *slog.Logger
}

// NewService wraps store. A nil logger defaults to slog.Default.
func NewService(store *graph.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Identity is the loaded persona with its attached nodes.
type Identity struct {
	ID                 string
	Name               string
	Tagline            string
	PersonalitySummary string
	VoiceDescription   string
	CommunicationStyle string
	CoreValues         []string
	Interests          []string
	Quirks             []string
	Traits             []graph.Related
	Memories           []graph.Related
	Preferences        []graph.Related
}

// TraitSeed describes one initial trait.
type TraitSeed struct {
	Name        string
	Description string
	Type        string // "core" or "adaptive"
}

// MemorySeed describes the persona's founding memory.
type MemorySeed struct {
	Title   string
	Content string
	Type    string
}

// Seed is everything needed to create a persona from scratch.
type Seed struct {
	Name               string
	Tagline            string
	PersonalitySummary string
	VoiceDescription   string
	CommunicationStyle string
	CoreValues         []string
	Interests          []string
	Quirks             []string
	Model              string
	InitialTraits      []TraitSeed
	InitialMemory      *MemorySeed
}

// EnsureUser upserts the primary user node, matched by first name. The
// graph holds a single user.
func (s *Service) EnsureUser(firstName, lastName string, props graph.Properties) (*graph.Node, error) {
	if firstName == "" {
		return nil, fmt.Errorf("%w: user first name required", graph.ErrValidation)
	}

	name := firstName
	if lastName != "" {
		name = firstName + " " + lastName
	}

	merged := props.Clone()
	if merged == nil {
		merged = graph.Properties{}
	}
	merged["first_name"] = firstName
	if lastName != "" {
		merged["last_name"] = lastName
	}

	user, created, err := s.store.GetOrCreateNode(graph.NodeUser, name, "first_name", firstName, merged)
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("created user node", "user_id", user.ID, "name", name)
	}
	return user, nil
}

// GetUser returns the primary user node, or nil when none exists.
func (s *Service) GetUser() (*graph.Node, error) {
	nodes, err := s.store.FindNodes(graph.NodeUser, nil, 1)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return &nodes[0], nil
}

// EnsurePersona returns the existing persona or creates one from seed,
// including its initial traits and founding memory. When a user node
// exists the persona is linked to it with ADAPTED_FOR.
func (s *Service) EnsurePersona(seed Seed) (*Identity, bool, error) {
	existing, err := s.persona()
	if err != nil && !errors.Is(err, ErrNoPersona) {
		return nil, false, err
	}
	if existing != nil {
		id, err := s.Load()
		return id, false, err
	}

	if seed.Name == "" {
		return nil, false, fmt.Errorf("%w: persona name required", graph.ErrValidation)
	}

	props := graph.Properties{
		"tagline":                 seed.Tagline,
		"personality_summary":     seed.PersonalitySummary,
		"voice_description":       seed.VoiceDescription,
		"communication_style":     seed.CommunicationStyle,
		"core_values":             seed.CoreValues,
		"interests":               seed.Interests,
		"quirks":                  seed.Quirks,
		"model":                   seed.Model,
		"initialization_complete": true,
		"conversation_count":      0,
	}
	persona, err := s.store.CreateNode(graph.NodePersona, seed.Name, props)
	if err != nil {
		return nil, false, fmt.Errorf("create persona: %w", err)
	}

	for _, trait := range seed.InitialTraits {
		if _, err := s.RecordTrait(trait.Name, trait.Description, trait.Type, 0.8); err != nil {
			return nil, false, fmt.Errorf("seed trait %q: %w", trait.Name, err)
		}
	}
	if mem := seed.InitialMemory; mem != nil {
		if _, err := s.RecordMemory(mem.Title, mem.Content, mem.Type, "thoughtful"); err != nil {
			return nil, false, fmt.Errorf("seed memory: %w", err)
		}
	}

	user, err := s.GetUser()
	if err != nil {
		return nil, false, err
	}
	if user != nil {
		if _, err := s.store.CreateRelationship(persona.ID, user.ID, graph.RelAdaptedFor, nil); err != nil {
			return nil, false, err
		}
	}

	s.logger.Info("seeded persona", "persona_id", persona.ID, "name", seed.Name,
		"traits", len(seed.InitialTraits))

	id, err := s.Load()
	return id, true, err
}

// Load reads the persona and its attached traits, memories, and
// preferences from the graph.
func (s *Service) Load() (*Identity, error) {
	persona, err := s.persona()
	if err != nil {
		return nil, err
	}

	traits, err := s.store.GetRelated(persona.ID, graph.RelHasTrait, graph.DirectionOut, graph.NodeTrait, 50)
	if err != nil {
		return nil, err
	}
	memories, err := s.store.GetRelated(persona.ID, graph.RelHasMemory, graph.DirectionOut, graph.NodeMemory, 100)
	if err != nil {
		return nil, err
	}
	prefs, err := s.store.GetRelated(persona.ID, graph.RelLearnedPreference, graph.DirectionOut, graph.NodePreference, 50)
	if err != nil {
		return nil, err
	}

	return &Identity{
		ID:                 persona.ID,
		Name:               persona.Name,
		Tagline:            persona.Props.String("tagline"),
		PersonalitySummary: persona.Props.String("personality_summary"),
		VoiceDescription:   persona.Props.String("voice_description"),
		CommunicationStyle: persona.Props.String("communication_style"),
		CoreValues:         persona.Props.StringList("core_values"),
		Interests:          persona.Props.StringList("interests"),
		Quirks:             persona.Props.StringList("quirks"),
		Traits:             traits,
		Memories:           memories,
		Preferences:        prefs,
	}, nil
}

// IncrementConversationCount bumps the persona's conversation counter.
func (s *Service) IncrementConversationCount() error {
	persona, err := s.persona()
	if err != nil {
		return err
	}
	count := persona.Props.Int("conversation_count")
	_, err = s.store.UpdateNode(persona.ID, graph.Properties{"conversation_count": count + 1})
	return err
}

func (s *Service) persona() (*graph.Node, error) {
	nodes, err := s.store.FindNodes(graph.NodePersona, nil, 1)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, ErrNoPersona
	}
	return &nodes[0], nil
}
