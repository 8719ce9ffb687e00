// Package graph provides the typed property-graph store backing the
// cognitive memory layer. Nodes and relationships persist to SQLite;
// free-text search is served by a Bleve index and similarity search by
// full-scan cosine over stored embeddings.
package graph

import (
	"encoding/json"
	"fmt"
	"time"
)

// NodeType partitions nodes into schemas.
type NodeType string

const (
	NodeUser         NodeType = "User"
	NodePersona      NodeType = "Persona"
	NodeTrait        NodeType = "Trait"
	NodeMemory       NodeType = "Memory"
	NodePreference   NodeType = "Preference"
	NodePerson       NodeType = "Person"
	NodeOrganization NodeType = "Organization"
	NodeProject      NodeType = "Project"
	NodeCycle        NodeType = "Cycle"
	NodeTask         NodeType = "Task"
	NodeGoal         NodeType = "Goal"
	NodeInsight      NodeType = "Insight"
	NodeChunk        NodeType = "Chunk"
	NodeEntity       NodeType = "Entity"
	NodeDocument     NodeType = "Document"
	NodeConversation NodeType = "Conversation"
	NodeTopic        NodeType = "Topic"
	NodeNote         NodeType = "Note"
	NodeTag          NodeType = "Tag"
)

var validNodeTypes = map[NodeType]bool{
	NodeUser: true, NodePersona: true, NodeTrait: true, NodeMemory: true,
	NodePreference: true, NodePerson: true, NodeOrganization: true,
	NodeProject: true, NodeCycle: true, NodeTask: true, NodeGoal: true,
	NodeInsight: true, NodeChunk: true, NodeEntity: true, NodeDocument: true,
	NodeConversation: true, NodeTopic: true, NodeNote: true, NodeTag: true,
}

// IsValid reports whether the type is one of the known schemas.
func (t NodeType) IsValid() bool {
	return validNodeTypes[t]
}

// RelationType tags a directed edge between two nodes.
type RelationType string

const (
	RelAssists           RelationType = "ASSISTS"
	RelOwns              RelationType = "OWNS"
	RelHasTrait          RelationType = "HAS_TRAIT"
	RelHasMemory         RelationType = "HAS_MEMORY"
	RelLearnedPreference RelationType = "LEARNED_PREFERENCE"
	RelAdaptedFor        RelationType = "ADAPTED_FOR"
	RelInitiated         RelationType = "INITIATED"
	RelPartOf            RelationType = "PART_OF"
	RelContains          RelationType = "CONTAINS"
	RelWorksToward       RelationType = "WORKS_TOWARD"
	RelDependsOn         RelationType = "DEPENDS_ON"
	RelInforms           RelationType = "INFORMS"
	RelUsesSource        RelationType = "USES_SOURCE"
	RelKnows             RelationType = "KNOWS"
	RelMemberOf          RelationType = "MEMBER_OF"
	RelCollaboratesOn    RelationType = "COLLABORATES_ON"
	RelInterestedIn      RelationType = "INTERESTED_IN"
	RelAboutTopic        RelationType = "ABOUT_TOPIC"
	RelRelatedTo         RelationType = "RELATED_TO"
	RelHasChunk          RelationType = "HAS_CHUNK"
	RelReferences        RelationType = "REFERENCES"
	RelSimilarTo         RelationType = "SIMILAR_TO"
	RelParticipatedIn    RelationType = "PARTICIPATED_IN"
	RelDiscussed         RelationType = "DISCUSSED"
	RelMentioned         RelationType = "MENTIONED"
	RelTaggedWith        RelationType = "TAGGED_WITH"
	RelHasNote           RelationType = "HAS_NOTE"
)

// Direction selects which edges GetRelated traverses.
type Direction string

const (
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
	DirectionBoth Direction = "both"
)

// Properties is the flexible property bag attached to nodes and
// relationships. Values are scalars, lists of scalars, or nested maps;
// schema validation happens at construction functions, never in the store.
type Properties map[string]any

// Clone returns a shallow copy. Callers that mutate retrieved properties
// must clone first; the store hands out its cached node as-is.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// String returns the value under key as a string, or "" when absent or of
// another kind.
func (p Properties) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Float returns the value under key as a float64. JSON round-trips store
// all numbers as float64.
func (p Properties) Float(key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Int returns the value under key truncated to int.
func (p Properties) Int(key string) int {
	return int(p.Float(key))
}

// Bool returns the value under key as a bool, or false when absent or of
// another kind.
func (p Properties) Bool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

// StringList returns the value under key as a string slice, tolerating the
// []any representation produced by JSON decoding.
func (p Properties) StringList(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func (p Properties) marshal() (string, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal properties: %w", err)
	}
	return string(data), nil
}

func unmarshalProperties(raw string) (Properties, error) {
	if raw == "" {
		return Properties{}, nil
	}
	var p Properties
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("unmarshal properties: %w", err)
	}
	if p == nil {
		p = Properties{}
	}
	return p, nil
}

// Node is a typed, store-assigned-id entity in the property graph. A node
// with an empty ID is unpersisted and must not be linked.
type Node struct {
	ID        string     `json:"id"`
	Type      NodeType   `json:"type"`
	Name      string     `json:"name"`
	Props     Properties `json:"properties"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Persisted reports whether the store has assigned an ID.
func (n *Node) Persisted() bool {
	return n != nil && n.ID != ""
}

// Related is a node annotated with the relationship that was traversed
// to reach it: its type and any properties stored on the edge.
type Related struct {
	Node
	RelType  RelationType `json:"rel_type"`
	RelProps Properties   `json:"rel_properties,omitempty"`
}

// Relationship is a directed, typed edge between two persisted nodes.
type Relationship struct {
	Type      RelationType `json:"type"`
	SourceID  string       `json:"source_id"`
	TargetID  string       `json:"target_id"`
	Props     Properties   `json:"properties"`
	CreatedAt time.Time    `json:"created_at"`
}

// Scored is a node annotated with search scores. VectorScore and TextScore
// default to zero for hits found by only one leg of a hybrid search.
type Scored struct {
	Node
	Score       float64 `json:"score"`
	VectorScore float64 `json:"vector_score"`
	TextScore   float64 `json:"text_score"`
}
