package graph

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/viterin/vek/vek32"
)

// CosineSimilarity returns dot(a,b) / (|a|*|b|), or 0 when either vector
// is empty or zero-magnitude.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	magA := math.Sqrt(float64(vek32.Dot(a, a)))
	magB := math.Sqrt(float64(vek32.Dot(b, b)))
	if magA == 0 || magB == 0 {
		return 0
	}
	return float64(vek32.Dot(a, b)) / (magA * magB)
}

// SetEmbedding stores or replaces the embedding for a node, keeping the
// pre-computed magnitude alongside for fast cosine scoring.
func (s *Store) SetEmbedding(nodeID string, embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("%w: empty embedding", ErrValidation)
	}

	node, err := s.GetNode(nodeID)
	if err != nil {
		return err
	}

	mag := math.Sqrt(float64(vek32.Dot(embedding, embedding)))
	_, err = s.db.db.Exec(`
		INSERT INTO vectors (node_id, embedding, magnitude, dimensions, node_type)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			embedding = excluded.embedding,
			magnitude = excluded.magnitude,
			dimensions = excluded.dimensions
	`, nodeID, float32sToBytes(embedding), mag, len(embedding), node.Type)
	if err != nil {
		return fmt.Errorf("store embedding for %s: %w", nodeID, err)
	}
	return nil
}

// GetEmbedding returns the stored embedding for a node, or ErrNotFound.
func (s *Store) GetEmbedding(nodeID string) ([]float32, error) {
	var blob []byte
	err := s.db.db.QueryRow("SELECT embedding FROM vectors WHERE node_id = ?", nodeID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load embedding for %s: %w", nodeID, err)
	}
	return bytesToFloat32s(blob), nil
}

// VectorSearch ranks nodes of targetType by cosine similarity to the
// query embedding, descending, dropping scores below minScore. An empty
// targetType searches every type. SQLite has no native vector index, so
// this is the scan-based path: every stored vector in scope is scored.
// An empty result is not an error.
func (s *Store) VectorSearch(embedding []float32, targetType NodeType, limit int, minScore float64) ([]Scored, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", ErrValidation)
	}
	if limit <= 0 {
		limit = 10
	}

	queryMag := math.Sqrt(float64(vek32.Dot(embedding, embedding)))
	if queryMag == 0 {
		return nil, nil
	}

	query := "SELECT node_id, embedding, magnitude FROM vectors"
	var args []any
	if targetType != "" {
		query += " WHERE node_type = ?"
		args = append(args, targetType)
	}
	rows, err := s.db.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("scan vectors of %s: %w", targetType, err)
	}
	defer rows.Close()

	type candidate struct {
		id    string
		score float64
	}
	var candidates []candidate

	for rows.Next() {
		var id string
		var blob []byte
		var mag float64
		if err := rows.Scan(&id, &blob, &mag); err != nil {
			return nil, fmt.Errorf("scan vector row: %w", err)
		}

		vec := bytesToFloat32s(blob)
		if len(vec) != len(embedding) || mag == 0 {
			continue
		}

		score := float64(vek32.Dot(embedding, vec)) / (queryMag * mag)
		if score >= minScore {
			candidates = append(candidates, candidate{id: id, score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan vectors of %s: %w", targetType, err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	results := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		node, err := s.GetNode(c.id)
		if err != nil {
			// Vector row outlived its node; skip rather than fail the search.
			continue
		}
		results = append(results, Scored{
			Node:        *node,
			Score:       c.score,
			VectorScore: c.score,
		})
	}
	return results, nil
}

// StoreChunkWithEmbedding persists a text chunk as a Chunk node with its
// embedding, linked from the source document when sourceID is set.
func (s *Store) StoreChunkWithEmbedding(text string, embedding []float32, sourceID string, chunkIndex int, metadata Properties) (*Node, error) {
	name := text
	if len(name) > 50 {
		name = name[:50] + "..."
	}

	props := metadata.Clone()
	if props == nil {
		props = Properties{}
	}
	props["text"] = text
	props["chunk_index"] = chunkIndex
	props["char_count"] = len(text)
	if sourceID != "" {
		props["source_id"] = sourceID
	}

	chunk, err := s.CreateNode(NodeChunk, name, props)
	if err != nil {
		return nil, err
	}
	if err := s.SetEmbedding(chunk.ID, embedding); err != nil {
		return nil, err
	}

	if sourceID != "" {
		if _, err := s.CreateRelationship(sourceID, chunk.ID, RelHasChunk, nil); err != nil {
			return nil, err
		}
	}
	return chunk, nil
}

// StoreEntityWithEmbedding upserts an Entity node by name and entity type
// and stores its embedding.
func (s *Store) StoreEntityWithEmbedding(name, entityType string, embedding []float32, description string, metadata Properties) (*Node, error) {
	props := metadata.Clone()
	if props == nil {
		props = Properties{}
	}
	props["entity_type"] = entityType
	if description != "" {
		props["description"] = description
	}

	entity, _, err := s.GetOrCreateNode(NodeEntity, name, "name", name, props)
	if err != nil {
		return nil, err
	}
	if len(embedding) > 0 {
		if err := s.SetEmbedding(entity.ID, embedding); err != nil {
			return nil, err
		}
	}
	return entity, nil
}

func float32sToBytes(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func bytesToFloat32s(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
