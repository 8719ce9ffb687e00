package graph

import (
	"fmt"
	"strings"
	"time"
)

// CreateRelationship creates a directed, typed edge. It returns false
// without error when either endpoint is missing; callers must check.
// Duplicate edges of the same type between the same pair are allowed —
// callers that need uniqueness use GetOrCreateNode-style upserts instead.
func (s *Store) CreateRelationship(fromID, toID string, relType RelationType, props Properties) (bool, error) {
	if fromID == "" || toID == "" {
		return false, fmt.Errorf("%w: relationship endpoints are required", ErrValidation)
	}
	if props == nil {
		props = Properties{}
	}

	exists, err := s.nodesExist(fromID, toID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	raw, err := props.marshal()
	if err != nil {
		return false, err
	}

	_, err = s.db.db.Exec(`
		INSERT INTO relationships (rel_type, source_id, target_id, properties, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, relType, fromID, toID, raw, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return false, fmt.Errorf("insert %s relationship: %w", relType, err)
	}
	return true, nil
}

func (s *Store) nodesExist(ids ...string) (bool, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	var count int
	err := s.db.db.QueryRow(
		"SELECT COUNT(*) FROM nodes WHERE id IN ("+placeholders+")", args...,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check endpoints: %w", err)
	}
	return count == len(ids), nil
}

// GetRelated returns nodes connected to id, newest first, each annotated
// with the relationship type that was traversed. relType and targetType of
// "" match any type.
func (s *Store) GetRelated(id string, relType RelationType, direction Direction, targetType NodeType, limit int) ([]Related, error) {
	if limit <= 0 {
		limit = 50
	}

	var joins []string
	switch direction {
	case DirectionOut, "":
		joins = append(joins, "r.source_id = ? AND n.id = r.target_id")
	case DirectionIn:
		joins = append(joins, "r.target_id = ? AND n.id = r.source_id")
	case DirectionBoth:
		joins = append(joins,
			"r.source_id = ? AND n.id = r.target_id",
			"r.target_id = ? AND n.id = r.source_id",
		)
	default:
		return nil, fmt.Errorf("%w: unknown direction %q", ErrValidation, direction)
	}

	var parts []string
	var args []any
	for _, join := range joins {
		where := []string{join}
		args = append(args, id)
		if relType != "" {
			where = append(where, "r.rel_type = ?")
			args = append(args, relType)
		}
		if targetType != "" {
			where = append(where, "n.node_type = ?")
			args = append(args, targetType)
		}
		// The node timestamp needs an alias: the UNION's ORDER BY cannot
		// qualify n.created_at, and the bare name collides with the
		// relationships column.
		parts = append(parts, `
			SELECT n.id, n.node_type, n.name, n.properties, n.created_at AS node_created_at, n.updated_at, r.rel_type, r.properties
			FROM relationships r JOIN nodes n ON `+strings.Join(where, " AND "))
	}
	args = append(args, limit)

	rows, err := s.db.db.Query(strings.Join(parts, " UNION ")+" ORDER BY node_created_at DESC LIMIT ?", args...)
	if err != nil {
		return nil, fmt.Errorf("related nodes of %s: %w", id, err)
	}
	defer rows.Close()

	var related []Related
	for rows.Next() {
		var r Related
		var raw, relRaw, createdAt, updatedAt string
		if err := rows.Scan(&r.ID, &r.Type, &r.Name, &raw, &createdAt, &updatedAt, &r.RelType, &relRaw); err != nil {
			return nil, fmt.Errorf("scan related node: %w", err)
		}
		if r.Props, err = unmarshalProperties(raw); err != nil {
			return nil, err
		}
		if r.RelProps, err = unmarshalProperties(relRaw); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		related = append(related, r)
	}
	return related, rows.Err()
}

// CountRelated counts nodes connected by outgoing edges of relType to a
// target type, without loading them.
func (s *Store) CountRelated(id string, relType RelationType, targetType NodeType) (int, error) {
	where := []string{"r.source_id = ?", "n.id = r.target_id"}
	args := []any{id}
	if relType != "" {
		where = append(where, "r.rel_type = ?")
		args = append(args, relType)
	}
	if targetType != "" {
		where = append(where, "n.node_type = ?")
		args = append(args, targetType)
	}

	var count int
	err := s.db.db.QueryRow(`
		SELECT COUNT(*) FROM relationships r JOIN nodes n ON `+strings.Join(where, " AND "),
		args...,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count related of %s: %w", id, err)
	}
	return count, nil
}

// LinkToTopics merges Topic nodes by name and links the node to each via
// ABOUT_TOPIC, skipping topics it is already linked to. Returns the number
// of relationships created.
func (s *Store) LinkToTopics(id string, topics []string) (int, error) {
	created := 0
	for _, name := range topics {
		topic, _, err := s.GetOrCreateNode(NodeTopic, name, "name", name, nil)
		if err != nil {
			return created, err
		}

		linked, err := s.hasRelationship(id, topic.ID, RelAboutTopic)
		if err != nil {
			return created, err
		}
		if linked {
			continue
		}

		ok, err := s.CreateRelationship(id, topic.ID, RelAboutTopic, nil)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// LinkOnce creates the relationship only if an identical edge does not
// already exist. Returns whether a new edge was created.
func (s *Store) LinkOnce(sourceID, targetID string, relType RelationType) (bool, error) {
	linked, err := s.hasRelationship(sourceID, targetID, relType)
	if err != nil {
		return false, err
	}
	if linked {
		return false, nil
	}
	return s.CreateRelationship(sourceID, targetID, relType, nil)
}

func (s *Store) hasRelationship(fromID, toID string, relType RelationType) (bool, error) {
	var count int
	err := s.db.db.QueryRow(`
		SELECT COUNT(*) FROM relationships
		WHERE source_id = ? AND target_id = ? AND rel_type = ?
	`, fromID, toID, relType).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check relationship: %w", err)
	}
	return count > 0, nil
}
