package graph

import "fmt"

// Stats summarizes the contents of the store.
type Stats struct {
	TotalNodes         int64                  `json:"total_nodes"`
	TotalRelationships int64                  `json:"total_relationships"`
	TotalVectors       int64                  `json:"total_vectors"`
	NodesByType        map[NodeType]int64     `json:"nodes_by_type"`
	RelsByType         map[RelationType]int64 `json:"relationships_by_type"`
}

// Stats collects node, relationship, and vector counts grouped by type.
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{
		NodesByType: make(map[NodeType]int64),
		RelsByType:  make(map[RelationType]int64),
	}

	if err := s.db.db.QueryRow("SELECT COUNT(*) FROM nodes").Scan(&stats.TotalNodes); err != nil {
		return nil, fmt.Errorf("count nodes: %w", err)
	}
	if err := s.db.db.QueryRow("SELECT COUNT(*) FROM relationships").Scan(&stats.TotalRelationships); err != nil {
		return nil, fmt.Errorf("count relationships: %w", err)
	}
	if err := s.db.db.QueryRow("SELECT COUNT(*) FROM vectors").Scan(&stats.TotalVectors); err != nil {
		return nil, fmt.Errorf("count vectors: %w", err)
	}

	if err := s.groupedCounts("SELECT node_type, COUNT(*) FROM nodes GROUP BY node_type", func(key string, count int64) {
		stats.NodesByType[NodeType(key)] = count
	}); err != nil {
		return nil, fmt.Errorf("count nodes by type: %w", err)
	}
	if err := s.groupedCounts("SELECT rel_type, COUNT(*) FROM relationships GROUP BY rel_type", func(key string, count int64) {
		stats.RelsByType[RelationType(key)] = count
	}); err != nil {
		return nil, fmt.Errorf("count relationships by type: %w", err)
	}

	return stats, nil
}

func (s *Store) groupedCounts(query string, handler func(key string, count int64)) error {
	rows, err := s.db.db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		handler(key, count)
	}
	return rows.Err()
}
