package graph

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"
)

// timeLayout is a fixed-width UTC timestamp so lexicographic ordering in
// SQLite matches chronological ordering down to nanoseconds.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DefaultNodeCacheSize bounds the read-through node cache.
const DefaultNodeCacheSize = 1024

// Store is the typed property-graph store. It owns the SQLite connection,
// the Bleve text index, and a read-through LRU over GetNode lookups. The
// cache is invalidated on every update and delete.
type Store struct {
	db     *DB
	text   *TextIndex
	cache  *lru.Cache[string, *Node]
	logger *slog.Logger
}

// StoreConfig configures Open.
type StoreConfig struct {
	DB DBConfig

	// TextIndexPath locates the Bleve index; empty means in-memory.
	TextIndexPath string

	// CacheSize bounds the node cache; zero means DefaultNodeCacheSize.
	CacheSize int

	Logger *slog.Logger
}

// Open opens a store at path with default configuration.
func Open(path string) (*Store, error) {
	return OpenWithConfig(StoreConfig{DB: DefaultDBConfig(path)})
}

// OpenWithConfig opens the database, the text index, and the node cache.
func OpenWithConfig(cfg StoreConfig) (*Store, error) {
	db, err := OpenDB(cfg.DB)
	if err != nil {
		return nil, err
	}

	text, err := NewTextIndex(cfg.TextIndexPath)
	if err != nil {
		db.Close()
		return nil, err
	}

	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultNodeCacheSize
	}
	cache, err := lru.New[string, *Node](size)
	if err != nil {
		db.Close()
		text.Close()
		return nil, fmt.Errorf("node cache: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{db: db, text: text, cache: cache, logger: logger}, nil
}

func (s *Store) Close() error {
	s.cache.Purge()
	textErr := s.text.Close()
	dbErr := s.db.Close()
	return errors.Join(textErr, dbErr)
}

// DB exposes the underlying database for stats and maintenance.
func (s *Store) DB() *DB {
	return s.db
}

// CreateNode persists a new node, assigning its ID exactly once. The ID is
// immutable thereafter.
func (s *Store) CreateNode(nodeType NodeType, name string, props Properties) (*Node, error) {
	if !nodeType.IsValid() {
		return nil, fmt.Errorf("%w: unknown node type %q", ErrValidation, nodeType)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: node name is required", ErrValidation)
	}
	if props == nil {
		props = Properties{}
	}

	now := time.Now().UTC()
	node := &Node{
		ID:        uuid.NewString(),
		Type:      nodeType,
		Name:      name,
		Props:     props,
		CreatedAt: now,
		UpdatedAt: now,
	}

	raw, err := node.Props.marshal()
	if err != nil {
		return nil, err
	}

	_, err = s.db.db.Exec(`
		INSERT INTO nodes (id, node_type, name, properties, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, node.ID, node.Type, node.Name, raw, now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("insert node %s (%s): %w", name, nodeType, err)
	}

	if err := s.text.Index(node); err != nil {
		s.logger.Warn("text index insert failed", "node", node.ID, "error", err)
	}
	return node, nil
}

// GetNode returns the node with the given ID, or ErrNotFound.
func (s *Store) GetNode(id string) (*Node, error) {
	if node, ok := s.cache.Get(id); ok {
		return node, nil
	}

	row := s.db.db.QueryRow(`
		SELECT id, node_type, name, properties, created_at, updated_at
		FROM nodes WHERE id = ?
	`, id)

	node, err := scanNode(row)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, node)
	return node, nil
}

// FindNodes returns nodes of a type matching every filter exactly, ordered
// by created_at descending. Filters address top-level properties; "name"
// addresses the name column.
func (s *Store) FindNodes(nodeType NodeType, filters Properties, limit int) ([]Node, error) {
	if limit <= 0 {
		limit = 100
	}

	var where []string
	var args []any
	where = append(where, "node_type = ?")
	args = append(args, nodeType)

	for key, value := range filters {
		clause, cargs := filterClause(key, value)
		where = append(where, clause)
		args = append(args, cargs...)
	}
	args = append(args, limit)

	rows, err := s.db.db.Query(`
		SELECT id, node_type, name, properties, created_at, updated_at
		FROM nodes WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at DESC LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s nodes: %w", nodeType, err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

// FindNodeByName returns the first node of a type with an exact name
// match, or ErrNotFound.
func (s *Store) FindNodeByName(nodeType NodeType, name string) (*Node, error) {
	row := s.db.db.QueryRow(`
		SELECT id, node_type, name, properties, created_at, updated_at
		FROM nodes WHERE node_type = ? AND name = ?
		ORDER BY created_at ASC LIMIT 1
	`, nodeType, name)
	return scanNode(row)
}

// GetOrCreateNode is the idempotent create-or-match operation. It matches
// on one property (or "name"); on match it merges props last-write-wins
// and stamps updated_at, on miss it creates the node. The second return
// reports whether a node was created.
func (s *Store) GetOrCreateNode(nodeType NodeType, name string, matchProp string, matchValue any, props Properties) (*Node, bool, error) {
	existing, err := s.findByProp(nodeType, matchProp, matchValue)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	if existing != nil {
		if len(props) > 0 {
			if _, err := s.UpdateNode(existing.ID, props); err != nil {
				return nil, false, err
			}
			updated, err := s.GetNode(existing.ID)
			if err != nil {
				return nil, false, err
			}
			return updated, false, nil
		}
		return existing, false, nil
	}

	merged := props.Clone()
	if merged == nil {
		merged = Properties{}
	}
	if matchProp != "name" {
		merged[matchProp] = matchValue
	}
	node, err := s.CreateNode(nodeType, name, merged)
	if err != nil {
		return nil, false, err
	}
	return node, true, nil
}

func (s *Store) findByProp(nodeType NodeType, prop string, value any) (*Node, error) {
	clause, cargs := filterClause(prop, value)
	args := append([]any{nodeType}, cargs...)
	row := s.db.db.QueryRow(`
		SELECT id, node_type, name, properties, created_at, updated_at
		FROM nodes WHERE node_type = ? AND `+clause+`
		ORDER BY created_at ASC LIMIT 1
	`, args...)
	return scanNode(row)
}

// SearchNodes performs a case-insensitive substring match on one property.
// Results are ordered by created_at descending, not by relevance.
func (s *Store) SearchNodes(nodeType NodeType, propertyName, substring string, limit int) ([]Node, error) {
	if limit <= 0 {
		limit = 20
	}

	column := "name"
	args := []any{nodeType}
	if propertyName != "" && propertyName != "name" {
		// The extraction path is bound, never spliced, so property names
		// from callers cannot reshape the query.
		column = "json_extract(properties, ?)"
		args = append(args, "$."+propertyName)
	}
	args = append(args, substring, limit)

	rows, err := s.db.db.Query(`
		SELECT id, node_type, name, properties, created_at, updated_at
		FROM nodes
		WHERE node_type = ? AND LOWER(`+column+`) LIKE '%' || LOWER(?) || '%'
		ORDER BY created_at DESC LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("search %s nodes: %w", nodeType, err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

// SearchAll performs a case-insensitive substring match across name and
// the common free-text properties of every node type.
func (s *Store) SearchAll(substring string, limit int) ([]Node, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.db.Query(`
		SELECT id, node_type, name, properties, created_at, updated_at
		FROM nodes
		WHERE LOWER(name) LIKE '%' || LOWER(?) || '%'
		   OR LOWER(COALESCE(json_extract(properties, '$.title'), '')) LIKE '%' || LOWER(?) || '%'
		   OR LOWER(COALESCE(json_extract(properties, '$.summary'), '')) LIKE '%' || LOWER(?) || '%'
		   OR LOWER(COALESCE(json_extract(properties, '$.content'), '')) LIKE '%' || LOWER(?) || '%'
		ORDER BY created_at DESC LIMIT ?
	`, substring, substring, substring, substring, limit)
	if err != nil {
		return nil, fmt.Errorf("search all nodes: %w", err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

// UpdateNode merges partial properties into the node and stamps
// updated_at. It never replaces the full property bag and never changes
// the ID. Returns false when the node does not exist.
func (s *Store) UpdateNode(id string, partial Properties) (bool, error) {
	tx, err := s.db.beginTx()
	if err != nil {
		return false, fmt.Errorf("begin update tx: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRow("SELECT properties FROM nodes WHERE id = ?", id).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read node %s for update: %w", id, err)
	}

	props, err := unmarshalProperties(raw)
	if err != nil {
		return false, err
	}
	for k, v := range partial {
		props[k] = v
	}

	merged, err := props.marshal()
	if err != nil {
		return false, err
	}

	now := time.Now().UTC().Format(timeLayout)
	if _, err := tx.Exec(
		"UPDATE nodes SET properties = ?, updated_at = ? WHERE id = ?",
		merged, now, id,
	); err != nil {
		return false, fmt.Errorf("update node %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit update of %s: %w", id, err)
	}

	s.cache.Remove(id)
	if node, err := s.GetNode(id); err == nil {
		if err := s.text.Index(node); err != nil {
			s.logger.Warn("text index update failed", "node", id, "error", err)
		}
	}
	return true, nil
}

// DeleteNode detach-deletes the node: incident relationships and any
// stored embedding go with it. Returns false when nothing was deleted.
func (s *Store) DeleteNode(id string) (bool, error) {
	res, err := s.db.db.Exec("DELETE FROM nodes WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete node %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete node %s: %w", id, err)
	}
	if n == 0 {
		return false, nil
	}

	s.cache.Remove(id)
	if err := s.text.Delete(id); err != nil {
		s.logger.Warn("text index delete failed", "node", id, "error", err)
	}
	return true, nil
}

// CountNodes returns the number of nodes of a type.
func (s *Store) CountNodes(nodeType NodeType) (int, error) {
	var count int
	err := s.db.db.QueryRow("SELECT COUNT(*) FROM nodes WHERE node_type = ?", nodeType).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s nodes: %w", nodeType, err)
	}
	return count, nil
}

// filterClause builds an equality match on name or a bound json_extract
// path, so filter keys never reach the SQL text.
func filterClause(key string, value any) (string, []any) {
	// JSON booleans surface as 0/1 from json_extract.
	if b, ok := value.(bool); ok {
		value = 0
		if b {
			value = 1
		}
	}
	if key == "name" {
		return "name = ?", []any{value}
	}
	return "json_extract(properties, ?) = ?", []any{"$." + key, value}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*Node, error) {
	var node Node
	var raw, createdAt, updatedAt string

	err := row.Scan(&node.ID, &node.Type, &node.Name, &raw, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan node: %w", err)
	}

	node.Props, err = unmarshalProperties(raw)
	if err != nil {
		return nil, err
	}
	node.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	node.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func collectNodes(rows *sql.Rows) ([]Node, error) {
	var nodes []Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	return nodes, rows.Err()
}

func parseTime(raw string) (time.Time, error) {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q", raw)
}
