package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// textDoc is the shape indexed into Bleve for each node. Content folds the
// free-text properties together so one match query covers all of them.
type textDoc struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// TextHit is a single full-text match.
type TextHit struct {
	ID    string
	Score float64
}

// TextIndex wraps a Bleve index over node name and free-text properties.
// It backs the text leg of HybridSearch. A nil *TextIndex is valid and
// reports no hits, which degrades hybrid search to vector-only scoring.
type TextIndex struct {
	index bleve.Index
}

// textProps are the property keys folded into the indexed content field.
var textProps = []string{"content", "title", "summary", "text", "description", "insight"}

// NewTextIndex opens a Bleve index at path, or in memory when path is
// empty.
func NewTextIndex(path string) (*TextIndex, error) {
	mapping := bleve.NewIndexMapping()

	if path == "" {
		idx, err := bleve.NewMemOnly(mapping)
		if err != nil {
			return nil, fmt.Errorf("open in-memory text index: %w", err)
		}
		return &TextIndex{index: idx}, nil
	}

	idx, err := bleve.New(path, mapping)
	if err == bleve.ErrorIndexPathExists {
		idx, err = bleve.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("open text index at %s: %w", path, err)
	}
	return &TextIndex{index: idx}, nil
}

// Index adds or replaces the node's document.
func (t *TextIndex) Index(node *Node) error {
	if t == nil {
		return nil
	}

	var sb strings.Builder
	for _, key := range textProps {
		if v := node.Props.String(key); v != "" {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(v)
		}
	}

	doc := textDoc{
		Type:    string(node.Type),
		Name:    node.Name,
		Content: sb.String(),
	}
	if err := t.index.Index(node.ID, doc); err != nil {
		return fmt.Errorf("index node %s: %w", node.ID, err)
	}
	return nil
}

// Delete removes the node's document. Unknown IDs are a no-op.
func (t *TextIndex) Delete(id string) error {
	if t == nil {
		return nil
	}
	if err := t.index.Delete(id); err != nil {
		return fmt.Errorf("delete node %s from text index: %w", id, err)
	}
	return nil
}

// Search runs a match query over name and content, optionally scoped to
// one node type, and returns hits ranked by Bleve score descending.
func (t *TextIndex) Search(ctx context.Context, text string, nodeType NodeType, limit int) ([]TextHit, error) {
	if t == nil || text == "" || limit <= 0 {
		return nil, nil
	}

	nameQuery := bleve.NewMatchQuery(text)
	nameQuery.SetField("name")
	contentQuery := bleve.NewMatchQuery(text)
	contentQuery.SetField("content")
	textQuery := bleve.NewDisjunctionQuery(nameQuery, contentQuery)

	var q query.Query = textQuery
	if nodeType != "" {
		typeQuery := bleve.NewMatchQuery(string(nodeType))
		typeQuery.SetField("type")
		q = bleve.NewConjunctionQuery(typeQuery, textQuery)
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := t.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}

	hits := make([]TextHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		hits = append(hits, TextHit{ID: hit.ID, Score: hit.Score})
	}
	return hits, nil
}

func (t *TextIndex) Close() error {
	if t == nil {
		return nil
	}
	return t.index.Close()
}
