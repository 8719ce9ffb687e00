package embedding

import (
	"context"
	"strings"
)

const (
	// DefaultChunkSize is the target chunk width in characters.
	DefaultChunkSize = 500

	// DefaultChunkOverlap is how many characters consecutive chunks share.
	DefaultChunkOverlap = 50
)

// Chunk is one window of a longer document.
type Chunk struct {
	Text      string
	Index     int
	StartChar int
	EndChar   int
	CharCount int
}

// ChunkOptions tunes ChunkText. Zero values take the defaults.
type ChunkOptions struct {
	ChunkSize int
	Overlap   int
	Separator string
}

// ChunkText splits text into overlapping windows for embedding. Each chunk
// targets opts.ChunkSize characters but prefers to end at the separator
// when one falls inside the overlap region, so chunks tend to break at
// line boundaries rather than mid-sentence. Whitespace-only windows are
// dropped.
func ChunkText(text string, opts ChunkOptions) []Chunk {
	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	overlap := opts.Overlap
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 10
		}
	}
	sep := opts.Separator
	if sep == "" {
		sep = "\n"
	}

	var chunks []Chunk
	start := 0
	index := 0

	for start < len(text) {
		end := start + size
		if end < len(text) {
			// Prefer breaking at the separator inside the overlap window.
			searchStart := start + size - overlap
			if searchStart < start {
				searchStart = start
			}
			if pos := strings.LastIndex(text[searchStart:end], sep); pos >= 0 {
				sepPos := searchStart + pos
				if sepPos > start {
					end = sepPos + len(sep)
				}
			}
		} else {
			end = len(text)
		}

		window := strings.TrimSpace(text[start:end])
		if window != "" {
			chunks = append(chunks, Chunk{
				Text:      window,
				Index:     index,
				StartChar: start,
				EndChar:   end,
				CharCount: len(window),
			})
			index++
		}

		if end < len(text) {
			start = end - overlap
		} else {
			start = end
		}
	}

	return chunks
}

// EmbeddedChunk pairs a chunk with its vector.
type EmbeddedChunk struct {
	Chunk
	Embedding []float32
}

// EmbedDocument chunks text and embeds every chunk in one batch call.
func EmbedDocument(ctx context.Context, p Provider, text string, opts ChunkOptions) ([]EmbeddedChunk, error) {
	chunks := ChunkText(text, opts)
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vecs, err := p.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	out := make([]EmbeddedChunk, len(chunks))
	for i, c := range chunks {
		out[i] = EmbeddedChunk{Chunk: c, Embedding: vecs[i]}
	}
	return out, nil
}
