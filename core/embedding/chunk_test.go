package embedding

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTextShortInput(t *testing.T) {
	chunks := ChunkText("just a sentence", ChunkOptions{})
	require.Len(t, chunks, 1)
	assert.Equal(t, "just a sentence", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 15, chunks[0].CharCount)
}

func TestChunkTextEmpty(t *testing.T) {
	assert.Empty(t, ChunkText("", ChunkOptions{}))
	assert.Empty(t, ChunkText("   \n  ", ChunkOptions{}))
}

func TestChunkTextOverlap(t *testing.T) {
	text := strings.Repeat("abcdefghij", 30) // 300 chars, no separator
	chunks := ChunkText(text, ChunkOptions{ChunkSize: 100, Overlap: 20})

	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].EndChar-20, chunks[i].StartChar,
			"chunk %d should start inside the previous chunk", i)
	}
	assert.Equal(t, len(text), chunks[len(chunks)-1].EndChar)
}

func TestChunkTextPrefersSeparator(t *testing.T) {
	// A newline sits inside the overlap region of the first chunk.
	line1 := strings.Repeat("x", 90)
	line2 := strings.Repeat("y", 200)
	text := line1 + "\n" + line2

	chunks := ChunkText(text, ChunkOptions{ChunkSize: 100, Overlap: 20})
	require.Greater(t, len(chunks), 1)
	assert.Equal(t, line1, chunks[0].Text, "first chunk should break at the newline")
}

func TestChunkTextIndexesAreSequential(t *testing.T) {
	text := strings.Repeat("word ", 400)
	chunks := ChunkText(text, ChunkOptions{ChunkSize: 120, Overlap: 30})
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
}

func TestEmbedDocument(t *testing.T) {
	p := NewLocalProvider(64)
	text := strings.Repeat("alpha beta gamma delta\n", 40)

	chunks, err := EmbedDocument(context.Background(), p, text, ChunkOptions{ChunkSize: 100, Overlap: 10})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Len(t, c.Embedding, 64)
		assert.NotEmpty(t, c.Text)
	}
}

func TestEmbedDocumentEmpty(t *testing.T) {
	chunks, err := EmbedDocument(context.Background(), NewLocalProvider(8), "", ChunkOptions{})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestFactorySelectsProviders(t *testing.T) {
	ctx := context.Background()

	p, err := NewProvider(ctx, Config{Provider: "local", Dimension: 32})
	require.NoError(t, err)
	assert.Equal(t, 32, p.Dimension())

	_, err = NewProvider(ctx, Config{Provider: "nope"})
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = NewProvider(ctx, Config{Provider: "openai"})
	if err != nil {
		assert.ErrorIs(t, err, ErrMissingAPIKey)
	}
}
