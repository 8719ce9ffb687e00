package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const (
	localDefaultDimension = 384
	localModelName        = "hashed-features-v1"

	trigramWeight = 0.45
	tokenWeight   = 0.55
)

// LocalProvider is a deterministic, fully offline embedder. It projects
// character trigrams and word tokens into a fixed-width vector with signed
// feature hashing and L2-normalizes the result. Identical input always
// yields an identical vector, which makes it useful for tests and for
// running without any API key. Quality is well below a real model; swap in
// a remote provider for production retrieval.
type LocalProvider struct {
	dimension int
}

// NewLocalProvider returns a featurizer of the given width, or the default
// width when dimension <= 0.
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension <= 0 {
		dimension = localDefaultDimension
	}
	return &LocalProvider{dimension: dimension}
}

func (p *LocalProvider) Dimension() int    { return p.dimension }
func (p *LocalProvider) ModelName() string { return localModelName }

func (p *LocalProvider) Embed(_ context.Context, text string) ([]float32, error) {
	return p.featurize(text), nil
}

func (p *LocalProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.featurize(t)
	}
	return out, nil
}

func (p *LocalProvider) featurize(text string) []float32 {
	vec := make([]float32, p.dimension)

	p.addFeatures(vec, charNgrams(text, 3), trigramWeight, 4)
	p.addFeatures(vec, termFrequencies(text), tokenWeight, 8)

	normalize(vec)
	return vec
}

// addFeatures spreads each feature over nProbes vector slots with hashed
// signs, scaled so that feature sets of different sizes contribute
// comparable mass.
func (p *LocalProvider) addFeatures(vec []float32, features map[string]int, weight float64, nProbes int) {
	if len(features) == 0 {
		return
	}
	scale := float32(weight / math.Sqrt(float64(len(features))))

	for feat, count := range features {
		h := fnv.New64a()
		h.Write([]byte(feat))
		state := h.Sum64()

		w := scale * float32(1+math.Log(float64(count)))
		for probe := 0; probe < nProbes; probe++ {
			state = state*6364136223846793005 + 1442695040888963407
			idx := int(state % uint64(p.dimension))
			sign := float32(1)
			if (state>>63)&1 == 1 {
				sign = -1
			}
			vec[idx] += w * sign
		}
	}
}

func charNgrams(text string, n int) map[string]int {
	runes := []rune(strings.ToLower(text))
	grams := make(map[string]int)
	for i := 0; i+n <= len(runes); i++ {
		grams[string(runes[i:i+n])]++
	}
	return grams
}

func termFrequencies(text string) map[string]int {
	tf := make(map[string]int)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if len(tok) > 1 {
			tf[tok]++
		}
	}
	return tf
}

func normalize(vec []float32) {
	var mag float64
	for _, v := range vec {
		mag += float64(v) * float64(v)
	}
	if mag == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(mag))
	for i := range vec {
		vec[i] *= inv
	}
}
