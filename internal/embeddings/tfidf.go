// Package embeddings ranks catalog blocks against free-text queries using
// TF-IDF vectors, so "attention" finds MultiheadAttention and "pool" finds
// every pooling block.
package embeddings

import (
	"math"
	"strings"
	"sync"
)

// TFIDFEmbedder generates TF-IDF vectors over a fixed vocabulary.
type TFIDFEmbedder struct {
	mu       sync.RWMutex
	idf      map[string]float64 // term -> IDF score
	docCount int                // number of documents processed
	vocab    map[string]int     // term -> index in embedding vector
}

// NewTFIDFEmbedder creates a new TF-IDF embedder.
func NewTFIDFEmbedder() *TFIDFEmbedder {
	return &TFIDFEmbedder{
		idf:   make(map[string]float64),
		vocab: make(map[string]int),
	}
}

// Fit builds the vocabulary and IDF scores from docs, replacing any previous
// fit.
func (e *TFIDFEmbedder) Fit(docs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.vocab = make(map[string]int)
	e.idf = make(map[string]float64)
	e.docCount = len(docs)

	docFreq := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, term := range tokenize(doc) {
			if seen[term] {
				continue
			}
			seen[term] = true
			docFreq[term]++
			if _, ok := e.vocab[term]; !ok {
				e.vocab[term] = len(e.vocab)
			}
		}
	}

	// Smoothed so a term present in every document still counts.
	for term, df := range docFreq {
		e.idf[term] = math.Log(1 + float64(e.docCount)/float64(df))
	}
}

// Dimension is the vector length, one slot per vocabulary term.
func (e *TFIDFEmbedder) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.vocab)
}

// Embed generates an L2-normalized TF-IDF vector for doc. Terms outside the
// vocabulary are ignored, so a doc sharing no term yields the zero vector.
func (e *TFIDFEmbedder) Embed(doc string) []float32 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	embedding := make([]float32, len(e.vocab))

	tf := make(map[string]int)
	maxTF := 0
	for _, term := range tokenize(doc) {
		tf[term]++
		maxTF = max(maxTF, tf[term])
	}

	for term, count := range tf {
		idx, ok := e.vocab[term]
		if !ok {
			continue
		}
		embedding[idx] = float32(float64(count) / float64(maxTF) * e.idf[term])
	}

	norm := 0.0
	for _, v := range embedding {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return embedding
	}
	norm = math.Sqrt(norm)
	for i := range embedding {
		embedding[i] = float32(float64(embedding[i]) / norm)
	}
	return embedding
}

// cosine is the dot product of two normalized vectors of equal length.
func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// tokenize splits text into lower-case terms. Identifiers contribute both
// their whole form and their CamelCase words.
func tokenize(text string) []string {
	var terms []string
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return !isWordRune(r)
	}) {
		terms = appendTerm(terms, field)
		if words := splitWords(field); len(words) > 1 {
			for _, w := range words {
				terms = appendTerm(terms, w)
			}
		}
	}
	return terms
}

func appendTerm(terms []string, term string) []string {
	// Very short terms are noise.
	if len(term) < 2 {
		return terms
	}
	return append(terms, strings.ToLower(term))
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
