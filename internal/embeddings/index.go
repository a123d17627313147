package embeddings

import (
	"cmp"
	"slices"

	"github.com/Benny93/dnnmodeler-go/internal/catalog"
)

// Match is one ranked search result.
type Match struct {
	Block catalog.BlockDefinition
	Score float64
}

// Index holds the TF-IDF vectors of a catalog snapshot.
type Index struct {
	embedder *TFIDFEmbedder
	blocks   []catalog.BlockDefinition
	vectors  [][]float32
}

// NewIndex embeds blocks for searching.
func NewIndex(blocks []catalog.BlockDefinition) *Index {
	docs := make([]string, len(blocks))
	for i, b := range blocks {
		docs[i] = BlockText(b)
	}

	e := NewTFIDFEmbedder()
	e.Fit(docs)

	vectors := make([][]float32, len(docs))
	for i, doc := range docs {
		vectors[i] = e.Embed(doc)
	}

	return &Index{
		embedder: e,
		blocks:   append([]catalog.BlockDefinition(nil), blocks...),
		vectors:  vectors,
	}
}

// Search returns up to limit blocks sharing at least one term with query,
// best first. Equal scores keep catalog order. A limit of zero or less means
// no limit.
func (idx *Index) Search(query string, limit int) []Match {
	q := idx.embedder.Embed(query)

	var matches []Match
	for i, v := range idx.vectors {
		if score := cosine(q, v); score > 0 {
			matches = append(matches, Match{Block: idx.blocks[i], Score: score})
		}
	}

	slices.SortStableFunc(matches, func(a, b Match) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
