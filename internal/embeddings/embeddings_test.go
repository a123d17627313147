package embeddings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/dnnmodeler-go/internal/catalog"
)

func testBlocks() []catalog.BlockDefinition {
	return []catalog.BlockDefinition{
		{Name: "Conv2d", Type: "convolution", Parameters: catalog.Schema{
			"kernel_size":  {Default: 3},
			"out_channels": {Default: ""},
		}},
		{Name: "MaxPool2d", Type: "pooling", Parameters: catalog.Schema{"kernel_size": {Default: 2}}},
		{Name: "AvgPool2d", Type: "pooling", Parameters: catalog.Schema{"kernel_size": {Default: 2}}},
		{Name: "MultiheadAttention", Type: "attention", Parameters: catalog.Schema{"num_heads": {Default: 8}}},
		{Name: "TransformerEncoder", Type: "transformer"},
		{Name: "TransformerDecoder", Type: "transformer"},
		{Name: "Linear", Type: "linear"},
	}
}

func names(matches []Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Block.Name
	}
	return out
}

func TestBlockText(t *testing.T) {
	t.Parallel()

	text := BlockText(testBlocks()[0])
	assert.Equal(t, "Conv2d Conv 2d convolution kernel_size out_channels", text)

	assert.Equal(t, "Linear linear", BlockText(catalog.BlockDefinition{Name: "Linear", Type: "linear"}))
}

func TestSplitWords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"TransformerEncoder", []string{"Transformer", "Encoder"}},
		{"Conv2d", []string{"Conv", "2d"}},
		{"BatchNorm2d", []string{"Batch", "Norm", "2d"}},
		{"LSTM", []string{"LSTM"}},
		{"out_channels", []string{"out", "channels"}},
		{"", nil},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, splitWords(tt.in), tt.in)
	}
}

func TestTFIDFEmbedder(t *testing.T) {
	t.Parallel()

	docs := []string{
		"MaxPool2d pooling kernel_size",
		"AvgPool2d pooling kernel_size",
		"MultiheadAttention attention num_heads",
	}

	t.Run("Fit", func(t *testing.T) {
		t.Parallel()
		e := NewTFIDFEmbedder()
		e.Fit(docs)

		assert.Equal(t, len(docs), e.docCount)
		assert.Positive(t, e.Dimension())
		// Rare terms weigh more than common ones.
		assert.Greater(t, e.idf["attention"], e.idf["pooling"])
		assert.Positive(t, e.idf["pooling"])
	})

	t.Run("EmbedNormalized", func(t *testing.T) {
		t.Parallel()
		e := NewTFIDFEmbedder()
		e.Fit(docs)

		v := e.Embed("max pooling")
		require.Len(t, v, e.Dimension())
		assert.InDelta(t, 1.0, cosine(v, v), 0.001)
	})

	t.Run("EmbedUnknownTerms", func(t *testing.T) {
		t.Parallel()
		e := NewTFIDFEmbedder()
		e.Fit(docs)

		for _, x := range e.Embed("recurrent gru") {
			assert.Zero(t, x)
		}
	})

	t.Run("Refit", func(t *testing.T) {
		t.Parallel()
		e := NewTFIDFEmbedder()
		e.Fit(docs)
		e.Fit([]string{"linear"})

		assert.Equal(t, 1, e.Dimension())
	})
}

func TestIndex_Search(t *testing.T) {
	t.Parallel()

	idx := NewIndex(testBlocks())

	t.Run("CamelCaseWord", func(t *testing.T) {
		t.Parallel()
		got := idx.Search("attention", 0)
		require.NotEmpty(t, got)
		assert.Equal(t, "MultiheadAttention", got[0].Block.Name)
	})

	t.Run("SharedTypeKeepsCatalogOrder", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []string{"TransformerEncoder", "TransformerDecoder"}, names(idx.Search("transformer", 0)))
	})

	t.Run("MoreSpecificTermWins", func(t *testing.T) {
		t.Parallel()
		got := idx.Search("max pool", 0)
		require.Len(t, got, 2)
		assert.Equal(t, "MaxPool2d", got[0].Block.Name)
		assert.Greater(t, got[0].Score, got[1].Score)
	})

	t.Run("Limit", func(t *testing.T) {
		t.Parallel()
		assert.Len(t, idx.Search("kernel", 1), 1)
	})

	t.Run("NoMatch", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, idx.Search("recurrent", 0))
		assert.Empty(t, NewIndex(nil).Search("conv", 5))
	})
}
