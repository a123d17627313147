package submit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/dnnmodeler-go/internal/catalog"
	"github.com/Benny93/dnnmodeler-go/internal/graph"
)

type mockBuilder struct {
	calls    int
	payloads []Payload
	resp     Response
	err      error
}

func (m *mockBuilder) Build(_ context.Context, p Payload) (Response, error) {
	m.calls++
	m.payloads = append(m.payloads, p)
	return m.resp, m.err
}

func testCatalog() *catalog.Cache {
	return catalog.NewStaticCache([]catalog.BlockDefinition{
		{
			Name: "Conv2d",
			Type: "convolution",
			Parameters: catalog.Schema{
				"channels":    {Default: "(1, 28, 28)"},
				"kernel_size": {Default: 3, Kind: "int"},
			},
		},
		{Name: "TransformerEncoder", Type: "transformer", Parameters: catalog.Schema{"d_model": {Default: 32}}},
		{Name: "TransformerDecoder", Type: "transformer", Parameters: catalog.Schema{"d_model": {Default: 64}}},
	})
}

func chain(t *testing.T, blockName string) (*graph.Store, graph.Node) {
	t.Helper()
	cat := testCatalog()
	def, err := cat.Find(blockName)
	require.NoError(t, err)

	s := graph.NewStore()
	n := s.AddBlockNode(def)
	_, err = s.Connect(graph.InputID, n.ID)
	require.NoError(t, err)
	_, err = s.Connect(n.ID, graph.OutputID)
	require.NoError(t, err)
	return s, n
}

func TestBuildPayload(t *testing.T) {
	t.Parallel()

	t.Run("RejectsEmptyInputShape", func(t *testing.T) {
		t.Parallel()
		s, _ := chain(t, "Conv2d")
		require.NoError(t, s.SetParameter(graph.InputID, graph.ShapeParam, ""))

		_, err := BuildPayload(s.Nodes(), s.Edges(), testCatalog())
		assert.ErrorIs(t, err, ErrMissingInputShape)
		assert.EqualError(t, err, "Define Input layer")
	})

	t.Run("RejectsBlankInputShape", func(t *testing.T) {
		t.Parallel()
		s, _ := chain(t, "Conv2d")
		require.NoError(t, s.SetParameter(graph.InputID, graph.ShapeParam, "   "))

		_, err := BuildPayload(s.Nodes(), s.Edges(), testCatalog())
		assert.ErrorIs(t, err, ErrMissingInputShape)
	})

	t.Run("RejectsMissingInputNode", func(t *testing.T) {
		t.Parallel()
		_, err := BuildPayload(nil, nil, testCatalog())
		assert.ErrorIs(t, err, ErrMissingInputShape)
	})

	t.Run("CoercesTupleParameter", func(t *testing.T) {
		t.Parallel()
		s, n := chain(t, "Conv2d")
		require.NoError(t, s.SetParameter(graph.InputID, graph.ShapeParam, "(3,384,384)"))
		require.NoError(t, s.SetParameter(n.ID, "channels", "(3,384,384)"))

		p, err := BuildPayload(s.Nodes(), s.Edges(), testCatalog())
		require.NoError(t, err)

		var block ResolvedNode
		for _, rn := range p.Nodes {
			if rn.ID == n.ID {
				block = rn
			}
		}
		assert.Equal(t, []any{3, 384, 384}, block.Parameters["channels"])
		assert.Equal(t, 3, block.Parameters["kernel_size"])
		assert.Equal(t, "convolution", block.Type)
		assert.Equal(t, "Conv2d", block.Name)
	})

	t.Run("Shape", func(t *testing.T) {
		t.Parallel()
		s, _ := chain(t, "Conv2d")
		require.NoError(t, s.SetParameter(graph.InputID, graph.ShapeParam, "784"))
		require.NoError(t, s.SetParameter(graph.OutputID, graph.ShapeParam, "10"))

		p, err := BuildPayload(s.Nodes(), s.Edges(), testCatalog())
		require.NoError(t, err)

		assert.Equal(t, ResolvedNode{
			ID:         graph.InputID,
			Type:       "input",
			Name:       "Input Layer",
			Parameters: map[string]any{"shape": 784},
		}, p.Input)
		assert.Equal(t, 10, p.Output.Parameters["shape"])
		require.Len(t, p.Nodes, 3)
		assert.Equal(t, graph.InputID, p.Nodes[0].ID)
		assert.Equal(t, []PayloadEdge{
			{Source: graph.InputID, Target: "1"},
			{Source: "1", Target: graph.OutputID},
		}, p.Edges)
	})

	t.Run("SharedTypeResolvedByName", func(t *testing.T) {
		t.Parallel()
		s, n := chain(t, "TransformerDecoder")
		require.NoError(t, s.SetParameter(graph.InputID, graph.ShapeParam, "64"))
		require.NoError(t, s.SetParameter(n.ID, "d_model", ""))

		p, err := BuildPayload(s.Nodes(), s.Edges(), testCatalog())
		require.NoError(t, err)
		assert.Equal(t, 64, p.Nodes[2].Parameters["d_model"])
	})

	t.Run("UnknownBlockTypeCoercesAsIs", func(t *testing.T) {
		t.Parallel()
		n := graph.Node{ID: "9", Kind: graph.KindBlock, BlockType: "gone", Parameters: map[string]any{"units": "12"}}
		rn := ResolveNode(n, testCatalog())
		assert.Equal(t, map[string]any{"units": 12}, rn.Parameters)
	})
}

func TestSubmit(t *testing.T) {
	t.Parallel()

	t.Run("RejectionSkipsNetwork", func(t *testing.T) {
		t.Parallel()
		s, _ := chain(t, "Conv2d")
		b := &mockBuilder{resp: Response{Status: "success"}}

		_, err := Submit(context.Background(), b, s.Nodes(), s.Edges(), testCatalog())
		assert.ErrorIs(t, err, ErrMissingInputShape)
		assert.Equal(t, 0, b.calls)
	})

	t.Run("Success", func(t *testing.T) {
		t.Parallel()
		s, _ := chain(t, "Conv2d")
		require.NoError(t, s.SetParameter(graph.InputID, graph.ShapeParam, "784"))
		b := &mockBuilder{resp: Response{Status: "success", ModelSummary: "Sequential(...)"}}

		res, err := Submit(context.Background(), b, s.Nodes(), s.Edges(), testCatalog())
		require.NoError(t, err)
		assert.Equal(t, "Sequential(...)", res.Summary)
		assert.Equal(t, 1, b.calls)
	})

	t.Run("ServiceReportsError", func(t *testing.T) {
		t.Parallel()
		s, _ := chain(t, "Conv2d")
		require.NoError(t, s.SetParameter(graph.InputID, graph.ShapeParam, "784"))
		b := &mockBuilder{resp: Response{Status: StatusError, Detail: "Unknown block: Foo"}}

		_, err := Submit(context.Background(), b, s.Nodes(), s.Edges(), testCatalog())
		var be *BuildError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, "Unknown block: Foo", be.Detail)
		assert.EqualError(t, err, "build failed: Unknown block: Foo")
	})

	t.Run("TransportError", func(t *testing.T) {
		t.Parallel()
		s, _ := chain(t, "Conv2d")
		require.NoError(t, s.SetParameter(graph.InputID, graph.ShapeParam, "784"))
		cause := errors.New("connection refused")
		b := &mockBuilder{err: cause}

		_, err := Submit(context.Background(), b, s.Nodes(), s.Edges(), testCatalog())
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "submitting model")
	})
}
