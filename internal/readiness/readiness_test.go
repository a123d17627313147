package readiness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/dnnmodeler-go/internal/catalog"
	"github.com/Benny93/dnnmodeler-go/internal/graph"
	"github.com/Benny93/dnnmodeler-go/internal/overlay"
)

var dense = catalog.BlockDefinition{Name: "Dense", Type: "dense"}

func verdict(ok bool, errText string) overlay.EdgeResult {
	return overlay.EdgeResult{Compatible: &ok, Error: errText}
}

func denseChain(t *testing.T) (*graph.Store, graph.Node) {
	t.Helper()
	s := graph.NewStore()
	n := s.AddBlockNode(dense)
	_, err := s.Connect(graph.InputID, n.ID)
	require.NoError(t, err)
	_, err = s.Connect(n.ID, graph.OutputID)
	require.NoError(t, err)
	return s, n
}

func TestCanBuild_Scenarios(t *testing.T) {
	t.Parallel()

	t.Run("FreshGraph", func(t *testing.T) {
		t.Parallel()
		s := graph.NewStore()
		assert.False(t, CanBuild(s.Nodes(), s.Edges(), nil))
	})

	t.Run("CompatibleChain", func(t *testing.T) {
		t.Parallel()
		s, n := denseChain(t)
		m := overlay.Map{
			overlay.Key(graph.InputID, n.ID):  verdict(true, ""),
			overlay.Key(n.ID, graph.OutputID): verdict(true, ""),
		}
		assert.True(t, CanBuild(s.Nodes(), s.Edges(), m))
	})

	t.Run("ShapeMismatch", func(t *testing.T) {
		t.Parallel()
		s, n := denseChain(t)
		m := overlay.Map{
			overlay.Key(graph.InputID, n.ID):  verdict(true, ""),
			overlay.Key(n.ID, graph.OutputID): verdict(false, "shape mismatch"),
		}

		assert.False(t, CanBuild(s.Nodes(), s.Edges(), m))
		view := overlay.Annotate(s.Nodes(), s.Edges(), m)
		assert.Equal(t, "shape mismatch", view.Node(graph.OutputID).Error)
	})

	t.Run("DeletedBlock", func(t *testing.T) {
		t.Parallel()
		s, n := denseChain(t)
		m := overlay.Map{
			overlay.Key(graph.InputID, n.ID):  verdict(true, ""),
			overlay.Key(n.ID, graph.OutputID): verdict(true, ""),
		}
		require.True(t, CanBuild(s.Nodes(), s.Edges(), m))

		_, err := s.DeleteNode(n.ID)
		require.NoError(t, err)

		assert.Empty(t, s.Edges())
		assert.False(t, CanBuild(s.Nodes(), s.Edges(), overlay.Map{}))
	})
}

func TestCanBuild_Properties(t *testing.T) {
	t.Parallel()

	t.Run("NoEdgesNeverBuildable", func(t *testing.T) {
		t.Parallel()
		s := graph.NewStore()
		for range 5 {
			s.AddBlockNode(dense)
		}
		assert.False(t, CanBuild(s.Nodes(), nil, nil))
		assert.False(t, CanBuild(s.Nodes(), []graph.Edge{}, overlay.Map{}))
	})

	t.Run("RemovingOnlyPathDisables", func(t *testing.T) {
		t.Parallel()
		s, _ := denseChain(t)
		edges := s.Edges()
		require.True(t, CanBuild(s.Nodes(), edges, nil))

		for i := range edges {
			subset := append(append([]graph.Edge(nil), edges[:i]...), edges[i+1:]...)
			assert.False(t, CanBuild(s.Nodes(), subset, nil), "without %s", edges[i].ID)
		}
	})

	t.Run("MissingVerdictBlocks", func(t *testing.T) {
		t.Parallel()
		s, n := denseChain(t)
		m := overlay.Map{overlay.Key(graph.InputID, n.ID): {}}
		assert.False(t, CanBuild(s.Nodes(), s.Edges(), m))
	})

	t.Run("DanglingEdgesIgnored", func(t *testing.T) {
		t.Parallel()
		nodes := graph.NewStore().Nodes()
		edges := []graph.Edge{
			{ID: "input-9", Source: graph.InputID, Target: "9"},
			{ID: "9-output", Source: "9", Target: graph.OutputID},
		}
		assert.False(t, CanBuild(nodes, edges, nil))
	})

	t.Run("MissingSentinels", func(t *testing.T) {
		t.Parallel()
		r := Evaluate(nil, nil, nil)
		assert.False(t, r.HasInput)
		assert.False(t, r.HasOutput)
		assert.False(t, r.Ready())
	})
}

func TestEvaluate_Cycle(t *testing.T) {
	t.Parallel()

	s, n := denseChain(t)
	loop := s.AddBlockNode(dense)
	_, err := s.Connect(n.ID, loop.ID)
	require.NoError(t, err)
	_, err = s.Connect(loop.ID, n.ID)
	require.NoError(t, err)

	r := Evaluate(s.Nodes(), s.Edges(), nil)

	assert.Equal(t, []string{n.ID, loop.ID}, r.Cycle)
	assert.True(t, r.Ready(), "cycles are advisory")
}

func TestFindCycle(t *testing.T) {
	t.Parallel()

	t.Run("Acyclic", func(t *testing.T) {
		t.Parallel()
		s, _ := denseChain(t)
		assert.Nil(t, FindCycle(s.Nodes(), s.Edges()))
	})

	t.Run("SelfLoop", func(t *testing.T) {
		t.Parallel()
		s := graph.NewStore()
		n := s.AddBlockNode(dense)
		_, err := s.Connect(n.ID, n.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{n.ID}, FindCycle(s.Nodes(), s.Edges()))
	})
}

func TestReachable(t *testing.T) {
	t.Parallel()

	s, n := denseChain(t)
	assert.True(t, Reachable(s.Nodes(), s.Edges(), graph.InputID, n.ID))
	assert.False(t, Reachable(s.Nodes(), s.Edges(), graph.OutputID, graph.InputID))
	assert.False(t, Reachable(s.Nodes(), s.Edges(), "missing", graph.OutputID))
}
