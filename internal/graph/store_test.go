package graph

import (
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/dnnmodeler-go/internal/catalog"
)

func denseBlock() catalog.BlockDefinition {
	return catalog.BlockDefinition{
		Name: "Dense",
		Type: "dense",
		Parameters: catalog.Schema{
			"units":      {Default: 64, Kind: "int"},
			"activation": {Kind: "str"},
		},
	}
}

func fixedRandom(v float64) Option {
	return WithRandom(func() float64 { return v })
}

func TestNewStore(t *testing.T) {
	t.Parallel()

	s := NewStore()

	nodes := s.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, InputID, nodes[0].ID)
	assert.Equal(t, KindInput, nodes[0].Kind)
	assert.Equal(t, "Input Layer", nodes[0].Label)
	assert.Equal(t, map[string]any{"shape": ""}, nodes[0].Parameters)
	assert.NotEmpty(t, nodes[0].Placeholder)
	assert.Equal(t, OutputID, nodes[1].ID)
	assert.Equal(t, KindOutput, nodes[1].Kind)
	assert.Empty(t, s.Edges())
	assert.Equal(t, uint64(0), s.Version())
}

func TestStore_AddBlockNode(t *testing.T) {
	t.Parallel()

	t.Run("InitializesFromDefinition", func(t *testing.T) {
		t.Parallel()
		s := NewStore(fixedRandom(0.5))

		n := s.AddBlockNode(denseBlock())

		assert.Equal(t, "1", n.ID)
		assert.Equal(t, KindBlock, n.Kind)
		assert.Equal(t, "Dense", n.Label)
		assert.Equal(t, "dense", n.BlockType)
		assert.Equal(t, map[string]any{"units": 64, "activation": ""}, n.Parameters)
		assert.Equal(t, Position{X: 300, Y: 250}, n.Position)
		assert.Equal(t, uint64(1), s.Version())
	})

	t.Run("PlacementStaysInRegion", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		for range 50 {
			n := s.AddBlockNode(denseBlock())
			assert.GreaterOrEqual(t, n.Position.X, 200.0)
			assert.Less(t, n.Position.X, 400.0)
			assert.GreaterOrEqual(t, n.Position.Y, 100.0)
			assert.Less(t, n.Position.Y, 400.0)
		}
	})

	t.Run("SequentialIDs", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		assert.Equal(t, "1", s.AddBlockNode(denseBlock()).ID)
		assert.Equal(t, "2", s.AddBlockNode(denseBlock()).ID)
		assert.Equal(t, "3", s.AddBlockNode(denseBlock()).ID)
	})

	t.Run("IDExceedsLargestAfterDeletion", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		s.AddBlockNode(denseBlock())
		s.AddBlockNode(denseBlock())
		s.AddBlockNode(denseBlock())

		_, err := s.DeleteNode("2")
		require.NoError(t, err)

		assert.Equal(t, "4", s.AddBlockNode(denseBlock()).ID)
	})

	t.Run("ReturnedNodeIsACopy", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		n := s.AddBlockNode(denseBlock())
		n.Parameters["units"] = "999"

		stored, ok := s.Node(n.ID)
		require.True(t, ok)
		assert.Equal(t, 64, stored.Parameters["units"])
	})
}

func TestStore_IDUniqueness(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(1, 2))
	s := NewStore()

	for range 500 {
		nodes := s.Nodes()
		if r.IntN(3) == 0 && len(nodes) > 2 {
			victim := nodes[2+r.IntN(len(nodes)-2)]
			_, err := s.DeleteNode(victim.ID)
			require.NoError(t, err)
		} else {
			s.AddBlockNode(denseBlock())
		}

		seen := make(map[string]bool)
		for _, n := range s.Nodes() {
			require.False(t, seen[n.ID], "duplicate id %s", n.ID)
			seen[n.ID] = true
		}
	}
}

func TestStore_DeleteNode(t *testing.T) {
	t.Parallel()

	t.Run("CascadesEdges", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		a := s.AddBlockNode(denseBlock())
		b := s.AddBlockNode(denseBlock())
		_, err := s.Connect(InputID, a.ID)
		require.NoError(t, err)
		_, err = s.Connect(a.ID, b.ID)
		require.NoError(t, err)
		_, err = s.Connect(b.ID, OutputID)
		require.NoError(t, err)

		removed, err := s.DeleteNode(a.ID)
		require.NoError(t, err)
		assert.True(t, removed)

		_, ok := s.Node(a.ID)
		assert.False(t, ok)
		edges := s.Edges()
		require.Len(t, edges, 1)
		for _, e := range edges {
			assert.NotEqual(t, a.ID, e.Source)
			assert.NotEqual(t, a.ID, e.Target)
		}
	})

	t.Run("MissingIsNoop", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		removed, err := s.DeleteNode("42")
		assert.NoError(t, err)
		assert.False(t, removed)
		assert.Equal(t, uint64(0), s.Version())
	})

	t.Run("RejectsReserved", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		for _, id := range []string{InputID, OutputID} {
			removed, err := s.DeleteNode(id)
			assert.ErrorIs(t, err, ErrReservedNode)
			assert.False(t, removed)
		}
		assert.Len(t, s.Nodes(), 2)
	})
}

func TestStore_DeleteEdge(t *testing.T) {
	t.Parallel()

	s := NewStore()
	e, err := s.Connect(InputID, OutputID)
	require.NoError(t, err)

	assert.True(t, s.DeleteEdge(e.ID))
	assert.Empty(t, s.Edges())
	assert.False(t, s.DeleteEdge(e.ID))
}

func TestStore_Connect(t *testing.T) {
	t.Parallel()

	t.Run("DeterministicID", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		n := s.AddBlockNode(denseBlock())

		e, err := s.Connect(InputID, n.ID)
		require.NoError(t, err)
		assert.Equal(t, "input-1", e.ID)
		assert.Equal(t, InputID, e.Source)
		assert.Equal(t, "1", e.Target)
	})

	t.Run("RejectsUnknownEndpoints", func(t *testing.T) {
		t.Parallel()
		s := NewStore()

		_, err := s.Connect("nope", OutputID)
		assert.ErrorIs(t, err, ErrNodeNotFound)
		_, err = s.Connect(InputID, "nope")
		assert.ErrorIs(t, err, ErrNodeNotFound)
		assert.Empty(t, s.Edges())
	})

	t.Run("DuplicatePairIsUpsert", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		_, err := s.Connect(InputID, OutputID)
		require.NoError(t, err)
		v := s.Version()

		e, err := s.Connect(InputID, OutputID)
		require.NoError(t, err)
		assert.Equal(t, "input-output", e.ID)
		assert.Len(t, s.Edges(), 1)
		assert.Equal(t, v, s.Version())
	})

	t.Run("AllowsCycles", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		a := s.AddBlockNode(denseBlock())
		b := s.AddBlockNode(denseBlock())
		_, err := s.Connect(a.ID, b.ID)
		require.NoError(t, err)
		_, err = s.Connect(b.ID, a.ID)
		require.NoError(t, err)
		assert.Len(t, s.Edges(), 2)
	})
}

func TestStore_SetParameter(t *testing.T) {
	t.Parallel()

	t.Run("StoresRawValue", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		n := s.AddBlockNode(denseBlock())

		require.NoError(t, s.SetParameter(n.ID, "units", "(12"))

		stored, _ := s.Node(n.ID)
		assert.Equal(t, "(12", stored.Parameters["units"])
	})

	t.Run("InputShape", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		require.NoError(t, s.SetParameter(InputID, ShapeParam, "(1, 28, 28)"))

		in, _ := s.Node(InputID)
		assert.Equal(t, "(1, 28, 28)", in.Parameters[ShapeParam])
	})

	t.Run("UnknownNode", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		err := s.SetParameter("7", "units", "1")
		assert.ErrorIs(t, err, ErrNodeNotFound)
		assert.Equal(t, uint64(0), s.Version())
	})
}

func TestStore_MoveNode(t *testing.T) {
	t.Parallel()

	s := NewStore()
	require.NoError(t, s.MoveNode(OutputID, Position{X: 10, Y: 20}))

	out, _ := s.Node(OutputID)
	assert.Equal(t, Position{X: 10, Y: 20}, out.Position)
	assert.Equal(t, uint64(0), s.Version(), "moving is presentation-only")
	assert.ErrorIs(t, s.MoveNode("9", Position{}), ErrNodeNotFound)
}

func TestStore_Subscribe(t *testing.T) {
	t.Parallel()

	t.Run("ReceivesVersions", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		ch, cancel := s.Subscribe()
		defer cancel()

		s.AddBlockNode(denseBlock())
		assert.Equal(t, uint64(1), <-ch)
	})

	t.Run("CoalescesToNewest", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		ch, cancel := s.Subscribe()
		defer cancel()

		for range 5 {
			s.AddBlockNode(denseBlock())
		}

		assert.Equal(t, uint64(5), <-ch)
		select {
		case v := <-ch:
			t.Fatalf("unexpected pending version %d", v)
		default:
		}
	})

	t.Run("CancelClosesChannel", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		ch, cancel := s.Subscribe()
		cancel()
		cancel()

		_, open := <-ch
		assert.False(t, open)
		s.AddBlockNode(denseBlock())
	})
}

func TestStore_Snapshot(t *testing.T) {
	t.Parallel()

	s := NewStore()
	for i := range 3 {
		s.AddBlockNode(denseBlock())
		_, err := s.Connect(InputID, strconv.Itoa(i+1))
		require.NoError(t, err)
	}

	snap := s.Snapshot()
	assert.Equal(t, s.Version(), snap.Version)
	assert.Len(t, snap.Nodes, 5)
	assert.Len(t, snap.Edges, 3)

	snap.Edges[0].Target = "mutated"
	assert.Equal(t, "1", s.Edges()[0].Target)
}
