package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ApplyChangeSet(t *testing.T) {
	t.Parallel()

	t.Run("PositionAndSelection", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		n := s.AddBlockNode(denseBlock())
		e, err := s.Connect(InputID, n.ID)
		require.NoError(t, err)
		v := s.Version()

		err = s.ApplyChangeSet(ChangeSet{
			Nodes: []NodeChange{
				{Type: ChangePosition, ID: n.ID, Position: &Position{X: 1, Y: 2}},
				{Type: ChangeSelect, ID: InputID, Selected: true},
			},
			Edges: []EdgeChange{{Type: ChangeSelect, ID: e.ID, Selected: true}},
		})
		require.NoError(t, err)

		moved, _ := s.Node(n.ID)
		assert.Equal(t, Position{X: 1, Y: 2}, moved.Position)
		in, _ := s.Node(InputID)
		assert.True(t, in.Selected)
		assert.True(t, s.Edges()[0].Selected)
		assert.Equal(t, v, s.Version())
	})

	t.Run("RemoveCascades", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		n := s.AddBlockNode(denseBlock())
		_, err := s.Connect(InputID, n.ID)
		require.NoError(t, err)
		_, err = s.Connect(n.ID, OutputID)
		require.NoError(t, err)
		v := s.Version()

		err = s.ApplyChangeSet(ChangeSet{Nodes: []NodeChange{{Type: ChangeRemove, ID: n.ID}}})
		require.NoError(t, err)

		assert.Len(t, s.Nodes(), 2)
		assert.Empty(t, s.Edges())
		assert.Equal(t, v+1, s.Version())
	})

	t.Run("ReservedRemovalRejectsWholeSet", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		n := s.AddBlockNode(denseBlock())

		err := s.ApplyChangeSet(ChangeSet{Nodes: []NodeChange{
			{Type: ChangeRemove, ID: n.ID},
			{Type: ChangeRemove, ID: OutputID},
		}})
		assert.ErrorIs(t, err, ErrReservedNode)
		assert.Len(t, s.Nodes(), 3)
	})

	t.Run("EdgeRemoval", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		e, err := s.Connect(InputID, OutputID)
		require.NoError(t, err)

		require.NoError(t, s.ApplyChangeSet(ChangeSet{Edges: []EdgeChange{{Type: ChangeRemove, ID: e.ID}}}))
		assert.Empty(t, s.Edges())
	})

	t.Run("UnknownIDsIgnored", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		err := s.ApplyChangeSet(ChangeSet{
			Nodes: []NodeChange{{Type: ChangeRemove, ID: "77"}},
			Edges: []EdgeChange{{Type: ChangeSelect, ID: "x-y"}},
		})
		assert.NoError(t, err)
		assert.Equal(t, uint64(0), s.Version())
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		t.Parallel()
		s := NewStore()
		err := s.ApplyChangeSet(ChangeSet{Edges: []EdgeChange{{Type: ChangePosition, ID: "a-b"}}})
		assert.Error(t, err)
	})
}

func TestStore_Select(t *testing.T) {
	t.Parallel()

	s := NewStore()
	n := s.AddBlockNode(denseBlock())
	e, err := s.Connect(InputID, n.ID)
	require.NoError(t, err)
	version := s.Version()

	require.NoError(t, s.Select(n.ID, e.ID))
	got, _ := s.Node(n.ID)
	assert.True(t, got.Selected)
	in, _ := s.Node(InputID)
	assert.False(t, in.Selected)
	assert.True(t, s.Edges()[0].Selected)

	require.NoError(t, s.Select("none"))
	got, _ = s.Node(n.ID)
	assert.False(t, got.Selected)
	assert.False(t, s.Edges()[0].Selected)
	assert.Equal(t, version, s.Version())
}
