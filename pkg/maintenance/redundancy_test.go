package maintenance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/uks/pkg/uks"
)

func TestRedundancyPruner_WeakensInheritedFact(t *testing.T) {
	store := newTestStore(t)
	_, err := store.AddRelationship("animal", "eats", "meat")
	require.NoError(t, err)
	dog, err := store.AddThing("dog", store.Labeled("animal"))
	require.NoError(t, err)
	local, err := store.AddRelationship(dog, "eats", "meat")
	require.NoError(t, err)

	changed, err := NewRedundancyPruner().Run(store)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.InDelta(t, 0.9, local.Weight(), 1e-9)

	// The ancestor's copy is untouched.
	assert.Equal(t, 1.0, store.GetRelationship("animal", "eats", "meat").Weight())
}

func TestRedundancyPruner_RemovesBelowHalf(t *testing.T) {
	store := newTestStore(t)
	_, err := store.AddRelationship("animal", "eats", "meat")
	require.NoError(t, err)
	dog, err := store.AddThing("dog", store.Labeled("animal"))
	require.NoError(t, err)
	_, err = store.AddRelationship(dog, "eats", "meat", uks.WithWeight(0.55))
	require.NoError(t, err)

	changed, err := NewRedundancyPruner().Run(store)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.Nil(t, store.GetRelationship("dog", "eats", "meat"))
}

func TestRedundancyPruner_ConvergesOverRuns(t *testing.T) {
	store := newTestStore(t)
	_, err := store.AddRelationship("animal", "eats", "meat")
	require.NoError(t, err)
	dog, err := store.AddThing("dog", store.Labeled("animal"))
	require.NoError(t, err)
	_, err = store.AddRelationship(dog, "eats", "meat")
	require.NoError(t, err)

	p := NewRedundancyPruner()
	for i := 0; i < 6; i++ {
		changed, err := p.Run(store)
		require.NoError(t, err)
		assert.Equal(t, 1, changed, "run %d", i)
	}
	assert.Nil(t, store.GetRelationship("dog", "eats", "meat"))

	changed, err := p.Run(store)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
}

func TestRedundancyPruner_IgnoresWeakAncestors(t *testing.T) {
	store := newTestStore(t)
	_, err := store.AddRelationship("animal", "eats", "meat", uks.WithWeight(0.7))
	require.NoError(t, err)
	dog, err := store.AddThing("dog", store.Labeled("animal"))
	require.NoError(t, err)
	local, err := store.AddRelationship(dog, "eats", "meat")
	require.NoError(t, err)

	changed, err := NewRedundancyPruner().Run(store)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
	assert.Equal(t, 1.0, local.Weight())
}

func TestRedundancyPruner_LeavesUniqueFacts(t *testing.T) {
	store := newTestStore(t)
	dog, err := store.AddThing("dog", store.Labeled("Object"))
	require.NoError(t, err)
	bark, err := store.AddRelationship(dog, "does", "bark")
	require.NoError(t, err)

	changed, err := NewRedundancyPruner().Run(store)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
	assert.Equal(t, 1.0, bark.Weight())
}
