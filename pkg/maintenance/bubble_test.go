package maintenance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/uks/pkg/uks"
)

// bubbleFixture builds "dog" under Object with three children.
func bubbleFixture(t *testing.T) (*uks.Store, *uks.Thing, []*uks.Thing) {
	t.Helper()
	store := newTestStore(t)
	dog, err := store.AddThing("dog", store.Labeled("Object"))
	require.NoError(t, err)
	var children []*uks.Thing
	for _, name := range []string{"rex", "fido", "spot"} {
		child, err := store.AddThing(name, dog)
		require.NoError(t, err)
		children = append(children, child)
	}
	return store, dog, children
}

func TestAttributeBubble_PromotesMajorityAttribute(t *testing.T) {
	store, dog, kids := bubbleFixture(t)
	for _, child := range kids[:2] {
		_, err := store.AddRelationship(child, "is", "brown")
		require.NoError(t, err)
	}

	b := NewAttributeBubble()
	changed, err := b.Run(store)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	promoted := store.GetRelationship(dog, "is", "brown")
	require.NotNil(t, promoted)
	assert.InDelta(t, 0.7, promoted.Weight(), 1e-9)

	// Sustained agreement grows the edge to the cap, then holds.
	changed, err = b.Run(store)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.InDelta(t, 0.99, promoted.Weight(), 1e-9)

	changed, err = b.Run(store)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
	assert.InDelta(t, 0.99, promoted.Weight(), 1e-9)
}

func TestAttributeBubble_DropsUnsupportedParentEdge(t *testing.T) {
	store, dog, kids := bubbleFixture(t)
	_, err := store.AddRelationship(kids[2], "is", "brown", uks.WithWeight(0.3))
	require.NoError(t, err)
	dog.AddRelationship(store.Labeled("is"), store.Labeled("brown"), uks.WithWeight(0.9))

	changed, err := NewAttributeBubble().Run(store)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.Nil(t, store.GetRelationship(dog, "is", "brown"))
}

func TestAttributeBubble_ExclusiveTargets(t *testing.T) {
	setupColors := func(t *testing.T, store *uks.Store) {
		t.Helper()
		color, err := store.AddThing("color", store.Labeled("Object"))
		require.NoError(t, err)
		_, err = store.AddThing("red", color)
		require.NoError(t, err)
		_, err = store.AddThing("brown", color)
		require.NoError(t, err)
		excl, err := store.AddThing("isExclusive", nil)
		require.NoError(t, err)
		color.SetProperty(excl)
	}

	t.Run("minority_is_outvoted", func(t *testing.T) {
		store, dog, kids := bubbleFixture(t)
		setupColors(t, store)
		for _, child := range kids[:2] {
			_, err := store.AddRelationship(child, "is", "red")
			require.NoError(t, err)
		}
		_, err := store.AddRelationship(kids[2], "is", "brown")
		require.NoError(t, err)

		changed, err := NewAttributeBubble().Run(store)
		require.NoError(t, err)
		assert.Equal(t, 1, changed)

		promoted := store.GetRelationship(dog, "is", "red")
		require.NotNil(t, promoted)
		assert.InDelta(t, 0.51, promoted.Weight(), 1e-9)
		assert.Nil(t, store.GetRelationship(dog, "is", "brown"))
	})

	t.Run("promotion_displaces_contradicted_edge", func(t *testing.T) {
		store, dog, kids := bubbleFixture(t)
		setupColors(t, store)
		for _, child := range kids {
			_, err := store.AddRelationship(child, "is", "red")
			require.NoError(t, err)
		}
		dog.AddRelationship(store.Labeled("is"), store.Labeled("brown"), uks.WithWeight(0.6))

		changed, err := NewAttributeBubble().Run(store)
		require.NoError(t, err)
		assert.Equal(t, 2, changed)

		promoted := store.GetRelationship(dog, "is", "red")
		require.NotNil(t, promoted)
		assert.InDelta(t, 0.8, promoted.Weight(), 1e-9)
		assert.Nil(t, store.GetRelationship(dog, "is", "brown"))
	})
}

func TestAttributeBubble_NegatedTypesConflict(t *testing.T) {
	store, dog, kids := bubbleFixture(t)
	for _, child := range kids[:2] {
		_, err := store.AddRelationship(child, "is", "tall")
		require.NoError(t, err)
	}
	_, err := store.AddRelationship(kids[2], "isNot", "tall")
	require.NoError(t, err)
	not, err := store.GetOrAddThing("not", nil, nil)
	require.NoError(t, err)
	store.Labeled("isNot").SetAttribute(not)

	changed, err := NewAttributeBubble().Run(store)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	promoted := store.GetRelationship(dog, "is", "tall")
	require.NotNil(t, promoted)
	assert.InDelta(t, 0.51, promoted.Weight(), 1e-9)
	assert.Nil(t, store.GetRelationship(dog, "isNot", "tall"))
}

func TestAttributeBubble_NumericAttributesConflict(t *testing.T) {
	store, dog, kids := bubbleFixture(t)
	number, err := store.AddThing("number", store.Labeled("Object"))
	require.NoError(t, err)
	three, err := store.AddThing("3", number)
	require.NoError(t, err)
	for _, child := range kids[:2] {
		_, err := store.AddRelationship(child, "measures", "tall")
		require.NoError(t, err)
	}
	_, err = store.AddRelationship(kids[2], "sized", "tall")
	require.NoError(t, err)
	store.Labeled("measures").SetAttribute(three)

	changed, err := NewAttributeBubble().Run(store)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.NotNil(t, store.GetRelationship(dog, "measures", "tall"))
	assert.Nil(t, store.GetRelationship(dog, "sized", "tall"))
}

func TestAttributeBubble_SchemaTypesNeverBubble(t *testing.T) {
	store, dog, kids := bubbleFixture(t)
	blue, err := store.AddThing("blue", store.Labeled("Object"))
	require.NoError(t, err)
	for _, child := range kids {
		child.SetProperty(blue)
	}

	changed, err := NewAttributeBubble().Run(store)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
	assert.Nil(t, store.GetRelationship(dog, "hasProperty", "blue"))
}

func TestAttributeBubble_SubclassesCountAgainstParent(t *testing.T) {
	store := newTestStore(t)
	dog, err := store.AddThing("dog", store.Labeled("Object"))
	require.NoError(t, err)
	sub, err := store.AddThing("dog", dog)
	require.NoError(t, err)
	require.Equal(t, "dog0", sub.Label())
	for _, name := range []string{"rex", "fido"} {
		child, err := store.AddThing(name, sub)
		require.NoError(t, err)
		_, err = store.AddRelationship(child, "is", "brown")
		require.NoError(t, err)
	}
	spot, err := store.AddThing("spot", dog)
	require.NoError(t, err)
	_, err = store.AddRelationship(spot, "is", "brown")
	require.NoError(t, err)

	changed, err := NewAttributeBubble().Run(store)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	// dog sees three agreeing edges through the expanded subclass but has
	// only two direct children, so the no-opinion share goes negative and
	// damps the promotion.
	onDog := store.GetRelationship(dog, "is", "brown")
	require.NotNil(t, onDog)
	assert.InDelta(t, 0.7, onDog.Weight(), 1e-9)

	onSub := store.GetRelationship(sub, "is", "brown")
	require.NotNil(t, onSub)
	assert.InDelta(t, 0.7, onSub.Weight(), 1e-9)
}

func TestInstanceType(t *testing.T) {
	store := newTestStore(t)
	dog, err := store.AddThing("dog", store.Labeled("Object"))
	require.NoError(t, err)
	dog1, err := store.AddThing("dog1", dog)
	require.NoError(t, err)
	dog11, err := store.AddThing("dog11", dog1)
	require.NoError(t, err)
	cat, err := store.AddThing("cat", dog)
	require.NoError(t, err)

	assert.Same(t, dog, instanceType(dog1))
	assert.Same(t, dog, instanceType(dog11))
	assert.Same(t, cat, instanceType(cat))
	assert.Same(t, dog, instanceType(dog))
}
