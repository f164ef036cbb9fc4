package uks

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Export(t *testing.T) {
	s := newTestStore(t)
	cat, err := s.AddThing("Cat", nil)
	require.NoError(t, err)
	cat.SetValue("tabby")
	_, err = s.AddRelationship("Cat", "likes", "fish", WithWeight(0.75))
	require.NoError(t, err)
	_, err = s.AddRelationship("Cat", "seen", nil, WithTTL(1500*time.Millisecond))
	require.NoError(t, err)

	p := s.Export()
	require.NotNil(t, p)
	assert.Len(t, p.Things, s.ThingCount())
	assert.Len(t, p.Statements, s.RelationshipCount())

	byLabel := make(map[string]any)
	for _, tr := range p.Things {
		byLabel[tr.Label] = tr.Value
	}
	assert.Contains(t, byLabel, "Object")
	assert.Contains(t, byLabel, "Cat")
	assert.Equal(t, "tabby", byLabel["Cat"])

	var likes, seen bool
	for _, sr := range p.Statements {
		switch sr.RelType {
		case "likes":
			likes = true
			require.NotNil(t, sr.Target)
			assert.Equal(t, "fish", *sr.Target)
			assert.Equal(t, 0.75, sr.Weight)
			assert.Nil(t, sr.TTL)
		case "seen":
			seen = true
			assert.Nil(t, sr.Target)
			require.NotNil(t, sr.TTL)
			assert.Equal(t, 1.5, *sr.TTL)
		}
	}
	assert.True(t, likes)
	assert.True(t, seen)
}

func TestStore_Import(t *testing.T) {
	t.Run("nil_project_is_an_error", func(t *testing.T) {
		s := newTestStore(t)
		assert.ErrorIs(t, s.Import(nil, false), ErrNilProject)
	})

	t.Run("replace_rebuilds_from_scratch", func(t *testing.T) {
		src := newTestStore(t)
		animal, err := src.AddThing("animal", nil)
		require.NoError(t, err)
		_, err = src.AddThing("dog", animal)
		require.NoError(t, err)
		_, err = src.AddRelationship("dog", "does", "bark")
		require.NoError(t, err)
		p := src.Export()

		dst := newTestStore(t)
		_, err = dst.AddRelationship("stale", "fact", "gone")
		require.NoError(t, err)

		require.NoError(t, dst.Import(p, false))

		assert.Nil(t, dst.Labeled("stale"))
		assert.Equal(t, src.ThingCount(), dst.ThingCount())
		assert.Equal(t, src.RelationshipCount(), dst.RelationshipCount())

		// Structure comes back through the has-child statements.
		dog := dst.Labeled("dog")
		require.NotNil(t, dog)
		require.Len(t, dog.Parents(), 1)
		assert.Equal(t, "animal", dog.Parents()[0].Label())
	})

	t.Run("merge_adds_and_upserts", func(t *testing.T) {
		src := newTestStore(t)
		_, err := src.AddRelationship("cat", "likes", "fish", WithWeight(0.9))
		require.NoError(t, err)
		_, err = src.AddRelationship("bird", "likes", "seeds")
		require.NoError(t, err)
		p := src.Export()

		dst := newTestStore(t)
		weak, err := dst.AddRelationship("Cat", "likes", "fish", WithWeight(0.4))
		require.NoError(t, err)

		require.NoError(t, dst.Import(p, true))

		// Same edge, max-merged weight, display label untouched.
		assert.Equal(t, 0.9, weak.Weight())
		assert.Equal(t, "Cat", dst.Labeled("cat").Label())
		assert.NotNil(t, dst.Labeled("bird"))
	})
}

func TestStore_SaveLoad_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.json")

	src := newTestStore(t)
	cat, err := src.AddThing("Cat", nil)
	require.NoError(t, err)
	cat.SetValue("tabby")
	_, err = src.AddRelationship("Cat", "likes", "fish", WithWeight(0.75))
	require.NoError(t, err)
	_, err = src.AddRelationship("Cat", "seen", nil, WithTTL(1500*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, src.Save(path))

	dst := newTestStore(t)
	require.NoError(t, dst.Load(path, false))

	assert.Equal(t, src.ThingCount(), dst.ThingCount())
	assert.Equal(t, src.RelationshipCount(), dst.RelationshipCount())
	assert.Equal(t, "tabby", dst.Labeled("cat").Value())

	likes := dst.GetRelationship("cat", "likes", "fish")
	require.NotNil(t, likes)
	assert.Equal(t, 0.75, likes.Weight())

	seen := dst.GetRelationship("cat", "seen", nil)
	require.NotNil(t, seen)
	assert.Equal(t, 1500*time.Millisecond, seen.TTL())
	assert.Equal(t, 1, dst.TransientCount())
}

func TestStore_SaveLoad_XML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.xml")

	src := newTestStore(t)
	_, err := src.AddRelationship("dog", "chases", "ball", WithWeight(0.5))
	require.NoError(t, err)

	require.NoError(t, src.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<UKSProject>")
	assert.Contains(t, string(data), "<reltype>chases</reltype>")

	dst := newTestStore(t)
	require.NoError(t, dst.Load(path, false))

	assert.Equal(t, src.ThingCount(), dst.ThingCount())
	assert.Equal(t, src.RelationshipCount(), dst.RelationshipCount())
	rel := dst.GetRelationship("dog", "chases", "ball")
	require.NotNil(t, rel)
	assert.Equal(t, 0.5, rel.Weight())
}

func TestStore_Load_Errors(t *testing.T) {
	t.Run("missing_file", func(t *testing.T) {
		s := newTestStore(t)
		err := s.Load(filepath.Join(t.TempDir(), "absent.json"), false)
		assert.ErrorContains(t, err, "read")
	})

	t.Run("malformed_json_imports_nothing", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

		s := newTestStore(t)
		_, err := s.AddRelationship("cat", "likes", "fish")
		require.NoError(t, err)
		before := s.RelationshipCount()

		assert.ErrorContains(t, s.Load(path, false), "decode project")
		assert.Equal(t, before, s.RelationshipCount())
	})

	t.Run("truncated_xml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.xml")
		require.NoError(t, os.WriteFile(path, []byte("<UKSProject><things>"), 0o644))

		s := newTestStore(t)
		assert.ErrorContains(t, s.Load(path, false), "parse project xml")
	})
}
