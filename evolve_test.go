package bucketstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffIndex(t *testing.T) {
	old := IndexMap{
		"cn":  {Type: TypeString},
		"age": {Type: TypeNumber},
	}
	next := IndexMap{
		"cn":    {Type: TypeString},
		"age":   {Type: TypeBoolean}, // type changed
		"email": {Type: TypeString},  // added
	}
	d := diffIndex(old, next)
	assert.ElementsMatch(t, []string{"email"}, d.add)
	assert.ElementsMatch(t, []string{"age"}, d.mod)
	assert.Empty(t, d.del)
}

func TestDiffIndexDeletion(t *testing.T) {
	old := IndexMap{"cn": {Type: TypeString}, "stale": {Type: TypeString}}
	next := IndexMap{"cn": {Type: TypeString}}
	d := diffIndex(old, next)
	assert.Equal(t, []string{"stale"}, d.del)
	assert.Empty(t, d.add)
	assert.Empty(t, d.mod)
}

func TestDiffIndexNoChanges(t *testing.T) {
	m := IndexMap{"cn": {Type: TypeString, Unique: true}}
	d := diffIndex(m, m)
	assert.Empty(t, d.add)
	assert.Empty(t, d.del)
	assert.Empty(t, d.mod)
}

func TestIndexName(t *testing.T) {
	assert.Equal(t, "users_cn_idx", indexName("users", "cn"))
}

func TestConsolidateReindex(t *testing.T) {
	ra := ReindexActive{1: {"a": true}}
	out := consolidateReindex(ra, 2, []string{"b", "c"})
	assert.True(t, out.HasField("a"))
	assert.True(t, out.HasField("b"))
	assert.True(t, out.HasField("c"))
	assert.False(t, ra.HasField("b"), "original map must not be mutated")
}

func TestConsolidateReindexNoFieldsIsNoop(t *testing.T) {
	ra := ReindexActive{1: {"a": true}}
	out := consolidateReindex(ra, 2, nil)
	assert.False(t, out.HasField("2"))
	_, ok := out[2]
	assert.False(t, ok)
}

func TestClearReindexVersions(t *testing.T) {
	ra := ReindexActive{1: {"a": true}, 2: {"b": true}}
	out := clearReindexVersions(ra, 1)
	assert.False(t, out.HasField("a"))
	assert.True(t, out.HasField("b"))
	_, stillThere := ra[1]
	assert.True(t, stillThere, "original map must not be mutated")
}

func TestClearReindexVersionsClearsAllCompleted(t *testing.T) {
	ra := ReindexActive{1: {"a": true}, 2: {"b": true}, 3: {"c": true}}
	out := clearReindexVersions(ra, 2)
	assert.False(t, out.HasField("a"))
	assert.False(t, out.HasField("b"))
	assert.True(t, out.HasField("c"))
}
