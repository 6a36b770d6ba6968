package bucketstore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexFieldJSONRoundTrip(t *testing.T) {
	t.Run("scalar", func(t *testing.T) {
		f := IndexField{Type: TypeString, Unique: true}
		data, err := json.Marshal(f)
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"string","unique":true}`, string(data))

		var got IndexField
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, f, got)
	})

	t.Run("array", func(t *testing.T) {
		f := IndexField{Type: TypeNumber, Array: true}
		data, err := json.Marshal(f)
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"[number]"}`, string(data))

		var got IndexField
		require.NoError(t, json.Unmarshal(data, &got))
		assert.True(t, got.Array)
		assert.Equal(t, TypeNumber, got.Type)
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		var f IndexField
		err := json.Unmarshal([]byte(`{"type":"nope"}`), &f)
		require.Error(t, err)
	})

	t.Run("unknown key rejected", func(t *testing.T) {
		var f IndexField
		err := json.Unmarshal([]byte(`{"type":"string","bogus":1}`), &f)
		require.Error(t, err)
	})
}

func TestReindexActiveJSONRoundTrip(t *testing.T) {
	ra := ReindexActive{
		2: {"a": true, "b": true},
	}
	data, err := json.Marshal(ra)
	require.NoError(t, err)
	assert.JSONEq(t, `{"2":["a","b"]}`, string(data))

	var got ReindexActive
	require.NoError(t, json.Unmarshal(data, &got))
	assert.True(t, got.HasField("a"))
	assert.True(t, got.HasField("b"))
	assert.False(t, got.HasField("c"))
}

func TestReindexActiveClone(t *testing.T) {
	ra := ReindexActive{1: {"x": true}}
	clone := ra.Clone()
	clone[1]["y"] = true
	assert.False(t, ra.HasField("y"), "mutating the clone must not affect the original")
}

func TestIndexedFieldsSorted(t *testing.T) {
	d := &BucketDescriptor{Index: IndexMap{
		"zeta":  {Type: TypeString},
		"alpha": {Type: TypeString},
		"mid":   {Type: TypeString},
	}}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, d.IndexedFields())
}

func TestBucketDescriptorUsable(t *testing.T) {
	d := &BucketDescriptor{
		Index:         IndexMap{"cn": {Type: TypeString}},
		ReindexActive: ReindexActive{1: {"cn": true}},
	}
	assert.True(t, d.Usable("_key"))
	assert.False(t, d.Usable("cn"), "field currently being reindexed must not be usable")
	assert.False(t, d.Usable("nope"))

	d2 := &BucketDescriptor{Index: IndexMap{"cn": {Type: TypeString}}}
	assert.True(t, d2.Usable("cn"))
}

func TestValidateBucketName(t *testing.T) {
	require.NoError(t, ValidateBucketName("users"))
	require.NoError(t, ValidateBucketName("a"))
	require.NoError(t, ValidateBucketName("hosts_v2"))

	assert.Error(t, ValidateBucketName(""))
	assert.Error(t, ValidateBucketName("1abc"))
	assert.Error(t, ValidateBucketName("has-dash"))
	assert.Error(t, ValidateBucketName("moray"), "reserved names must be rejected")
}
