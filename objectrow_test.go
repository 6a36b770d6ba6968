package bucketstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketTableName(t *testing.T) {
	assert.Equal(t, `"hosts"`, bucketTableName("hosts"))
}

func TestComputeEtagIsDeterministic(t *testing.T) {
	e1 := computeEtag(42, "hosts", "web1", []byte(`{"a":1}`))
	e2 := computeEtag(42, "hosts", "web1", []byte(`{"a":1}`))
	assert.Equal(t, e1, e2)
}

func TestComputeEtagDiffersOnSeedBucketKeyOrValue(t *testing.T) {
	base := computeEtag(42, "hosts", "web1", []byte(`{"a":1}`))
	assert.NotEqual(t, base, computeEtag(99, "hosts", "web1", []byte(`{"a":1}`)))
	assert.NotEqual(t, base, computeEtag(42, "other", "web1", []byte(`{"a":1}`)))
	assert.NotEqual(t, base, computeEtag(42, "hosts", "web2", []byte(`{"a":1}`)))
	assert.NotEqual(t, base, computeEtag(42, "hosts", "web1", []byte(`{"a":2}`)))
}

func TestIndexObjectProjectsOnlyPresentFields(t *testing.T) {
	desc := &BucketDescriptor{Name: "hosts", Index: IndexMap{
		"hostname": {Type: TypeString},
		"tags":     {Type: TypeString, Array: true},
	}}
	value := map[string]any{"hostname": "web1", "unrelated": "x"}
	cols, err := indexObject(desc, value)
	require.NoError(t, err)
	assert.Equal(t, "web1", cols["hostname"])
	_, hasTags := cols["tags"]
	assert.False(t, hasTags, "fields absent from the value must be omitted, not bound as null")
}

func TestIndexObjectWrapsCoercionError(t *testing.T) {
	desc := &BucketDescriptor{Name: "hosts", Index: IndexMap{
		"age": {Type: TypeNumber},
	}}
	_, err := indexObject(desc, map[string]any{"age": "not-a-number"})
	require.Error(t, err)
	assert.Equal(t, KindInvalidIndexType, ErrorKind(err))
}

func TestReconstructMergesProjectedColumns(t *testing.T) {
	desc := &BucketDescriptor{Name: "hosts", Index: IndexMap{
		"hostname": {Type: TypeString},
		"age":      {Type: TypeNumber},
	}}
	row := &storedObject{
		Key:   "web1",
		Value: []byte(`{"hostname":"stale","other":"kept"}`),
		ETag:  "abc",
	}
	projected := map[string]any{"hostname": "web1", "age": int64(3)}

	obj, err := reconstruct(desc, row, projected, nil)
	require.NoError(t, err)
	assert.Equal(t, "web1", obj.Value["hostname"])
	assert.Equal(t, int64(3), obj.Value["age"])
	assert.Equal(t, "kept", obj.Value["other"])
	assert.Equal(t, "abc", obj.ETag)
}

func TestReconstructDeletesFieldWhenColumnIsNull(t *testing.T) {
	desc := &BucketDescriptor{Name: "hosts", Index: IndexMap{
		"hostname": {Type: TypeString},
	}}
	row := &storedObject{Key: "web1", Value: []byte(`{"hostname":"web1"}`)}
	projected := map[string]any{"hostname": nil}

	obj, err := reconstruct(desc, row, projected, nil)
	require.NoError(t, err)
	_, ok := obj.Value["hostname"]
	assert.False(t, ok)
}

func TestReconstructIgnoreSkipsField(t *testing.T) {
	desc := &BucketDescriptor{Name: "hosts", Index: IndexMap{
		"hostname": {Type: TypeString},
	}}
	row := &storedObject{Key: "web1", Value: []byte(`{"hostname":"kept-as-is"}`)}
	projected := map[string]any{"hostname": "would-overwrite"}

	obj, err := reconstruct(desc, row, projected, map[string]bool{"hostname": true})
	require.NoError(t, err)
	assert.Equal(t, "kept-as-is", obj.Value["hostname"])
}

func TestReconstructPreservesExistingJSONArray(t *testing.T) {
	desc := &BucketDescriptor{Name: "hosts", Index: IndexMap{
		"tags": {Type: TypeString, Array: true},
	}}
	row := &storedObject{Key: "web1", Value: []byte(`{"tags":["a","b","c"]}`)}
	projected := map[string]any{"tags": []string{"a", "b"}}

	obj, err := reconstruct(desc, row, projected, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, obj.Value["tags"], "an existing JSON array wins over the projected column")
}
