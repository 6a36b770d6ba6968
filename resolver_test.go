package bucketstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDescriptor() *BucketDescriptor {
	return &BucketDescriptor{
		Name: "hosts",
		Index: IndexMap{
			"hostname": {Type: TypeString},
			"addr":     {Type: TypeIP},
			"tags":     {Type: TypeString, Array: true},
		},
	}
}

func TestFieldTypeSystemFields(t *testing.T) {
	d := testDescriptor()
	pgType, isArray, found := d.FieldType("_id")
	require.True(t, found)
	assert.Equal(t, "bigint", pgType)
	assert.False(t, isArray)
}

func TestFieldTypeIndexedField(t *testing.T) {
	d := testDescriptor()
	pgType, isArray, found := d.FieldType("addr")
	require.True(t, found)
	assert.Equal(t, "inet", pgType)
	assert.False(t, isArray)

	pgType, isArray, found = d.FieldType("tags")
	require.True(t, found)
	assert.Equal(t, "text", pgType)
	assert.True(t, isArray)
}

func TestFieldTypeUnknown(t *testing.T) {
	d := testDescriptor()
	_, _, found := d.FieldType("nope")
	assert.False(t, found)
}

func TestCoerceSystemField(t *testing.T) {
	d := testDescriptor()
	v, err := d.Coerce("_id", "42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = d.Coerce("_key", "anything")
	require.NoError(t, err)
	assert.Equal(t, "anything", v)
}

func TestCoerceIndexedField(t *testing.T) {
	d := testDescriptor()
	v, err := d.Coerce("addr", "192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", v)
}

func TestCoerceUnknownField(t *testing.T) {
	d := testDescriptor()
	_, err := d.Coerce("nope", "x")
	require.Error(t, err)
	assert.Equal(t, KindNotIndexed, ErrorKind(err))
}
