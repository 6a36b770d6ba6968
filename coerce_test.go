package bucketstore

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceScalar(t *testing.T) {
	t.Run("string", func(t *testing.T) {
		v, err := CoerceScalar("name", TypeString, 42.0)
		require.NoError(t, err)
		assert.Equal(t, "42", v)
	})

	t.Run("number from float", func(t *testing.T) {
		v, err := CoerceScalar("age", TypeNumber, 7.0)
		require.NoError(t, err)
		assert.Equal(t, int64(7), v)
	})

	t.Run("number rejects non-integer float", func(t *testing.T) {
		_, err := CoerceScalar("age", TypeNumber, 7.5)
		require.Error(t, err)
	})

	t.Run("boolean truthy string", func(t *testing.T) {
		v, err := CoerceScalar("active", TypeBoolean, "TRUE")
		require.NoError(t, err)
		assert.Equal(t, true, v)
	})

	t.Run("ip canonicalises", func(t *testing.T) {
		v, err := CoerceScalar("addr", TypeIP, "::ffff:192.0.2.1")
		require.NoError(t, err)
		assert.Equal(t, "::ffff:192.0.2.1", v)
	})

	t.Run("ip rejects garbage", func(t *testing.T) {
		_, err := CoerceScalar("addr", TypeIP, "not-an-ip")
		require.Error(t, err)
	})

	t.Run("subnet masks host bits", func(t *testing.T) {
		v, err := CoerceScalar("cidr", TypeSubnet, "192.0.2.5/24")
		require.NoError(t, err)
		assert.Equal(t, "192.0.2.0/24", v)
	})
}

func TestCoerceColumnArray(t *testing.T) {
	t.Run("scalar input promoted to one-element array", func(t *testing.T) {
		idx := IndexField{Type: TypeString, Array: true}
		v, err := CoerceColumn("tags", idx, "prod")
		require.NoError(t, err)
		assert.Equal(t, pq.StringArray{"prod"}, v)
	})

	t.Run("number array", func(t *testing.T) {
		idx := IndexField{Type: TypeNumber, Array: true}
		v, err := CoerceColumn("ports", idx, []any{80.0, 443.0})
		require.NoError(t, err)
		assert.Equal(t, pq.Int64Array{80, 443}, v)
	})

	t.Run("nil stays nil", func(t *testing.T) {
		idx := IndexField{Type: TypeString, Array: true}
		v, err := CoerceColumn("tags", idx, nil)
		require.NoError(t, err)
		assert.Nil(t, v)
	})
}

func TestSQLColumnType(t *testing.T) {
	assert.Equal(t, "text", sqlColumnType(IndexField{Type: TypeString}))
	assert.Equal(t, "bigint", sqlColumnType(IndexField{Type: TypeNumber}))
	assert.Equal(t, "boolean", sqlColumnType(IndexField{Type: TypeBoolean}))
	assert.Equal(t, "inet", sqlColumnType(IndexField{Type: TypeIP}))
	assert.Equal(t, "cidr", sqlColumnType(IndexField{Type: TypeSubnet}))
	assert.Equal(t, "text[]", sqlColumnType(IndexField{Type: TypeString, Array: true}))
	assert.Equal(t, "inet[]", sqlColumnType(IndexField{Type: TypeIP, Array: true}))
}

func TestArrayLiteralEscaping(t *testing.T) {
	got := formatArrayLiteral([]string{`plain`, `has,comma`, `has"quote`, `back\slash`})
	assert.Equal(t, `{plain,"has\,comma","has\"quote","back\\slash"}`, got)
}

func TestReverseColumn(t *testing.T) {
	idx := IndexField{Type: TypeNumber}
	assert.Equal(t, int64(5), ReverseColumn(idx, int64(5)))

	arrIdx := IndexField{Type: TypeString, Array: true}
	assert.Equal(t, []string{"a", "b"}, ReverseColumn(arrIdx, []string{"a", "b"}))

	assert.Nil(t, ReverseColumn(idx, nil))
}
