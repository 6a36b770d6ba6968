package bucketstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBucketConfig(t *testing.T) {
	reg := NewTriggerRegistry()
	reg.Register("audit", func(ctx context.Context, cookie *TriggerCookie) error { return nil })

	t.Run("valid", func(t *testing.T) {
		cfg := BucketConfig{
			Index:   IndexMap{"cn": {Type: TypeString}},
			Options: BucketOptions{Version: 1},
		}
		require.NoError(t, ValidateBucketConfig("users", cfg, reg))
	})

	t.Run("negative version rejected", func(t *testing.T) {
		cfg := BucketConfig{Options: BucketOptions{Version: -1}}
		assert.Error(t, ValidateBucketConfig("users", cfg, reg))
	})

	t.Run("empty field name rejected", func(t *testing.T) {
		cfg := BucketConfig{Index: IndexMap{"": {Type: TypeString}}}
		assert.Error(t, ValidateBucketConfig("users", cfg, reg))
	})

	t.Run("system field collision rejected", func(t *testing.T) {
		cfg := BucketConfig{Index: IndexMap{"_id": {Type: TypeNumber}}}
		assert.Error(t, ValidateBucketConfig("users", cfg, reg))
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		cfg := BucketConfig{Index: IndexMap{"cn": {Type: "bogus"}}}
		assert.Error(t, ValidateBucketConfig("users", cfg, reg))
	})

	t.Run("unregistered trigger rejected", func(t *testing.T) {
		cfg := BucketConfig{Pre: []string{"nope"}}
		err := ValidateBucketConfig("users", cfg, reg)
		require.Error(t, err)
		assert.Equal(t, KindNotFunction, ErrorKind(err))
	})
}
