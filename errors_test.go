package bucketstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"bucket not found", errBucketNotFound("users"), KindBucketNotFound},
		{"object not found", errObjectNotFound("users", "k1"), KindObjectNotFound},
		{"etag conflict", errEtagConflict("users", "k1", "a", "b"), KindEtagConflict},
		{"not indexed", errNotIndexed("users", "cn"), KindNotIndexed},
		{"invalid query", errInvalidQuery("users", "bad filter"), KindInvalidQuery},
		{"transient", errTransient("users", errors.New("deadlock")), KindTransient},
		{"internal", errInternal("users", errors.New("boom")), KindInternal},
		{"plain error defaults to internal", errors.New("whatever"), KindInternal},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, ErrorKind(c.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errTransient("users", errors.New("deadlock"))))
	assert.False(t, IsRetryable(errObjectNotFound("users", "k1")))
}

func TestStoreErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := errInternal("users", cause)
	require.ErrorIs(t, err, cause)
}

func TestStoreErrorMessageIncludesLocation(t *testing.T) {
	err := errEtagConflict("users", "alice", "abc", "def")
	msg := err.Error()
	assert.Contains(t, msg, "users/alice")
	assert.Contains(t, msg, "abc")
	assert.Contains(t, msg, "def")
}

func TestErrorClassesMatchWrapped(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", errBucketNotFound("users"))
	assert.True(t, ErrBucketNotFound.Has(err))
	assert.False(t, ErrObjectNotFound.Has(err))
}
