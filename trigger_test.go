package bucketstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerRegistryRegisterAndResolve(t *testing.T) {
	reg := NewTriggerRegistry()
	called := false
	reg.Register("mark", func(ctx context.Context, c *TriggerCookie) error {
		called = true
		return nil
	})

	assert.True(t, reg.has("mark"))
	assert.False(t, reg.has("missing"))

	fns, err := reg.resolve("users", []string{"mark"})
	require.NoError(t, err)
	require.Len(t, fns, 1)

	require.NoError(t, fns[0](context.Background(), &TriggerCookie{}))
	assert.True(t, called)
}

func TestTriggerRegistryResolveUnregisteredFails(t *testing.T) {
	reg := NewTriggerRegistry()
	_, err := reg.resolve("users", []string{"nope"})
	require.Error(t, err)
	assert.Equal(t, KindNotFunction, ErrorKind(err))
}

func TestTriggerRegistryResolveEmpty(t *testing.T) {
	reg := NewTriggerRegistry()
	fns, err := reg.resolve("users", nil)
	require.NoError(t, err)
	assert.Nil(t, fns)
}

func TestRunTriggersStopsOnFirstError(t *testing.T) {
	var ran []int
	boom := errors.New("boom")
	fns := []TriggerFunc{
		func(ctx context.Context, c *TriggerCookie) error { ran = append(ran, 1); return nil },
		func(ctx context.Context, c *TriggerCookie) error { ran = append(ran, 2); return boom },
		func(ctx context.Context, c *TriggerCookie) error { ran = append(ran, 3); return nil },
	}
	err := runTriggers(context.Background(), fns, &TriggerCookie{})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1, 2}, ran)
}

func TestRunTriggersRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	fns := []TriggerFunc{
		func(ctx context.Context, c *TriggerCookie) error { called = true; return nil },
	}
	err := runTriggers(ctx, fns, &TriggerCookie{})
	require.Error(t, err)
	assert.False(t, called)
}
