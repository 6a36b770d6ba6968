package bucketstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogDecode(t *testing.T) {
	reg := NewTriggerRegistry()
	reg.Register("audit", func(ctx context.Context, c *TriggerCookie) error { return nil })
	cat := &catalog{triggers: reg}

	row := &catalogRow{
		Name:          "hosts",
		IndexMap:      []byte(`{"hostname":{"type":"string"}}`),
		Pre:           []byte(`["audit"]`),
		Post:          []byte(`[]`),
		Options:       []byte(`{"version":3}`),
		ReindexActive: []byte(`{"3":["hostname"]}`),
		RVer:          7,
	}

	desc, err := cat.decode(row)
	require.NoError(t, err)
	assert.Equal(t, "hosts", desc.Name)
	assert.Contains(t, desc.Index, "hostname")
	assert.Equal(t, int64(3), desc.Options.Version)
	assert.True(t, desc.ReindexActive.HasField("hostname"))
	require.Len(t, desc.PreFuncs, 1)
	assert.Empty(t, desc.PostFuncs)
}

func TestCatalogDecodeUnregisteredTriggerFails(t *testing.T) {
	reg := NewTriggerRegistry()
	cat := &catalog{triggers: reg}
	row := &catalogRow{
		Name: "hosts",
		Pre:  []byte(`["missing"]`),
	}
	_, err := cat.decode(row)
	require.Error(t, err)
	assert.Equal(t, KindNotFunction, ErrorKind(err))
}

func TestCatalogDecodeMalformedJSON(t *testing.T) {
	cat := &catalog{triggers: NewTriggerRegistry()}
	row := &catalogRow{Name: "hosts", IndexMap: []byte(`not json`)}
	_, err := cat.decode(row)
	require.Error(t, err)
	assert.Equal(t, KindInternal, ErrorKind(err))
}

func TestCatalogCacheGetAndInvalidate(t *testing.T) {
	cache, err := newCatalogCache(4)
	require.NoError(t, err)
	c := &catalog{cache: cache, triggers: NewTriggerRegistry()}

	desc := &BucketDescriptor{Name: "hosts"}
	c.cache.Add("hosts", &cacheEntry{desc: desc})

	got, err := c.get(context.Background(), nil, "hosts")
	require.NoError(t, err)
	assert.Same(t, desc, got)

	c.invalidate("hosts")
	_, ok := c.cache.Get("hosts")
	assert.False(t, ok)
}
