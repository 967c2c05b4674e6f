package bittensor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingClient wraps a ChainClient and counts GetMetagraph calls, to
// assert cache hits avoid hitting the source.
type countingClient struct {
	ChainClient
	calls int
}

func (c *countingClient) GetMetagraph(ctx context.Context, netuid NetUid, block *Block) (Metagraph, error) {
	c.calls++
	return c.ChainClient.GetMetagraph(ctx, netuid, block)
}

func newOpenMockClient(t *testing.T) *Client {
	t.Helper()
	backend := NewMockBackend("5F_validator")
	backend.SetLatest(Block{Number: 100})
	backend.Neurons[100] = []Neuron{{UID: 0, Hotkey: "5F_validator"}}
	c := NewClient("mock://chain", backend)
	require.NoError(t, c.Open(context.Background()))
	return c
}

func TestMetagraphCacheHitsAvoidSource(t *testing.T) {
	source := &countingClient{ChainClient: newOpenMockClient(t)}
	cache := NewMetagraphCache(source, 0, time.Minute)
	ctx := context.Background()
	block := &Block{Number: 100}

	m1, err := cache.GetMetagraph(ctx, 1, block)
	require.NoError(t, err)
	m2, err := cache.GetMetagraph(ctx, 1, block)
	require.NoError(t, err)

	assert.Equal(t, m1, m2)
	assert.Equal(t, 1, source.calls, "second read for the same key must be served from cache")
	assert.Equal(t, 1, cache.Len())
}

func TestMetagraphCacheLatestBlockBypassesCache(t *testing.T) {
	source := &countingClient{ChainClient: newOpenMockClient(t)}
	cache := NewMetagraphCache(source, 0, time.Minute)
	ctx := context.Background()

	_, err := cache.GetMetagraph(ctx, 1, nil)
	require.NoError(t, err)
	_, err = cache.GetMetagraph(ctx, 1, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, source.calls)
	assert.Equal(t, 0, cache.Len())
}

func TestMetagraphCacheExpiresAfterTTL(t *testing.T) {
	source := &countingClient{ChainClient: newOpenMockClient(t)}
	cache := NewMetagraphCache(source, 0, 10*time.Millisecond)
	ctx := context.Background()
	block := &Block{Number: 100}

	_, err := cache.GetMetagraph(ctx, 1, block)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	_, err = cache.GetMetagraph(ctx, 1, block)
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls, "expired entry must force a fresh read")
}

func TestMetagraphCachePurge(t *testing.T) {
	source := &countingClient{ChainClient: newOpenMockClient(t)}
	cache := NewMetagraphCache(source, 0, time.Minute)
	ctx := context.Background()
	block := &Block{Number: 100}

	_, err := cache.GetMetagraph(ctx, 1, block)
	require.NoError(t, err)
	cache.Purge()
	assert.Equal(t, 0, cache.Len())

	_, err = cache.GetMetagraph(ctx, 1, block)
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
}
