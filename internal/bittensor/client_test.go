package bittensor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientOpenCloseStateMachine(t *testing.T) {
	c := NewClient("mock://chain", NewMockBackend("5F_validator"))
	ctx := context.Background()

	_, err := c.GetLatestBlock(ctx)
	assert.ErrorIs(t, err, ErrNotOpen)

	require.NoError(t, c.Open(ctx))
	assert.ErrorIs(t, c.Open(ctx), ErrInvalidState)

	require.NoError(t, c.Close(ctx))
	assert.ErrorIs(t, c.Close(ctx), ErrInvalidState)
}

func TestClientCommitWeightsTranslatesHotkeysToUIDs(t *testing.T) {
	backend := NewMockBackend("5F_validator")
	backend.SetLatest(Block{Number: 10})
	backend.Neurons[10] = []Neuron{
		{UID: 0, Hotkey: "5F_alice"},
		{UID: 1, Hotkey: "5F_bob"},
	}

	c := NewClient("mock://chain", backend)
	require.NoError(t, c.Open(context.Background()))

	_, err := c.CommitWeights(context.Background(), 1, WeightsMapping{
		"5F_alice":   0.5,
		"5F_bob":     0.5,
		"5F_unknown": 1.0,
	})
	require.NoError(t, err)

	require.Len(t, backend.CommitCalls, 1)
	submitted := backend.CommitCalls[0]
	assert.Equal(t, Weight(0.5), submitted[0])
	assert.Equal(t, Weight(0.5), submitted[1])
	assert.NotContains(t, submitted, 2, "unresolvable hotkeys must be dropped, not submitted as garbage uids")
}

func TestClientGetMetagraphIndexesByHotkey(t *testing.T) {
	backend := NewMockBackend("5F_validator")
	backend.SetLatest(Block{Number: 42})
	backend.Neurons[42] = []Neuron{
		{UID: 0, Hotkey: "5F_alice"},
		{UID: 1, Hotkey: "5F_bob"},
	}

	c := NewClient("mock://chain", backend)
	require.NoError(t, c.Open(context.Background()))

	m, err := c.GetMetagraph(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, BlockNumber(42), m.Block.Number)
	assert.Equal(t, 0, m.Neurons["5F_alice"].UID)
	assert.Equal(t, 1, m.Neurons["5F_bob"].UID)
}

func TestClientGetLatestBlockUnknownReturnsErrUnknownBlock(t *testing.T) {
	backend := NewMockBackend("5F_validator")
	// No blocks registered at all: Latest defaults to zero value, and
	// Blocks[0] was never set, so Block() returns (nil, nil).
	c := NewClient("mock://chain", backend)
	require.NoError(t, c.Open(context.Background()))

	_, err := c.GetLatestBlock(context.Background())
	assert.ErrorIs(t, err, ErrUnknownBlock)
}
