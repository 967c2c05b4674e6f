package bittensor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenClientWithBackend(t *testing.T, backend *MockBackend) *Client {
	t.Helper()
	c := NewClient("mock://chain", backend)
	require.NoError(t, c.Open(context.Background()))
	return c
}

func TestArchiveFallbackNoArchiveConfigured(t *testing.T) {
	main := NewMockBackend("5F_validator")
	main.SetLatest(Block{Number: 1000})
	main.Neurons[1000] = []Neuron{{UID: 0, Hotkey: "5F_validator"}}

	a := NewArchiveFallbackClient(newOpenClientWithBackend(t, main), nil, 0)

	_, err := a.GetNeurons(context.Background(), 1, &Block{Number: 1})
	assert.NoError(t, err, "with no archive client, every read goes to main regardless of age")
}

func TestArchiveFallbackOldBlockRoutesDirectlyToArchive(t *testing.T) {
	main := NewMockBackend("5F_validator")
	main.SetLatest(Block{Number: 100_000})

	archive := NewMockBackend("5F_validator")
	archive.Neurons[1] = []Neuron{{UID: 0, Hotkey: "5F_archive"}}

	a := NewArchiveFallbackClient(
		newOpenClientWithBackend(t, main),
		newOpenClientWithBackend(t, archive),
		DefaultArchiveBlocksCutoff,
	)

	neurons, err := a.GetNeurons(context.Background(), 1, &Block{Number: 1})
	require.NoError(t, err)
	require.Len(t, neurons, 1)
	assert.Equal(t, Hotkey("5F_archive"), neurons[0].Hotkey)
}

func TestArchiveFallbackUnknownBlockRetriesOnArchive(t *testing.T) {
	main := NewMockBackend("5F_validator")
	main.SetLatest(Block{Number: 100})
	main.UnknownBlocks[50] = true

	archive := NewMockBackend("5F_validator")
	archive.Neurons[50] = []Neuron{{UID: 0, Hotkey: "5F_archive"}}

	a := NewArchiveFallbackClient(
		newOpenClientWithBackend(t, main),
		newOpenClientWithBackend(t, archive),
		DefaultArchiveBlocksCutoff,
	)

	neurons, err := a.GetNeurons(context.Background(), 1, &Block{Number: 50})
	require.NoError(t, err)
	require.Len(t, neurons, 1)
	assert.Equal(t, Hotkey("5F_archive"), neurons[0].Hotkey)
}

func TestArchiveFallbackRecentBlockServedByMain(t *testing.T) {
	main := NewMockBackend("5F_validator")
	main.SetLatest(Block{Number: 100})
	main.Neurons[100] = []Neuron{{UID: 0, Hotkey: "5F_main"}}

	archive := NewMockBackend("5F_validator")

	a := NewArchiveFallbackClient(
		newOpenClientWithBackend(t, main),
		newOpenClientWithBackend(t, archive),
		DefaultArchiveBlocksCutoff,
	)

	neurons, err := a.GetNeurons(context.Background(), 1, &Block{Number: 100})
	require.NoError(t, err)
	require.Len(t, neurons, 1)
	assert.Equal(t, Hotkey("5F_main"), neurons[0].Hotkey)
}

func TestArchiveFallbackWritesAlwaysUseMain(t *testing.T) {
	main := NewMockBackend("5F_validator")
	main.SetLatest(Block{Number: 100})
	main.Neurons[100] = []Neuron{{UID: 0, Hotkey: "5F_validator"}}
	archive := NewMockBackend("5F_validator")

	a := NewArchiveFallbackClient(
		newOpenClientWithBackend(t, main),
		newOpenClientWithBackend(t, archive),
		DefaultArchiveBlocksCutoff,
	)

	_, err := a.CommitWeights(context.Background(), 1, WeightsMapping{"5F_validator": 1.0})
	require.NoError(t, err)
	assert.Len(t, main.CommitCalls, 1)
	assert.Len(t, archive.CommitCalls, 0)
}
