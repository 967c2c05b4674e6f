package bittensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEpochContaining(t *testing.T) {
	// tempo=3 -> interval=4, netuid=0: boundaries at ..., -2, 2, 6, 10, ...
	cases := []struct {
		block BlockNumber
		want  Epoch
	}{
		{0, Epoch{Start: -2, End: 2}},
		{1, Epoch{Start: -2, End: 2}},
		{2, Epoch{Start: 2, End: 6}},
		{3, Epoch{Start: 2, End: 6}},
		{4, Epoch{Start: 2, End: 6}},
		{5, Epoch{Start: 2, End: 6}},
		{6, Epoch{Start: 6, End: 10}},
	}
	for _, c := range cases {
		got := EpochContaining(c.block, 0, 3)
		assert.Equal(t, c.want, got, "block %d", c.block)
		assert.True(t, got.Contains(c.block))
	}
}

func TestEpochContainingIsContiguous(t *testing.T) {
	for b := BlockNumber(-20); b < 20; b++ {
		e := EpochContaining(b, 5, 7)
		assert.True(t, e.Contains(b))
		assert.Equal(t, BlockNumber(8), e.End-e.Start, "epoch length must be tempo+1")

		next := EpochContaining(e.End, 5, 7)
		assert.Equal(t, e.End, next.Start, "epochs must tile without gaps")
	}
}

func TestBlocksUntilNextEpoch(t *testing.T) {
	got := BlocksUntilNextEpoch(3, 0, 3)
	assert.Equal(t, BlockNumber(3), got)
}
