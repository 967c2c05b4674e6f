// Copyright 2024 The Pylon Authors
// This file is part of the Pylon library.
//
// The Pylon library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The Pylon library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the Pylon library. If not, see <http://www.gnu.org/licenses/>.

package weights

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentensor/pylon/internal/bittensor"
)

// fakeChainClient is a minimal stand-in for bittensor.ChainClient, grounded
// on original_source/tests/test_tasks.py's mocked commit_weights /
// get_latest_weights / fetch_last_weight_commit_block. The embedded nil
// interface satisfies every method Job.Run doesn't exercise; only the four
// it actually calls are overridden.
type fakeChainClient struct {
	bittensor.ChainClient

	mu         sync.Mutex
	blocks     []bittensor.BlockNumber
	blockCalls int
	hp         *bittensor.SubnetHyperparams
	commitErr  error

	commitCalls []bittensor.WeightsMapping
	setCalls    []bittensor.WeightsMapping
}

func (f *fakeChainClient) GetLatestBlock(ctx context.Context) (bittensor.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.blockCalls
	if idx >= len(f.blocks) {
		idx = len(f.blocks) - 1
	}
	f.blockCalls++
	return bittensor.Block{Number: f.blocks[idx]}, nil
}

func (f *fakeChainClient) GetHyperparams(ctx context.Context, netuid bittensor.NetUid, block *bittensor.Block) (*bittensor.SubnetHyperparams, error) {
	return f.hp, nil
}

func (f *fakeChainClient) CommitWeights(ctx context.Context, netuid bittensor.NetUid, weights bittensor.WeightsMapping) (bittensor.RevealRound, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		err := f.commitErr
		f.commitErr = nil
		return 0, err
	}
	f.commitCalls = append(f.commitCalls, weights)
	return bittensor.RevealRound(len(f.commitCalls)), nil
}

func (f *fakeChainClient) SetWeights(ctx context.Context, netuid bittensor.NetUid, weights bittensor.WeightsMapping) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls = append(f.setCalls, weights)
	return nil
}

func commitRevealEnabledHyperparams() *bittensor.SubnetHyperparams {
	v := bittensor.CommitRevealV2
	return &bittensor.SubnetHyperparams{CommitRevealWeightsEnabled: &v}
}

// TestJobRunCommitsOnceOnSuccess is invariant 8's first half: with
// commit-reveal enabled, commit_weights is called exactly once on first
// success, and set_weights is never called.
func TestJobRunCommitsOnceOnSuccess(t *testing.T) {
	client := &fakeChainClient{
		blocks: []bittensor.BlockNumber{1000},
		hp:     commitRevealEnabledHyperparams(),
	}
	job := NewJob(client, 7, "5F_validator", bittensor.WeightsMapping{"5F_alice": 1.0},
		bittensor.Epoch{Start: 900, End: 1100}, RetryConfig{Attempts: 2, InitialDelay: 0})

	status := job.Run(context.Background())

	assert.Equal(t, StatusCompleted, status)
	assert.Len(t, client.commitCalls, 1)
	assert.Empty(t, client.setCalls)
}

// TestJobRunCancelsWhenTempoExpiresBetweenAttempts is invariant 8 / S4: if
// the chain advances past initial_epoch.End between attempts, neither
// commit_weights nor set_weights is called again, and the job reports
// StatusTempoExpired without returning an error to its caller.
func TestJobRunCancelsWhenTempoExpiresBetweenAttempts(t *testing.T) {
	client := &fakeChainClient{
		blocks:    []bittensor.BlockNumber{1000, 1200}, // 1200 is past InitialEpoch.End below
		hp:        commitRevealEnabledHyperparams(),
		commitErr: errors.New("boom"),
	}
	job := NewJob(client, 7, "5F_validator", bittensor.WeightsMapping{"5F_alice": 1.0},
		bittensor.Epoch{Start: 900, End: 1100}, RetryConfig{Attempts: 2, InitialDelay: 0})

	status := job.Run(context.Background())

	assert.Equal(t, StatusTempoExpired, status)
	assert.Empty(t, client.commitCalls)
	assert.Empty(t, client.setCalls)
}

// TestJobRunFallsBackToSetWeightsWhenCommitRevealDisabled rounds out
// component F's branch spec.md §4.F step 1 describes.
func TestJobRunFallsBackToSetWeightsWhenCommitRevealDisabled(t *testing.T) {
	disabled := bittensor.CommitRevealDisabled
	client := &fakeChainClient{
		blocks: []bittensor.BlockNumber{1000},
		hp:     &bittensor.SubnetHyperparams{CommitRevealWeightsEnabled: &disabled},
	}
	job := NewJob(client, 7, "5F_validator", bittensor.WeightsMapping{"5F_alice": 1.0},
		bittensor.Epoch{Start: 900, End: 1100}, RetryConfig{Attempts: 1, InitialDelay: 0})

	status := job.Run(context.Background())

	require.Equal(t, StatusCompleted, status)
	assert.Len(t, client.setCalls, 1)
	assert.Empty(t, client.commitCalls)
}
