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
	"sync/atomic"

	"github.com/opentensor/pylon/internal/bittensor"
)

// AppState is the single-writer-per-field struct spec.md §5 describes:
// "app.state is a single writer-per-field set ... readers never lock".
// Each field is written by exactly one periodic task and read by
// everyone else through a typed sync/atomic value (atomic.Int64,
// atomic.Pointer, atomic.Uint64), which gives readers a consistent
// per-field snapshot without a mutex.
type AppState struct {
	// latestBlock and currentEpochStart: written only by MetagraphRefresh.
	latestBlock       atomic.Int64
	currentEpochStart atomic.Int64

	// hyperparams: written only by HyperparamsRefresh.
	hyperparams atomic.Pointer[bittensor.SubnetHyperparams]

	// revealRound and lastCommitBlock: written only by CommitRevealScheduler.
	revealRound     atomic.Uint64
	lastCommitBlock atomic.Int64
}

func NewAppState() *AppState {
	return &AppState{}
}

func (s *AppState) LatestBlock() bittensor.BlockNumber {
	return bittensor.BlockNumber(s.latestBlock.Load())
}

func (s *AppState) setLatestBlock(b bittensor.BlockNumber) {
	s.latestBlock.Store(int64(b))
}

func (s *AppState) CurrentEpochStart() bittensor.BlockNumber {
	return bittensor.BlockNumber(s.currentEpochStart.Load())
}

func (s *AppState) setCurrentEpochStart(b bittensor.BlockNumber) {
	s.currentEpochStart.Store(int64(b))
}

func (s *AppState) Hyperparams() *bittensor.SubnetHyperparams {
	return s.hyperparams.Load()
}

func (s *AppState) setHyperparams(hp *bittensor.SubnetHyperparams) {
	s.hyperparams.Store(hp)
}

func (s *AppState) RevealRound() bittensor.RevealRound {
	return bittensor.RevealRound(s.revealRound.Load())
}

func (s *AppState) LastCommitBlock() bittensor.BlockNumber {
	return bittensor.BlockNumber(s.lastCommitBlock.Load())
}

func (s *AppState) setCommitResult(round bittensor.RevealRound, block bittensor.BlockNumber) {
	s.revealRound.Store(uint64(round))
	s.lastCommitBlock.Store(int64(block))
}
