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
	"sync"
	"time"

	"github.com/opentensor/pylon/internal/bittensor"
	"github.com/opentensor/pylon/internal/log"
)

const (
	MetagraphRefreshInterval   = 10 * time.Second
	HyperparamsRefreshInterval = 60 * time.Second
	CommitRevealInterval       = 60 * time.Second
)

// CommitCycleConfig carries the TEMPO/COMMIT_* settings from spec.md §6.
type CommitCycleConfig struct {
	Tempo             uint16
	CommitCycleLength bittensor.BlockNumber
	WindowStartOffset bittensor.BlockNumber
	WindowEndBuffer   bittensor.BlockNumber
}

// commitWindow returns the commit window for the tempo starting at T:
// [T+start_offset, (T+tempo)-end_buffer).
func (c CommitCycleConfig) commitWindow(epochStart bittensor.BlockNumber) bittensor.Epoch {
	return bittensor.Epoch{
		Start: epochStart + c.WindowStartOffset,
		End:   epochStart + bittensor.BlockNumber(c.Tempo) - c.WindowEndBuffer,
	}
}

// cycleBlocks is the number of blocks a full commit cycle spans:
// CommitCycleLength epochs, each tempo+1 blocks wide (matching
// EpochContaining's tiling).
func (c CommitCycleConfig) cycleBlocks() bittensor.BlockNumber {
	return c.CommitCycleLength * (bittensor.BlockNumber(c.Tempo) + 1)
}

// Tasks is component G: the three periodic background tasks that keep
// an AppState and a MetagraphCache fresh, and drive the commit-reveal
// schedule. All three share the cooperative cancellation idiom
// spec.md §5/§9 describes: a closed stopCh is the cancellation signal,
// matching the teacher's own exitCh/stopCh convention (e.g.
// miner/worker.go).
type Tasks struct {
	Client bittensor.ChainClient
	Cache  *bittensor.MetagraphCache
	State  *AppState
	NetUid bittensor.NetUid
	Cycle  CommitCycleConfig
	Store  Store
	Retry  RetryConfig

	log log.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup

	lastObservedBlock    bittensor.BlockNumber
	lastHyperparams      *bittensor.SubnetHyperparams
	lastCommitEpochStart bittensor.BlockNumber
}

// NewTasks builds the periodic task set. Start must be called once
// CommitRevealScheduler's initial last_update lookup (own hotkey) is
// available.
func NewTasks(client bittensor.ChainClient, cache *bittensor.MetagraphCache, state *AppState, netuid bittensor.NetUid, cycle CommitCycleConfig, store Store, retry RetryConfig) *Tasks {
	return &Tasks{
		Client: client,
		Cache:  cache,
		State:  state,
		NetUid: netuid,
		Cycle:  cycle,
		Store:  store,
		Retry:  retry,
		log:    log.New("component", "weights.Tasks"),
		stopCh: make(chan struct{}),
	}
}

// Start launches all three tasks in their own goroutines.
// lastUpdate is the initial last_successful_commit_block, sourced from
// the chain's own-hotkey last_update at startup (see DESIGN.md's Open
// Question decision #2).
func (t *Tasks) Start(ctx context.Context, lastUpdate bittensor.BlockNumber) {
	t.lastCommitEpochStart = bittensor.EpochContaining(lastUpdate, t.NetUid, t.Cycle.Tempo).Start
	t.wg.Add(3)
	go t.run(ctx, "metagraph_refresh", MetagraphRefreshInterval, t.refreshMetagraph)
	go t.run(ctx, "hyperparams_refresh", HyperparamsRefreshInterval, t.refreshHyperparams)
	go t.run(ctx, "commit_reveal_scheduler", CommitRevealInterval, t.runCommitRevealTick)
}

// Stop signals every task to exit and blocks until they have.
func (t *Tasks) Stop() {
	close(t.stopCh)
	t.wg.Wait()
}

// run is the shared loop shape: wait on (interval, stopCh), run one
// iteration, recover/log any error without propagating it, repeat.
// Every task must exit within one interval of the stop signal.
func (t *Tasks) run(ctx context.Context, name string, interval time.Duration, iteration func(context.Context) error) {
	defer t.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.safeRun(ctx, iteration); err != nil {
				t.log.Error("periodic task iteration failed", "task", name, "err", err)
			}
		}
	}
}

func (t *Tasks) safeRun(ctx context.Context, iteration func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("periodic task panicked", "recovered", r)
		}
	}()
	return iteration(ctx)
}

// refreshMetagraph is MetagraphRefresh (interval 10s).
func (t *Tasks) refreshMetagraph(ctx context.Context) error {
	latest, err := t.Client.GetLatestBlock(ctx)
	if err != nil {
		return err
	}
	if latest.Number == t.lastObservedBlock {
		return nil
	}
	t.lastObservedBlock = latest.Number

	if _, err := t.Cache.GetMetagraph(ctx, t.NetUid, &latest); err != nil {
		return err
	}

	epoch := bittensor.EpochContaining(latest.Number, t.NetUid, t.Cycle.Tempo)
	t.State.setLatestBlock(latest.Number)
	t.State.setCurrentEpochStart(epoch.Start)
	return nil
}

// refreshHyperparams is HyperparamsRefresh (interval 60s).
func (t *Tasks) refreshHyperparams(ctx context.Context) error {
	hp, err := t.Client.GetHyperparams(ctx, t.NetUid, nil)
	if err != nil {
		return err
	}
	t.logHyperparamChanges(t.lastHyperparams, hp)
	t.lastHyperparams = hp
	t.State.setHyperparams(hp)
	return nil
}

func (t *Tasks) logHyperparamChanges(old, updated *bittensor.SubnetHyperparams) {
	if old == nil || updated == nil {
		return
	}
	if !uint64PtrEqual(old.MaxWeightsLimit, updated.MaxWeightsLimit) {
		t.log.Info("hyperparameter changed", "field", "max_weights_limit")
	}
	if old.CommitRevealEnabled() != updated.CommitRevealEnabled() {
		t.log.Info("hyperparameter changed", "field", "commit_reveal_weights_enabled")
	}
}

func uint64PtrEqual(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// runCommitRevealTick is one iteration of CommitRevealScheduler
// (interval 60s): fires a commit_weights call once per commit cycle,
// inside the commit window, per spec.md §4.G. "Due" is measured in
// epoch boundaries crossed since the last commit, not raw block count,
// so a commit that lands early in its window doesn't push the next
// one's due date out by the same number of blocks.
func (t *Tasks) runCommitRevealTick(ctx context.Context) error {
	current := t.State.LatestBlock()
	epochStart := t.State.CurrentEpochStart()

	due := epochStart-t.lastCommitEpochStart >= t.Cycle.cycleBlocks()
	window := t.Cycle.commitWindow(epochStart)
	if !due || !window.Contains(current) {
		return nil
	}

	neurons, err := t.Client.GetNeurons(ctx, t.NetUid, nil)
	if err != nil {
		return err
	}
	epoch := bittensor.EpochContaining(current, t.NetUid, t.Cycle.Tempo)
	byUID, err := t.Store.GetForNeurons(ctx, neurons, epoch.Start)
	if err != nil {
		return err
	}

	weights := make(bittensor.WeightsMapping, len(neurons))
	uidToHotkey := make(map[int]bittensor.Hotkey, len(neurons))
	for _, n := range neurons {
		uidToHotkey[n.UID] = n.Hotkey
	}
	for uid, w := range byUID {
		if hk, ok := uidToHotkey[uid]; ok {
			weights[hk] = w
		}
	}

	round, err := t.Client.CommitWeights(ctx, t.NetUid, weights)
	if err != nil {
		return err
	}

	t.lastCommitEpochStart = epochStart
	t.State.setCommitResult(round, current)
	t.log.Info("committed weights", "reveal_round", round, "block", current)
	return nil
}
