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

// Package weights holds component I (the weight store contract and an
// in-memory reference implementation), component F (the ApplyWeights
// job) and component G (the periodic tasks) of spec.md.
package weights

import (
	"context"
	"sync"
	"time"

	"github.com/opentensor/pylon/internal/bittensor"
)

// Epoch identifies an accumulation period for weight entries. Unlike
// bittensor.Epoch (a block window), entries are keyed by the epoch's
// ordinal/start — whichever the caller consistently uses.
type Epoch = bittensor.BlockNumber

// Entry is a single persisted weight record; it mirrors the
// `weights(id, hotkey, epoch, weight, updated_at)` table spec.md §6
// describes as the external store's schema.
type Entry struct {
	Hotkey    bittensor.Hotkey
	Epoch     Epoch
	Weight    bittensor.Weight
	UpdatedAt time.Time
}

// Store is the contract spec.md §4.I names as an external
// collaborator ("schema migration is handled by the external
// collaborator"); Pylon only needs these four operations.
type Store interface {
	// Set upserts hotkey's weight for epoch.
	Set(ctx context.Context, hotkey bittensor.Hotkey, weight bittensor.Weight, epoch Epoch) error

	// Add initializes hotkey's weight for epoch to delta if absent,
	// otherwise adds delta to the current value, and returns the
	// resulting weight.
	Add(ctx context.Context, hotkey bittensor.Hotkey, delta bittensor.Weight, epoch Epoch) (bittensor.Weight, error)

	// GetRaw returns every entry for epoch, keyed by hotkey.
	GetRaw(ctx context.Context, epoch Epoch) (map[bittensor.Hotkey]bittensor.Weight, error)

	// GetForNeurons returns, for every neuron in neurons, its weight at
	// epoch, keyed by uid, defaulting to 0.0 for neurons with no entry.
	GetForNeurons(ctx context.Context, neurons []bittensor.Neuron, epoch Epoch) (map[int]bittensor.Weight, error)
}

// MemoryStore is an in-memory reference Store, guarded by a single
// sync.RWMutex per SPEC_FULL.md §5 — it exists to make
// internal/weights testable without a real database, not as a
// production persistence layer.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Epoch]map[bittensor.Hotkey]Entry
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[Epoch]map[bittensor.Hotkey]Entry)}
}

func (s *MemoryStore) Set(ctx context.Context, hotkey bittensor.Hotkey, weight bittensor.Weight, epoch Epoch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureEpoch(epoch)
	s.entries[epoch][hotkey] = Entry{Hotkey: hotkey, Epoch: epoch, Weight: weight, UpdatedAt: time.Now()}
	return nil
}

func (s *MemoryStore) Add(ctx context.Context, hotkey bittensor.Hotkey, delta bittensor.Weight, epoch Epoch) (bittensor.Weight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureEpoch(epoch)
	existing, ok := s.entries[epoch][hotkey]
	newWeight := delta
	if ok {
		newWeight = existing.Weight + delta
	}
	s.entries[epoch][hotkey] = Entry{Hotkey: hotkey, Epoch: epoch, Weight: newWeight, UpdatedAt: time.Now()}
	return newWeight, nil
}

func (s *MemoryStore) GetRaw(ctx context.Context, epoch Epoch) (map[bittensor.Hotkey]bittensor.Weight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[bittensor.Hotkey]bittensor.Weight, len(s.entries[epoch]))
	for hk, e := range s.entries[epoch] {
		out[hk] = e.Weight
	}
	return out, nil
}

func (s *MemoryStore) GetForNeurons(ctx context.Context, neurons []bittensor.Neuron, epoch Epoch) (map[int]bittensor.Weight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byHotkey := s.entries[epoch]
	out := make(map[int]bittensor.Weight, len(neurons))
	for _, n := range neurons {
		if e, ok := byHotkey[n.Hotkey]; ok {
			out[n.UID] = e.Weight
		} else {
			out[n.UID] = 0.0
		}
	}
	return out, nil
}

// ensureEpoch must be called with s.mu held for writing.
func (s *MemoryStore) ensureEpoch(epoch Epoch) {
	if s.entries[epoch] == nil {
		s.entries[epoch] = make(map[bittensor.Hotkey]Entry)
	}
}

var _ Store = (*MemoryStore)(nil)
