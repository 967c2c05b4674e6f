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

package bittensor

import (
	"context"
	"sync"
)

// MockBackend is a deterministic, in-memory Backend used by tests. It
// is the Go counterpart of original_source/pylon/_internal/client/mock.py
// and tests/mock_bittensor_client.py: a programmable stand-in for the
// real chain RPC library that spec.md §4.A explicitly keeps out of
// scope.
type MockBackend struct {
	mu sync.Mutex

	dialed bool
	hotkey Hotkey

	Blocks        map[BlockNumber]Block
	Latest        BlockNumber
	Neurons       map[BlockNumber][]Neuron
	Hyperparams   map[BlockNumber]*SubnetHyperparams
	Certificates  map[BlockNumber]map[Hotkey]NeuronCertificate

	// UnknownBlocks, when set, makes Block/Neurons calls for the listed
	// block numbers fail with ErrUnknownBlock, simulating a node that
	// has pruned that history.
	UnknownBlocks map[BlockNumber]bool

	// CommitCalls and SetCalls record every weights submission made,
	// for assertions in tests.
	CommitCalls []map[int]Weight
	SetCalls    []map[int]Weight
	NextReveal  RevealRound

	DialCount int
}

// NewMockBackend returns an empty mock backend for the given wallet
// hotkey.
func NewMockBackend(hotkey Hotkey) *MockBackend {
	return &MockBackend{
		hotkey:        hotkey,
		Blocks:        map[BlockNumber]Block{},
		Neurons:       map[BlockNumber][]Neuron{},
		Hyperparams:   map[BlockNumber]*SubnetHyperparams{},
		Certificates:  map[BlockNumber]map[Hotkey]NeuronCertificate{},
		UnknownBlocks: map[BlockNumber]bool{},
		NextReveal:    1,
	}
}

func (m *MockBackend) Dial(ctx context.Context, uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialed = true
	m.DialCount++
	return nil
}

func (m *MockBackend) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialed = false
	return nil
}

func (m *MockBackend) Block(ctx context.Context, number BlockNumber) (*Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if number == LatestBlock {
		number = m.Latest
	}
	if m.UnknownBlocks[number] {
		return nil, ErrUnknownBlock
	}
	b, ok := m.Blocks[number]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *MockBackend) Neurons(ctx context.Context, netuid NetUid, block *Block) ([]Neuron, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	num := m.Latest
	if block != nil {
		num = block.Number
	}
	if m.UnknownBlocks[num] {
		return nil, ErrUnknownBlock
	}
	return append([]Neuron(nil), m.Neurons[num]...), nil
}

func (m *MockBackend) Hyperparams(ctx context.Context, netuid NetUid, block *Block) (*SubnetHyperparams, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	num := m.Latest
	if block != nil {
		num = block.Number
	}
	return m.Hyperparams[num], nil
}

func (m *MockBackend) Certificates(ctx context.Context, netuid NetUid, block *Block) (map[Hotkey]NeuronCertificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	num := m.Latest
	if block != nil {
		num = block.Number
	}
	return m.Certificates[num], nil
}

func (m *MockBackend) Certificate(ctx context.Context, netuid NetUid, hotkey Hotkey, block *Block) (*NeuronCertificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hotkey == "" {
		hotkey = m.hotkey
	}
	num := m.Latest
	if block != nil {
		num = block.Number
	}
	certs := m.Certificates[num]
	if cert, ok := certs[hotkey]; ok {
		return &cert, nil
	}
	return nil, nil
}

func (m *MockBackend) GenerateCertificateKeypair(ctx context.Context, netuid NetUid, algorithm CertificateAlgorithm) (*NeuronCertificateKeypair, error) {
	return &NeuronCertificateKeypair{
		NeuronCertificate: NeuronCertificate{Algorithm: algorithm, PublicKey: "mock-public-key"},
		PrivateKey:        "mock-private-key",
	}, nil
}

func (m *MockBackend) CommitWeights(ctx context.Context, netuid NetUid, weights map[int]Weight) (RevealRound, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CommitCalls = append(m.CommitCalls, weights)
	round := m.NextReveal
	m.NextReveal++
	return round, nil
}

func (m *MockBackend) SetWeights(ctx context.Context, netuid NetUid, weights map[int]Weight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetCalls = append(m.SetCalls, weights)
	return nil
}

func (m *MockBackend) OwnHotkey() Hotkey { return m.hotkey }

// SetLatest advances the mock chain's tip, as if a new block arrived.
func (m *MockBackend) SetLatest(b Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Latest = b.Number
	m.Blocks[b.Number] = b
}

var _ Backend = (*MockBackend)(nil)
