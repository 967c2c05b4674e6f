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

	mapset "github.com/deckarep/golang-set"

	"github.com/opentensor/pylon/internal/log"
)

// ChainClient is the capability surface spec.md §4.A describes:
// scoped open/close plus the read/write operations a caller needs,
// polymorphic over whatever Backend is plugged in underneath.
type ChainClient interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error

	GetBlock(ctx context.Context, number BlockNumber) (*Block, error)
	GetLatestBlock(ctx context.Context) (Block, error)
	GetNeurons(ctx context.Context, netuid NetUid, block *Block) ([]Neuron, error)
	GetHyperparams(ctx context.Context, netuid NetUid, block *Block) (*SubnetHyperparams, error)
	GetCertificates(ctx context.Context, netuid NetUid, block *Block) (map[Hotkey]NeuronCertificate, error)
	GetCertificate(ctx context.Context, netuid NetUid, hotkey Hotkey, block *Block) (*NeuronCertificate, error)
	GenerateCertificateKeypair(ctx context.Context, netuid NetUid, algorithm CertificateAlgorithm) (*NeuronCertificateKeypair, error)
	CommitWeights(ctx context.Context, netuid NetUid, weights WeightsMapping) (RevealRound, error)
	SetWeights(ctx context.Context, netuid NetUid, weights WeightsMapping) error
	GetMetagraph(ctx context.Context, netuid NetUid, block *Block) (Metagraph, error)
}

type clientState int

const (
	stateClosed clientState = iota
	stateOpen
)

// Client adapts a Backend to the ChainClient surface, translating
// hotkey-keyed weight maps to the uid-keyed maps the chain actually
// wants and enforcing the open/close state machine from spec.md §4.A.
type Client struct {
	uri     string
	backend Backend

	mu    sync.Mutex
	state clientState

	log log.Logger
}

// NewClient wraps backend, dialing uri lazily on Open.
func NewClient(uri string, backend Backend) *Client {
	return &Client{
		uri:     uri,
		backend: backend,
		log:     log.New("component", "bittensor.Client", "uri", uri),
	}
}

func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateOpen {
		return ErrInvalidState
	}
	c.log.Info("opening chain client")
	if err := c.backend.Dial(ctx, c.uri); err != nil {
		return err
	}
	c.state = stateOpen
	return nil
}

func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return ErrInvalidState
	}
	c.log.Info("closing chain client")
	if err := c.backend.Shutdown(ctx); err != nil {
		return err
	}
	c.state = stateClosed
	return nil
}

func (c *Client) assertOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateOpen {
		return ErrNotOpen
	}
	return nil
}

func (c *Client) GetBlock(ctx context.Context, number BlockNumber) (*Block, error) {
	if err := c.assertOpen(); err != nil {
		return nil, err
	}
	return c.backend.Block(ctx, number)
}

func (c *Client) GetLatestBlock(ctx context.Context) (Block, error) {
	if err := c.assertOpen(); err != nil {
		return Block{}, err
	}
	b, err := c.backend.Block(ctx, LatestBlock)
	if err != nil {
		return Block{}, err
	}
	if b == nil {
		return Block{}, ErrUnknownBlock
	}
	return *b, nil
}

func (c *Client) GetNeurons(ctx context.Context, netuid NetUid, block *Block) ([]Neuron, error) {
	if err := c.assertOpen(); err != nil {
		return nil, err
	}
	return c.backend.Neurons(ctx, netuid, block)
}

func (c *Client) GetHyperparams(ctx context.Context, netuid NetUid, block *Block) (*SubnetHyperparams, error) {
	if err := c.assertOpen(); err != nil {
		return nil, err
	}
	return c.backend.Hyperparams(ctx, netuid, block)
}

func (c *Client) GetCertificates(ctx context.Context, netuid NetUid, block *Block) (map[Hotkey]NeuronCertificate, error) {
	if err := c.assertOpen(); err != nil {
		return nil, err
	}
	return c.backend.Certificates(ctx, netuid, block)
}

func (c *Client) GetCertificate(ctx context.Context, netuid NetUid, hotkey Hotkey, block *Block) (*NeuronCertificate, error) {
	if err := c.assertOpen(); err != nil {
		return nil, err
	}
	return c.backend.Certificate(ctx, netuid, hotkey, block)
}

func (c *Client) GenerateCertificateKeypair(ctx context.Context, netuid NetUid, algorithm CertificateAlgorithm) (*NeuronCertificateKeypair, error) {
	if err := c.assertOpen(); err != nil {
		return nil, err
	}
	return c.backend.GenerateCertificateKeypair(ctx, netuid, algorithm)
}

// translateWeights resolves a hotkey-keyed weight map into the
// uid-keyed map the chain wants, dropping and warning about any
// hotkey absent from the current neuron table.
func (c *Client) translateWeights(ctx context.Context, netuid NetUid, weights WeightsMapping) (map[int]Weight, error) {
	neurons, err := c.backend.Neurons(ctx, netuid, nil)
	if err != nil {
		return nil, err
	}
	hotkeyToUID := make(map[Hotkey]int, len(neurons))
	for _, n := range neurons {
		hotkeyToUID[n.Hotkey] = n.UID
	}

	translated := make(map[int]Weight, len(weights))
	missing := mapset.NewThreadUnsafeSet()
	for hk, w := range weights {
		if uid, ok := hotkeyToUID[hk]; ok {
			translated[uid] = w
		} else {
			missing.Add(hk)
		}
	}
	if missing.Cardinality() > 0 {
		c.log.Warn("hotkeys missing from neuron table, dropped from submission",
			"netuid", netuid, "missing", missing.ToSlice())
	}
	return translated, nil
}

func (c *Client) CommitWeights(ctx context.Context, netuid NetUid, weights WeightsMapping) (RevealRound, error) {
	if err := c.assertOpen(); err != nil {
		return 0, err
	}
	uidWeights, err := c.translateWeights(ctx, netuid, weights)
	if err != nil {
		return 0, err
	}
	return c.backend.CommitWeights(ctx, netuid, uidWeights)
}

func (c *Client) SetWeights(ctx context.Context, netuid NetUid, weights WeightsMapping) error {
	if err := c.assertOpen(); err != nil {
		return err
	}
	uidWeights, err := c.translateWeights(ctx, netuid, weights)
	if err != nil {
		return err
	}
	return c.backend.SetWeights(ctx, netuid, uidWeights)
}

// GetMetagraph is derived: fetch the neuron list, then index by
// hotkey.
func (c *Client) GetMetagraph(ctx context.Context, netuid NetUid, block *Block) (Metagraph, error) {
	neurons, err := c.GetNeurons(ctx, netuid, block)
	if err != nil {
		return Metagraph{}, err
	}
	var b Block
	if block != nil {
		b = *block
	} else {
		b, err = c.GetLatestBlock(ctx)
		if err != nil {
			return Metagraph{}, err
		}
	}
	byHotkey := make(map[Hotkey]Neuron, len(neurons))
	for _, n := range neurons {
		byHotkey[n.Hotkey] = n
	}
	return Metagraph{Block: b, Neurons: byHotkey}, nil
}

var _ ChainClient = (*Client)(nil)
