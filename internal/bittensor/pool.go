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
	"fmt"
	"sync"

	"github.com/opentensor/pylon/internal/log"
)

// WalletKey identifies the wallet a pooled ChainClient authenticates
// as. Path lets two identically-named wallets on different wallet
// directories coexist in the same pool.
type WalletKey struct {
	WalletName string
	HotkeyName string
	Path       string
}

func (k WalletKey) String() string {
	return fmt.Sprintf("%s/%s@%s", k.WalletName, k.HotkeyName, k.Path)
}

// ClientFactory builds the (already open) ChainClient for a wallet,
// the first time the pool is asked for it.
type ClientFactory func(ctx context.Context, key WalletKey) (ChainClient, error)

type poolState int

const (
	poolOpen poolState = iota
	poolClosing
	poolClosed
)

// Pool is component C: a cache of open ChainClients keyed by wallet,
// built lazily and torn down together. It mirrors the acquire-count /
// close-drain protocol of original_source/pylon/service/bittensor/pool.py:
// Close sets the pool to "closing", waits for every in-flight Acquire
// to finish, then closes every client and clears the pool.
type Pool struct {
	factory ClientFactory
	log     log.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	state    poolState
	inflight int
	clients  map[WalletKey]ChainClient
}

// NewPool returns an empty pool. factory is invoked once per distinct
// WalletKey for sequential acquires; concurrent first acquires of the
// same key may each invoke it, in which case only one resulting client
// is kept and the others are closed.
func NewPool(factory ClientFactory) *Pool {
	p := &Pool{
		factory: factory,
		log:     log.New("component", "bittensor.Pool"),
		clients: make(map[WalletKey]ChainClient),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Acquire returns the open ChainClient for key, building and opening
// it on first use. The returned release func must be called exactly
// once when the caller is done with the client.
func (p *Pool) Acquire(ctx context.Context, key WalletKey) (client ChainClient, release func(), err error) {
	p.mu.Lock()
	switch p.state {
	case poolClosed:
		p.mu.Unlock()
		return nil, nil, ErrPoolClosed
	case poolClosing:
		p.mu.Unlock()
		return nil, nil, ErrPoolClosing
	}
	p.inflight++
	p.mu.Unlock()

	release = func() {
		p.mu.Lock()
		p.inflight--
		if p.inflight == 0 {
			p.cond.Broadcast()
		}
		p.mu.Unlock()
	}

	p.mu.Lock()
	existing, ok := p.clients[key]
	p.mu.Unlock()
	if ok {
		return existing, release, nil
	}

	c, err := p.factory(ctx, key)
	if err != nil {
		release()
		return nil, nil, err
	}

	p.mu.Lock()
	if existing, ok := p.clients[key]; ok {
		// Lost a race against a concurrent Acquire for the same key;
		// keep the winner, discard ours.
		p.mu.Unlock()
		if closeErr := c.Close(ctx); closeErr != nil {
			p.log.Warn("failed closing redundant client", "wallet", key, "err", closeErr)
		}
		return existing, release, nil
	}
	p.clients[key] = c
	p.mu.Unlock()

	return c, release, nil
}

// Close drains outstanding acquires, then best-effort closes every
// pooled client. It is not idempotent: a second call returns
// ErrInvalidState.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.state != poolOpen {
		p.mu.Unlock()
		return ErrInvalidState
	}
	p.state = poolClosing
	for p.inflight > 0 {
		p.cond.Wait()
	}
	clients := p.clients
	p.clients = make(map[WalletKey]ChainClient)
	p.mu.Unlock()

	for key, c := range clients {
		if err := c.Close(ctx); err != nil {
			p.log.Warn("failed closing pooled client", "wallet", key, "err", err)
		}
	}

	p.mu.Lock()
	p.state = poolClosed
	p.mu.Unlock()
	return nil
}

// Len reports how many distinct wallets currently have an open
// client, for tests and diagnostics.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}
