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

import "context"

// Backend is the raw chain RPC surface Client adapts. spec.md treats
// the concrete RPC library (turbobt, in the original implementation)
// as an external collaborator; Backend is the seam a production
// implementation plugs into, and MockBackend (mockbackend.go) is the
// test/mock counterpart spec.md §4.A calls out explicitly.
type Backend interface {
	// Dial establishes the underlying connection. Called once by
	// Client.Open.
	Dial(ctx context.Context, uri string) error

	// Shutdown tears down the underlying connection. Called once by
	// Client.Close.
	Shutdown(ctx context.Context) error

	// Block fetches a block by number, or the tip when number ==
	// LatestBlock. A nil, nil result means "unknown block".
	Block(ctx context.Context, number BlockNumber) (*Block, error)

	// Neurons lists every neuron of a subnet at a block. A nil block
	// means "at the chain tip".
	Neurons(ctx context.Context, netuid NetUid, block *Block) ([]Neuron, error)

	// Hyperparams fetches a subnet's hyperparameters at a block. Nil
	// result means the subnet doesn't exist at that block.
	Hyperparams(ctx context.Context, netuid NetUid, block *Block) (*SubnetHyperparams, error)

	// Certificates fetches every published neuron certificate for a
	// subnet at a block.
	Certificates(ctx context.Context, netuid NetUid, block *Block) (map[Hotkey]NeuronCertificate, error)

	// Certificate fetches a single hotkey's certificate, or the
	// backend's own wallet's certificate when hotkey == "".
	Certificate(ctx context.Context, netuid NetUid, hotkey Hotkey, block *Block) (*NeuronCertificate, error)

	// GenerateCertificateKeypair asks the chain to mint and register a
	// fresh certificate keypair for the backend's own wallet.
	GenerateCertificateKeypair(ctx context.Context, netuid NetUid, algorithm CertificateAlgorithm) (*NeuronCertificateKeypair, error)

	// CommitWeights commits a hashed weight vector (uid -> weight,
	// already translated from hotkeys) and returns the reveal round.
	CommitWeights(ctx context.Context, netuid NetUid, weights map[int]Weight) (RevealRound, error)

	// SetWeights submits a weight vector directly (commit-reveal
	// disabled subnets).
	SetWeights(ctx context.Context, netuid NetUid, weights map[int]Weight) error

	// OwnHotkey reports the wallet hotkey this backend authenticates
	// as, the hotkey Certificate falls back to when called with
	// hotkey == "".
	OwnHotkey() Hotkey
}
