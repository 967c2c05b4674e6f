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
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opentensor/pylon/internal/log"
)

// FallbackReason labels why a read was routed to the archive client.
type FallbackReason string

const (
	ReasonOldBlock     FallbackReason = "old_block"
	ReasonUnknownBlock FallbackReason = "unknown_block"
)

// DefaultArchiveBlocksCutoff is used when a ArchiveFallbackClient is
// constructed without an explicit cutoff.
const DefaultArchiveBlocksCutoff = 300

var fallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "pylon_bittensor_fallback_total",
	Help: "Total number of archive client fallback events.",
}, []string{"reason", "operation"})

func init() {
	prometheus.MustRegister(fallbackTotal)
}

// ArchiveFallbackClient is component B: it holds a main and an archive
// ChainClient and decides, per read, which one actually serves the
// call. commit_weights, set_weights, get_block, get_latest_block and
// generate_certificate_keypair are always served by main — see
// spec.md §4.B.
type ArchiveFallbackClient struct {
	Main    ChainClient
	Archive ChainClient
	Cutoff  BlockNumber

	log log.Logger
}

// NewArchiveFallbackClient builds the wrapper. archive may be nil, in
// which case every read is served by main (no fallback is possible).
func NewArchiveFallbackClient(main, archive ChainClient, cutoff BlockNumber) *ArchiveFallbackClient {
	if cutoff <= 0 {
		cutoff = DefaultArchiveBlocksCutoff
	}
	return &ArchiveFallbackClient{
		Main:    main,
		Archive: archive,
		Cutoff:  cutoff,
		log:     log.New("component", "bittensor.ArchiveFallbackClient"),
	}
}

func (a *ArchiveFallbackClient) Open(ctx context.Context) error {
	if err := a.Main.Open(ctx); err != nil {
		return err
	}
	if a.Archive != nil {
		return a.Archive.Open(ctx)
	}
	return nil
}

func (a *ArchiveFallbackClient) Close(ctx context.Context) error {
	err := a.Main.Close(ctx)
	if a.Archive != nil {
		if archErr := a.Archive.Close(ctx); archErr != nil && err == nil {
			err = archErr
		}
	}
	return err
}

func (a *ArchiveFallbackClient) GetBlock(ctx context.Context, number BlockNumber) (*Block, error) {
	return a.Main.GetBlock(ctx, number)
}

func (a *ArchiveFallbackClient) GetLatestBlock(ctx context.Context) (Block, error) {
	return a.Main.GetLatestBlock(ctx)
}

func (a *ArchiveFallbackClient) GenerateCertificateKeypair(ctx context.Context, netuid NetUid, algorithm CertificateAlgorithm) (*NeuronCertificateKeypair, error) {
	return a.Main.GenerateCertificateKeypair(ctx, netuid, algorithm)
}

func (a *ArchiveFallbackClient) CommitWeights(ctx context.Context, netuid NetUid, weights WeightsMapping) (RevealRound, error) {
	return a.Main.CommitWeights(ctx, netuid, weights)
}

func (a *ArchiveFallbackClient) SetWeights(ctx context.Context, netuid NetUid, weights WeightsMapping) error {
	return a.Main.SetWeights(ctx, netuid, weights)
}

// fallback runs mainCall, routing to archiveCall instead when block is
// old enough, or retrying once on archiveCall when mainCall fails with
// ErrUnknownBlock. block == nil always means "latest": there is no
// fallback concept on the archive chain for "latest".
func fallback[T any](
	ctx context.Context,
	a *ArchiveFallbackClient,
	operation string,
	block *Block,
	mainCall func(ctx context.Context) (T, error),
	archiveCall func(ctx context.Context) (T, error),
) (T, error) {
	if a.Archive == nil || block == nil {
		return mainCall(ctx)
	}

	latest, err := a.Main.GetLatestBlock(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if latest.Number-block.Number > a.Cutoff {
		a.recordFallback(ReasonOldBlock, operation)
		return archiveCall(ctx)
	}

	result, err := mainCall(ctx)
	if errors.Is(err, ErrUnknownBlock) {
		a.recordFallback(ReasonUnknownBlock, operation)
		return archiveCall(ctx)
	}
	return result, err
}

func (a *ArchiveFallbackClient) recordFallback(reason FallbackReason, operation string) {
	fallbackTotal.WithLabelValues(string(reason), operation).Inc()
	a.log.Debug("routing to archive client", "reason", reason, "operation", operation)
}

func (a *ArchiveFallbackClient) GetNeurons(ctx context.Context, netuid NetUid, block *Block) ([]Neuron, error) {
	return fallback(ctx, a, "get_neurons", block,
		func(ctx context.Context) ([]Neuron, error) { return a.Main.GetNeurons(ctx, netuid, block) },
		func(ctx context.Context) ([]Neuron, error) { return a.Archive.GetNeurons(ctx, netuid, block) },
	)
}

func (a *ArchiveFallbackClient) GetHyperparams(ctx context.Context, netuid NetUid, block *Block) (*SubnetHyperparams, error) {
	return fallback(ctx, a, "get_hyperparams", block,
		func(ctx context.Context) (*SubnetHyperparams, error) { return a.Main.GetHyperparams(ctx, netuid, block) },
		func(ctx context.Context) (*SubnetHyperparams, error) { return a.Archive.GetHyperparams(ctx, netuid, block) },
	)
}

func (a *ArchiveFallbackClient) GetCertificates(ctx context.Context, netuid NetUid, block *Block) (map[Hotkey]NeuronCertificate, error) {
	return fallback(ctx, a, "get_certificates", block,
		func(ctx context.Context) (map[Hotkey]NeuronCertificate, error) { return a.Main.GetCertificates(ctx, netuid, block) },
		func(ctx context.Context) (map[Hotkey]NeuronCertificate, error) {
			return a.Archive.GetCertificates(ctx, netuid, block)
		},
	)
}

func (a *ArchiveFallbackClient) GetCertificate(ctx context.Context, netuid NetUid, hotkey Hotkey, block *Block) (*NeuronCertificate, error) {
	return fallback(ctx, a, "get_certificate", block,
		func(ctx context.Context) (*NeuronCertificate, error) { return a.Main.GetCertificate(ctx, netuid, hotkey, block) },
		func(ctx context.Context) (*NeuronCertificate, error) {
			return a.Archive.GetCertificate(ctx, netuid, hotkey, block)
		},
	)
}

// GetMetagraph is derived, composing the (falling-back) GetNeurons
// with indexing by hotkey, so old-block metagraphs transparently flow
// from the archive client.
func (a *ArchiveFallbackClient) GetMetagraph(ctx context.Context, netuid NetUid, block *Block) (Metagraph, error) {
	neurons, err := a.GetNeurons(ctx, netuid, block)
	if err != nil {
		return Metagraph{}, err
	}
	var b Block
	if block != nil {
		b = *block
	} else {
		b, err = a.GetLatestBlock(ctx)
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

var _ ChainClient = (*ArchiveFallbackClient)(nil)
