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

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/opentensor/pylon/internal/bittensor"
	"github.com/opentensor/pylon/internal/log"
	"github.com/opentensor/pylon/internal/weights"
)

// Server holds every collaborator the HTTP surface dispatches to: the
// archive-fallback chain client (component B, used for both reads and
// the writes component F submits), the metagraph cache (component D),
// the weight store (component I) and the shared app state (§5) that
// ApplyWeights jobs and the periodic tasks publish into.
type Server struct {
	NetUid       bittensor.NetUid
	WalletHotkey bittensor.Hotkey
	Tempo        uint16

	Client bittensor.ChainClient
	Cache  *bittensor.MetagraphCache
	Store  weights.Store
	State  *weights.AppState
	Retry  weights.RetryConfig

	// WeightsToken and MetricsToken are deliberately separate per
	// spec.md §6 ("metrics token and per-identity tokens are
	// separate"); either may be empty, meaning "not configured".
	WeightsToken string
	MetricsToken string

	Log log.Logger
}

type setWeightsBody struct {
	Weights map[string]float64 `json:"weights"`
}

type setWeightsResponse struct {
	Scheduled bool `json:"scheduled"`
	Count     int  `json:"count"`
}

type rawWeightsResponse struct {
	Epoch   weights.Epoch      `json:"epoch"`
	Weights map[string]float64 `json:"weights"`
}

// putSubnetWeights is component F's entry point: validate, upsert into
// the store, and fire a background ApplyWeights job that never blocks
// the HTTP response — spec.md §4.F describes submission as "runs as a
// single background task per submission", and Open Question decision
// #1 in DESIGN.md records that concurrent jobs for the same wallet are
// never deduplicated.
func (s *Server) putSubnetWeights(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body setWeightsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Weights) == 0 {
		respond(w, 0, nil, errValidation("weights must be a non-empty hotkey -> weight mapping"))
		return
	}

	ctx := r.Context()
	latest := s.State.LatestBlock()
	epoch := bittensor.EpochContaining(latest, s.NetUid, s.Tempo)

	mapping := make(bittensor.WeightsMapping, len(body.Weights))
	for hk, weight := range body.Weights {
		if hk == "" {
			respond(w, 0, nil, errValidation("hotkey must not be empty"))
			return
		}
		hotkey := bittensor.Hotkey(hk)
		mapping[hotkey] = bittensor.Weight(weight)
		if _, err := s.Store.Add(ctx, hotkey, bittensor.Weight(weight), epoch.Start); err != nil {
			respond(w, 0, nil, err)
			return
		}
	}

	job := weights.NewJob(s.Client, s.NetUid, s.WalletHotkey, mapping, epoch, s.Retry)
	go job.Run(context.Background())

	respond(w, http.StatusOK, setWeightsResponse{Scheduled: true, Count: len(mapping)}, nil)
}

// getRawWeights exposes the store's raw, un-submitted accumulation for
// the current epoch; it backs S2 ("weight accumulation") and has no
// original_source HTTP counterpart of its own — it is the read side of
// the PUT above, useful for operators and tests alike.
func (s *Server) getRawWeights(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	epoch := bittensor.EpochContaining(s.State.LatestBlock(), s.NetUid, s.Tempo).Start
	raw, err := s.Store.GetRaw(r.Context(), epoch)
	if err != nil {
		respond(w, 0, nil, err)
		return
	}
	out := make(map[string]float64, len(raw))
	for hk, wt := range raw {
		out[string(hk)] = float64(wt)
	}
	respond(w, http.StatusOK, rawWeightsResponse{Epoch: epoch, Weights: out}, nil)
}

// getMetagraph serves GET /metagraph?block_number=N?: an absent query
// parameter reads through to the chain tip (uncached, per
// MetagraphCache's documented "latest is never a stable cache key"
// rule); a present one is served from the cache.
func (s *Server) getMetagraph(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	raw := r.URL.Query().Get("block_number")
	var block *bittensor.Block
	if raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respond(w, 0, nil, errValidation("block_number must be an integer"))
			return
		}
		block = &bittensor.Block{Number: bittensor.BlockNumber(n)}
	}

	m, err := s.Cache.GetMetagraph(r.Context(), s.NetUid, block)
	if err != nil {
		respond(w, 0, nil, translateChainError(err))
		return
	}
	respond(w, http.StatusOK, newMetagraphResponse(m), nil)
}

// neuronView is the wire shape a Neuron serializes to on this surface.
// It mirrors pylonclient.NeuronView field-for-field so the typed
// client and this service agree on the JSON contract without either
// package importing the other.
type neuronView struct {
	UID             int     `json:"uid"`
	Coldkey         string  `json:"coldkey"`
	Hotkey          string  `json:"hotkey"`
	Active          bool    `json:"active"`
	Stake           int64   `json:"stake"`
	Rank            float64 `json:"rank"`
	Emission        float64 `json:"emission"`
	Incentive       float64 `json:"incentive"`
	Consensus       float64 `json:"consensus"`
	Trust           float64 `json:"trust"`
	ValidatorTrust  float64 `json:"validator_trust"`
	Dividends       float64 `json:"dividends"`
	LastUpdate      uint64  `json:"last_update"`
	ValidatorPermit bool    `json:"validator_permit"`
}

func newNeuronView(n bittensor.Neuron) neuronView {
	return neuronView{
		UID:             n.UID,
		Coldkey:         string(n.Coldkey),
		Hotkey:          string(n.Hotkey),
		Active:          n.Active,
		Stake:           int64(n.Stake),
		Rank:            n.Rank,
		Emission:        n.Emission,
		Incentive:       n.Incentive,
		Consensus:       n.Consensus,
		Trust:           n.Trust,
		ValidatorTrust:  n.ValidatorTrust,
		Dividends:       n.Dividends,
		LastUpdate:      n.LastUpdate,
		ValidatorPermit: n.ValidatorPermit,
	}
}

func newNeuronViews(neurons []bittensor.Neuron) []neuronView {
	out := make([]neuronView, len(neurons))
	for i, n := range neurons {
		out[i] = newNeuronView(n)
	}
	return out
}

// metagraphResponse mirrors pylonclient.GetMetagraphResponse.
type metagraphResponse struct {
	Block   int64        `json:"block"`
	Neurons []neuronView `json:"neurons"`
}

func newMetagraphResponse(m bittensor.Metagraph) metagraphResponse {
	neurons := make([]bittensor.Neuron, 0, len(m.Neurons))
	for _, n := range m.Neurons {
		neurons = append(neurons, n)
	}
	return metagraphResponse{Block: int64(m.Block.Number), Neurons: newNeuronViews(neurons)}
}

type subnetNeuronsResponse struct {
	Block   bittensor.Block `json:"block"`
	Neurons []neuronView    `json:"neurons"`
}

// getSubnetNeuronsAtBlock serves GET /subnet/{netuid}/neurons/{block}.
func (s *Server) getSubnetNeuronsAtBlock(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	netuid, err := parseNetUid(ps.ByName("netuid"))
	if err != nil {
		respond(w, 0, nil, errValidation(err.Error()))
		return
	}
	blockNum, err := strconv.ParseInt(ps.ByName("block"), 10, 64)
	if err != nil {
		respond(w, 0, nil, errValidation("block must be an integer"))
		return
	}
	block := &bittensor.Block{Number: bittensor.BlockNumber(blockNum)}

	neurons, err := s.Client.GetNeurons(r.Context(), netuid, block)
	if err != nil {
		respond(w, 0, nil, translateChainError(err))
		return
	}
	respond(w, http.StatusOK, subnetNeuronsResponse{Block: *block, Neurons: newNeuronViews(neurons)}, nil)
}

// getLatestNeurons serves GET /neurons/latest for this server's own
// configured subnet.
func (s *Server) getLatestNeurons(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	neurons, err := s.Client.GetNeurons(r.Context(), s.NetUid, nil)
	if err != nil {
		respond(w, 0, nil, translateChainError(err))
		return
	}
	respond(w, http.StatusOK, subnetNeuronsResponse{Neurons: newNeuronViews(neurons)}, nil)
}

// getCertificates serves GET /certificates: every published certificate
// on this server's subnet, keyed by hotkey.
func (s *Server) getCertificates(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	certs, err := s.Client.GetCertificates(r.Context(), s.NetUid, nil)
	if err != nil {
		respond(w, 0, nil, translateChainError(err))
		return
	}
	respond(w, http.StatusOK, certs, nil)
}

// getCertificateByHotkey serves GET /certificates/{hotkey}, where the
// literal segment "self" stands for this identity's own wallet hotkey
// (httprouter cannot register "self" as a sibling static route next to
// this wildcard, so the substitution happens here instead).
func (s *Server) getCertificateByHotkey(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	hotkey := bittensor.Hotkey(ps.ByName("hotkey"))
	if ps.ByName("hotkey") == "self" {
		hotkey = s.WalletHotkey
	}
	s.getCertificateFor(w, r, hotkey)
}

func (s *Server) getCertificateFor(w http.ResponseWriter, r *http.Request, hotkey bittensor.Hotkey) {
	cert, err := s.Client.GetCertificate(r.Context(), s.NetUid, hotkey, nil)
	if err != nil {
		respond(w, 0, nil, translateChainError(err))
		return
	}
	if cert == nil {
		respond(w, 0, nil, errNotFound("no certificate published for this hotkey"))
		return
	}
	respond(w, http.StatusOK, cert, nil)
}

type generateCertificateBody struct {
	Algorithm int `json:"algorithm"`
}

// postCertificateSelf serves POST /certificates/self: mint and register
// a fresh certificate keypair for this identity's own wallet.
func (s *Server) postCertificateSelf(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body generateCertificateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond(w, 0, nil, errValidation("malformed request body"))
		return
	}
	alg := bittensor.CertificateAlgorithm(body.Algorithm)
	if alg != bittensor.CertificateAlgorithmED25519 {
		respond(w, 0, nil, errValidation("unsupported certificate algorithm"))
		return
	}

	keypair, err := s.Client.GenerateCertificateKeypair(r.Context(), s.NetUid, alg)
	if err != nil {
		s.Log.Error("certificate generation failed", "err", err)
		respond(w, 0, nil, errBadGateway("certificate generation failed"))
		return
	}
	respond(w, http.StatusCreated, keypair, nil)
}

// translateChainError maps the adapter-level ErrUnknownBlock signal to
// the 404 spec.md §6's table promises; anything else falls through to
// safeEndpoint's generic 500.
func translateChainError(err error) error {
	if errors.Is(err, bittensor.ErrUnknownBlock) {
		return errNotFound("unknown block")
	}
	return err
}

func parseNetUid(s string) (bittensor.NetUid, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, errors.New("netuid must be a non-negative integer")
	}
	return bittensor.NetUid(n), nil
}
