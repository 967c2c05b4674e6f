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

// Package pylonclient is component H: a sealed set of typed requests,
// each paired with its response type, dispatched through a Transport
// with exponential-jitter retry. It is the Go counterpart of
// original_source/pylon/_internal/common/requests.py +
// original_source/pylon_client.py, rebuilt as a sealed Request
// interface dispatched through the generic Do[Resp] instead of a
// class-attribute-dispatched hierarchy (see spec.md §9's "sealed sum
// type" guidance).
package pylonclient

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// APIVersion identifies the URL prefix a request is dispatched under.
type APIVersion string

const APIVersionV1 APIVersion = "v1"

func (v APIVersion) prefix() string { return "/api/" + string(v) }

// Request is the sealed interface every request type implements. The
// method and path are fixed per concrete type, mirroring the
// class-level `rtype`/`http_method` constants of the original
// implementation.
type Request interface {
	apiVersion() APIVersion
	httpMethod() string
	path() string
	validate() error
}

// bodyEncoder is implemented by requests whose wire body isn't just
// their own JSON-marshaled struct — e.g. one holding two alternate
// input fields that resolve to a single wire value. Do falls back to
// json.Marshal(req) for every request that doesn't implement this.
type bodyEncoder interface {
	body() ([]byte, error)
}

// SetWeightsRequest asks Pylon to schedule an ApplyWeights job.
type SetWeightsRequest struct {
	Weights map[string]float64 `json:"weights"`
}

func (SetWeightsRequest) apiVersion() APIVersion { return APIVersionV1 }
func (SetWeightsRequest) httpMethod() string     { return "PUT" }
func (SetWeightsRequest) path() string           { return "/subnet/weights" }

func (r SetWeightsRequest) validate() error {
	if len(r.Weights) == 0 {
		return ValidationError{Field: "weights", Reason: "no weights provided"}
	}
	for hotkey := range r.Weights {
		if hotkey == "" {
			return ValidationError{Field: "weights", Reason: "hotkey must be a non-empty string"}
		}
	}
	return nil
}

// GetNeuronsRequest fetches the neuron table at a specific block.
type GetNeuronsRequest struct {
	NetUid      int
	BlockNumber int64
}

func (GetNeuronsRequest) apiVersion() APIVersion { return APIVersionV1 }
func (GetNeuronsRequest) httpMethod() string     { return "GET" }
func (r GetNeuronsRequest) path() string {
	return fmt.Sprintf("/subnet/%d/neurons/%d", r.NetUid, r.BlockNumber)
}
func (GetNeuronsRequest) validate() error { return nil }

// GetLatestNeuronsRequest fetches the neuron table at the chain tip.
type GetLatestNeuronsRequest struct{}

func (GetLatestNeuronsRequest) apiVersion() APIVersion { return APIVersionV1 }
func (GetLatestNeuronsRequest) httpMethod() string     { return "GET" }
func (GetLatestNeuronsRequest) path() string           { return "/neurons/latest" }
func (GetLatestNeuronsRequest) validate() error        { return nil }

// GetMetagraphRequest fetches a full metagraph, optionally pinned to
// a block; a nil BlockNumber means "latest", matching
// original_source/pylon/service/api.py's get_metagraph default.
type GetMetagraphRequest struct {
	BlockNumber *int64
}

func (GetMetagraphRequest) apiVersion() APIVersion { return APIVersionV1 }
func (GetMetagraphRequest) httpMethod() string     { return "GET" }
func (r GetMetagraphRequest) path() string {
	if r.BlockNumber == nil {
		return "/metagraph"
	}
	return fmt.Sprintf("/metagraph?block_number=%d", *r.BlockNumber)
}
func (GetMetagraphRequest) validate() error { return nil }

// GenerateCertificateKeypairRequest asks the chain to mint a fresh
// certificate keypair for Pylon's own wallet.
type GenerateCertificateKeypairRequest struct {
	Algorithm int
}

func (GenerateCertificateKeypairRequest) apiVersion() APIVersion { return APIVersionV1 }
func (GenerateCertificateKeypairRequest) httpMethod() string     { return "POST" }
func (GenerateCertificateKeypairRequest) path() string           { return "/certificates/self" }

func (r GenerateCertificateKeypairRequest) validate() error {
	const algorithmED25519 = 1
	if r.Algorithm != algorithmED25519 {
		return ValidationError{Field: "algorithm", Reason: "only ED25519 (1) is supported"}
	}
	return nil
}

// SetCommitmentRequest publishes arbitrary model-metadata bytes on
// chain, associated with Pylon's own hotkey. Supplemented from
// original_source/pylon/_internal/common/requests.py per SPEC_FULL.md
// §4: no server route exists for it in this repo's HTTP surface, but
// §4.H requires the sealed request set to include it.
type SetCommitmentRequest struct {
	// Data is either raw bytes or a (possibly 0x-prefixed) hex string;
	// exactly one of Data/DataHex should be set.
	Data    []byte
	DataHex string
}

func (SetCommitmentRequest) apiVersion() APIVersion { return APIVersionV1 }
func (SetCommitmentRequest) httpMethod() string     { return "POST" }
func (SetCommitmentRequest) path() string           { return "/commitments" }

func (r SetCommitmentRequest) validate() error {
	if len(r.Data) > 0 {
		return nil
	}
	s := strings.TrimPrefix(r.DataHex, "0x")
	if s == "" {
		return ValidationError{Field: "data", Reason: "data must be bytes or a hex string"}
	}
	if _, err := hex.DecodeString(s); err != nil {
		return ValidationError{Field: "data", Reason: "data must be valid hex: " + err.Error()}
	}
	return nil
}

// resolvedData returns the raw bytes the request will send, decoding
// DataHex if Data wasn't set directly.
func (r SetCommitmentRequest) resolvedData() ([]byte, error) {
	if len(r.Data) > 0 {
		return r.Data, nil
	}
	return hex.DecodeString(strings.TrimPrefix(r.DataHex, "0x"))
}

// setCommitmentWireBody is the single `{"data": "<hex>"}` shape the
// server expects, regardless of whether the caller populated Data or
// DataHex.
type setCommitmentWireBody struct {
	Data string `json:"data"`
}

func (r SetCommitmentRequest) body() ([]byte, error) {
	data, err := r.resolvedData()
	if err != nil {
		return nil, err
	}
	return json.Marshal(setCommitmentWireBody{Data: hex.EncodeToString(data)})
}

var _ bodyEncoder = SetCommitmentRequest{}

// GetCommitmentRequest fetches a single hotkey's commitment.
type GetCommitmentRequest struct {
	Hotkey string
}

func (GetCommitmentRequest) apiVersion() APIVersion { return APIVersionV1 }
func (GetCommitmentRequest) httpMethod() string     { return "GET" }
func (r GetCommitmentRequest) path() string         { return "/commitments/" + r.Hotkey }
func (r GetCommitmentRequest) validate() error {
	if r.Hotkey == "" {
		return ValidationError{Field: "hotkey", Reason: "hotkey must be a non-empty string"}
	}
	return nil
}

// GetCommitmentsRequest fetches every commitment on the subnet.
type GetCommitmentsRequest struct{}

func (GetCommitmentsRequest) apiVersion() APIVersion { return APIVersionV1 }
func (GetCommitmentsRequest) httpMethod() string     { return "GET" }
func (GetCommitmentsRequest) path() string           { return "/commitments" }
func (GetCommitmentsRequest) validate() error        { return nil }

var (
	_ Request = SetWeightsRequest{}
	_ Request = GetNeuronsRequest{}
	_ Request = GetLatestNeuronsRequest{}
	_ Request = GetMetagraphRequest{}
	_ Request = GenerateCertificateKeypairRequest{}
	_ Request = SetCommitmentRequest{}
	_ Request = GetCommitmentRequest{}
	_ Request = GetCommitmentsRequest{}
)
