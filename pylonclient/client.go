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

package pylonclient

import (
	"context"
	"encoding/json"
)

// Client wraps a Transport with the sealed-request dispatch spec.md
// §9 calls for: "a single request<R: PylonRequest>(R) -> R::Response
// parametric operation dispatches" — Do[Resp] is that operation.
type Client struct {
	Transport Transport
}

func New(transport Transport) *Client {
	return &Client{Transport: transport}
}

// Do validates req client-side, serializes it (GET requests carry no
// body), sends it through the client's Transport, and decodes the
// response into Resp. Resp must be the response type paired with
// req's concrete type — callers are trusted to get this right, same
// as the original implementation's response_cls class attribute.
func Do[Resp any](ctx context.Context, c *Client, req Request) (Resp, error) {
	var zero Resp
	if err := req.validate(); err != nil {
		return zero, err
	}

	var body []byte
	if req.httpMethod() != "GET" {
		var (
			b   []byte
			err error
		)
		if encoder, ok := req.(bodyEncoder); ok {
			b, err = encoder.body()
		} else {
			b, err = json.Marshal(req)
		}
		if err != nil {
			return zero, err
		}
		body = b
	}

	raw, err := c.Transport.Send(ctx, req, body)
	if err != nil {
		return zero, err
	}
	return decodeResponse[Resp](req, raw)
}

// SetWeights is a thin, typed convenience wrapper over Do, mirroring
// original_source/pylon_client.py's individual per-endpoint methods.
func (c *Client) SetWeights(ctx context.Context, weights map[string]float64) (SetWeightsResponse, error) {
	return Do[SetWeightsResponse](ctx, c, SetWeightsRequest{Weights: weights})
}

// GetMetagraph is the typed convenience wrapper for GetMetagraphRequest.
func (c *Client) GetMetagraph(ctx context.Context, blockNumber *int64) (GetMetagraphResponse, error) {
	return Do[GetMetagraphResponse](ctx, c, GetMetagraphRequest{BlockNumber: blockNumber})
}
