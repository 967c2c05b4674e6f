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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/opentensor/pylon/internal/log"
)

// RawResponse is what a Transport returns: the raw status and body,
// left to decodeResponse to decode.
type RawResponse struct {
	StatusCode int
	Body       []byte
}

// Transport sends a single already-validated Request and returns the
// raw response, or an error for a transport-level (not HTTP-status)
// failure.
type Transport interface {
	Send(ctx context.Context, req Request, body []byte) (RawResponse, error)
}

// TransportConfig carries the retry settings from spec.md §4.H.
type TransportConfig struct {
	BaseURL          string
	InitialInterval  time.Duration // default 100ms
	Jitter           time.Duration // default 200ms
	StopAfterAttempt int           // default 3
}

func (c TransportConfig) withDefaults() TransportConfig {
	if c.InitialInterval <= 0 {
		c.InitialInterval = 100 * time.Millisecond
	}
	if c.Jitter <= 0 {
		c.Jitter = 200 * time.Millisecond
	}
	if c.StopAfterAttempt <= 0 {
		c.StopAfterAttempt = 3
	}
	return c
}

// HTTPTransport is the production Transport, backed by net/http, with
// exponential-jitter retry on transport failures only — HTTP error
// statuses are never retried, per spec.md §4.H.
type HTTPTransport struct {
	cfg    TransportConfig
	client *http.Client
	log    log.Logger
}

func NewHTTPTransport(cfg TransportConfig) *HTTPTransport {
	return &HTTPTransport{
		cfg:    cfg.withDefaults(),
		client: &http.Client{},
		log:    log.New("component", "pylonclient.HTTPTransport"),
	}
}

func (t *HTTPTransport) Send(ctx context.Context, req Request, body []byte) (RawResponse, error) {
	url := t.cfg.BaseURL + req.apiVersion().prefix() + req.path()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.cfg.InitialInterval
	b.RandomizationFactor = 1
	b.Multiplier = 2
	b.MaxInterval = t.cfg.InitialInterval * 10
	b.MaxElapsedTime = 0
	bounded := backoff.WithContext(backoff.WithMaxRetries(b, uint64(t.cfg.StopAfterAttempt-1)), ctx)

	var result RawResponse
	var lastErr error

	op := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.httpMethod(), url, reader)
		if err != nil {
			lastErr = err
			return backoff.Permanent(err)
		}
		if body != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}

		resp, err := t.client.Do(httpReq)
		if err != nil {
			lastErr = err
			t.log.Warn("transport error, retrying", "url", url, "err", err)
			return err // transport failure: retryable
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			lastErr = err
			return err
		}
		result = RawResponse{StatusCode: resp.StatusCode, Body: respBody}
		return nil
	}

	if err := backoff.Retry(op, withJitterSleep(bounded, t.cfg.Jitter)); err != nil {
		return RawResponse{}, RequestError{Request: req, Err: errors.Join(lastErr, err)}
	}
	return result, nil
}

// withJitterSleep adds a uniform random jitter on top of each
// computed interval, matching "initial 0.1s, jitter 0.2s" rather than
// ExponentialBackOff's own proportional RandomizationFactor alone.
type jitterBackOff struct {
	backoff.BackOffContext
	jitter time.Duration
}

func (j jitterBackOff) NextBackOff() time.Duration {
	base := j.BackOffContext.NextBackOff()
	if base == backoff.Stop {
		return base
	}
	return base + time.Duration(rand.Int63n(int64(j.jitter)+1))
}

func withJitterSleep(b backoff.BackOffContext, jitter time.Duration) backoff.BackOffContext {
	return jitterBackOff{BackOffContext: b, jitter: jitter}
}

// decodeResponse decodes a successful RawResponse body into the
// caller's response type, or builds a ResponseError for non-2xx.
func decodeResponse[Resp any](req Request, raw RawResponse) (Resp, error) {
	var resp Resp
	if raw.StatusCode < 200 || raw.StatusCode >= 300 {
		return resp, ResponseError{Request: req, StatusCode: raw.StatusCode, Body: raw.Body}
	}
	if len(raw.Body) == 0 {
		return resp, nil
	}
	if err := json.Unmarshal(raw.Body, &resp); err != nil {
		return resp, ResponseError{Request: req, StatusCode: raw.StatusCode, Body: raw.Body}
	}
	return resp, nil
}
