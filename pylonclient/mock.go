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
	"errors"
	"sync"
)

// Behavior is one scripted response a MockTransport will hand back,
// consumed in order. This is the Go counterpart of the mock transport
// described in spec.md §4.H ("a mock transport exists (testing only):
// takes a programmable list of Behaviors consumed in order").
type Behavior interface {
	apply(req Request) (RawResponse, error)
}

// WorkNormally returns raw as the transport's response.
type WorkNormally struct {
	Response RawResponse
}

func (b WorkNormally) apply(req Request) (RawResponse, error) { return b.Response, nil }

// RaiseRequestError simulates a transport-level failure (as if every
// retry attempt failed).
type RaiseRequestError struct {
	Msg string
}

func (b RaiseRequestError) apply(req Request) (RawResponse, error) {
	return RawResponse{}, RequestError{Request: req, Err: errors.New(b.Msg)}
}

// RaiseResponseError simulates a non-2xx HTTP response.
type RaiseResponseError struct {
	Msg        string
	StatusCode int
}

func (b RaiseResponseError) apply(req Request) (RawResponse, error) {
	return RawResponse{StatusCode: b.StatusCode, Body: []byte(b.Msg)}, nil
}

// MockTransport replays a scripted list of Behaviors in order and
// records every request it was asked to send, for assertions in
// tests exercising pylonclient.Client without a real server.
type MockTransport struct {
	mu        sync.Mutex
	behaviors []Behavior
	next      int
	Requests  []Request
}

func NewMockTransport(behaviors ...Behavior) *MockTransport {
	return &MockTransport{behaviors: behaviors}
}

func (m *MockTransport) Send(ctx context.Context, req Request, body []byte) (RawResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	if m.next >= len(m.behaviors) {
		return RawResponse{}, RequestError{Request: req, Err: errors.New("mock transport: behaviors exhausted")}
	}
	b := m.behaviors[m.next]
	m.next++
	return b.apply(req)
}

var _ Transport = (*MockTransport)(nil)
