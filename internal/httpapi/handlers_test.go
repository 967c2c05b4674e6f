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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentensor/pylon/internal/bittensor"
	"github.com/opentensor/pylon/internal/log"
	"github.com/opentensor/pylon/internal/weights"
)

func newTestServer(t *testing.T) (*Server, *bittensor.MockBackend) {
	t.Helper()
	backend := bittensor.NewMockBackend("5F_validator")
	client := bittensor.NewClient("mock://", backend)
	require.NoError(t, client.Open(context.Background()))

	backend.SetLatest(bittensor.Block{Number: 100, Hash: "0xhundred"})
	backend.Neurons[100] = []bittensor.Neuron{
		{UID: 0, Hotkey: "5F_alice"},
		{UID: 1, Hotkey: "5F_bob"},
	}

	state := weights.NewAppState()
	s := &Server{
		NetUid:       7,
		WalletHotkey: "5F_validator",
		Tempo:        360,
		Client:       client,
		Cache:        bittensor.NewMetagraphCache(client, 0, 0),
		Store:        weights.NewMemoryStore(),
		State:        state,
		Retry:        weights.RetryConfig{Attempts: 1, InitialDelay: 0},
		Log:          log.New("component", "httpapi.test"),
	}
	return s, backend
}

func TestGetMetagraphLatest(t *testing.T) {
	s, _ := newTestServer(t)
	router := NewRouter(s)

	req := httptest.NewRequest(http.MethodGet, apiPrefix+"/metagraph", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var m metagraphResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Len(t, m.Neurons, 2)
}

func TestGetMetagraphUnknownBlockReturns404(t *testing.T) {
	s, backend := newTestServer(t)
	backend.UnknownBlocks[42] = true
	router := NewRouter(s)

	req := httptest.NewRequest(http.MethodGet, apiPrefix+"/metagraph?block_number=42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetMetagraphBadQueryReturns400(t *testing.T) {
	s, _ := newTestServer(t)
	router := NewRouter(s)

	req := httptest.NewRequest(http.MethodGet, apiPrefix+"/metagraph?block_number=not-a-number", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutSubnetWeightsRequiresAuth(t *testing.T) {
	s, _ := newTestServer(t)
	s.WeightsToken = "secret"
	router := NewRouter(s)

	req := httptest.NewRequest(http.MethodPut, apiPrefix+"/subnet/weights", strings.NewReader(`{"weights":{"5F_alice":1.0}}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body detail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Auth token required", body.Detail)
}

func TestPutSubnetWeightsWrongTokenReturns401(t *testing.T) {
	s, _ := newTestServer(t)
	s.WeightsToken = "secret"
	router := NewRouter(s)

	req := httptest.NewRequest(http.MethodPut, apiPrefix+"/subnet/weights", strings.NewReader(`{"weights":{"5F_alice":1.0}}`))
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body detail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Invalid auth token", body.Detail)
}

func TestPutSubnetWeightsTokenNotConfiguredReturns500(t *testing.T) {
	s, _ := newTestServer(t)
	s.WeightsToken = ""
	router := NewRouter(s)

	req := httptest.NewRequest(http.MethodPut, apiPrefix+"/subnet/weights", strings.NewReader(`{"weights":{"5F_alice":1.0}}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body detail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Token auth not configured", body.Detail)
}

func TestPutSubnetWeightsUppercaseSchemeSucceeds(t *testing.T) {
	s, _ := newTestServer(t)
	s.WeightsToken = "t"
	router := NewRouter(s)

	req := httptest.NewRequest(http.MethodPut, apiPrefix+"/subnet/weights", strings.NewReader(`{"weights":{"5F_alice":1.0}}`))
	req.Header.Set("Authorization", "BEARER t")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPutSubnetWeightsValidation(t *testing.T) {
	s, _ := newTestServer(t)
	s.WeightsToken = "t"
	router := NewRouter(s)

	req := httptest.NewRequest(http.MethodPut, apiPrefix+"/subnet/weights", strings.NewReader(`{"weights":{}}`))
	req.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutSubnetWeightsAccumulatesIntoStore(t *testing.T) {
	s, _ := newTestServer(t)
	s.WeightsToken = "t"
	router := NewRouter(s)

	do := func(body string) {
		req := httptest.NewRequest(http.MethodPut, apiPrefix+"/subnet/weights", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer t")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	do(`{"weights":{"5F_alice":2.0}}`)
	do(`{"weights":{"5F_alice":3.5}}`)

	req := httptest.NewRequest(http.MethodGet, apiPrefix+"/raw_weights", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rawWeightsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5.5, resp.Weights["5F_alice"])
}

func TestMetricsRequiresAuth(t *testing.T) {
	s, _ := newTestServer(t)
	s.MetricsToken = "m"
	router := NewRouter(s)

	req := httptest.NewRequest(http.MethodGet, apiPrefix+"/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetricsNotConfiguredReturns403(t *testing.T) {
	s, _ := newTestServer(t)
	s.MetricsToken = ""
	router := NewRouter(s)

	req := httptest.NewRequest(http.MethodGet, apiPrefix+"/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetCertificateSelfNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	router := NewRouter(s)

	req := httptest.NewRequest(http.MethodGet, apiPrefix+"/certificates/self", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostCertificateSelfInvalidAlgorithm(t *testing.T) {
	s, _ := newTestServer(t)
	router := NewRouter(s)

	req := httptest.NewRequest(http.MethodPost, apiPrefix+"/certificates/self", strings.NewReader(`{"algorithm":99}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostCertificateSelfSucceeds(t *testing.T) {
	s, _ := newTestServer(t)
	router := NewRouter(s)

	req := httptest.NewRequest(http.MethodPost, apiPrefix+"/certificates/self", strings.NewReader(`{"algorithm":1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
}
