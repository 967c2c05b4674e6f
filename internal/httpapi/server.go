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

// Package httpapi is the HTTP surface spec.md §6 describes: every route
// lives under /api/v1, routed with httprouter and wrapped in rs/cors,
// with a common safe-endpoint decorator and constant-time Bearer auth
// guarding the two protected routes.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/opentensor/pylon/internal/log"
)

const apiPrefix = "/api/v1"

// notConfiguredStatusWeights and notConfiguredStatusMetrics resolve
// the conflict, documented in DESIGN.md, between spec.md §7's error
// taxonomy (ConfigurationMissing -> 403) and §8's concrete S6 scenario
// ("AUTH_TOKEN="" ... PUT /subnet/weights returns 500"): the concrete
// scenario wins for weights, the taxonomy's general rule is kept for
// metrics (matching original_source's prometheus_controller.py
// PermissionDeniedException), see DESIGN.md.
const (
	notConfiguredStatusWeights = http.StatusInternalServerError
	notConfiguredStatusMetrics = http.StatusForbidden
)

// NewRouter builds the complete route table for s, wrapped in
// safeEndpoint and, where required, Bearer auth.
func NewRouter(s *Server) http.Handler {
	r := httprouter.New()

	wrap := func(h httprouter.Handle) httprouter.Handle {
		return safeEndpoint(s.Log, h)
	}

	r.GET(apiPrefix+"/metagraph", wrap(s.getMetagraph))
	r.GET(apiPrefix+"/subnet/:netuid/neurons/:block", wrap(s.getSubnetNeuronsAtBlock))
	r.GET(apiPrefix+"/neurons/latest", wrap(s.getLatestNeurons))
	r.GET(apiPrefix+"/certificates", wrap(s.getCertificates))
	r.GET(apiPrefix+"/certificates/:hotkey", wrap(s.getCertificateByHotkey))
	r.POST(apiPrefix+"/certificates/self", wrap(s.postCertificateSelf))
	r.GET(apiPrefix+"/raw_weights", wrap(s.getRawWeights))
	r.PUT(apiPrefix+"/subnet/weights", wrap(requireBearerToken(s.WeightsToken, notConfiguredStatusWeights, s.putSubnetWeights)))
	r.Handler(http.MethodGet, apiPrefix+"/metrics", requireBearerHTTP(s.MetricsToken, notConfiguredStatusMetrics, promhttp.Handler()))

	return cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(r)
}

// NewHTTPServer builds a *http.Server bound to addr, serving s's route
// table. Timeouts are set defensively since this process talks to both
// the chain and arbitrary HTTP clients.
func NewHTTPServer(addr string, s *Server) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(s),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}

// Serve runs srv until ctx is cancelled, then shuts it down gracefully.
// It mirrors the teacher's ServeListener accept-loop idiom, adapted to
// net/http's own serve/shutdown split rather than a raw net.Listener
// accept loop.
func Serve(ctx context.Context, srv *http.Server, logger log.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("http api shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
