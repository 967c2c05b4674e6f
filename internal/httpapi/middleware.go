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
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/opentensor/pylon/internal/log"
)

// writeJSON writes v as the response body with status, swallowing the
// encode error: by the time encoding fails the header is already sent
// and there is nothing more a handler can do about it.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// detail is the `{"detail": "..."}` envelope every error response in
// spec.md §7 uses.
type detail struct {
	Detail string `json:"detail"`
}

func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, detail{Detail: msg})
}

// safeEndpoint is the "common safe endpoint decorator" spec.md §7
// calls for: it recovers a panicking handler and converts the panic
// into HTTP 500 `{detail}`, so a single misbehaving route never takes
// the process down. Errors a handler returns are converted by respond,
// not here; apiError lets an inner handler opt into a specific
// status/message instead of the generic 500.
func safeEndpoint(logger log.Logger, h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("endpoint panicked", "path", r.URL.Path, "recover", rec)
				writeDetail(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		h(w, r, ps)
	}
}

// apiError is how a handler signals a specific status/message to the
// caller instead of falling through to safeEndpoint's generic 500; it
// is returned, never recovered, so callers must check for it
// explicitly (see respond in handlers.go).
type apiError struct {
	Status int
	Msg    string
}

func (e *apiError) Error() string { return e.Msg }

func errValidation(msg string) *apiError   { return &apiError{Status: http.StatusBadRequest, Msg: msg} }
func errNotFound(msg string) *apiError     { return &apiError{Status: http.StatusNotFound, Msg: msg} }
func errBadGateway(msg string) *apiError   { return &apiError{Status: http.StatusBadGateway, Msg: msg} }
func errUnauthorized(msg string) *apiError { return &apiError{Status: http.StatusUnauthorized, Msg: msg} }

// respond is the tail every handler calls: nil error writes the 200/201
// payload, an *apiError writes its own status, anything else falls
// through to a generic 500 (safeEndpoint catches panics; this catches
// plain returned errors from the same handler).
func respond(w http.ResponseWriter, okStatus int, payload interface{}, err error) {
	if err == nil {
		writeJSON(w, okStatus, payload)
		return
	}
	if ae, ok := err.(*apiError); ok {
		writeDetail(w, ae.Status, ae.Msg)
		return
	}
	writeDetail(w, http.StatusInternalServerError, "internal server error")
}

// bearerToken extracts the token from an `Authorization: Bearer <token>`
// header. The scheme match is case-insensitive ("Bearer" or "bearer" or
// "BEARER" all work), mirroring original_source's
// `scheme.lower() == "bearer"` check and S6's "uppercase scheme"
// scenario. A missing header or a header that isn't exactly two
// whitespace-separated parts is reported as "absent".
func bearerToken(r *http.Request) (token string, present bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	parts := strings.Fields(h)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// constantTimeEqual compares two tokens without leaking their length
// difference through branch timing any more than subtle.ConstantTimeCompare
// already tolerates; unequal lengths are rejected before the constant-time
// compare, just as ConstantTimeCompare itself returns 0 at once on a
// length mismatch.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// requireBearerToken enforces spec.md §6's auth rule for a single
// configured token, with the exact failure strings/statuses §8's S6 and
// S9 scenarios pin down:
//   - token == "" (not configured): notConfiguredStatus/"Token auth not configured"
//   - no Authorization header: 401 "Auth token required"
//   - wrong token: 401 "Invalid auth token"
//
// notConfiguredStatus lets callers pick the status for the
// "not configured" case, since weights (500, per S6) and metrics (403,
// per the original metrics guard) disagree — see DESIGN.md's Open
// Question decision on this.
func requireBearerToken(token string, notConfiguredStatus int, h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !checkBearerToken(w, r, token, notConfiguredStatus) {
			return
		}
		h(w, r, ps)
	}
}

// requireBearerHTTP is requireBearerToken's counterpart for plain
// http.Handler endpoints (promhttp.Handler(), specifically), since
// /metrics is served by a library handler rather than an
// httprouter.Handle.
func requireBearerHTTP(token string, notConfiguredStatus int, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !checkBearerToken(w, r, token, notConfiguredStatus) {
			return
		}
		h.ServeHTTP(w, r)
	})
}

// checkBearerToken runs the shared auth check and writes the failure
// response itself; it returns true only when the request is authorized
// to proceed.
func checkBearerToken(w http.ResponseWriter, r *http.Request, token string, notConfiguredStatus int) bool {
	if token == "" {
		writeDetail(w, notConfiguredStatus, "Token auth not configured")
		return false
	}
	got, present := bearerToken(r)
	if !present {
		writeDetail(w, http.StatusUnauthorized, "Auth token required")
		return false
	}
	if !constantTimeEqual(got, token) {
		writeDetail(w, http.StatusUnauthorized, "Invalid auth token")
		return false
	}
	return true
}
