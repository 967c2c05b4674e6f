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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBearerTokenParsing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, present := bearerToken(req)
	assert.False(t, present, "no header at all")

	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	_, present = bearerToken(req)
	assert.False(t, present, "wrong scheme")

	req.Header.Set("Authorization", "Bearer")
	_, present = bearerToken(req)
	assert.False(t, present, "missing token part")

	req.Header.Set("Authorization", "bearer abc123")
	tok, present := bearerToken(req)
	assert.True(t, present)
	assert.Equal(t, "abc123", tok)

	req.Header.Set("Authorization", "BEARER ABC123")
	tok, present = bearerToken(req)
	assert.True(t, present, "scheme match is case-insensitive")
	assert.Equal(t, "ABC123", tok)
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, constantTimeEqual("secret", "secret"))
	assert.False(t, constantTimeEqual("secret", "other"))
	assert.False(t, constantTimeEqual("short", "muchlonger"))
	assert.True(t, constantTimeEqual("", ""))
}
