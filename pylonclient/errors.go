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

import "fmt"

// ValidationError is the client-side validation failure surfaced
// before a request is ever sent, replacing the original
// implementation's pydantic ValidationError.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("pylonclient: invalid %s: %s", e.Field, e.Reason)
}

// RequestError is BasePylonException's PylonRequestException
// counterpart: the transport never got a usable response, even after
// retries (connect/read/timeout failures).
type RequestError struct {
	Request Request
	Err     error
}

func (e RequestError) Error() string {
	return fmt.Sprintf("pylonclient: request failed: %v", e.Err)
}

func (e RequestError) Unwrap() error { return e.Err }

// ResponseError is BasePylonException's PylonResponseException
// counterpart: the server answered with a non-2xx status.
type ResponseError struct {
	Request    Request
	StatusCode int
	Body       []byte
}

func (e ResponseError) Error() string {
	return fmt.Sprintf("pylonclient: server responded %d: %s", e.StatusCode, e.Body)
}
