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

package bittensor

import "errors"

var (
	// ErrNotOpen is returned by any adapter method called before open()
	// or after close().
	ErrNotOpen = errors.New("bittensor: client is not open")

	// ErrInvalidState is returned by open()/close() when the client is
	// already in the state being requested.
	ErrInvalidState = errors.New("bittensor: invalid client state transition")

	// ErrUnknownBlock is the adapter-level signal that a queried block
	// is unknown to the backend queried. The archive-fallback wrapper
	// answers it by retrying on the archive client; it is returned past
	// the wrapper only when no archive client is configured or the
	// archive client reports the block unknown as well.
	ErrUnknownBlock = errors.New("bittensor: unknown block")

	// ErrPoolClosed is returned by Pool.Acquire once the pool has fully
	// closed.
	ErrPoolClosed = errors.New("bittensor: client pool is closed")

	// ErrPoolClosing is returned by Pool.Acquire while the pool is
	// draining outstanding acquires on its way to closed.
	ErrPoolClosing = errors.New("bittensor: client pool is closing")
)
