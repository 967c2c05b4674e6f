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

// EpochContaining reimplements subtensor's Rust
// blocks_until_next_epoch(netuid, tempo, block_number) to return the
// half-open block window [Start, End) that block falls in, for a
// subnet with the given tempo hyperparameter. The epoch boundary is
// the first block at which per-epoch values (dividends, incentive,
// ...) change; it belongs to the epoch that is starting, not the one
// that just ended. tempo must be > 0.
func EpochContaining(block BlockNumber, netuid NetUid, tempo uint16) Epoch {
	interval := BlockNumber(tempo) + 1

	nextEpoch := block + BlockNumber(tempo) - (block+BlockNumber(netuid)+1).mod(interval)

	var start, end BlockNumber
	if nextEpoch == block {
		start = nextEpoch
		end = start + interval
	} else {
		end = nextEpoch
		start = end - interval
	}
	return Epoch{Start: start, End: end}
}

// mod is Euclidean modulo: Go's % can return a negative result for a
// negative left operand, but block numbers before genesis never occur
// in practice and this keeps the formula identical to Python's %.
func (b BlockNumber) mod(m BlockNumber) BlockNumber {
	r := b % m
	if r < 0 {
		r += m
	}
	return r
}

// BlocksUntilNextEpoch reports how many blocks remain, inclusive of
// block itself, until the epoch containing block ends.
func BlocksUntilNextEpoch(block BlockNumber, netuid NetUid, tempo uint16) BlockNumber {
	e := EpochContaining(block, netuid, tempo)
	return e.End - block
}
