// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package record

// BlockSize is the allocation granularity of the image. Every record
// starts at a BlockSize boundary and every reservation is rounded up
// to a whole number of blocks.
const BlockSize = 512

// AlignUp rounds n up to the next BlockSize boundary. Values already
// on a boundary (including 0) are returned unchanged.
func AlignUp(n uint64) uint64 {
	return (n + BlockSize - 1) / BlockSize * BlockSize
}
