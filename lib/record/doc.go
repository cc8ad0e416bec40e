// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package record defines the on-disk binary format of a chainfs image:
// the superblock at address 0 and the node records that follow it.
//
// All integers are little-endian. A node record is a fixed-width part
// (tree links and attributes), a length-prefixed UTF-8 name, and — for
// regular files — raw content bytes immediately after the name. The
// encoded size of the fixed part is a compile-time constant, so the
// content offset of any record is computable from its header alone
// without touching the medium.
//
// Decoding never guesses: truncated buffers, impossible name lengths,
// and unknown kind discriminants all fail with a *CorruptionError
// carrying the byte address of the bad record.
package record
