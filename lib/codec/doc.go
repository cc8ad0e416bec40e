// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the standard CBOR encoding configuration for
// chainfs tooling output.
//
// The on-disk image format is chainfs's own fixed little-endian layout
// (lib/record); CBOR is used only at the tooling boundary, for
// machine-readable image snapshots emitted by chainfs-inspect. The
// encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map
// keys, smallest integer encoding, no indefinite-length items. The
// same image state always produces identical snapshot bytes, so
// snapshots can be compared byte for byte.
//
//	data, err := codec.Marshal(snapshot)
//	err = codec.Unmarshal(data, &snapshot)
//
// Diagnose renders encoded snapshots in CBOR diagnostic notation
// (RFC 8949 §8) for human inspection.
package codec
