// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fuse exposes a chainfs storage engine as a mounted
// filesystem via go-fuse.
//
// The bridge is a thin translation layer: every kernel callback maps
// to exactly one engine operation, engine errors map to errnos, and
// nothing is cached on this side. File I/O uses direct-io so that
// reads always reflect the engine's current record placement, which
// can change when a write relocates a grown record.
package fuse
