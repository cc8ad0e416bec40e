// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package blockdev provides raw positioned I/O over the backing medium
// of a chainfs image: a regular image file or a raw block device.
//
// A Device performs no buffering or caching. Every ReadAt and WriteAt
// is a direct positioned transfer against the file descriptor, and
// both complete fully or fail — partial transfers are retried until
// the kernel reports an error. Sync flushes all prior writes to stable
// storage; callers that need crash ordering must call it at the
// ordering points they care about.
package blockdev
