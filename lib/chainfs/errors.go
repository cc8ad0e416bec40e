// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chainfs

import "errors"

// Sentinel errors for namespace operations. I/O failures from the
// device and *record.CorruptionError values are surfaced wrapped, not
// translated into these.
var (
	// ErrNotFound means the referenced inode or name does not
	// resolve in the tree.
	ErrNotFound = errors.New("no such file or directory")

	// ErrNotADirectory means an operation requiring a directory was
	// given some other kind of record.
	ErrNotADirectory = errors.New("not a directory")

	// ErrIsDirectory means content I/O was attempted on a directory.
	ErrIsDirectory = errors.New("is a directory")

	// ErrExists means a create would duplicate a sibling name.
	ErrExists = errors.New("file exists")

	// ErrBadHandle means the file handle is unknown or already
	// released.
	ErrBadHandle = errors.New("invalid file handle")

	// ErrNoCapacity means an in-place content write would run past
	// the record's reserved blocks. The FS layer reacts by
	// relocating the record; callers of Node directly see it as a
	// refusal, never as silent corruption of the next record.
	ErrNoCapacity = errors.New("write exceeds record capacity")
)
