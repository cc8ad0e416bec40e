// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package record

import "time"

// Kind is the record type discriminant. It is stored on disk as a
// 4-byte value; zero is deliberately not a valid kind so that a
// zeroed region never decodes as a record.
type Kind uint32

const (
	// KindDirectory is a directory record. Its content region is
	// unused; children hang off the FirstChild link.
	KindDirectory Kind = 1

	// KindRegularFile is a regular file record with raw content
	// bytes following the header.
	KindRegularFile Kind = 2

	// KindSymlink is a symbolic link record. Only the type tag is
	// stored; chainfs does not store link targets.
	KindSymlink Kind = 3
)

// Valid reports whether k is a known discriminant.
func (k Kind) Valid() bool {
	return k >= KindDirectory && k <= KindSymlink
}

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindRegularFile:
		return "file"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// Attributes is the stat-like metadata of a record. Every field has a
// fixed width on disk; see codec.go for the exact layout.
type Attributes struct {
	// Ino is the inode number, issued once by the allocator and
	// never reused.
	Ino uint64

	// Size is the logical content length in bytes. For directories
	// and symlinks it is always zero.
	Size uint64

	// Blocks is the number of BlockSize blocks reserved for this
	// record, header included. Blocks*BlockSize measured from the
	// record's address is the record's capacity: the range it may
	// occupy without colliding with the next allocation.
	Blocks uint64

	// Timestamps, each stored as 64-bit seconds plus 32-bit
	// nanoseconds since the Unix epoch.
	Atime  time.Time
	Mtime  time.Time
	Ctime  time.Time
	Crtime time.Time

	// Kind discriminates directory, regular file, and symlink.
	Kind Kind

	// Perm holds the permission bits (the low 12 bits of a POSIX
	// mode).
	Perm uint16

	Nlink uint32
	UID   uint32
	GID   uint32
	Rdev  uint32
	Flags uint32
}
