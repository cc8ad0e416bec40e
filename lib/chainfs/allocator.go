// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chainfs

import (
	"fmt"

	"github.com/bureau-foundation/chainfs/lib/blockdev"
	"github.com/bureau-foundation/chainfs/lib/clock"
	"github.com/bureau-foundation/chainfs/lib/record"
)

const (
	// RootAddr is the fixed address of the root directory record:
	// the first block boundary after the superblock.
	RootAddr uint64 = record.BlockSize

	// RootIno is the inode number of the root directory. The
	// allocator issues it first, so it is always 1.
	RootIno uint64 = 1
)

// Allocator owns the superblock: format validation, inode issuance,
// and address issuance. Every issuance writes the superblock through
// to the device and fsyncs before returning, so a crash can leak the
// just-issued ino or extent but never rewind the counters. Counters
// are monotonic and never reused.
//
// Allocator is not safe for concurrent use; the FS serializes access.
type Allocator struct {
	device *blockdev.Device
	sb     record.Superblock
}

// Load reads the superblock from address 0 and validates the format
// marker. A marker mismatch returns a *record.CorruptionError; the
// caller decides whether that means "reformat" (mount) or "refuse"
// (inspection).
func Load(device *blockdev.Device) (*Allocator, error) {
	buffer := make([]byte, record.SuperblockSize)
	if _, err := device.ReadAt(buffer, 0); err != nil {
		return nil, fmt.Errorf("reading superblock: %w", err)
	}

	sb, err := record.DecodeSuperblock(buffer)
	if err != nil {
		return nil, err
	}
	if !sb.Valid() {
		return nil, &record.CorruptionError{
			Addr:   0,
			Reason: fmt.Sprintf("superblock magic %#08x, want %#08x", sb.Magic, record.Magic),
		}
	}

	return &Allocator{device: device, sb: sb}, nil
}

// Format writes a fresh superblock and an empty root directory,
// destroying whatever the image held before. The root record (ino 1,
// empty name) reaches the device and is synced before the superblock
// that makes it reachable.
func Format(device *blockdev.Device, clk clock.Clock) (*Allocator, error) {
	now := clk.Now()
	rootSize := record.HeaderSize("")

	root := &record.Header{
		Attr: record.Attributes{
			Ino:    RootIno,
			Blocks: record.AlignUp(rootSize) / record.BlockSize,
			Atime:  now,
			Mtime:  now,
			Ctime:  now,
			Crtime: now,
			Kind:   record.KindDirectory,
			Perm:   0o777,
			Nlink:  1,
		},
	}

	if _, err := device.WriteAt(root.Encode(), int64(RootAddr)); err != nil {
		return nil, fmt.Errorf("writing root record: %w", err)
	}
	if err := device.Sync(); err != nil {
		return nil, err
	}

	a := &Allocator{
		device: device,
		sb: record.Superblock{
			Magic:    record.Magic,
			NextIno:  RootIno + 1,
			NextFree: RootAddr + record.AlignUp(rootSize),
		},
	}
	if err := a.persist(); err != nil {
		return nil, err
	}
	return a, nil
}

// NextIno issues the next inode number and persists the advanced
// counter before returning it.
func (a *Allocator) NextIno() (uint64, error) {
	ino := a.sb.NextIno
	a.sb.NextIno++
	if err := a.persist(); err != nil {
		return 0, fmt.Errorf("persisting inode counter: %w", err)
	}
	return ino, nil
}

// Reserve issues a block-aligned address for a record of the given
// byte size and persists the advanced free pointer before returning.
// The reserved extent is AlignUp(size) bytes; the caller owns
// [address, address+AlignUp(size)) exclusively.
func (a *Allocator) Reserve(size uint64) (uint64, error) {
	addr := a.sb.NextFree
	a.sb.NextFree += record.AlignUp(size)
	if err := a.persist(); err != nil {
		return 0, fmt.Errorf("persisting free pointer: %w", err)
	}
	return addr, nil
}

// Superblock returns a copy of the current allocator state.
func (a *Allocator) Superblock() record.Superblock {
	return a.sb
}

func (a *Allocator) persist() error {
	if _, err := a.device.WriteAt(a.sb.Encode(), 0); err != nil {
		return fmt.Errorf("writing superblock: %w", err)
	}
	return a.device.Sync()
}
