// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chainfs

import (
	"errors"
	"fmt"
	"sort"

	"github.com/bureau-foundation/chainfs/lib/blockdev"
	"github.com/bureau-foundation/chainfs/lib/record"
)

// Snapshot is a point-in-time description of an image: the superblock
// and every record reachable from the root, in depth-first order. It
// is what the offline inspector serializes.
type Snapshot struct {
	Superblock SuperblockInfo `yaml:"superblock" cbor:"superblock"`
	Records    []RecordInfo   `yaml:"records" cbor:"records"`
}

// SuperblockInfo mirrors the on-disk superblock for serialization.
type SuperblockInfo struct {
	Magic    uint32 `yaml:"magic" cbor:"magic"`
	NextIno  uint64 `yaml:"next_ino" cbor:"next_ino"`
	NextFree uint64 `yaml:"next_free" cbor:"next_free"`
}

// RecordInfo describes one reachable record.
type RecordInfo struct {
	Addr        uint64 `yaml:"addr" cbor:"addr"`
	Ino         uint64 `yaml:"ino" cbor:"ino"`
	Kind        string `yaml:"kind" cbor:"kind"`
	Name        string `yaml:"name" cbor:"name"`
	Size        uint64 `yaml:"size" cbor:"size"`
	Blocks      uint64 `yaml:"blocks" cbor:"blocks"`
	FirstChild  uint64 `yaml:"first_child" cbor:"first_child"`
	NextSibling uint64 `yaml:"next_sibling" cbor:"next_sibling"`
}

// TakeSnapshot reads an image without mutating it. Unlike FS.Init it
// never reformats: an image with a bad superblock is an error here.
func TakeSnapshot(device *blockdev.Device) (*Snapshot, error) {
	alloc, err := Load(device)
	if err != nil {
		return nil, err
	}
	sb := alloc.Superblock()

	w := &walker{device: device, visited: make(map[uint64]struct{})}
	w.walk(RootAddr)
	if len(w.problems) > 0 {
		return nil, fmt.Errorf("image is damaged: %s", w.problems[0])
	}
	if w.err != nil {
		return nil, w.err
	}

	return &Snapshot{
		Superblock: SuperblockInfo{Magic: sb.Magic, NextIno: sb.NextIno, NextFree: sb.NextFree},
		Records:    w.records,
	}, nil
}

// VerifyImage checks the structural invariants of an image and
// returns a human-readable problem list: format marker, address
// alignment, sibling/child cycles, undecodable records, and extent
// overlap between neighbouring records. An empty list means the image
// is structurally sound. I/O failures abort with an error.
func VerifyImage(device *blockdev.Device) ([]string, error) {
	alloc, err := Load(device)
	if err != nil {
		var corruption *record.CorruptionError
		if errors.As(err, &corruption) {
			return []string{corruption.Error()}, nil
		}
		return nil, err
	}
	sb := alloc.Superblock()

	var problems []string
	if sb.NextFree%record.BlockSize != 0 {
		problems = append(problems, fmt.Sprintf("next free address %d is not block-aligned", sb.NextFree))
	}
	if sb.NextIno == 0 {
		problems = append(problems, "next inode counter is zero")
	}

	w := &walker{device: device, visited: make(map[uint64]struct{})}
	w.walk(RootAddr)
	if w.err != nil {
		return nil, w.err
	}
	problems = append(problems, w.problems...)

	for _, r := range w.records {
		if r.Addr%record.BlockSize != 0 {
			problems = append(problems, fmt.Sprintf("record %d at address %d is not block-aligned", r.Ino, r.Addr))
		}
		if r.Addr >= sb.NextFree {
			problems = append(problems, fmt.Sprintf("record %d at address %d lies past the allocation frontier %d",
				r.Ino, r.Addr, sb.NextFree))
		}
	}

	// Neighbouring extents must not overlap. The reserved extent of
	// a record is Blocks×BlockSize from its address; the next
	// record's address must not fall inside it. This is the growth
	// hazard of the format surfaced as a check.
	byAddr := make([]RecordInfo, len(w.records))
	copy(byAddr, w.records)
	sort.Slice(byAddr, func(i, j int) bool { return byAddr[i].Addr < byAddr[j].Addr })
	for i := 1; i < len(byAddr); i++ {
		previous, current := byAddr[i-1], byAddr[i]
		reservedEnd := previous.Addr + previous.Blocks*record.BlockSize
		if reservedEnd > current.Addr {
			problems = append(problems, fmt.Sprintf(
				"record %d reserves [%d, %d) which overlaps record %d at address %d",
				previous.Ino, previous.Addr, reservedEnd, current.Ino, current.Addr))
		}
		logicalEnd := previous.Addr + record.HeaderSize(previous.Name) + previous.Size
		if logicalEnd > current.Addr {
			problems = append(problems, fmt.Sprintf(
				"record %d content ends at %d, inside record %d at address %d",
				previous.Ino, logicalEnd, current.Ino, current.Addr))
		}
	}

	return problems, nil
}

// walker performs a bounded depth-first traversal over child and
// sibling links, collecting record descriptions and structural
// problems. I/O errors stop the walk and are reported via err;
// corruption is recorded as a problem and prunes that branch only.
type walker struct {
	device   *blockdev.Device
	visited  map[uint64]struct{}
	records  []RecordInfo
	problems []string
	err      error
}

func (w *walker) walk(addr uint64) {
	if w.err != nil || addr == 0 {
		return
	}
	if _, seen := w.visited[addr]; seen {
		w.problems = append(w.problems, fmt.Sprintf("link cycle through address %d", addr))
		return
	}
	w.visited[addr] = struct{}{}

	header, err := NewNode(w.device, addr).Header()
	if err != nil {
		var corruption *record.CorruptionError
		if errors.As(err, &corruption) {
			w.problems = append(w.problems, corruption.Error())
			return
		}
		w.err = err
		return
	}

	w.records = append(w.records, RecordInfo{
		Addr:        addr,
		Ino:         header.Attr.Ino,
		Kind:        header.Attr.Kind.String(),
		Name:        header.Name,
		Size:        header.Attr.Size,
		Blocks:      header.Attr.Blocks,
		FirstChild:  header.FirstChild,
		NextSibling: header.NextSibling,
	})

	w.walk(header.FirstChild)
	w.walk(header.NextSibling)
}
