// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chainfs

import (
	"fmt"

	"github.com/bureau-foundation/chainfs/lib/blockdev"
	"github.com/bureau-foundation/chainfs/lib/record"
)

// Node is one on-disk record addressed by its byte offset. It caches
// nothing: every accessor re-reads the record from the device and
// every mutation rewrites it in full, so the value observed is always
// the value last written by any holder of the same device.
type Node struct {
	device *blockdev.Device
	addr   uint64
}

// NewNode returns a Node for the record at addr. The record is not
// read; a Node for a bad address fails on first access.
func NewNode(device *blockdev.Device, addr uint64) Node {
	return Node{device: device, addr: addr}
}

// Addr returns the record's byte address.
func (n Node) Addr() uint64 {
	return n.addr
}

// Header reads and decodes the record's fixed part and name. Decode
// failures surface as *record.CorruptionError.
func (n Node) Header() (*record.Header, error) {
	prefix := make([]byte, record.HeaderPrefixSize)
	if _, err := n.device.ReadAt(prefix, int64(n.addr)); err != nil {
		return nil, fmt.Errorf("reading record at %d: %w", n.addr, err)
	}

	header, nameLength, err := record.DecodeHeaderPrefix(prefix, n.addr)
	if err != nil {
		return nil, err
	}

	if nameLength > 0 {
		name := make([]byte, nameLength)
		if _, err := n.device.ReadAt(name, int64(n.addr+record.HeaderPrefixSize)); err != nil {
			return nil, fmt.Errorf("reading record name at %d: %w", n.addr, err)
		}
		header.Name = string(name)
	}

	return header, nil
}

// SetHeader rewrites the fixed part and name in place. The record is
// not moved: a name longer than the one the record was allocated with
// belongs to a fresh allocation, not here (the FS layer handles that
// through relocation).
func (n Node) SetHeader(header *record.Header) error {
	if _, err := n.device.WriteAt(header.Encode(), int64(n.addr)); err != nil {
		return fmt.Errorf("rewriting record at %d: %w", n.addr, err)
	}
	return nil
}

// ContentOffset returns the byte address where the record's content
// begins, recomputed from the current on-disk header.
func (n Node) ContentOffset() (uint64, error) {
	header, err := n.Header()
	if err != nil {
		return 0, err
	}
	return n.addr + header.EncodedSize(), nil
}

// ReadContent fills p with bytes starting at content offset off.
// Ranges past the record's logical size read whatever physically
// follows on the medium — the caller clamps against size if it wants
// read-at-end-of-file semantics.
func (n Node) ReadContent(off uint64, p []byte) error {
	contentOffset, err := n.ContentOffset()
	if err != nil {
		return err
	}
	if _, err := n.device.ReadAt(p, int64(contentOffset+off)); err != nil {
		return fmt.Errorf("reading content of record at %d: %w", n.addr, err)
	}
	return nil
}

// WriteContent writes p at content offset off, then raises the
// record's logical size to cover the written range and rewrites the
// header. A write that would run past the record's reserved blocks
// fails with ErrNoCapacity before touching the medium; the bytes past
// the reservation belong to a different record.
func (n Node) WriteContent(off uint64, p []byte) error {
	header, err := n.Header()
	if err != nil {
		return err
	}

	capacity := header.Attr.Blocks * record.BlockSize
	end := header.EncodedSize() + off + uint64(len(p))
	if end > capacity {
		return fmt.Errorf("record at %d: %d bytes needed, %d reserved: %w",
			n.addr, end, capacity, ErrNoCapacity)
	}

	contentOffset := n.addr + header.EncodedSize()
	if _, err := n.device.WriteAt(p, int64(contentOffset+off)); err != nil {
		return fmt.Errorf("writing content of record at %d: %w", n.addr, err)
	}

	if written := off + uint64(len(p)); written > header.Attr.Size {
		header.Attr.Size = written
		if err := n.SetHeader(header); err != nil {
			return err
		}
	}
	return nil
}

// Children returns an iterator over the record's child chain, in
// insertion order.
func (n Node) Children() (*ChildIterator, error) {
	header, err := n.Header()
	if err != nil {
		return nil, err
	}
	return &ChildIterator{
		device:  n.device,
		next:    header.FirstChild,
		visited: make(map[uint64]struct{}),
	}, nil
}

// ChildIterator walks a first-child/next-sibling chain. It tracks
// visited addresses: a chain that revisits an address is a cycle in a
// damaged image and fails with a *record.CorruptionError instead of
// looping forever.
type ChildIterator struct {
	device  *blockdev.Device
	next    uint64
	visited map[uint64]struct{}
}

// Next returns the next child, or nil at the end of the chain.
func (it *ChildIterator) Next() (*Node, error) {
	if it.next == 0 {
		return nil, nil
	}

	addr := it.next
	if _, seen := it.visited[addr]; seen {
		return nil, &record.CorruptionError{Addr: addr, Reason: "sibling chain cycle"}
	}
	it.visited[addr] = struct{}{}

	node := NewNode(it.device, addr)
	header, err := node.Header()
	if err != nil {
		return nil, err
	}
	it.next = header.NextSibling
	return &node, nil
}

// Collect drains the iterator into a slice.
func (it *ChildIterator) Collect() ([]Node, error) {
	var nodes []Node
	for {
		node, err := it.Next()
		if err != nil {
			return nil, err
		}
		if node == nil {
			return nodes, nil
		}
		nodes = append(nodes, *node)
	}
}
