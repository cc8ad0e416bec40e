// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chainfs implements the storage engine: a persistent
// filesystem laid out as a forward-growing log of records on a flat
// block device or image file.
//
// The superblock at address 0 holds the format marker and the bump
// allocator's counters (next inode, next free address). The root
// directory sits at the first block boundary after it. Every other
// record is appended at a 512-byte boundary issued by the allocator,
// and the namespace is encoded in the records themselves: each
// directory points at its first child, each record points at its next
// sibling, and address 0 terminates a chain. There is no free-space
// index and nothing is ever reclaimed.
//
// Records are uncached. Every attribute read re-reads the device and
// every mutation rewrites the record header in full, so any two Nodes
// over the same device always observe each other's writes. All FS
// operations serialize on a single mutex; the engine assumes it is
// the only writer of the medium.
//
// # Write ordering
//
// Mutations follow one durability contract: allocator counters are
// persisted (written and synced) before the record they cover is
// written; the record is synced before the link that makes it
// reachable is spliced in. A crash therefore leaks at most the
// just-issued inode and extent — the reachable tree, walked from the
// root, never contains a half-written record.
//
// # Growth
//
// A record's capacity is fixed at creation: Blocks × 512 bytes from
// its address. Content growth past the capacity does not overwrite
// the neighbouring record; the engine relocates the record to a fresh
// extent, copies the content forward, and rewires the single parent
// or sibling pointer that targeted the old address. The old extent is
// orphaned permanently, consistent with the no-reclamation design.
package chainfs
