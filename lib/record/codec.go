// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"encoding/binary"
	"time"
)

// Format constants.
const (
	// Magic identifies an initialized chainfs image. It is the first
	// four bytes of the superblock.
	Magic uint32 = 0xAA559669

	// SuperblockSize is the encoded superblock: 4-byte magic +
	// 8-byte next inode counter + 8-byte next free address.
	SuperblockSize = 20

	// FixedPartSize is the fixed-width part of a node record:
	// 2 × 8-byte tree links, 3 × 8-byte counters (ino, size,
	// blocks), 4 × 12-byte timestamps, 4-byte kind, 2-byte
	// permission bits + 2 reserved bytes for alignment, and
	// 5 × 4-byte ids/flags.
	FixedPartSize = 116

	// nameLengthSize is the 8-byte length prefix of the record name.
	nameLengthSize = 8

	// HeaderPrefixSize is the portion of a record with a size known
	// before decoding: the fixed part plus the name length prefix.
	// Reading this many bytes is always enough to learn the full
	// header size.
	HeaderPrefixSize = FixedPartSize + nameLengthSize

	// MaxNameLength bounds the name length prefix. Anything larger
	// is treated as corruption rather than an allocation request.
	MaxNameLength = 4095
)

// Superblock is the fixed record at address 0: the format marker and
// the allocator's bookkeeping. NextFree is always BlockSize-aligned;
// NextIno starts at 1 and is never reused.
type Superblock struct {
	Magic    uint32
	NextIno  uint64
	NextFree uint64
}

// Valid reports whether the format marker matches.
func (sb Superblock) Valid() bool {
	return sb.Magic == Magic
}

// Encode returns the SuperblockSize-byte encoding of sb.
func (sb Superblock) Encode() []byte {
	buffer := make([]byte, SuperblockSize)
	binary.LittleEndian.PutUint32(buffer[0:], sb.Magic)
	binary.LittleEndian.PutUint64(buffer[4:], sb.NextIno)
	binary.LittleEndian.PutUint64(buffer[12:], sb.NextFree)
	return buffer
}

// DecodeSuperblock decodes the superblock from b. It checks only the
// buffer length; format validation against Magic is the caller's
// decision (an invalid marker means "reinitialize", not "fail").
func DecodeSuperblock(b []byte) (Superblock, error) {
	if len(b) < SuperblockSize {
		return Superblock{}, corrupt(0, "superblock truncated: %d bytes, need %d", len(b), SuperblockSize)
	}
	return Superblock{
		Magic:    binary.LittleEndian.Uint32(b[0:]),
		NextIno:  binary.LittleEndian.Uint64(b[4:]),
		NextFree: binary.LittleEndian.Uint64(b[12:]),
	}, nil
}

// Header is the decoded metadata of one node record: the tree links,
// the attributes, and the name. Content bytes, if any, follow the
// encoded header on disk.
type Header struct {
	// FirstChild is the address of this record's first child, or 0
	// for none. Only meaningful for directories.
	FirstChild uint64

	// NextSibling is the address of the next record sharing the same
	// parent, or 0 at the end of the chain.
	NextSibling uint64

	Attr Attributes

	// Name is the entry name within the parent directory. The root
	// record has an empty name.
	Name string
}

// HeaderSize returns the encoded size of a header with the given name.
// It performs no I/O; the node layer uses it to compute content
// offsets.
func HeaderSize(name string) uint64 {
	return HeaderPrefixSize + uint64(len(name))
}

// EncodedSize returns the encoded size of h.
func (h *Header) EncodedSize() uint64 {
	return HeaderSize(h.Name)
}

// Encode returns the full on-disk encoding of h.
func (h *Header) Encode() []byte {
	buffer := make([]byte, h.EncodedSize())
	binary.LittleEndian.PutUint64(buffer[0:], h.FirstChild)
	binary.LittleEndian.PutUint64(buffer[8:], h.NextSibling)
	binary.LittleEndian.PutUint64(buffer[16:], h.Attr.Ino)
	binary.LittleEndian.PutUint64(buffer[24:], h.Attr.Size)
	binary.LittleEndian.PutUint64(buffer[32:], h.Attr.Blocks)
	putTimestamp(buffer[40:], h.Attr.Atime)
	putTimestamp(buffer[52:], h.Attr.Mtime)
	putTimestamp(buffer[64:], h.Attr.Ctime)
	putTimestamp(buffer[76:], h.Attr.Crtime)
	binary.LittleEndian.PutUint32(buffer[88:], uint32(h.Attr.Kind))
	binary.LittleEndian.PutUint16(buffer[92:], h.Attr.Perm)
	// Bytes 94–95 are reserved for alignment and stay zero.
	binary.LittleEndian.PutUint32(buffer[96:], h.Attr.Nlink)
	binary.LittleEndian.PutUint32(buffer[100:], h.Attr.UID)
	binary.LittleEndian.PutUint32(buffer[104:], h.Attr.GID)
	binary.LittleEndian.PutUint32(buffer[108:], h.Attr.Rdev)
	binary.LittleEndian.PutUint32(buffer[112:], h.Attr.Flags)
	binary.LittleEndian.PutUint64(buffer[FixedPartSize:], uint64(len(h.Name)))
	copy(buffer[HeaderPrefixSize:], h.Name)
	return buffer
}

// DecodeHeaderPrefix decodes the fixed part and the name length from
// the first HeaderPrefixSize bytes of a record at the given address.
// The returned header has an empty Name; nameLength tells the caller
// how many bytes follow the prefix. addr is used only for error
// reporting.
func DecodeHeaderPrefix(b []byte, addr uint64) (header *Header, nameLength uint64, err error) {
	if len(b) < HeaderPrefixSize {
		return nil, 0, corrupt(addr, "header truncated: %d bytes, need %d", len(b), HeaderPrefixSize)
	}

	h := &Header{
		FirstChild:  binary.LittleEndian.Uint64(b[0:]),
		NextSibling: binary.LittleEndian.Uint64(b[8:]),
		Attr: Attributes{
			Ino:    binary.LittleEndian.Uint64(b[16:]),
			Size:   binary.LittleEndian.Uint64(b[24:]),
			Blocks: binary.LittleEndian.Uint64(b[32:]),
			Atime:  getTimestamp(b[40:]),
			Mtime:  getTimestamp(b[52:]),
			Ctime:  getTimestamp(b[64:]),
			Crtime: getTimestamp(b[76:]),
			Kind:   Kind(binary.LittleEndian.Uint32(b[88:])),
			Perm:   binary.LittleEndian.Uint16(b[92:]),
			Nlink:  binary.LittleEndian.Uint32(b[96:]),
			UID:    binary.LittleEndian.Uint32(b[100:]),
			GID:    binary.LittleEndian.Uint32(b[104:]),
			Rdev:   binary.LittleEndian.Uint32(b[108:]),
			Flags:  binary.LittleEndian.Uint32(b[112:]),
		},
	}

	if !h.Attr.Kind.Valid() {
		return nil, 0, corrupt(addr, "unknown kind discriminant %d", uint32(h.Attr.Kind))
	}

	nameLength = binary.LittleEndian.Uint64(b[FixedPartSize:])
	if nameLength > MaxNameLength {
		return nil, 0, corrupt(addr, "name length %d exceeds maximum %d", nameLength, MaxNameLength)
	}

	return h, nameLength, nil
}

// DecodeHeader decodes a complete header (fixed part, name length,
// name) from b. The buffer may extend past the header; trailing bytes
// are ignored.
func DecodeHeader(b []byte, addr uint64) (*Header, error) {
	header, nameLength, err := DecodeHeaderPrefix(b, addr)
	if err != nil {
		return nil, err
	}
	if uint64(len(b)) < HeaderPrefixSize+nameLength {
		return nil, corrupt(addr, "name truncated: %d bytes after prefix, need %d",
			len(b)-HeaderPrefixSize, nameLength)
	}
	header.Name = string(b[HeaderPrefixSize : HeaderPrefixSize+nameLength])
	return header, nil
}

func putTimestamp(b []byte, t time.Time) {
	binary.LittleEndian.PutUint64(b[0:], uint64(t.Unix()))
	binary.LittleEndian.PutUint32(b[8:], uint32(t.Nanosecond()))
}

func getTimestamp(b []byte) time.Time {
	seconds := int64(binary.LittleEndian.Uint64(b[0:]))
	nanoseconds := int64(binary.LittleEndian.Uint32(b[8:]))
	return time.Unix(seconds, nanoseconds).UTC()
}
