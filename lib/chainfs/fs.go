// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chainfs

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/chainfs/lib/blockdev"
	"github.com/bureau-foundation/chainfs/lib/clock"
	"github.com/bureau-foundation/chainfs/lib/record"
)

// Options configures a filesystem instance.
type Options struct {
	// Device is the backing medium. Required. The FS takes exclusive
	// ownership: no other writer may touch the device while the FS
	// is live.
	Device *blockdev.Device

	// Clock supplies record timestamps. If nil, the real clock is
	// used.
	Clock clock.Clock

	// Logger receives diagnostic messages. If nil, a quiet stderr
	// logger is used.
	Logger *slog.Logger
}

// FS is the storage engine facade: the operations the host bridge
// calls. It owns the device and the allocator; Nodes borrow the
// device per operation and cache nothing.
//
// All operations serialize on one mutex. The on-disk structures have
// a single linear history; concurrent FUSE callbacks must not
// interleave partial header rewrites.
type FS struct {
	mu     sync.Mutex
	device *blockdev.Device
	alloc  *Allocator
	clock  clock.Clock
	logger *slog.Logger

	nextHandle uint64
	handles    map[uint64]uint64 // handle -> ino
}

// New creates a filesystem over the given device. Call Init before
// any other operation.
func New(options Options) (*FS, error) {
	if options.Device == nil {
		return nil, fmt.Errorf("device is required")
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}
	return &FS{
		device:     options.Device,
		clock:      options.Clock,
		logger:     options.Logger,
		nextHandle: 1,
		handles:    make(map[uint64]uint64),
	}, nil
}

// Init loads the superblock, or formats the image if the superblock
// is absent or corrupt. Reformatting is deliberate, destructive
// recovery: an image this engine cannot decode is treated as empty.
// I/O errors are surfaced, not recovered from.
func (fs *FS) Init() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	alloc, err := Load(fs.device)
	if err == nil {
		fs.alloc = alloc
		sb := alloc.Superblock()
		fs.logger.Info("filesystem loaded",
			"device", fs.device.Path(),
			"next_ino", sb.NextIno,
			"next_free", sb.NextFree,
		)
		return nil
	}

	var corruption *record.CorruptionError
	if !errors.As(err, &corruption) {
		return fmt.Errorf("loading superblock: %w", err)
	}

	fs.logger.Warn("superblock invalid, formatting image",
		"device", fs.device.Path(),
		"reason", corruption.Reason,
	)
	alloc, err = Format(fs.device, fs.clock)
	if err != nil {
		return fmt.Errorf("formatting image: %w", err)
	}
	fs.alloc = alloc
	return nil
}

func (fs *FS) root() Node {
	return NewNode(fs.device, RootAddr)
}

// Lookup resolves name under the directory with inode parentIno.
func (fs *FS) Lookup(parentIno uint64, name string) (record.Attributes, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, err := FindByIno(fs.root(), parentIno)
	if err != nil {
		return record.Attributes{}, err
	}
	node, err := FindByName(*parent, name)
	if err != nil {
		return record.Attributes{}, err
	}
	header, err := node.Header()
	if err != nil {
		return record.Attributes{}, err
	}
	return header.Attr, nil
}

// GetAttr returns the attributes of the record with the given inode.
func (fs *FS) GetAttr(ino uint64) (record.Attributes, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	node, err := FindByIno(fs.root(), ino)
	if err != nil {
		return record.Attributes{}, err
	}
	header, err := node.Header()
	if err != nil {
		return record.Attributes{}, err
	}
	return header.Attr, nil
}

// DirEntry is one row of a directory listing. Offset is the
// resumption cookie for the entry after this one.
type DirEntry struct {
	Ino    uint64
	Offset uint64
	Kind   record.Kind
	Name   string
}

// ListChildren lists the directory with the given inode, starting at
// the entry index startOffset. Fails with ErrNotADirectory for
// non-directory records.
func (fs *FS) ListChildren(ino uint64, startOffset uint64) ([]DirEntry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	node, err := FindByIno(fs.root(), ino)
	if err != nil {
		return nil, err
	}
	header, err := node.Header()
	if err != nil {
		return nil, err
	}
	if header.Attr.Kind != record.KindDirectory {
		return nil, ErrNotADirectory
	}

	children, err := node.Children()
	if err != nil {
		return nil, err
	}

	var entries []DirEntry
	var index uint64
	for {
		child, err := children.Next()
		if err != nil {
			return nil, err
		}
		if child == nil {
			return entries, nil
		}
		index++
		if index <= startOffset {
			continue
		}
		childHeader, err := child.Header()
		if err != nil {
			return nil, err
		}
		entries = append(entries, DirEntry{
			Ino:    childHeader.Attr.Ino,
			Offset: index,
			Kind:   childHeader.Attr.Kind,
			Name:   childHeader.Name,
		})
	}
}

// Create makes a new record named name under the directory with inode
// parentIno and returns an open handle plus the new attributes. The
// name must not already exist among the parent's children.
//
// Write ordering: the allocator persists its counters first, then the
// new record reaches the device and is synced, and only then is the
// parent chain spliced. A crash mid-create leaks an ino and an
// extent; it never leaves a reachable half-written record.
func (fs *FS) Create(parentIno uint64, name string, kind record.Kind) (uint64, record.Attributes, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !kind.Valid() {
		return 0, record.Attributes{}, fmt.Errorf("invalid record kind %d", kind)
	}
	if name == "" || len(name) > record.MaxNameLength {
		return 0, record.Attributes{}, fmt.Errorf("invalid name %q", name)
	}

	parent, err := FindByIno(fs.root(), parentIno)
	if err != nil {
		return 0, record.Attributes{}, err
	}
	parentHeader, err := parent.Header()
	if err != nil {
		return 0, record.Attributes{}, err
	}
	if parentHeader.Attr.Kind != record.KindDirectory {
		return 0, record.Attributes{}, ErrNotADirectory
	}

	if _, err := FindByName(*parent, name); err == nil {
		return 0, record.Attributes{}, ErrExists
	} else if !errors.Is(err, ErrNotFound) {
		return 0, record.Attributes{}, err
	}

	ino, err := fs.alloc.NextIno()
	if err != nil {
		return 0, record.Attributes{}, err
	}
	recordSize := record.HeaderSize(name)
	addr, err := fs.alloc.Reserve(recordSize)
	if err != nil {
		return 0, record.Attributes{}, err
	}

	now := fs.clock.Now()
	header := &record.Header{
		Attr: record.Attributes{
			Ino:    ino,
			Blocks: record.AlignUp(recordSize) / record.BlockSize,
			Atime:  now,
			Mtime:  now,
			Ctime:  now,
			Crtime: now,
			Kind:   kind,
			Perm:   0o777,
			Nlink:  1,
		},
		Name: name,
	}

	node := NewNode(fs.device, addr)
	if err := node.SetHeader(header); err != nil {
		return 0, record.Attributes{}, err
	}
	if err := fs.device.Sync(); err != nil {
		return 0, record.Attributes{}, err
	}
	if err := AppendChild(*parent, addr); err != nil {
		return 0, record.Attributes{}, err
	}

	fs.logger.Debug("created record",
		"ino", ino, "name", name, "kind", kind.String(), "addr", addr,
	)
	return fs.openHandle(ino), header.Attr, nil
}

// Open returns a handle for the record with the given inode.
func (fs *FS) Open(ino uint64) (uint64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, err := FindByIno(fs.root(), ino); err != nil {
		return 0, err
	}
	return fs.openHandle(ino), nil
}

// OpenDir returns a handle for the directory with the given inode.
func (fs *FS) OpenDir(ino uint64) (uint64, error) {
	return fs.Open(ino)
}

// Read reads up to length bytes of content at the given offset
// through an open handle. Reads are clamped to the record's logical
// size: a read at or past end of file returns an empty slice.
func (fs *FS) Read(handle uint64, off uint64, length uint64) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	node, header, err := fs.handleNode(handle)
	if err != nil {
		return nil, err
	}
	if header.Attr.Kind == record.KindDirectory {
		return nil, ErrIsDirectory
	}

	if off >= header.Attr.Size {
		return nil, nil
	}
	if remaining := header.Attr.Size - off; length > remaining {
		length = remaining
	}

	buffer := make([]byte, length)
	if err := node.ReadContent(off, buffer); err != nil {
		return nil, err
	}
	return buffer, nil
}

// Write writes data at the given content offset through an open
// handle and returns the number of bytes written. If the write does
// not fit the record's reserved blocks, the record is relocated to a
// fresh extent first; the old extent is orphaned, never reused.
func (fs *FS) Write(handle uint64, off uint64, data []byte) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino, ok := fs.handles[handle]
	if !ok {
		return 0, ErrBadHandle
	}

	node, parent, err := findWithParent(fs.root(), ino)
	if err != nil {
		return 0, err
	}
	header, err := node.Header()
	if err != nil {
		return 0, err
	}
	if header.Attr.Kind == record.KindDirectory {
		return 0, ErrIsDirectory
	}

	err = node.WriteContent(off, data)
	if errors.Is(err, ErrNoCapacity) {
		if err := fs.grow(*node, parent, header, off, data); err != nil {
			return 0, err
		}
		return len(data), nil
	}
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// grow relocates a record whose content has outgrown its reserved
// blocks: reserve a fresh extent sized for the grown content, write
// the full record there (header, surviving content, new data), sync,
// and rewrite the one pointer in the parent chain that targets the
// old address. The old extent stays behind, orphaned — the allocator
// never reclaims.
func (fs *FS) grow(node Node, parent *Node, header *record.Header, off uint64, data []byte) error {
	if parent == nil {
		// Only the root has no parent, and the root is a directory;
		// directory records never carry content.
		return fmt.Errorf("relocating record at %d: record has no parent", node.addr)
	}

	oldSize := header.Attr.Size
	newSize := oldSize
	if end := off + uint64(len(data)); end > newSize {
		newSize = end
	}

	recordSize := header.EncodedSize() + newSize
	newAddr, err := fs.alloc.Reserve(recordSize)
	if err != nil {
		return err
	}

	content := make([]byte, newSize)
	if oldSize > 0 {
		if err := node.ReadContent(0, content[:oldSize]); err != nil {
			return err
		}
	}
	copy(content[off:], data)

	newHeader := *header
	newHeader.Attr.Size = newSize
	newHeader.Attr.Blocks = record.AlignUp(recordSize) / record.BlockSize

	newNode := NewNode(fs.device, newAddr)
	if err := newNode.SetHeader(&newHeader); err != nil {
		return err
	}
	if err := newNode.WriteContent(0, content); err != nil {
		return err
	}
	if err := fs.device.Sync(); err != nil {
		return err
	}
	if err := relink(*parent, node.addr, newAddr); err != nil {
		return err
	}

	fs.logger.Debug("relocated record for growth",
		"ino", header.Attr.Ino,
		"old_addr", node.addr,
		"new_addr", newAddr,
		"old_size", oldSize,
		"new_size", newSize,
	)
	return nil
}

// SetAttr applies the mutable attribute changes the host can request:
// content truncation and explicit timestamps. Nil arguments leave the
// corresponding attribute untouched. Returns the attributes after the
// change.
//
// Shrinking truncation only lowers the logical size; the orphaned
// bytes stay on the medium. Extending truncation zero-fills, growing
// the record through relocation if the zeros do not fit in place.
func (fs *FS) SetAttr(ino uint64, size *uint64, atime, mtime *time.Time) (record.Attributes, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	node, parent, err := findWithParent(fs.root(), ino)
	if err != nil {
		return record.Attributes{}, err
	}
	header, err := node.Header()
	if err != nil {
		return record.Attributes{}, err
	}

	if size != nil {
		if header.Attr.Kind == record.KindDirectory {
			return record.Attributes{}, ErrIsDirectory
		}
		switch {
		case *size < header.Attr.Size:
			// Shrink is a header rewrite; the final SetHeader below
			// persists it together with the timestamp update.
			header.Attr.Size = *size
		case *size > header.Attr.Size:
			zeros := make([]byte, *size-header.Attr.Size)
			err := node.WriteContent(header.Attr.Size, zeros)
			if errors.Is(err, ErrNoCapacity) {
				err = fs.grow(*node, parent, header, header.Attr.Size, zeros)
			}
			if err != nil {
				return record.Attributes{}, err
			}
			// The record may have moved; re-resolve before the
			// timestamp rewrite below.
			node, err = FindByIno(fs.root(), ino)
			if err != nil {
				return record.Attributes{}, err
			}
			header, err = node.Header()
			if err != nil {
				return record.Attributes{}, err
			}
		}
	}

	if atime != nil {
		header.Attr.Atime = *atime
	}
	if mtime != nil {
		header.Attr.Mtime = *mtime
	}
	if size != nil || atime != nil || mtime != nil {
		header.Attr.Ctime = fs.clock.Now()
		if err := node.SetHeader(header); err != nil {
			return record.Attributes{}, err
		}
	}
	return header.Attr, nil
}

// Flush forces all written data to stable storage.
func (fs *FS) Flush(handle uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.handles[handle]; !ok {
		return ErrBadHandle
	}
	return fs.device.Sync()
}

// Release closes an open handle.
func (fs *FS) Release(handle uint64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.handles[handle]; !ok {
		return ErrBadHandle
	}
	delete(fs.handles, handle)
	return nil
}

// Superblock returns a copy of the current allocator state.
func (fs *FS) Superblock() record.Superblock {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.alloc.Superblock()
}

func (fs *FS) openHandle(ino uint64) uint64 {
	handle := fs.nextHandle
	fs.nextHandle++
	fs.handles[handle] = ino
	return handle
}

func (fs *FS) handleNode(handle uint64) (*Node, *record.Header, error) {
	ino, ok := fs.handles[handle]
	if !ok {
		return nil, nil, ErrBadHandle
	}
	node, err := FindByIno(fs.root(), ino)
	if err != nil {
		return nil, nil, err
	}
	header, err := node.Header()
	if err != nil {
		return nil, nil, err
	}
	return node, header, nil
}
