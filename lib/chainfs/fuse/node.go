// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"errors"
	"syscall"
	"time"

	"github.com/bureau-foundation/chainfs/lib/chainfs"
	"github.com/bureau-foundation/chainfs/lib/record"
	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// node bridges one engine record to the kernel. It holds only the
// inode number; every callback re-resolves the record through the
// engine, so a node never goes stale when a write relocates the
// record on disk.
type node struct {
	gofuse.Inode
	options *Options
	ino     uint64
}

var _ gofuse.InodeEmbedder = (*node)(nil)
var _ gofuse.NodeLookuper = (*node)(nil)
var _ gofuse.NodeGetattrer = (*node)(nil)
var _ gofuse.NodeReaddirer = (*node)(nil)
var _ gofuse.NodeCreater = (*node)(nil)
var _ gofuse.NodeMkdirer = (*node)(nil)
var _ gofuse.NodeSetattrer = (*node)(nil)
var _ gofuse.NodeOpener = (*node)(nil)
var _ gofuse.NodeReader = (*node)(nil)
var _ gofuse.NodeWriter = (*node)(nil)
var _ gofuse.NodeFsyncer = (*node)(nil)
var _ gofuse.NodeFlusher = (*node)(nil)
var _ gofuse.NodeReleaser = (*node)(nil)

// fileHandle carries an engine handle across open/read/write/release.
type fileHandle struct {
	id uint64
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	attr, err := n.options.FS.Lookup(n.ino, name)
	if err != nil {
		return nil, n.errno("lookup", err)
	}

	child := n.NewInode(ctx, &node{options: n.options, ino: attr.Ino}, gofuse.StableAttr{
		Mode: kindMode(attr.Kind),
		Ino:  attr.Ino,
	})
	fillAttr(&out.Attr, attr)
	return child, 0
}

func (n *node) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := n.options.FS.GetAttr(n.ino)
	if err != nil {
		return n.errno("getattr", err)
	}
	fillAttr(&out.Attr, attr)
	return 0
}

func (n *node) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	children, err := n.options.FS.ListChildren(n.ino, 0)
	if err != nil {
		return nil, n.errno("readdir", err)
	}

	entries := make([]fuse.DirEntry, 0, len(children))
	for _, child := range children {
		entries = append(entries, fuse.DirEntry{
			Name: child.Name,
			Ino:  child.Ino,
			Mode: kindMode(child.Kind),
		})
	}
	return &sliceDirStream{entries: entries}, 0
}

func (n *node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	handle, attr, err := n.options.FS.Create(n.ino, name, record.KindRegularFile)
	if err != nil {
		return nil, nil, 0, n.errno("create", err)
	}

	child := n.NewInode(ctx, &node{options: n.options, ino: attr.Ino}, gofuse.StableAttr{
		Mode: kindMode(attr.Kind),
		Ino:  attr.Ino,
	})
	fillAttr(&out.Attr, attr)
	return child, &fileHandle{id: handle}, fuse.FOPEN_DIRECT_IO, 0
}

func (n *node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	handle, attr, err := n.options.FS.Create(n.ino, name, record.KindDirectory)
	if err != nil {
		return nil, n.errno("mkdir", err)
	}
	// Mkdir hands back no handle; drop the one Create opened.
	if err := n.options.FS.Release(handle); err != nil {
		return nil, n.errno("mkdir", err)
	}

	child := n.NewInode(ctx, &node{options: n.options, ino: attr.Ino}, gofuse.StableAttr{
		Mode: kindMode(attr.Kind),
		Ino:  attr.Ino,
	})
	fillAttr(&out.Attr, attr)
	return child, 0
}

func (n *node) Setattr(ctx context.Context, f gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	var size *uint64
	if requested, ok := in.GetSize(); ok {
		size = &requested
	}
	var atime, mtime *time.Time
	if requested, ok := in.GetATime(); ok {
		atime = &requested
	}
	if requested, ok := in.GetMTime(); ok {
		mtime = &requested
	}

	// Mode and ownership changes are accepted and discarded: the
	// engine creates every record with fixed permissions.
	attr, err := n.options.FS.SetAttr(n.ino, size, atime, mtime)
	if err != nil {
		return n.errno("setattr", err)
	}
	fillAttr(&out.Attr, attr)
	return 0
}

func (n *node) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	handle, err := n.options.FS.Open(n.ino)
	if err != nil {
		return nil, 0, n.errno("open", err)
	}
	return &fileHandle{id: handle}, fuse.FOPEN_DIRECT_IO, 0
}

func (n *node) Read(ctx context.Context, f gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	handle, ok := f.(*fileHandle)
	if !ok {
		return nil, syscall.EBADF
	}

	data, err := n.options.FS.Read(handle.id, uint64(off), uint64(len(dest)))
	if err != nil {
		return nil, n.errno("read", err)
	}
	return fuse.ReadResultData(data), 0
}

func (n *node) Write(ctx context.Context, f gofuse.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	handle, ok := f.(*fileHandle)
	if !ok {
		return 0, syscall.EBADF
	}

	written, err := n.options.FS.Write(handle.id, uint64(off), data)
	if err != nil {
		return 0, n.errno("write", err)
	}
	return uint32(written), 0
}

func (n *node) Fsync(ctx context.Context, f gofuse.FileHandle, flags uint32) syscall.Errno {
	handle, ok := f.(*fileHandle)
	if !ok {
		return syscall.EBADF
	}
	if err := n.options.FS.Flush(handle.id); err != nil {
		return n.errno("fsync", err)
	}
	return 0
}

func (n *node) Flush(ctx context.Context, f gofuse.FileHandle) syscall.Errno {
	handle, ok := f.(*fileHandle)
	if !ok {
		return syscall.EBADF
	}
	if err := n.options.FS.Flush(handle.id); err != nil {
		return n.errno("flush", err)
	}
	return 0
}

func (n *node) Release(ctx context.Context, f gofuse.FileHandle) syscall.Errno {
	handle, ok := f.(*fileHandle)
	if !ok {
		return syscall.EBADF
	}
	if err := n.options.FS.Release(handle.id); err != nil {
		return n.errno("release", err)
	}
	return 0
}

// errno maps engine errors to errnos. Anything without a defined
// mapping is an engine or device failure and reports EIO after
// logging, so the cause is not lost behind the kernel boundary.
func (n *node) errno(op string, err error) syscall.Errno {
	switch {
	case errors.Is(err, chainfs.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, chainfs.ErrNotADirectory):
		return syscall.ENOTDIR
	case errors.Is(err, chainfs.ErrIsDirectory):
		return syscall.EISDIR
	case errors.Is(err, chainfs.ErrExists):
		return syscall.EEXIST
	case errors.Is(err, chainfs.ErrBadHandle):
		return syscall.EBADF
	case errors.Is(err, chainfs.ErrNoCapacity):
		return syscall.ENOSPC
	}
	n.options.Logger.Error("filesystem operation failed",
		"op", op, "ino", n.ino, "error", err,
	)
	return syscall.EIO
}

func kindMode(kind record.Kind) uint32 {
	switch kind {
	case record.KindDirectory:
		return syscall.S_IFDIR
	case record.KindSymlink:
		return syscall.S_IFLNK
	default:
		return syscall.S_IFREG
	}
}

func fillAttr(out *fuse.Attr, attr record.Attributes) {
	out.Ino = attr.Ino
	out.Size = attr.Size
	out.Blocks = attr.Blocks
	out.Mode = kindMode(attr.Kind) | uint32(attr.Perm)
	out.Nlink = attr.Nlink
	out.Owner = fuse.Owner{Uid: attr.UID, Gid: attr.GID}
	out.Rdev = attr.Rdev
	out.Blksize = record.BlockSize

	atime := attr.Atime
	mtime := attr.Mtime
	ctime := attr.Ctime
	out.SetTimes(&atime, &mtime, &ctime)
}

// sliceDirStream implements fs.DirStream from a slice of entries.
type sliceDirStream struct {
	entries []fuse.DirEntry
	index   int
}

func (s *sliceDirStream) HasNext() bool {
	return s.index < len(s.entries)
}

func (s *sliceDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if s.index >= len(s.entries) {
		return fuse.DirEntry{}, syscall.EINVAL
	}
	entry := s.entries[s.index]
	s.index++
	return entry, 0
}

func (s *sliceDirStream) Close() {}
