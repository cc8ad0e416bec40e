// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package blockdev

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// Device is an open handle to the backing medium. It is a thin wrapper
// around a file descriptor: no buffering, no caching, no position
// state. The zero value is not usable; obtain a Device with Open or
// Create.
//
// A Device is safe for concurrent ReadAt calls. WriteAt calls must be
// serialized by the caller (single writer), which the storage engine
// does by design.
type Device struct {
	fd   int
	path string
}

// Open opens path read-write. The path may be a regular image file or
// a raw block device.
func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening device %s: %w", path, err)
	}
	return &Device{fd: fd, path: path}, nil
}

// Create creates an image file at path with the given size, or opens
// it as-is if it already exists at exactly that size. An existing file
// of a different size is an error — delete it to resize.
func Create(path string, size int64) (*Device, error) {
	if size <= 0 {
		return nil, fmt.Errorf("image size must be positive, got %d", size)
	}

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating image %s: %w", path, err)
	}

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stating image: %w", err)
	}

	if stat.Size == 0 {
		if err := unix.Ftruncate(fd, size); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("truncating new image to %d bytes: %w", size, err)
		}
	} else if stat.Size != size {
		unix.Close(fd)
		return nil, fmt.Errorf("image %s is %d bytes but %d was requested; delete the file to resize",
			path, stat.Size, size)
	}

	return &Device{fd: fd, path: path}, nil
}

// Path returns the path the device was opened from.
func (d *Device) Path() string {
	return d.path
}

// Size returns the capacity of the medium in bytes. For a regular
// file this is its length; for a block device it is the device
// capacity reported by the BLKGETSIZE64 ioctl.
func (d *Device) Size() (int64, error) {
	var stat unix.Stat_t
	if err := unix.Fstat(d.fd, &stat); err != nil {
		return 0, fmt.Errorf("stating %s: %w", d.path, err)
	}

	if stat.Mode&unix.S_IFMT == unix.S_IFBLK {
		// int is 64-bit on every linux target this file builds for,
		// so the full BLKGETSIZE64 result fits.
		size, err := unix.IoctlGetInt(d.fd, unix.BLKGETSIZE64)
		if err != nil {
			return 0, fmt.Errorf("querying block device capacity of %s: %w", d.path, err)
		}
		return int64(size), nil
	}

	return stat.Size, nil
}

// ReadAt reads len(p) bytes starting at byte offset off. The read
// either fills p completely or fails: a transfer cut short by
// end-of-medium returns a wrapped io.ErrUnexpectedEOF.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	total := 0
	for len(p) > 0 {
		n, err := unix.Pread(d.fd, p, off)
		if n > 0 {
			total += n
			off += int64(n)
			p = p[n:]
		}
		if err != nil {
			return total, fmt.Errorf("pread %s at offset %d: %w", d.path, off, err)
		}
		if n == 0 {
			return total, fmt.Errorf("short read on %s at offset %d: %w", d.path, off, io.ErrUnexpectedEOF)
		}
	}
	return total, nil
}

// WriteAt writes len(p) bytes starting at byte offset off. The write
// either transfers completely or fails.
func (d *Device) WriteAt(p []byte, off int64) (int, error) {
	total := 0
	for len(p) > 0 {
		n, err := unix.Pwrite(d.fd, p, off)
		if n > 0 {
			total += n
			off += int64(n)
			p = p[n:]
		}
		if err != nil {
			return total, fmt.Errorf("pwrite %s at offset %d: %w", d.path, off, err)
		}
		if n == 0 {
			return total, fmt.Errorf("short write on %s at offset %d", d.path, off)
		}
	}
	return total, nil
}

// Sync flushes all prior writes to stable storage. It does not return
// until the kernel reports the data durable.
func (d *Device) Sync() error {
	if err := unix.Fsync(d.fd); err != nil {
		return fmt.Errorf("fsync %s: %w", d.path, err)
	}
	return nil
}

// Close releases the file descriptor. The Device must not be used
// afterwards.
func (d *Device) Close() error {
	if err := unix.Close(d.fd); err != nil {
		return fmt.Errorf("closing %s: %w", d.path, err)
	}
	return nil
}
