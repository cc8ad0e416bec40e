// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chainfs

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/chainfs/lib/blockdev"
	"github.com/bureau-foundation/chainfs/lib/clock"
	"github.com/bureau-foundation/chainfs/lib/record"
)

func testFS(t *testing.T) (*FS, *blockdev.Device) {
	t.Helper()
	device := testDevice(t)
	fs, err := New(Options{Device: device, Clock: clock.Fake(testStart)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := fs.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return fs, device
}

func TestInitFormatsEmptyImage(t *testing.T) {
	fs, _ := testFS(t)

	attr, err := fs.GetAttr(RootIno)
	if err != nil {
		t.Fatalf("GetAttr(root): %v", err)
	}
	if attr.Kind != record.KindDirectory {
		t.Errorf("root kind = %v, want directory", attr.Kind)
	}
	if attr.Size != 0 {
		t.Errorf("root size = %d, want 0", attr.Size)
	}
}

func TestInitResumesExistingImage(t *testing.T) {
	fs, device := testFS(t)

	_, attr, err := fs.Create(RootIno, "keep.txt", record.KindRegularFile)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// A second engine over the same device must resume, not
	// reformat.
	resumed, err := New(Options{Device: device, Clock: clock.Fake(testStart)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := resumed.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	found, err := resumed.Lookup(RootIno, "keep.txt")
	if err != nil {
		t.Fatalf("Lookup after resume: %v", err)
	}
	if found.Ino != attr.Ino {
		t.Errorf("resumed ino = %d, want %d", found.Ino, attr.Ino)
	}
}

func TestInitReformatsCorruptSuperblock(t *testing.T) {
	fs, device := testFS(t)

	if _, _, err := fs.Create(RootIno, "doomed.txt", record.KindRegularFile); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Stomp the magic. Recovery policy is deliberate destruction:
	// the image comes back empty.
	if _, err := device.WriteAt([]byte{0, 0, 0, 0}, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	reinit, err := New(Options{Device: device, Clock: clock.Fake(testStart)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := reinit.Init(); err != nil {
		t.Fatalf("Init on corrupt image: %v", err)
	}

	if _, err := reinit.Lookup(RootIno, "doomed.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup after reformat: err = %v, want ErrNotFound", err)
	}
	entries, err := reinit.ListChildren(RootIno, 0)
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("reformatted root has %d entries, want 0", len(entries))
	}
}

func TestCreateAndLookup(t *testing.T) {
	fs, _ := testFS(t)

	_, created, err := fs.Create(RootIno, "dir1", record.KindDirectory)
	if err != nil {
		t.Fatalf("Create(dir1): %v", err)
	}
	if created.Ino != 2 {
		t.Errorf("first created ino = %d, want 2", created.Ino)
	}
	if created.Kind != record.KindDirectory {
		t.Errorf("kind = %v, want directory", created.Kind)
	}
	if !created.Crtime.Equal(testStart) {
		t.Errorf("crtime = %v, want %v", created.Crtime, testStart)
	}

	found, err := fs.Lookup(RootIno, "dir1")
	if err != nil {
		t.Fatalf("Lookup(dir1): %v", err)
	}
	if found.Ino != created.Ino {
		t.Errorf("Lookup ino = %d, want %d", found.Ino, created.Ino)
	}

	if _, err := fs.Lookup(RootIno, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup(missing): err = %v, want ErrNotFound", err)
	}
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	fs, _ := testFS(t)

	if _, _, err := fs.Create(RootIno, "f.txt", record.KindRegularFile); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, _, err := fs.Create(RootIno, "f.txt", record.KindRegularFile)
	if !errors.Is(err, ErrExists) {
		t.Errorf("duplicate Create: err = %v, want ErrExists", err)
	}
}

func TestCreateErrors(t *testing.T) {
	fs, _ := testFS(t)

	if _, _, err := fs.Create(777, "x", record.KindRegularFile); !errors.Is(err, ErrNotFound) {
		t.Errorf("Create under missing parent: err = %v, want ErrNotFound", err)
	}

	_, file, err := fs.Create(RootIno, "plain.txt", record.KindRegularFile)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, _, err := fs.Create(file.Ino, "x", record.KindRegularFile); !errors.Is(err, ErrNotADirectory) {
		t.Errorf("Create under file: err = %v, want ErrNotADirectory", err)
	}
}

func TestWriteReadRoundtrip(t *testing.T) {
	fs, _ := testFS(t)

	handle, _, err := fs.Create(RootIno, "hello.txt", record.KindRegularFile)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	payload := []byte{0x68, 0x65, 0x6C, 0x6C, 0x6F}
	n, err := fs.Write(handle, 0, payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 5 {
		t.Errorf("Write = %d bytes, want 5", n)
	}

	got, err := fs.Read(handle, 0, 5)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Read = %q, want %q", got, payload)
	}

	attr, err := fs.Lookup(RootIno, "hello.txt")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if attr.Size != 5 {
		t.Errorf("size = %d, want 5", attr.Size)
	}
}

func TestReadClampsAtEndOfFile(t *testing.T) {
	fs, _ := testFS(t)

	handle, _, err := fs.Create(RootIno, "short.txt", record.KindRegularFile)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := fs.Write(handle, 0, []byte("abc")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := fs.Read(handle, 0, 100)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "abc" {
		t.Errorf("Read = %q, want %q", got, "abc")
	}

	got, err = fs.Read(handle, 3, 10)
	if err != nil {
		t.Fatalf("Read at EOF: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Read at EOF = %d bytes, want 0", len(got))
	}
}

func TestWriteGrowthRelocatesRecord(t *testing.T) {
	fs, device := testFS(t)

	// Surround the file with siblings so relocation has pointers to
	// maintain and a neighbouring record to endanger.
	if _, _, err := fs.Create(RootIno, "before", record.KindRegularFile); err != nil {
		t.Fatalf("Create: %v", err)
	}
	handle, attr, err := fs.Create(RootIno, "grow.txt", record.KindRegularFile)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	afterHandle, afterAttr, err := fs.Create(RootIno, "after", record.KindRegularFile)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := fs.Write(afterHandle, 0, []byte("untouched")); err != nil {
		t.Fatalf("Write(after): %v", err)
	}

	// A fresh record reserves a single block; 4 KiB cannot fit in
	// place and must relocate.
	big := bytes.Repeat([]byte("0123456789abcdef"), 256)
	if _, err := fs.Write(handle, 0, big); err != nil {
		t.Fatalf("growing Write: %v", err)
	}

	got, err := fs.Read(handle, 0, uint64(len(big)))
	if err != nil {
		t.Fatalf("Read after growth: %v", err)
	}
	if !bytes.Equal(got, big) {
		t.Error("content mismatch after relocation")
	}

	grown, err := fs.GetAttr(attr.Ino)
	if err != nil {
		t.Fatalf("GetAttr: %v", err)
	}
	if grown.Size != uint64(len(big)) {
		t.Errorf("size = %d, want %d", grown.Size, len(big))
	}
	if grown.Ino != attr.Ino {
		t.Errorf("ino changed across relocation: %d -> %d", attr.Ino, grown.Ino)
	}

	// Sibling order survives, and the neighbour's content is intact.
	entries, err := fs.ListChildren(RootIno, 0)
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name
	}
	want := []string{"before", "grow.txt", "after"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("children = %v, want %v", names, want)
		}
	}

	afterContent, err := fs.Read(afterHandle, 0, 9)
	if err != nil {
		t.Fatalf("Read(after): %v", err)
	}
	if string(afterContent) != "untouched" {
		t.Errorf("neighbour content = %q, want %q", afterContent, "untouched")
	}
	neighbour, err := fs.Lookup(RootIno, "after")
	if err != nil {
		t.Fatalf("Lookup(after): %v", err)
	}
	if neighbour.Ino != afterAttr.Ino {
		t.Errorf("neighbour ino = %d after relocation, want %d", neighbour.Ino, afterAttr.Ino)
	}

	// The relocated record is structurally sound.
	problems, err := VerifyImage(device)
	if err != nil {
		t.Fatalf("VerifyImage: %v", err)
	}
	if len(problems) != 0 {
		t.Errorf("VerifyImage reported problems after relocation: %v", problems)
	}

	// Growing an already-relocated record works too.
	bigger := bytes.Repeat([]byte("YZ"), 4096)
	if _, err := fs.Write(handle, 0, bigger); err != nil {
		t.Fatalf("second growing Write: %v", err)
	}
	got, err = fs.Read(handle, 0, uint64(len(bigger)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, bigger) {
		t.Error("content mismatch after second relocation")
	}
}

func TestWriteSparseOffset(t *testing.T) {
	fs, _ := testFS(t)

	handle, _, err := fs.Create(RootIno, "sparse", record.KindRegularFile)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Write at a non-zero offset; size covers the written range.
	if _, err := fs.Write(handle, 1000, []byte("tail")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	attr, err := fs.Lookup(RootIno, "sparse")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if attr.Size != 1004 {
		t.Errorf("size = %d, want 1004", attr.Size)
	}
	got, err := fs.Read(handle, 1000, 4)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "tail" {
		t.Errorf("Read = %q, want %q", got, "tail")
	}
}

func TestSetAttrTruncate(t *testing.T) {
	fs, _ := testFS(t)

	handle, attr, err := fs.Create(RootIno, "trunc", record.KindRegularFile)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := fs.Write(handle, 0, []byte("0123456789")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Shrink: logical size drops, surviving prefix is intact.
	shrunk := uint64(4)
	after, err := fs.SetAttr(attr.Ino, &shrunk, nil, nil)
	if err != nil {
		t.Fatalf("SetAttr shrink: %v", err)
	}
	if after.Size != 4 {
		t.Errorf("size after shrink = %d, want 4", after.Size)
	}
	got, err := fs.Read(handle, 0, 100)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "0123" {
		t.Errorf("Read after shrink = %q, want %q", got, "0123")
	}

	// Extend past the reserved block: zero-filled, relocated.
	extended := uint64(4096)
	after, err = fs.SetAttr(attr.Ino, &extended, nil, nil)
	if err != nil {
		t.Fatalf("SetAttr extend: %v", err)
	}
	if after.Size != 4096 {
		t.Errorf("size after extend = %d, want 4096", after.Size)
	}
	got, err = fs.Read(handle, 0, 8)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte{'0', '1', '2', '3', 0, 0, 0, 0}) {
		t.Errorf("Read after extend = %x, want prefix then zeros", got)
	}
}

func TestSetAttrTimestamps(t *testing.T) {
	fs, _ := testFS(t)

	_, attr, err := fs.Create(RootIno, "stamped", record.KindRegularFile)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	newTime := testStart.Add(time.Hour)
	after, err := fs.SetAttr(attr.Ino, nil, &newTime, &newTime)
	if err != nil {
		t.Fatalf("SetAttr: %v", err)
	}
	if !after.Atime.Equal(newTime) || !after.Mtime.Equal(newTime) {
		t.Errorf("times = (%v, %v), want %v", after.Atime, after.Mtime, newTime)
	}
	if !after.Crtime.Equal(testStart) {
		t.Errorf("crtime = %v, want unchanged %v", after.Crtime, testStart)
	}
}

func TestSetAttrTruncateDirectoryFails(t *testing.T) {
	fs, _ := testFS(t)

	_, attr, err := fs.Create(RootIno, "d", record.KindDirectory)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	size := uint64(0)
	if _, err := fs.SetAttr(attr.Ino, &size, nil, nil); !errors.Is(err, ErrIsDirectory) {
		t.Errorf("SetAttr size on directory: err = %v, want ErrIsDirectory", err)
	}
}

func TestListChildrenScenario(t *testing.T) {
	fs, _ := testFS(t)

	_, dir1, err := fs.Create(RootIno, "dir1", record.KindDirectory)
	if err != nil {
		t.Fatalf("Create(dir1): %v", err)
	}
	if _, _, err := fs.Create(RootIno, "dir2", record.KindDirectory); err != nil {
		t.Fatalf("Create(dir2): %v", err)
	}
	if _, _, err := fs.Create(dir1.Ino, "file1.txt", record.KindRegularFile); err != nil {
		t.Fatalf("Create(file1.txt): %v", err)
	}

	rootEntries, err := fs.ListChildren(RootIno, 0)
	if err != nil {
		t.Fatalf("ListChildren(root): %v", err)
	}
	if len(rootEntries) != 2 || rootEntries[0].Name != "dir1" || rootEntries[1].Name != "dir2" {
		t.Errorf("root entries = %+v, want dir1, dir2", rootEntries)
	}

	dirEntries, err := fs.ListChildren(dir1.Ino, 0)
	if err != nil {
		t.Fatalf("ListChildren(dir1): %v", err)
	}
	if len(dirEntries) != 1 || dirEntries[0].Name != "file1.txt" {
		t.Errorf("dir1 entries = %+v, want file1.txt", dirEntries)
	}
	if dirEntries[0].Kind != record.KindRegularFile {
		t.Errorf("file1.txt kind = %v, want regular file", dirEntries[0].Kind)
	}

	// Offset resumption: listing from offset 1 skips dir1.
	resumed, err := fs.ListChildren(RootIno, 1)
	if err != nil {
		t.Fatalf("ListChildren(root, 1): %v", err)
	}
	if len(resumed) != 1 || resumed[0].Name != "dir2" {
		t.Errorf("resumed entries = %+v, want dir2 only", resumed)
	}

	if _, err := fs.ListChildren(dirEntries[0].Ino, 0); !errors.Is(err, ErrNotADirectory) {
		t.Errorf("ListChildren(file): err = %v, want ErrNotADirectory", err)
	}
}

func TestHandleLifecycle(t *testing.T) {
	fs, _ := testFS(t)

	_, attr, err := fs.Create(RootIno, "f", record.KindRegularFile)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	handle, err := fs.Open(attr.Ino)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := fs.Flush(handle); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := fs.Release(handle); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if err := fs.Release(handle); !errors.Is(err, ErrBadHandle) {
		t.Errorf("double Release: err = %v, want ErrBadHandle", err)
	}
	if _, err := fs.Read(handle, 0, 1); !errors.Is(err, ErrBadHandle) {
		t.Errorf("Read after Release: err = %v, want ErrBadHandle", err)
	}

	if _, err := fs.Open(12345); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open(missing): err = %v, want ErrNotFound", err)
	}
}

func TestWriteToDirectoryFails(t *testing.T) {
	fs, _ := testFS(t)

	handle, _, err := fs.Create(RootIno, "d", record.KindDirectory)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := fs.Write(handle, 0, []byte("x")); !errors.Is(err, ErrIsDirectory) {
		t.Errorf("Write to directory: err = %v, want ErrIsDirectory", err)
	}
	if _, err := fs.Read(handle, 0, 1); !errors.Is(err, ErrIsDirectory) {
		t.Errorf("Read from directory: err = %v, want ErrIsDirectory", err)
	}
}
