// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chainfs

import (
	"fmt"

	"github.com/bureau-foundation/chainfs/lib/record"
)

// FindByIno searches the tree rooted at root depth-first for the
// record with the given inode number: the current record first, then
// each child in sibling order. Only directories are descended into.
// Returns ErrNotFound if no record matches.
func FindByIno(root Node, ino uint64) (*Node, error) {
	node, _, err := findWithParent(root, ino)
	return node, err
}

// findWithParent is FindByIno but also reports which directory's
// chain the match was found in (nil for the root itself). The FS
// layer needs the parent when relocating a grown record, since the
// pointer to rewrite lives in the parent's chain.
func findWithParent(root Node, ino uint64) (*Node, *Node, error) {
	visited := make(map[uint64]struct{})
	node, parent, err := findFrom(root, nil, ino, visited)
	if err != nil {
		return nil, nil, err
	}
	if node == nil {
		return nil, nil, ErrNotFound
	}
	return node, parent, nil
}

func findFrom(current Node, parent *Node, ino uint64, visited map[uint64]struct{}) (*Node, *Node, error) {
	if _, seen := visited[current.addr]; seen {
		return nil, nil, &record.CorruptionError{Addr: current.addr, Reason: "tree cycle"}
	}
	visited[current.addr] = struct{}{}

	header, err := current.Header()
	if err != nil {
		return nil, nil, err
	}

	if header.Attr.Ino == ino {
		return &current, parent, nil
	}
	if header.Attr.Kind != record.KindDirectory {
		return nil, nil, nil
	}

	children, err := current.Children()
	if err != nil {
		return nil, nil, err
	}
	for {
		child, err := children.Next()
		if err != nil {
			return nil, nil, err
		}
		if child == nil {
			return nil, nil, nil
		}
		found, foundParent, err := findFrom(*child, &current, ino, visited)
		if err != nil || found != nil {
			return found, foundParent, err
		}
	}
}

// FindByName scans parent's children for an exact byte-equal name.
// The scan runs in insertion order and the first match wins. Returns
// ErrNotFound if no child matches.
func FindByName(parent Node, name string) (*Node, error) {
	children, err := parent.Children()
	if err != nil {
		return nil, err
	}
	for {
		child, err := children.Next()
		if err != nil {
			return nil, err
		}
		if child == nil {
			return nil, ErrNotFound
		}
		header, err := child.Header()
		if err != nil {
			return nil, err
		}
		if header.Name == name {
			return child, nil
		}
	}
}

// AppendChild splices the record at childAddr onto the end of
// parent's chain: either as the first child or as the next sibling of
// the current last child. The record at childAddr must already be
// fully written.
func AppendChild(parent Node, childAddr uint64) error {
	header, err := parent.Header()
	if err != nil {
		return err
	}

	if header.FirstChild == 0 {
		header.FirstChild = childAddr
		return parent.SetHeader(header)
	}

	children, err := parent.Children()
	if err != nil {
		return err
	}
	var last *Node
	for {
		child, err := children.Next()
		if err != nil {
			return err
		}
		if child == nil {
			break
		}
		last = child
	}

	lastHeader, err := last.Header()
	if err != nil {
		return err
	}
	lastHeader.NextSibling = childAddr
	return last.SetHeader(lastHeader)
}

// relink rewrites the single pointer in parent's chain that targets
// oldAddr so it targets newAddr instead: either parent's first-child
// link or the next-sibling link of the record just before oldAddr.
// Used when a record is relocated for growth; the old record is left
// in place, orphaned.
func relink(parent Node, oldAddr, newAddr uint64) error {
	header, err := parent.Header()
	if err != nil {
		return err
	}

	if header.FirstChild == oldAddr {
		header.FirstChild = newAddr
		return parent.SetHeader(header)
	}

	children, err := parent.Children()
	if err != nil {
		return err
	}
	for {
		child, err := children.Next()
		if err != nil {
			return err
		}
		if child == nil {
			return fmt.Errorf("relinking record at %d: no pointer to it in parent chain at %d",
				oldAddr, parent.addr)
		}
		childHeader, err := child.Header()
		if err != nil {
			return err
		}
		if childHeader.NextSibling == oldAddr {
			childHeader.NextSibling = newAddr
			return child.SetHeader(childHeader)
		}
	}
}
