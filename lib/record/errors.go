// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package record

import "fmt"

// CorruptionError reports that the bytes at a given image address do
// not decode as the record they are supposed to be. It is returned by
// the decoders in this package and surfaced unchanged by the storage
// engine; match it with errors.As.
type CorruptionError struct {
	// Addr is the image byte address of the record that failed to
	// decode.
	Addr uint64

	// Reason describes what was wrong with the bytes.
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupt record at address %d: %s", e.Addr, e.Reason)
}

func corrupt(addr uint64, format string, args ...any) *CorruptionError {
	return &CorruptionError{Addr: addr, Reason: fmt.Sprintf(format, args...)}
}
