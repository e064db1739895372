// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot owns the process-wide graph snapshot.
//
// Provider is the single injectable handle request handlers read graphs
// through. It starts in StateNotLoaded, becomes StateReady after a
// successful load, and StateUnavailable when the first load fails. A
// reload builds a complete new snapshot and swaps it in atomically;
// readers holding the previous snapshot keep using it until they finish.
//
// Snapshots are persisted as JSON, optionally zstd-compressed when the
// file name ends in ".zst". Watcher reloads the provider whenever the
// precompute step replaces the file.
package snapshot

import (
	"errors"
	"fmt"
)

// Sentinel errors for snapshot access.
var (
	// ErrNotLoaded is returned before any load has been attempted.
	ErrNotLoaded = errors.New("snapshot not loaded")

	// ErrUnavailable is returned when the last load failed and no previous
	// snapshot exists.
	ErrUnavailable = errors.New("precompute data unavailable")

	// ErrSnapshotNotFound is returned when the snapshot file does not exist.
	ErrSnapshotNotFound = errors.New("snapshot file not found")

	// ErrNoLoader is returned by Reload on a provider without a loader.
	ErrNoLoader = errors.New("snapshot provider has no loader")
)

// UnavailableError carries the cause of a failed load.
type UnavailableError struct {
	Cause error
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%v: %v", ErrUnavailable, e.Cause)
}

// Is reports ErrUnavailable so callers can match with errors.Is.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// Unwrap returns the load failure.
func (e *UnavailableError) Unwrap() error {
	return e.Cause
}
