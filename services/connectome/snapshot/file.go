// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/AleutianAI/AleutianConnectome/services/connectome/graph"
)

// compressedSuffix marks zstd-compressed snapshot files.
const compressedSuffix = ".zst"

// ReadFile loads a snapshot written by WriteFile.
//
// Outputs:
//
//	*graph.Snapshot - The decoded snapshot.
//	error - ErrSnapshotNotFound if path does not exist, graph.ErrSnapshotCorrupt
//	for undecodable data, or the read error.
func ReadFile(path string) (*graph.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, path)
		}
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}

	if strings.HasSuffix(path, compressedSuffix) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()
		data, err = dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", graph.ErrSnapshotCorrupt, path, err)
		}
	}

	snap, err := graph.DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return snap, nil
}

// WriteFile persists snap to path.
//
// Description:
//
//	The data is written to a temporary file in the same directory, synced
//	and renamed over path, so readers and watchers only ever see a complete
//	file. A ".zst" suffix selects zstd compression.
func WriteFile(path string, snap *graph.Snapshot) error {
	data, err := graph.EncodeSnapshot(snap)
	if err != nil {
		return err
	}

	if strings.HasSuffix(path, compressedSuffix) {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return fmt.Errorf("create zstd encoder: %w", err)
		}
		data = enc.EncodeAll(data, nil)
		if err := enc.Close(); err != nil {
			return fmt.Errorf("close zstd encoder: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename snapshot into place: %w", err)
	}
	return nil
}

// FileLoader returns a Loader that reads path.
func FileLoader(path string) Loader {
	return func(ctx context.Context) (*graph.Snapshot, string, error) {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		snap, err := ReadFile(path)
		if err != nil {
			return nil, "", err
		}
		return snap, "file:" + path, nil
	}
}
