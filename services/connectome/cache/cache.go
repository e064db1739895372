// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache stores computed query results by deterministic key.
//
// Entries never expire. They are dropped explicitly by key prefix when the
// underlying datasets are reimported. A cache is never required for
// correctness: read or write failures are logged and the caller recomputes.
//
// # Key Layout
//
//	<namespace>:<hash(parts)>                      cross-dataset results
//	<namespace>:<hash(dataset)>:<hash(parts)>      dataset-scoped results
//
// Hashing keeps keys fixed-length and free of separator collisions between
// user-supplied names.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrClosed is returned by operations on a closed cache.
var ErrClosed = errors.New("cache closed")

// Cache is a key-value store for computed results.
//
// Implementations must be safe for concurrent use. Concurrent Sets of the
// same key with equal values are harmless.
type Cache interface {
	// Get returns the value for key. found is false on a miss.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value under key with no expiry.
	Set(ctx context.Context, key string, value []byte) error

	// Invalidate removes every key starting with prefix.
	Invalidate(ctx context.Context, prefix string) error

	// Close releases resources.
	Close() error
}

// Key derives a cross-dataset key from ordered parts.
func Key(namespace string, parts ...string) string {
	return namespace + ":" + hashParts(parts)
}

// DatasetPrefix returns the prefix shared by all keys of one dataset in a
// namespace.
func DatasetPrefix(namespace, datasetID string) string {
	return namespace + ":" + hashParts([]string{datasetID})[:16] + ":"
}

// DatasetKey derives a dataset-scoped key from ordered parts.
func DatasetKey(namespace, datasetID string, parts ...string) string {
	return DatasetPrefix(namespace, datasetID) + hashParts(parts)
}

// NamespacePrefix returns the prefix shared by all keys of a namespace.
func NamespacePrefix(namespace string) string {
	return namespace + ":"
}

// hashParts length-prefixes every part so ("ab","c") and ("a","bc") differ.
func hashParts(parts []string) string {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func namespaceOf(key string) string {
	ns, _, _ := strings.Cut(key, ":")
	return ns
}
