// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	badgerstore "github.com/AleutianAI/AleutianConnectome/services/connectome/storage/badger"
)

// BadgerCache is a Cache persisted in BadgerDB.
//
// Thread Safety: safe for concurrent use.
type BadgerCache struct {
	db *badgerstore.DB
}

// NewBadgerCache wraps an open database. The cache owns db and closes it
// on Close.
func NewBadgerCache(db *badgerstore.DB) *BadgerCache {
	return &BadgerCache{db: db}
}

// OpenBadgerCache opens a database with cfg and wraps it.
func OpenBadgerCache(cfg badgerstore.Config) (*BadgerCache, error) {
	db, err := badgerstore.Open(cfg)
	if err != nil {
		return nil, err
	}
	return NewBadgerCache(db), nil
}

// Get implements Cache.
func (b *BadgerCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var out []byte
	err := b.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	switch {
	case err == nil:
		return out, true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, false, nil
	case errors.Is(err, badger.ErrDBClosed):
		return nil, false, ErrClosed
	default:
		return nil, false, fmt.Errorf("badger get: %w", err)
	}
}

// Set implements Cache.
func (b *BadgerCache) Set(ctx context.Context, key string, value []byte) error {
	err := b.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		if errors.Is(err, badger.ErrDBClosed) {
			return ErrClosed
		}
		return fmt.Errorf("badger set: %w", err)
	}
	return nil
}

// Invalidate implements Cache.
func (b *BadgerCache) Invalidate(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.db.DropPrefix([]byte(prefix)); err != nil {
		return fmt.Errorf("badger drop prefix %q: %w", prefix, err)
	}
	return nil
}

// Close implements Cache.
func (b *BadgerCache) Close() error {
	return b.db.Close()
}

var _ Cache = (*BadgerCache)(nil)
