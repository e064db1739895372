// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianConnectome/services/connectome/records"
)

func builtSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	result, err := testBuilder().Build(context.Background(), []records.DatasetRecords{
		{DatasetID: "ds1", Synapses: []records.Synapse{
			syn("AVAL", "AVBL", records.Chemical, 5),
			syn("AVAR", "AVBR", records.Chemical, 2),
			syn("AVAL", "AVAR", records.Electrical, 1),
			syn("ASHL", "ASHL", records.Chemical, 7),
		}},
		{DatasetID: "empty"},
	})
	require.NoError(t, err)
	return result.Snapshot
}

func TestSnapshotCodec_RoundTrip(t *testing.T) {
	snap := builtSnapshot(t)

	data, err := EncodeSnapshot(snap)
	require.NoError(t, err)

	restored, err := DecodeSnapshot(data)
	require.NoError(t, err)

	assert.Equal(t, snap.DatasetIDs(), restored.DatasetIDs())
	assert.True(t, snap.CreatedAt().Equal(restored.CreatedAt()))

	for _, id := range snap.DatasetIDs() {
		want, _ := snap.Dataset(id)
		got, ok := restored.Dataset(id)
		require.True(t, ok)
		for _, sel := range []struct{ class, electrical bool }{{false, false}, {false, true}, {true, false}, {true, true}} {
			w := want.Select(sel.class, sel.electrical)
			g := got.Select(sel.class, sel.electrical)
			assert.True(t, g.IsFrozen())
			assert.Equal(t, w.Edges(), g.Edges(), "dataset %s class=%v electrical=%v", id, sel.class, sel.electrical)
			assert.Equal(t, w.Nodes(), g.Nodes())
		}
	}

	again, err := EncodeSnapshot(restored)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestDecodeSnapshot_Errors(t *testing.T) {
	data, err := EncodeSnapshot(builtSnapshot(t))
	require.NoError(t, err)

	t.Run("not json", func(t *testing.T) {
		_, err := DecodeSnapshot([]byte("\x00\x01garbage"))
		assert.ErrorIs(t, err, ErrSnapshotCorrupt)
	})

	t.Run("checksum mismatch", func(t *testing.T) {
		tampered := bytes.Replace(data, []byte(`"weight":5`), []byte(`"weight":6`), 1)
		require.NotEqual(t, data, tampered)
		_, err := DecodeSnapshot(tampered)
		assert.ErrorIs(t, err, ErrSnapshotCorrupt)
	})

	t.Run("unsupported version", func(t *testing.T) {
		var env map[string]any
		require.NoError(t, json.Unmarshal(data, &env))
		env["format_version"] = 99
		changed, err := json.Marshal(env)
		require.NoError(t, err)

		_, err = DecodeSnapshot(changed)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("missing datasets", func(t *testing.T) {
		_, err := DecodeSnapshot([]byte(`{"format_version":1}`))
		assert.ErrorIs(t, err, ErrSnapshotCorrupt)
	})
}
