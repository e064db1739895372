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
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianConnectome/services/connectome/records"
)

func testCatalog() *records.Catalog {
	return records.NewCatalog([]records.Neuron{
		{Name: "AVAL", Class: "AVA"},
		{Name: "AVAR", Class: "AVA"},
		{Name: "AVBL", Class: "AVB"},
		{Name: "AVBR", Class: "AVB"},
		{Name: "ASHL", Class: "ASH"},
	}, nil, []records.Dataset{{ID: "ds1"}, {ID: "ds2"}})
}

func testBuilder() *Builder {
	return NewBuilder(testCatalog(),
		WithWorkerCount(2),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func syn(pre, post string, typ records.SynapseType, count int) records.Synapse {
	return records.Synapse{Dataset: "ds1", Pre: pre, Post: post, Type: typ, Count: count}
}

func TestBuilder_ClassEdgeKeepsSmallerWeight(t *testing.T) {
	b := testBuilder()

	dg, warnings, processed := b.BuildDataset("ds1", []records.Synapse{
		syn("AVAL", "AVBL", records.Chemical, 5),
		syn("AVAR", "AVBR", records.Chemical, 2),
	})
	require.Empty(t, warnings)
	assert.Equal(t, 2, processed)

	e, ok := dg.ClassAll.Edge("AVA", "AVB")
	require.True(t, ok)
	assert.Equal(t, 2, e.Weight)

	e, ok = dg.ClassChemical.Edge("AVA", "AVB")
	require.True(t, ok)
	assert.Equal(t, 2, e.Weight)

	e, ok = dg.NeuronAll.Edge("AVAL", "AVBL")
	require.True(t, ok)
	assert.Equal(t, 5, e.Weight)
}

func TestBuilder_TypeFollowsSmallerWeight(t *testing.T) {
	b := testBuilder()

	dg, _, _ := b.BuildDataset("ds1", []records.Synapse{
		syn("AVAL", "AVAR", records.Chemical, 4),
		syn("AVAL", "AVAR", records.Electrical, 1),
	})

	e, ok := dg.NeuronAll.Edge("AVAL", "AVAR")
	require.True(t, ok)
	assert.Equal(t, 1, e.Weight)
	assert.Equal(t, records.Electrical, e.Type)

	e, ok = dg.NeuronChemical.Edge("AVAL", "AVAR")
	require.True(t, ok)
	assert.Equal(t, 4, e.Weight)
	assert.Equal(t, records.Chemical, e.Type)

	// Intra-class pair becomes a class self-loop.
	e, ok = dg.ClassAll.Edge("AVA", "AVA")
	require.True(t, ok)
	assert.Equal(t, 1, e.Weight)
}

func TestBuilder_ElectricalExcludedFromChemicalOnly(t *testing.T) {
	b := testBuilder()

	dg, _, _ := b.BuildDataset("ds1", []records.Synapse{
		syn("ASHL", "AVAL", records.Electrical, 3),
	})

	assert.Equal(t, 1, dg.NeuronAll.EdgeCount())
	assert.Equal(t, 1, dg.ClassAll.EdgeCount())
	assert.Zero(t, dg.NeuronChemical.EdgeCount())
	assert.Zero(t, dg.ClassChemical.EdgeCount())
	assert.False(t, dg.NeuronChemical.HasNode("ASHL"))
}

func TestBuilder_SkipsUnknownNeurons(t *testing.T) {
	b := testBuilder()

	dg, warnings, processed := b.BuildDataset("ds1", []records.Synapse{
		syn("GHOST", "AVAL", records.Chemical, 3),
		syn("AVAL", "AVBL", records.Chemical, 1),
		syn("AVAL", "PHANTOM", records.Chemical, 3),
	})

	assert.Equal(t, 1, processed)
	require.Len(t, warnings, 2)
	assert.ErrorIs(t, warnings[0], records.ErrUnknownNeuron)
	assert.Equal(t, "GHOST", warnings[0].Pre)
	assert.Equal(t, "PHANTOM", warnings[1].Post)
	assert.Equal(t, 1, dg.NeuronAll.EdgeCount())
}

func TestBuilder_Build(t *testing.T) {
	b := testBuilder()

	result, err := b.Build(context.Background(), []records.DatasetRecords{
		{DatasetID: "ds1", Synapses: []records.Synapse{
			syn("AVAL", "AVBL", records.Chemical, 5),
			syn("GHOST", "AVBL", records.Chemical, 5),
		}},
		{DatasetID: "empty"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Stats.Datasets)
	assert.Equal(t, 1, result.Stats.SynapsesProcessed)
	assert.Equal(t, 1, result.Stats.SkippedSynapses)
	assert.Equal(t, 4, result.Stats.Edges)
	assert.True(t, result.HasWarnings())

	snap := result.Snapshot
	assert.Equal(t, []string{"ds1", "empty"}, snap.DatasetIDs())

	empty, ok := snap.Dataset("empty")
	require.True(t, ok)
	for _, g := range []*Graph{empty.NeuronAll, empty.NeuronChemical, empty.ClassAll, empty.ClassChemical} {
		require.NotNil(t, g)
		assert.True(t, g.IsFrozen())
		assert.Zero(t, g.EdgeCount())
	}
}

func TestBuilder_Build_DuplicateDataset(t *testing.T) {
	_, err := testBuilder().Build(context.Background(), []records.DatasetRecords{
		{DatasetID: "ds1"}, {DatasetID: "ds1"},
	})
	assert.ErrorIs(t, err, ErrDuplicateDataset)
}

func TestBuilder_Build_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testBuilder().Build(ctx, []records.DatasetRecords{{DatasetID: "ds1"}})
	assert.ErrorIs(t, err, ErrBuildCancelled)
}
