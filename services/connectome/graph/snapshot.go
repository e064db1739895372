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
	"sort"
	"time"
)

// DatasetGraphs holds the four graph variants of one dataset.
type DatasetGraphs struct {
	NeuronAll      *Graph
	NeuronChemical *Graph
	ClassAll       *Graph
	ClassChemical  *Graph
}

// NewDatasetGraphs creates four empty, unfrozen graphs.
func NewDatasetGraphs() *DatasetGraphs {
	return &DatasetGraphs{
		NeuronAll:      NewGraph(),
		NeuronChemical: NewGraph(),
		ClassAll:       NewGraph(),
		ClassChemical:  NewGraph(),
	}
}

// Select picks the variant for a query.
func (d *DatasetGraphs) Select(useClass, includeElectrical bool) *Graph {
	switch {
	case useClass && includeElectrical:
		return d.ClassAll
	case useClass:
		return d.ClassChemical
	case includeElectrical:
		return d.NeuronAll
	default:
		return d.NeuronChemical
	}
}

// Freeze freezes all four variants.
func (d *DatasetGraphs) Freeze() {
	d.NeuronAll.Freeze()
	d.NeuronChemical.Freeze()
	d.ClassAll.Freeze()
	d.ClassChemical.Freeze()
}

// Snapshot is an immutable mapping from dataset id to its graphs.
//
// # Thread Safety
//
// Safe for concurrent use. It exposes no mutation methods and every graph
// it holds is frozen.
type Snapshot struct {
	datasets  map[string]*DatasetGraphs
	ids       []string
	createdAt time.Time
}

// NewSnapshot freezes every graph in datasets and wraps them.
// The caller must not modify datasets afterwards.
func NewSnapshot(datasets map[string]*DatasetGraphs, createdAt time.Time) *Snapshot {
	ids := make([]string, 0, len(datasets))
	for id, dg := range datasets {
		dg.Freeze()
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return &Snapshot{datasets: datasets, ids: ids, createdAt: createdAt.UTC()}
}

// Dataset returns the graphs of one dataset.
func (s *Snapshot) Dataset(id string) (*DatasetGraphs, bool) {
	dg, ok := s.datasets[id]
	return dg, ok
}

// DatasetIDs returns every dataset id, sorted.
func (s *Snapshot) DatasetIDs() []string {
	return s.ids
}

// Len returns the number of datasets.
func (s *Snapshot) Len() int {
	return len(s.ids)
}

// CreatedAt returns when the snapshot was built.
func (s *Snapshot) CreatedAt() time.Time {
	return s.createdAt
}
