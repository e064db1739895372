// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package records

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process Reader.
//
// # Description
//
// Entities are added with AddClass, AddNeuron, AddDataset and AddSynapse.
// Synapses for the same (dataset, pre, post, type) are merged by summing
// their counts. Each dataset keeps its available neurons and classes up to
// date on every AddSynapse, and indexes its synapses by neuron and by class
// so SynapsesTouching runs in time proportional to the matching records.
//
// # Thread Safety
//
// Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	neurons  map[string]Neuron
	classes  map[string]NeuronClass
	datasets map[string]*memoryDataset
}

type memoryDataset struct {
	meta     Dataset
	list     []Synapse
	index    map[SynapseKey]int
	byNeuron map[string][]int
	byClass  map[string][]int
	neurons  map[string]struct{}
	classes  map[string]struct{}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		neurons:  make(map[string]Neuron),
		classes:  make(map[string]NeuronClass),
		datasets: make(map[string]*memoryDataset),
	}
}

// AddClass adds or replaces a neuron class.
func (m *MemoryStore) AddClass(c NeuronClass) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[c.Name] = c
}

// AddNeuron adds a neuron. Its class is created without split flags if unknown.
func (m *MemoryStore) AddNeuron(n Neuron) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.classes[n.Class]; !ok {
		m.classes[n.Class] = NeuronClass{Name: n.Class}
	}
	m.neurons[n.Name] = n
}

// AddDataset adds a dataset or replaces the metadata of an existing one.
//
// Synapses already recorded for the dataset are kept.
func (m *MemoryStore) AddDataset(d Dataset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.datasets[d.ID]; ok {
		existing.meta = d
		return
	}
	m.datasets[d.ID] = &memoryDataset{
		meta:     d,
		index:    make(map[SynapseKey]int),
		byNeuron: make(map[string][]int),
		byClass:  make(map[string][]int),
		neurons:  make(map[string]struct{}),
		classes:  make(map[string]struct{}),
	}
}

// AddSynapse records a synapse, merging with an existing record of the same
// (pre, post, type) by summing counts.
//
// Outputs:
//
//	error - ErrDatasetNotFound, ErrUnknownNeuron, ErrUnknownSynapseType or
//	ErrInvalidCount, wrapped with the offending values.
func (m *MemoryStore) AddSynapse(s Synapse) error {
	if !s.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownSynapseType, s.Type)
	}
	if s.Count <= 0 {
		return fmt.Errorf("%w: %s -> %s count %d", ErrInvalidCount, s.Pre, s.Post, s.Count)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ds, ok := m.datasets[s.Dataset]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDatasetNotFound, s.Dataset)
	}
	pre, ok := m.neurons[s.Pre]
	if !ok {
		return fmt.Errorf("%w: %s (pre of %s -> %s)", ErrUnknownNeuron, s.Pre, s.Pre, s.Post)
	}
	post, ok := m.neurons[s.Post]
	if !ok {
		return fmt.Errorf("%w: %s (post of %s -> %s)", ErrUnknownNeuron, s.Post, s.Pre, s.Post)
	}

	key := s.Key()
	if idx, ok := ds.index[key]; ok {
		ds.list[idx].Count += s.Count
		return nil
	}

	idx := len(ds.list)
	ds.list = append(ds.list, s)
	ds.index[key] = idx

	ds.byNeuron[pre.Name] = append(ds.byNeuron[pre.Name], idx)
	if post.Name != pre.Name {
		ds.byNeuron[post.Name] = append(ds.byNeuron[post.Name], idx)
	}
	ds.byClass[pre.Class] = append(ds.byClass[pre.Class], idx)
	if post.Class != pre.Class {
		ds.byClass[post.Class] = append(ds.byClass[post.Class], idx)
	}

	ds.neurons[pre.Name] = struct{}{}
	ds.neurons[post.Name] = struct{}{}
	ds.classes[pre.Class] = struct{}{}
	ds.classes[post.Class] = struct{}{}
	return nil
}

// Datasets implements Reader.
func (m *MemoryStore) Datasets(ctx context.Context) ([]Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Dataset, 0, len(m.datasets))
	for _, ds := range m.datasets {
		meta := ds.meta
		meta.AvailableNeurons = sortedKeys(ds.neurons)
		meta.AvailableClasses = sortedKeys(ds.classes)
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Neurons implements Reader.
func (m *MemoryStore) Neurons(ctx context.Context) ([]Neuron, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Neuron, 0, len(m.neurons))
	for _, n := range m.neurons {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Classes implements Reader.
func (m *MemoryStore) Classes(ctx context.Context) ([]NeuronClass, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]NeuronClass, 0, len(m.classes))
	for _, c := range m.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Synapses implements Reader.
func (m *MemoryStore) Synapses(ctx context.Context, datasetID string) ([]Synapse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	ds, ok := m.datasets[datasetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, datasetID)
	}
	out := make([]Synapse, len(ds.list))
	copy(out, ds.list)
	return out, nil
}

// SynapsesTouching implements Reader.
func (m *MemoryStore) SynapsesTouching(ctx context.Context, datasetID string, sel Selector) ([]Synapse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	ds, ok := m.datasets[datasetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, datasetID)
	}

	var idxs []int
	switch sel.Kind {
	case SelectNeuron:
		idxs = ds.byNeuron[sel.Name]
	case SelectClass:
		idxs = ds.byClass[sel.Name]
	default:
		return nil, fmt.Errorf("unknown selector kind %q", sel.Kind)
	}

	out := make([]Synapse, 0, len(idxs))
	for _, idx := range idxs {
		out = append(out, ds.list[idx])
	}
	return out, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var _ Reader = (*MemoryStore)(nil)
