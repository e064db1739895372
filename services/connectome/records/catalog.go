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
)

// Reader supplies raw connectome entities from a backing store.
//
// Implementations must return synapses that are already pre-merged: at most
// one record per (dataset, pre, post, type).
type Reader interface {
	// Datasets returns every dataset, ordered by id.
	Datasets(ctx context.Context) ([]Dataset, error)

	// Neurons returns every neuron.
	Neurons(ctx context.Context) ([]Neuron, error)

	// Classes returns every neuron class.
	Classes(ctx context.Context) ([]NeuronClass, error)

	// Synapses returns the full synapse list of one dataset.
	Synapses(ctx context.Context, datasetID string) ([]Synapse, error)

	// SynapsesTouching returns the synapses of one dataset whose pre or post
	// endpoint is the selected neuron, or a member of the selected class.
	SynapsesTouching(ctx context.Context, datasetID string, sel Selector) ([]Synapse, error)
}

// ReadAll returns every dataset's full synapse list, ordered by dataset id.
func ReadAll(ctx context.Context, r Reader) ([]DatasetRecords, error) {
	datasets, err := r.Datasets(ctx)
	if err != nil {
		return nil, fmt.Errorf("load datasets: %w", err)
	}
	out := make([]DatasetRecords, 0, len(datasets))
	for _, ds := range datasets {
		syns, err := r.Synapses(ctx, ds.ID)
		if err != nil {
			return nil, fmt.Errorf("load synapses of %s: %w", ds.ID, err)
		}
		out = append(out, DatasetRecords{DatasetID: ds.ID, Synapses: syns})
	}
	return out, nil
}

// Catalog is an immutable lookup over neurons, classes and datasets.
//
// # Thread Safety
//
// Safe for concurrent use. Returned slices must not be modified.
type Catalog struct {
	neurons    map[string]Neuron
	classes    map[string]NeuronClass
	members    map[string][]string
	datasets   map[string]Dataset
	datasetIDs []string
}

// NewCatalog indexes the given entities.
//
// A neuron whose class is absent from classes gets an implicit class entry
// with no split flags, so every neuron resolves to a class.
func NewCatalog(neurons []Neuron, classes []NeuronClass, datasets []Dataset) *Catalog {
	c := &Catalog{
		neurons:  make(map[string]Neuron, len(neurons)),
		classes:  make(map[string]NeuronClass, len(classes)),
		members:  make(map[string][]string),
		datasets: make(map[string]Dataset, len(datasets)),
	}
	for _, cls := range classes {
		c.classes[cls.Name] = cls
	}
	for _, n := range neurons {
		c.neurons[n.Name] = n
		if _, ok := c.classes[n.Class]; !ok {
			c.classes[n.Class] = NeuronClass{Name: n.Class}
		}
		c.members[n.Class] = append(c.members[n.Class], n.Name)
	}
	for _, names := range c.members {
		sort.Strings(names)
	}
	for _, ds := range datasets {
		c.datasets[ds.ID] = ds
		c.datasetIDs = append(c.datasetIDs, ds.ID)
	}
	sort.Strings(c.datasetIDs)
	return c
}

// LoadCatalog reads all neurons, classes and datasets from r.
func LoadCatalog(ctx context.Context, r Reader) (*Catalog, error) {
	neurons, err := r.Neurons(ctx)
	if err != nil {
		return nil, fmt.Errorf("load neurons: %w", err)
	}
	classes, err := r.Classes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load classes: %w", err)
	}
	datasets, err := r.Datasets(ctx)
	if err != nil {
		return nil, fmt.Errorf("load datasets: %w", err)
	}
	return NewCatalog(neurons, classes, datasets), nil
}

// Neuron looks up a neuron by name.
func (c *Catalog) Neuron(name string) (Neuron, bool) {
	n, ok := c.neurons[name]
	return n, ok
}

// Class looks up a neuron class by name.
func (c *Catalog) Class(name string) (NeuronClass, bool) {
	cls, ok := c.classes[name]
	return cls, ok
}

// Members returns the sorted neuron names of a class.
func (c *Catalog) Members(class string) []string {
	return c.members[class]
}

// Dataset looks up a dataset by id.
func (c *Catalog) Dataset(id string) (Dataset, bool) {
	ds, ok := c.datasets[id]
	return ds, ok
}

// DatasetIDs returns all dataset ids, sorted.
func (c *Catalog) DatasetIDs() []string {
	return c.datasetIDs
}

// Datasets returns all datasets ordered by id.
func (c *Catalog) Datasets() []Dataset {
	out := make([]Dataset, 0, len(c.datasetIDs))
	for _, id := range c.datasetIDs {
		out = append(out, c.datasets[id])
	}
	return out
}

// NeuronCount returns the number of neurons.
func (c *Catalog) NeuronCount() int {
	return len(c.neurons)
}

// Availability is the union of available neurons and classes over datasets.
type Availability struct {
	// Neurons maps neuron name to its metadata.
	Neurons map[string]Neuron `json:"neurons"`

	// NeuronClasses maps class name to all of its member names.
	NeuronClasses map[string][]string `json:"neuron_classes"`
}

// Available returns the union of available neurons and classes of the
// given datasets.
//
// Description:
//
//	Every neuron that participates in a synapse of any listed dataset is
//	reported with its metadata. Every class that participates is reported
//	with all of its members, including members absent from those datasets.
//
// Outputs:
//
//	*Availability - Never nil on success.
//	error - ErrDatasetNotFound (wrapped) if any id is unknown.
func (c *Catalog) Available(datasetIDs []string) (*Availability, error) {
	out := &Availability{
		Neurons:       make(map[string]Neuron),
		NeuronClasses: make(map[string][]string),
	}
	for _, id := range datasetIDs {
		ds, ok := c.datasets[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
		}
		for _, name := range ds.AvailableNeurons {
			if n, ok := c.neurons[name]; ok {
				out.Neurons[name] = n
			}
		}
		for _, class := range ds.AvailableClasses {
			members := c.members[class]
			if members == nil {
				members = []string{}
			}
			out.NeuronClasses[class] = members
		}
	}
	return out, nil
}
