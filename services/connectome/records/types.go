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
	"encoding/json"
	"fmt"
)

// SynapseType distinguishes directed chemical synapses from symmetric gap junctions.
type SynapseType string

const (
	// Chemical synapses are directional.
	Chemical SynapseType = "chemical"

	// Electrical synapses (gap junctions) are symmetric.
	Electrical SynapseType = "electrical"
)

// Valid reports whether t is a known synapse type.
func (t SynapseType) Valid() bool {
	return t == Chemical || t == Electrical
}

// UnmarshalJSON accepts the long names and the single-letter codes "c" and "e".
func (t *SynapseType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseSynapseType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseSynapseType converts "chemical"/"c" and "electrical"/"e".
func ParseSynapseType(s string) (SynapseType, error) {
	switch s {
	case "chemical", "c":
		return Chemical, nil
	case "electrical", "e":
		return Electrical, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSynapseType, s)
	}
}

// Neuron is an individual labeled cell. Immutable after import.
type Neuron struct {
	Name                 string `json:"name"`
	Class                string `json:"neuron_class"`
	InHead               bool   `json:"in_head"`
	InTail               bool   `json:"in_tail"`
	IsEmbryonic          bool   `json:"is_embryonic"`
	CellType             string `json:"cell_type"`
	NeurotransmitterType string `json:"neurotransmitter_type"`

	// LR is "l", "r" or "".
	LR string `json:"lr,omitempty"`

	// DV is "d", "v" or "".
	DV string `json:"dv,omitempty"`
}

// NeuronClass groups functionally equivalent neurons.
//
// The split flags are nullable: nil means the split configuration gave no value.
type NeuronClass struct {
	Name     string `json:"name"`
	SplitLR  *bool  `json:"split_lr"`
	SplitDV  *bool  `json:"split_dv"`
	SplitDLR *bool  `json:"split_d_lr"`
	SplitVLR *bool  `json:"split_v_lr"`
}

// Dataset is one animal/timepoint/source collection of synapses.
type Dataset struct {
	ID               string  `json:"dataset_id"`
	Name             string  `json:"name"`
	Type             string  `json:"dataset_type"`
	AnimalTime       float64 `json:"animal_time"`
	AnimalVisualTime float64 `json:"animal_visual_time"`
	Description      string  `json:"description"`
	Citation         string  `json:"citation,omitempty"`

	// AvailableNeurons and AvailableClasses hold the names of every
	// pre/post participant of the dataset's synapses, sorted.
	AvailableNeurons []string `json:"available_neurons,omitempty"`
	AvailableClasses []string `json:"available_classes,omitempty"`
}

// Synapse is one pre-merged directed connection record.
//
// There is at most one Synapse per (Dataset, Pre, Post, Type).
type Synapse struct {
	Dataset string      `json:"dataset"`
	Pre     string      `json:"pre"`
	Post    string      `json:"post"`
	Type    SynapseType `json:"type"`
	Count   int         `json:"count"`
}

// Key identifies the raw pair of a synapse within its dataset.
func (s Synapse) Key() SynapseKey {
	return SynapseKey{Pre: s.Pre, Post: s.Post, Type: s.Type}
}

// SynapseKey is the raw (pre, post, type) identity of a synapse.
type SynapseKey struct {
	Pre  string
	Post string
	Type SynapseType
}

// SelectorKind says whether a Selector names a neuron or a class.
type SelectorKind string

const (
	// SelectNeuron selects synapses touching one neuron.
	SelectNeuron SelectorKind = "neuron"

	// SelectClass selects synapses touching any member of one class.
	SelectClass SelectorKind = "class"
)

// Selector names a single neuron or class whose synapses are wanted.
type Selector struct {
	Kind SelectorKind
	Name string
}

// String returns "neuron:AVAL" style text.
func (s Selector) String() string {
	return string(s.Kind) + ":" + s.Name
}

// DatasetRecords is the full synapse list for one dataset.
type DatasetRecords struct {
	DatasetID string
	Synapses  []Synapse
}
