// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package aggregate

import (
	"sort"
	"strconv"

	"github.com/AleutianAI/AleutianConnectome/services/connectome/records"
)

// Request selects the neurons and classes to aggregate.
type Request struct {
	// Datasets is ordered. Its order defines the ListCount positions.
	Datasets []string `json:"datasets"`

	// Neurons are requested individual neuron names.
	Neurons []string `json:"neurons"`

	// Classes are requested class names.
	Classes []string `json:"classes"`

	// ShowIndividualNeuron labels unrequested neurons by their own name
	// instead of their class.
	ShowIndividualNeuron bool `json:"show_individual_neuron"`

	// ShowConnectedNeuron includes edges that leave the requested set.
	ShowConnectedNeuron bool `json:"show_connected_neuron"`
}

// AggregatedSynapse is one (pre, post, type) bucket.
type AggregatedSynapse struct {
	Pre   string              `json:"pre"`
	Post  string              `json:"post"`
	Type  records.SynapseType `json:"type"`
	Count int                 `json:"count"`

	// ListCount[i] is the contribution of Request.Datasets[i].
	ListCount []int `json:"list_count"`
}

// Response is the aggregated subgraph.
type Response struct {
	Datasets []string            `json:"datasets"`
	Neurons  []string            `json:"neurons"`
	Synapses []AggregatedSynapse `json:"synapses"`
}

// edgeKey is the typed aggregation key. Electrical keys are canonical.
type edgeKey struct {
	pre  string
	post string
	typ  records.SynapseType
}

// newEdgeKey builds the bucket key for a labeled edge. Electrical synapses
// have no direction, so their two labels are stored in sorted order.
func newEdgeKey(pre, post string, typ records.SynapseType) edgeKey {
	if typ == records.Electrical && post < pre {
		pre, post = post, pre
	}
	return edgeKey{pre: pre, post: post, typ: typ}
}

// cacheParts renders the request as unambiguous cache key parts. Neurons
// and classes are sets, so they are sorted and deduplicated. Dataset order
// is significant and kept.
func (r Request) cacheParts() []string {
	neurons := uniqueSorted(r.Neurons)
	classes := uniqueSorted(r.Classes)

	parts := make([]string, 0, len(r.Datasets)+len(neurons)+len(classes)+5)
	parts = append(parts, strconv.Itoa(len(r.Datasets)))
	parts = append(parts, r.Datasets...)
	parts = append(parts, strconv.Itoa(len(neurons)))
	parts = append(parts, neurons...)
	parts = append(parts, strconv.Itoa(len(classes)))
	parts = append(parts, classes...)
	parts = append(parts,
		strconv.FormatBool(r.ShowIndividualNeuron),
		strconv.FormatBool(r.ShowConnectedNeuron))
	return parts
}

func uniqueSorted(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
