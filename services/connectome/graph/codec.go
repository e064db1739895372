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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotFormatVersion is the serialized layout written by EncodeSnapshot.
const SnapshotFormatVersion = 1

// snapshotEnvelope is the serialized form.
//
// Checksum is the SHA-256 of the raw Datasets bytes.
type snapshotEnvelope struct {
	FormatVersion int             `json:"format_version"`
	CreatedAt     time.Time       `json:"created_at"`
	Checksum      string          `json:"checksum"`
	Datasets      json.RawMessage `json:"datasets"`
}

type variantPair struct {
	All          []Edge `json:"all"`
	ChemicalOnly []Edge `json:"chemical_only"`
}

type datasetPayload struct {
	Neuron variantPair `json:"neuron"`
	Class  variantPair `json:"class"`
}

// EncodeSnapshot serializes s.
//
// Edges are written ordered by (pre, post) so equal snapshots encode to
// equal bytes apart from created_at.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	payload := make(map[string]datasetPayload, s.Len())
	for _, id := range s.DatasetIDs() {
		dg, _ := s.Dataset(id)
		payload[id] = datasetPayload{
			Neuron: variantPair{All: nonNil(dg.NeuronAll.Edges()), ChemicalOnly: nonNil(dg.NeuronChemical.Edges())},
			Class:  variantPair{All: nonNil(dg.ClassAll.Edges()), ChemicalOnly: nonNil(dg.ClassChemical.Edges())},
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot datasets: %w", err)
	}
	sum := sha256.Sum256(raw)
	return json.Marshal(snapshotEnvelope{
		FormatVersion: SnapshotFormatVersion,
		CreatedAt:     s.CreatedAt(),
		Checksum:      hex.EncodeToString(sum[:]),
		Datasets:      raw,
	})
}

// DecodeSnapshot restores a snapshot written by EncodeSnapshot.
//
// Outputs:
//
//	*Snapshot - Frozen snapshot.
//	error - ErrUnsupportedFormat or ErrSnapshotCorrupt (wrapped).
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var env snapshotEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if env.FormatVersion != SnapshotFormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, env.FormatVersion)
	}
	if len(env.Datasets) == 0 {
		return nil, fmt.Errorf("%w: missing datasets", ErrSnapshotCorrupt)
	}
	sum := sha256.Sum256(env.Datasets)
	if hex.EncodeToString(sum[:]) != env.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrSnapshotCorrupt)
	}

	var payload map[string]datasetPayload
	if err := json.Unmarshal(env.Datasets, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}

	byID := make(map[string]*DatasetGraphs, len(payload))
	for id, p := range payload {
		dg := NewDatasetGraphs()
		for _, load := range []struct {
			g     *Graph
			edges []Edge
		}{
			{dg.NeuronAll, p.Neuron.All},
			{dg.NeuronChemical, p.Neuron.ChemicalOnly},
			{dg.ClassAll, p.Class.All},
			{dg.ClassChemical, p.Class.ChemicalOnly},
		} {
			if err := restoreEdges(load.g, load.edges); err != nil {
				return nil, fmt.Errorf("%w: dataset %s: %v", ErrSnapshotCorrupt, id, err)
			}
		}
		byID[id] = dg
	}
	return NewSnapshot(byID, env.CreatedAt), nil
}

func restoreEdges(g *Graph, edges []Edge) error {
	for _, e := range edges {
		if !e.Type.Valid() {
			return fmt.Errorf("edge %s -> %s has type %q", e.Pre, e.Post, e.Type)
		}
		if _, dup := g.Edge(e.Pre, e.Post); dup {
			return fmt.Errorf("duplicate edge %s -> %s", e.Pre, e.Post)
		}
		if _, err := g.AddEdge(e.Pre, e.Post, e.Weight, e.Type); err != nil {
			return err
		}
	}
	return nil
}

func nonNil(edges []Edge) []Edge {
	if edges == nil {
		return []Edge{}
	}
	return edges
}
