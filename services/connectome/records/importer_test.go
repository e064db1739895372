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
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeImportFixtures(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeFixture(t, root, "connectome/witvliet_datasets.json", `[
		{"id": "ds1", "name": "L1 animal", "type": "complete", "time": 0, "visualTime": 10, "description": "first"},
		{"id": "ds2", "name": "Adult", "type": "head", "time": 45, "visualTime": 50, "description": "second", "citation": "Witvliet 2021"}
	]`)
	writeFixture(t, root, "connectome/witvliet_neurons.json", `[
		{"name": "AVAL", "classes": "AVA", "inhead": 1, "intail": 0, "nt": "a", "emb": 1, "typ": "i"},
		{"name": "AVAR", "classes": "AVA", "inhead": 1, "intail": 0, "nt": "a", "emb": 1, "typ": "i"},
		{"name": "RMED", "classes": "RME", "inhead": 1, "intail": 0, "nt": "g", "emb": 1, "typ": "m"},
		{"name": "ADAL", "classes": "ADA", "inhead": 1, "intail": 0, "nt": "l", "emb": 0, "typ": "i"},
		{"name": "ORPHAN", "classes": "NOSPLIT", "inhead": 0, "intail": 0, "nt": "", "emb": 0, "typ": ""}
	]`)
	writeFixture(t, root, "config/neuron_class_split.json", `{
		"others": {"AVA": [true, null, null, null], "RME": [null, null, null, null], "ADA": [true, null, null, null]},
		"manual": {"RME": [false, true, null, null]}
	}`)
	writeFixture(t, root, "connectome/connectome/ds1.json", `[
		{"pre": "AVAL", "post": "AVAR", "typ": 0, "syn": [1, 2, 3]},
		{"pre": "AVAL", "post": "AVAR", "typ": 2, "syn": [1]},
		{"pre": "AVAL", "post": "RMED", "typ": 1, "syn": [4]},
		{"pre": "AVAL", "post": "GHOST", "typ": 0, "syn": [1]}
	]`)
	writeFixture(t, root, "connectome/connectome/ds2.json", `[
		{"pre": "ADAL", "post": "AVAL", "typ": 0, "syn": [2]}
	]`)
	writeFixture(t, root, "connectome/connectome/unknown.json", `[
		{"pre": "ADAL", "post": "AVAL", "typ": 0, "syn": [2]},
		{"pre": "ADAL", "post": "AVAR", "typ": 0, "syn": [2]}
	]`)
	writeFixture(t, root, "connectome/connectome/README.txt", "not a synapse file")
	return root
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestImporter_Import(t *testing.T) {
	root := writeImportFixtures(t)
	ctx := context.Background()

	store, report, err := NewImporter(root, WithImportLogger(quietLogger())).Import(ctx)
	require.NoError(t, err)
	require.NotNil(t, store)

	assert.Equal(t, 2, report.Datasets)
	assert.Equal(t, 4, report.Neurons)
	assert.Equal(t, 3, report.Synapses)
	// ORPHAN, typ 1, GHOST and the first record of unknown.json.
	assert.Equal(t, 4, report.Skipped)

	t.Run("datasets", func(t *testing.T) {
		datasets, err := store.Datasets(ctx)
		require.NoError(t, err)
		require.Len(t, datasets, 2)
		assert.Equal(t, "Witvliet 2021", datasets[1].Citation)
		assert.Equal(t, 50.0, datasets[1].AnimalVisualTime)
		assert.Equal(t, []string{"AVAL", "AVAR"}, datasets[0].AvailableNeurons)
	})

	t.Run("synapse counts are summed", func(t *testing.T) {
		syns, err := store.Synapses(ctx, "ds1")
		require.NoError(t, err)
		require.Len(t, syns, 2)
		assert.Equal(t, 6, syns[0].Count)
		assert.Equal(t, Electrical, syns[1].Type)
	})

	t.Run("locations derived", func(t *testing.T) {
		neurons, err := store.Neurons(ctx)
		require.NoError(t, err)
		byName := make(map[string]Neuron)
		for _, n := range neurons {
			byName[n.Name] = n
		}
		assert.Equal(t, "l", byName["AVAL"].LR)
		assert.Equal(t, "r", byName["AVAR"].LR)
		assert.Equal(t, "d", byName["RMED"].DV)
		assert.True(t, byName["AVAL"].IsEmbryonic)
		assert.False(t, byName["ADAL"].IsEmbryonic)
	})

	t.Run("manual split overrides others", func(t *testing.T) {
		classes, err := store.Classes(ctx)
		require.NoError(t, err)
		for _, c := range classes {
			if c.Name == "RME" {
				require.NotNil(t, c.SplitDV)
				assert.True(t, *c.SplitDV)
				return
			}
		}
		t.Fatal("class RME not imported")
	})
}

func TestImporter_MissingFile(t *testing.T) {
	root := t.TempDir()

	_, _, err := NewImporter(root, WithImportLogger(quietLogger())).Import(context.Background())
	require.Error(t, err)

	var importErr *ImportError
	require.True(t, errors.As(err, &importErr))
	assert.Contains(t, importErr.File, "witvliet_datasets.json")
}

func TestImporter_CancelledContext(t *testing.T) {
	root := writeImportFixtures(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewImporter(root, WithImportLogger(quietLogger())).Import(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeriveLocation(t *testing.T) {
	yes := true

	tests := []struct {
		name         string
		neuron       string
		class        NeuronClass
		wantLR       string
		wantDV       string
		wantProblems bool
	}{
		{"left suffix", "AVAL", NeuronClass{Name: "AVA", SplitLR: &yes}, "l", "", false},
		{"dorsal left", "SMDDL", NeuronClass{Name: "SMD", SplitDLR: &yes}, "l", "d", false},
		{"ventral unset flag", "SMDVR", NeuronClass{Name: "SMD"}, "r", "v", true},
		{"no suffix", "AVG", NeuronClass{Name: "AVG"}, "", "", false},
		{"no suffix but flags set", "AVG", NeuronClass{Name: "AVG", SplitLR: &yes}, "", "", true},
		{"body wall muscle", "BWM-DL01", NeuronClass{Name: "BWM01", SplitDLR: &yes, SplitVLR: &yes, SplitDV: &yes}, "l", "d", false},
		{"g1A", "g1AR", NeuronClass{Name: "g1", SplitLR: &yes}, "r", "", false},
		{"intestinal muscle", "intmul", NeuronClass{Name: "DefecationMuscles", SplitLR: &yes}, "l", "", false},
		{"defecation muscle other", "anal", NeuronClass{Name: "DefecationMuscles", SplitLR: &yes}, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lr, dv, problems := deriveLocation(tt.neuron, tt.class)
			assert.Equal(t, tt.wantLR, lr)
			assert.Equal(t, tt.wantDV, dv)
			assert.Equal(t, tt.wantProblems, len(problems) > 0, "problems: %v", problems)
		})
	}
}
