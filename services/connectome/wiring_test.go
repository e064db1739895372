// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package connectome

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianConnectome/services/connectome/cache"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/config"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/pathfind"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/records"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/snapshot"
)

func writeDataDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"connectome/witvliet_datasets.json": `[
			{"id": "d1", "name": "Adult", "type": "complete", "time": 45, "visualTime": 50, "description": "adult"}
		]`,
		"connectome/witvliet_neurons.json": `[
			{"name": "AVAL", "classes": "AVA", "inhead": 1, "intail": 0, "nt": "a", "emb": 1, "typ": "i"},
			{"name": "AVAR", "classes": "AVA", "inhead": 1, "intail": 0, "nt": "a", "emb": 1, "typ": "i"}
		]`,
		"config/neuron_class_split.json": `{"others": {"AVA": [true, null, null, null]}, "manual": {}}`,
		"connectome/connectome/d1.json": `[
			{"pre": "AVAL", "post": "AVAR", "typ": 0, "syn": [1, 2]}
		]`,
	}
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestRecordSourceFromConfig_JSON(t *testing.T) {
	source, closer := RecordSourceFromConfig(config.RecordsConfig{
		Backend: "json",
		DataDir: writeDataDir(t),
	}, quietLogger())
	defer closer(context.Background())

	reader, err := source(context.Background())
	require.NoError(t, err)

	datasets, err := reader.Datasets(context.Background())
	require.NoError(t, err)
	require.Len(t, datasets, 1)
	assert.Equal(t, "d1", datasets[0].ID)
	assert.Equal(t, []string{"AVAL", "AVAR"}, datasets[0].AvailableNeurons)
}

func TestRecordSourceFromConfig_MissingDir(t *testing.T) {
	source, _ := RecordSourceFromConfig(config.RecordsConfig{
		Backend: "json",
		DataDir: filepath.Join(t.TempDir(), "absent"),
	}, quietLogger())

	_, err := source(context.Background())
	var importErr *records.ImportError
	assert.ErrorAs(t, err, &importErr)
}

func TestOpenCache(t *testing.T) {
	c, err := OpenCache(config.CacheConfig{Backend: "none"}, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, cache.Noop{}, c)

	c, err = OpenCache(config.CacheConfig{Backend: "memory"}, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &cache.MemoryCache{}, c)
	require.NoError(t, c.Close())

	c, err = OpenCache(config.CacheConfig{Backend: "badger", Path: t.TempDir()}, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &cache.BadgerCache{}, c)
	require.NoError(t, c.Close())

	_, err = OpenCache(config.CacheConfig{Backend: "redis"}, quietLogger())
	assert.Error(t, err)
}

func TestService_ServesPrecomputedSnapshotFile(t *testing.T) {
	ctx := context.Background()
	recordsCfg := config.RecordsConfig{Backend: "json", DataDir: writeDataDir(t)}
	source, _ := RecordSourceFromConfig(recordsCfg, quietLogger())

	reader, err := source(ctx)
	require.NoError(t, err)
	catalog, err := records.LoadCatalog(ctx, reader)
	require.NoError(t, err)
	built, err := BuildSnapshot(ctx, reader, catalog, 2, quietLogger())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "graph_snapshot.json.zst")
	require.NoError(t, snapshot.WriteFile(path, built.Snapshot))

	svc := NewService(source, nil, ServiceConfig{
		SnapshotLoader: SnapshotLoaderFromConfig(config.SnapshotConfig{Source: "file", Path: path}),
		Logger:         quietLogger(),
	})
	require.NoError(t, svc.Start(ctx))
	assert.Equal(t, "file:"+path, svc.Status().Snapshot.Source)
	assert.Nil(t, svc.Status().LastBuild)

	res, err := svc.FindPaths(ctx, pathfind.Query{DatasetID: "d1", Start: "AVAL", End: "AVAR", Weighted: true})
	require.NoError(t, err)
	require.Len(t, res.Paths, 1)
	assert.Equal(t, []string{"AVAL", "AVAR"}, res.Paths[0].Path)
}

func TestSnapshotLoaderFromConfig_Records(t *testing.T) {
	assert.Nil(t, SnapshotLoaderFromConfig(config.SnapshotConfig{Source: "records"}))
}
