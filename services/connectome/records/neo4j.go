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
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Graph model:
//
//	(:Dataset {id, name, type, ...})-[:HAS_NEURON]->(:Neuron)
//	(:Dataset)-[:HAS_CLASS]->(:NeuronClass)
//	(:Neuron {name, class, ...})-[:MEMBER_OF]->(:NeuronClass {name, split_*})
//	(:Neuron)-[:SYNAPSE {dataset, type, count}]->(:Neuron)
const (
	cypherDatasetExists = `MATCH (d:Dataset {id: $id}) RETURN count(d) AS n`

	cypherDatasets = `MATCH (d:Dataset)
OPTIONAL MATCH (d)-[:HAS_NEURON]->(n:Neuron)
WITH d, collect(DISTINCT n.name) AS neurons
OPTIONAL MATCH (d)-[:HAS_CLASS]->(c:NeuronClass)
RETURN d.id AS id, d.name AS name, d.type AS type, d.animal_time AS animal_time,
       d.animal_visual_time AS animal_visual_time, d.description AS description,
       d.citation AS citation, neurons, collect(DISTINCT c.name) AS classes
ORDER BY id`

	cypherNeurons = `MATCH (n:Neuron)
RETURN n.name AS name, n.class AS class, n.in_head AS in_head, n.in_tail AS in_tail,
       n.is_embryonic AS is_embryonic, n.cell_type AS cell_type,
       n.neurotransmitter_type AS neurotransmitter_type, n.lr AS lr, n.dv AS dv
ORDER BY name`

	cypherClasses = `MATCH (c:NeuronClass)
RETURN c.name AS name, c.split_lr AS split_lr, c.split_dv AS split_dv,
       c.split_d_lr AS split_d_lr, c.split_v_lr AS split_v_lr
ORDER BY name`

	cypherSynapses = `MATCH (a:Neuron)-[s:SYNAPSE {dataset: $dataset}]->(b:Neuron)
RETURN a.name AS pre, b.name AS post, s.type AS type, s.count AS count`

	cypherSynapsesByNeuron = `MATCH (a:Neuron)-[s:SYNAPSE {dataset: $dataset}]->(b:Neuron)
WHERE a.name = $name OR b.name = $name
RETURN a.name AS pre, b.name AS post, s.type AS type, s.count AS count`

	cypherSynapsesByClass = `MATCH (a:Neuron)-[s:SYNAPSE {dataset: $dataset}]->(b:Neuron)
WHERE a.class = $name OR b.class = $name
RETURN a.name AS pre, b.name AS post, s.type AS type, s.count AS count`

	cypherMergeDatasets = `UNWIND $rows AS row
MERGE (d:Dataset {id: row.id})
SET d += row`

	cypherMergeClasses = `UNWIND $rows AS row
MERGE (c:NeuronClass {name: row.name})
SET c.split_lr = row.split_lr, c.split_dv = row.split_dv,
    c.split_d_lr = row.split_d_lr, c.split_v_lr = row.split_v_lr`

	cypherMergeNeurons = `UNWIND $rows AS row
MERGE (n:Neuron {name: row.name})
SET n += row
WITH n, row
MATCH (c:NeuronClass {name: row.class})
MERGE (n)-[:MEMBER_OF]->(c)`

	cypherClearDataset = `MATCH (:Neuron)-[s:SYNAPSE {dataset: $dataset}]->(:Neuron) DELETE s
WITH count(*) AS removed
MATCH (d:Dataset {id: $dataset})
OPTIONAL MATCH (d)-[r:HAS_NEURON|HAS_CLASS]->()
DELETE r`

	cypherCreateSynapses = `UNWIND $rows AS row
MATCH (a:Neuron {name: row.pre}), (b:Neuron {name: row.post})
CREATE (a)-[:SYNAPSE {dataset: $dataset, type: row.type, count: row.count}]->(b)`

	cypherLinkAvailable = `MATCH (d:Dataset {id: $dataset})
UNWIND $neurons AS neuronName
MATCH (n:Neuron {name: neuronName})
MERGE (d)-[:HAS_NEURON]->(n)
WITH DISTINCT d
UNWIND $classes AS className
MATCH (c:NeuronClass {name: className})
MERGE (d)-[:HAS_CLASS]->(c)`
)

// neo4jResult is the minimal interface needed from a neo4j result.
type neo4jResult interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// runFunc executes one statement inside a write transaction.
type runFunc func(cypher string, params map[string]any) error

// neo4jSession is the minimal interface needed from a neo4j session.
type neo4jSession interface {
	Run(ctx context.Context, cypher string, params map[string]any) (neo4jResult, error)
	ExecuteWrite(ctx context.Context, work func(run runFunc) error) error
	Close(ctx context.Context) error
}

type sessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (neo4jResult, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *sessionAdapter) ExecuteWrite(ctx context.Context, work func(run runFunc) error) error {
	_, err := a.sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, work(func(cypher string, params map[string]any) error {
			res, err := tx.Run(ctx, cypher, params)
			if err != nil {
				return err
			}
			_, err = res.Consume(ctx)
			return err
		})
	})
	return err
}

func (a *sessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

// Neo4jConfig holds connection settings for Neo4jStore.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string

	// Database selects a named database. Empty uses the server default.
	Database string

	// BatchSize bounds the rows sent per UNWIND statement. Default: 500.
	BatchSize int
}

// Neo4jStore is a Reader backed by a Neo4j database.
//
// # Description
//
// Reads map one Cypher query per Reader method. Save writes a MemoryStore
// into the database, replacing the synapses and available sets of each
// dataset it contains.
//
// # Thread Safety
//
// Safe for concurrent use. Each call opens its own session.
type Neo4jStore struct {
	driver     neo4j.DriverWithContext
	database   string
	batchSize  int
	logger     *slog.Logger
	closed     atomic.Bool
	newSession func(ctx context.Context) neo4jSession
}

// OpenNeo4jStore connects to Neo4j and verifies connectivity.
//
// Outputs:
//
//	*Neo4jStore - The store. Call Close when done.
//	error - Non-nil if the driver cannot be created or the server is unreachable.
func OpenNeo4jStore(ctx context.Context, cfg Neo4jConfig, logger *slog.Logger) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity at %s: %w", cfg.URI, err)
	}
	return NewNeo4jStore(driver, cfg, logger), nil
}

// NewNeo4jStore wraps an existing driver.
func NewNeo4jStore(driver neo4j.DriverWithContext, cfg Neo4jConfig, logger *slog.Logger) *Neo4jStore {
	if logger == nil {
		logger = slog.Default()
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 500
	}
	return &Neo4jStore{
		driver:    driver,
		database:  cfg.Database,
		batchSize: batch,
		logger:    logger,
	}
}

// Close closes the underlying driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) || s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

func (s *Neo4jStore) session(ctx context.Context) neo4jSession {
	if s.newSession != nil {
		return s.newSession(ctx)
	}
	return &sessionAdapter{sess: s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})}
}

// query runs a read statement and maps every record.
func query[T any](ctx context.Context, s *Neo4jStore, cypher string, params map[string]any, mapRecord func(*neo4j.Record) (T, error)) ([]T, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	sess := s.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	var out []T
	for res.Next(ctx) {
		item, err := mapRecord(res.Record())
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Datasets implements Reader.
func (s *Neo4jStore) Datasets(ctx context.Context) ([]Dataset, error) {
	return query(ctx, s, cypherDatasets, nil, datasetFromRecord)
}

// Neurons implements Reader.
func (s *Neo4jStore) Neurons(ctx context.Context) ([]Neuron, error) {
	return query(ctx, s, cypherNeurons, nil, neuronFromRecord)
}

// Classes implements Reader.
func (s *Neo4jStore) Classes(ctx context.Context) ([]NeuronClass, error) {
	return query(ctx, s, cypherClasses, nil, classFromRecord)
}

// Synapses implements Reader.
func (s *Neo4jStore) Synapses(ctx context.Context, datasetID string) ([]Synapse, error) {
	if err := s.requireDataset(ctx, datasetID); err != nil {
		return nil, err
	}
	return query(ctx, s, cypherSynapses, map[string]any{"dataset": datasetID}, synapseMapper(datasetID))
}

// SynapsesTouching implements Reader.
func (s *Neo4jStore) SynapsesTouching(ctx context.Context, datasetID string, sel Selector) ([]Synapse, error) {
	var cypher string
	switch sel.Kind {
	case SelectNeuron:
		cypher = cypherSynapsesByNeuron
	case SelectClass:
		cypher = cypherSynapsesByClass
	default:
		return nil, fmt.Errorf("unknown selector kind %q", sel.Kind)
	}
	if err := s.requireDataset(ctx, datasetID); err != nil {
		return nil, err
	}
	params := map[string]any{"dataset": datasetID, "name": sel.Name}
	return query(ctx, s, cypher, params, synapseMapper(datasetID))
}

func (s *Neo4jStore) requireDataset(ctx context.Context, datasetID string) error {
	counts, err := query(ctx, s, cypherDatasetExists, map[string]any{"id": datasetID}, func(r *neo4j.Record) (int, error) {
		v, _ := r.Get("n")
		return asInt(v), nil
	})
	if err != nil {
		return err
	}
	if len(counts) == 0 || counts[0] == 0 {
		return fmt.Errorf("%w: %s", ErrDatasetNotFound, datasetID)
	}
	return nil
}

// Save writes every entity of src into the database.
//
// Description:
//
//	Datasets, classes and neurons are merged by identity. For each dataset
//	in src, existing synapses and available-set links are removed and
//	rewritten inside one write transaction, so readers never observe a
//	half-imported dataset.
//
// Outputs:
//
//	error - Non-nil if any write fails. Datasets already written stay written.
func (s *Neo4jStore) Save(ctx context.Context, src Reader) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	datasets, err := src.Datasets(ctx)
	if err != nil {
		return fmt.Errorf("read datasets: %w", err)
	}
	classes, err := src.Classes(ctx)
	if err != nil {
		return fmt.Errorf("read classes: %w", err)
	}
	neurons, err := src.Neurons(ctx)
	if err != nil {
		return fmt.Errorf("read neurons: %w", err)
	}

	sess := s.session(ctx)
	defer sess.Close(ctx)

	err = sess.ExecuteWrite(ctx, func(run runFunc) error {
		if err := s.runBatches(run, cypherMergeDatasets, nil, datasetRows(datasets)); err != nil {
			return fmt.Errorf("merge datasets: %w", err)
		}
		if err := s.runBatches(run, cypherMergeClasses, nil, classRows(classes)); err != nil {
			return fmt.Errorf("merge classes: %w", err)
		}
		if err := s.runBatches(run, cypherMergeNeurons, nil, neuronRows(neurons)); err != nil {
			return fmt.Errorf("merge neurons: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, ds := range datasets {
		if err := ctx.Err(); err != nil {
			return err
		}
		syns, err := src.Synapses(ctx, ds.ID)
		if err != nil {
			return fmt.Errorf("read synapses of %s: %w", ds.ID, err)
		}
		params := map[string]any{"dataset": ds.ID}
		err = sess.ExecuteWrite(ctx, func(run runFunc) error {
			if err := run(cypherClearDataset, params); err != nil {
				return err
			}
			if err := s.runBatches(run, cypherCreateSynapses, params, synapseRows(syns)); err != nil {
				return err
			}
			return run(cypherLinkAvailable, map[string]any{
				"dataset": ds.ID,
				"neurons": ds.AvailableNeurons,
				"classes": ds.AvailableClasses,
			})
		})
		if err != nil {
			return fmt.Errorf("write dataset %s: %w", ds.ID, err)
		}
		s.logger.Info("dataset written to neo4j",
			slog.String("dataset_id", ds.ID),
			slog.Int("synapses", len(syns)))
	}
	return nil
}

func (s *Neo4jStore) runBatches(run runFunc, cypher string, base map[string]any, rows []map[string]any) error {
	for start := 0; start < len(rows); start += s.batchSize {
		end := min(start+s.batchSize, len(rows))
		params := make(map[string]any, len(base)+1)
		for k, v := range base {
			params[k] = v
		}
		params["rows"] = rows[start:end]
		if err := run(cypher, params); err != nil {
			return err
		}
	}
	return nil
}

func datasetRows(in []Dataset) []map[string]any {
	rows := make([]map[string]any, 0, len(in))
	for _, d := range in {
		rows = append(rows, map[string]any{
			"id":                 d.ID,
			"name":               d.Name,
			"type":               d.Type,
			"animal_time":        d.AnimalTime,
			"animal_visual_time": d.AnimalVisualTime,
			"description":        d.Description,
			"citation":           d.Citation,
		})
	}
	return rows
}

func classRows(in []NeuronClass) []map[string]any {
	rows := make([]map[string]any, 0, len(in))
	for _, c := range in {
		rows = append(rows, map[string]any{
			"name":       c.Name,
			"split_lr":   boolPtrValue(c.SplitLR),
			"split_dv":   boolPtrValue(c.SplitDV),
			"split_d_lr": boolPtrValue(c.SplitDLR),
			"split_v_lr": boolPtrValue(c.SplitVLR),
		})
	}
	return rows
}

func neuronRows(in []Neuron) []map[string]any {
	rows := make([]map[string]any, 0, len(in))
	for _, n := range in {
		rows = append(rows, map[string]any{
			"name":                  n.Name,
			"class":                 n.Class,
			"in_head":               n.InHead,
			"in_tail":               n.InTail,
			"is_embryonic":          n.IsEmbryonic,
			"cell_type":             n.CellType,
			"neurotransmitter_type": n.NeurotransmitterType,
			"lr":                    n.LR,
			"dv":                    n.DV,
		})
	}
	return rows
}

func synapseRows(in []Synapse) []map[string]any {
	rows := make([]map[string]any, 0, len(in))
	for _, s := range in {
		rows = append(rows, map[string]any{
			"pre":   s.Pre,
			"post":  s.Post,
			"type":  string(s.Type),
			"count": int64(s.Count),
		})
	}
	return rows
}

func datasetFromRecord(r *neo4j.Record) (Dataset, error) {
	m := recordMap(r)
	id := asString(m["id"])
	if id == "" {
		return Dataset{}, errors.New("dataset record without id")
	}
	return Dataset{
		ID:               id,
		Name:             asString(m["name"]),
		Type:             asString(m["type"]),
		AnimalTime:       asFloat(m["animal_time"]),
		AnimalVisualTime: asFloat(m["animal_visual_time"]),
		Description:      asString(m["description"]),
		Citation:         asString(m["citation"]),
		AvailableNeurons: asSortedStrings(m["neurons"]),
		AvailableClasses: asSortedStrings(m["classes"]),
	}, nil
}

func neuronFromRecord(r *neo4j.Record) (Neuron, error) {
	m := recordMap(r)
	return Neuron{
		Name:                 asString(m["name"]),
		Class:                asString(m["class"]),
		InHead:               asBool(m["in_head"]),
		InTail:               asBool(m["in_tail"]),
		IsEmbryonic:          asBool(m["is_embryonic"]),
		CellType:             asString(m["cell_type"]),
		NeurotransmitterType: asString(m["neurotransmitter_type"]),
		LR:                   asString(m["lr"]),
		DV:                   asString(m["dv"]),
	}, nil
}

func classFromRecord(r *neo4j.Record) (NeuronClass, error) {
	m := recordMap(r)
	return NeuronClass{
		Name:     asString(m["name"]),
		SplitLR:  asBoolPtr(m["split_lr"]),
		SplitDV:  asBoolPtr(m["split_dv"]),
		SplitDLR: asBoolPtr(m["split_d_lr"]),
		SplitVLR: asBoolPtr(m["split_v_lr"]),
	}, nil
}

func synapseMapper(datasetID string) func(*neo4j.Record) (Synapse, error) {
	return func(r *neo4j.Record) (Synapse, error) {
		m := recordMap(r)
		typ, err := ParseSynapseType(asString(m["type"]))
		if err != nil {
			return Synapse{}, err
		}
		return Synapse{
			Dataset: datasetID,
			Pre:     asString(m["pre"]),
			Post:    asString(m["post"]),
			Type:    typ,
			Count:   asInt(m["count"]),
		}, nil
	}
}

var _ Reader = (*Neo4jStore)(nil)
