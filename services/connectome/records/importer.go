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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ImportPaths locates the source files of an import, relative to a data root.
type ImportPaths struct {
	// Datasets is the dataset metadata list.
	Datasets string

	// Neurons is the neuron list.
	Neurons string

	// ClassSplit holds the per-class left/right and dorsal/ventral split flags.
	ClassSplit string

	// ConnectomeDir holds one synapse file per dataset, named "<dataset_id>.json".
	ConnectomeDir string
}

// DefaultImportPaths returns the standard initial-data layout.
func DefaultImportPaths() ImportPaths {
	return ImportPaths{
		Datasets:      filepath.Join("connectome", "witvliet_datasets.json"),
		Neurons:       filepath.Join("connectome", "witvliet_neurons.json"),
		ClassSplit:    filepath.Join("config", "neuron_class_split.json"),
		ConnectomeDir: filepath.Join("connectome", "connectome"),
	}
}

// ImportWarning is a data-integrity problem that caused a record to be
// skipped or imported with incomplete attributes.
type ImportWarning struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// ImportReport summarizes an import.
type ImportReport struct {
	Datasets int             `json:"datasets"`
	Neurons  int             `json:"neurons"`
	Synapses int             `json:"synapses"`
	Skipped  int             `json:"skipped"`
	Warnings []ImportWarning `json:"warnings,omitempty"`
}

func (r *ImportReport) warn(file, format string, args ...any) {
	r.Warnings = append(r.Warnings, ImportWarning{File: file, Message: fmt.Sprintf(format, args...)})
}

// Importer loads the JSON initial-data layout into a MemoryStore.
//
// # Description
//
// Import order is datasets, then neuron classes and neurons, then one
// synapse file per dataset. Neuron left/right and dorsal/ventral tags are
// derived from the name suffix relative to the class name. Synapse type
// code 0 is chemical and 2 is electrical; the count of a record is the
// sum of its per-section contact list. Records that cannot be resolved
// are skipped and reported as warnings.
//
// # Thread Safety
//
// An Importer may be reused but not shared across concurrent Import calls.
type Importer struct {
	root   string
	paths  ImportPaths
	logger *slog.Logger
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithImportPaths overrides the file layout.
func WithImportPaths(paths ImportPaths) ImporterOption {
	return func(i *Importer) { i.paths = paths }
}

// WithImportLogger sets the logger. Default: slog.Default().
func WithImportLogger(logger *slog.Logger) ImporterOption {
	return func(i *Importer) { i.logger = logger }
}

// NewImporter creates an importer reading below root.
func NewImporter(root string, opts ...ImporterOption) *Importer {
	i := &Importer{
		root:   root,
		paths:  DefaultImportPaths(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

type datasetFile struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Time        float64 `json:"time"`
	VisualTime  float64 `json:"visualTime"`
	Description string  `json:"description"`
	Citation    string  `json:"citation"`
}

type neuronFile struct {
	Name   string `json:"name"`
	Class  string `json:"classes"`
	InHead int    `json:"inhead"`
	InTail int    `json:"intail"`
	NT     string `json:"nt"`
	Emb    int    `json:"emb"`
	Typ    string `json:"typ"`
}

type classSplitFile struct {
	Others map[string][]*bool `json:"others"`
	Manual map[string][]*bool `json:"manual"`
}

type synapseFile struct {
	Pre  string `json:"pre"`
	Post string `json:"post"`
	Typ  int    `json:"typ"`
	Syn  []int  `json:"syn"`
}

// Import reads every source file and returns the filled store.
//
// Description:
//
//	Missing or unparsable metadata files abort the import with an
//	*ImportError. Individual bad records are skipped and listed in the
//	report. Cancellation is checked between files.
//
// Inputs:
//
//	ctx - Context for cancellation.
//
// Outputs:
//
//	*MemoryStore - The imported records.
//	*ImportReport - Counts and warnings. Non-nil whenever the store is.
//	error - Non-nil if a metadata file cannot be read or ctx is done.
func (i *Importer) Import(ctx context.Context) (*MemoryStore, *ImportReport, error) {
	store := NewMemoryStore()
	report := &ImportReport{}

	if err := i.importDatasets(store, report); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if err := i.importNeurons(store, report); err != nil {
		return nil, nil, err
	}
	if err := i.importSynapses(ctx, store, report); err != nil {
		return nil, nil, err
	}

	i.logger.Info("connectome import complete",
		slog.Int("datasets", report.Datasets),
		slog.Int("neurons", report.Neurons),
		slog.Int("synapses", report.Synapses),
		slog.Int("skipped", report.Skipped),
		slog.Int("warnings", len(report.Warnings)))
	return store, report, nil
}

func (i *Importer) readJSON(rel string, v any) (string, error) {
	path := filepath.Join(i.root, rel)
	data, err := os.ReadFile(path)
	if err != nil {
		return path, &ImportError{File: path, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return path, &ImportError{File: path, Err: err}
	}
	return path, nil
}

func (i *Importer) importDatasets(store *MemoryStore, report *ImportReport) error {
	var datasets []datasetFile
	if _, err := i.readJSON(i.paths.Datasets, &datasets); err != nil {
		return err
	}
	for _, d := range datasets {
		store.AddDataset(Dataset{
			ID:               d.ID,
			Name:             d.Name,
			Type:             d.Type,
			AnimalTime:       d.Time,
			AnimalVisualTime: d.VisualTime,
			Description:      d.Description,
			Citation:         d.Citation,
		})
		report.Datasets++
	}
	return nil
}

func (i *Importer) importNeurons(store *MemoryStore, report *ImportReport) error {
	var neurons []neuronFile
	path, err := i.readJSON(i.paths.Neurons, &neurons)
	if err != nil {
		return err
	}
	var split classSplitFile
	if _, err := i.readJSON(i.paths.ClassSplit, &split); err != nil {
		return err
	}
	splits := make(map[string][]*bool, len(split.Others)+len(split.Manual))
	for class, flags := range split.Others {
		splits[class] = flags
	}
	for class, flags := range split.Manual {
		splits[class] = flags
	}

	for _, n := range neurons {
		flags, ok := splits[n.Class]
		if !ok {
			report.warn(path, "%s: %v", n.Name, fmt.Errorf("%w: %s", ErrMissingSplitConfig, n.Class))
			report.Skipped++
			continue
		}
		cls := classFromSplit(n.Class, flags)
		store.AddClass(cls)

		lr, dv, problems := deriveLocation(n.Name, cls)
		for _, p := range problems {
			report.warn(path, "%s", p)
		}

		store.AddNeuron(Neuron{
			Name:                 n.Name,
			Class:                n.Class,
			InHead:               n.InHead == 1,
			InTail:               n.InTail == 1,
			IsEmbryonic:          n.Emb == 1,
			NeurotransmitterType: n.NT,
			CellType:             n.Typ,
			LR:                   lr,
			DV:                   dv,
		})
		report.Neurons++
	}
	return nil
}

func (i *Importer) importSynapses(ctx context.Context, store *MemoryStore, report *ImportReport) error {
	dir := filepath.Join(i.root, i.paths.ConnectomeDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return &ImportError{File: dir, Err: err}
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		datasetID := strings.TrimSuffix(name, ".json")
		var syns []synapseFile
		path, err := i.readJSON(filepath.Join(i.paths.ConnectomeDir, name), &syns)
		if err != nil {
			return err
		}

		added := 0
		for _, s := range syns {
			typ, ok := synapseTypeFromCode(s.Typ)
			if !ok {
				report.warn(path, "%s: %s -> %s: %v code %d", datasetID, s.Pre, s.Post, ErrUnknownSynapseType, s.Typ)
				report.Skipped++
				continue
			}
			count := 0
			for _, c := range s.Syn {
				count += c
			}
			err := store.AddSynapse(Synapse{Dataset: datasetID, Pre: s.Pre, Post: s.Post, Type: typ, Count: count})
			if err != nil {
				report.warn(path, "%s: %s -> %s: %v", datasetID, s.Pre, s.Post, err)
				report.Skipped++
				if errors.Is(err, ErrDatasetNotFound) {
					break
				}
				continue
			}
			added++
		}
		report.Synapses += added
		i.logger.Debug("imported dataset synapses",
			slog.String("dataset_id", datasetID),
			slog.Int("synapses", added))
	}
	return nil
}

func synapseTypeFromCode(code int) (SynapseType, bool) {
	switch code {
	case 0:
		return Chemical, true
	case 2:
		return Electrical, true
	default:
		return "", false
	}
}

func classFromSplit(name string, flags []*bool) NeuronClass {
	cls := NeuronClass{Name: name}
	at := func(i int) *bool {
		if i < len(flags) {
			return flags[i]
		}
		return nil
	}
	cls.SplitLR, cls.SplitDV, cls.SplitDLR, cls.SplitVLR = at(0), at(1), at(2), at(3)
	return cls
}

// suffixRule maps a neuron-name suffix to its location tags and the split
// flag that must be set for the class.
type suffixRule struct {
	lr, dv string
	flag   string
}

var suffixRules = map[string]suffixRule{
	"D":  {dv: "d", flag: "split_dv"},
	"V":  {dv: "v", flag: "split_dv"},
	"L":  {lr: "l", flag: "split_lr"},
	"R":  {lr: "r", flag: "split_lr"},
	"DL": {lr: "l", dv: "d", flag: "split_d_lr"},
	"DR": {lr: "r", dv: "d", flag: "split_d_lr"},
	"VL": {lr: "l", dv: "v", flag: "split_v_lr"},
	"VR": {lr: "r", dv: "v", flag: "split_v_lr"},
}

func splitFlag(cls NeuronClass, flag string) *bool {
	switch flag {
	case "split_lr":
		return cls.SplitLR
	case "split_dv":
		return cls.SplitDV
	case "split_d_lr":
		return cls.SplitDLR
	case "split_v_lr":
		return cls.SplitVLR
	}
	return nil
}

// deriveLocation returns the lr/dv tags of a neuron and any split-config
// inconsistencies found while deriving them.
func deriveLocation(name string, cls NeuronClass) (lr, dv string, problems []string) {
	suffix, prefixed := strings.CutPrefix(name, cls.Name)
	if rule, ok := suffixRules[suffix]; ok && prefixed {
		if splitFlag(cls, rule.flag) == nil {
			problems = append(problems, fmt.Sprintf("%s %s but %s is unset", name, suffix, rule.flag))
		}
		return rule.lr, rule.dv, problems
	}

	switch {
	case strings.HasPrefix(cls.Name, "BWM"):
		for _, flag := range []string{"split_v_lr", "split_d_lr", "split_dv"} {
			if splitFlag(cls, flag) == nil {
				problems = append(problems, fmt.Sprintf("%s error in %s", name, flag))
			}
		}
		if len(name) < 6 {
			problems = append(problems, fmt.Sprintf("%s is too short for dv and lr extraction", name))
			return "", "", problems
		}
		return strings.ToLower(name[5:6]), strings.ToLower(name[4:5]), problems

	case cls.Name == "g1":
		if !strings.HasPrefix(name, "g1A") {
			return "", "", problems
		}
		if cls.SplitLR == nil {
			problems = append(problems, fmt.Sprintf("%s but split_lr is unset", name))
		}
		if len(name) < 4 {
			problems = append(problems, fmt.Sprintf("%s is too short for lr extraction", name))
			return "", "", problems
		}
		return strings.ToLower(name[3:4]), "", problems

	case cls.Name == "DefecationMuscles":
		if !strings.HasPrefix(name, "intmu") {
			return "", "", problems
		}
		if cls.SplitLR == nil {
			problems = append(problems, fmt.Sprintf("%s but split_lr is unset", name))
		}
		if len(name) < 6 {
			problems = append(problems, fmt.Sprintf("%s is too short for lr extraction", name))
			return "", "", problems
		}
		return strings.ToLower(name[5:6]), "", problems
	}

	if cls.SplitLR != nil || cls.SplitDV != nil || cls.SplitDLR != nil || cls.SplitVLR != nil {
		problems = append(problems, fmt.Sprintf("%s %s: split flags should all be unset", name, suffix))
	}
	return "", "", problems
}
