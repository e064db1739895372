// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package records supplies the raw connectome entities: neurons, neuron
// classes, datasets and pre-merged synapse records.
//
// # Backends
//
//   - MemoryStore: in-process store filled by the JSON Importer
//   - Neo4jStore: graph database backend, also the import target
//
// Both implement Reader. The rest of the service reads through Reader and
// the immutable Catalog built from it.
//
// # Thread Safety
//
// MemoryStore is safe for concurrent reads once filling is complete.
// Catalog is immutable and safe for concurrent use.
package records

import (
	"errors"
	"fmt"
)

// Sentinel errors for record access.
var (
	// ErrDatasetNotFound is returned when a dataset id is unknown.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrUnknownSynapseType is returned for synapse types other than chemical/electrical.
	ErrUnknownSynapseType = errors.New("unknown synapse type")

	// ErrUnknownNeuron is returned when a synapse references a neuron that does not exist.
	ErrUnknownNeuron = errors.New("unknown neuron")

	// ErrInvalidCount is returned for non-positive synapse counts.
	ErrInvalidCount = errors.New("synapse count must be positive")

	// ErrMissingSplitConfig is returned when a neuron class has no split entry.
	ErrMissingSplitConfig = errors.New("neuron class missing split configuration")

	// ErrStoreClosed is returned after a store has been closed.
	ErrStoreClosed = errors.New("record store closed")
)

// ImportError reports a file that could not be read or parsed during import.
type ImportError struct {
	// File is the path of the failing file.
	File string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ImportError) Error() string {
	return fmt.Sprintf("import %s: %v", e.File, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ImportError) Unwrap() error {
	return e.Err
}
