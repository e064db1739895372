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

import "github.com/AleutianAI/AleutianConnectome/services/connectome/records"

// labeler resolves neurons to display labels for one request.
type labeler struct {
	neurons        map[string]struct{}
	classes        map[string]struct{}
	splitClasses   map[string]struct{}
	showIndividual bool
	cache          map[string]string
}

// newLabeler indexes the requested names. Names unknown to the catalog are
// dropped.
func newLabeler(cat *records.Catalog, req Request) *labeler {
	l := &labeler{
		neurons:        make(map[string]struct{}, len(req.Neurons)),
		classes:        make(map[string]struct{}, len(req.Classes)),
		splitClasses:   make(map[string]struct{}),
		showIndividual: req.ShowIndividualNeuron,
		cache:          make(map[string]string),
	}
	for _, name := range req.Neurons {
		n, ok := cat.Neuron(name)
		if !ok {
			continue
		}
		l.neurons[name] = struct{}{}
		l.splitClasses[n.Class] = struct{}{}
	}
	for _, name := range req.Classes {
		if _, ok := cat.Class(name); ok {
			l.classes[name] = struct{}{}
		}
	}
	return l
}

// member reports whether n was requested by name or by class.
func (l *labeler) member(n records.Neuron) bool {
	return has(l.neurons, n.Name) || has(l.classes, n.Class)
}

// label returns the display label of n. First match wins:
//
//  1. n was requested by name: its name
//  2. its class was requested: the class
//  3. individual neurons shown: its name
//  4. another member of its class was requested: its name
//  5. otherwise the class
func (l *labeler) label(n records.Neuron) string {
	if cached, ok := l.cache[n.Name]; ok {
		return cached
	}
	var label string
	switch {
	case has(l.neurons, n.Name):
		label = n.Name
	case has(l.classes, n.Class):
		label = n.Class
	case l.showIndividual, has(l.splitClasses, n.Class):
		label = n.Name
	default:
		label = n.Class
	}
	l.cache[n.Name] = label
	return label
}

// selectors lists one selector per requested neuron and class, neurons
// first, each in sorted order.
func (l *labeler) selectors() []records.Selector {
	out := make([]records.Selector, 0, len(l.neurons)+len(l.classes))
	for _, name := range sortedSet(l.neurons) {
		out = append(out, records.Selector{Kind: records.SelectNeuron, Name: name})
	}
	for _, name := range sortedSet(l.classes) {
		out = append(out, records.Selector{Kind: records.SelectClass, Name: name})
	}
	return out
}

// requested returns every known requested neuron and class name.
func (l *labeler) requested() []string {
	out := make([]string, 0, len(l.neurons)+len(l.classes))
	out = append(out, sortedSet(l.neurons)...)
	return append(out, sortedSet(l.classes)...)
}

func has(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
