// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command connectomectl is the operator CLI for the connectome service.
//
// It imports initial data, precomputes graph snapshots, warms the result
// cache and runs queries offline against the configured record store.
//
// Usage:
//
//	connectomectl import --data-dir ./data --neo4j
//	connectomectl precompute --out ./data/graph_snapshot.json.zst
//	connectomectl warm-cache
//	connectomectl edges --datasets witvliet_2020_8 --classes AVA,RME --connected
//	connectomectl path --dataset witvliet_2020_8 --start AVAL --end RMED
//	connectomectl reload --datasets witvliet_2020_8
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/AleutianConnectome/pkg/ux"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		ux.NewPrinter(os.Stderr).Error(err.Error())
		stop()
		os.Exit(1)
	}
}
