// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianConnectome/pkg/ux"
	"github.com/AleutianAI/AleutianConnectome/services/connectome"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/aggregate"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/events"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/pathfind"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/records"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/snapshot"
)

// errNoEventsURL is returned when publishing without events.url.
var errNoEventsURL = errors.New("events.url is not configured")

// --- import ---

func newImportCmd(opts *globalOptions) *cobra.Command {
	var (
		toNeo4j bool
		publish bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import the JSON initial data and report skipped records",
		Long: `Import reads datasets, neurons, class split flags and per-dataset
synapse files from the data directory.

With --neo4j the imported records replace the matching datasets in the
configured Neo4j database. With --publish a reimport event is sent so
running servers reload.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			store, report, err := records.NewImporter(e.cfg.Records.DataDir,
				records.WithImportLogger(e.logger)).Import(ctx)
			if err != nil {
				return err
			}

			if toNeo4j {
				neo, err := records.OpenNeo4jStore(ctx, e.cfg.Records.Neo4j.Store(), e.logger)
				if err != nil {
					return err
				}
				defer neo.Close(context.Background())
				if err := neo.Save(ctx, store); err != nil {
					return fmt.Errorf("save to neo4j: %w", err)
				}
			}

			if publish {
				datasets, err := store.Datasets(ctx)
				if err != nil {
					return err
				}
				ids := make([]string, 0, len(datasets))
				for _, ds := range datasets {
					ids = append(ids, ds.ID)
				}
				if err := e.publish(ctx, ids, "import "+e.cfg.Records.DataDir); err != nil {
					return err
				}
			}

			return e.print(report, func(p *ux.Printer) {
				p.Success("Imported " + e.cfg.Records.DataDir)
				p.Summary(
					ux.Count{Label: "datasets", Value: report.Datasets},
					ux.Count{Label: "neurons", Value: report.Neurons},
					ux.Count{Label: "synapses", Value: report.Synapses},
					ux.Count{Label: "skipped", Value: report.Skipped},
				)
				for _, warn := range report.Warnings {
					p.Warning(warn.File + ": " + warn.Message)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&toNeo4j, "neo4j", false, "Write the imported records into Neo4j")
	cmd.Flags().BoolVar(&publish, "publish", false, "Publish a reimport event after importing")
	return cmd
}

// --- precompute ---

type precomputeResult struct {
	Path     string `json:"path"`
	Datasets int    `json:"datasets"`
	Edges    int    `json:"edges"`
	Skipped  int    `json:"skipped_synapses"`
}

func newPrecomputeCmd(opts *globalOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "precompute",
		Short: "Build every dataset graph and write a snapshot file",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if out == "" {
				out = e.cfg.Snapshot.Path
			}

			source, closeRecords := connectome.RecordSourceFromConfig(e.cfg.Records, e.logger)
			defer closeRecords(context.Background())
			reader, err := source(ctx)
			if err != nil {
				return err
			}
			catalog, err := records.LoadCatalog(ctx, reader)
			if err != nil {
				return err
			}
			built, err := connectome.BuildSnapshot(ctx, reader, catalog, e.cfg.Server.Workers, e.logger)
			if err != nil {
				return err
			}
			if err := snapshot.WriteFile(out, built.Snapshot); err != nil {
				return err
			}

			res := precomputeResult{
				Path:     out,
				Datasets: built.Stats.Datasets,
				Edges:    built.Stats.Edges,
				Skipped:  built.Stats.SkippedSynapses,
			}
			return e.print(res, func(p *ux.Printer) {
				p.Success("Wrote " + res.Path)
				p.Summary(
					ux.Count{Label: "datasets", Value: res.Datasets},
					ux.Count{Label: "edges", Value: res.Edges},
					ux.Count{Label: "synapses skipped", Value: res.Skipped},
				)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Snapshot path (default snapshot.path)")
	return cmd
}

// --- warm-cache ---

func newWarmCacheCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "warm-cache",
		Short: "Fill the result cache with all-neuron and all-class aggregations",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			svc, release, err := e.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			res, err := svc.WarmCache(cmd.Context())
			if err != nil {
				return err
			}
			return e.print(res, func(p *ux.Printer) {
				p.Success(fmt.Sprintf("Cache warmed in %dms", res.DurationMS))
				p.Summary(
					ux.Count{Label: "datasets", Value: res.Datasets},
					ux.Count{Label: "neurons", Value: res.Neurons},
					ux.Count{Label: "classes", Value: res.Classes},
					ux.Count{Label: "edges", Value: res.Synapses},
				)
			})
		},
	}
}

// --- datasets ---

func newDatasetsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List the datasets in the record store",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			source, closeRecords := connectome.RecordSourceFromConfig(e.cfg.Records, e.logger)
			defer closeRecords(context.Background())
			reader, err := source(cmd.Context())
			if err != nil {
				return err
			}
			datasets, err := reader.Datasets(cmd.Context())
			if err != nil {
				return err
			}
			return e.print(datasets, func(p *ux.Printer) {
				rows := make([][]string, 0, len(datasets))
				for _, ds := range datasets {
					rows = append(rows, []string{
						ds.ID, ds.Name, ds.Type,
						strconv.FormatFloat(ds.AnimalVisualTime, 'g', -1, 64),
						strconv.Itoa(len(ds.AvailableNeurons)),
					})
				}
				p.Table([]string{"ID", "NAME", "TYPE", "VISUAL TIME", "NEURONS"}, rows)
			})
		},
	}
}

// --- edges ---

func newEdgesCmd(opts *globalOptions) *cobra.Command {
	var req aggregate.Request
	cmd := &cobra.Command{
		Use:   "edges",
		Short: "Aggregate the connections among neurons and classes",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			svc, release, err := e.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			resp, err := svc.Aggregate(cmd.Context(), req)
			if err != nil {
				return err
			}
			return e.print(resp, func(p *ux.Printer) {
				rows := make([][]string, 0, len(resp.Synapses))
				for _, s := range resp.Synapses {
					rows = append(rows, []string{
						s.Pre, s.Post, string(s.Type), strconv.Itoa(s.Count), joinInts(s.ListCount),
					})
				}
				p.Table([]string{"PRE", "POST", "TYPE", "COUNT", "PER DATASET"}, rows)
				p.Summary(
					ux.Count{Label: "nodes", Value: len(resp.Neurons)},
					ux.Count{Label: "edges", Value: len(resp.Synapses)},
				)
			})
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&req.Datasets, "datasets", nil, "Datasets in list_count order (required)")
	f.StringSliceVar(&req.Neurons, "neurons", nil, "Neuron names")
	f.StringSliceVar(&req.Classes, "classes", nil, "Neuron class names")
	f.BoolVar(&req.ShowIndividualNeuron, "individual", false, "Show members of requested classes individually")
	f.BoolVar(&req.ShowConnectedNeuron, "connected", false, "Include partners outside the selection")
	_ = cmd.MarkFlagRequired("datasets")
	return cmd
}

// --- path ---

func newPathCmd(opts *globalOptions) *cobra.Command {
	var q pathfind.Query
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Find all shortest paths between two nodes of a dataset graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			svc, release, err := e.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			res, err := svc.FindPaths(cmd.Context(), q)
			if err != nil {
				return err
			}
			return e.print(res, func(p *ux.Printer) {
				if len(res.Paths) == 0 {
					p.Warning(res.Message)
					return
				}
				for _, path := range res.Paths {
					p.Path(path.Path, fmt.Sprintf("(weight %d)", path.TotalWeight))
				}
				if res.Truncated {
					p.Muted("more paths omitted, see server.max_paths")
				}
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&q.DatasetID, "dataset", "", "Dataset id (required)")
	f.StringVar(&q.Start, "start", "", "Start node (required)")
	f.StringVar(&q.End, "end", "", "End node (required)")
	f.BoolVar(&q.Weighted, "weighted", true, "Use 1/count edge costs")
	f.BoolVar(&q.IncludeElectrical, "gap-junction", true, "Include electrical synapses")
	f.BoolVar(&q.UseClass, "class", false, "Search the class-level graph")
	_ = cmd.MarkFlagRequired("dataset")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

// --- reload ---

func newReloadCmd(opts *globalOptions) *cobra.Command {
	var datasets []string
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask running servers to reload records and drop cached results",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			if err := e.publish(cmd.Context(), datasets, "connectomectl reload"); err != nil {
				return err
			}
			return e.print(events.ReimportEvent{DatasetIDs: datasets}, func(p *ux.Printer) {
				p.Success("Reload published on " + e.cfg.Events.Subject)
			})
		},
	}
	cmd.Flags().StringSliceVar(&datasets, "datasets", nil, "Datasets to invalidate (default all)")
	return cmd
}

func (e *env) publish(ctx context.Context, ids []string, source string) error {
	if e.cfg.Events.URL == "" {
		return errNoEventsURL
	}
	nc, err := events.Connect(e.cfg.Events.URL, "connectomectl", e.logger)
	if err != nil {
		return err
	}
	defer nc.Close()

	ev := events.ReimportEvent{DatasetIDs: ids, Source: source, At: time.Now().UTC()}
	if err := events.Publish(ctx, nc, e.cfg.Events.Subject, ev); err != nil {
		return err
	}
	e.logger.Info("reimport event published",
		slog.String("subject", e.cfg.Events.Subject),
		slog.Any("datasets", ids))
	return nil
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
