package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"idsm/internal/batch"
	"idsm/internal/blob"
	"idsm/internal/inputs"
	"idsm/internal/joblog"
	"idsm/internal/metrics"
	"idsm/internal/model"
	"idsm/internal/posterior"
)

func configCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := a.settings.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func graphCmd(a *app) *cobra.Command {
	var (
		inputsPath string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the model graph for the configured variant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dims, err := a.dims(cmd.Context(), inputsPath)
			if err != nil {
				return err
			}
			g, err := model.Build(a.settings.Model, dims)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Variant string       `json:"variant"`
					Dims    model.Dims   `json:"dims"`
					Nodes   []model.Node `json:"nodes"`
				}{g.Variant(), g.Dims(), g.Nodes()})
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintf(tw, "# variant %s\n", g.Variant())
			_, _ = fmt.Fprintln(tw, "NODE\tKIND\tSHAPE\tDIST\tPARENTS")
			for _, n := range g.Nodes() {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%s\n", n.Name, n.Kind, g.Shape(n.Name), distribution(n), strings.Join(n.Parents, ","))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&inputsPath, "inputs", "", "bundle whose dimensions size the graph (default: simulation design)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the graph as JSON")
	return cmd
}

func distribution(n model.Node) string {
	switch {
	case n.Prior == nil && n.Dist == "":
		return "-"
	case n.Prior == nil:
		return string(n.Dist)
	case n.Prior.Family == model.Uniform:
		return fmt.Sprintf("%s(%g, %g)", n.Prior.Family, n.Prior.Lower, n.Prior.Upper)
	case n.Prior.SDNode != "":
		return fmt.Sprintf("%s(%g, %s)", n.Prior.Family, n.Prior.Mean, n.Prior.SDNode)
	default:
		return fmt.Sprintf("%s(%g, %g)", n.Prior.Family, n.Prior.Mean, n.Prior.SD)
	}
}

func simulateCmd(a *app) *cobra.Command {
	var (
		originSeed int64
		outPath    string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate the input bundle of an origin seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := inputs.Simulate(a.settings.Model, a.settings.Simulation, originSeed)
			if err != nil {
				return err
			}
			if outPath == "" || outPath == "-" {
				return inputs.Write(cmd.OutOrStdout(), b)
			}
			if err := inputs.WriteFile(outPath, b); err != nil {
				return err
			}
			a.logger.Info("bundle written", "path", outPath, "origin_seed", originSeed)
			return nil
		},
	}
	cmd.Flags().Int64Var(&originSeed, "origin-seed", 1, "seed identifying the simulated dataset")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output path (default stdout)")
	return cmd
}

func runCmd(a *app) *cobra.Command {
	var (
		inputsPath string
		task       batch.Task
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fit one seed pair and store its archives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runTasks(cmd, inputsPath, []batch.Task{task}, "")
		},
	}
	cmd.Flags().StringVar(&inputsPath, "inputs", "", "input bundle (default: simulate from the origin seed)")
	cmd.Flags().Int64Var(&task.OriginSeed, "origin-seed", 1, "seed identifying the dataset")
	cmd.Flags().Int64Var(&task.RunSeed, "run-seed", 1, "seed of the sampler run")
	return cmd
}

func batchCmd(a *app) *cobra.Command {
	var (
		inputsPath  string
		manifest    string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Fit every seed pair of a manifest, skipping completed pairs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tasks, err := batch.LoadManifest(manifest)
			if err != nil {
				return err
			}
			return a.runTasks(cmd, inputsPath, tasks, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&inputsPath, "inputs", "", "input bundle shared by every origin seed")
	cmd.Flags().StringVarP(&manifest, "manifest", "m", "", "two-column CSV of origin and run seeds")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	_ = cmd.MarkFlagRequired("manifest")
	return cmd
}

func (a *app) runTasks(cmd *cobra.Command, inputsPath string, tasks []batch.Task, metricsAddr string) error {
	ctx := cmd.Context()
	s := a.settings
	store, err := blob.Open(ctx, s.Storage.Blob)
	if err != nil {
		return err
	}
	jobs, err := joblog.Open(ctx, s.Storage.JobLog)
	if err != nil {
		return err
	}
	defer func() { _ = jobs.Close() }()
	dataset, err := a.dataset(inputsPath)
	if err != nil {
		return err
	}
	formats, err := s.Batch.ArchiveFormats()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(reg)
	if metricsAddr != "" {
		shutdown, err := serveMetrics(metricsAddr, reg)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	w := batch.NewWorker(batch.Options{
		Model:       s.Model,
		Chains:      s.Sampler.Chains,
		Spec:        s.Sampler.RunSpec,
		TestRun:     s.Sampler.TestRun,
		Engine:      s.Sampler.Engine,
		Monitors:    s.Sampler.Monitors,
		Formats:     formats,
		Workers:     s.Batch.Workers,
		MaxAttempts: s.Batch.MaxAttempts,
		QueueSize:   s.Batch.QueueSize,
	}, dataset, store, jobs, batch.WithLogger(a.logger), batch.WithMetrics(recorder))

	records, runErr := w.RunAll(ctx, tasks)
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TASK\tSTATUS\tATTEMPTS\tERROR")
	for _, r := range records {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.Task.Key(), r.Status, r.Attempts, r.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return runErr
}

func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func summarizeCmd(a *app) *cobra.Command {
	var (
		drawsPath string
		outDir    string
		thin      int
		formats   []string
	)
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Render tidy rows, summaries and plots from a stored draws archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.readDraws(cmd.Context(), drawsPath)
			if err != nil {
				return err
			}
			d = d.Thin(thin)
			fs := make([]posterior.Format, 0, len(formats))
			for _, f := range formats {
				if posterior.Format(f) == posterior.FormatDraws {
					continue
				}
				fs = append(fs, posterior.Format(f))
			}
			if len(fs) == 0 {
				fs = []posterior.Format{posterior.FormatSummary}
			}
			artifacts, err := posterior.Materialize(d, d.Axes, fs...)
			if err != nil {
				return err
			}
			if outDir == "" {
				for _, art := range artifacts {
					if art.Format != posterior.FormatSummary {
						return errors.New("--out is required for formats other than summary.csv")
					}
				}
				_, err := cmd.OutOrStdout().Write(artifacts[0].Payload)
				return err
			}
			for _, art := range artifacts {
				path := filepath.Join(outDir, filepath.FromSlash(art.Name))
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(path, art.Payload, 0o644); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&drawsPath, "draws", "d", "", "draws.json path, or a store key such as idsm_1_2/draws.json")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "directory for rendered files (default: summary to stdout)")
	cmd.Flags().IntVar(&thin, "thin", 1, "keep every n-th draw before summarising")
	cmd.Flags().StringSliceVar(&formats, "format", nil, "formats to render (tidy.csv, summary.csv, abundance.png, summary.html)")
	_ = cmd.MarkFlagRequired("draws")
	return cmd
}

// readDraws opens a local file first and falls back to the configured store.
func (a *app) readDraws(ctx context.Context, path string) (posterior.Draws, error) {
	if f, err := os.Open(path); err == nil {
		defer func() { _ = f.Close() }()
		return posterior.ReadDraws(f)
	} else if !errors.Is(err, os.ErrNotExist) {
		return posterior.Draws{}, err
	}
	store, err := blob.Open(ctx, a.settings.Storage.Blob)
	if err != nil {
		return posterior.Draws{}, err
	}
	_, body, err := store.Get(ctx, path)
	if err != nil {
		return posterior.Draws{}, fmt.Errorf("read draws %s: %w", path, err)
	}
	defer func() { _ = body.Close() }()
	return posterior.ReadDraws(body)
}

// dataset resolves the bundle source: a shared file, the configured inputs,
// or simulation keyed by origin seed.
func (a *app) dataset(path string) (batch.Dataset, error) {
	if path == "" {
		path = a.settings.Batch.Inputs
	}
	if path != "" {
		b, err := inputs.LoadFile(path)
		if err != nil {
			return nil, err
		}
		return func(context.Context, int64) (inputs.Bundle, error) { return b, nil }, nil
	}
	cfg, design := a.settings.Model, a.settings.Simulation
	return func(_ context.Context, origin int64) (inputs.Bundle, error) {
		return inputs.Simulate(cfg, design, origin)
	}, nil
}

func (a *app) dims(ctx context.Context, path string) (model.Dims, error) {
	load, err := a.dataset(path)
	if err != nil {
		return model.Dims{}, err
	}
	b, err := load(ctx, 1)
	if err != nil {
		return model.Dims{}, err
	}
	_, _, dims, err := b.Model()
	return dims, err
}
