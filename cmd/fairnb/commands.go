package main

import (
	"fmt"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"fairnb/app"
	"fairnb/domain/core"
	"fairnb/domain/pattern"
	"fairnb/domain/run"
	"fairnb/internal/runlog"
)

func newLearnCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learn [dataset] [KLD|Diff] [delta] [k]",
		Short: "Learn fair parameters for one configuration",
		Long: `Alternate pattern search and constrained refits until the model has no
discrimination pattern or the refit cap is reached.

Example: fairnb learn compas Diff 0.05 10 --data-dir data --outdir output`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := parseManifest(args)
			if err != nil {
				return err
			}
			env, err := opts.environment(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer env.close()

			net, table, err := env.load(opts, m.Dataset)
			if err != nil {
				return err
			}
			res, err := env.learner.Learn(cmd.Context(), app.LearnRequest{Manifest: m, Network: net, Table: table})

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, m.Label())
			fmt.Fprintf(out, "status=%s iterations=%d patterns=%d elapsed=%s\n",
				res.Status, res.Iterations, len(res.Patterns), res.Elapsed.Round(time.Millisecond))
			fmt.Fprintf(out, "result log: %s\n", runlog.ResultPath(env.cfg.Paths.OutDir, m))
			return err
		},
	}
	return cmd
}

func parseManifest(args []string) (*run.Manifest, error) {
	selector, err := pattern.ParseSelector(args[1])
	if err != nil {
		return nil, core.NewParameterError("selector", args[1], "KLD|Diff")
	}
	delta, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return nil, core.NewParameterError("delta", args[2], "0.05|0.01|0.1|0.5")
	}
	k, err := strconv.Atoi(args[3])
	if err != nil {
		return nil, core.NewParameterError("k", args[3], "1|10|100")
	}
	return run.NewManifest(args[0], selector, delta, k)
}

func newSweepCmd(opts *globalOptions) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "sweep [dataset]",
		Short: "Run every selector, delta and k for a dataset",
		Long: `Run the full calibrated grid (2 selectors x 4 deltas x 3 budgets) over one
dataset. Runs execute in parallel; each run is single-threaded.

Example: fairnb sweep adult --concurrency 8`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			grid := run.Grid(name)
			if len(grid) == 0 {
				return core.NewParameterError("dataset", name, "compas|german|adult")
			}
			env, err := opts.environment(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer env.close()

			if !cmd.Flags().Changed("concurrency") {
				concurrency = env.cfg.Sweep.Concurrency
			}
			net, table, err := env.load(opts, name)
			if err != nil {
				return err
			}
			report, err := app.NewSweepService(env.learner, concurrency, env.logger).Run(cmd.Context(), app.SweepRequest{
				Dataset:   name,
				Network:   net,
				Table:     table,
				Manifests: grid,
			})
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SELECTOR\tDELTA\tK\tSTATUS\tITERATIONS\tPATTERNS\tELAPSED")
			for _, o := range report.Outcomes {
				status, iterations, patterns, elapsed := run.StatusFailed, 0, 0, time.Duration(0)
				if o.Result != nil {
					status, iterations, patterns, elapsed = o.Result.Status, o.Result.Iterations, len(o.Result.Patterns), o.Result.Elapsed
				}
				fmt.Fprintf(tw, "%s\t%g\t%d\t%s\t%d\t%d\t%s\n", o.Manifest.Selector, o.Manifest.Delta, o.Manifest.K,
					status, iterations, patterns, elapsed.Round(time.Millisecond))
			}
			tw.Flush()
			fmt.Fprintf(cmd.OutOrStdout(), "runtime: mean=%.3fs median=%.3fs max=%.3fs over %d runs\n",
				report.Runtime.Mean, report.Runtime.Median, report.Runtime.Max, report.Runtime.Runs)

			if failed := report.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d of %d runs failed, first: %w", len(failed), len(report.Outcomes), failed[0].Err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Runs in flight (env SWEEP_CONCURRENCY)")
	return cmd
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [dataset]",
		Short: "List recorded runs of a dataset from the run store",
		Long: `List runs recorded in the store named by --db or STORE_DSN.

Example: fairnb history german --db sqlite3://output/runs.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.environment(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer env.close()
			if env.store == nil {
				return fmt.Errorf("history needs a run store: set --db or STORE_DSN")
			}

			runs, err := env.store.ListRuns(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSELECTOR\tDELTA\tK\tSTATUS\tITERATIONS\tLOGLIK\tCREATED")
			for _, r := range runs {
				ll := "-"
				if r.LogLikelihood.Valid {
					ll = strconv.FormatFloat(r.LogLikelihood.Float64, 'f', 4, 64)
				}
				fmt.Fprintf(tw, "%s\t%s\t%g\t%d\t%s\t%d\t%s\t%s\n", r.ID, r.Selector, r.Delta, r.K,
					r.Status, r.Iterations, ll, r.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [model.yaml]",
		Short: "Print the CPTs and patterns of a model artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := runlog.ReadModel(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s delta=%g k=%d status=%s iterations=%d loglik=%.4f\n",
				model.Dataset, model.Selector, model.Delta, model.K, model.Status, model.Iterations, model.LogLikelihood)
			fmt.Fprintf(out, "P(%s=1) = %.6f\n", model.Root.Target, model.Root.P[1])

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "FEATURE\tP(=1|%s=0)\tP(=1|%s=1)\n", model.Root.Target, model.Root.Target)
			for _, leaf := range model.Leaves {
				fmt.Fprintf(tw, "%s\t%.6f\t%.6f\n", leaf.Feature, leaf.Given[0][1], leaf.Given[1][1])
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			patterns := append([]pattern.Pattern(nil), model.Patterns...)
			sort.SliceStable(patterns, func(i, j int) bool { return patterns[i].Score > patterns[j].Score })
			fmt.Fprintf(out, "%d patterns\n", len(patterns))
			for _, p := range patterns {
				fmt.Fprintln(out, "  "+p.String())
			}
			return nil
		},
	}
}
