package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"camkeep/internal/adapter/disk"
	"camkeep/internal/adapter/recorder"
	"camkeep/internal/adapter/telemetry"
	"camkeep/internal/app"
	"camkeep/internal/version"
)

func newCheckCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config and show what run would do",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(opts)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

			if v, err := recorder.Probe(ctx, cfg.FFmpegPath); err != nil {
				fmt.Fprintf(w, "ffmpeg\tMISSING\t%v\n", err)
			} else {
				fmt.Fprintf(w, "ffmpeg\tok\t%s\n", v)
			}

			fmt.Fprintf(w, "storage\t%s\t\n", cfg.StorageDir)
			fmt.Fprintf(w, "threshold\t%s\t\n", units.BytesSize(float64(cfg.CleanupThreshold)))
			if usage, err := disk.NewSampler().Check(cfg.StorageDir); err != nil {
				fmt.Fprintf(w, "free\tunknown\t%v\n", err)
			} else {
				fmt.Fprintf(w, "free\t%s\t\n", units.BytesSize(float64(usage.Available)))
				fmt.Fprintf(w, "deficit\t%s\t\n", units.BytesSize(float64(app.Deficit(cfg.CleanupThreshold, usage.Available))))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintln(out)
			b := recorder.NewBuilder(cfg.FFmpegPath, cfg.StorageDir, time.Now)
			for _, src := range cfg.Sources {
				c := b.Build(src)
				fmt.Fprintf(out, "%s: %s %s\n", src.Name, c.Path, strings.Join(c.Args, " "))
			}
			return nil
		},
	}
}

func newReclaimCmd(opts *globalOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "reclaim",
		Short: "Run one disk check now and delete files if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(opts)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()

			provider, err := telemetry.Install(telemetry.Options{Version: version.Version})
			if err != nil {
				return fmt.Errorf("metrics: %w", err)
			}
			defer provider.Shutdown(context.Background())

			sch, err := newScheduler(cfg, log, provider.Metrics)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !dryRun {
				res, err := sch.Tick(ctx)
				if err != nil {
					return err
				}
				if res.Reclaim == nil {
					fmt.Fprintf(out, "free space %s is above threshold, nothing to do\n", units.BytesSize(float64(res.Available)))
					return nil
				}
				r := res.Reclaim
				fmt.Fprintf(out, "deleted %d file(s), freed %s", len(r.Deleted), units.BytesSize(float64(r.Freed)))
				if r.Failed > 0 {
					fmt.Fprintf(out, ", %d failed", r.Failed)
				}
				if r.Unresolved {
					fmt.Fprintf(out, ", still %s short", units.BytesSize(float64(r.Remaining)))
				}
				fmt.Fprintln(out)
				return nil
			}

			usage, err := disk.NewSampler().Check(cfg.StorageDir)
			if err != nil {
				return err
			}
			deficit := app.Deficit(cfg.CleanupThreshold, usage.Available)
			plan := sch.Reclaimer().Plan(ctx, cfg.StorageDir, deficit)
			if len(plan) == 0 {
				fmt.Fprintln(out, "nothing would be deleted")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODIFIED\tSIZE\tPATH")
			var total int64
			for _, f := range plan {
				total += f.Size
				fmt.Fprintf(w, "%s\t%s\t%s\n", f.ModTime.Format("2006-01-02 15:04:05"), units.BytesSize(float64(f.Size)), f.Path)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "would delete %d file(s), %s of %s needed\n",
				len(plan), units.BytesSize(float64(total)), units.BytesSize(float64(deficit)))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "list the files that would be deleted without deleting them")
	return cmd
}
