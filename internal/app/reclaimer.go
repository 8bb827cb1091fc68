package app

import (
	"cmp"
	"context"
	"slices"

	"camkeep/internal/adapter/telemetry"
	"camkeep/internal/domain"
)

// ReclaimResult summarizes one reclaim pass.
type ReclaimResult struct {
	Requested  int64 // bytes asked for
	Freed      int64 // sum of sizes of deleted files
	Remaining  int64 // bytes still owed, never negative
	Deleted    []domain.FileRecord
	Failed     int
	Unresolved bool // candidates ran out, or ctx ended, before the request was met
}

// Reclaimer frees disk space by deleting the oldest files under a root.
type Reclaimer struct {
	inventory domain.FileInventory
	remover   domain.FileRemover
	logger    domain.Logger
	metrics   *telemetry.Metrics
}

// NewReclaimer wires a reclaimer. m may be nil.
func NewReclaimer(inv domain.FileInventory, rm domain.FileRemover, lg domain.Logger, m *telemetry.Metrics) *Reclaimer {
	if m == nil {
		m = telemetry.Nop()
	}
	return &Reclaimer{inventory: inv, remover: rm, logger: lg, metrics: m}
}

// Deficit is how many bytes must be freed to bring available space back up
// to threshold.
func Deficit(threshold, available int64) int64 {
	return max(0, threshold-available)
}

// OldestFirst sorts records by modification time, oldest first, breaking
// ties by path.
func OldestFirst(records []domain.FileRecord) {
	slices.SortFunc(records, func(a, b domain.FileRecord) int {
		if c := a.ModTime.Compare(b.ModTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
}

func (r *Reclaimer) candidates(ctx context.Context, root string) []domain.FileRecord {
	files := slices.Collect(r.inventory.Scan(ctx, root))
	OldestFirst(files)
	return files
}

// Plan returns the files Reclaim would delete for bytesToFree, assuming
// every deletion succeeds. Nothing is removed.
func (r *Reclaimer) Plan(ctx context.Context, root string, bytesToFree int64) []domain.FileRecord {
	if bytesToFree <= 0 {
		return nil
	}
	var plan []domain.FileRecord
	remaining := bytesToFree
	for _, f := range r.candidates(ctx, root) {
		if remaining <= 0 {
			break
		}
		plan = append(plan, f)
		remaining -= f.Size
	}
	return plan
}

// Reclaim deletes files under root, oldest first, until at least
// bytesToFree bytes have been released or no candidates remain. A file
// that cannot be deleted is skipped and contributes nothing.
func (r *Reclaimer) Reclaim(ctx context.Context, root string, bytesToFree int64) ReclaimResult {
	res := ReclaimResult{Requested: bytesToFree, Remaining: max(0, bytesToFree)}
	if res.Remaining == 0 {
		return res
	}

	files := r.candidates(ctx, root)
	r.logger.Info("reclaiming space", "root", root, "bytes", bytesToFree, "candidates", len(files))

	for _, f := range files {
		if res.Remaining <= 0 || ctx.Err() != nil {
			break
		}
		if err := r.remover.Remove(f.Path); err != nil {
			res.Failed++
			r.metrics.DeleteFailed(ctx)
			r.logger.Warn("delete failed, skipping", "path", f.Path, "err", err)
			continue
		}
		res.Deleted = append(res.Deleted, f)
		res.Freed += f.Size
		res.Remaining -= f.Size
		r.metrics.Deleted(ctx, f.Size)
		r.logger.Info("deleted", "path", f.Path, "size", f.Size, "mtime", f.ModTime)
	}
	res.Remaining = max(0, res.Remaining)

	if res.Remaining > 0 {
		res.Unresolved = true
		if err := ctx.Err(); err != nil {
			r.logger.Warn("reclaim cancelled",
				"requested", res.Requested, "freed", res.Freed, "remaining", res.Remaining, "err", err)
			return res
		}
		r.logger.Warn("reclaim unresolved, no candidates left",
			"requested", res.Requested, "freed", res.Freed, "remaining", res.Remaining, "failed", res.Failed)
		return res
	}
	r.logger.Info("reclaim complete", "freed", res.Freed, "files", len(res.Deleted), "failed", res.Failed)
	return res
}
