package fitting

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yazwaza/us-treasuries/pkg/models"
)

// FitSeriesChunked splits the series into consecutive chunks of
// Config.ChunkSize days and fits them concurrently, at most Config.Workers
// at a time. Each chunk starts cold and chains warm starts inside itself,
// so results can differ slightly from FitSeries at chunk boundaries.
// The context is checked between days, not inside an optimization.
func (d *Driver) FitSeriesChunked(ctx context.Context, series []models.YieldObservation) ([]models.DayFit, models.TierSummary, error) {
	var summary models.TierSummary
	if err := validateSeries(series); err != nil {
		return nil, summary, err
	}

	size := d.cfg.ChunkSize
	if size <= 0 || size >= len(series) {
		return d.FitSeries(series)
	}
	workers := d.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	fits := make([]models.DayFit, len(series))
	chunks := (len(series) + size - 1) / size
	tiers := make([]models.TierSummary, chunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for c := 0; c < chunks; c++ {
		c := c
		lo := c * size
		hi := min(lo+size, len(series))
		g.Go(func() error {
			var state State
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				fit, next, err := d.FitDay(state, series[i])
				if err != nil {
					return fmt.Errorf("chunk %d: %w", c, err)
				}
				fits[i] = fit
				tiers[c].Add(fit.Tier)
				state = next
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, summary, err
	}

	for _, t := range tiers {
		summary.Merge(t)
	}
	d.logger.Info("fitted series in chunks",
		zap.Int("days", len(fits)),
		zap.Int("chunks", chunks),
		zap.Int("workers", workers),
		zap.Int("quick", summary.Quick),
		zap.Int("moderate", summary.Moderate),
		zap.Int("intensive", summary.Intensive),
	)
	return fits, summary, nil
}
