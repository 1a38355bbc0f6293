package harvest

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"
)

// PlacesFanOut runs one Places harvest per query with bounded
// concurrency, merging the tallies. A failing query cancels the rest.
func (h *Harvester) PlacesFanOut(ctx context.Context, queries []string, location string, concurrency int) (*Result, error) {
	if concurrency <= 0 {
		concurrency = 3
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	total := &Result{}

	for _, query := range queries {
		g.Go(func() error {
			r, err := h.Places(ctx, query, location)
			if err != nil {
				zap.L().Error("fan-out query failed",
					zap.String("query", query), zap.Error(err))
				return err
			}
			mu.Lock()
			total.Found += r.Found
			total.Inserted += r.Inserted
			total.Skipped += r.Skipped
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return total, err
	}
	return total, nil
}
