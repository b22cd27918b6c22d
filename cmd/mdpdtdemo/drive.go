package main

import (
	"context"

	"github.com/cno-optimizer/mdpdt/internal/valuecache"
	"github.com/cno-optimizer/mdpdt/model"
)

// snapshotEvery controls how many observations drive processes between
// pushing a value snapshot to the feed hub. The core itself updates on
// every observation; this just throttles how often the demo publishes it.
const snapshotEvery = 20

// drive is the model's single writer (per the concurrency model, the core
// is not safe for concurrent mutation): it consumes the merged observation
// stream serially, feeding each one through SetState/Update, and
// periodically republishes a values snapshot for readers.
func drive(ctx context.Context, m model.Model, observations <-chan observation, cache *valuecache.Cache, feed *hub) {
	seeded := false
	count := 0

	for {
		select {
		case <-ctx.Done():
			return
		case obs, ok := <-observations:
			if !ok {
				return
			}

			if !seeded {
				if err := m.SetState(obs.Measurement); err == nil {
					seeded = true
				}
				continue
			}

			if err := m.Update(obs.Action, obs.Measurement, obs.Reward); err != nil {
				continue
			}

			count++
			if count%snapshotEvery != 0 {
				continue
			}

			values := valuesOf(m)
			if grow := len(values) - cache.Len(); grow > 0 {
				cache.Grow(grow)
			}
			for i, v := range values {
				cache.Set(i, v)
			}
			feed.broadcast(cache.Snapshot())
		}
	}
}

func valuesOf(m model.Model) []float64 {
	vs, ok := m.(model.ValueSource)
	if !ok {
		return nil
	}
	return vs.Values()
}
