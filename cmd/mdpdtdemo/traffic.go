package main

import (
	"context"
	"math/rand"
	"time"

	"github.com/cno-optimizer/mdpdt/action"
)

// observation is one synthetic tick: an action taken and the measurement
// and reward that followed it.
type observation struct {
	Action      action.Action
	Measurement action.Measurement
	Reward      float64
}

// generateTraffic produces one observation every interval until ctx is
// canceled, picking a uniformly random action and measurement each tick.
func generateTraffic(ctx context.Context, parameters []string, actions []action.Action, rng *rand.Rand, interval time.Duration) <-chan observation {
	out := make(chan observation)

	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				obs := observation{
					Action:      actions[rng.Intn(len(actions))],
					Measurement: randomMeasurement(parameters, rng),
					Reward:      rng.NormFloat64(),
				}
				select {
				case out <- obs:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

func randomMeasurement(parameters []string, rng *rand.Rand) action.Measurement {
	m := make(action.Measurement, len(parameters))
	for _, p := range parameters {
		m[p] = rng.Float64() * 100
	}
	return m
}
