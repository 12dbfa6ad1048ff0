package config

import (
	"math"
	"math/rand"
)

// ApplyJitter perturbs the tunable thresholds of s by up to ±fraction of their
// value. Instances running side by side get decorrelated parameters while the
// engine itself stays deterministic for a given config.
func ApplyJitter(s *StrategyConfig, seed int64, fraction float64) {
	if s == nil || fraction <= 0 {
		return
	}
	fraction = math.Min(fraction, 0.5)
	rng := rand.New(rand.NewSource(seed))
	scale := func(v *float64) {
		if *v == 0 {
			return
		}
		*v *= 1 + (rng.Float64()*2-1)*fraction
	}
	scale(&s.Signal.EntryDeviation)
	scale(&s.Signal.RSICeiling)
	if s.Signal.RSICeiling > 100 {
		s.Signal.RSICeiling = 100
	}
	scale(&s.Exit.TakeProfit)
	scale(&s.Exit.TrailArm)
	scale(&s.Exit.TrailGiveback)
	if s.Exit.TrailGiveback > 1 {
		s.Exit.TrailGiveback = 1
	}
	scale(&s.Ladder.Step)
	scale(&s.Ladder.Multiplier)
}
