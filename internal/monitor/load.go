package monitor

import (
	"math"
	"time"
)

// Simulated load is an opt-in stand-in for host telemetry, which third-party
// URLs do not expose. Values are derived from latency and are flagged as
// simulated on every result that carries them.

const (
	lcgMultiplier = 9301
	lcgIncrement  = 49297
	lcgModulus    = 233280
	loadCeiling   = 95
)

type seededRandom struct {
	seed int64
}

func newSeededRandom(seed int64) *seededRandom {
	seed %= lcgModulus
	if seed < 0 {
		seed += lcgModulus
	}
	return &seededRandom{seed: seed}
}

func (r *seededRandom) next() float64 {
	r.seed = (r.seed*lcgMultiplier + lcgIncrement) % lcgModulus
	return float64(r.seed) / lcgModulus
}

// SimulateLoad returns CPU and memory percentages for a probe of serviceID at
// checkedAt with the given latency. The same inputs within the same minute
// always yield the same numbers. Both values rise with latency and are capped
// at 95.
func SimulateLoad(serviceID int64, checkedAt time.Time, responseMs int64) (cpu, mem float64) {
	rng := newSeededRandom(serviceID*7919 + checkedAt.Unix()/60)

	baseMemory := 40 + rng.next()*30
	baseCPU := 20 + rng.next()*60
	factor := math.Min(float64(responseMs)/1000, 2)
	if factor < 0 {
		factor = 0
	}

	mem = math.Round(math.Min(loadCeiling, baseMemory+factor*10))
	cpu = math.Round(math.Min(loadCeiling, baseCPU+factor*15))
	return cpu, mem
}
