package engine

import (
	"hash/fnv"
	"math/rand/v2"
)

// Random stream purposes. Each (seed, agent, day, purpose) tuple gets its own
// independent stream so a run replays exactly regardless of worker count or
// which other decisions happened to draw.
const (
	purposePersona    = "persona"
	purposeTraits     = "traits"
	purposeScores     = "initial-scores"
	purposeActivity   = "activity:"
	purposeConversion = "conversion"
)

// stream returns a PCG generator scoped to one agent, day and purpose.
// agent is -1 for run-wide draws.
func stream(seed int64, agent, day int, purpose string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(purpose))
	hi := splitmix64(uint64(seed) ^ h.Sum64())
	lo := splitmix64(uint64(int64(agent))<<32 ^ uint64(uint32(day)) ^ hi)
	return rand.New(rand.NewPCG(hi, lo))
}

// splitmix64 scrambles a 64-bit value so nearby inputs give unrelated seeds.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// pick draws an index from unnormalised non-negative weights.
func pick(r *rand.Rand, weights []float64) int {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	u := r.Float64() * total
	last := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		if u < w {
			return i
		}
		u -= w
		last = i
	}
	return last
}
