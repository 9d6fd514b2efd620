package engine

import (
	"math"

	"github.com/lazypower/cohortsim/internal/model"
)

// Acquisition decay:
//   - day d receives floor(remaining * k * exp(-k*d)) of the still-unassigned pool
//   - while d < minWindow and the pool is not empty, at least 1 joins per day
//   - whatever rounding leaves over is spread one by one across the earliest days
//   - once the pool is empty every later day gets 0

// Schedule returns the number of agents joining on each of days days. The
// counts are non-negative and sum exactly to budget.
func Schedule(budget, days int, k float64, minWindow int) ([]int, error) {
	if days < 1 {
		return nil, cfgErr("acquisition_days", "must be >= 1, got %d", days)
	}
	if budget < 0 {
		return nil, cfgErr("total_agents", "must be >= 0, got %d", budget)
	}
	if k <= 0 || k > 1 || math.IsNaN(k) {
		return nil, cfgErr("acquisition_decay", "must be in (0, 1], got %g", k)
	}

	counts := make([]int, days)
	remaining := budget
	for d := 0; d < days && remaining > 0; d++ {
		n := int(math.Floor(float64(remaining) * k * math.Exp(-k*float64(d))))
		if d < minWindow && n < 1 {
			n = 1
		}
		if n > remaining {
			n = remaining
		}
		counts[d] = n
		remaining -= n
	}

	for d := 0; remaining > 0; d = (d + 1) % days {
		counts[d]++
		remaining--
	}
	return counts, nil
}

// assignPersonas apportions total agents across the mix by largest remainder
// and shuffles the result with the run seed, so the realised mix matches the
// weights as closely as integers allow.
func assignPersonas(total int, mix map[model.Persona]float64, seed int64) []model.Persona {
	type share struct {
		persona model.Persona
		count   int
		frac    float64
	}

	sum := 0.0
	for _, p := range model.Personas {
		sum += mix[p]
	}
	if total == 0 || sum == 0 {
		return nil
	}

	shares := make([]share, 0, len(model.Personas))
	assigned := 0
	for _, p := range model.Personas {
		exact := float64(total) * mix[p] / sum
		n := int(math.Floor(exact))
		shares = append(shares, share{persona: p, count: n, frac: exact - float64(n)})
		assigned += n
	}
	for assigned < total {
		best := -1
		for i, s := range shares {
			if mix[s.persona] == 0 {
				continue
			}
			if best < 0 || s.frac > shares[best].frac {
				best = i
			}
		}
		shares[best].count++
		shares[best].frac = -1
		assigned++
	}

	out := make([]model.Persona, 0, total)
	for _, s := range shares {
		for i := 0; i < s.count; i++ {
			out = append(out, s.persona)
		}
	}
	r := stream(seed, -1, 0, purposePersona)
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
