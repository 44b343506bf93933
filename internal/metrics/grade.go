package metrics

import (
	"math"

	"github.com/alfonsopalomares/digital-twin/internal/config"
)

// StatusUnknown marks reports computed from insufficient or degraded data.
const StatusUnknown = "unknown"

// Direction tells Grade which side of a cutoff is the better one.
type Direction int

const (
	HigherIsBetter Direction = iota
	LowerIsBetter
)

// Grade maps a scalar onto a qualitative tier. Tiers are walked best-first
// and boundaries are inclusive on the better side, so a value exactly at a
// cutoff earns that tier. When nothing matches, the last (worst) label is
// returned; non-finite values grade as unknown. Total over all inputs.
func Grade(value float64, tiers []config.Tier, dir Direction) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return StatusUnknown
	}
	if len(tiers) == 0 {
		return StatusUnknown
	}
	for _, t := range tiers {
		if dir == HigherIsBetter && value >= t.Cutoff {
			return t.Label
		}
		if dir == LowerIsBetter && value <= t.Cutoff {
			return t.Label
		}
	}
	return tiers[len(tiers)-1].Label
}
