package scoring

import (
	"math"
	"time"
)

// DefaultHalfLife is used when a non-positive half-life is configured.
const DefaultHalfLife = 24 * time.Hour

// TemporalDecay returns exp(-ln2 * |t1 - t2| / halfLife), in (0, 1].
// Both times are compared in UTC.
func TemporalDecay(t1, t2 time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	delta := t1.UTC().Sub(t2.UTC())
	if delta < 0 {
		delta = -delta
	}
	return math.Exp(-math.Ln2 * delta.Hours() / halfLife.Hours())
}
