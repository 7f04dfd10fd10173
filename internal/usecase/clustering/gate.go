package clustering

import "math"

// DefaultHighFloor is the lowest score that is ever accepted without an oracle.
const DefaultHighFloor = 0.6

// Band is the confidence band of the best reranked candidate.
type Band int

// Bands from most to least confident.
const (
	BandReject Band = iota
	BandLow
	BandMedium
	BandHigh
)

func (b Band) String() string {
	switch b {
	case BandHigh:
		return "high"
	case BandMedium:
		return "medium"
	case BandLow:
		return "low"
	default:
		return "reject"
	}
}

// NeedsOracle reports whether the band escalates to oracle confirmation.
func (b Band) NeedsOracle() bool { return b == BandMedium || b == BandLow }

// Gate places score into a band:
// high at >= max(highFloor, t), medium at >= t, low at >= t/2, reject below.
func Gate(score, t, highFloor float64) Band {
	if math.IsNaN(score) {
		return BandReject
	}
	switch {
	case score >= math.Max(highFloor, t):
		return BandHigh
	case score >= t:
		return BandMedium
	case score >= 0.5*t:
		return BandLow
	default:
		return BandReject
	}
}
