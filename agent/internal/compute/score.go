package compute

import "math"

// Default control points of the total-blocking-work curve, in milliseconds.
const (
	DefaultP10Ms    = 2017.0
	DefaultMedianMs = 4000.0
)

// PassThreshold is the lowest score rendered as passing.
const PassThreshold = 0.9

// inverseERFCOneFifth is erfc⁻¹(0.2): the standardized distance of the p10
// control point from the median on the complementary-erf curve.
const inverseERFCOneFifth = 0.9061938024368232

// Options holds the log-normal control points. P10 scores 0.9 and Median
// scores 0.5.
type Options struct {
	P10Ms    float64
	MedianMs float64
}

// DefaultOptions returns the standard control points.
func DefaultOptions() Options {
	return Options{P10Ms: DefaultP10Ms, MedianMs: DefaultMedianMs}
}

// Score maps a total duration to a score in [0, 1] and the savings relative to
// the median. Scores above 0.9 get a small boost and every score is floored
// to two decimals, so the curve is non-increasing in totalMs.
//
// A zero or negative total scores 1.
func Score(totalMs float64, o Options) (score, savingsMs float64) {
	savingsMs = math.Max(0, totalMs-o.MedianMs)

	s := logNormalScore(o, totalMs)
	if s > PassThreshold {
		s += 0.05 * (s - PassThreshold)
	}
	return math.Floor(s*100) / 100, savingsMs
}

// logNormalScore evaluates the complementary log-normal CDF through p10 and
// median, clamped into the band the value falls in so rounding near a control
// point cannot cross it.
func logNormalScore(o Options, value float64) float64 {
	if value <= 0 {
		return 1
	}
	xLogRatio := math.Log(value / o.MedianMs)
	p10LogRatio := -math.Log(o.P10Ms / o.MedianMs)
	standardizedX := xLogRatio * inverseERFCOneFifth / p10LogRatio
	complementaryPercentile := (1 - math.Erf(standardizedX)) / 2

	switch {
	case value <= o.P10Ms:
		return clamp(complementaryPercentile, 0.9, 1)
	case value <= o.MedianMs:
		return clamp(complementaryPercentile, 0.5, math.Nextafter(0.9, 0))
	default:
		return clamp(complementaryPercentile, 0, math.Nextafter(0.5, 0))
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
