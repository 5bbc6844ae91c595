// Package scoring combines detector outputs into a unified risk score
// and provides the numeric normalization toolkit shared across the
// pipeline.
package scoring

import (
	"fmt"
	"math"
)

// Combination methods accepted by Combine.
const (
	CombineMean     = "mean"
	CombineWeighted = "weighted"
	CombineMax      = "max"
	CombineRMS      = "rms"
)

// LinearNormalize maps [minVal, maxVal] onto [targetMin, targetMax] and
// clamps the result to the target range. A zero-width source range maps
// to the target midpoint.
func LinearNormalize(value, minVal, maxVal, targetMin, targetMax float64) float64 {
	if maxVal == minVal {
		return (targetMin + targetMax) / 2
	}
	normalized := (value - minVal) / (maxVal - minVal)
	scaled := normalized*(targetMax-targetMin) + targetMin
	return math.Max(targetMin, math.Min(targetMax, scaled))
}

// SigmoidNormalize applies an S-curve transformation around center with
// the given steepness, producing a 0-100 output. Useful for making
// extreme values more distinguishable.
func SigmoidNormalize(value, center, steepness float64) float64 {
	x := (value - center) * steepness
	sigmoid := 1 / (1 + math.Exp(-x))
	return sigmoid * 100
}

// ZScoreNormalize maps a value's deviation from mean onto 0-100, with
// the z-score clamped to ±maxZScore. Zero std yields the neutral 50.
func ZScoreNormalize(value, mean, std, maxZScore float64) float64 {
	if std == 0 {
		return 50.0
	}
	zscore := (value - mean) / std
	zscore = math.Max(-maxZScore, math.Min(maxZScore, zscore))
	return ((zscore / maxZScore) + 1) / 2 * 100
}

// PercentileNormalize returns the percentile rank of value against a
// reference population. An empty population yields the neutral 50.
func PercentileNormalize(value float64, reference []float64) float64 {
	if len(reference) == 0 {
		return 50.0
	}
	below := 0
	for _, v := range reference {
		if v < value {
			below++
		}
	}
	return float64(below) / float64(len(reference)) * 100
}

// Clamp clamps a value to [minVal, maxVal].
func Clamp(value, minVal, maxVal float64) float64 {
	return math.Max(minVal, math.Min(maxVal, value))
}

// DecayOldScore blends an old score with a new one using exponential
// decay, for rolling risk assessments.
func DecayOldScore(oldScore, newScore, decayFactor float64) float64 {
	return oldScore*decayFactor + newScore*(1-decayFactor)
}

// Combine reduces multiple scores to one using the given method. The
// weights slice applies to the weighted method only; nil means uniform
// weights. An unknown method is a hard validation failure.
func Combine(scores []float64, method string, weights []float64) (float64, error) {
	if len(scores) == 0 {
		return 0, nil
	}

	switch method {
	case CombineMean:
		sum := 0.0
		for _, s := range scores {
			sum += s
		}
		return sum / float64(len(scores)), nil

	case CombineWeighted:
		if weights == nil {
			weights = make([]float64, len(scores))
			for i := range weights {
				weights[i] = 1.0
			}
		}
		if len(weights) != len(scores) {
			return 0, fmt.Errorf("weights length %d does not match scores length %d", len(weights), len(scores))
		}
		totalWeight := 0.0
		weightedSum := 0.0
		for i, s := range scores {
			weightedSum += s * weights[i]
			totalWeight += weights[i]
		}
		if totalWeight == 0 {
			return 0, nil
		}
		return weightedSum / totalWeight, nil

	case CombineMax:
		maxScore := scores[0]
		for _, s := range scores[1:] {
			if s > maxScore {
				maxScore = s
			}
		}
		return maxScore, nil

	case CombineRMS:
		meanSquare := 0.0
		for _, s := range scores {
			meanSquare += s * s
		}
		meanSquare /= float64(len(scores))
		return math.Sqrt(meanSquare), nil

	default:
		return 0, fmt.Errorf("unknown combination method: %q", method)
	}
}
