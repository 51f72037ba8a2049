package vrbag

import "math"

// MinMax returns the smallest and largest values ignoring the no-data
// sentinel, or (NaN, NaN) when no populated value exists. The derived
// min/max attributes of every dataset are computed this way, never carried
// over from a previous revision of the file.
func MinMax(vals []float32, nodata float32) (min, max float32) {
	min = float32(math.NaN())
	max = float32(math.NaN())
	for _, v := range vals {
		if v == nodata {
			continue
		}
		if math.IsNaN(float64(min)) || v < min {
			min = v
		}
		if math.IsNaN(float64(max)) || v > max {
			max = v
		}
	}
	return min, max
}

// MaskSentinel maps sentinel cells to NaN for consumers that prefer NaN
// semantics over the in-file sentinel.
func MaskSentinel(vals []float32, nodata float32) []float32 {
	out := make([]float32, len(vals))
	for i, v := range vals {
		if v == nodata {
			out[i] = float32(math.NaN())
		} else {
			out[i] = v
		}
	}
	return out
}
