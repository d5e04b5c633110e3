package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Driver is one metric's contribution to a system score
type Driver struct {
	Key      string  `json:"key"`
	Value    int     `json:"value"`
	Weighted float64 `json:"weighted"`
}

// SystemScore is the weighted result for one system
type SystemScore struct {
	Score     int            `json:"score"`
	Coverage  float64        `json:"coverage"`
	Inputs    map[string]int `json:"inputs"`
	Drivers   []Driver       `json:"drivers"`
	Rationale string         `json:"rationale"`
}

// NormalizeMetric maps a raw value to 0..100. Fractions in [0,1] are treated
// as ratios. NaN and infinities are rejected.
func NormalizeMetric(v float64) (int, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if v >= 0 && v <= 1 {
		return int(math.Round(v * 100)), true
	}
	return int(math.Round(clip(v, 0, 100))), true
}

// ScoreSystem computes a weighted mean of the metrics. Missing or
// non-finite weights count as 1 and negative weights as 0. When required is non-empty coverage is measured against it,
// otherwise against the metrics supplied.
func ScoreSystem(metrics map[string]float64, weights map[string]float64, required []string) SystemScore {
	if len(metrics) == 0 {
		return SystemScore{Inputs: map[string]int{}, Rationale: "No data"}
	}

	norm := make(map[string]int, len(metrics))
	for k, v := range metrics {
		if n, ok := NormalizeMetric(v); ok {
			norm[k] = n
		}
	}
	if len(norm) == 0 {
		return SystemScore{Inputs: map[string]int{}, Rationale: "No valid metrics"}
	}

	var coverage float64
	if len(required) > 0 {
		present := 0
		for _, k := range required {
			if _, ok := norm[k]; ok {
				present++
			}
		}
		coverage = float64(present) / float64(len(required))
	} else {
		coverage = float64(len(norm)) / float64(len(metrics))
	}

	keys := make([]string, 0, len(norm))
	for k := range norm {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := make(map[string]float64, len(keys))
	var wmax float64
	for _, k := range keys {
		wk, ok := weights[k]
		switch {
		case !ok || math.IsNaN(wk) || math.IsInf(wk, 0):
			wk = 1
		case wk < 0:
			wk = 0
		}
		w[k] = wk
		wmax = math.Max(wmax, wk)
	}
	if wmax == 0 {
		for _, k := range keys {
			w[k] = 1
		}
		wmax = 1
	}
	// Scale by a power of two so the sums stay finite without rounding.
	_, exp := math.Frexp(wmax)
	if wmax <= 1 {
		exp = 0
	}
	var wsum float64
	for _, k := range keys {
		w[k] = math.Ldexp(w[k], -exp)
		wsum += w[k]
	}

	var acc float64
	drivers := make([]Driver, 0, len(keys))
	for _, k := range keys {
		acc += float64(norm[k]) * w[k]
		drivers = append(drivers, Driver{Key: k, Value: norm[k], Weighted: float64(norm[k]) * w[k]})
	}
	sort.SliceStable(drivers, func(i, j int) bool { return drivers[i].Weighted > drivers[j].Weighted })
	if len(drivers) > 2 {
		drivers = drivers[:2]
	}

	parts := make([]string, len(drivers))
	for i, d := range drivers {
		parts[i] = fmt.Sprintf("%s (%d)", d.Key, d.Value)
	}

	mean := acc / wsum
	if math.IsNaN(mean) {
		mean = 0
	}

	return SystemScore{
		Score:     int(math.Round(clip(mean, 0, 100))),
		Coverage:  coverage,
		Inputs:    norm,
		Drivers:   drivers,
		Rationale: "Top drivers: " + strings.Join(parts, ", "),
	}
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
