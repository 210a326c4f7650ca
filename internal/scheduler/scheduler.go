// Package scheduler predicts a resource allocation plan from the local
// wall-clock hour, grounded on core/orchestration/predictive_scheduler.py.
// It performs no I/O and takes no dependencies beyond time.Now, so it is
// trivially testable by injecting the hour directly.
package scheduler

import (
	"strconv"
	"time"
)

// Plan is a predicted allocation for the upcoming window.
type Plan struct {
	Allocate      map[string]int `json:"allocate"`
	PreloadModels []string       `json:"preload_models"`
	Notes         []string       `json:"notes"`
	QPSPredicted  int            `json:"qps_pred"`
}

const (
	primaryModel = "llama3.2:3b-instruct-q4_K_M"
	peakModel    = "mistral:7b-instruct-q4"
)

// IsPeakHour reports whether hour (0-23, local time) falls in one of the
// two daily peak windows: 8-11 or 14-17 inclusive.
func IsPeakHour(hour int) bool {
	return (hour >= 8 && hour <= 11) || (hour >= 14 && hour <= 17)
}

// PredictAt builds the plan for a specific hour, used by tests and by
// Predict below.
func PredictAt(hour int) Plan {
	peak := IsPeakHour(hour)

	allocate := map[string]int{
		"analyst":    boolToCount(peak, 2, 1),
		"researcher": boolToCount(peak, 2, 1),
		"conductor":  1,
		"coder":      boolToCount(peak, 1, 0),
	}

	preload := []string{primaryModel}
	if peak {
		preload = append(preload, peakModel)
	}

	qps := 1
	if peak {
		qps = 5
	}

	return Plan{
		Allocate:      allocate,
		PreloadModels: preload,
		Notes:         []string{"heuristics-v1", noteFor("peak", peak), noteFor("hour", hour)},
		QPSPredicted:  qps,
	}
}

// Predict builds the plan for the current local hour.
func Predict() Plan {
	return PredictAt(time.Now().Hour())
}

func boolToCount(b bool, ifTrue, ifFalse int) int {
	if b {
		return ifTrue
	}
	return ifFalse
}

func noteFor(key string, v interface{}) string {
	switch val := v.(type) {
	case bool:
		return key + "=" + strconv.FormatBool(val)
	case int:
		return key + "=" + strconv.Itoa(val)
	default:
		return key
	}
}
