package engine

import (
	"math"

	"questmetrics/api/models"
)

// CorrelationMap maps an event id to its presence-correlation score: the
// fraction of converted sessions containing the event minus the fraction
// of churned sessions containing it, rounded to two decimals. Values lie
// in [-1, 1].
type CorrelationMap map[string]float64

// Correlate scores every event id observed in the converted cohort. An
// event exclusive to churned sessions is not reported; the metric is
// one-sided by design of the dashboard it feeds.
func Correlate(converted, churned []models.Session) CorrelationMap {
	convRates := presenceRates(converted)
	churnRates := presenceRates(churned)

	out := make(CorrelationMap, len(convRates))
	for id, cr := range convRates {
		out[id] = round2(cr - churnRates[id])
	}
	return out
}

// presenceRates computes, per event id, the share of sessions containing
// at least one occurrence. An empty cohort yields an empty map, so every
// lookup falls back to 0 instead of dividing by zero.
func presenceRates(sessions []models.Session) map[string]float64 {
	if len(sessions) == 0 {
		return map[string]float64{}
	}
	counts := make(map[string]int)
	for _, s := range sessions {
		seen := make(map[string]struct{}, len(s.Events))
		for _, ev := range s.Events {
			if ev.ID == "" {
				continue
			}
			if _, dup := seen[ev.ID]; dup {
				continue
			}
			seen[ev.ID] = struct{}{}
			counts[ev.ID]++
		}
	}
	rates := make(map[string]float64, len(counts))
	for id, c := range counts {
		rates[id] = float64(c) / float64(len(sessions))
	}
	return rates
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
