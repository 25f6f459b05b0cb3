package engine

import (
	"math"
	"sort"

	"questmetrics/api/models"
)

const topCategoricalFeatureValues = 5

// FeatureImportance builds a flat numeric feature vector per session,
// labels sessions by full-funnel conversion, and scores every feature by
// the absolute difference of its cohort means. This is an explicitly
// heuristic ranking: no model is trained, and the reported accuracy is
// just the majority-class baseline.
func (a ChurnAnalyzer) FeatureImportance(sessions []models.Session, steps []models.FunnelStep, props map[string]models.PropertyDescriptor) models.ImportanceReport {
	report := models.ImportanceReport{}
	if len(sessions) == 0 {
		return report
	}

	extractor := newFeatureExtractor(sessions, steps, props)

	var convSums, churnSums map[string]float64
	convSums = make(map[string]float64)
	churnSums = make(map[string]float64)
	for _, s := range sessions {
		converted := a.Matcher.Matches(s, steps, ModeConversion)
		vec := extractor.extract(s, steps, a.Matcher)
		sums := churnSums
		if converted {
			report.ConvertedCount++
			sums = convSums
		} else {
			report.ChurnedCount++
		}
		for f, v := range vec {
			sums[f] += v
		}
	}

	total := float64(report.ConvertedCount + report.ChurnedCount)
	report.Accuracy = math.Max(float64(report.ConvertedCount), float64(report.ChurnedCount)) / total

	for _, f := range extractor.featureNames() {
		convMean := 0.0
		if report.ConvertedCount > 0 {
			convMean = convSums[f] / float64(report.ConvertedCount)
		}
		churnMean := 0.0
		if report.ChurnedCount > 0 {
			churnMean = churnSums[f] / float64(report.ChurnedCount)
		}
		diff := convMean - churnMean
		score := models.FeatureScore{Feature: f, Importance: math.Abs(diff)}
		switch {
		case diff > 0:
			score.Direction = 1
		case diff < 0:
			score.Direction = -1
		}
		report.Features = append(report.Features, score)
	}
	sort.SliceStable(report.Features, func(i, j int) bool {
		if report.Features[i].Importance != report.Features[j].Importance {
			return report.Features[i].Importance > report.Features[j].Importance
		}
		return report.Features[i].Feature < report.Features[j].Feature
	})
	return report
}

// featureExtractor fixes the feature dimensions up front (observed event
// ids, typed properties, top categorical values) so every session maps to
// the same vector.
type featureExtractor struct {
	eventIDs    []string
	numeric     []string
	boolean     []string
	categorical map[string][]string // property -> top values
	names       []string
}

func newFeatureExtractor(sessions []models.Session, steps []models.FunnelStep, props map[string]models.PropertyDescriptor) *featureExtractor {
	fx := &featureExtractor{categorical: make(map[string][]string)}

	idSet := make(map[string]struct{})
	for _, s := range sessions {
		for _, ev := range s.Events {
			if ev.ID != "" {
				idSet[ev.ID] = struct{}{}
			}
		}
	}
	for id := range idSet {
		fx.eventIDs = append(fx.eventIDs, id)
	}
	sort.Strings(fx.eventIDs)

	for _, name := range sortedPropertyNames(props) {
		switch props[name].Type {
		case models.PropertyNumeric:
			fx.numeric = append(fx.numeric, name)
		case models.PropertyBoolean:
			fx.boolean = append(fx.boolean, name)
		case models.PropertyCategorical:
			fx.categorical[name] = topValues(sessions, name, topCategoricalFeatureValues)
		}
	}

	fx.names = append(fx.names, "sessionLength", "uniqueEvents", "avgEventGapSec", "sessionDurationSec", "funnelTimeSec")
	for _, id := range fx.eventIDs {
		fx.names = append(fx.names, "has_"+id, "count_"+id)
	}
	for _, p := range fx.numeric {
		fx.names = append(fx.names, p+"_total", p+"_avg", p+"_max", p+"_min")
	}
	for _, p := range fx.boolean {
		fx.names = append(fx.names, p+"_true", p+"_trueCount")
	}
	for _, name := range sortedPropertyNames(props) {
		for _, v := range fx.categorical[name] {
			fx.names = append(fx.names, name+"_is_"+v)
		}
	}
	return fx
}

func (fx *featureExtractor) featureNames() []string {
	return fx.names
}

func (fx *featureExtractor) extract(s models.Session, steps []models.FunnelStep, m Matcher) map[string]float64 {
	vec := make(map[string]float64, len(fx.names))

	vec["sessionLength"] = float64(len(s.Events))
	unique := make(map[string]struct{}, len(s.Events))
	counts := make(map[string]int, len(s.Events))
	for _, ev := range s.Events {
		unique[ev.ID] = struct{}{}
		counts[ev.ID]++
	}
	vec["uniqueEvents"] = float64(len(unique))
	vec["sessionDurationSec"] = s.Duration().Seconds()
	if len(s.Events) > 1 {
		vec["avgEventGapSec"] = s.Duration().Seconds() / float64(len(s.Events)-1)
	}
	vec["funnelTimeSec"] = funnelTime(s, steps, m)

	for _, id := range fx.eventIDs {
		if counts[id] > 0 {
			vec["has_"+id] = 1
		}
		vec["count_"+id] = float64(counts[id])
	}

	for _, p := range fx.numeric {
		var sum, max, min float64
		var n int
		for _, ev := range s.Events {
			v, ok := ev.Fields.Number(p)
			if !ok {
				continue
			}
			if n == 0 {
				max, min = v, v
			} else {
				max = math.Max(max, v)
				min = math.Min(min, v)
			}
			sum += v
			n++
		}
		vec[p+"_total"] = sum
		if n > 0 {
			vec[p+"_avg"] = sum / float64(n)
			vec[p+"_max"] = max
			vec[p+"_min"] = min
		}
	}

	for _, p := range fx.boolean {
		var trues int
		for _, ev := range s.Events {
			if v, ok := ev.Fields.Bool(p); ok && v {
				trues++
			}
		}
		if trues > 0 {
			vec[p+"_true"] = 1
		}
		vec[p+"_trueCount"] = float64(trues)
	}

	for p, values := range fx.categorical {
		present := make(map[string]struct{})
		for _, ev := range s.Events {
			if v, ok := ev.Fields.Str(p); ok {
				present[v] = struct{}{}
			}
		}
		for _, v := range values {
			if _, ok := present[v]; ok {
				vec[p+"_is_"+v] = 1
			}
		}
	}
	return vec
}

// funnelTime is the span in seconds from the session's first event to the
// last funnel step it managed to match; 0 when nothing matched.
func funnelTime(s models.Session, steps []models.FunnelStep, m Matcher) float64 {
	if len(s.Events) == 0 || len(steps) == 0 {
		return 0
	}
	idxs := m.MatchedIndexes(s, steps)
	last := -1
	for _, idx := range idxs {
		if idx >= 0 {
			last = idx
		}
	}
	if last < 0 {
		return 0
	}
	span := s.Events[last].Timestamp.Sub(s.Events[0].Timestamp).Seconds()
	if span < 0 {
		return 0
	}
	return span
}

// topValues returns the property's most frequent string values across the
// whole batch, count-descending with lexicographic tie-break.
func topValues(sessions []models.Session, name string, limit int) []string {
	counts := make(map[string]int)
	for _, s := range sessions {
		for _, ev := range s.Events {
			if v, ok := ev.Fields.Str(name); ok {
				counts[v]++
			}
		}
	}
	values := make([]string, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool {
		if counts[values[i]] != counts[values[j]] {
			return counts[values[i]] > counts[values[j]]
		}
		return values[i] < values[j]
	})
	if len(values) > limit {
		values = values[:limit]
	}
	return values
}
