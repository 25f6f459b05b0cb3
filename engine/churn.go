package engine

import (
	"math"
	"sort"

	"questmetrics/api/models"
)

// churnRateCriticalPct marks a step as a critical churn point when more
// than this share of all sessions is lost there.
const churnRateCriticalPct = 10.0

// impactSignificanceShare is the fraction of the larger cohort mean that
// the mean difference must exceed for "high" significance.
const impactSignificanceShare = 0.10

// ChurnAnalyzer computes per-step conversion/churn statistics and the
// companion property reports for one funnel over one session batch. It
// re-derives reached/not-reached per step from the raw sessions via the
// embedded matcher, so it shares the matcher's session-length exclusion.
type ChurnAnalyzer struct {
	Matcher Matcher
}

// prefixes returns, per session, how many leading steps it satisfies.
func (a ChurnAnalyzer) prefixes(sessions []models.Session, steps []models.FunnelStep) []int {
	out := make([]int, len(sessions))
	for i, s := range sessions {
		out[i] = a.Matcher.PrefixLength(s, steps)
	}
	return out
}

// convertedAt reports whether a session that reached step i went on to the
// next step; at the last step reaching is converting.
func convertedAt(prefix, step, totalSteps int) bool {
	if prefix <= step {
		return false
	}
	if step == totalSteps-1 {
		return true
	}
	return prefix >= step+2
}

// Analyze produces the churn report: per-step conversion and churn rates,
// time-to-reach averages and the ranked critical churn points.
func (a ChurnAnalyzer) Analyze(sessions []models.Session, steps []models.FunnelStep) models.ChurnReport {
	report := models.ChurnReport{TotalSessions: len(sessions)}
	if len(steps) == 0 {
		return report
	}

	prefixes := a.prefixes(sessions, steps)
	total := float64(len(sessions))

	reached := make([]int, len(steps))
	for _, p := range prefixes {
		for i := 0; i < p; i++ {
			reached[i]++
		}
	}

	prevRate := 0.0
	prevReached := 0
	for i, step := range steps {
		rate := 0.0
		if total > 0 {
			rate = float64(reached[i]) / total * 100
		}
		stat := models.StepStat{
			EventID:               step.EventID,
			StepIndex:             i,
			ConvertedSessionCount: reached[i],
			ConversionRate:        rate,
			AvgTimeToReachSec:     a.avgTimeToReach(sessions, steps, prefixes, i),
		}
		if i > 0 {
			stat.ChurnRate = prevRate - rate
			stat.ChurnedSessionCount = prevReached - reached[i]
		}
		report.FunnelSteps = append(report.FunnelSteps, stat)
		prevRate, prevReached = rate, reached[i]
	}

	report.OverallConversionRate = report.FunnelSteps[len(steps)-1].ConversionRate

	for _, stat := range report.FunnelSteps {
		if stat.StepIndex > 0 && stat.ChurnRate > churnRateCriticalPct {
			report.CriticalPoints = append(report.CriticalPoints, stat)
		}
	}
	sort.SliceStable(report.CriticalPoints, func(i, j int) bool {
		return report.CriticalPoints[i].ChurnRate > report.CriticalPoints[j].ChurnRate
	})
	return report
}

// avgTimeToReach averages, over sessions that reached the step, the
// seconds from the session's first event to the event that satisfied the
// step. Non-positive spans are skipped so a step matched by the opening
// event does not drag the average to zero.
func (a ChurnAnalyzer) avgTimeToReach(sessions []models.Session, steps []models.FunnelStep, prefixes []int, step int) float64 {
	var sum float64
	var n int
	for si, s := range sessions {
		if prefixes[si] <= step || len(s.Events) == 0 {
			continue
		}
		idxs := a.Matcher.MatchedIndexes(s, steps)
		if idxs[step] < 0 {
			continue
		}
		span := s.Events[idxs[step]].Timestamp.Sub(s.Events[0].Timestamp).Seconds()
		if span > 0 {
			sum += span
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// PropertyImpact compares, per funnel step and per discovered property,
// the sessions that passed the step against those that churned there.
// Numeric properties report cohort means and a mean-difference impact,
// booleans a true-rate difference, categoricals per-category presence-rate
// differences sorted by absolute impact.
func (a ChurnAnalyzer) PropertyImpact(sessions []models.Session, steps []models.FunnelStep, props map[string]models.PropertyDescriptor) []models.StepPropertyImpact {
	if len(steps) == 0 || len(sessions) == 0 {
		return nil
	}
	prefixes := a.prefixes(sessions, steps)
	names := sortedPropertyNames(props)

	out := make([]models.StepPropertyImpact, 0, len(steps))
	for i, step := range steps {
		var conv, churn []int
		for si, p := range prefixes {
			if p <= i {
				continue
			}
			if convertedAt(p, i, len(steps)) {
				conv = append(conv, si)
			} else {
				churn = append(churn, si)
			}
		}

		stepImpact := models.StepPropertyImpact{EventID: step.EventID, StepIndex: i}
		for _, name := range names {
			desc := props[name]
			switch desc.Type {
			case models.PropertyNumeric:
				stepImpact.Impacts = append(stepImpact.Impacts, numericImpact(sessions, conv, churn, name))
			case models.PropertyBoolean:
				stepImpact.Impacts = append(stepImpact.Impacts, booleanImpact(sessions, conv, churn, name))
			case models.PropertyCategorical:
				stepImpact.Impacts = append(stepImpact.Impacts, categoricalImpact(sessions, conv, churn, name))
			}
		}
		out = append(out, stepImpact)
	}
	return out
}

func numericImpact(sessions []models.Session, conv, churn []int, name string) models.PropertyImpact {
	convMean := cohortMean(sessions, conv, name)
	churnMean := cohortMean(sessions, churn, name)
	diff := convMean - churnMean
	maxMean := math.Max(math.Abs(convMean), math.Abs(churnMean))

	imp := models.PropertyImpact{
		Property:      name,
		Type:          models.PropertyNumeric,
		ConvertedMean: convMean,
		ChurnedMean:   churnMean,
		Significance:  "low",
	}
	if maxMean > 0 {
		imp.ImpactPercent = diff / maxMean * 100
		if math.Abs(diff) > impactSignificanceShare*maxMean {
			imp.Significance = "high"
		}
	}
	return imp
}

func booleanImpact(sessions []models.Session, conv, churn []int, name string) models.PropertyImpact {
	convRate := cohortTrueRate(sessions, conv, name)
	churnRate := cohortTrueRate(sessions, churn, name)
	return models.PropertyImpact{
		Property:      name,
		Type:          models.PropertyBoolean,
		ConvertedTrue: convRate,
		ChurnedTrue:   churnRate,
		TrueRateDiff:  convRate - churnRate,
	}
}

func categoricalImpact(sessions []models.Session, conv, churn []int, name string) models.PropertyImpact {
	convRates := categoryRates(sessions, conv, name)
	churnRates := categoryRates(sessions, churn, name)

	values := make(map[string]struct{})
	for v := range convRates {
		values[v] = struct{}{}
	}
	for v := range churnRates {
		values[v] = struct{}{}
	}

	imp := models.PropertyImpact{Property: name, Type: models.PropertyCategorical}
	for v := range values {
		imp.Categories = append(imp.Categories, models.CategoryImpact{
			Value:         v,
			ConvertedRate: convRates[v],
			ChurnedRate:   churnRates[v],
			Impact:        convRates[v] - churnRates[v],
		})
	}
	sort.SliceStable(imp.Categories, func(i, j int) bool {
		ai, aj := math.Abs(imp.Categories[i].Impact), math.Abs(imp.Categories[j].Impact)
		if ai != aj {
			return ai > aj
		}
		return imp.Categories[i].Value < imp.Categories[j].Value
	})
	return imp
}

// cohortMean averages every value of the property across every event of
// the cohort's sessions. An empty cohort or valueless property yields 0.
func cohortMean(sessions []models.Session, cohort []int, name string) float64 {
	var sum float64
	var n int
	for _, si := range cohort {
		for _, ev := range sessions[si].Events {
			if v, ok := ev.Fields.Number(name); ok {
				sum += v
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// cohortTrueRate is the share of the property's boolean values that are
// true across the cohort.
func cohortTrueRate(sessions []models.Session, cohort []int, name string) float64 {
	var trues, n int
	for _, si := range cohort {
		for _, ev := range sessions[si].Events {
			if v, ok := ev.Fields.Bool(name); ok {
				n++
				if v {
					trues++
				}
			}
		}
	}
	if n == 0 {
		return 0
	}
	return float64(trues) / float64(n)
}

// categoryRates is, per category value, the share of cohort sessions that
// carry it at least once.
func categoryRates(sessions []models.Session, cohort []int, name string) map[string]float64 {
	if len(cohort) == 0 {
		return map[string]float64{}
	}
	counts := make(map[string]int)
	for _, si := range cohort {
		seen := make(map[string]struct{})
		for _, ev := range sessions[si].Events {
			if v, ok := ev.Fields.Str(name); ok {
				if _, dup := seen[v]; !dup {
					seen[v] = struct{}{}
					counts[v]++
				}
			}
		}
	}
	rates := make(map[string]float64, len(counts))
	for v, c := range counts {
		rates[v] = float64(c) / float64(len(cohort))
	}
	return rates
}

func sortedPropertyNames(props map[string]models.PropertyDescriptor) []string {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
