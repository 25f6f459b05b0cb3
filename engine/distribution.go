package engine

import (
	"math"
	"sort"
	"strconv"

	"questmetrics/api/models"
)

const maxCategoricalBuckets = 20

// ValueDistributions computes, per funnel step and per discovered
// property, the converted-vs-churned value distribution. Numeric
// properties get min(10, ceil(sqrt(n))) equal-width bins over [min, max];
// categorical and boolean properties get per-value buckets capped at the
// top 20 by total count.
func (a ChurnAnalyzer) ValueDistributions(sessions []models.Session, steps []models.FunnelStep, props map[string]models.PropertyDescriptor) []models.ValueDistribution {
	if len(steps) == 0 || len(sessions) == 0 {
		return nil
	}
	prefixes := a.prefixes(sessions, steps)
	names := sortedPropertyNames(props)

	var out []models.ValueDistribution
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
		for _, name := range names {
			desc := props[name]
			var dist models.ValueDistribution
			switch desc.Type {
			case models.PropertyNumeric:
				dist = numericDistribution(sessions, conv, churn, name)
			case models.PropertyBoolean, models.PropertyCategorical:
				dist = categoricalDistribution(sessions, conv, churn, name)
			default:
				continue
			}
			if len(dist.Buckets) == 0 {
				continue
			}
			dist.EventID = step.EventID
			dist.StepIndex = i
			dist.Property = name
			dist.Type = desc.Type
			out = append(out, dist)
		}
	}
	return out
}

func numericDistribution(sessions []models.Session, conv, churn []int, name string) models.ValueDistribution {
	convVals := collectNumbers(sessions, conv, name)
	churnVals := collectNumbers(sessions, churn, name)
	n := len(convVals) + len(churnVals)
	if n == 0 {
		return models.ValueDistribution{}
	}

	var lo, hi float64
	if len(convVals) > 0 {
		lo, hi = convVals[0], convVals[0]
	} else {
		lo, hi = churnVals[0], churnVals[0]
	}
	for _, v := range convVals {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	for _, v := range churnVals {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}

	bucketCount := int(math.Ceil(math.Sqrt(float64(n))))
	if bucketCount > 10 {
		bucketCount = 10
	}
	if lo == hi {
		bucketCount = 1
	}
	width := (hi - lo) / float64(bucketCount)

	buckets := make([]models.ValueBucket, bucketCount)
	for b := range buckets {
		from := lo + float64(b)*width
		to := from + width
		buckets[b].Label = formatBound(from) + " – " + formatBound(to)
	}
	place := func(v float64) int {
		if width == 0 {
			return 0
		}
		b := int((v - lo) / width)
		if b >= bucketCount {
			b = bucketCount - 1
		}
		return b
	}
	for _, v := range convVals {
		buckets[place(v)].ConvertedCount++
	}
	for _, v := range churnVals {
		buckets[place(v)].ChurnedCount++
	}
	return models.ValueDistribution{Buckets: buckets}
}

func categoricalDistribution(sessions []models.Session, conv, churn []int, name string) models.ValueDistribution {
	convCounts := collectStrings(sessions, conv, name)
	churnCounts := collectStrings(sessions, churn, name)

	values := make(map[string]struct{})
	for v := range convCounts {
		values[v] = struct{}{}
	}
	for v := range churnCounts {
		values[v] = struct{}{}
	}
	if len(values) == 0 {
		return models.ValueDistribution{}
	}

	buckets := make([]models.ValueBucket, 0, len(values))
	for v := range values {
		buckets = append(buckets, models.ValueBucket{
			Label:          v,
			ConvertedCount: convCounts[v],
			ChurnedCount:   churnCounts[v],
		})
	}
	sort.SliceStable(buckets, func(i, j int) bool {
		ti := buckets[i].ConvertedCount + buckets[i].ChurnedCount
		tj := buckets[j].ConvertedCount + buckets[j].ChurnedCount
		if ti != tj {
			return ti > tj
		}
		return buckets[i].Label < buckets[j].Label
	})
	if len(buckets) > maxCategoricalBuckets {
		buckets = buckets[:maxCategoricalBuckets]
	}
	return models.ValueDistribution{Buckets: buckets}
}

func collectNumbers(sessions []models.Session, cohort []int, name string) []float64 {
	var out []float64
	for _, si := range cohort {
		for _, ev := range sessions[si].Events {
			if v, ok := ev.Fields.Number(name); ok {
				out = append(out, v)
			}
		}
	}
	return out
}

func collectStrings(sessions []models.Session, cohort []int, name string) map[string]int {
	out := make(map[string]int)
	for _, si := range cohort {
		for _, ev := range sessions[si].Events {
			if v, ok := ev.Fields.Str(name); ok {
				out[v]++
			}
		}
	}
	return out
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
