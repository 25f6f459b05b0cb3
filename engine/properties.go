package engine

import (
	"sort"

	"questmetrics/api/models"
)

const maxPropertySamples = 10

// DiscoverProperties scans every event in the batch and classifies each
// non-system field. Classification depends only on the collected sample
// set and applies fixed rules in a fixed order, so the same batch always
// yields the same descriptor map:
//
//	null        every sample is null
//	boolean     every non-null sample is a bool
//	numeric     every non-null sample coerces losslessly to a finite number
//	categorical anything else
//
// The resulting types drive filter-operator choices, value formatting and
// the churn analyzer's bucketing.
func DiscoverProperties(sessions []models.Session) map[string]models.PropertyDescriptor {
	type scan struct {
		samples    []any
		eventTypes map[string]struct{}
		total      int
	}
	scans := make(map[string]*scan)

	for _, s := range sessions {
		for _, ev := range s.Events {
			for name, v := range ev.Fields {
				if models.IsReservedField(name) {
					continue
				}
				sc := scans[name]
				if sc == nil {
					sc = &scan{eventTypes: make(map[string]struct{})}
					scans[name] = sc
				}
				sc.total++
				sc.eventTypes[ev.ID] = struct{}{}
				if len(sc.samples) < maxPropertySamples {
					sc.samples = append(sc.samples, v)
				}
			}
		}
	}

	out := make(map[string]models.PropertyDescriptor, len(scans))
	for name, sc := range scans {
		types := make([]string, 0, len(sc.eventTypes))
		for t := range sc.eventTypes {
			types = append(types, t)
		}
		sort.Strings(types)
		out[name] = models.PropertyDescriptor{
			Name:             name,
			Type:             classify(sc.samples),
			SampleValues:     sc.samples,
			EventTypesSeen:   types,
			TotalOccurrences: sc.total,
		}
	}
	return out
}

func classify(samples []any) models.PropertyType {
	allNull := true
	allBool := true
	allNumeric := true
	for _, v := range samples {
		if v == nil {
			continue
		}
		allNull = false
		if _, ok := v.(bool); !ok {
			allBool = false
		}
		if _, ok := models.CoerceNumber(v); !ok {
			allNumeric = false
		}
	}
	switch {
	case allNull:
		return models.PropertyNull
	case allBool:
		return models.PropertyBoolean
	case allNumeric:
		return models.PropertyNumeric
	default:
		return models.PropertyCategorical
	}
}
