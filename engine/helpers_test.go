package engine

import (
	"time"

	"questmetrics/api/models"
)

var testBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func ev(id string, offsetSec int, fields models.Attributes) models.EventRecord {
	if fields == nil {
		fields = models.Attributes{}
	}
	return models.EventRecord{
		ID:        id,
		Timestamp: testBase.Add(time.Duration(offsetSec) * time.Second),
		ClientID:  "client-1",
		Fields:    fields,
	}
}

func sess(id string, events ...models.EventRecord) models.Session {
	return models.Session{ID: id, Events: events}
}

func step(eventID string, filters ...models.FieldFilter) models.FunnelStep {
	return models.FunnelStep{EventID: eventID, Filters: filters}
}

func filter(field string, cond models.FilterCondition, value string) models.FieldFilter {
	return models.FieldFilter{Field: field, Condition: cond, Value: value}
}
