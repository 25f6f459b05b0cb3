// api/internal/models/session.go
package models

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Fields the analytics pipeline owns. They identify and order events and are
// never treated as dynamic gameplay properties.
var reservedFields = map[string]struct{}{
	"sid":       {},
	"id":        {},
	"timestamp": {},
	"clientID":  {},
	"sessionID": {},
	"time":      {},
}

// IsReservedField reports whether name is a system field rather than a
// dynamic event property.
func IsReservedField(name string) bool {
	_, ok := reservedFields[name]
	return ok
}

// Attributes is the dynamic field bag of an event. Values are scalars as
// decoded from JSON (string, float64, bool) or whatever the caller put in.
type Attributes map[string]any

// Number coerces the named field to a float64. Strings are parsed; anything
// that does not losslessly become a finite number reports false.
func (a Attributes) Number(name string) (float64, bool) {
	v, ok := a[name]
	if !ok || v == nil {
		return 0, false
	}
	return CoerceNumber(v)
}

// Str coerces the named field to its string form.
func (a Attributes) Str(name string) (string, bool) {
	v, ok := a[name]
	if !ok || v == nil {
		return "", false
	}
	return CoerceString(v), true
}

// Bool returns the named field if it is a boolean.
func (a Attributes) Bool(name string) (bool, bool) {
	v, ok := a[name]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// CoerceNumber converts a scalar to a finite float64 if possible.
func CoerceNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return 0, false
	}
}

// CoerceString renders a scalar the way it would appear to an analyst.
// Whole-number floats print without a decimal point.
func CoerceString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// EventRecord is one analytics event: an event type id, an instant, the
// client that produced it and a bag of dynamic fields. Immutable once
// ingested; the engine only reads it.
type EventRecord struct {
	ID        string
	Timestamp time.Time
	ClientID  string
	Fields    Attributes
}

// UnmarshalJSON pulls the system fields out of the raw object and keeps
// every remaining key in Fields. An event missing id or a parseable
// timestamp is kept with zero values; it then never matches anything,
// which is how malformed input degrades (no error, no panic).
func (e *EventRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Fields = make(Attributes)
	for k, v := range raw {
		switch k {
		case "id":
			e.ID, _ = v.(string)
		case "timestamp", "time":
			if e.Timestamp.IsZero() {
				e.Timestamp = parseTimestamp(v)
			}
		case "clientID":
			e.ClientID, _ = v.(string)
		case "sid", "sessionID":
			// session identity is carried by the enclosing Session
		default:
			e.Fields[k] = v
		}
	}
	return nil
}

// MarshalJSON emits the flat wire shape the trackers send.
func (e EventRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+3)
	for k, v := range e.Fields {
		out[k] = v
	}
	out["id"] = e.ID
	out["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	if e.ClientID != "" {
		out["clientID"] = e.ClientID
	}
	return json.Marshal(out)
}

func parseTimestamp(v any) time.Time {
	switch t := v.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts
			}
		}
	case float64:
		// epoch milliseconds, the other shape trackers deliver
		return time.UnixMilli(int64(t)).UTC()
	}
	return time.Time{}
}

// Session is the ordered event sequence of one player run. Events must be
// sorted by timestamp ascending; funnel matching and tree depth both depend
// on that order.
type Session struct {
	ID     string        `json:"sessionId"`
	Events []EventRecord `json:"events"`
}

// Duration is the span from the first to the last event.
func (s Session) Duration() time.Duration {
	if len(s.Events) < 2 {
		return 0
	}
	return s.Events[len(s.Events)-1].Timestamp.Sub(s.Events[0].Timestamp)
}
