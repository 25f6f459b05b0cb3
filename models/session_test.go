package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRecordUnmarshalSplitsSystemFields(t *testing.T) {
	raw := `{
		"id": "offerPurchased",
		"timestamp": "2025-06-01T12:00:00Z",
		"clientID": "client-9",
		"sid": "session-1",
		"offerID": "starter",
		"price": 4.99
	}`

	var ev EventRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))

	assert.Equal(t, "offerPurchased", ev.ID)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), ev.Timestamp.UTC())
	assert.Equal(t, "client-9", ev.ClientID)

	assert.NotContains(t, ev.Fields, "sid", "session identity never lands in Fields")
	assert.NotContains(t, ev.Fields, "id")
	assert.NotContains(t, ev.Fields, "timestamp")

	price, ok := ev.Fields.Number("price")
	require.True(t, ok)
	assert.Equal(t, 4.99, price)
	offer, ok := ev.Fields.Str("offerID")
	require.True(t, ok)
	assert.Equal(t, "starter", offer)
}

func TestEventRecordTimestampForms(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"rfc3339", `{"id":"a","timestamp":"2025-06-01T12:00:00Z"}`, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		{"rfc3339 nano", `{"id":"a","timestamp":"2025-06-01T12:00:00.250Z"}`, time.Date(2025, 6, 1, 12, 0, 0, 250_000_000, time.UTC)},
		{"space separated", `{"id":"a","timestamp":"2025-06-01 12:00:00"}`, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		{"epoch millis", `{"id":"a","timestamp":1748779200000}`, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		{"time alias", `{"id":"a","time":"2025-06-01T12:00:00Z"}`, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var ev EventRecord
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &ev))
			assert.True(t, ev.Timestamp.Equal(tc.want), "got %v", ev.Timestamp)
		})
	}
}

func TestEventRecordMalformedDegrades(t *testing.T) {
	var ev EventRecord
	require.NoError(t, json.Unmarshal([]byte(`{"timestamp":"garbage","price":1}`), &ev))
	assert.Empty(t, ev.ID)
	assert.True(t, ev.Timestamp.IsZero())
	assert.Contains(t, ev.Fields, "price")
}

func TestEventRecordMarshalRoundTrip(t *testing.T) {
	ev := EventRecord{
		ID:        "levelStart",
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		ClientID:  "client-1",
		Fields:    Attributes{"level": float64(3)},
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var back EventRecord
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ev.ID, back.ID)
	assert.Equal(t, ev.ClientID, back.ClientID)
	assert.True(t, ev.Timestamp.Equal(back.Timestamp))
	assert.Equal(t, ev.Fields, back.Fields)
}

func TestAttributesCoercion(t *testing.T) {
	a := Attributes{
		"count":  float64(3),
		"label":  "hard",
		"asText": "42",
		"flag":   true,
		"empty":  nil,
	}

	n, ok := a.Number("count")
	assert.True(t, ok)
	assert.Equal(t, 3.0, n)

	n, ok = a.Number("asText")
	assert.True(t, ok, "numeric strings parse")
	assert.Equal(t, 42.0, n)

	_, ok = a.Number("label")
	assert.False(t, ok)
	_, ok = a.Number("empty")
	assert.False(t, ok)
	_, ok = a.Number("missing")
	assert.False(t, ok)

	s, ok := a.Str("flag")
	assert.True(t, ok)
	assert.Equal(t, "true", s)
	_, ok = a.Str("empty")
	assert.False(t, ok)

	b, ok := a.Bool("flag")
	assert.True(t, ok)
	assert.True(t, b)
	_, ok = a.Bool("label")
	assert.False(t, ok)
}

func TestCoerceString(t *testing.T) {
	assert.Equal(t, "7", CoerceString(float64(7)))
	assert.Equal(t, "7.5", CoerceString(float64(7.5)))
	assert.Equal(t, "false", CoerceString(false))
	assert.Equal(t, "x", CoerceString("x"))
	assert.Equal(t, "", CoerceString(nil))
}

func TestIsReservedField(t *testing.T) {
	for _, name := range []string{"sid", "id", "timestamp", "clientID", "sessionID", "time"} {
		assert.True(t, IsReservedField(name), name)
	}
	assert.False(t, IsReservedField("price"))
}

func TestSessionDuration(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := Session{Events: []EventRecord{
		{ID: "a", Timestamp: base},
		{ID: "b", Timestamp: base.Add(90 * time.Second)},
	}}
	assert.Equal(t, 90*time.Second, s.Duration())

	assert.Zero(t, Session{}.Duration())
	assert.Zero(t, Session{Events: []EventRecord{{ID: "a", Timestamp: base}}}.Duration())
}
