package timeutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateOf_UsesZone(t *testing.T) {
	// 22:30 UTC is already the next day in Moscow.
	ts := time.Date(2024, 1, 1, 22, 30, 0, 0, time.UTC)

	assert.Equal(t, NewDate(2024, 1, 2), DateOf(ts, MoscowTZ))
	assert.Equal(t, NewDate(2024, 1, 1), DateOf(ts, time.UTC))
	assert.Equal(t, NewDate(2024, 1, 2), Today(FixedClock{T: ts}, nil))
}

func TestDate_DaysUntil(t *testing.T) {
	jan1 := NewDate(2024, 1, 1)

	assert.Equal(t, 0, jan1.DaysUntil(jan1))
	assert.Equal(t, 1, jan1.DaysUntil(NewDate(2024, 1, 2)))
	assert.Equal(t, 4, jan1.DaysUntil(NewDate(2024, 1, 5)))
	assert.Equal(t, -1, jan1.DaysUntil(NewDate(2023, 12, 31)))
	assert.Equal(t, 60, jan1.DaysUntil(NewDate(2024, 3, 1)), "leap year")
	assert.True(t, jan1.Before(jan1.AddDays(1)))
	assert.True(t, jan1.After(jan1.AddDays(-1)))
}

func TestNewDate_Normalises(t *testing.T) {
	assert.Equal(t, Date{2024, time.February, 1}, NewDate(2024, 1, 32))
}

func TestParseLooseDate(t *testing.T) {
	tests := []struct {
		in   string
		want Date
	}{
		{"2024-01-05", NewDate(2024, 1, 5)},
		{"Fri Jan 05 2024", NewDate(2024, 1, 5)},
		{"2024-01-04T22:00:00Z", NewDate(2024, 1, 5)},
	}
	for _, tt := range tests {
		got, err := ParseLooseDate(tt.in, MoscowTZ)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLooseDate("yesterday", MoscowTZ)
	assert.Error(t, err)
}

func TestDate_JSON(t *testing.T) {
	type wrapper struct {
		Last Date `json:"last"`
	}

	b, err := json.Marshal(wrapper{Last: NewDate(2024, 1, 2)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"last":"2024-01-02"}`, string(b))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"last":""}`), &w))
	assert.True(t, w.Last.IsZero())

	require.NoError(t, json.Unmarshal([]byte(`{"last":"2024-03-09"}`), &w))
	assert.Equal(t, NewDate(2024, 3, 9), w.Last)

	assert.Error(t, json.Unmarshal([]byte(`{"last":"09.03.2024"}`), &w))
}

func TestPluralRu(t *testing.T) {
	assert.Equal(t, "1 день", DaysRu(1))
	assert.Equal(t, "3 дня", DaysRu(3))
	assert.Equal(t, "5 дней", DaysRu(5))
	assert.Equal(t, "11 дней", DaysRu(11))
	assert.Equal(t, "21 день", DaysRu(21))
	assert.Equal(t, "14 октября 2026", NewDate(2026, 10, 14).HumanRu())
}

