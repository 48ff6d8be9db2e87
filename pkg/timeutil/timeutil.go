// Package timeutil provides calendar-date utilities for the progress ledger.
// Streaks, daily quests and achievements work on whole calendar days in the
// learner's zone (Moscow time by default), never on raw timestamps.
package timeutil

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MoscowTZ is the default zone of the course (UTC+3, no DST since 2014).
var MoscowTZ = time.FixedZone("Europe/Moscow", 3*60*60)

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatJSDate is what JavaScript Date.prototype.toDateString produces.
	FormatJSDate = "Mon Jan 02 2006"
)

// ──────────────────────────────────────────────────────────────────────────────
// Clock
// ──────────────────────────────────────────────────────────────────────────────

// Clock abstracts the current time so that day boundaries are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns T.
type FixedClock struct{ T time.Time }

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.T }

// Today returns the calendar date of clock.Now() in loc.
func Today(clock Clock, loc *time.Location) Date {
	if clock == nil {
		clock = SystemClock{}
	}
	return DateOf(clock.Now(), loc)
}

// ──────────────────────────────────────────────────────────────────────────────
// Date
// ──────────────────────────────────────────────────────────────────────────────

// Date is a calendar day without time or zone. The zero Date means "never".
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate builds a normalised Date (NewDate(2024, 1, 32) is 2024-02-01).
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 12, 0, 0, 0, time.UTC), time.UTC)
}

// DateOf returns the calendar day t falls on in loc. A nil loc means MoscowTZ.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = MoscowTZ
	}
	y, m, d := t.In(loc).Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(FormatDate, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t, time.UTC), nil
}

// ParseLooseDate accepts the formats found in browser storage: YYYY-MM-DD,
// an RFC 3339 timestamp, or the output of Date.toDateString().
func ParseLooseDate(s string, loc *time.Location) (Date, error) {
	s = strings.TrimSpace(s)
	if d, err := ParseDate(s); err == nil {
		return d, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return DateOf(t, loc), nil
	}
	if t, err := time.Parse(FormatJSDate, s); err == nil {
		return DateOf(t, time.UTC), nil
	}
	return Date{}, fmt.Errorf("unrecognised date %q", s)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Time returns midnight of d in loc.
func (d Date) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = MoscowTZ
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	return NewDate(d.Year, d.Month, d.Day+n)
}

// DaysUntil returns the number of calendar days from d to other.
// It is negative when other is before d.
func (d Date) DaysUntil(other Date) int {
	a := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	b := time.Date(other.Year, other.Month, other.Day, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool { return d.DaysUntil(other) > 0 }

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool { return d.DaysUntil(other) < 0 }

// String formats d as YYYY-MM-DD, or "" for the zero Date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalJSON encodes d as "YYYY-MM-DD", or "" for the zero Date.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "YYYY-MM-DD", "" and null.
func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalText lets Date be used as a map key and in YAML.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Russian wording
// ──────────────────────────────────────────────────────────────────────────────

// PluralRu picks the Russian plural form for n: one ("день"),
// few ("дня") or many ("дней").
func PluralRu(n int, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	switch {
	case n%10 == 1 && n%100 != 11:
		return one
	case n%10 >= 2 && n%10 <= 4 && (n%100 < 12 || n%100 > 14):
		return few
	default:
		return many
	}
}

// DaysRu formats n with the Russian word for days.
func DaysRu(n int) string {
	return fmt.Sprintf("%d %s", n, PluralRu(n, "день", "дня", "дней"))
}

// MonthNameRu returns the Russian genitive month name ("января").
func MonthNameRu(m time.Month) string {
	names := []string{
		"", "января", "февраля", "марта", "апреля", "мая", "июня",
		"июля", "августа", "сентября", "октября", "ноября", "декабря",
	}
	if int(m) >= 1 && int(m) <= 12 {
		return names[m]
	}
	return ""
}

// HumanRu formats d as "14 октября 2026".
func (d Date) HumanRu() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%d %s %d", d.Day, MonthNameRu(d.Month), d.Year)
}
