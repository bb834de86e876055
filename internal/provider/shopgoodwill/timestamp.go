package shopgoodwill

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

const timestampLayout = "2006-01-02T15:04:05"

// Marketplace timestamps are Pacific wall-clock times without a zone, with
// fractional seconds present on some values and not others.
var pacific = mustLoadLocation("America/Los_Angeles")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// ParseTimestamp reads a marketplace timestamp such as "2025-04-29T23:00:17.45"
// and returns it in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	raw := strings.TrimSpace(s)
	if i := strings.IndexByte(raw, '.'); i >= 0 {
		raw = raw[:i]
	}
	t, err := time.ParseInLocation(timestampLayout, raw, pacific)
	if err != nil {
		return time.Time{}, fmt.Errorf("endTime %q: %w", s, err)
	}
	return t.UTC(), nil
}

// FormatTimestamp is the inverse of ParseTimestamp, without fractions.
func FormatTimestamp(t time.Time) string {
	return t.In(pacific).Format(timestampLayout)
}

// jsonNumber accepts numbers, quoted numbers and null.
type jsonNumber string

func (n *jsonNumber) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*n = ""
		return nil
	}
	*n = jsonNumber(strings.TrimSpace(strings.Trim(s, `"`)))
	return nil
}

func (n jsonNumber) Int64() (int64, error) {
	if n == "" {
		return 0, errors.New("missing")
	}
	return strconv.ParseInt(string(n), 10, 64)
}
