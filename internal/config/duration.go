package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Duration accepts Go duration syntax ("90s"), bare numbers of seconds and
// phrases such as "30 seconds" or "1 hour and 15 minutes".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	v, err := ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

var durationUnits = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
	"w": 7 * 24 * time.Hour, "week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour,
}

func ParseDuration(s string) (time.Duration, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}

	fields := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return unicode.IsSpace(r) || r == ','
	})
	var (
		total   time.Duration
		pending *float64
		matched bool
	)
	for _, f := range fields {
		if f == "and" {
			continue
		}
		num, unit := splitNumberUnit(f)
		if num != "" {
			if pending != nil {
				return 0, fmt.Errorf("invalid duration %q", s)
			}
			n, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q", s)
			}
			pending = &n
		}
		if unit == "" {
			continue
		}
		mult, ok := durationUnits[unit]
		if !ok || pending == nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		total += time.Duration(*pending * float64(mult))
		pending = nil
		matched = true
	}
	if pending != nil || !matched {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return total, nil
}

func splitNumberUnit(f string) (string, string) {
	i := 0
	for i < len(f) && (f[i] == '.' || (f[i] >= '0' && f[i] <= '9')) {
		i++
	}
	return f[:i], f[i:]
}
