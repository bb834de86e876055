// Package note reads the max bid a user stores in a favorite's free-text note.
//
// A note such as {"max_bid": 42.5, "why": "matches set"} carries a ceiling for
// the sniper. Anything that is not a JSON object with a positive numeric
// max_bid simply means "do not bid"; it is never an error.
package note

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

const MaxBidField = "max_bid"

// MaxLength is the longest note the marketplace stores.
const MaxLength = 256

// Parse returns the max bid of a note, or false when the note carries none.
func Parse(note string) (decimal.Decimal, bool) {
	fields, ok := decode(note)
	if !ok {
		return decimal.Zero, false
	}
	raw, ok := fields[MaxBidField]
	if !ok {
		return decimal.Zero, false
	}
	v, ok := toDecimal(raw)
	if !ok || !v.IsPositive() {
		return decimal.Zero, false
	}
	return v, true
}

// Metadata returns every field of the note except max_bid.
func Metadata(note string) map[string]any {
	fields, ok := decode(note)
	if !ok {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, raw := range fields {
		if k == MaxBidField {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			out[k] = v
		}
	}
	return out
}

// Encode builds a note holding maxBid plus extra metadata.
func Encode(maxBid decimal.Decimal, extra map[string]any) (string, error) {
	fields := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		fields[k] = v
	}
	fields[MaxBidField] = json.Number(maxBid.String())
	b, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decode(note string) (map[string]json.RawMessage, bool) {
	s := strings.TrimSpace(note)
	if s == "" || s[0] != '{' {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return nil, false
	}
	return fields, true
}

func toDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return decimal.Zero, false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, false
		}
		v, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return decimal.Zero, false
		}
		return v, true
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		v, err := decimal.NewFromString(string(raw))
		if err != nil {
			return decimal.Zero, false
		}
		return v, true
	default:
		return decimal.Zero, false
	}
}
