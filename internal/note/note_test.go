package note

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name string
		note string
		want string
		ok   bool
	}{
		{"number", `{"max_bid": 50}`, "50", true},
		{"fraction", `{"max_bid": 12.75, "why": "lamp"}`, "12.75", true},
		{"numeric string", `{"max_bid": " 20.5 "}`, "20.5", true},
		{"exponent", `{"max_bid": 1.5e2}`, "150", true},
		{"not json", `not json`, "", false},
		{"empty", ``, "", false},
		{"array", `[{"max_bid": 5}]`, "", false},
		{"missing field", `{"bid": 5}`, "", false},
		{"null", `{"max_bid": null}`, "", false},
		{"bool", `{"max_bid": true}`, "", false},
		{"word", `{"max_bid": "lots"}`, "", false},
		{"zero", `{"max_bid": 0}`, "", false},
		{"negative", `{"max_bid": -3}`, "", false},
		{"truncated", `{"max_bid": 5`, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Parse(tc.note)
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.True(t, decimal.RequireFromString(tc.want).Equal(got), "got %s", got)
			} else {
				assert.True(t, got.IsZero())
			}
		})
	}
}

func TestMetadataAndEncode(t *testing.T) {
	n, err := Encode(decimal.RequireFromString("35.5"), map[string]any{"source": "cli", "max_bid": 1})
	require.NoError(t, err)

	v, ok := Parse(n)
	require.True(t, ok)
	assert.Equal(t, "35.5", v.String())

	meta := Metadata(n)
	assert.Equal(t, map[string]any{"source": "cli"}, meta)
	assert.Nil(t, Metadata("plain words"))
}

func TestProperty_ParseIsTotalAndIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	noteGen := gen.OneGenOf(
		gen.AnyString(),
		gen.AlphaString().Map(func(s string) string { return fmt.Sprintf(`{"max_bid": %q}`, s) }),
		gen.Float64().Map(func(f float64) string { return fmt.Sprintf(`{"max_bid": %v}`, f) }),
		gen.AnyString().Map(func(s string) string { return "{" + s }),
	)

	properties.Property("parse never panics and gives the same answer twice", prop.ForAll(
		func(n string) bool {
			a, okA := Parse(n)
			b, okB := Parse(n)
			if okA != okB || !a.Equal(b) {
				return false
			}
			return okA || a.IsZero()
		},
		noteGen,
	))

	properties.Property("positive max_bid values round trip", prop.ForAll(
		func(cents int64) bool {
			want := decimal.New(cents, -2)
			n, err := Encode(want, nil)
			if err != nil {
				return false
			}
			got, ok := Parse(n)
			return ok && got.Equal(want)
		},
		gen.Int64Range(1, 10_000_000),
	))

	properties.TestingRun(t)
}
