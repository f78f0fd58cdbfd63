package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTicker(t *testing.T) {
	tests := []struct {
		in      string
		want    Ticker
		wantErr bool
	}{
		{in: "7203", want: "7203.T"},
		{in: "72030", want: "7203.T"},
		{in: " 7203.t ", want: "7203.T"},
		{in: "130a0", want: "130A.T"},
		{in: "12345", want: "12345.T"},
		{in: "AAPL.US", want: "AAPL.US"},
		{in: "", wantErr: true},
		{in: "72 03", wantErr: true},
		{in: ".T", wantErr: true},
		{in: "7203.", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeTicker(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTickerAPICode(t *testing.T) {
	assert.Equal(t, "72030", Ticker("7203.T").APICode())
	assert.Equal(t, "130A0", Ticker("130A.T").APICode())
	assert.Equal(t, "12345", Ticker("12345.T").APICode())
	assert.Equal(t, "AAPL", Ticker("AAPL.US").APICode())
	assert.Equal(t, "T", Ticker("7203.T").Market())
	assert.Equal(t, "7203", Ticker("7203.T").Code())
}

func TestNormalizeRoundTripsAPICode(t *testing.T) {
	for _, raw := range []string{"1301", "7203", "9984", "130A"} {
		tk, err := NormalizeTicker(raw)
		require.NoError(t, err)
		back, err := NormalizeTicker(tk.APICode())
		require.NoError(t, err)
		assert.Equal(t, tk, back)
	}
}

func TestDedupeTickers(t *testing.T) {
	got := DedupeTickers([]Ticker{"2.T", "1.T", "2.T", "3.T", "1.T"})
	assert.Equal(t, []Ticker{"2.T", "1.T", "3.T"}, got)
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1234", 1234, true},
		{"1,234.5", 1234.5, true},
		{" -12 ", -12, true},
		{"0", 0, true},
		{"", 0, false},
		{"-", 0, false},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumber(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}
	assert.Nil(t, ParseNumberPtr(""))
	assert.Equal(t, 5.0, *ParseNumberPtr("5"))
}

func TestSkipCodeFor(t *testing.T) {
	assert.Equal(t, SkipSharesUndefined, SkipCodeFor(ErrSharesUndefined))
	assert.Equal(t, SkipLiabilitiesUndefined, SkipCodeFor(ErrLiabilitiesUndefined))
	assert.Equal(t, SkipMetricUndefined, SkipCodeFor(ErrCurrentAssetsMissing))
	assert.Equal(t, SkipStale, SkipCodeFor(NewSkipError("7203.T", time.Time{}, "resolve", ErrStale)))
	assert.Equal(t, SkipOther, SkipCodeFor(assert.AnError))
}
