package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGranularity(t *testing.T) {
	tests := []struct {
		in       string
		want     Granularity
		calendar bool
		weekly   bool
	}{
		{in: "PT5M", want: Granularity{Clock: 5 * time.Minute}},
		{in: "PT1H30M", want: Granularity{Clock: 90 * time.Minute}},
		{in: "P1D", want: Granularity{Days: 1}, calendar: true},
		{in: "P1W", want: Granularity{Days: 7}, calendar: true, weekly: true},
		{in: "P1M", want: Granularity{Months: 1}, calendar: true},
		{in: "P1DT12H", want: Granularity{Days: 1, Clock: 12 * time.Hour}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			g, err := ParseGranularity(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, g)
			assert.Equal(t, tt.calendar, g.Calendar())
			assert.Equal(t, tt.weekly, g.Weekly())
		})
	}
}

func TestParseGranularity_Errors(t *testing.T) {
	for _, in := range []string{"", "daily", "P0D", "PT0S", "-P1D", "P1.5D"} {
		_, err := ParseGranularity(in)
		assert.Error(t, err, in)
	}
}

func TestGranularity_Steps(t *testing.T) {
	tests := []struct {
		period, unit string
		want         int
	}{
		{"P28D", "P1D", 28},
		{"P4W", "P1W", 4},
		{"P1W", "P1D", 7},
		{"PT1H", "PT5M", 12},
		{"P1D", "PT1H", 24},
		{"PT10M", "PT3M", 3},
	}
	for _, tt := range tests {
		period, err := ParseGranularity(tt.period)
		require.NoError(t, err)
		unit, err := ParseGranularity(tt.unit)
		require.NoError(t, err)
		got, err := period.Steps(unit)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s / %s", tt.period, tt.unit)
	}

	_, err := Granularity{Days: 1}.Steps(Granularity{})
	assert.Error(t, err)
}

func TestGranularity_BackKeepsWallClock(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	at := time.Date(2024, time.April, 1, 9, 0, 0, 0, loc)

	back := Granularity{Days: 7}.Back(at, 1)
	assert.True(t, time.Date(2024, time.March, 25, 9, 0, 0, 0, loc).Equal(back), "got %v", back)
	assert.Equal(t, 167*time.Hour, at.Sub(back), "the week spans the DST switch")

	assert.True(t, at.Add(-30*time.Minute).Equal(Granularity{Clock: 15 * time.Minute}.Back(at, 2)))
}

func TestParseWeekday(t *testing.T) {
	for in, want := range map[string]time.Weekday{
		"monday": time.Monday, "Tue": time.Tuesday, " SUNDAY ": time.Sunday, "sat": time.Saturday,
	} {
		got, err := ParseWeekday(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseWeekday("funday")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestSpec_LookbackPoints(t *testing.T) {
	spec := DefaultSpec()
	spec.Lookback = 30
	n, err := spec.lookbackPoints()
	require.NoError(t, err)
	assert.Equal(t, 30, n)

	spec.LookbackPeriod = "P7D"
	spec.MonitoringGranularity = "PT1H"
	n, err = spec.lookbackPoints()
	require.NoError(t, err)
	assert.Equal(t, 168, n, "lookbackPeriod takes precedence")

	spec.LookbackPeriod = "weekly"
	_, err = spec.lookbackPoints()
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestSpec_ValidateCommon(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Spec)
		field  string
	}{
		{name: "pattern", modify: func(s *Spec) { s.Pattern = "SIDEWAYS" }, field: "pattern"},
		{name: "lookback", modify: func(s *Spec) { s.Lookback = -1 }, field: "lookback"},
		{name: "granularity", modify: func(s *Spec) { s.LookbackPeriod = "P1D" }, field: "monitoringGranularity"},
		{name: "timezone", modify: func(s *Spec) { s.Timezone = "Nowhere/Land" }, field: "timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := DefaultSpec()
			tt.modify(&spec)
			err := spec.validateCommon()
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
	assert.NoError(t, DefaultSpec().validateCommon())
}
