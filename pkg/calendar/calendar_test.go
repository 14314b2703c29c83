package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestGenerateCompletenessAndOrdering(t *testing.T) {
	start := date("2003-01-01")
	end := date("2003-12-31")

	days, err := Generate(start, end)
	require.NoError(t, err)
	require.Len(t, days, 365)

	assert.True(t, days[0].Date.Equal(start))
	assert.True(t, days[len(days)-1].Date.Equal(end))

	seen := make(map[string]bool, len(days))
	for i := 1; i < len(days); i++ {
		assert.True(t, days[i].Date.After(days[i-1].Date), "dates must be strictly ascending")
		assert.Equal(t, 24*time.Hour, days[i].Date.Sub(days[i-1].Date), "no gaps between days")
	}
	for _, d := range days {
		assert.False(t, seen[d.Key], "duplicate surrogate key for %s", d.Date)
		seen[d.Key] = true
	}
}

func TestGenerateThreeDayWindow(t *testing.T) {
	days, err := Generate(date("2003-01-01"), date("2003-01-03"))
	require.NoError(t, err)
	require.Len(t, days, 3)

	for i, d := range days {
		assert.Equal(t, i+1, d.DayOfMonth)
		assert.Equal(t, "January", d.MonthName)
		assert.Equal(t, 1, d.Quarter)
		assert.Equal(t, 2003, d.Year)
		assert.Equal(t, i+1, d.DayOfYear)
	}

	// 2003-01-01 was a Wednesday, ISO week 1.
	assert.Equal(t, 3, days[0].DayOfWeek)
	assert.Equal(t, 1, days[0].WeekOfYear)
}

func TestGenerateSingleDayInterval(t *testing.T) {
	days, err := Generate(date("2004-02-29"), date("2004-02-29"))
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, 29, days[0].DayOfMonth)
	assert.Equal(t, 60, days[0].DayOfYear)
}

func TestGenerateInvertedIntervalFails(t *testing.T) {
	days, err := Generate(date("2003-02-01"), date("2003-01-01"))
	assert.Error(t, err)
	assert.Nil(t, days, "inverted interval must not emit partial output")
}

func TestIsoWeekdayPinnedConvention(t *testing.T) {
	// 2003-01-06 was a Monday; the convention is Monday=1 .. Sunday=7.
	for i, want := range []int{1, 2, 3, 4, 5, 6, 7} {
		day, err := Day(date("2003-01-06").AddDate(0, 0, i))
		require.NoError(t, err)
		assert.Equal(t, want, day.DayOfWeek)
	}
}

func TestQuarterDerivation(t *testing.T) {
	expected := []int{1, 1, 1, 2, 2, 2, 3, 3, 3, 4, 4, 4}
	for m := 1; m <= 12; m++ {
		assert.Equal(t, expected[m-1], Quarter(m), "month %d", m)
	}
}

func TestDayIsTimezoneInsensitive(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	utc, err := Day(time.Date(2003, 6, 15, 23, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	local, err := Day(time.Date(2003, 6, 15, 23, 30, 0, 0, loc))
	require.NoError(t, err)

	assert.Equal(t, utc.Key, local.Key)
	assert.Equal(t, utc.Date, local.Date)
}
