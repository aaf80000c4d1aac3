package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestTradingDaysFullWeek(t *testing.T) {
	// 2024-01-01 is a Monday; the week has exactly five weekdays. Public
	// holidays still count: the portal publishes statements for them.
	days := TradingDays(date(2024, time.January, 1), date(2024, time.January, 7))

	require.Len(t, days, 5)
	assert.Equal(t, date(2024, time.January, 1), days[0])
	assert.Equal(t, date(2024, time.January, 5), days[4])
	for _, d := range days {
		assert.NotEqual(t, time.Saturday, d.Weekday())
		assert.NotEqual(t, time.Sunday, d.Weekday())
	}
}

func TestTradingDaysWeekendOnly(t *testing.T) {
	// 2024-01-06/07 is a Saturday/Sunday pair.
	days := TradingDays(date(2024, time.January, 6), date(2024, time.January, 7))
	assert.Empty(t, days)
}

func TestTradingDaysSingleDay(t *testing.T) {
	days := TradingDays(date(2024, time.January, 3), date(2024, time.January, 3))
	require.Len(t, days, 1)
	assert.Equal(t, date(2024, time.January, 3), days[0])
}

func TestTradingDaysChronological(t *testing.T) {
	days := TradingDays(date(2024, time.February, 1), date(2024, time.March, 15))
	for i := 1; i < len(days); i++ {
		assert.True(t, days[i].After(days[i-1]))
	}
}

func TestMonthStartsInclusive(t *testing.T) {
	// Both endpoint months are included even when the range starts and ends
	// mid-month.
	months := MonthStarts(date(2024, time.January, 15), date(2024, time.March, 1))

	require.Len(t, months, 3)
	assert.Equal(t, date(2024, time.January, 1), months[0])
	assert.Equal(t, date(2024, time.February, 1), months[1])
	assert.Equal(t, date(2024, time.March, 1), months[2])
}

func TestMonthStartsSingleMonth(t *testing.T) {
	months := MonthStarts(date(2024, time.June, 10), date(2024, time.June, 20))
	require.Len(t, months, 1)
	assert.Equal(t, date(2024, time.June, 1), months[0])
}

func TestMonthStartsAcrossYears(t *testing.T) {
	months := MonthStarts(date(2023, time.November, 30), date(2024, time.February, 2))
	require.Len(t, months, 4)
	assert.Equal(t, date(2023, time.November, 1), months[0])
	assert.Equal(t, date(2024, time.February, 1), months[3])
}
