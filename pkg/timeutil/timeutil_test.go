package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDayKey_UsesUTC(t *testing.T) {
	madrid := time.FixedZone("CET", 2*60*60)
	local := time.Date(2024, 3, 10, 1, 30, 0, 0, madrid) // 2024-03-09 23:30 UTC

	assert.Equal(t, "2024-03-09", DayKey(local))
	assert.True(t, IsSameDay(local, DateTime(2024, 3, 9, 0, 0, 1)))
}

func TestParseDayKey(t *testing.T) {
	d, err := ParseDayKey("2024-02-29")
	assert.NoError(t, err)
	assert.Equal(t, Date(2024, 2, 29), d)

	_, err = ParseDayKey("29/02/2024")
	assert.Error(t, err)
}

func TestNextSunday(t *testing.T) {
	// 2024-01-03 is a Wednesday.
	assert.Equal(t, Date(2024, 1, 7), NextSunday(DateTime(2024, 1, 3, 15, 0, 0)))
	// Sunday midnight moves to the following Sunday.
	assert.Equal(t, Date(2024, 1, 14), NextSunday(Date(2024, 1, 7)))
	assert.True(t, IsSundayMidnight(Date(2024, 1, 7)))
	assert.False(t, IsSundayMidnight(DateTime(2024, 1, 7, 0, 0, 1)))
	assert.False(t, IsSundayMidnight(Date(2024, 1, 8)))
}

func TestAlignWindow(t *testing.T) {
	anchor := Date(2024, 1, 7)
	period := 14 * Day

	start, end := AlignWindow(anchor, period, DateTime(2024, 1, 20, 12, 0, 0))
	assert.Equal(t, Date(2024, 1, 7), start)
	assert.Equal(t, Date(2024, 1, 21), end)

	// Exactly on a boundary belongs to the later window.
	start, end = AlignWindow(anchor, period, Date(2024, 1, 21))
	assert.Equal(t, Date(2024, 1, 21), start)
	assert.Equal(t, Date(2024, 2, 4), end)

	// Before the anchor still aligns.
	start, end = AlignWindow(anchor, period, Date(2023, 12, 30))
	assert.Equal(t, Date(2023, 12, 24), start)
	assert.Equal(t, Date(2024, 1, 7), end)
	assert.True(t, IsSundayMidnight(end))
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 0, DaysBetween(DateTime(2024, 1, 1, 1, 0, 0), DateTime(2024, 1, 1, 23, 0, 0)))
	assert.Equal(t, 1, DaysBetween(DateTime(2024, 1, 1, 23, 0, 0), DateTime(2024, 1, 2, 0, 1, 0)))
}

func TestFormatRelative(t *testing.T) {
	assert.Equal(t, "3d 4h", FormatRelative(3*Day+4*time.Hour))
	assert.Equal(t, "2d", FormatRelative(2*Day))
	assert.Equal(t, "1h 5m", FormatRelative(65*time.Minute))
	assert.Equal(t, "12m", FormatRelative(12*time.Minute))
	assert.Equal(t, "9s", FormatRelative(9*time.Second))
}
