package poem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 8, 27, hour, minute, 0, 0, time.UTC)
}

func TestDaypartBands(t *testing.T) {
	tests := []struct {
		hour, minute int
		want         string
	}{
		{4, 0, "pre-dawn"},
		{5, 59, "pre-dawn"},
		{6, 0, "early morning"},
		{7, 59, "early morning"},
		{8, 0, "morning"},
		{11, 29, "morning"},
		{11, 30, "midday"},
		{13, 29, "midday"},
		{13, 30, "afternoon"},
		{16, 59, "afternoon"},
		{17, 0, "evening"},
		{20, 29, "evening"},
		{20, 30, "late night"},
		{23, 59, "late night"},
		{0, 0, "late night"},
		{3, 59, "late night"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DaypartFor(at(tt.hour, tt.minute)), "%02d:%02d", tt.hour, tt.minute)
	}
}

func TestDaypartTotality(t *testing.T) {
	// Every minute of the day maps to exactly one band.
	known := map[string]bool{
		"pre-dawn": true, "early morning": true, "morning": true,
		"midday": true, "afternoon": true, "evening": true, "late night": true,
	}
	for m := 0; m < 1440; m++ {
		label := DaypartFor(at(m/60, m%60))
		assert.True(t, known[label], "minute %d produced %q", m, label)
	}
}

func TestFormatClock(t *testing.T) {
	afternoon := at(13, 5)
	assert.Equal(t, "13:05", FormatClock(afternoon, "24h"))
	assert.Equal(t, "1:05 PM", FormatClock(afternoon, "12h"))
	assert.Equal(t, "1:05 PM", FormatClock(afternoon, "auto"))
	assert.Equal(t, "1:05 PM", FormatClock(afternoon, "nonsense"))

	morning := at(9, 30)
	assert.Equal(t, "9:30 AM", FormatClock(morning, "12h"))
}

func TestStripMeridiem(t *testing.T) {
	assert.Equal(t, "1:05", StripMeridiem("1:05 PM"))
	assert.Equal(t, "9:30", StripMeridiem("9:30 AM"))
	assert.Equal(t, "13:05", StripMeridiem("13:05"))
}

func TestMinuteOfDay(t *testing.T) {
	assert.Equal(t, 0, MinuteOfDay(at(0, 0)))
	assert.Equal(t, 689, MinuteOfDay(at(11, 29)))
	assert.Equal(t, 1439, MinuteOfDay(at(23, 59)))
}
