package poem

import (
	"strings"
	"time"
)

// FormatClock renders the local time for the requested format mode.
// "auto" and anything unrecognized fall back to 12-hour.
func FormatClock(local time.Time, format string) string {
	if format == "24h" {
		return local.Format("15:04")
	}
	return local.Format("3:04 PM")
}

// StripMeridiem removes AM/PM markers so the prompt never leaks them;
// the daypart label carries that information instead.
func StripMeridiem(clock string) string {
	for _, marker := range []string{" AM", " PM", " am", " pm"} {
		clock = strings.ReplaceAll(clock, marker, "")
	}
	return clock
}

// MinuteOfDay is local hour*60+minute, 0..1439.
func MinuteOfDay(local time.Time) int {
	return local.Hour()*60 + local.Minute()
}

// DaypartFor maps a local wall-clock moment onto a human daypart label.
//
// Bands:
//
//	pre-dawn:       04:00-05:59
//	early morning:  06:00-07:59
//	morning:        08:00-11:29
//	midday:         11:30-13:29
//	afternoon:      13:30-16:59
//	evening:        17:00-20:29
//	late night:     20:30-03:59 (wraps midnight)
func DaypartFor(local time.Time) string {
	hm := MinuteOfDay(local)
	switch {
	case hm >= 4*60 && hm <= 5*60+59:
		return "pre-dawn"
	case hm >= 6*60 && hm <= 7*60+59:
		return "early morning"
	case hm >= 8*60 && hm <= 11*60+29:
		return "morning"
	case hm >= 11*60+30 && hm <= 13*60+29:
		return "midday"
	case hm >= 13*60+30 && hm <= 16*60+59:
		return "afternoon"
	case hm >= 17*60 && hm <= 20*60+29:
		return "evening"
	}
	return "late night"
}
