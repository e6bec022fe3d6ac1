package expr

import "time"

// Real-time-clock query operators.
//
// Day, week, and month numbering is zero-based unless the environment's
// OneBased flag is set. Week numbering starts on Monday unless
// WeekStartSunday is set (directly or via the rtc.wss operator). The
// rtc.utc operator switches queries to UTC for the rest of the evaluation.

func rtcYear(m *machine) float64 {
	return float64(m.env.now().Year())
}

// rtcDayOfWeek returns the weekday index relative to the configured week
// start.
func rtcDayOfWeek(m *machine) float64 {
	return m.base(weekdayIndex(m.env.now().Weekday(), m.env.WeekStartSunday))
}

func rtcDayOfMonth(m *machine) float64 {
	return m.base(m.env.now().Day() - 1)
}

// rtcTimeOfDay returns the time of day as fractional hours (14:45 => 14.75).
func rtcTimeOfDay(m *machine) float64 {
	t := m.env.now()
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
}

func rtcMonthOfYear(m *machine) float64 {
	return m.base(int(m.env.now().Month()) - 1)
}

// rtcWeekOfMonth returns the week of the month with weeks aligned to the
// configured week start: days before the first week boundary count as week
// zero.
func rtcWeekOfMonth(m *machine) float64 {
	t := m.env.now()
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	offset := weekdayIndex(first.Weekday(), m.env.WeekStartSunday)
	return m.base((t.Day() - 1 + offset) / 7)
}

// rtcAlignedWeekOfMonth returns the week of the month with weeks aligned to
// the first of the month: days 1-7 are week zero regardless of weekday.
func rtcAlignedWeekOfMonth(m *machine) float64 {
	return m.base((m.env.now().Day() - 1) / 7)
}

func rtcWeekOfYear(m *machine) float64 {
	t := m.env.now()
	jan1 := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	offset := weekdayIndex(jan1.Weekday(), m.env.WeekStartSunday)
	return m.base((t.YearDay() - 1 + offset) / 7)
}

// weekdayIndex maps Go's Sunday-based weekday to a zero-based index from
// the configured week start.
func weekdayIndex(wd time.Weekday, sundayStart bool) int {
	if sundayStart {
		return int(wd)
	}
	return (int(wd) + 6) % 7
}

func (m *machine) base(zeroBased int) float64 {
	if m.env.OneBased {
		return float64(zeroBased + 1)
	}
	return float64(zeroBased)
}
