package quota

import "time"

// DayKeyLayout is the canonical UTC calendar-day format used as the rollover boundary.
const DayKeyLayout = "2006-01-02"

// DayKey returns the UTC calendar day containing t.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayKeyLayout)
}

// ResetsAt returns the instant the counter for dayKey stops applying,
// i.e. the next UTC midnight. An unparsable key yields the zero time.
func ResetsAt(dayKey string) time.Time {
	day, err := time.ParseInLocation(DayKeyLayout, dayKey, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return day.AddDate(0, 0, 1)
}
