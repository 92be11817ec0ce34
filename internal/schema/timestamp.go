package schema

import (
	"time"

	"github.com/cockroachdb/errors"
)

// StartTimeLayout is the wall-clock rendering of an event timestamp.
const StartTimeLayout = "2006-01-02 15:04:05"

// StartTime converts epoch milliseconds to a wall-clock string in loc.
// Sub-second precision is truncated.
func StartTime(ms int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ms).In(loc).Format(StartTimeLayout)
}

// DeriveTime splits a start_time string into its calendar parts. The string
// already carries the wall clock of the target zone, so it is read without
// any further conversion. Week is the ISO-8601 week number.
func DeriveTime(startTime string) (Time, error) {
	t, err := time.ParseInLocation(StartTimeLayout, startTime, time.UTC)
	if err != nil {
		return Time{}, errors.Wrapf(err, "parse start_time %q", startTime)
	}
	_, week := t.ISOWeek()
	return Time{
		StartTime: startTime,
		Hour:      int32(t.Hour()),
		Day:       int32(t.Day()),
		Week:      int32(week),
		Month:     int32(t.Month()),
		Year:      int32(t.Year()),
		Weekday:   int32(t.Weekday()) + 1,
	}, nil
}
