// Package calendar materializes the date dimension: one row per day in a
// closed interval, with derived date parts pinned to ISO-8601 conventions so
// the output never depends on a runtime locale.
package calendar

import (
	"time"

	asterrors "github.com/Ramsey-B/aster/pkg/errors"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/surrogate"
)

// DateFormat is the canonical date rendering used for calendar surrogate keys.
const DateFormat = "2006-01-02"

// Generate produces one CalendarDay per day in [start, end] inclusive, in
// ascending order. An inverted interval fails the whole call; there is no
// partial output.
//
// Generation is a pure function of the two bounds. Times of day and time
// zones on the inputs are discarded; every day is midnight UTC.
func Generate(start, end time.Time) ([]models.CalendarDay, error) {
	startDay := truncate(start)
	endDay := truncate(end)

	if endDay.Before(startDay) {
		return nil, asterrors.NewBuildErrorf("end date %s is before start date %s", endDay.Format(DateFormat), startDay.Format(DateFormat)).AddBuilder("calendar")
	}

	days := make([]models.CalendarDay, 0, int(endDay.Sub(startDay).Hours()/24)+1)
	for d := startDay; !d.After(endDay); d = d.AddDate(0, 0, 1) {
		day, err := Day(d)
		if err != nil {
			return nil, err
		}
		days = append(days, day)
	}

	return days, nil
}

// Day derives the calendar row for a single date.
func Day(date time.Time) (models.CalendarDay, error) {
	d := truncate(date)

	key, err := surrogate.Key(d.Format(DateFormat))
	if err != nil {
		return models.CalendarDay{}, asterrors.WrapBuildError(err).AddBuilder("calendar")
	}

	_, isoWeek := d.ISOWeek()

	return models.CalendarDay{
		Key:        key,
		Date:       d,
		DayOfWeek:  isoWeekday(d.Weekday()),
		DayOfMonth: d.Day(),
		DayOfYear:  d.YearDay(),
		WeekOfYear: isoWeek,
		Month:      int(d.Month()),
		MonthName:  d.Month().String(),
		Year:       d.Year(),
		Quarter:    Quarter(int(d.Month())),
	}, nil
}

// Quarter maps a month number (1..12) to its quarter (1..4).
func Quarter(month int) int {
	return (month-1)/3 + 1
}

// isoWeekday converts Go's Sunday=0 weekday to ISO-8601 Monday=1 .. Sunday=7.
func isoWeekday(wd time.Weekday) int {
	if wd == time.Sunday {
		return 7
	}
	return int(wd)
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
