// Package timeline converts between calendar days and percentage offsets
// within a viewport and generates the axis ticks for a zoom level.
//
// All arithmetic is in whole calendar days. Times are normalized with Day,
// which drops the time of day and pins the result to UTC midnight, so the
// functions here are timezone-naive.
package timeline

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"chronos/internal/domain"
)

// DateLayout is the wire and storage format for whole-day dates.
const DateLayout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

var ErrInvalidViewport = errors.New("invalid viewport: end must be after start")

// Day truncates t to its calendar day at UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole calendar days from `from` to `to`.
// The result is negative when `to` is earlier.
func DaysBetween(from, to time.Time) int {
	return int((Day(to).Unix() - Day(from).Unix()) / secondsPerDay)
}

func AddDays(t time.Time, days int) time.Time {
	return Day(t).AddDate(0, 0, days)
}

// ParseDate parses a YYYY-MM-DD string into a whole-day date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return Day(t).Format(DateLayout)
}

// ValidateViewport reports ErrInvalidViewport unless end is at least one day
// after start.
func ValidateViewport(start, end time.Time) error {
	if DaysBetween(start, end) <= 0 {
		return ErrInvalidViewport
	}
	return nil
}

// span returns the viewport length in days. A non-positive span is a caller
// bug: the boundaries that accept viewports validate them first.
func span(start, end time.Time) float64 {
	total := DaysBetween(start, end)
	if total <= 0 {
		panic(fmt.Sprintf("timeline: viewport %s..%s has no positive span", FormatDate(start), FormatDate(end)))
	}
	return float64(total)
}

// DateToPosition returns the offset of date within the viewport as a
// percentage. Dates outside the viewport yield values outside [0,100].
func DateToPosition(date, start, end time.Time) float64 {
	return float64(DaysBetween(start, date)) / span(start, end) * 100
}

// PositionToDate maps a percentage back to a date, snapping to the nearest
// whole day.
func PositionToDate(percent float64, start, end time.Time) time.Time {
	days := roundHalfUp(percent / 100 * span(start, end))
	return AddDays(start, int(days))
}

// DateRangeToWidth returns the width of [startDate,endDate] as a percentage
// of the viewport.
func DateRangeToWidth(startDate, endDate, start, end time.Time) float64 {
	return float64(DaysBetween(startDate, endDate)) / span(start, end) * 100
}

// Duration is the whole-day length of a range event, 0 for point events.
func Duration(e domain.Event) int {
	if e.EndDate == nil {
		return 0
	}
	return DaysBetween(e.StartDate, *e.EndDate)
}

// CanvasWidthPercent is the rendered canvas width relative to the visible
// area for a zoom level.
func CanvasWidthPercent(zoom int) float64 {
	return float64(zoom) * 100
}

// roundHalfUp rounds .5 toward positive infinity.
func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}
