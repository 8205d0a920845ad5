package timeline

import (
	"time"

	"chronos/internal/domain"
)

// Interval returns the tick spacing in days for a zoom level: quarterly at 1,
// monthly at 2, weekly at 3 and daily from 4 up.
func Interval(zoom int) int {
	interval := 30
	if zoom == 1 {
		interval = 90
	}
	if zoom >= 3 {
		interval = 7
	}
	if zoom >= 4 {
		interval = 1
	}
	return interval
}

// Label formats a tick date: "Mar 5" when zoomed to weeks or days,
// "Mar 2024" otherwise.
func Label(date time.Time, zoom int) string {
	if zoom >= 3 {
		return date.Format("Jan 2")
	}
	return date.Format("Jan 2006")
}

// Ticks steps from start to end inclusive by Interval(zoom) days. The last
// tick lands wherever the stepping ends; no extra tick is added at end.
func Ticks(start, end time.Time, zoom int) []domain.Tick {
	total := span(start, end)
	interval := Interval(zoom)
	ticks := make([]domain.Tick, 0, int(total)/interval+1)
	for i := 0; float64(i) <= total; i += interval {
		date := AddDays(start, i)
		ticks = append(ticks, domain.Tick{
			Date:     date,
			Label:    Label(date, zoom),
			Position: float64(i) / total * 100,
		})
	}
	return ticks
}
