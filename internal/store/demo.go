package store

import (
	"time"

	"chronos/internal/domain"
)

// Demo returns the sample timeline a fresh workspace starts with.
func Demo() domain.Snapshot {
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	end := func(y int, m time.Month, d int) *time.Time {
		t := day(y, m, d)
		return &t
	}
	return domain.Snapshot{
		Layers: []domain.Layer{
			{ID: "dev", Name: "Development"},
			{ID: "design", Name: "Design"},
			{ID: "marketing", Name: "Marketing"},
		},
		Events: []domain.Event{
			{
				ID:          "1",
				Title:       "Initial Research",
				StartDate:   day(2024, time.January, 15),
				EndDate:     end(2024, time.March, 20),
				LayerID:     "dev",
				Color:       "#3b82f6",
				Description: "Competitor analysis and market research",
			},
			{
				ID:          "2",
				Title:       "Design Phase",
				StartDate:   day(2024, time.March, 25),
				EndDate:     end(2024, time.June, 10),
				LayerID:     "design",
				Color:       "#ec4899",
				Description: "UI/UX mockups and prototyping",
			},
			{
				ID:          "3",
				Title:       "Beta Launch",
				StartDate:   day(2024, time.July, 15),
				LayerID:     "marketing",
				Color:       "#10b981",
				Description: "First public beta released",
			},
			{
				ID:        "4",
				Title:     "Frontend Dev",
				StartDate: day(2024, time.April, 1),
				EndDate:   end(2024, time.August, 30),
				LayerID:   "dev",
				Color:     "#3b82f6",
			},
		},
		Zoom:     domain.DefaultZoom,
		Viewport: DefaultViewport(),
	}
}
