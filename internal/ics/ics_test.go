package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronos/internal/store"
)

var stamp = time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

func TestExportDemo(t *testing.T) {
	demo := store.Demo()
	out := Export(demo.Events, demo.Layers, stamp)

	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Equal(t, 4, strings.Count(out, "BEGIN:VEVENT"))
	assert.Contains(t, out, "UID:1@chronos")
	assert.Contains(t, out, "DTSTART;VALUE=DATE:20240115")
	assert.Contains(t, out, "DTEND;VALUE=DATE:20240320")
	assert.Contains(t, out, "CATEGORIES:Development")
	assert.Contains(t, out, "COLOR:#10b981")
	// the point event has no end
	beta := out[strings.Index(out, "UID:3@chronos"):]
	beta = beta[:strings.Index(beta, "END:VEVENT")]
	assert.NotContains(t, beta, "DTEND")
}

func TestRoundTrip(t *testing.T) {
	demo := store.Demo()
	items, skipped, err := Parse(strings.NewReader(Export(demo.Events, demo.Layers, stamp)))
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.Zero(t, skipped)

	first := items[0]
	assert.Equal(t, "1", first.UID)
	assert.Equal(t, "Initial Research", first.Title)
	assert.Equal(t, "Development", first.Layer)
	assert.Equal(t, "#3b82f6", first.Color)
	assert.Equal(t, "Competitor analysis and market research", first.Description)
	assert.Equal(t, demo.Events[0].StartDate, first.Start)
	require.NotNil(t, first.End)
	assert.Equal(t, *demo.Events[0].EndDate, *first.End)

	assert.Nil(t, items[2].End)
	assert.Equal(t, "Marketing", items[2].Layer)
}

func TestParseForeignCalendar(t *testing.T) {
	src := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//other//EN",
		"BEGIN:VEVENT",
		"UID:abc@example.com",
		"DTSTAMP:20240101T000000Z",
		"DTSTART:20240505T143000Z",
		"SUMMARY:Offsite\\, day one",
		"CATEGORIES:Ops,Travel",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")
	items, _, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "abc@example.com", items[0].UID)
	assert.Equal(t, "Offsite, day one", items[0].Title)
	assert.Equal(t, time.Date(2024, 5, 5, 0, 0, 0, 0, time.UTC), items[0].Start)
	assert.Equal(t, "Ops", items[0].Layer)
	assert.Nil(t, items[0].End)
}

func TestParseSkipsEventsWithoutStart(t *testing.T) {
	src := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//other//EN",
		"BEGIN:VEVENT",
		"UID:good",
		"DTSTART;VALUE=DATE:20240601",
		"SUMMARY:Kickoff",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:bad",
		"SUMMARY:No start",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")
	items, skipped, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Kickoff", items[0].Title)
	assert.Equal(t, 1, skipped)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, _, err := Parse(strings.NewReader("not a calendar"))
	assert.Error(t, err)
}
