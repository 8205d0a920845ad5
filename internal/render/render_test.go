package render

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronos/internal/domain"
	"chronos/internal/store"
)

func TestBuildPlacesDemo(t *testing.T) {
	m := Build(store.Demo(), time.Time{})
	assert.Equal(t, 200.0, m.CanvasWidthPercent)
	assert.Len(t, m.Ticks, 13)
	require.Len(t, m.Rows, 3)

	dev := m.Rows[0]
	assert.Equal(t, "dev", dev.Layer.ID)
	require.Len(t, dev.Events, 2)
	assert.InDelta(t, 14.0/365*100, dev.Events[0].LeftPercent, 1e-9)
	assert.InDelta(t, 65.0/365*100, dev.Events[0].WidthPercent, 1e-9)

	beta := m.Rows[2].Events[0]
	assert.Equal(t, "Beta Launch", beta.Event.Title)
	assert.Zero(t, beta.WidthPercent)
}

func TestBuildSkipsOrphans(t *testing.T) {
	snap := store.Demo()
	snap.Events = append(snap.Events, domain.Event{ID: "x", Title: "orphan", StartDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), LayerID: "gone"})
	m := Build(snap, time.Time{})
	total := 0
	for _, r := range m.Rows {
		total += len(r.Events)
	}
	assert.Equal(t, 4, total)
}

func TestSVG(t *testing.T) {
	snap := store.Demo()
	snap.Events[0].Title = `R&D <phase>`
	out := SVG(Build(snap, time.Time{}), Options{Width: 1000, RowHeight: 100, HeaderHeight: 40, LabelWidth: 100})

	// zoom 2 doubles the canvas
	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out, `<svg width="2100" height="340"`)
	assert.Contains(t, out, "R&amp;D &lt;phase&gt;")
	assert.NotContains(t, out, "<phase>")
	assert.Equal(t, 3, strings.Count(out, `rx="6"`))
	assert.Equal(t, 1, strings.Count(out, "<circle"))
	assert.Contains(t, out, ">Development</text>")
	assert.Contains(t, out, ">Jan 2024</text>")
	assert.Contains(t, out, `<clipPath id="canvas"><rect x="100.00" y="0" width="2000.00" height="340"/></clipPath>`)
	assert.Contains(t, out, `<g clip-path="url(#canvas)">`)
	assert.NotContains(t, out, `class="today"`)
	assert.True(t, strings.HasSuffix(out, "</svg>\n"))
}

func TestTodayMarker(t *testing.T) {
	m := Build(store.Demo(), time.Date(2024, 7, 2, 15, 30, 0, 0, time.UTC))
	require.NotNil(t, m.TodayPercent)
	assert.InDelta(t, 183.0/365*100, *m.TodayPercent, 1e-9)

	out := SVG(m, Options{Width: 1000, RowHeight: 100, HeaderHeight: 40, LabelWidth: 100})
	x := 100 + 183.0/365*2000
	assert.Contains(t, out, fmt.Sprintf(`<line class="today" x1="%.2f" y1="0" x2="%.2f" y2="340"`, x, x))

	assert.Nil(t, Build(store.Demo(), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)).TodayPercent)
	assert.Nil(t, Build(store.Demo(), time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)).TodayPercent)
}

func TestEventColorIsEscaped(t *testing.T) {
	snap := store.Demo()
	snap.Events[2].Color = `red"/><script>alert(1)</script><x a="`
	out := SVG(Build(snap, time.Time{}), Options{Width: 1000})
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, `fill="red&quot;/&gt;&lt;script&gt;`)
}

func TestEventsBeforeViewportAreClipped(t *testing.T) {
	snap := store.Demo()
	snap.Events[0].StartDate = time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC)
	m := Build(snap, time.Time{})
	require.Less(t, m.Rows[0].Events[0].LeftPercent, 0.0)

	out := SVG(m, Options{Width: 1000, RowHeight: 100, HeaderHeight: 40, LabelWidth: 100})
	clip := strings.Index(out, `<g clip-path="url(#canvas)">`)
	bar := strings.Index(out, "<title>Initial Research</title>")
	require.Positive(t, clip)
	assert.Greater(t, bar, clip)
}

func TestSVGWithoutLabels(t *testing.T) {
	out := SVG(Build(store.Demo(), time.Time{}), Options{Width: 500})
	assert.Contains(t, out, `<svg width="1000" height="336"`)
	assert.NotContains(t, out, ">Development</text>")
}

func TestEscapeXML(t *testing.T) {
	assert.Equal(t, "a &amp; b &quot;c&quot; &apos;d&apos;", escapeXML(`a & b "c" 'd'`))
}
