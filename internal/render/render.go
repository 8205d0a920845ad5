// Package render lays a timeline out in percent of the canvas and draws it as
// SVG.
package render

import (
	"fmt"
	"strings"
	"time"

	"chronos/internal/domain"
	"chronos/internal/timeline"
)

// Placed is an event with its horizontal placement in percent of the canvas.
type Placed struct {
	Event        domain.Event `json:"event"`
	LeftPercent  float64      `json:"left_percent"`
	WidthPercent float64      `json:"width_percent"`
}

type Row struct {
	Layer  domain.Layer `json:"layer"`
	Events []Placed     `json:"events"`
}

// Model is everything a surface needs to draw the timeline.
type Model struct {
	Viewport           domain.Viewport `json:"viewport"`
	Zoom               int             `json:"zoom"`
	CanvasWidthPercent float64         `json:"canvas_width_percent"`
	Ticks              []domain.Tick   `json:"ticks"`
	Rows               []Row           `json:"rows"`
	// TodayPercent is set when today falls inside the viewport.
	TodayPercent *float64 `json:"today_percent,omitempty"`
}

// Build places every event of snap in its layer's row. Events whose layer is
// missing are skipped. A zero today leaves out the today marker.
func Build(snap domain.Snapshot, today time.Time) Model {
	vp := snap.Viewport
	m := Model{
		Viewport:           vp,
		Zoom:               snap.Zoom,
		CanvasWidthPercent: timeline.CanvasWidthPercent(snap.Zoom),
		Ticks:              timeline.Ticks(vp.Start, vp.End, snap.Zoom),
		Rows:               make([]Row, 0, len(snap.Layers)),
	}
	index := make(map[string]int, len(snap.Layers))
	for i, l := range snap.Layers {
		index[l.ID] = i
		m.Rows = append(m.Rows, Row{Layer: l, Events: []Placed{}})
	}
	for _, e := range snap.Events {
		i, ok := index[e.LayerID]
		if !ok {
			continue
		}
		p := Placed{Event: e, LeftPercent: timeline.DateToPosition(e.StartDate, vp.Start, vp.End)}
		if e.EndDate != nil {
			p.WidthPercent = timeline.DateRangeToWidth(e.StartDate, *e.EndDate, vp.Start, vp.End)
		}
		m.Rows[i].Events = append(m.Rows[i].Events, p)
	}
	if !today.IsZero() {
		if p := timeline.DateToPosition(timeline.Day(today), vp.Start, vp.End); p >= 0 && p <= 100 {
			m.TodayPercent = &p
		}
	}
	return m
}

type Options struct {
	Width        int
	RowHeight    int
	HeaderHeight int
	LabelWidth   int
}

func DefaultOptions() Options {
	return Options{Width: 1200, RowHeight: 96, HeaderHeight: 48, LabelWidth: 160}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Width <= 0 {
		o.Width = d.Width
	}
	if o.RowHeight <= 0 {
		o.RowHeight = d.RowHeight
	}
	if o.HeaderHeight <= 0 {
		o.HeaderHeight = d.HeaderHeight
	}
	if o.LabelWidth < 0 {
		o.LabelWidth = 0
	}
	return o
}

const (
	tokenHeight = 32
	fontFamily  = "Inter, Helvetica, Arial, sans-serif"
)

// SVG draws m. Options.Width is the visible width; the canvas is that times
// the zoom multiplier.
func SVG(m Model, opts Options) string {
	opts = opts.withDefaults()
	canvas := float64(opts.Width) * m.CanvasWidthPercent / 100
	x0 := float64(opts.LabelWidth)
	width := x0 + canvas
	height := opts.HeaderHeight + len(m.Rows)*opts.RowHeight
	xAt := func(percent float64) float64 { return x0 + percent/100*canvas }

	var svg strings.Builder
	fmt.Fprintf(&svg, `<?xml version="1.0" encoding="UTF-8"?>
<svg width="%.0f" height="%d" viewBox="0 0 %.0f %d" xmlns="http://www.w3.org/2000/svg">
<rect width="100%%" height="100%%" fill="#f9fafb"/>
<defs>
<style>
.tick-text { font-family: %s; font-size: 11px; fill: #6b7280; }
.layer-text { font-family: %s; font-size: 13px; font-weight: bold; fill: #374151; }
.event-text { font-family: %s; font-size: 12px; font-weight: 600; fill: #ffffff; }
</style>
<clipPath id="canvas"><rect x="%.2f" y="0" width="%.2f" height="%d"/></clipPath>
</defs>
`, width, height, width, height, fontFamily, fontFamily, fontFamily, x0, canvas, height)

	for _, t := range m.Ticks {
		x := xAt(t.Position)
		fmt.Fprintf(&svg, `<line x1="%.2f" y1="%d" x2="%.2f" y2="%d" stroke="#e5e7eb" stroke-width="1"/>`+"\n",
			x, opts.HeaderHeight/2, x, height)
		fmt.Fprintf(&svg, `<text class="tick-text" x="%.2f" y="%d">%s</text>`+"\n",
			x+4, opts.HeaderHeight/2+4, escapeXML(t.Label))
	}

	for i, row := range m.Rows {
		top := opts.HeaderHeight + i*opts.RowHeight
		fmt.Fprintf(&svg, `<line x1="0" y1="%d" x2="%.0f" y2="%d" stroke="#f3f4f6" stroke-width="1"/>`+"\n",
			top+opts.RowHeight, width, top+opts.RowHeight)
		if opts.LabelWidth > 0 {
			fmt.Fprintf(&svg, `<text class="layer-text" x="12" y="%d">%s</text>`+"\n", top+opts.RowHeight/2+4, escapeXML(row.Layer.Name))
		}
	}

	// events outside the viewport must not spill over the labels
	svg.WriteString(`<g clip-path="url(#canvas)">` + "\n")
	for i, row := range m.Rows {
		mid := opts.HeaderHeight + i*opts.RowHeight + opts.RowHeight/2
		for _, p := range row.Events {
			drawEvent(&svg, p, xAt(p.LeftPercent), p.WidthPercent/100*canvas, mid)
		}
	}
	if m.TodayPercent != nil {
		x := xAt(*m.TodayPercent)
		fmt.Fprintf(&svg, `<line class="today" x1="%.2f" y1="0" x2="%.2f" y2="%d" stroke="#ef4444" stroke-width="2" stroke-dasharray="6 4"/>`+"\n",
			x, x, height)
	}
	svg.WriteString("</g>\n</svg>\n")
	return svg.String()
}

func drawEvent(svg *strings.Builder, p Placed, x, w float64, mid int) {
	color := p.Event.Color
	if color == "" {
		color = "#3b82f6"
	}
	color = escapeXML(color)
	title := escapeXML(p.Event.Title)
	if !p.Event.IsRange() {
		fmt.Fprintf(svg, `<circle cx="%.2f" cy="%d" r="%d" fill="%s"><title>%s</title></circle>`+"\n",
			x, mid, tokenHeight/2, color, title)
		return
	}
	if w < 2 {
		w = 2
	}
	fmt.Fprintf(svg, `<rect x="%.2f" y="%d" width="%.2f" height="%d" rx="6" fill="%s"><title>%s</title></rect>`+"\n",
		x, mid-tokenHeight/2, w, tokenHeight, color, title)
	fmt.Fprintf(svg, `<text class="event-text" x="%.2f" y="%d">%s</text>`+"\n", x+8, mid+4, title)
}

// escapeXML replaces the five XML special characters with entities.
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}
