// Package drag reconciles a pointer gesture on an event token into a single
// store update.
//
// A gesture moves Idle -> Dragging -> HoverTarget -> Resolved and always ends
// back in Idle with the store's drag state cleared. The payload captured at
// start travels with the Gesture value; the store only mirrors it so other
// rows can draw a preview ghost.
package drag

import (
	"errors"
	"strconv"
	"sync"

	"chronos/internal/domain"
	"chronos/internal/store"
	"chronos/internal/timeline"
)

var (
	ErrUnknownEvent = errors.New("drag: unknown event")
	ErrNoGesture    = errors.New("drag: no gesture in progress")
)

// Transfer keys used when a payload crosses a string-only channel.
const (
	KeyEventID      = "eventId"
	KeyClickOffsetX = "clickOffsetX"
)

// Payload is what the drag source hands to the drop target.
type Payload struct {
	EventID      string
	ClickOffsetX float64
}

func (p Payload) Encode() map[string]string {
	return map[string]string{
		KeyEventID:      p.EventID,
		KeyClickOffsetX: strconv.FormatFloat(p.ClickOffsetX, 'f', -1, 64),
	}
}

// DecodePayload reads a payload back. A missing or unparsable offset is 0.
func DecodePayload(m map[string]string) Payload {
	p := Payload{EventID: m[KeyEventID]}
	if v, err := strconv.ParseFloat(m[KeyClickOffsetX], 64); err == nil {
		p.ClickOffsetX = v
	}
	return p
}

// Geometry reports the rendered size of the canvas and its rows in pixels.
type Geometry interface {
	ContainerWidth() float64
	RowBounds(layerID string) (origin, width float64, ok bool)
}

type Row struct {
	Origin float64
	Width  float64
}

// FixedGeometry is a static Geometry. With Rows nil every layer gets a row
// spanning the whole canvas starting at 0.
type FixedGeometry struct {
	Width float64
	Rows  map[string]Row
}

func (g FixedGeometry) ContainerWidth() float64 { return g.Width }

func (g FixedGeometry) RowBounds(layerID string) (float64, float64, bool) {
	if g.Rows == nil {
		return 0, g.Width, layerID != ""
	}
	r, ok := g.Rows[layerID]
	return r.Origin, r.Width, ok
}

type State int

const (
	Idle State = iota
	Dragging
	HoverTarget
	Resolved
)

func (s State) String() string {
	switch s {
	case Dragging:
		return "dragging"
	case HoverTarget:
		return "hover_target"
	case Resolved:
		return "resolved"
	default:
		return "idle"
	}
}

// Preview is the ghost drawn inside a hovered row, in percent of the row.
type Preview struct {
	EventID      string  `json:"event_id"`
	LayerID      string  `json:"layer_id"`
	Title        string  `json:"title"`
	Color        string  `json:"color"`
	LeftPercent  float64 `json:"left_percent"`
	WidthPercent float64 `json:"width_percent"`
	IsRange      bool    `json:"is_range"`
}

// PreviewFor positions the ghost of ev in a row. It reports false when the
// row has no width.
func PreviewFor(ev domain.Event, layerID string, pointerXInRow, clickOffsetX, rowWidth float64, vp domain.Viewport) (Preview, bool) {
	if rowWidth <= 0 {
		return Preview{}, false
	}
	p := Preview{
		EventID:     ev.ID,
		LayerID:     layerID,
		Title:       ev.Title,
		Color:       ev.Color,
		LeftPercent: (pointerXInRow - clickOffsetX) / rowWidth * 100,
		IsRange:     ev.IsRange(),
	}
	if ev.IsRange() {
		p.WidthPercent = timeline.DateRangeToWidth(ev.StartDate, *ev.EndDate, vp.Start, vp.End)
	}
	return p, true
}

// Resolve turns a drop into the patch to apply. dropX is relative to the
// canvas origin. The event keeps its whole-day duration. It reports false
// when the canvas has no width.
func Resolve(ev domain.Event, targetLayer string, dropX, clickOffsetX, canvasWidth float64, vp domain.Viewport) (domain.EventPatch, bool) {
	if canvasWidth <= 0 {
		return domain.EventPatch{}, false
	}
	percent := (dropX - clickOffsetX) / canvasWidth * 100
	start := timeline.PositionToDate(percent, vp.Start, vp.End)
	patch := domain.EventPatch{StartDate: &start, LayerID: &targetLayer}
	if ev.IsRange() {
		end := timeline.AddDays(start, timeline.Duration(ev))
		patch.EndDate = &end
	}
	return patch, true
}

// Protocol runs at most one gesture at a time against a store.
type Protocol struct {
	mu      sync.Mutex
	store   *store.Store
	geo     Geometry
	current *Gesture
}

func New(s *store.Store, geo Geometry) *Protocol {
	return &Protocol{store: s, geo: geo}
}

// SetGeometry replaces the geometry, e.g. after the canvas was resized.
func (p *Protocol) SetGeometry(geo Geometry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.geo = geo
}

// Start begins dragging eventID. A gesture already in progress is ended
// first without a drop.
func (p *Protocol) Start(eventID string, clickOffsetX float64) (*Gesture, error) {
	if _, ok := p.store.Event(eventID); !ok {
		return nil, ErrUnknownEvent
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.endLocked()
	}
	g := &Gesture{
		p:       p,
		payload: Payload{EventID: eventID, ClickOffsetX: clickOffsetX},
		state:   Dragging,
	}
	p.current = g
	p.store.SetDragging(eventID, clickOffsetX)
	return g, nil
}

// Active returns the gesture in progress, or nil.
func (p *Protocol) Active() *Gesture {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Preview computes the ghost for a row from the store's drag state. pointerX
// is relative to the canvas origin.
func (p *Protocol) Preview(layerID string, pointerX float64) (Preview, bool) {
	ds := p.store.Drag()
	if !ds.Active() {
		return Preview{}, false
	}
	p.mu.Lock()
	geo := p.geo
	p.mu.Unlock()
	return p.previewFor(geo, ds.EventID, ds.OffsetX, layerID, pointerX)
}

func (p *Protocol) previewFor(geo Geometry, eventID string, offset float64, layerID string, pointerX float64) (Preview, bool) {
	if _, ok := p.store.Layer(layerID); !ok {
		return Preview{}, false
	}
	ev, ok := p.store.Event(eventID)
	if !ok {
		return Preview{}, false
	}
	origin, width, ok := geo.RowBounds(layerID)
	if !ok {
		return Preview{}, false
	}
	return PreviewFor(ev, layerID, pointerX-origin, offset, width, p.store.Viewport())
}

// Gesture is one drag from pointer-down to release.
type Gesture struct {
	p       *Protocol
	payload Payload
	state   State
	over    string
}

func (g *Gesture) Payload() Payload { return g.payload }

func (g *Gesture) State() State {
	g.p.mu.Lock()
	defer g.p.mu.Unlock()
	return g.state
}

// Over moves the pointer within the row of layerID. pointerX is relative to
// the canvas origin. The second result is false when nothing can be drawn
// there; the gesture then keeps dragging without a target.
func (g *Gesture) Over(layerID string, pointerX float64) (Preview, bool, error) {
	g.p.mu.Lock()
	defer g.p.mu.Unlock()
	if g.state == Idle || g.state == Resolved {
		return Preview{}, false, ErrNoGesture
	}
	pv, ok := g.p.previewFor(g.p.geo, g.payload.EventID, g.payload.ClickOffsetX, layerID, pointerX)
	if !ok {
		g.state = Dragging
		g.over = ""
		return Preview{}, false, nil
	}
	g.state = HoverTarget
	g.over = layerID
	return pv, true, nil
}

// Leave drops the hover target; the preview disappears.
func (g *Gesture) Leave() error {
	g.p.mu.Lock()
	defer g.p.mu.Unlock()
	if g.state == Idle || g.state == Resolved {
		return ErrNoGesture
	}
	g.state = Dragging
	g.over = ""
	return nil
}

// Drop releases the pointer over the row of layerID at pointerX, relative to
// the canvas origin, and ends the gesture. It reports whether the event
// moved. A drop that cannot be resolved (unknown row or layer, the event
// deleted meanwhile, a canvas with no width) changes nothing.
func (g *Gesture) Drop(layerID string, pointerX float64) (domain.Event, bool, error) {
	g.p.mu.Lock()
	defer g.p.mu.Unlock()
	if g.state == Idle || g.state == Resolved {
		return domain.Event{}, false, ErrNoGesture
	}
	defer g.endLocked()

	s := g.p.store
	ev, ok := s.Event(g.payload.EventID)
	if !ok {
		return domain.Event{}, false, nil
	}
	if _, ok := s.Layer(layerID); !ok {
		return domain.Event{}, false, nil
	}
	origin, _, ok := g.p.geo.RowBounds(layerID)
	if !ok {
		return domain.Event{}, false, nil
	}
	patch, ok := Resolve(ev, layerID, pointerX-origin, g.payload.ClickOffsetX, g.p.geo.ContainerWidth(), s.Viewport())
	if !ok {
		return domain.Event{}, false, nil
	}
	g.state = Resolved
	updated, ok := s.UpdateEvent(ev.ID, patch)
	return updated, ok, nil
}

// End finishes the gesture without a drop. It is safe to call more than once.
func (g *Gesture) End() {
	g.p.mu.Lock()
	defer g.p.mu.Unlock()
	g.endLocked()
}

func (g *Gesture) endLocked() {
	if g.state == Idle {
		return
	}
	g.state = Idle
	g.over = ""
	if g.p.current == g {
		g.p.current = nil
		g.p.store.ClearDragging()
	}
}

// Target is the layer currently hovered, or "".
func (g *Gesture) Target() string {
	g.p.mu.Lock()
	defer g.p.mu.Unlock()
	return g.over
}
