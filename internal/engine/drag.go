package engine

import (
	"context"
	"fmt"

	"chronos/internal/activity"
	"chronos/internal/domain"
	"chronos/internal/drag"
	"chronos/internal/timeline"
)

// DragStatus reports the gesture in progress.
type DragStatus struct {
	State   string  `json:"state"`
	EventID string  `json:"event_id,omitempty"`
	OffsetX float64 `json:"offset_x,omitempty"`
	Target  string  `json:"target_layer_id,omitempty"`
}

// MoveOptions describe a drop in canvas pixels. CanvasWidth defaults to the
// configured render width at the current zoom.
type MoveOptions struct {
	EventID      string
	LayerID      string
	DropX        float64
	ClickOffsetX float64
	CanvasWidth  float64
	ActorID      string
}

func (e Engine) geometry(canvasWidth float64) drag.Geometry {
	if canvasWidth <= 0 {
		canvasWidth = e.canvasWidth()
	}
	return drag.FixedGeometry{Width: canvasWidth}
}

// MoveEvent runs a whole gesture: pick up the event and drop it at DropX in
// the row of LayerID. It reports false when the drop resolved to nothing.
func (e Engine) MoveEvent(ctx context.Context, opts MoveOptions) (domain.Event, bool, error) {
	if _, err := e.StartDrag(opts.EventID, opts.ClickOffsetX); err != nil {
		return domain.Event{}, false, err
	}
	return e.DropDrag(ctx, opts.LayerID, opts.DropX, opts.CanvasWidth, opts.ActorID)
}

// StartDrag picks up eventID. A gesture already running is abandoned.
func (e Engine) StartDrag(eventID string, clickOffsetX float64) (DragStatus, error) {
	if _, err := e.Drag.Start(eventID, clickOffsetX); err != nil {
		return DragStatus{}, fmt.Errorf("event %s: %w", eventID, err)
	}
	return e.DragState(), nil
}

// HoverDrag moves the pointer over the row of layerID. The preview is false
// when nothing can be drawn there.
func (e Engine) HoverDrag(layerID string, pointerX, canvasWidth float64) (drag.Preview, bool, error) {
	g := e.Drag.Active()
	if g == nil {
		return drag.Preview{}, false, drag.ErrNoGesture
	}
	e.Drag.SetGeometry(e.geometry(canvasWidth))
	return g.Over(layerID, pointerX)
}

// LeaveDrag clears the hover target.
func (e Engine) LeaveDrag() error {
	g := e.Drag.Active()
	if g == nil {
		return drag.ErrNoGesture
	}
	return g.Leave()
}

// DropDrag resolves the running gesture at dropX and persists the move. The
// drag state is cleared whatever the outcome.
func (e Engine) DropDrag(ctx context.Context, layerID string, dropX, canvasWidth float64, actorID string) (domain.Event, bool, error) {
	g := e.Drag.Active()
	if g == nil {
		return domain.Event{}, false, drag.ErrNoGesture
	}
	var (
		moved domain.Event
		ok    bool
	)
	err := e.commit(ctx, actorID, func() (change, bool, error) {
		before, _ := e.Store.Event(g.Payload().EventID)
		e.Drag.SetGeometry(e.geometry(canvasWidth))
		var err error
		moved, ok, err = g.Drop(layerID, dropX)
		if err != nil || !ok {
			return change{}, false, err
		}
		return change{Type: activity.EventMoved, Kind: "event", ID: moved.ID, Payload: activity.Payload{
			"from_layer_id": before.LayerID,
			"to_layer_id":   moved.LayerID,
			"from_start":    timeline.FormatDate(before.StartDate),
			"to_start":      timeline.FormatDate(moved.StartDate),
		}}, true, nil
	})
	if err != nil {
		return domain.Event{}, false, err
	}
	return moved, ok, nil
}

// CancelDrag ends the running gesture without a drop.
func (e Engine) CancelDrag() {
	if g := e.Drag.Active(); g != nil {
		g.End()
	}
}

func (e Engine) DragState() DragStatus {
	ds := e.Store.Drag()
	st := DragStatus{State: drag.Idle.String(), EventID: ds.EventID, OffsetX: ds.OffsetX}
	if g := e.Drag.Active(); g != nil {
		st.State = g.State().String()
		st.Target = g.Target()
	}
	return st
}
