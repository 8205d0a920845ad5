package server

import (
	"chronos/internal/domain"
	"chronos/internal/drag"
	"chronos/internal/editor"
	"chronos/internal/engine"
	"chronos/internal/timeline"
)

// Request payloads

type CreateLayerRequest struct {
	Name string `json:"name" minLength:"1"`
}

type RenameLayerRequest struct {
	Name string `json:"name" minLength:"1"`
}

type CreateEventRequest struct {
	Title       string  `json:"title"`
	StartDate   string  `json:"start_date" example:"2024-03-01"`
	EndDate     *string `json:"end_date,omitempty" example:"2024-03-10"`
	LayerID     string  `json:"layer_id"`
	Color       *string `json:"color,omitempty" example:"#3b82f6"`
	Description *string `json:"description,omitempty"`
}

func (r CreateEventRequest) draft() editor.Draft {
	return editor.Draft{
		Title:       r.Title,
		StartDate:   r.StartDate,
		EndDate:     strPtrValue(r.EndDate),
		LayerID:     r.LayerID,
		Color:       strPtrValue(r.Color),
		Description: strPtrValue(r.Description),
	}
}

// UpdateEventRequest changes only the fields present. An empty end_date
// makes the event a point event.
type UpdateEventRequest struct {
	Title       *string `json:"title,omitempty"`
	StartDate   *string `json:"start_date,omitempty"`
	EndDate     *string `json:"end_date,omitempty"`
	LayerID     *string `json:"layer_id,omitempty"`
	Color       *string `json:"color,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (r UpdateEventRequest) update() engine.EventUpdate {
	return engine.EventUpdate{
		Title:       r.Title,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		LayerID:     r.LayerID,
		Color:       r.Color,
		Description: r.Description,
	}
}

// MoveEventRequest is a drop in canvas pixels.
type MoveEventRequest struct {
	LayerID      string  `json:"layer_id"`
	DropX        float64 `json:"drop_x"`
	ClickOffsetX float64 `json:"click_offset_x,omitempty"`
	CanvasWidth  float64 `json:"canvas_width,omitempty"`
}

type ZoomRequest struct {
	Level int `json:"level"`
}

type ViewportRequest struct {
	Start string `json:"start" example:"2024-01-01"`
	End   string `json:"end" example:"2024-12-31"`
}

type StartDragRequest struct {
	EventID      string  `json:"event_id"`
	ClickOffsetX float64 `json:"click_offset_x,omitempty"`
}

type HoverDragRequest struct {
	LayerID     string  `json:"layer_id"`
	PointerX    float64 `json:"pointer_x"`
	CanvasWidth float64 `json:"canvas_width,omitempty"`
}

type DropDragRequest struct {
	LayerID     string  `json:"layer_id"`
	DropX       float64 `json:"drop_x"`
	CanvasWidth float64 `json:"canvas_width,omitempty"`
}

type DraftRequest struct {
	Title       string `json:"title,omitempty"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	LayerID     string `json:"layer_id,omitempty"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

func (r DraftRequest) draft() editor.Draft {
	return editor.Draft{
		Title:       r.Title,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		LayerID:     r.LayerID,
		Color:       r.Color,
		Description: r.Description,
	}
}

// Response payloads

type EventResponse struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	StartDate    string  `json:"start_date"`
	EndDate      *string `json:"end_date,omitempty"`
	LayerID      string  `json:"layer_id"`
	Color        string  `json:"color"`
	Description  string  `json:"description,omitempty"`
	DurationDays int     `json:"duration_days"`
}

func eventResponse(e domain.Event) EventResponse {
	resp := EventResponse{
		ID:           e.ID,
		Title:        e.Title,
		StartDate:    timeline.FormatDate(e.StartDate),
		LayerID:      e.LayerID,
		Color:        e.Color,
		Description:  e.Description,
		DurationDays: timeline.Duration(e),
	}
	if e.EndDate != nil {
		end := timeline.FormatDate(*e.EndDate)
		resp.EndDate = &end
	}
	return resp
}

func mapEvents(items []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(items))
	for _, e := range items {
		out = append(out, eventResponse(e))
	}
	return out
}

type LayerResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Color      string `json:"color,omitempty"`
	EventCount int    `json:"event_count"`
}

type DeleteLayerResponse struct {
	ID            string `json:"id"`
	EventsRemoved int    `json:"events_removed"`
}

type ViewportResponse struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func viewportResponse(v domain.Viewport) ViewportResponse {
	return ViewportResponse{Start: timeline.FormatDate(v.Start), End: timeline.FormatDate(v.End)}
}

type TickResponse struct {
	Date     string  `json:"date"`
	Label    string  `json:"label"`
	Position float64 `json:"position"`
}

func mapTicks(ticks []domain.Tick) []TickResponse {
	out := make([]TickResponse, 0, len(ticks))
	for _, t := range ticks {
		out = append(out, TickResponse{Date: timeline.FormatDate(t.Date), Label: t.Label, Position: t.Position})
	}
	return out
}

type PlacedEventResponse struct {
	Event        EventResponse `json:"event"`
	LeftPercent  float64       `json:"left_percent"`
	WidthPercent float64       `json:"width_percent"`
}

type RowResponse struct {
	Layer  LayerResponse         `json:"layer"`
	Events []PlacedEventResponse `json:"events"`
}

type TimelineResponse struct {
	Viewport           ViewportResponse `json:"viewport"`
	Zoom               int              `json:"zoom"`
	CanvasWidthPercent float64          `json:"canvas_width_percent"`
	Ticks              []TickResponse   `json:"ticks"`
	Rows               []RowResponse    `json:"rows"`
	TodayPercent       *float64         `json:"today_percent,omitempty"`
	Palette            []string         `json:"palette"`
}

func timelineResponse(v engine.View) TimelineResponse {
	resp := TimelineResponse{
		Viewport:           viewportResponse(v.Viewport),
		Zoom:               v.Zoom,
		CanvasWidthPercent: v.CanvasWidthPercent,
		Ticks:              mapTicks(v.Ticks),
		Rows:               make([]RowResponse, 0, len(v.Rows)),
		TodayPercent:       v.TodayPercent,
		Palette:            v.Palette,
	}
	for _, row := range v.Rows {
		r := RowResponse{
			Layer:  LayerResponse{ID: row.Layer.ID, Name: row.Layer.Name, Color: row.Layer.Color, EventCount: len(row.Events)},
			Events: make([]PlacedEventResponse, 0, len(row.Events)),
		}
		for _, p := range row.Events {
			r.Events = append(r.Events, PlacedEventResponse{Event: eventResponse(p.Event), LeftPercent: p.LeftPercent, WidthPercent: p.WidthPercent})
		}
		resp.Rows = append(resp.Rows, r)
	}
	return resp
}

type ZoomResponse struct {
	Level              int     `json:"level"`
	CanvasWidthPercent float64 `json:"canvas_width_percent"`
	TickIntervalDays   int     `json:"tick_interval_days"`
}

func zoomResponse(level int) ZoomResponse {
	return ZoomResponse{
		Level:              level,
		CanvasWidthPercent: timeline.CanvasWidthPercent(level),
		TickIntervalDays:   timeline.Interval(level),
	}
}

type MoveEventResponse struct {
	Moved bool           `json:"moved"`
	Event *EventResponse `json:"event,omitempty"`
}

type HoverResponse struct {
	Visible bool          `json:"visible"`
	Preview *drag.Preview `json:"preview,omitempty"`
}

type DraftResponse struct {
	Key   string       `json:"key"`
	Found bool         `json:"found"`
	Draft DraftRequest `json:"draft"`
}

func draftResponse(key string, found bool, d editor.Draft) DraftResponse {
	return DraftResponse{Key: key, Found: found, Draft: DraftRequest{
		Title:       d.Title,
		StartDate:   d.StartDate,
		EndDate:     d.EndDate,
		LayerID:     d.LayerID,
		Color:       d.Color,
		Description: d.Description,
	}}
}

type paginatedActivity struct {
	Items      []domain.Activity `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

func strPtrValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
