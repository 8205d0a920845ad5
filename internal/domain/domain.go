package domain

import "time"

const (
	MinZoom     = 1
	MaxZoom     = 5
	DefaultZoom = 2
)

// Event is a single item on the timeline. An event without EndDate is a point
// event; with EndDate it is a range event and EndDate >= StartDate.
type Event struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	LayerID     string     `json:"layer_id"`
	Color       string     `json:"color"`
	Description string     `json:"description,omitempty"`
}

func (e Event) IsRange() bool { return e.EndDate != nil }

// EventFields carries everything an event has except its id.
type EventFields struct {
	Title       string
	StartDate   time.Time
	EndDate     *time.Time
	LayerID     string
	Color       string
	Description string
}

// EventPatch is a partial update. Nil fields are left untouched; ClearEndDate
// turns a range event back into a point event.
type EventPatch struct {
	Title        *string
	StartDate    *time.Time
	EndDate      *time.Time
	ClearEndDate bool
	LayerID      *string
	Color        *string
	Description  *string
}

func (p EventPatch) IsEmpty() bool {
	return p.Title == nil && p.StartDate == nil && p.EndDate == nil && !p.ClearEndDate &&
		p.LayerID == nil && p.Color == nil && p.Description == nil
}

// Layer is a swimlane grouping events.
type Layer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Viewport is the visible date range; End must be strictly after Start.
type Viewport struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type Tick struct {
	Date     time.Time `json:"date"`
	Label    string    `json:"label"`
	Position float64   `json:"position"`
}

// DragState records the event being dragged and where the pointer grabbed it.
// The zero value means no drag is in progress.
type DragState struct {
	EventID string  `json:"event_id,omitempty"`
	OffsetX float64 `json:"offset_x,omitempty"`
}

func (d DragState) Active() bool { return d.EventID != "" }

// Snapshot is a consistent copy of everything the store owns except drag state.
type Snapshot struct {
	Events   []Event  `json:"events"`
	Layers   []Layer  `json:"layers"`
	Zoom     int      `json:"zoom"`
	Viewport Viewport `json:"viewport"`
}

// Activity is an audit row describing one persisted mutation.
type Activity struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
