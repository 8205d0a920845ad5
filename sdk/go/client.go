package chronossdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Chronos HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	// ActorID is sent as X-Actor-Id; servers with a JWT secret ignore it.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Layer represents a timeline row.
type Layer struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Color      string `json:"color,omitempty"`
	EventCount int    `json:"event_count"`
}

// Event represents a dated item. EndDate is nil for point events.
type Event struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	StartDate    string  `json:"start_date"`
	EndDate      *string `json:"end_date,omitempty"`
	LayerID      string  `json:"layer_id"`
	Color        string  `json:"color"`
	Description  string  `json:"description,omitempty"`
	DurationDays int     `json:"duration_days"`
}

// EventInput is the create form. Empty optional fields are omitted.
type EventInput struct {
	Title       string  `json:"title"`
	StartDate   string  `json:"start_date"`
	EndDate     *string `json:"end_date,omitempty"`
	LayerID     string  `json:"layer_id"`
	Color       *string `json:"color,omitempty"`
	Description *string `json:"description,omitempty"`
}

// EventPatch changes only the non-nil fields. An empty EndDate makes the
// event a point event.
type EventPatch struct {
	Title       *string `json:"title,omitempty"`
	StartDate   *string `json:"start_date,omitempty"`
	EndDate     *string `json:"end_date,omitempty"`
	LayerID     *string `json:"layer_id,omitempty"`
	Color       *string `json:"color,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Move is a drop in canvas pixels.
type Move struct {
	LayerID      string  `json:"layer_id"`
	DropX        float64 `json:"drop_x"`
	ClickOffsetX float64 `json:"click_offset_x,omitempty"`
	CanvasWidth  float64 `json:"canvas_width,omitempty"`
}

type MoveResult struct {
	Moved bool   `json:"moved"`
	Event *Event `json:"event,omitempty"`
}

type Zoom struct {
	Level              int     `json:"level"`
	CanvasWidthPercent float64 `json:"canvas_width_percent"`
	TickIntervalDays   int     `json:"tick_interval_days"`
}

type Viewport struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type Tick struct {
	Date     string  `json:"date"`
	Label    string  `json:"label"`
	Position float64 `json:"position"`
}

type PlacedEvent struct {
	Event        Event   `json:"event"`
	LeftPercent  float64 `json:"left_percent"`
	WidthPercent float64 `json:"width_percent"`
}

type Row struct {
	Layer  Layer         `json:"layer"`
	Events []PlacedEvent `json:"events"`
}

// Timeline is the positioned view.
type Timeline struct {
	Viewport           Viewport `json:"viewport"`
	Zoom               int      `json:"zoom"`
	CanvasWidthPercent float64  `json:"canvas_width_percent"`
	Ticks              []Tick   `json:"ticks"`
	Rows               []Row    `json:"rows"`
	TodayPercent       *float64 `json:"today_percent,omitempty"`
	Palette            []string `json:"palette"`
}

// Draft holds form values saved by autosave.
type Draft struct {
	Title       string `json:"title,omitempty"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	LayerID     string `json:"layer_id,omitempty"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

type DraftState struct {
	Key   string `json:"key"`
	Found bool   `json:"found"`
	Draft Draft  `json:"draft"`
}

// Activity represents an audit row.
type Activity struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

// PaginatedActivity wraps list responses with cursors.
type PaginatedActivity struct {
	Items      []Activity `json:"items"`
	NextCursor string     `json:"next_cursor"`
}

type ImportResult struct {
	Layers  int `json:"layers_created"`
	Events  int `json:"events_created"`
	Skipped int `json:"events_skipped"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) Layers(ctx context.Context) ([]Layer, error) {
	var resp []Layer
	err := c.do(ctx, http.MethodGet, "layers", nil, &resp)
	return resp, err
}

func (c *Client) CreateLayer(ctx context.Context, name string) (Layer, error) {
	var resp Layer
	err := c.do(ctx, http.MethodPost, "layers", map[string]any{"name": name}, &resp)
	return resp, err
}

func (c *Client) RenameLayer(ctx context.Context, id, name string) (Layer, error) {
	var resp Layer
	err := c.do(ctx, http.MethodPatch, "layers/"+url.PathEscape(id), map[string]any{"name": name}, &resp)
	return resp, err
}

// DeleteLayer removes a layer and its events and returns how many events
// went with it.
func (c *Client) DeleteLayer(ctx context.Context, id string) (int, error) {
	var resp struct {
		EventsRemoved int `json:"events_removed"`
	}
	err := c.do(ctx, http.MethodDelete, "layers/"+url.PathEscape(id), nil, &resp)
	return resp.EventsRemoved, err
}

// Events lists events. layerID and query are optional filters.
func (c *Client) Events(ctx context.Context, layerID, query string) ([]Event, error) {
	q := url.Values{}
	if layerID != "" {
		q.Set("layer_id", layerID)
	}
	if query != "" {
		q.Set("q", query)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) Event(ctx context.Context, id string) (Event, error) {
	var resp Event
	err := c.do(ctx, http.MethodGet, "events/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) CreateEvent(ctx context.Context, in EventInput) (Event, error) {
	var resp Event
	err := c.do(ctx, http.MethodPost, "events", in, &resp)
	return resp, err
}

func (c *Client) UpdateEvent(ctx context.Context, id string, p EventPatch) (Event, error) {
	var resp Event
	err := c.do(ctx, http.MethodPatch, "events/"+url.PathEscape(id), p, &resp)
	return resp, err
}

func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "events/"+url.PathEscape(id), nil, nil)
}

// MoveEvent drops an event at a canvas position, keeping its duration.
func (c *Client) MoveEvent(ctx context.Context, id string, m Move) (MoveResult, error) {
	var resp MoveResult
	err := c.do(ctx, http.MethodPost, "events/"+url.PathEscape(id)+"/move", m, &resp)
	return resp, err
}

func (c *Client) SetZoom(ctx context.Context, level int) (Zoom, error) {
	var resp Zoom
	err := c.do(ctx, http.MethodPut, "zoom", map[string]any{"level": level}, &resp)
	return resp, err
}

func (c *Client) ZoomIn(ctx context.Context) (Zoom, error) {
	var resp Zoom
	err := c.do(ctx, http.MethodPost, "zoom/in", nil, &resp)
	return resp, err
}

func (c *Client) ZoomOut(ctx context.Context) (Zoom, error) {
	var resp Zoom
	err := c.do(ctx, http.MethodPost, "zoom/out", nil, &resp)
	return resp, err
}

// SetViewport sets the visible range; dates are YYYY-MM-DD.
func (c *Client) SetViewport(ctx context.Context, start, end string) (Viewport, error) {
	var resp Viewport
	err := c.do(ctx, http.MethodPut, "viewport", Viewport{Start: start, End: end}, &resp)
	return resp, err
}

func (c *Client) Timeline(ctx context.Context) (Timeline, error) {
	var resp Timeline
	err := c.do(ctx, http.MethodGet, "timeline", nil, &resp)
	return resp, err
}

func (c *Client) Ticks(ctx context.Context) ([]Tick, error) {
	var resp []Tick
	err := c.do(ctx, http.MethodGet, "ticks", nil, &resp)
	return resp, err
}

// Draft returns the saved form values of an event; an empty eventID means
// the new-event form.
func (c *Client) Draft(ctx context.Context, eventID string) (DraftState, error) {
	var resp DraftState
	err := c.do(ctx, http.MethodGet, draftPath(eventID), nil, &resp)
	return resp, err
}

func (c *Client) SaveDraft(ctx context.Context, eventID string, d Draft) error {
	return c.do(ctx, http.MethodPut, draftPath(eventID), d, nil)
}

func (c *Client) DiscardDraft(ctx context.Context, eventID string) error {
	return c.do(ctx, http.MethodDelete, draftPath(eventID), nil, nil)
}

// Activity returns recent activity, newest first.
func (c *Client) Activity(ctx context.Context, limit int) ([]Activity, error) {
	page, err := c.ActivityPage(ctx, limit, "")
	return page.Items, err
}

// ActivityPage returns a paginated activity listing.
func (c *Client) ActivityPage(ctx context.Context, limit int, cursor string) (PaginatedActivity, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "activity"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedActivity
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ExportICS returns the timeline as iCalendar text.
func (c *Client) ExportICS(ctx context.Context) (string, error) {
	b, err := c.raw(ctx, http.MethodGet, "export.ics", "", nil)
	return string(b), err
}

// ImportICS uploads an iCalendar document.
func (c *Client) ImportICS(ctx context.Context, cal io.Reader) (ImportResult, error) {
	var resp ImportResult
	b, err := c.raw(ctx, http.MethodPost, "import", "text/calendar", cal)
	if err != nil {
		return resp, err
	}
	err = json.Unmarshal(b, &resp)
	return resp, err
}

func draftPath(eventID string) string {
	if eventID == "" {
		return "drafts/new"
	}
	return "drafts/" + url.PathEscape(eventID)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	b, err := c.raw(ctx, method, endpoint, "application/json", &buf)
	if err != nil {
		return err
	}
	if out != nil && len(b) > 0 {
		return json.Unmarshal(b, out)
	}
	return nil
}

func (c *Client) raw(ctx context.Context, method, endpoint, contentType string, body io.Reader) ([]byte, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return nil, apiErr
	}
	return b, nil
}

func (c *Client) url(endpoint string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base + "/" + strings.TrimLeft(endpoint, "/")
}
