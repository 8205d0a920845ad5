// Package store holds the single source of truth for timeline events, layers,
// viewport, zoom and the transient drag state.
//
// A Store is constructed explicitly with New and handed to whatever needs it.
// Every operation runs under one lock, so a reader never observes a partially
// applied mutation (a layer deletion and its cascaded event deletions are seen
// together). Mutations on unknown ids are no-ops. The store does not validate
// dates; that is the editing boundary's job.
package store

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chronos/internal/domain"
	"chronos/internal/timeline"
)

// IDGenerator produces ids for new events and layers.
type IDGenerator interface {
	New() string
}

// RandomIDs produces random UUIDs.
type RandomIDs struct{}

func (RandomIDs) New() string { return uuid.New().String() }

type Store struct {
	mu       sync.RWMutex
	events   []domain.Event
	layers   []domain.Layer
	zoom     int
	viewport domain.Viewport
	drag     domain.DragState
	ids      IDGenerator
	version  uint64
}

type Option func(*Store)

func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) { s.ids = g }
}

// WithViewport sets the initial viewport. Callers validate it beforehand.
func WithViewport(v domain.Viewport) Option {
	return func(s *Store) { s.viewport = normalizeViewport(v) }
}

func WithZoom(level int) Option {
	return func(s *Store) { s.zoom = clampZoom(level) }
}

// WithSnapshot seeds the store with previously saved state.
func WithSnapshot(snap domain.Snapshot) Option {
	return func(s *Store) { s.restore(snap) }
}

// New returns an empty store over the 2024 calendar year at the default zoom
// unless options say otherwise.
func New(opts ...Option) *Store {
	s := &Store{
		zoom:     domain.DefaultZoom,
		viewport: DefaultViewport(),
		ids:      RandomIDs{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close drops all state. The store must not be used afterwards.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.layers = nil
	s.drag = domain.DragState{}
	s.version++
}

func DefaultViewport() domain.Viewport {
	return domain.Viewport{
		Start: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
}

// Version increases on every mutation, including drag state changes.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// --- events ---

// AddEvent appends a new event with a fresh id and returns it.
func (s *Store) AddEvent(f domain.EventFields) domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := domain.Event{
		ID:          s.freshID(),
		Title:       f.Title,
		StartDate:   timeline.Day(f.StartDate),
		EndDate:     dayPtr(f.EndDate),
		LayerID:     f.LayerID,
		Color:       f.Color,
		Description: f.Description,
	}
	s.events = append(s.events, ev)
	s.version++
	return cloneEvent(ev)
}

// UpdateEvent merges the patch into the event with the given id. It reports
// false and changes nothing when the id is unknown.
func (s *Store) UpdateEvent(id string, p domain.EventPatch) (domain.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.eventIndex(id)
	if i < 0 {
		return domain.Event{}, false
	}
	if p.IsEmpty() {
		return cloneEvent(s.events[i]), true
	}
	ev := s.events[i]
	if p.Title != nil {
		ev.Title = *p.Title
	}
	if p.StartDate != nil {
		ev.StartDate = timeline.Day(*p.StartDate)
	}
	if p.ClearEndDate {
		ev.EndDate = nil
	}
	if p.EndDate != nil {
		ev.EndDate = dayPtr(p.EndDate)
	}
	if p.LayerID != nil {
		ev.LayerID = *p.LayerID
	}
	if p.Color != nil {
		ev.Color = *p.Color
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	s.events[i] = ev
	s.version++
	return cloneEvent(ev), true
}

// DeleteEvent removes the event and reports whether it existed.
func (s *Store) DeleteEvent(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.eventIndex(id)
	if i < 0 {
		return false
	}
	s.events = append(s.events[:i:i], s.events[i+1:]...)
	s.version++
	return true
}

func (s *Store) Event(id string) (domain.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.eventIndex(id)
	if i < 0 {
		return domain.Event{}, false
	}
	return cloneEvent(s.events[i]), true
}

// Events returns copies of all events in insertion order.
func (s *Store) Events() []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEvents(s.events, func(domain.Event) bool { return true })
}

func (s *Store) EventsInLayer(layerID string) []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEvents(s.events, func(e domain.Event) bool { return e.LayerID == layerID })
}

// Search returns events whose title or description contains query,
// ignoring case. An empty query matches everything.
func (s *Store) Search(query string) []domain.Event {
	q := strings.ToLower(strings.TrimSpace(query))
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEvents(s.events, func(e domain.Event) bool {
		if q == "" {
			return true
		}
		return strings.Contains(strings.ToLower(e.Title), q) ||
			strings.Contains(strings.ToLower(e.Description), q)
	})
}

// --- layers ---

func (s *Store) AddLayer(name string) domain.Layer {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := domain.Layer{ID: s.freshID(), Name: name}
	s.layers = append(s.layers, l)
	s.version++
	return l
}

// UpdateLayer renames a layer in place.
func (s *Store) UpdateLayer(id, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.layerIndex(id)
	if i < 0 {
		return false
	}
	s.layers[i].Name = name
	s.version++
	return true
}

// DeleteLayer removes the layer and every event that references it in one
// step. It returns the number of events removed and whether the layer existed.
func (s *Store) DeleteLayer(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.layerIndex(id)
	if i < 0 {
		return 0, false
	}
	s.layers = append(s.layers[:i:i], s.layers[i+1:]...)
	kept := make([]domain.Event, 0, len(s.events))
	for _, e := range s.events {
		if e.LayerID != id {
			kept = append(kept, e)
		}
	}
	removed := len(s.events) - len(kept)
	s.events = kept
	if s.drag.Active() && s.eventIndex(s.drag.EventID) < 0 {
		s.drag = domain.DragState{}
	}
	s.version++
	return removed, true
}

func (s *Store) Layer(id string) (domain.Layer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.layerIndex(id)
	if i < 0 {
		return domain.Layer{}, false
	}
	return s.layers[i], true
}

func (s *Store) Layers() []domain.Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Layer(nil), s.layers...)
}

// --- viewport & zoom ---

// SetZoom stores level clamped into [MinZoom, MaxZoom] and returns the
// stored value.
func (s *Store) SetZoom(level int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = clampZoom(level)
	s.version++
	return s.zoom
}

func (s *Store) ZoomIn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = clampZoom(s.zoom + 1)
	s.version++
	return s.zoom
}

func (s *Store) ZoomOut() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = clampZoom(s.zoom - 1)
	s.version++
	return s.zoom
}

func (s *Store) Zoom() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zoom
}

// SetViewport replaces the visible range. It refuses ranges without a
// positive span so the mapper never divides by zero.
func (s *Store) SetViewport(v domain.Viewport) error {
	if err := timeline.ValidateViewport(v.Start, v.End); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = normalizeViewport(v)
	s.version++
	return nil
}

func (s *Store) Viewport() domain.Viewport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewport
}

// --- drag state ---

// SetDragging replaces the drag state wholesale. An empty id clears it.
func (s *Store) SetDragging(eventID string, offsetX float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if eventID == "" {
		s.drag = domain.DragState{}
	} else {
		s.drag = domain.DragState{EventID: eventID, OffsetX: offsetX}
	}
	s.version++
}

func (s *Store) ClearDragging() {
	s.SetDragging("", 0)
}

func (s *Store) Drag() domain.DragState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.drag
}

// --- snapshots ---

func (s *Store) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Snapshot{
		Events:   cloneEvents(s.events, func(domain.Event) bool { return true }),
		Layers:   append([]domain.Layer(nil), s.layers...),
		Zoom:     s.zoom,
		Viewport: s.viewport,
	}
}

// Restore replaces all state with snap. A drag in progress survives when its
// event is still present.
func (s *Store) Restore(snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restore(snap)
	s.version++
}

func (s *Store) restore(snap domain.Snapshot) {
	s.events = cloneEvents(snap.Events, func(domain.Event) bool { return true })
	s.layers = append([]domain.Layer(nil), snap.Layers...)
	s.zoom = clampZoom(snap.Zoom)
	if timeline.ValidateViewport(snap.Viewport.Start, snap.Viewport.End) == nil {
		s.viewport = normalizeViewport(snap.Viewport)
	}
	if s.drag.Active() && s.eventIndex(s.drag.EventID) < 0 {
		s.drag = domain.DragState{}
	}
}

// --- helpers ---

// freshID draws ids until one is unused. Callers hold the write lock.
func (s *Store) freshID() string {
	for {
		id := s.ids.New()
		if id != "" && s.eventIndex(id) < 0 && s.layerIndex(id) < 0 {
			return id
		}
	}
}

func (s *Store) eventIndex(id string) int {
	for i := range s.events {
		if s.events[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) layerIndex(id string) int {
	for i := range s.layers {
		if s.layers[i].ID == id {
			return i
		}
	}
	return -1
}

func clampZoom(level int) int {
	if level < domain.MinZoom {
		return domain.MinZoom
	}
	if level > domain.MaxZoom {
		return domain.MaxZoom
	}
	return level
}

func normalizeViewport(v domain.Viewport) domain.Viewport {
	return domain.Viewport{Start: timeline.Day(v.Start), End: timeline.Day(v.End)}
}

func dayPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := timeline.Day(*t)
	return &d
}

func cloneEvent(e domain.Event) domain.Event {
	e.EndDate = dayPtr(e.EndDate)
	return e
}

func cloneEvents(src []domain.Event, keep func(domain.Event) bool) []domain.Event {
	out := make([]domain.Event, 0, len(src))
	for _, e := range src {
		if keep(e) {
			out = append(out, cloneEvent(e))
		}
	}
	return out
}
