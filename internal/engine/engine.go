package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"chronos/internal/activity"
	"chronos/internal/config"
	"chronos/internal/domain"
	"chronos/internal/drag"
	"chronos/internal/editor"
	"chronos/internal/render"
	"chronos/internal/repo"
	"chronos/internal/store"
	"chronos/internal/timeline"
)

// DefaultActor is recorded on activity rows when no actor is given.
const DefaultActor = "local"

var ErrNameRequired = errors.New("name is required")

// Engine applies timeline operations to the store and persists the result.
// Every mutation writes the whole snapshot and one activity row in a single
// transaction; if that fails the store is rolled back to its previous state.
type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Audit     activity.Writer
	Config    *config.Config
	Store     *store.Store
	Drag      *drag.Protocol
	Drafts    editor.DraftStore
	Autosave  *editor.Autosaver
	Validator editor.Validator
	Log       *zap.Logger
	Now       func() time.Time

	mu *sync.Mutex
}

// New wires an engine around s. A nil drafts store keeps drafts in the
// database.
func New(db *sql.DB, cfg *config.Config, s *store.Store, drafts editor.DraftStore, log *zap.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Audit:  activity.Writer{},
		Config: cfg,
		Store:  s,
		Validator: editor.Validator{
			AllowPastStart: cfg.Editor.AllowPastStart,
			DefaultColor:   cfg.Editor.DefaultColor,
		},
		Log: log,
		Now: time.Now,
		mu:  &sync.Mutex{},
	}
	if drafts == nil {
		drafts = e.Repo
	}
	e.Drafts = drafts
	e.Autosave = editor.NewAutosaver(drafts, cfg.AutosaveDelay(), log.Named("autosave"))
	e.Drag = drag.New(s, drag.FixedGeometry{Width: e.canvasWidth()})
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Close writes pending drafts.
func (e Engine) Close() error {
	return e.Autosave.Close()
}

// change describes one persisted mutation.
type change struct {
	Type    string
	Kind    string
	ID      string
	Payload activity.Payload
}

// commit runs fn against the store and persists the result. fn reports false
// when it changed nothing; nothing is written then.
func (e Engine) commit(ctx context.Context, actorID string, fn func() (change, bool, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	before := e.Store.Snapshot()
	ch, changed, err := fn()
	if err != nil || !changed {
		return err
	}
	if err := e.persist(ctx, actorID, ch); err != nil {
		e.Store.Restore(before)
		e.Log.Error("persist timeline", zap.String("type", ch.Type), zap.String("entity_id", ch.ID), zap.Error(err))
		return err
	}
	return nil
}

func (e Engine) persist(ctx context.Context, actorID string, ch change) error {
	if actorID == "" {
		actorID = DefaultActor
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SaveSnapshotTx(ctx, tx, e.Store.Snapshot()); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	w := e.Audit
	if w.Now == nil {
		w.Now = e.now
	}
	id, err := w.Append(ctx, tx, ch.Type, ch.Kind, ch.ID, actorID, ch.Payload)
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.Log.Debug("timeline saved",
		zap.Int64("activity_id", id),
		zap.String("type", ch.Type),
		zap.String("entity_id", ch.ID),
		zap.String("actor_id", actorID))
	return nil
}

// --- events ---

func (e Engine) Event(id string) (domain.Event, error) {
	ev, ok := e.Store.Event(id)
	if !ok {
		return domain.Event{}, fmt.Errorf("event %s: %w", id, repo.ErrNotFound)
	}
	return ev, nil
}

// Events lists events in store order, optionally restricted to one layer.
func (e Engine) Events(layerID string) []domain.Event {
	if layerID == "" {
		return e.Store.Events()
	}
	return e.Store.EventsInLayer(layerID)
}

func (e Engine) Search(query string) []domain.Event {
	return e.Store.Search(query)
}

// CreateEvent validates the form and adds the event. The new-event draft is
// discarded on success.
func (e Engine) CreateEvent(ctx context.Context, d editor.Draft, actorID string) (domain.Event, error) {
	var created domain.Event
	err := e.commit(ctx, actorID, func() (change, bool, error) {
		f, err := e.Validator.Validate(d, e.now(), e.Store.Layers())
		if err != nil {
			return change{}, false, err
		}
		created = e.Store.AddEvent(f)
		return change{
			Type: activity.EventCreated, Kind: "event", ID: created.ID,
			Payload: activity.Payload{"title": created.Title, "layer_id": created.LayerID, "start_date": timeline.FormatDate(created.StartDate)},
		}, true, nil
	})
	if err != nil {
		return domain.Event{}, err
	}
	e.discardQuietly(ctx, "")
	return created, nil
}

// EventUpdate carries the form fields to change. Nil fields keep their
// current value; an empty EndDate turns the event into a point event.
type EventUpdate struct {
	Title       *string
	StartDate   *string
	EndDate     *string
	LayerID     *string
	Color       *string
	Description *string
}

func (u EventUpdate) apply(d editor.Draft) editor.Draft {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&d.Title, u.Title)
	set(&d.StartDate, u.StartDate)
	set(&d.EndDate, u.EndDate)
	set(&d.LayerID, u.LayerID)
	set(&d.Color, u.Color)
	set(&d.Description, u.Description)
	return d
}

// UpdateEvent merges u into the event's current values and validates the
// result as a form. An unchanged start date may lie in the past.
func (e Engine) UpdateEvent(ctx context.Context, id string, u EventUpdate, actorID string) (domain.Event, error) {
	var updated domain.Event
	err := e.commit(ctx, actorID, func() (change, bool, error) {
		ev, ok := e.Store.Event(id)
		if !ok {
			return change{}, false, fmt.Errorf("event %s: %w", id, repo.ErrNotFound)
		}
		current := editor.DraftFromEvent(ev)
		next := u.apply(current)
		v := e.Validator
		if next.StartDate == current.StartDate {
			v.AllowPastStart = true
		}
		f, err := v.Validate(next, e.now(), e.Store.Layers())
		if err != nil {
			return change{}, false, err
		}
		patch := domain.EventPatch{
			Title:        &f.Title,
			StartDate:    &f.StartDate,
			EndDate:      f.EndDate,
			ClearEndDate: f.EndDate == nil,
			LayerID:      &f.LayerID,
			Color:        &f.Color,
			Description:  &f.Description,
		}
		updated, ok = e.Store.UpdateEvent(id, patch)
		if !ok {
			return change{}, false, fmt.Errorf("event %s: %w", id, repo.ErrNotFound)
		}
		return change{
			Type: activity.EventUpdated, Kind: "event", ID: id,
			Payload: activity.Payload{"fields": changedFields(current, editor.DraftFromEvent(updated))},
		}, true, nil
	})
	if err != nil {
		return domain.Event{}, err
	}
	e.discardQuietly(ctx, id)
	return updated, nil
}

func changedFields(before, after editor.Draft) []string {
	fields := []string{}
	add := func(name, a, b string) {
		if a != b {
			fields = append(fields, name)
		}
	}
	add("title", before.Title, after.Title)
	add("start_date", before.StartDate, after.StartDate)
	add("end_date", before.EndDate, after.EndDate)
	add("layer_id", before.LayerID, after.LayerID)
	add("color", before.Color, after.Color)
	add("description", before.Description, after.Description)
	return fields
}

func (e Engine) DeleteEvent(ctx context.Context, id, actorID string) error {
	err := e.commit(ctx, actorID, func() (change, bool, error) {
		ev, ok := e.Store.Event(id)
		if !ok || !e.Store.DeleteEvent(id) {
			return change{}, false, fmt.Errorf("event %s: %w", id, repo.ErrNotFound)
		}
		return change{Type: activity.EventDeleted, Kind: "event", ID: id, Payload: activity.Payload{"title": ev.Title}}, true, nil
	})
	if err != nil {
		return err
	}
	e.discardQuietly(ctx, id)
	return nil
}

// --- layers ---

func (e Engine) Layers() []domain.Layer {
	return e.Store.Layers()
}

func (e Engine) CreateLayer(ctx context.Context, name, actorID string) (domain.Layer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Layer{}, ErrNameRequired
	}
	var l domain.Layer
	err := e.commit(ctx, actorID, func() (change, bool, error) {
		l = e.Store.AddLayer(name)
		return change{Type: activity.LayerCreated, Kind: "layer", ID: l.ID, Payload: activity.Payload{"name": name}}, true, nil
	})
	return l, err
}

func (e Engine) RenameLayer(ctx context.Context, id, name, actorID string) (domain.Layer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Layer{}, ErrNameRequired
	}
	var l domain.Layer
	err := e.commit(ctx, actorID, func() (change, bool, error) {
		old, ok := e.Store.Layer(id)
		if !ok || !e.Store.UpdateLayer(id, name) {
			return change{}, false, fmt.Errorf("layer %s: %w", id, repo.ErrNotFound)
		}
		l, _ = e.Store.Layer(id)
		return change{Type: activity.LayerRenamed, Kind: "layer", ID: id, Payload: activity.Payload{"from": old.Name, "to": name}}, true, nil
	})
	return l, err
}

// DeleteLayer removes the layer and its events and returns how many events
// went with it.
func (e Engine) DeleteLayer(ctx context.Context, id, actorID string) (int, error) {
	var removed int
	err := e.commit(ctx, actorID, func() (change, bool, error) {
		n, ok := e.Store.DeleteLayer(id)
		if !ok {
			return change{}, false, fmt.Errorf("layer %s: %w", id, repo.ErrNotFound)
		}
		removed = n
		return change{Type: activity.LayerDeleted, Kind: "layer", ID: id, Payload: activity.Payload{"events_removed": n}}, true, nil
	})
	return removed, err
}

// --- zoom and viewport ---

func (e Engine) Zoom() int { return e.Store.Zoom() }

// SetZoom clamps level into the supported range and returns the level set.
func (e Engine) SetZoom(ctx context.Context, level int, actorID string) (int, error) {
	return e.zoomTo(ctx, actorID, func() int { return e.Store.SetZoom(level) })
}

func (e Engine) ZoomIn(ctx context.Context, actorID string) (int, error) {
	return e.zoomTo(ctx, actorID, e.Store.ZoomIn)
}

func (e Engine) ZoomOut(ctx context.Context, actorID string) (int, error) {
	return e.zoomTo(ctx, actorID, e.Store.ZoomOut)
}

func (e Engine) zoomTo(ctx context.Context, actorID string, set func() int) (int, error) {
	var level int
	err := e.commit(ctx, actorID, func() (change, bool, error) {
		from := e.Store.Zoom()
		level = set()
		if level == from {
			return change{}, false, nil
		}
		return change{Type: activity.ZoomChanged, Kind: "timeline", Payload: activity.Payload{"from": from, "to": level}}, true, nil
	})
	return level, err
}

func (e Engine) Viewport() domain.Viewport { return e.Store.Viewport() }

// SetViewport rejects ranges whose end is not after their start.
func (e Engine) SetViewport(ctx context.Context, vp domain.Viewport, actorID string) (domain.Viewport, error) {
	var set domain.Viewport
	err := e.commit(ctx, actorID, func() (change, bool, error) {
		from := e.Store.Viewport()
		if err := e.Store.SetViewport(vp); err != nil {
			return change{}, false, err
		}
		set = e.Store.Viewport()
		if set.Start.Equal(from.Start) && set.End.Equal(from.End) {
			return change{}, false, nil
		}
		return change{Type: activity.ViewportSet, Kind: "timeline", Payload: activity.Payload{
			"start": timeline.FormatDate(set.Start), "end": timeline.FormatDate(set.End),
		}}, true, nil
	})
	return set, err
}

// --- views ---

// View is the positioned timeline plus the editor palette.
type View struct {
	render.Model
	Palette []string `json:"palette"`
}

func (e Engine) View() View {
	palette := e.Config.Editor.Palette
	if len(palette) == 0 {
		palette = editor.DefaultPalette
	}
	return View{Model: render.Build(e.Store.Snapshot(), e.now()), Palette: append([]string(nil), palette...)}
}

func (e Engine) Ticks() []domain.Tick {
	vp := e.Store.Viewport()
	return timeline.Ticks(vp.Start, vp.End, e.Store.Zoom())
}

func (e Engine) RenderOptions() render.Options {
	r := e.Config.Render
	return render.Options{Width: r.Width, RowHeight: r.RowHeight, HeaderHeight: r.HeaderHeight, LabelWidth: r.LabelWidth}
}

// RenderSVG draws the current timeline with the configured sizes.
func (e Engine) RenderSVG() string {
	return render.SVG(render.Build(e.Store.Snapshot(), e.now()), e.RenderOptions())
}

// canvasWidth is the rendered canvas width in pixels at the current zoom.
func (e Engine) canvasWidth() float64 {
	w := e.Config.Render.Width
	if w <= 0 {
		w = render.DefaultOptions().Width
	}
	return float64(w) * timeline.CanvasWidthPercent(e.Store.Zoom()) / 100
}

// --- activity ---

func (e Engine) Activity(ctx context.Context, f repo.ActivityFilters) ([]domain.Activity, error) {
	return e.Repo.ListActivity(ctx, f)
}
