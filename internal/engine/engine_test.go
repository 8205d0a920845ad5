package engine_test

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"chronos/internal/activity"
	"chronos/internal/config"
	"chronos/internal/db"
	"chronos/internal/domain"
	"chronos/internal/drag"
	"chronos/internal/editor"
	"chronos/internal/engine"
	"chronos/internal/ics"
	"chronos/internal/migrate"
	"chronos/internal/repo"
	"chronos/internal/store"
	"chronos/internal/timeline"
)

type testEnv struct {
	Engine engine.Engine
	Conn   *sql.DB
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	s := store.New(store.WithSnapshot(store.Demo()))
	eng := engine.New(conn, cfg, s, nil, nil)
	eng.Now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { eng.Close() })
	return testEnv{Engine: eng, Conn: conn, Ctx: context.Background()}
}

func date(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
}

func lastActivity(t *testing.T, env testEnv) domain.Activity {
	t.Helper()
	items, err := env.Engine.Activity(env.Ctx, repo.ActivityFilters{Limit: 1})
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if len(items) == 0 {
		t.Fatalf("expected activity")
	}
	return items[0]
}

func TestCreateEventPersists(t *testing.T) {
	env := newTestEnv(t)
	ev, err := env.Engine.CreateEvent(env.Ctx, editor.Draft{
		Title: "Launch", StartDate: "2024-03-04", EndDate: "2024-03-08", LayerID: "marketing",
	}, "alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ev.ID == "" || ev.Color != editor.DefaultColor || ev.EndDate == nil {
		t.Fatalf("unexpected event: %+v", ev)
	}
	snap, err := env.Engine.Repo.LoadSnapshot(env.Ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Events) != 5 || snap.Events[4].ID != ev.ID {
		t.Fatalf("snapshot not saved: %+v", snap.Events)
	}
	act := lastActivity(t, env)
	if act.Type != activity.EventCreated || act.EntityID != ev.ID || act.ActorID != "alice" {
		t.Fatalf("activity: %+v", act)
	}
}

func TestCreateEventValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateEvent(env.Ctx, editor.Draft{Title: "Old", StartDate: "2024-02-01", LayerID: "dev"}, "")
	if !errors.Is(err, editor.ErrStartInPast) {
		t.Fatalf("expected past start error, got %v", err)
	}
	_, err = env.Engine.CreateEvent(env.Ctx, editor.Draft{Title: "Bad", StartDate: "2024-03-10", EndDate: "2024-03-09", LayerID: "dev"}, "")
	if !errors.Is(err, editor.ErrEndBeforeStart) {
		t.Fatalf("expected end before start error, got %v", err)
	}
	_, err = env.Engine.CreateEvent(env.Ctx, editor.Draft{Title: "Lost", StartDate: "2024-03-10", LayerID: "nope"}, "")
	if !errors.Is(err, editor.ErrUnknownLayer) {
		t.Fatalf("expected unknown layer error, got %v", err)
	}
	if got := len(env.Engine.Events("")); got != 4 {
		t.Fatalf("store changed on invalid input: %d events", got)
	}
	if _, err := env.Engine.Repo.LoadSnapshot(env.Ctx); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("nothing should be saved, got %v", err)
	}
}

func TestUpdateEventMergesFields(t *testing.T) {
	env := newTestEnv(t)
	title := "Research"
	ev, err := env.Engine.UpdateEvent(env.Ctx, "1", engine.EventUpdate{Title: &title}, "")
	if err != nil {
		t.Fatalf("update title of past event: %v", err)
	}
	if ev.Title != "Research" || !ev.StartDate.Equal(date(time.January, 15)) || ev.EndDate == nil {
		t.Fatalf("unexpected event: %+v", ev)
	}

	empty := ""
	ev, err = env.Engine.UpdateEvent(env.Ctx, "1", engine.EventUpdate{EndDate: &empty}, "")
	if err != nil {
		t.Fatalf("clear end date: %v", err)
	}
	if ev.EndDate != nil {
		t.Fatalf("expected point event, got %+v", ev)
	}

	past := "2024-02-01"
	if _, err := env.Engine.UpdateEvent(env.Ctx, "1", engine.EventUpdate{StartDate: &past}, ""); !errors.Is(err, editor.ErrStartInPast) {
		t.Fatalf("expected past start error, got %v", err)
	}
	if _, err := env.Engine.UpdateEvent(env.Ctx, "missing", engine.EventUpdate{Title: &title}, ""); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	act := lastActivity(t, env)
	if act.Type != activity.EventUpdated || !strings.Contains(act.Payload, "end_date") {
		t.Fatalf("activity: %+v", act)
	}
}

func TestDeleteEventAndLayer(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.DeleteEvent(env.Ctx, "3", ""); err != nil {
		t.Fatalf("delete event: %v", err)
	}
	if err := env.Engine.DeleteEvent(env.Ctx, "3", ""); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	n, err := env.Engine.DeleteLayer(env.Ctx, "dev", "")
	if err != nil {
		t.Fatalf("delete layer: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 events removed, got %d", n)
	}
	snap, err := env.Engine.Repo.LoadSnapshot(env.Ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Layers) != 2 || len(snap.Events) != 1 || snap.Events[0].ID != "2" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestLayerLifecycle(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateLayer(env.Ctx, "  ", ""); !errors.Is(err, engine.ErrNameRequired) {
		t.Fatalf("expected name required, got %v", err)
	}
	l, err := env.Engine.CreateLayer(env.Ctx, "Ops", "")
	if err != nil {
		t.Fatalf("create layer: %v", err)
	}
	l, err = env.Engine.RenameLayer(env.Ctx, l.ID, "Operations", "")
	if err != nil || l.Name != "Operations" {
		t.Fatalf("rename: %+v %v", l, err)
	}
	if _, err := env.Engine.RenameLayer(env.Ctx, "ghost", "x", ""); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if act := lastActivity(t, env); act.Type != activity.LayerRenamed {
		t.Fatalf("activity: %+v", act)
	}
}

func TestZoomAndViewport(t *testing.T) {
	env := newTestEnv(t)
	level, err := env.Engine.SetZoom(env.Ctx, 9, "")
	if err != nil || level != domain.MaxZoom {
		t.Fatalf("set zoom: %d %v", level, err)
	}
	first := lastActivity(t, env)
	if _, err := env.Engine.SetZoom(env.Ctx, 5, ""); err != nil {
		t.Fatalf("set zoom: %v", err)
	}
	if again := lastActivity(t, env); again.ID != first.ID {
		t.Fatalf("unchanged zoom should not be recorded")
	}
	if level, _ := env.Engine.ZoomOut(env.Ctx, ""); level != 4 {
		t.Fatalf("zoom out: %d", level)
	}
	if level, _ := env.Engine.ZoomIn(env.Ctx, ""); level != 5 {
		t.Fatalf("zoom in: %d", level)
	}
	if ticks := env.Engine.Ticks(); len(ticks) != 366 {
		t.Fatalf("daily ticks over 2024: %d", len(ticks))
	}

	_, err = env.Engine.SetViewport(env.Ctx, domain.Viewport{Start: date(time.June, 1), End: date(time.June, 1)}, "")
	if !errors.Is(err, timeline.ErrInvalidViewport) {
		t.Fatalf("expected invalid viewport, got %v", err)
	}
	vp, err := env.Engine.SetViewport(env.Ctx, domain.Viewport{Start: date(time.June, 1), End: date(time.June, 30)}, "")
	if err != nil || !vp.End.Equal(date(time.June, 30)) {
		t.Fatalf("set viewport: %+v %v", vp, err)
	}
	snap, err := env.Engine.Repo.LoadSnapshot(env.Ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Zoom != 5 || !snap.Viewport.Start.Equal(date(time.June, 1)) {
		t.Fatalf("settings not saved: %+v", snap)
	}
}

func TestMoveEventPreservesDuration(t *testing.T) {
	env := newTestEnv(t)
	moved, ok, err := env.Engine.MoveEvent(env.Ctx, engine.MoveOptions{
		EventID: "2", LayerID: "marketing", DropX: 935, ClickOffsetX: 25, CanvasWidth: 3650,
	})
	if err != nil || !ok {
		t.Fatalf("move: %v %v", ok, err)
	}
	if !moved.StartDate.Equal(date(time.April, 1)) || !moved.EndDate.Equal(date(time.June, 17)) || moved.LayerID != "marketing" {
		t.Fatalf("unexpected move: %+v", moved)
	}
	if env.Engine.DragState().State != "idle" || env.Engine.Store.Drag().Active() {
		t.Fatalf("drag state not cleared")
	}
	if act := lastActivity(t, env); act.Type != activity.EventMoved {
		t.Fatalf("activity: %+v", act)
	}
}

func TestDragGesture(t *testing.T) {
	env := newTestEnv(t)
	if _, _, err := env.Engine.HoverDrag("dev", 10, 0); !errors.Is(err, drag.ErrNoGesture) {
		t.Fatalf("expected no gesture, got %v", err)
	}
	if _, err := env.Engine.StartDrag("ghost", 0); !errors.Is(err, drag.ErrUnknownEvent) {
		t.Fatalf("expected unknown event, got %v", err)
	}
	st, err := env.Engine.StartDrag("3", 12)
	if err != nil || st.State != "dragging" || st.EventID != "3" || st.OffsetX != 12 {
		t.Fatalf("start: %+v %v", st, err)
	}
	pv, ok, err := env.Engine.HoverDrag("design", 500, 1000)
	if err != nil || !ok || pv.IsRange {
		t.Fatalf("hover: %+v %v %v", pv, ok, err)
	}
	if st := env.Engine.DragState(); st.State != "hover_target" || st.Target != "design" {
		t.Fatalf("state: %+v", st)
	}
	if err := env.Engine.LeaveDrag(); err != nil {
		t.Fatalf("leave: %v", err)
	}
	before := env.Engine.Store.Snapshot()
	_, moved, err := env.Engine.DropDrag(env.Ctx, "nowhere", 500, 1000, "")
	if err != nil || moved {
		t.Fatalf("drop on unknown layer should cancel: %v %v", moved, err)
	}
	if env.Engine.Store.Drag().Active() {
		t.Fatalf("drag state left behind")
	}
	if got := env.Engine.Store.Snapshot(); len(got.Events) != len(before.Events) || !got.Events[2].StartDate.Equal(before.Events[2].StartDate) {
		t.Fatalf("cancelled drop changed the store")
	}

	if _, err := env.Engine.StartDrag("3", 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.Engine.CancelDrag()
	if env.Engine.DragState().State != "idle" {
		t.Fatalf("cancel did not end gesture")
	}
}

func TestPersistFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.Conn.Close()
	if _, err := env.Engine.CreateLayer(env.Ctx, "Ops", ""); err == nil {
		t.Fatalf("expected error with closed database")
	}
	if got := len(env.Engine.Layers()); got != 3 {
		t.Fatalf("store not rolled back: %d layers", got)
	}
}

func TestPersistFailureKeepsDragInProgress(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.StartDrag("3", 12); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.Conn.Close()
	if _, err := env.Engine.CreateLayer(env.Ctx, "Ops", ""); err == nil {
		t.Fatalf("expected error with closed database")
	}
	if st := env.Engine.DragState(); st.State != "dragging" || st.EventID != "3" || st.OffsetX != 12 {
		t.Fatalf("drag lost on rollback: %+v", st)
	}
	if _, ok := env.Engine.Drag.Preview("design", 500); !ok {
		t.Fatalf("expected preview during gesture after rollback")
	}
}

func TestDrafts(t *testing.T) {
	env := newTestEnv(t)
	d, found, err := env.Engine.GetDraft(env.Ctx, "")
	if err != nil || found {
		t.Fatalf("fresh draft: %v %v", found, err)
	}
	if d.StartDate != "2024-03-01" || d.LayerID != "dev" {
		t.Fatalf("blank form: %+v", d)
	}

	d.Title = "Half typed"
	if err := env.Engine.SaveDraft("", d); err != nil {
		t.Fatalf("save draft: %v", err)
	}
	got, found, err := env.Engine.GetDraft(env.Ctx, "")
	if err != nil || !found || got.Title != "Half typed" {
		t.Fatalf("restore: %+v %v %v", got, found, err)
	}

	d.StartDate = "2024-03-05"
	if err := env.Engine.SaveDraft("", d); err != nil {
		t.Fatalf("save draft: %v", err)
	}
	if _, err := env.Engine.CreateEvent(env.Ctx, d, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, found, _ := env.Engine.GetDraft(env.Ctx, ""); found {
		t.Fatalf("draft should be cleared after submit")
	}

	if err := env.Engine.SaveDraft("missing", d); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	edit := editor.DraftFromEvent(env.Engine.Store.Events()[0])
	edit.Description = "changed"
	if err := env.Engine.SaveDraft("1", edit); err != nil {
		t.Fatalf("save edit draft: %v", err)
	}
	if err := env.Engine.DiscardDraft(env.Ctx, "1"); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, found, _ := env.Engine.GetDraft(env.Ctx, "1"); found {
		t.Fatalf("discarded draft came back")
	}
}

func TestImportICS(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := date(time.May, 3)
	cal := ics.Export([]domain.Event{
		{ID: "a", Title: "Ops review", StartDate: date(time.May, 1), EndDate: &end, LayerID: "ops"},
		{ID: "b", Title: "Press day", StartDate: date(time.May, 2), LayerID: "mkt"},
	}, []domain.Layer{{ID: "ops", Name: "Operations"}, {ID: "mkt", Name: "marketing"}}, now)

	res, err := env.Engine.ImportICS(env.Ctx, strings.NewReader(cal), "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Layers != 1 || res.Events != 2 || res.Skipped != 0 {
		t.Fatalf("result: %+v", res)
	}
	if got := len(env.Engine.Events("marketing")); got != 2 {
		t.Fatalf("expected event in existing marketing layer, got %d", got)
	}
	if act := lastActivity(t, env); act.Type != activity.TimelineImport {
		t.Fatalf("activity: %+v", act)
	}
	if out := env.Engine.ExportICS(); !strings.Contains(out, "SUMMARY:Ops review") {
		t.Fatalf("export missing imported event")
	}
}

func TestImportICSSanitizesForeignEvents(t *testing.T) {
	env := newTestEnv(t)
	cal := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//other//EN",
		"BEGIN:VEVENT",
		"UID:hostile",
		"DTSTART;VALUE=DATE:20240501",
		"SUMMARY:Hostile",
		`COLOR:red"/><script>alert(1)</script><x a="`,
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:named",
		"DTSTART;VALUE=DATE:20240502",
		"SUMMARY:Offsite",
		"COLOR:turquoise",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:nostart",
		"SUMMARY:No start",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	res, err := env.Engine.ImportICS(env.Ctx, strings.NewReader(cal), "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Layers != 1 || res.Events != 2 || res.Skipped != 1 {
		t.Fatalf("result: %+v", res)
	}
	for _, q := range []string{"Hostile", "Offsite"} {
		found := env.Engine.Search(q)
		if len(found) != 1 || found[0].Color != editor.DefaultColor {
			t.Fatalf("%s: expected default color, got %+v", q, found)
		}
	}
	if svg := env.Engine.RenderSVG(); strings.Contains(svg, "<script>") {
		t.Fatalf("svg carries imported markup")
	}

	id := env.Engine.Search("Offsite")[0].ID
	title := "Offsite, day one"
	ev, err := env.Engine.UpdateEvent(env.Ctx, id, engine.EventUpdate{Title: &title}, "")
	if err != nil {
		t.Fatalf("title-only update of imported event: %v", err)
	}
	if ev.Title != title {
		t.Fatalf("update: %+v", ev)
	}
}

func TestViewAndRender(t *testing.T) {
	env := newTestEnv(t)
	v := env.Engine.View()
	if len(v.Rows) != 3 || len(v.Palette) != 6 || v.CanvasWidthPercent != 200 {
		t.Fatalf("view: %+v", v)
	}
	if len(v.Rows[0].Events) != 2 {
		t.Fatalf("dev row: %+v", v.Rows[0])
	}
	if v.TodayPercent == nil || math.Abs(*v.TodayPercent-60.0/365*100) > 1e-9 {
		t.Fatalf("today marker: %v", v.TodayPercent)
	}
	svg := env.Engine.RenderSVG()
	if !strings.HasPrefix(svg, "<?xml") || !strings.Contains(svg, "Beta Launch") || !strings.Contains(svg, `class="today"`) {
		t.Fatalf("svg: %s", svg)
	}
}
