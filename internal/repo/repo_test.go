package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"chronos/internal/activity"
	"chronos/internal/db"
	"chronos/internal/domain"
	"chronos/internal/editor"
	"chronos/internal/migrate"
	"chronos/internal/repo"
	"chronos/internal/store"
)

type testEnv struct {
	Repo repo.Repo
	Ctx  context.Context
	Now  *time.Time
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
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	env := testEnv{Ctx: context.Background(), Now: &now}
	env.Repo = repo.Repo{DB: conn, Now: func() time.Time { return *env.Now }}
	return env
}

func TestLoadSnapshotEmptyWorkspace(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Repo.LoadSnapshot(env.Ctx); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	want := store.Demo()
	if err := env.Repo.SaveSnapshot(env.Ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := env.Repo.LoadSnapshot(env.Ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Layers) != 3 || got.Layers[0].ID != "dev" || got.Layers[2].Name != "Marketing" {
		t.Fatalf("layers: %+v", got.Layers)
	}
	if len(got.Events) != 4 {
		t.Fatalf("events: %+v", got.Events)
	}
	for i, e := range got.Events {
		w := want.Events[i]
		if e.ID != w.ID || e.Title != w.Title || !e.StartDate.Equal(w.StartDate) || e.Description != w.Description {
			t.Fatalf("event %d: got %+v want %+v", i, e, w)
		}
		if (e.EndDate == nil) != (w.EndDate == nil) {
			t.Fatalf("event %d end date presence mismatch", i)
		}
		if e.EndDate != nil && !e.EndDate.Equal(*w.EndDate) {
			t.Fatalf("event %d end: %v want %v", i, e.EndDate, w.EndDate)
		}
	}
	if got.Zoom != 2 || !got.Viewport.Start.Equal(want.Viewport.Start) || !got.Viewport.End.Equal(want.Viewport.End) {
		t.Fatalf("settings: %+v", got)
	}
}

func TestSaveSnapshotReplacesPreviousState(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Repo.SaveSnapshot(env.Ctx, store.Demo()); err != nil {
		t.Fatalf("save demo: %v", err)
	}
	next := domain.Snapshot{
		Layers:   []domain.Layer{{ID: "ops", Name: "Ops"}},
		Events:   []domain.Event{{ID: "x", Title: "Deploy", StartDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), LayerID: "ops", Color: "#ef4444"}},
		Zoom:     5,
		Viewport: store.DefaultViewport(),
	}
	if err := env.Repo.SaveSnapshot(env.Ctx, next); err != nil {
		t.Fatalf("save next: %v", err)
	}
	got, err := env.Repo.LoadSnapshot(env.Ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Layers) != 1 || len(got.Events) != 1 || got.Events[0].EndDate != nil || got.Zoom != 5 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestEventsCascadeWithLayer(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Repo.SaveSnapshot(env.Ctx, store.Demo()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := env.Repo.DB.ExecContext(env.Ctx, `DELETE FROM layers WHERE id='dev'`); err != nil {
		t.Fatalf("delete layer: %v", err)
	}
	var n int
	if err := env.Repo.DB.QueryRowContext(env.Ctx, `SELECT COUNT(*) FROM timeline_events WHERE layer_id='dev'`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected dev events to cascade, %d left", n)
	}
}

func TestDraftsCRUDAndPurge(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Repo.GetDraft(env.Ctx, "chronos_draft_new"); !errors.Is(err, editor.ErrDraftNotFound) {
		t.Fatalf("expected ErrDraftNotFound, got %v", err)
	}
	d := editor.Draft{Title: "Plan", StartDate: "2024-03-02", LayerID: "dev", Color: "#3b82f6"}
	if err := env.Repo.PutDraft(env.Ctx, "chronos_draft_new", d); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := env.Repo.GetDraft(env.Ctx, "chronos_draft_new")
	if err != nil || got != d {
		t.Fatalf("get: %+v %v", got, err)
	}

	*env.Now = env.Now.Add(48 * time.Hour)
	if err := env.Repo.PutDraft(env.Ctx, "chronos_draft_1", d); err != nil {
		t.Fatalf("put second: %v", err)
	}
	list, err := env.Repo.ListDrafts(env.Ctx)
	if err != nil || len(list) != 2 || list[0].Key != "chronos_draft_1" {
		t.Fatalf("list: %+v %v", list, err)
	}

	n, err := env.Repo.PurgeDrafts(env.Ctx, env.Now.Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("purge: n=%d err=%v", n, err)
	}
	if _, err := env.Repo.GetDraft(env.Ctx, "chronos_draft_new"); !errors.Is(err, editor.ErrDraftNotFound) {
		t.Fatalf("old draft should be purged: %v", err)
	}
	if err := env.Repo.DeleteDraft(env.Ctx, "chronos_draft_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := env.Repo.DeleteDraft(env.Ctx, "chronos_draft_1"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestActivityCursors(t *testing.T) {
	env := newTestEnv(t)
	w := activity.Writer{Now: func() time.Time { return *env.Now }}
	tx, err := env.Repo.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	for _, typ := range []string{activity.LayerCreated, activity.EventCreated, activity.EventMoved} {
		if _, err := w.Append(env.Ctx, tx, typ, "event", "e1", "tester", activity.Payload{"k": typ}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	latest, err := env.Repo.LatestActivityID(env.Ctx)
	if err != nil || latest != 3 {
		t.Fatalf("latest: %d %v", latest, err)
	}
	rows, err := env.Repo.ListActivity(env.Ctx, repo.ActivityFilters{Limit: 10})
	if err != nil || len(rows) != 3 || rows[0].Type != activity.EventMoved {
		t.Fatalf("list: %+v %v", rows, err)
	}
	rows, err = env.Repo.ListActivity(env.Ctx, repo.ActivityFilters{Limit: 10, Cursor: 3, Type: activity.LayerCreated})
	if err != nil || len(rows) != 1 || rows[0].ID != 1 {
		t.Fatalf("filtered: %+v %v", rows, err)
	}
	after, err := env.Repo.ActivityAfter(env.Ctx, 10, 1)
	if err != nil || len(after) != 2 || after[0].ID != 2 {
		t.Fatalf("after: %+v %v", after, err)
	}
	if after[1].Payload != `{"k":"event.moved"}` || after[1].TS != "2024-03-01T12:00:00Z" {
		t.Fatalf("row contents: %+v", after[1])
	}
}
