// Package app opens a workspace: config, database, persisted timeline,
// draft backend and engine.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"chronos/internal/config"
	"chronos/internal/db"
	"chronos/internal/domain"
	"chronos/internal/drafts"
	"chronos/internal/engine"
	"chronos/internal/jobs"
	"chronos/internal/migrate"
	"chronos/internal/repo"
	"chronos/internal/store"
)

// App is an opened workspace.
type App struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    engine.Engine
	Drafts    drafts.Store
	Log       *zap.Logger

	closeDrafts func() error
}

// Open loads the workspace config (defaults when chronos.yml is missing),
// migrates the database and restores the saved timeline. A workspace that
// was never saved starts from the demo timeline when timeline.seed_demo is
// set, otherwise empty.
func Open(ctx context.Context, workspace string, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return OpenWithConfig(ctx, workspace, cfg, log)
}

// OpenWithConfig is Open with an already loaded config.
func OpenWithConfig(ctx context.Context, workspace string, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r := repo.Repo{DB: conn}
	snap, err := LoadTimeline(ctx, r, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	ds, closeDrafts, err := drafts.Open(ctx, cfg, r)
	if err != nil {
		conn.Close()
		return nil, err
	}
	s := store.New(store.WithSnapshot(snap))
	e := engine.New(conn, cfg, s, ds, log.Named("engine"))
	return &App{
		Workspace:   workspace,
		Config:      cfg,
		DB:          conn,
		Engine:      e,
		Drafts:      ds,
		Log:         log,
		closeDrafts: closeDrafts,
	}, nil
}

// LoadTimeline returns the persisted snapshot or, for a fresh workspace, the
// initial one built from cfg. A seeded demo is saved right away so the
// workspace is no longer fresh on the next run.
func LoadTimeline(ctx context.Context, r repo.Repo, cfg *config.Config) (domain.Snapshot, error) {
	snap, err := r.LoadSnapshot(ctx)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Snapshot{}, fmt.Errorf("load timeline: %w", err)
	}
	vp, err := cfg.Viewport()
	if err != nil {
		return domain.Snapshot{}, err
	}
	zoom := cfg.Timeline.Zoom
	if zoom == 0 {
		zoom = domain.DefaultZoom
	}
	if !cfg.Timeline.SeedDemo {
		return domain.Snapshot{Zoom: zoom, Viewport: vp}, nil
	}
	snap = store.Demo()
	snap.Zoom = zoom
	snap.Viewport = vp
	if err := r.SaveSnapshot(ctx, snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("seed timeline: %w", err)
	}
	return snap, nil
}

// Janitor returns the draft purge job for this workspace. It is not started.
func (a *App) Janitor() *jobs.Janitor {
	return &jobs.Janitor{
		Purger:   a.Drafts,
		MaxAge:   a.Config.DraftMaxAge(),
		Schedule: a.Config.Drafts.PurgeSchedule,
		Log:      a.Log.Named("janitor"),
	}
}

// Close flushes pending drafts and releases the draft backend and database.
func (a *App) Close() error {
	var errs []error
	if err := a.Engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("flush drafts: %w", err))
	}
	if a.closeDrafts != nil {
		if err := a.closeDrafts(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.DB.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
