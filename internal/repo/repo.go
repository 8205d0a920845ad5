package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chronos/internal/domain"
	"chronos/internal/timeline"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// LoadSnapshot reads the persisted timeline. It returns ErrNotFound when the
// workspace has never been saved.
func (r Repo) LoadSnapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	var vs, ve string
	err := r.DB.QueryRowContext(ctx, `SELECT zoom,viewport_start,viewport_end FROM settings WHERE id=1`).Scan(&snap.Zoom, &vs, &ve)
	if err == sql.ErrNoRows {
		return snap, ErrNotFound
	}
	if err != nil {
		return snap, err
	}
	if snap.Viewport.Start, err = timeline.ParseDate(vs); err != nil {
		return snap, fmt.Errorf("viewport start: %w", err)
	}
	if snap.Viewport.End, err = timeline.ParseDate(ve); err != nil {
		return snap, fmt.Errorf("viewport end: %w", err)
	}
	if snap.Layers, err = r.listLayers(ctx); err != nil {
		return snap, err
	}
	if snap.Events, err = r.listEvents(ctx); err != nil {
		return snap, err
	}
	return snap, nil
}

func (r Repo) listLayers(ctx context.Context) ([]domain.Layer, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(color,'') FROM layers ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Layer{}
	for rows.Next() {
		var l domain.Layer
		if err := rows.Scan(&l.ID, &l.Name, &l.Color); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) listEvents(ctx context.Context) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,title,start_date,end_date,layer_id,color,COALESCE(description,'') FROM timeline_events ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		var start string
		var end sql.NullString
		if err := rows.Scan(&e.ID, &e.Title, &start, &end, &e.LayerID, &e.Color, &e.Description); err != nil {
			return nil, err
		}
		if e.StartDate, err = timeline.ParseDate(start); err != nil {
			return nil, fmt.Errorf("event %s start: %w", e.ID, err)
		}
		if end.Valid {
			d, err := timeline.ParseDate(end.String)
			if err != nil {
				return nil, fmt.Errorf("event %s end: %w", e.ID, err)
			}
			e.EndDate = &d
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// SaveSnapshotTx replaces the persisted timeline with snap.
func (r Repo) SaveSnapshotTx(ctx context.Context, tx *sql.Tx, snap domain.Snapshot) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM timeline_events`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM layers`); err != nil {
		return err
	}
	for i, l := range snap.Layers {
		if _, err := tx.ExecContext(ctx, `INSERT INTO layers(id,name,color,position) VALUES (?,?,?,?)`,
			l.ID, l.Name, nullable(l.Color), i); err != nil {
			return fmt.Errorf("layer %s: %w", l.ID, err)
		}
	}
	for i, e := range snap.Events {
		if _, err := tx.ExecContext(ctx, `INSERT INTO timeline_events(id,title,start_date,end_date,layer_id,color,description,position) VALUES (?,?,?,?,?,?,?,?)`,
			e.ID, e.Title, timeline.FormatDate(e.StartDate), nullableDate(e.EndDate), e.LayerID, e.Color, nullable(e.Description), i); err != nil {
			return fmt.Errorf("event %s: %w", e.ID, err)
		}
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO settings(id,zoom,viewport_start,viewport_end,updated_at) VALUES (1,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET zoom=excluded.zoom, viewport_start=excluded.viewport_start, viewport_end=excluded.viewport_end, updated_at=excluded.updated_at`,
		snap.Zoom, timeline.FormatDate(snap.Viewport.Start), timeline.FormatDate(snap.Viewport.End), r.now().UTC().Format(time.RFC3339))
	return err
}

// SaveSnapshot runs SaveSnapshotTx in its own transaction.
func (r Repo) SaveSnapshot(ctx context.Context, snap domain.Snapshot) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.SaveSnapshotTx(ctx, tx, snap); err != nil {
		return err
	}
	return tx.Commit()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeline.FormatDate(*t)
}
