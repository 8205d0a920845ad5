package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"chronos/internal/domain"
)

type ActivityFilters struct {
	Limit      int
	Cursor     int64
	Type       string
	EntityKind string
	EntityID   string
}

// ListActivity returns the newest rows first. A cursor returns rows older
// than it.
func (r Repo) ListActivity(ctx context.Context, f ActivityFilters) ([]domain.Activity, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM activity %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, f.Limit)
	return r.queryActivity(ctx, query, args...)
}

// ActivityAfter returns rows with ids greater than the cursor in ascending
// order.
func (r Repo) ActivityAfter(ctx context.Context, limit int, cursor int64) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryActivity(ctx, `SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM activity WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
}

func (r Repo) LatestActivityID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM activity`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r Repo) queryActivity(ctx context.Context, query string, args ...any) ([]domain.Activity, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		var a domain.Activity
		var entityID sql.NullString
		if err := rows.Scan(&a.ID, &a.TS, &a.Type, &a.EntityKind, &entityID, &a.ActorID, &a.Payload); err != nil {
			return nil, err
		}
		a.EntityID = entityID.String
		res = append(res, a)
	}
	return res, rows.Err()
}
