package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"chronos/internal/editor"
)

type DraftInfo struct {
	Key       string `json:"key"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

func (r Repo) GetDraft(ctx context.Context, key string) (editor.Draft, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT payload_json FROM drafts WHERE key=?`, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return editor.Draft{}, editor.ErrDraftNotFound
	}
	if err != nil {
		return editor.Draft{}, err
	}
	var d editor.Draft
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return editor.Draft{}, err
	}
	return d, nil
}

func (r Repo) PutDraft(ctx context.Context, key string, d editor.Draft) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO drafts(key,payload_json,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET payload_json=excluded.payload_json, updated_at=excluded.updated_at`,
		key, string(payload), r.now().UTC().Format(time.RFC3339))
	return err
}

// DeleteDraft removes the draft; a missing key is not an error.
func (r Repo) DeleteDraft(ctx context.Context, key string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM drafts WHERE key=?`, key)
	return err
}

func (r Repo) ListDrafts(ctx context.Context) ([]DraftInfo, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT key,updated_at FROM drafts ORDER BY updated_at DESC, key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []DraftInfo
	for rows.Next() {
		var d DraftInfo
		if err := rows.Scan(&d.Key, &d.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// PurgeDrafts deletes drafts last written before cutoff and returns how many
// were removed.
func (r Repo) PurgeDrafts(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM drafts WHERE updated_at < ?`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
