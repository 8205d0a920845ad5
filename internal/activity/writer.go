package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Activity types.
const (
	EventCreated   = "event.created"
	EventUpdated   = "event.updated"
	EventMoved     = "event.moved"
	EventDeleted   = "event.deleted"
	LayerCreated   = "layer.created"
	LayerRenamed   = "layer.renamed"
	LayerDeleted   = "layer.deleted"
	ZoomChanged    = "zoom.changed"
	ViewportSet    = "viewport.changed"
	TimelineImport = "timeline.imported"
)

type Writer struct {
	Now func() time.Time
}

type Payload map[string]any

// Append records one activity row inside tx and returns its id.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, actType, entityKind, entityID, actorID string, payload Payload) (int64, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal activity payload: %w", err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO activity(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, actType, entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
