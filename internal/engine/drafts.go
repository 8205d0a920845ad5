package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"chronos/internal/editor"
	"chronos/internal/repo"
)

// draftBase is what the form shows before any edit: the event's values, or
// a blank new-event form.
func (e Engine) draftBase(eventID string) (editor.Draft, error) {
	if eventID == "" {
		return editor.NewDraft(e.now(), e.Store.Layers(), e.Config.Editor.DefaultColor), nil
	}
	ev, ok := e.Store.Event(eventID)
	if !ok {
		return editor.Draft{}, fmt.Errorf("event %s: %w", eventID, repo.ErrNotFound)
	}
	return editor.DraftFromEvent(ev), nil
}

// GetDraft returns the saved draft for eventID ("" for the new-event form)
// with blanks filled from the current values. found is false when no draft
// exists; the base values are returned then.
func (e Engine) GetDraft(ctx context.Context, eventID string) (d editor.Draft, found bool, err error) {
	base, err := e.draftBase(eventID)
	if err != nil {
		return editor.Draft{}, false, err
	}
	key := editor.DraftKey(eventID)
	if err := e.Autosave.Flush(key); err != nil {
		return editor.Draft{}, false, fmt.Errorf("flush draft: %w", err)
	}
	saved, err := e.Drafts.GetDraft(ctx, key)
	if errors.Is(err, editor.ErrDraftNotFound) {
		return base, false, nil
	}
	if err != nil {
		return editor.Draft{}, false, err
	}
	return saved.FillBlanks(base), true, nil
}

// SaveDraft schedules d to be written after the autosave delay. A draft
// equal to the current values is not written.
func (e Engine) SaveDraft(eventID string, d editor.Draft) error {
	base, err := e.draftBase(eventID)
	if err != nil {
		return err
	}
	e.Autosave.Schedule(editor.DraftKey(eventID), d, base)
	return nil
}

// DiscardDraft drops the pending and the saved draft.
func (e Engine) DiscardDraft(ctx context.Context, eventID string) error {
	key := editor.DraftKey(eventID)
	e.Autosave.Cancel(key)
	return e.Drafts.DeleteDraft(ctx, key)
}

func (e Engine) discardQuietly(ctx context.Context, eventID string) {
	if err := e.DiscardDraft(ctx, eventID); err != nil {
		e.Log.Warn("discard draft", zap.String("key", editor.DraftKey(eventID)), zap.Error(err))
	}
}
