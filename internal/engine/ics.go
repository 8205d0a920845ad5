package engine

import (
	"context"
	"io"
	"strings"

	"chronos/internal/activity"
	"chronos/internal/domain"
	"chronos/internal/editor"
	"chronos/internal/ics"
)

// ImportResult counts what an import added.
type ImportResult struct {
	Layers  int `json:"layers_created"`
	Events  int `json:"events_created"`
	Skipped int `json:"events_skipped"`
}

const importLayerName = "Imported"

// ExportICS writes every event as an all-day VEVENT.
func (e Engine) ExportICS() string {
	snap := e.Store.Snapshot()
	return ics.Export(snap.Events, snap.Layers, e.now())
}

// ImportICS adds the calendar's events. Layers are matched by name, case
// insensitively, and created when missing; events without a category land
// in an "Imported" layer. Events without a readable start, without a title
// or ending before they start are skipped. Colors other than #rrggbb fall
// back to the default color. The import is saved as one change.
func (e Engine) ImportICS(ctx context.Context, r io.Reader, actorID string) (ImportResult, error) {
	items, unreadable, err := ics.Parse(r)
	if err != nil {
		return ImportResult{}, err
	}
	var res ImportResult
	err = e.commit(ctx, actorID, func() (change, bool, error) {
		res = ImportResult{Skipped: unreadable}
		byName := map[string]string{}
		for _, l := range e.Store.Layers() {
			key := strings.ToLower(l.Name)
			if _, ok := byName[key]; !ok {
				byName[key] = l.ID
			}
		}
		layerFor := func(name string) string {
			if name == "" {
				name = importLayerName
			}
			key := strings.ToLower(name)
			if id, ok := byName[key]; ok {
				return id
			}
			l := e.Store.AddLayer(name)
			byName[key] = l.ID
			res.Layers++
			return l.ID
		}
		color := e.Config.Editor.DefaultColor
		if color == "" {
			color = editor.DefaultColor
		}
		for _, it := range items {
			if strings.TrimSpace(it.Title) == "" || (it.End != nil && it.End.Before(it.Start)) {
				res.Skipped++
				continue
			}
			f := domain.EventFields{
				Title:       strings.TrimSpace(it.Title),
				StartDate:   it.Start,
				EndDate:     it.End,
				LayerID:     layerFor(it.Layer),
				Color:       strings.TrimSpace(it.Color),
				Description: it.Description,
			}
			if !editor.ValidColor(f.Color) {
				f.Color = color
			}
			e.Store.AddEvent(f)
			res.Events++
		}
		if res.Events == 0 && res.Layers == 0 {
			return change{}, false, nil
		}
		return change{Type: activity.TimelineImport, Kind: "timeline", Payload: activity.Payload{
			"layers_created": res.Layers,
			"events_created": res.Events,
			"events_skipped": res.Skipped,
		}}, true, nil
	})
	return res, err
}
