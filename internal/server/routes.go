package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"chronos/internal/domain"
	"chronos/internal/editor"
	"chronos/internal/engine"
	"chronos/internal/repo"
	"chronos/internal/timeline"
)

type bodyOutput[T any] struct {
	Body T `json:"body"`
}

func respond[T any](v T) *bodyOutput[T] { return &bodyOutput[T]{Body: v} }

type rawOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

func registerTimeline(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-timeline",
		Method:      http.MethodGet,
		Path:        "/timeline",
		Summary:     "Positioned layers, events and ticks",
	}, func(ctx context.Context, _ *struct{}) (*bodyOutput[TimelineResponse], error) {
		return respond(timelineResponse(e.View())), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-ticks",
		Method:      http.MethodGet,
		Path:        "/ticks",
		Summary:     "Axis ticks for the viewport at the current zoom",
	}, func(ctx context.Context, _ *struct{}) (*bodyOutput[[]TickResponse], error) {
		return respond(mapTicks(e.Ticks())), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-zoom",
		Method:      http.MethodPut,
		Path:        "/zoom",
		Summary:     "Set zoom level (clamped to 1..5)",
	}, func(ctx context.Context, input *struct {
		Body ZoomRequest
	}) (*bodyOutput[ZoomResponse], error) {
		level, err := e.SetZoom(ctx, input.Body.Level, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(zoomResponse(level)), nil
	})

	for _, step := range []struct {
		id, path string
		fn       func(context.Context, string) (int, error)
	}{
		{"zoom-in", "/zoom/in", e.ZoomIn},
		{"zoom-out", "/zoom/out", e.ZoomOut},
	} {
		fn := step.fn
		huma.Register(api, huma.Operation{
			OperationID: step.id,
			Method:      http.MethodPost,
			Path:        step.path,
			Summary:     "Step zoom by one level",
		}, func(ctx context.Context, _ *struct{}) (*bodyOutput[ZoomResponse], error) {
			level, err := fn(ctx, actorID(ctx))
			if err != nil {
				return nil, handleError(err)
			}
			return respond(zoomResponse(level)), nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "set-viewport",
		Method:      http.MethodPut,
		Path:        "/viewport",
		Summary:     "Set the visible date range",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body ViewportRequest
	}) (*bodyOutput[ViewportResponse], error) {
		start, err := timeline.ParseDate(input.Body.Start)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "start"})
		}
		end, err := timeline.ParseDate(input.Body.End)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "end"})
		}
		vp, err := e.SetViewport(ctx, domain.Viewport{Start: start, End: end}, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(viewportResponse(vp)), nil
	})
}

func registerLayers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-layers",
		Method:      http.MethodGet,
		Path:        "/layers",
		Summary:     "List layers in display order",
	}, func(ctx context.Context, _ *struct{}) (*bodyOutput[[]LayerResponse], error) {
		layers := e.Layers()
		out := make([]LayerResponse, 0, len(layers))
		for _, l := range layers {
			out = append(out, LayerResponse{ID: l.ID, Name: l.Name, Color: l.Color, EventCount: len(e.Events(l.ID))})
		}
		return respond(out), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-layer",
		Method:        http.MethodPost,
		Path:          "/layers",
		Summary:       "Create layer",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateLayerRequest
	}) (*bodyOutput[LayerResponse], error) {
		l, err := e.CreateLayer(ctx, input.Body.Name, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(LayerResponse{ID: l.ID, Name: l.Name, Color: l.Color}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rename-layer",
		Method:      http.MethodPatch,
		Path:        "/layers/{layer_id}",
		Summary:     "Rename layer",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		LayerID string `path:"layer_id"`
		Body    RenameLayerRequest
	}) (*bodyOutput[LayerResponse], error) {
		l, err := e.RenameLayer(ctx, input.LayerID, input.Body.Name, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(LayerResponse{ID: l.ID, Name: l.Name, Color: l.Color, EventCount: len(e.Events(l.ID))}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-layer",
		Method:      http.MethodDelete,
		Path:        "/layers/{layer_id}",
		Summary:     "Delete layer and all of its events",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		LayerID string `path:"layer_id"`
	}) (*bodyOutput[DeleteLayerResponse], error) {
		n, err := e.DeleteLayer(ctx, input.LayerID, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(DeleteLayerResponse{ID: input.LayerID, EventsRemoved: n}), nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events, optionally by layer or search text",
	}, func(ctx context.Context, input *struct {
		LayerID string `query:"layer_id"`
		Query   string `query:"q"`
	}) (*bodyOutput[[]EventResponse], error) {
		var items []domain.Event
		if input.Query != "" {
			for _, ev := range e.Search(input.Query) {
				if input.LayerID == "" || ev.LayerID == input.LayerID {
					items = append(items, ev)
				}
			}
		} else {
			items = e.Events(input.LayerID)
		}
		return respond(mapEvents(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-event",
		Method:        http.MethodPost,
		Path:          "/events",
		Summary:       "Create event",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateEventRequest
	}) (*bodyOutput[EventResponse], error) {
		ev, err := e.CreateEvent(ctx, input.Body.draft(), actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(eventResponse(ev)), nil
	})

	type eventPath struct {
		EventID string `path:"event_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-event",
		Method:      http.MethodGet,
		Path:        "/events/{event_id}",
		Summary:     "Get event",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *eventPath) (*bodyOutput[EventResponse], error) {
		ev, err := e.Event(input.EventID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(eventResponse(ev)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-event",
		Method:      http.MethodPatch,
		Path:        "/events/{event_id}",
		Summary:     "Update event fields",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id"`
		Body    UpdateEventRequest
	}) (*bodyOutput[EventResponse], error) {
		ev, err := e.UpdateEvent(ctx, input.EventID, input.Body.update(), actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(eventResponse(ev)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-event",
		Method:        http.MethodDelete,
		Path:          "/events/{event_id}",
		Summary:       "Delete event",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *eventPath) (*struct{}, error) {
		if err := e.DeleteEvent(ctx, input.EventID, actorID(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-event",
		Method:      http.MethodPost,
		Path:        "/events/{event_id}/move",
		Summary:     "Drop an event at a canvas position",
		Description: "Runs a whole drag gesture. The new start date comes from drop_x minus click_offset_x as a share of canvas_width; the duration is kept.",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id"`
		Body    MoveEventRequest
	}) (*bodyOutput[MoveEventResponse], error) {
		ev, moved, err := e.MoveEvent(ctx, engine.MoveOptions{
			EventID:      input.EventID,
			LayerID:      input.Body.LayerID,
			DropX:        input.Body.DropX,
			ClickOffsetX: input.Body.ClickOffsetX,
			CanvasWidth:  input.Body.CanvasWidth,
			ActorID:      actorID(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := MoveEventResponse{Moved: moved}
		if moved {
			r := eventResponse(ev)
			resp.Event = &r
		}
		return respond(resp), nil
	})
}

func registerDrag(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-drag",
		Method:      http.MethodGet,
		Path:        "/drag",
		Summary:     "Current drag gesture",
	}, func(ctx context.Context, _ *struct{}) (*bodyOutput[engine.DragStatus], error) {
		return respond(e.DragState()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-drag",
		Method:      http.MethodPost,
		Path:        "/drag",
		Summary:     "Pick up an event",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body StartDragRequest
	}) (*bodyOutput[engine.DragStatus], error) {
		st, err := e.StartDrag(input.Body.EventID, input.Body.ClickOffsetX)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(st), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "hover-drag",
		Method:      http.MethodPost,
		Path:        "/drag/hover",
		Summary:     "Move the pointer over a row",
		Errors:      []int{http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body HoverDragRequest
	}) (*bodyOutput[HoverResponse], error) {
		pv, visible, err := e.HoverDrag(input.Body.LayerID, input.Body.PointerX, input.Body.CanvasWidth)
		if err != nil {
			return nil, handleError(err)
		}
		resp := HoverResponse{Visible: visible}
		if visible {
			resp.Preview = &pv
		}
		return respond(resp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "leave-drag",
		Method:      http.MethodPost,
		Path:        "/drag/leave",
		Summary:     "Pointer left the hovered row",
		Errors:      []int{http.StatusConflict},
	}, func(ctx context.Context, _ *struct{}) (*bodyOutput[engine.DragStatus], error) {
		if err := e.LeaveDrag(); err != nil {
			return nil, handleError(err)
		}
		return respond(e.DragState()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "drop-drag",
		Method:      http.MethodPost,
		Path:        "/drag/drop",
		Summary:     "Release the dragged event",
		Errors:      []int{http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body DropDragRequest
	}) (*bodyOutput[MoveEventResponse], error) {
		ev, moved, err := e.DropDrag(ctx, input.Body.LayerID, input.Body.DropX, input.Body.CanvasWidth, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		resp := MoveEventResponse{Moved: moved}
		if moved {
			r := eventResponse(ev)
			resp.Event = &r
		}
		return respond(resp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "cancel-drag",
		Method:        http.MethodDelete,
		Path:          "/drag",
		Summary:       "Abandon the drag gesture",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		e.CancelDrag()
		return &struct{}{}, nil
	})
}

// draftEventID maps the draft path segment to an event id; "new" is the
// new-event form.
func draftEventID(id string) string {
	if id == "new" {
		return ""
	}
	return id
}

func registerDrafts(api huma.API, e engine.Engine) {
	type draftPath struct {
		DraftID string `path:"draft_id" doc:"event id, or new for the new-event form"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-draft",
		Method:      http.MethodGet,
		Path:        "/drafts/{draft_id}",
		Summary:     "Saved form values",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *draftPath) (*bodyOutput[DraftResponse], error) {
		id := draftEventID(input.DraftID)
		d, found, err := e.GetDraft(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(draftResponse(editor.DraftKey(id), found, d)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "save-draft",
		Method:        http.MethodPut,
		Path:          "/drafts/{draft_id}",
		Summary:       "Autosave form values",
		Description:   "The draft is written after the autosave delay; later saves for the same draft restart it.",
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DraftID string `path:"draft_id"`
		Body    DraftRequest
	}) (*struct{}, error) {
		if err := e.SaveDraft(draftEventID(input.DraftID), input.Body.draft()); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "discard-draft",
		Method:        http.MethodDelete,
		Path:          "/drafts/{draft_id}",
		Summary:       "Discard saved form values",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *draftPath) (*struct{}, error) {
		if err := e.DiscardDraft(ctx, draftEventID(input.DraftID)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerExchange(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "export-ics",
		Method:      http.MethodGet,
		Path:        "/export.ics",
		Summary:     "Export events as iCalendar",
	}, func(ctx context.Context, _ *struct{}) (*rawOutput, error) {
		return &rawOutput{ContentType: "text/calendar; charset=utf-8", Body: []byte(e.ExportICS())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-ics",
		Method:      http.MethodPost,
		Path:        "/import",
		Summary:     "Import events from an iCalendar body",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, _ *struct{}) (*bodyOutput[engine.ImportResult], error) {
		raw := bodyBytes(ctx)
		if len(raw) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "calendar body required", nil)
		}
		res, err := e.ImportICS(ctx, bytes.NewReader(raw), actorID(ctx))
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		return respond(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "render-svg",
		Method:      http.MethodGet,
		Path:        "/render.svg",
		Summary:     "Render the timeline as SVG",
	}, func(ctx context.Context, _ *struct{}) (*rawOutput, error) {
		return &rawOutput{ContentType: "image/svg+xml", Body: []byte(e.RenderSVG())}, nil
	})
}

func registerActivity(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-activity",
		Method:      http.MethodGet,
		Path:        "/activity",
		Summary:     "Recent changes, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"event,layer,timeline"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*bodyOutput[paginatedActivity], error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Activity(ctx, repo.ActivityFilters{
			Limit: limit + 1, Cursor: cursorID, Type: input.Type, EntityKind: input.EntityKind, EntityID: input.EntityID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedActivity{Items: items}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			resp.Items = items[:limit]
		}
		return respond(resp), nil
	})
}
