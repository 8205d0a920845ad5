// Package editor is the editing boundary in front of the store. It turns form
// values into event fields, enforces the date rules the store does not, and
// keeps unsaved form state as drafts.
package editor

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"chronos/internal/domain"
	"chronos/internal/timeline"
)

const DefaultColor = "#3b82f6"

// DefaultPalette is the set of colors offered when picking an event color.
var DefaultPalette = []string{"#3b82f6", "#ec4899", "#10b981", "#f59e0b", "#8b5cf6", "#ef4444"}

var (
	ErrTitleRequired  = errors.New("title is required")
	ErrUnknownLayer   = errors.New("layer does not exist")
	ErrInvalidDate    = errors.New("date must be YYYY-MM-DD")
	ErrInvalidColor   = errors.New("color must be #rrggbb")
	ErrStartInPast    = errors.New("The start date cannot be earlier than today.")
	ErrEndBeforeStart = errors.New("The end date cannot be earlier than the start date.")
)

// FieldError ties a validation failure to the form field that caused it.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return fmt.Sprintf("%s: %v", e.Field, e.Err) }
func (e *FieldError) Unwrap() error { return e.Err }

// Draft holds the raw form values of the event dialog. Dates are YYYY-MM-DD;
// an empty EndDate means a point event.
type Draft struct {
	Title       string `json:"title"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	LayerID     string `json:"layerId"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// DraftKey names the draft slot of an event, or of the new-event form when
// eventID is empty.
func DraftKey(eventID string) string {
	if eventID == "" {
		return "chronos_draft_new"
	}
	return "chronos_draft_" + eventID
}

func DraftFromEvent(e domain.Event) Draft {
	d := Draft{
		Title:       e.Title,
		StartDate:   timeline.FormatDate(e.StartDate),
		LayerID:     e.LayerID,
		Color:       e.Color,
		Description: e.Description,
	}
	if e.EndDate != nil {
		d.EndDate = timeline.FormatDate(*e.EndDate)
	}
	return d
}

// NewDraft is the blank form: today, first layer, default color.
func NewDraft(today time.Time, layers []domain.Layer, color string) Draft {
	if color == "" {
		color = DefaultColor
	}
	d := Draft{StartDate: timeline.FormatDate(today), Color: color}
	if len(layers) > 0 {
		d.LayerID = layers[0].ID
	}
	return d
}

// FillBlanks replaces empty date, layer and color values with those of base.
// Restored drafts may have been saved by an older form.
func (d Draft) FillBlanks(base Draft) Draft {
	if d.StartDate == "" {
		d.StartDate = base.StartDate
	}
	if d.LayerID == "" {
		d.LayerID = base.LayerID
	}
	if d.Color == "" {
		d.Color = base.Color
	}
	return d
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ValidColor reports whether c is a #rrggbb color the form accepts.
func ValidColor(c string) bool { return hexColor.MatchString(c) }

// Validator enforces the form rules.
type Validator struct {
	// AllowPastStart lets events start before today.
	AllowPastStart bool
	DefaultColor   string
}

// Validate checks d and returns the fields to store. today is truncated to a
// day.
func (v Validator) Validate(d Draft, today time.Time, layers []domain.Layer) (domain.EventFields, error) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return domain.EventFields{}, &FieldError{Field: "title", Err: ErrTitleRequired}
	}
	if !hasLayer(layers, d.LayerID) {
		return domain.EventFields{}, &FieldError{Field: "layerId", Err: ErrUnknownLayer}
	}
	color := strings.TrimSpace(d.Color)
	if color == "" {
		color = v.DefaultColor
		if color == "" {
			color = DefaultColor
		}
	}
	if !hexColor.MatchString(color) {
		return domain.EventFields{}, &FieldError{Field: "color", Err: ErrInvalidColor}
	}
	start, err := timeline.ParseDate(d.StartDate)
	if err != nil {
		return domain.EventFields{}, &FieldError{Field: "startDate", Err: ErrInvalidDate}
	}
	if !v.AllowPastStart && start.Before(timeline.Day(today)) {
		return domain.EventFields{}, &FieldError{Field: "startDate", Err: ErrStartInPast}
	}
	f := domain.EventFields{
		Title:       title,
		StartDate:   start,
		LayerID:     d.LayerID,
		Color:       color,
		Description: d.Description,
	}
	if strings.TrimSpace(d.EndDate) != "" {
		end, err := timeline.ParseDate(d.EndDate)
		if err != nil {
			return domain.EventFields{}, &FieldError{Field: "endDate", Err: ErrInvalidDate}
		}
		if end.Before(start) {
			return domain.EventFields{}, &FieldError{Field: "endDate", Err: ErrEndBeforeStart}
		}
		f.EndDate = &end
	}
	return f, nil
}

// IsValidation reports whether err came from Validate.
func IsValidation(err error) bool {
	var fe *FieldError
	return errors.As(err, &fe)
}

func hasLayer(layers []domain.Layer, id string) bool {
	for _, l := range layers {
		if l.ID == id {
			return true
		}
	}
	return false
}
