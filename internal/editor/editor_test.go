package editor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronos/internal/domain"
)

var (
	today  = time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)
	layers = []domain.Layer{{ID: "dev", Name: "Development"}, {ID: "design", Name: "Design"}}
)

func TestDraftKey(t *testing.T) {
	assert.Equal(t, "chronos_draft_new", DraftKey(""))
	assert.Equal(t, "chronos_draft_42", DraftKey("42"))
}

func TestNewDraftAndFromEvent(t *testing.T) {
	d := NewDraft(today, layers, "")
	assert.Equal(t, Draft{StartDate: "2024-03-01", LayerID: "dev", Color: DefaultColor}, d)
	assert.Equal(t, "", NewDraft(today, nil, "#ffffff").LayerID)

	end := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	ev := domain.Event{ID: "1", Title: "t", StartDate: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), EndDate: &end, LayerID: "dev", Color: "#ec4899"}
	assert.Equal(t, Draft{Title: "t", StartDate: "2024-03-02", EndDate: "2024-03-10", LayerID: "dev", Color: "#ec4899"}, DraftFromEvent(ev))
}

func TestFillBlanks(t *testing.T) {
	base := NewDraft(today, layers, "")
	got := Draft{Title: "x"}.FillBlanks(base)
	assert.Equal(t, Draft{Title: "x", StartDate: "2024-03-01", LayerID: "dev", Color: DefaultColor}, got)
}

func TestValidateAcceptsRange(t *testing.T) {
	f, err := Validator{}.Validate(Draft{Title: " Launch ", StartDate: "2024-03-01", EndDate: "2024-03-01", LayerID: "design"}, today, layers)
	require.NoError(t, err)
	assert.Equal(t, "Launch", f.Title)
	assert.Equal(t, DefaultColor, f.Color)
	require.NotNil(t, f.EndDate)
	assert.Equal(t, f.StartDate, *f.EndDate)
}

func TestValidateRules(t *testing.T) {
	ok := Draft{Title: "t", StartDate: "2024-03-05", LayerID: "dev", Color: "#10b981"}
	cases := []struct {
		name  string
		edit  func(d *Draft)
		field string
		want  error
	}{
		{"title", func(d *Draft) { d.Title = "  " }, "title", ErrTitleRequired},
		{"layer", func(d *Draft) { d.LayerID = "gone" }, "layerId", ErrUnknownLayer},
		{"color", func(d *Draft) { d.Color = "blue" }, "color", ErrInvalidColor},
		{"start syntax", func(d *Draft) { d.StartDate = "03/05/2024" }, "startDate", ErrInvalidDate},
		{"past start", func(d *Draft) { d.StartDate = "2024-02-29" }, "startDate", ErrStartInPast},
		{"end syntax", func(d *Draft) { d.EndDate = "soon" }, "endDate", ErrInvalidDate},
		{"end before start", func(d *Draft) { d.EndDate = "2024-03-04" }, "endDate", ErrEndBeforeStart},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := ok
			tc.edit(&d)
			_, err := Validator{}.Validate(d, today, layers)
			require.ErrorIs(t, err, tc.want)
			var fe *FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tc.field, fe.Field)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestValidColor(t *testing.T) {
	assert.True(t, ValidColor("#10B981"))
	assert.False(t, ValidColor("turquoise"))
	assert.False(t, ValidColor("#fff"))
	assert.False(t, ValidColor(`#000000"/>`))
}

func TestValidateMessages(t *testing.T) {
	assert.Equal(t, "The start date cannot be earlier than today.", ErrStartInPast.Error())
	assert.Equal(t, "The end date cannot be earlier than the start date.", ErrEndBeforeStart.Error())
}

func TestAllowPastStart(t *testing.T) {
	v := Validator{AllowPastStart: true}
	_, err := v.Validate(Draft{Title: "old", StartDate: "2020-01-01", LayerID: "dev"}, today, layers)
	assert.NoError(t, err)
}

// recordingDrafts counts writes on top of MemoryDrafts.
type recordingDrafts struct {
	*MemoryDrafts
	mu     sync.Mutex
	writes int
	fail   error
}

func (r *recordingDrafts) PutDraft(ctx context.Context, key string, d Draft) error {
	r.mu.Lock()
	r.writes++
	fail := r.fail
	r.mu.Unlock()
	if fail != nil {
		return fail
	}
	return r.MemoryDrafts.PutDraft(ctx, key, d)
}

func (r *recordingDrafts) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func TestAutosaverDebounces(t *testing.T) {
	store := &recordingDrafts{MemoryDrafts: NewMemoryDrafts()}
	a := NewAutosaver(store, 30*time.Millisecond, nil)
	initial := NewDraft(today, layers, "")
	key := DraftKey("")

	for _, title := range []string{"a", "ab", "abc"} {
		d := initial
		d.Title = title
		a.Schedule(key, d, initial)
	}
	assert.True(t, a.Pending(key))
	assert.Eventually(t, func() bool { return !a.Pending(key) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, store.count())

	got, err := store.GetDraft(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "abc", got.Title)
}

func TestAutosaverSkipsCleanDraft(t *testing.T) {
	store := &recordingDrafts{MemoryDrafts: NewMemoryDrafts()}
	a := NewAutosaver(store, time.Hour, nil)
	initial := NewDraft(today, layers, "")
	a.Schedule("k", initial, initial)
	require.NoError(t, a.Flush("k"))
	assert.Equal(t, 0, store.count())
	_, err := store.GetDraft(context.Background(), "k")
	assert.ErrorIs(t, err, ErrDraftNotFound)
}

func TestAutosaverFlushCancelClose(t *testing.T) {
	store := &recordingDrafts{MemoryDrafts: NewMemoryDrafts()}
	a := NewAutosaver(store, time.Hour, nil)
	initial := Draft{Title: "x"}

	a.Schedule("cancelled", Draft{Title: "y"}, initial)
	a.Cancel("cancelled")
	assert.False(t, a.Pending("cancelled"))

	a.Schedule("flushed", Draft{Title: "y"}, initial)
	require.NoError(t, a.Flush("flushed"))
	assert.False(t, a.Pending("flushed"))
	require.NoError(t, a.Flush("flushed"))

	a.Schedule("closed", Draft{Title: "z"}, initial)
	require.NoError(t, a.Close())
	a.Schedule("late", Draft{Title: "w"}, initial)
	assert.False(t, a.Pending("late"))

	assert.Equal(t, 2, store.count())
	_, err := store.GetDraft(context.Background(), "cancelled")
	assert.ErrorIs(t, err, ErrDraftNotFound)
	got, err := store.GetDraft(context.Background(), "closed")
	require.NoError(t, err)
	assert.Equal(t, "z", got.Title)
}

func TestAutosaverReportsWriteErrors(t *testing.T) {
	boom := errors.New("boom")
	store := &recordingDrafts{MemoryDrafts: NewMemoryDrafts(), fail: boom}
	a := NewAutosaver(store, time.Hour, nil)
	a.Schedule("k", Draft{Title: "y"}, Draft{})
	assert.ErrorIs(t, a.Close(), boom)
}
