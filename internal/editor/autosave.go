package editor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrDraftNotFound = errors.New("draft not found")

// DraftStore is keyed storage for drafts.
type DraftStore interface {
	GetDraft(ctx context.Context, key string) (Draft, error)
	PutDraft(ctx context.Context, key string, d Draft) error
	DeleteDraft(ctx context.Context, key string) error
}

// MemoryDrafts keeps drafts in process memory.
type MemoryDrafts struct {
	mu     sync.Mutex
	drafts map[string]Draft
}

func NewMemoryDrafts() *MemoryDrafts {
	return &MemoryDrafts{drafts: map[string]Draft{}}
}

func (m *MemoryDrafts) GetDraft(_ context.Context, key string) (Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[key]
	if !ok {
		return Draft{}, ErrDraftNotFound
	}
	return d, nil
}

func (m *MemoryDrafts) PutDraft(_ context.Context, key string, d Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[key] = d
	return nil
}

func (m *MemoryDrafts) DeleteDraft(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, key)
	return nil
}

const DefaultAutosaveDelay = time.Second

const writeTimeout = 5 * time.Second

type pendingDraft struct {
	timer   *time.Timer
	gen     uint64
	current Draft
	initial Draft
}

// Autosaver writes drafts after a quiet period. Every Schedule for a key
// restarts that key's delay. A draft equal to its initial values is never
// written.
type Autosaver struct {
	store DraftStore
	delay time.Duration
	log   *zap.Logger

	mu      sync.Mutex
	gen     uint64
	pending map[string]*pendingDraft
	closed  bool
}

func NewAutosaver(store DraftStore, delay time.Duration, log *zap.Logger) *Autosaver {
	if delay <= 0 {
		delay = DefaultAutosaveDelay
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Autosaver{store: store, delay: delay, log: log, pending: map[string]*pendingDraft{}}
}

// Schedule records the latest form values for key. It never blocks on the
// write.
func (a *Autosaver) Schedule(key string, current, initial Draft) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if p, ok := a.pending[key]; ok {
		p.timer.Stop()
	}
	a.gen++
	gen := a.gen
	p := &pendingDraft{gen: gen, current: current, initial: initial}
	p.timer = time.AfterFunc(a.delay, func() { a.fire(key, gen) })
	a.pending[key] = p
}

func (a *Autosaver) fire(key string, gen uint64) {
	a.mu.Lock()
	p, ok := a.pending[key]
	if !ok || p.gen != gen {
		a.mu.Unlock()
		return
	}
	delete(a.pending, key)
	a.mu.Unlock()
	if err := a.write(key, p); err != nil {
		a.log.Warn("autosave failed", zap.String("key", key), zap.Error(err))
	}
}

func (a *Autosaver) write(key string, p *pendingDraft) error {
	if p.current == p.initial {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return a.store.PutDraft(ctx, key, p.current)
}

// Flush writes the pending draft for key now, if any.
func (a *Autosaver) Flush(key string) error {
	a.mu.Lock()
	p, ok := a.pending[key]
	if ok {
		p.timer.Stop()
		delete(a.pending, key)
	}
	a.mu.Unlock()
	if !ok {
		return nil
	}
	return a.write(key, p)
}

// Cancel forgets the pending draft for key without writing it.
func (a *Autosaver) Cancel(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.pending[key]; ok {
		p.timer.Stop()
		delete(a.pending, key)
	}
}

func (a *Autosaver) Pending(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.pending[key]
	return ok
}

// Close flushes everything pending and stops accepting new drafts.
func (a *Autosaver) Close() error {
	a.mu.Lock()
	a.closed = true
	keys := make([]string, 0, len(a.pending))
	for k := range a.pending {
		keys = append(keys, k)
	}
	a.mu.Unlock()
	var errs []error
	for _, k := range keys {
		if err := a.Flush(k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
