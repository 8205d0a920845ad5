package drafts

import (
	"context"
	"fmt"
	"time"

	"chronos/internal/config"
	"chronos/internal/editor"
)

// Store is a draft store that can also drop stale drafts.
type Store interface {
	editor.DraftStore
	PurgeDrafts(ctx context.Context, cutoff time.Time) (int64, error)
}

// Memory adds a no-op purge to editor.MemoryDrafts.
type Memory struct {
	*editor.MemoryDrafts
}

func NewMemory() Memory { return Memory{MemoryDrafts: editor.NewMemoryDrafts()} }

func (Memory) PurgeDrafts(context.Context, time.Time) (int64, error) { return 0, nil }

// Open returns the backend named in cfg. sqlite is the default and uses db.
// The returned close func releases backend connections.
func Open(ctx context.Context, cfg *config.Config, db Store) (Store, func() error, error) {
	nop := func() error { return nil }
	backend := ""
	if cfg != nil {
		backend = cfg.Drafts.Backend
	}
	switch backend {
	case "", "sqlite":
		if db == nil {
			return nil, nil, fmt.Errorf("sqlite draft backend needs a database")
		}
		return db, nop, nil
	case "memory":
		return NewMemory(), nop, nil
	case "redis":
		rc := DefaultRedisConfig()
		if cfg.Drafts.Redis.Addr != "" {
			rc.Addr = cfg.Drafts.Redis.Addr
		}
		rc.Password = cfg.Drafts.Redis.Password
		rc.DB = cfg.Drafts.Redis.DB
		if cfg.Drafts.Redis.Prefix != "" {
			rc.Prefix = cfg.Drafts.Redis.Prefix
		}
		rc.TTL = cfg.DraftMaxAge()
		r, err := NewRedis(ctx, rc)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown draft backend %q", backend)
}
