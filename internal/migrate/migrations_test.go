package migrate

import (
	"context"
	"testing"

	"chronos/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()

	if v, err := Version(ctx, conn); err != nil || v != 0 {
		t.Fatalf("expected version 0 before migrating, got %d (%v)", v, err)
	}
	migrations, err := Migrations()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	latest := migrations[len(migrations)-1].Version

	for i := 0; i < 2; i++ {
		if err := MigrateContext(ctx, conn); err != nil {
			t.Fatalf("migrate run %d: %v", i+1, err)
		}
		v, err := Version(ctx, conn)
		if err != nil {
			t.Fatalf("version: %v", err)
		}
		if v != latest {
			t.Fatalf("expected version %d, got %d", latest, v)
		}
	}

	for _, table := range []string{"layers", "timeline_events", "settings", "drafts", "activity"} {
		var n int
		if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n); err != nil {
			t.Fatalf("lookup %s: %v", table, err)
		}
		if n != 1 {
			t.Fatalf("expected table %s", table)
		}
	}
}
