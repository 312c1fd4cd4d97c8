package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/types"
)

func newSQLiteStore(t *testing.T) *ConfigSQLiteStore {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open err=%v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s, err := NewConfigSQLiteStore(context.Background(), db)
	if err != nil {
		t.Fatalf("migrate err=%v", err)
	}
	return s
}

func TestConfigSQLiteStore_Contract(t *testing.T) {
	runConfigStoreContract(t, newSQLiteStore(t))
}

func TestConfigSQLiteStore_MigrateIsIdempotent(t *testing.T) {
	s := newSQLiteStore(t)
	if err := s.migrate(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestConfigSQLiteStore_LegacyRowsNormalizedOnRead(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	ts := formatTime(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if _, err := s.db.ExecContext(ctx, `INSERT INTO autofill_configurations (id, name, location_id, created_at, updated_at) VALUES ('cfg-1', 'n', 'loc-1', ?, ?)`, ts, ts); err != nil {
		t.Fatalf("err=%v", err)
	}
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO autofill_extraction_fields (id, configuration_id, field_name, target_key, overwrite_policy, created_at, updated_at)
VALUES ('f-1', 'cfg-1', 'Budget', 'cf_budget', 'ask', ?, ?)
`, ts, ts); err != nil {
		t.Fatalf("err=%v", err)
	}

	got, err := s.GetFieldConfig(ctx, "cfg-1", "f-1")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if got.TargetKind != types.TargetKindCustom || got.OverwritePolicy != types.OverwriteAlways || got.FieldType != "TEXT" || got.OriginalRemoteSnapshot != nil {
		t.Fatalf("got=%+v", got)
	}
}

func TestConfigSQLiteStore_TimeRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 123456789, time.FixedZone("x", 3600))
	if _, err := s.CreateConfiguration(ctx, types.Configuration{ID: "cfg-1", CreatedAt: ts, UpdatedAt: ts}); err != nil {
		t.Fatalf("err=%v", err)
	}
	got, err := s.GetConfiguration(ctx, "cfg-1")
	if err != nil || !got.CreatedAt.Equal(ts) || got.CreatedAt.Location() != time.UTC {
		t.Fatalf("got=%v err=%v", got.CreatedAt, err)
	}
}

func TestOpenSQLite_Errors(t *testing.T) {
	if _, err := OpenSQLite("  "); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenConfigStore(t *testing.T) {
	ctx := context.Background()

	for _, dsn := range []string{"", "memory://", "mem://", "inmem://"} {
		s, closeFn, err := OpenConfigStore(ctx, dsn)
		if err != nil {
			t.Fatalf("dsn=%q err=%v", dsn, err)
		}
		if _, ok := s.(*ConfigMemoryStore); !ok {
			t.Fatalf("dsn=%q store=%T", dsn, s)
		}
		closeFn()
	}

	path := filepath.Join(t.TempDir(), "autofill.db")
	s, closeFn, err := OpenConfigStore(ctx, "sqlite://"+path)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if _, ok := s.(*ConfigSQLiteStore); !ok {
		t.Fatalf("store=%T", s)
	}
	if _, err := s.CreateConfiguration(ctx, types.Configuration{ID: "cfg-1"}); err != nil {
		t.Fatalf("err=%v", err)
	}
	closeFn()

	reopened, closeAgain, err := OpenConfigStore(ctx, "sqlite://"+path)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	defer closeAgain()
	if _, err := reopened.GetConfiguration(ctx, "cfg-1"); err != nil {
		t.Fatalf("persisted err=%v", err)
	}

	mem, closeMem, err := OpenConfigStore(ctx, "sqlite://:memory:")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	defer closeMem()
	if _, ok := mem.(*ConfigSQLiteStore); !ok {
		t.Fatalf("store=%T", mem)
	}

	for _, dsn := range []string{"redis://localhost", "just-a-path"} {
		_, closeFn, err := OpenConfigStore(ctx, dsn)
		if err == nil {
			t.Fatalf("dsn=%q expected error", dsn)
		}
		closeFn()
	}
}
