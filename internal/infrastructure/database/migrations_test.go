package database

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/nerrad567/gray-logic-sonos/migrations"
)

var testMigrations = fstest.MapFS{
	"20260101_000000_widgets.up.sql":   {Data: []byte("CREATE TABLE widgets (id TEXT PRIMARY KEY) STRICT;")},
	"20260101_000000_widgets.down.sql": {Data: []byte("DROP TABLE widgets;")},
	"20260102_000000_gadgets.up.sql":   {Data: []byte("CREATE TABLE gadgets (id TEXT PRIMARY KEY) STRICT;")},
	"README.md":                        {Data: []byte("ignored")},
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// Second run is a no-op.
	if err := db.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	if !tableExists(t, db, "widgets") || !tableExists(t, db, "gadgets") {
		t.Fatal("migrated tables missing")
	}

	applied, err := db.AppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("AppliedMigrations() error = %v", err)
	}
	if len(applied) != 2 || applied[0].Version != "20260101_000000" || applied[1].Version != "20260102_000000" {
		t.Errorf("applied = %+v", applied)
	}
	if applied[0].AppliedAt.IsZero() {
		t.Error("AppliedAt not recorded")
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := db.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// Latest migration has no down file.
	if err := db.MigrateDown(ctx, testMigrations); err == nil {
		t.Fatal("MigrateDown() error = nil for migration without down SQL")
	}

	onlyFirst := fstest.MapFS{
		"20260101_000000_widgets.up.sql":   testMigrations["20260101_000000_widgets.up.sql"],
		"20260101_000000_widgets.down.sql": testMigrations["20260101_000000_widgets.down.sql"],
	}
	db2 := openTestDB(t)
	if err := db2.Migrate(ctx, onlyFirst); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db2.MigrateDown(ctx, onlyFirst); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db2, "widgets") {
		t.Error("widgets still exists after MigrateDown")
	}
	applied, _ := db2.AppliedMigrations(ctx)
	if len(applied) != 0 {
		t.Errorf("applied after rollback = %+v", applied)
	}
}

func TestMigrateFailureStops(t *testing.T) {
	db := openTestDB(t)
	bad := fstest.MapFS{
		"20260101_000000_ok.up.sql":     {Data: []byte("CREATE TABLE ok (id TEXT) STRICT;")},
		"20260102_000000_broken.up.sql": {Data: []byte("CREATE TABL nope;")},
		"20260103_000000_later.up.sql":  {Data: []byte("CREATE TABLE later (id TEXT) STRICT;")},
	}
	if err := db.Migrate(context.Background(), bad); err == nil {
		t.Fatal("Migrate() error = nil for broken SQL")
	}
	if !tableExists(t, db, "ok") {
		t.Error("earlier migration rolled back")
	}
	if tableExists(t, db, "later") {
		t.Error("later migration applied after failure")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		file        string
		wantVersion string
		wantName    string
		wantUp      bool
		wantOK      bool
	}{
		{"20261016_120000_saved_speakers.up.sql", "20261016_120000", "saved_speakers", true, true},
		{"20261016_120000_saved_speakers.down.sql", "20261016_120000", "saved_speakers", false, true},
		{"20261016_120000.up.sql", "20261016_120000", "", true, true},
		{"20261016.up.sql", "", "", false, false},
		{"notes.sql", "", "", false, false},
		{"embed.go", "", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			v, n, up, ok := parseMigrationFilename(tt.file)
			if v != tt.wantVersion || n != tt.wantName || up != tt.wantUp || ok != tt.wantOK {
				t.Errorf("got (%q, %q, %v, %v)", v, n, up, ok)
			}
		})
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate(migrations.FS) error = %v", err)
	}
	if !tableExists(t, db, "saved_speakers") {
		t.Error("saved_speakers table missing")
	}
}
