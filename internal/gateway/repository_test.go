package gateway

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the gateways table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE gateways (
			id TEXT PRIMARY KEY,
			floor_id TEXT,
			name TEXT NOT NULL,
			mac_address TEXT,
			ip_address TEXT,
			status TEXT NOT NULL DEFAULT 'offline',
			last_seen TEXT,
			created_at TEXT NOT NULL,
			cloud_data TEXT,
			updated_at TEXT NOT NULL
		) STRICT;
		CREATE INDEX idx_gateways_floor_id ON gateways(floor_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestRepositorySaveAndGet(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	seen := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	gw := &Gateway{
		ID:         "gw1",
		FloorID:    "floor-2",
		Name:       "GwF9E516B8_197",
		MACAddress: "GW:F9E516B8",
		Status:     StatusOnline,
		LastSeen:   &seen,
		CreatedAt:  time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Cloud: &CloudData{
			GatewayID: 197,
			PubTopics: CloudPubTopics{Health: "site/h", Location: "site/l"},
		},
	}

	if err := repo.Save(ctx, gw); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := repo.Get(ctx, "gw1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != gw.Name || got.MACAddress != gw.MACAddress {
		t.Errorf("Get() = %+v, want identity fields preserved", got)
	}
	if got.LastSeen == nil || !got.LastSeen.Equal(seen) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, seen)
	}
	if got.Cloud == nil || got.Cloud.PubTopics.Health != "site/h" {
		t.Errorf("Cloud = %+v, want persisted cloud data", got.Cloud)
	}
}

func TestRepositorySaveUpserts(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	gw := &Gateway{ID: "gw1", Name: "old", Status: StatusOffline, CreatedAt: time.Now()}
	if err := repo.Save(ctx, gw); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	gw.Name = "new"
	gw.Status = StatusOnline
	if err := repo.Save(ctx, gw); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	got, err := repo.Get(ctx, "gw1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "new" || got.Status != StatusOnline {
		t.Errorf("Get() after upsert = %q/%q, want new/online", got.Name, got.Status)
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 1 {
		t.Errorf("List() returned %d rows after upsert, want 1", len(all))
	}
}

func TestRepositoryGetNotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestRepositoryDelete(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	gw := &Gateway{ID: "gw1", Name: "n", Status: StatusOnline, CreatedAt: time.Now()}
	if err := repo.Save(ctx, gw); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := repo.Delete(ctx, "gw1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, "gw1"); err != nil {
		t.Errorf("Delete() of missing row error = %v, want nil", err)
	}

	if _, err := repo.Get(ctx, "gw1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestRepositoryList(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	for _, id := range []string{"b", "a", "c"} {
		gw := &Gateway{ID: id, Name: "gw-" + id, Status: StatusOnline, CreatedAt: time.Now()}
		if err := repo.Save(ctx, gw); err != nil {
			t.Fatalf("Save(%s) error = %v", id, err)
		}
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List() returned %d rows, want 3", len(all))
	}
	if all[0].ID != "a" || all[1].ID != "b" || all[2].ID != "c" {
		t.Errorf("List() order = %s/%s/%s, want a/b/c", all[0].ID, all[1].ID, all[2].ID)
	}
}
