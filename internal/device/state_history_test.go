package device

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupStateHistoryTestDB creates an in-memory SQLite database with the state_history table.
func setupStateHistoryTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE state_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id INTEGER NOT NULL,
			device_name TEXT NOT NULL,
			on_state INTEGER NOT NULL CHECK (on_state IN (0, 1)),
			intensity INTEGER NOT NULL CHECK (intensity BETWEEN 0 AND 255),
			source TEXT NOT NULL DEFAULT 'control',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE INDEX idx_state_history_device ON state_history(device_id, created_at DESC);
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

// insertStateHistoryRow inserts a journal row with a specific timestamp.
func insertStateHistoryRow(t *testing.T, db *sql.DB, id ID, on bool, createdAt time.Time) {
	t.Helper()

	_, err := db.Exec(
		"INSERT INTO state_history (device_id, device_name, on_state, intensity, source, created_at) VALUES (?, 'Lamp', ?, 255, 'control', ?)",
		int(id),
		boolToInt(on),
		createdAt.UTC().Format(historyTimeLayout),
	)
	if err != nil {
		t.Fatalf("failed to insert state history row: %v", err)
	}
}

// TestRecordStateChange verifies journal writes and retrieval.
func TestRecordStateChange(t *testing.T) {
	db := setupStateHistoryTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	lamp := Device{ID: 0, Name: "Lamp", State: State{On: true, Intensity: 255}}
	if err := repo.RecordStateChange(ctx, lamp, SourceControl); err != nil {
		t.Fatalf("RecordStateChange() error = %v", err)
	}
	lamp.State.On = false
	if err := repo.RecordStateChange(ctx, lamp, ""); err != nil {
		t.Fatalf("RecordStateChange() error = %v", err)
	}
	fan := Device{ID: 1, Name: "Fan", State: State{On: true, Intensity: 10}}
	if err := repo.RecordStateChange(ctx, fan, SourceHost); err != nil {
		t.Fatalf("RecordStateChange() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, 0, 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("GetHistory() len = %d, want 2", len(entries))
	}

	newest := entries[0]
	if newest.State.On || newest.State.Intensity != 255 {
		t.Errorf("newest state = %+v, want off/255", newest.State)
	}
	if newest.Source != SourceControl {
		t.Errorf("newest source = %q, want default %q", newest.Source, SourceControl)
	}
	if newest.DeviceName != "Lamp" || newest.DeviceID != 0 {
		t.Errorf("newest device = %d/%q", newest.DeviceID, newest.DeviceName)
	}
	if newest.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	fanEntries, err := repo.GetHistory(ctx, 1, 0)
	if err != nil {
		t.Fatalf("GetHistory(fan) error = %v", err)
	}
	if len(fanEntries) != 1 || fanEntries[0].Source != SourceHost {
		t.Errorf("fan history = %+v, want one host entry", fanEntries)
	}
}

// TestGetHistory_OrderAndLimit verifies newest-first ordering and limit clamping.
func TestGetHistory_OrderAndLimit(t *testing.T) {
	db := setupStateHistoryTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		insertStateHistoryRow(t, db, 0, i%2 == 0, base.Add(time.Duration(i)*500*time.Millisecond))
	}

	entries, err := repo.GetHistory(context.Background(), 0, 3)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("GetHistory() len = %d, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].CreatedAt.After(entries[i-1].CreatedAt) {
			t.Errorf("entries not newest-first at %d: %v after %v", i, entries[i].CreatedAt, entries[i-1].CreatedAt)
		}
	}
	if want := base.Add(2 * time.Second); !entries[0].CreatedAt.Equal(want) {
		t.Errorf("newest CreatedAt = %v, want %v", entries[0].CreatedAt, want)
	}
}

// TestPruneHistory verifies old rows are removed.
func TestPruneHistory(t *testing.T) {
	db := setupStateHistoryTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	insertStateHistoryRow(t, db, 0, true, time.Now().Add(-48*time.Hour))
	insertStateHistoryRow(t, db, 0, false, time.Now())

	deleted, err := repo.PruneHistory(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneHistory() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("PruneHistory() deleted = %d, want 1", deleted)
	}

	if _, err := repo.PruneHistory(ctx, 0); err == nil {
		t.Error("PruneHistory(0) should fail")
	}
}
