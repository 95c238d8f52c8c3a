package db

import (
	"testing"
	"testing/fstest"
	"time"
)

func TestLoadMigrations_SortOrder(t *testing.T) {
	files := fstest.MapFS{
		"010_indexes.sql":     {Data: []byte("SELECT 10;")},
		"002_appointment.sql": {Data: []byte("SELECT 2;")},
		"001_directory.sql":   {Data: []byte("SELECT 1;")},
		"005_seed.sql":        {Data: []byte("SELECT 5;")},
	}

	migrations, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 4 {
		t.Fatalf("expected 4 migrations, got %d", len(migrations))
	}

	expected := []int{1, 2, 5, 10}
	for i, v := range expected {
		if migrations[i].Version != v {
			t.Errorf("migration[%d]: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
	if migrations[0].Name != "001_directory.sql" || migrations[0].SQL != "SELECT 1;" {
		t.Errorf("unexpected first migration: %+v", migrations[0])
	}
}

func TestLoadMigrations_SkipsUnversionedFiles(t *testing.T) {
	files := fstest.MapFS{
		"001_valid.sql":        {Data: []byte("SELECT 1;")},
		"readme.sql":           {Data: []byte("-- no prefix")},
		"notes.txt":            {Data: []byte("not sql")},
		"abc_invalid.sql":      {Data: []byte("-- non-numeric")},
		"002_also_valid.sql":   {Data: []byte("SELECT 2;")},
		"nested/003_inner.sql": {Data: []byte("SELECT 3;")},
	}

	migrations, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	files := fstest.MapFS{
		"001_a.sql":  {Data: []byte("SELECT 1;")},
		"0001_b.sql": {Data: []byte("SELECT 1;")},
	}
	if _, err := NewMigrator(nil, files).LoadMigrations(); err == nil {
		t.Fatal("expected error for duplicate version")
	}
}

func TestLoadMigrations_Empty(t *testing.T) {
	migrations, err := NewMigrator(nil, fstest.MapFS{}).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected no migrations, got %d", len(migrations))
	}
}

func TestPendingAndStatus(t *testing.T) {
	migrations := []Migration{
		{Version: 1, Name: "001_directory.sql"},
		{Version: 2, Name: "002_appointment.sql"},
		{Version: 3, Name: "003_indexes.sql"},
	}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	applied := map[int]time.Time{1: at}

	pending := Pending(migrations, applied)
	if len(pending) != 2 || pending[0].Version != 2 || pending[1].Version != 3 {
		t.Fatalf("unexpected pending set: %+v", pending)
	}

	statuses := BuildStatus(migrations, applied)
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}
	if !statuses[0].Applied || statuses[0].AppliedAt == nil || !statuses[0].AppliedAt.Equal(at) {
		t.Errorf("expected 001 applied at %v, got %+v", at, statuses[0])
	}
	for _, st := range statuses[1:] {
		if st.Applied || st.AppliedAt != nil {
			t.Errorf("expected %s pending, got %+v", st.Name, st)
		}
	}
}
