package db

import (
	"strings"
	"testing"
)

func TestLoadMigrations(t *testing.T) {
	migrations, err := LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	if len(migrations) != 5 {
		t.Fatalf("expected 5 embedded migrations, got %d", len(migrations))
	}

	expected := []struct {
		version int
		name    string
		table   string
	}{
		{1, "001_catalog.sql", "drug_interaction"},
		{2, "002_conflict.sql", "conflict_check"},
		{3, "003_emergency.sql", "emergency_check"},
		{4, "004_oversight.sql", "clinical_alert"},
		{5, "005_audit.sql", "decision_audit"},
	}

	for i, want := range expected {
		got := migrations[i]
		if got.Version != want.version {
			t.Errorf("migration[%d]: expected version %d, got %d", i, want.version, got.Version)
		}
		if got.Name != want.name {
			t.Errorf("migration[%d]: expected name %s, got %s", i, want.name, got.Name)
		}
		if !strings.Contains(got.SQL, "CREATE TABLE IF NOT EXISTS "+want.table) {
			t.Errorf("migration %s: expected DDL for table %s", got.Name, want.table)
		}
	}
}

func TestLoadMigrations_SortOrder(t *testing.T) {
	migrations, err := LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version <= migrations[i-1].Version {
			t.Errorf("migrations out of order: version %d follows %d",
				migrations[i].Version, migrations[i-1].Version)
		}
	}
}

func TestLoadMigrations_ConflictTablesMatchRepos(t *testing.T) {
	// The conflict repos insert into both tables created by 002; a drift
	// between migration DDL and repo SQL would only surface at runtime.
	migrations, err := LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	var conflictSQL string
	for _, m := range migrations {
		if m.Name == "002_conflict.sql" {
			conflictSQL = m.SQL
		}
	}
	if conflictSQL == "" {
		t.Fatal("002_conflict.sql not found")
	}

	for _, col := range []string{
		"subject_id", "conflict_count", "safety_score", "has_conflicts",
		"requires_clinical_review", "auto_resolution_applied", "detector_failure",
		"checks_medication", "checks_allergy", "checks_condition",
		"conflicting_data", "detected_at", "resolved",
	} {
		if !strings.Contains(conflictSQL, col) {
			t.Errorf("002_conflict.sql missing column %s", col)
		}
	}
}

func TestMigrationStatus_Pending(t *testing.T) {
	status := MigrationStatus{Version: 3, Name: "003_emergency.sql"}
	if status.Applied {
		t.Error("zero-value status should be pending")
	}
	if status.AppliedAt != nil {
		t.Error("expected nil AppliedAt for pending migration")
	}
}
