package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateDirAcceptsRepositoryMigrations(t *testing.T) {
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("repository migrations invalid: %v", err)
	}
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	cases := map[string]string{
		"bad_name.sql":                    "-- +goose Up\n-- +goose Down\n",
		"20260101000000_missing_down.sql": "-- +goose Up\nSELECT 1;\n",
		"20260101000001_reversed.sql":     "-- +goose Down\n-- +goose Up\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := ValidateDir(dir); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Hold Reason!")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(path, "_add_hold_reason.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
	if _, err := CreateSQLMigration(dir, "  !!  "); err == nil {
		t.Fatalf("expected empty sanitized name to fail")
	}
}

func TestEmbeddedSourceMatchesDirectory(t *testing.T) {
	fsys, err := Source("")
	if err != nil {
		t.Fatalf("embedded source: %v", err)
	}
	embeddedFiles, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob disk: %v", err)
	}
	if len(embeddedFiles) == 0 || len(embeddedFiles) != len(onDisk) {
		t.Fatalf("embedded %d migrations, disk has %d", len(embeddedFiles), len(onDisk))
	}
}

func TestCreatedMigrationHasOrderedMarkers(t *testing.T) {
	dir := t.TempDir()
	first, err := CreateSQLMigration(dir, "hold reason")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	body, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := checkMarkers(string(body)); err != nil {
		t.Fatalf("template markers: %v", err)
	}
}
