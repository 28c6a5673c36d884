package bot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesStorageDefaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: test-token
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != DriverFile {
		t.Errorf("driver = %q, want %q", cfg.Storage.Driver, DriverFile)
	}
	if got := cfg.AnswersPath(); got != filepath.Join("stats", "answers.json") {
		t.Errorf("answers path = %q", got)
	}
	if got := cfg.StatsPath(); got != filepath.Join("stats", "stats.json") {
		t.Errorf("stats path = %q", got)
	}
	if got := cfg.ExportPath(); got != filepath.Join("stats", "student_stats.xlsx") {
		t.Errorf("export path = %q", got)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: test-token
storage:
  driver: redis
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "storage.driver") {
		t.Fatalf("err = %v, want storage.driver validation", err)
	}
}

func TestLoadPostgresRequiresDatabase(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: test-token
storage:
  driver: postgres
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "database.host") {
		t.Fatalf("err = %v, want database.host validation", err)
	}
}

func TestLoadPostgresDriver(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: test-token
storage:
  driver: Postgres
  dir: data
database:
  host: localhost
  name: quizbot
quiz:
  assets:
    - assets/q1.png
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != DriverPostgres {
		t.Errorf("driver = %q, want %q", cfg.Storage.Driver, DriverPostgres)
	}
	if got := cfg.StatsPath(); got != filepath.Join("data", "stats.json") {
		t.Errorf("stats path = %q", got)
	}
	if len(cfg.Quiz.Assets) != 1 || cfg.Quiz.Assets[0] != "assets/q1.png" {
		t.Errorf("assets = %v", cfg.Quiz.Assets)
	}
}

func TestLoadMissingToken(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: file
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected token validation error")
	}
}
