package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trustmesh.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Registry.Store.Driver != "file" {
		t.Fatalf("unexpected store driver: %s", cfg.Registry.Store.Driver)
	}
	if cfg.Registry.Store.Path != filepath.Join(dir, "data", "trust_registry.json") {
		t.Fatalf("unexpected store path: %s", cfg.Registry.Store.Path)
	}
	if cfg.Geometry.ProfilePath != filepath.Join(dir, "profile.yaml") {
		t.Fatalf("unexpected profile path: %s", cfg.Geometry.ProfilePath)
	}
	if cfg.Drift.Threshold != 0.003 {
		t.Fatalf("unexpected drift threshold: %f", cfg.Drift.Threshold)
	}
	if cfg.Drift.EventCapacity != 100 {
		t.Fatalf("unexpected event capacity: %d", cfg.Drift.EventCapacity)
	}
	if cfg.Drift.SweepIntervalSeconds != 300 {
		t.Fatalf("unexpected sweep interval: %d", cfg.Drift.SweepIntervalSeconds)
	}
	if cfg.Observe.Driver != "memory" || cfg.Observe.Workers != 1 {
		t.Fatalf("unexpected observe defaults: %+v", cfg.Observe)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trustmesh.json")
	content := `{
  "registry": {"store": {"driver": "mysql", "dsn": "user:pass@tcp(db:3306)/trustmesh"}},
  "drift": {"threshold": 0.01, "event_capacity": 50},
  "observe": {"driver": "redis", "workers": 8}
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Registry.Store.Driver != "mysql" {
		t.Fatalf("driver overridden: %s", cfg.Registry.Store.Driver)
	}
	if cfg.Drift.Threshold != 0.01 || cfg.Drift.EventCapacity != 50 {
		t.Fatalf("drift values overridden: %+v", cfg.Drift)
	}
	if cfg.Observe.Driver != "redis" || cfg.Observe.Workers != 8 {
		t.Fatalf("observe values overridden: %+v", cfg.Observe)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
