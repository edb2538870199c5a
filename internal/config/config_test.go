package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFilesReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "global.json"), filepath.Join(dir, "project.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BuildFile != "Rotefile" {
		t.Fatalf("BuildFile = %q, want Rotefile", cfg.BuildFile)
	}
}

func TestLoadProjectOverridesGlobal(t *testing.T) {
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "global.json")
	projectPath := filepath.Join(dir, "project.json")

	writeFile(t, globalPath, `{"build_file": "GLOBAL.js", "profiles": {"default": {"jobs": 2}}}`)
	writeFile(t, projectPath, `{"build_file": "PROJECT.js"}`)

	cfg, err := Load(globalPath, projectPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BuildFile != "PROJECT.js" {
		t.Fatalf("BuildFile = %q, want PROJECT.js (project should win)", cfg.BuildFile)
	}
	if cfg.Profiles["default"].Jobs != 2 {
		t.Fatalf("expected the global profile to survive when the project file doesn't redefine it")
	}
}

func TestLoadMalformedJSONIsAnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "global.json")
	writeFile(t, path, `{not json`)

	if _, err := Load(path, ""); err == nil {
		t.Fatalf("expected an error for malformed JSON")
	}
}

func TestProfileFallsBackToEmptyOnUnknownName(t *testing.T) {
	cfg := DefaultConfig()
	got := cfg.Profile("nonexistent")
	if got.Jobs != 0 || len(got.IncludePaths) != 0 || len(got.Variables) != 0 {
		t.Fatalf("expected an empty ProfileConfig for an unknown name, got %+v", got)
	}
}

func TestProfileEmptyNameMeansDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Profiles["default"] = ProfileConfig{Jobs: 4}
	got := cfg.Profile("")
	if got.Jobs != 4 {
		t.Fatalf("Profile(\"\") should resolve to the \"default\" profile")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")

	cfg := DefaultConfig()
	cfg.Profiles["ci"] = ProfileConfig{Jobs: 8}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load after Save: %v", err)
	}
	if loaded.Profiles["ci"].Jobs != 8 {
		t.Fatalf("round-tripped profile = %+v, want Jobs=8", loaded.Profiles["ci"])
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}
