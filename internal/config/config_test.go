package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	vp, err := cfg.Viewport()
	if err != nil {
		t.Fatalf("viewport: %v", err)
	}
	if vp.Start.Format("2006-01-02") != "2024-01-01" || vp.End.Format("2006-01-02") != "2024-12-31" {
		t.Fatalf("unexpected viewport %v", vp)
	}
	if cfg.Timeline.Zoom != 2 || !cfg.Timeline.SeedDemo {
		t.Fatalf("unexpected timeline defaults %+v", cfg.Timeline)
	}
	if cfg.AutosaveDelay() != time.Second || cfg.DraftMaxAge() != 168*time.Hour {
		t.Fatalf("durations: %v %v", cfg.AutosaveDelay(), cfg.DraftMaxAge())
	}
	if len(cfg.Editor.Palette) != 6 || cfg.Drafts.Backend != "sqlite" {
		t.Fatalf("editor/drafts defaults: %+v %+v", cfg.Editor, cfg.Drafts)
	}
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
timeline:
  start: 2025-01-01
  end: 2025-06-30
  zoom: 4
editor:
  allow_past_start: true
log:
  level: debug
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Timeline.Start != "2025-01-01" || cfg.Timeline.Zoom != 4 || !cfg.Editor.AllowPastStart {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Render.Width != 1200 || cfg.Server.BasePath != "/v0" {
		t.Fatalf("defaults lost: %+v %+v", cfg.Render, cfg.Server)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"empty viewport":  "timeline: {start: 2024-05-01, end: 2024-05-01}",
		"reversed":        "timeline: {start: 2024-05-02, end: 2024-05-01}",
		"bad date":        "timeline: {start: tomorrow}",
		"zoom":            "timeline: {zoom: 9}",
		"autosave":        "editor: {autosave_delay: soon}",
		"color":           "editor: {default_color: red}",
		"palette":         "editor: {palette: ['#fff']}",
		"backend":         "drafts: {backend: s3}",
		"redis addr":      "drafts: {backend: redis}",
		"log level":       "log: {level: loud}",
		"webhook url":     "webhooks: [{id: a, url: ftp://x}]",
		"webhook dup ids": "webhooks: [{id: a, url: 'http://x'}, {id: a, url: 'http://y'}]",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadOptionalAndLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("expected nil config, got %v %v", cfg, err)
	}
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "chronos init") {
		t.Fatalf("expected missing config hint, got %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "chronos.yml"), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8080" {
		t.Fatalf("unexpected addr %s", cfg.Server.Addr)
	}
	if _, err := FromFile(filepath.Join(dir, "missing.yml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestPath(t *testing.T) {
	if Path("") != "chronos.yml" {
		t.Fatalf("unexpected path %s", Path(""))
	}
	if Path("/tmp/ws") != filepath.Join("/tmp/ws", "chronos.yml") {
		t.Fatalf("unexpected path %s", Path("/tmp/ws"))
	}
}
