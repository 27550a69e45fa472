package commands

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/livetemplate/karigar/internal/config"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "karigar.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
}

func TestParseServeArgs(t *testing.T) {
	opts, err := parseServeArgs([]string{"./site", "-p", "9000", "--host", "0.0.0.0", "--backend", "http://gen:5000", "-w", "--debug"})
	if err != nil {
		t.Fatalf("parseServeArgs failed: %v", err)
	}
	if opts.dir != "./site" {
		t.Errorf("dir = %q, want ./site", opts.dir)
	}
	if opts.port != "9000" || opts.host != "0.0.0.0" || opts.backend != "http://gen:5000" {
		t.Errorf("unexpected options: %+v", opts)
	}
	if opts.watch == nil || !*opts.watch {
		t.Error("expected watch to be set")
	}
	if !opts.debug {
		t.Error("expected debug to be set")
	}
}

func TestParseServeArgsErrors(t *testing.T) {
	for _, args := range [][]string{
		{"--port"},
		{"--nope"},
		{"--config"},
	} {
		if _, err := parseServeArgs(args); err == nil {
			t.Errorf("parseServeArgs(%v) expected error", args)
		}
	}
}

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	t.Setenv(config.BackendURLEnv, "")
	cfg, err := loadConfig(serveOptions{dir: t.TempDir()})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Backend.GetURL() != "http://localhost:5000" {
		t.Errorf("backend = %q", cfg.Backend.GetURL())
	}
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	t.Setenv(config.BackendURLEnv, "")
	dir := t.TempDir()
	writeConfig(t, dir, `title: Test Shop
server:
  port: 3000
  template_dir: templates
backend:
  url: http://file-backend:5000
`)

	watch := true
	cfg, err := loadConfig(serveOptions{dir: dir, port: "4000", backend: "http://flag-backend:5000", watch: &watch})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Title != "Test Shop" {
		t.Errorf("title = %q", cfg.Title)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.Backend.GetURL() != "http://flag-backend:5000" {
		t.Errorf("backend = %q", cfg.Backend.GetURL())
	}
	if !cfg.Features.HotReload {
		t.Error("expected hot reload from --watch")
	}
	if want := filepath.Join(dir, "templates"); cfg.Server.TemplateDir != want {
		t.Errorf("template dir = %q, want %q", cfg.Server.TemplateDir, want)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv(config.BackendURLEnv, "")
	dir := t.TempDir()

	if _, err := loadConfig(serveOptions{dir: dir, port: "abc"}); err == nil {
		t.Error("expected error for non-numeric port")
	}
	if _, err := loadConfig(serveOptions{dir: dir, backend: "ftp://nope"}); err == nil {
		t.Error("expected error for non-http backend")
	}
	if _, err := loadConfig(serveOptions{dir: filepath.Join(dir, "missing")}); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestValidateCommand(t *testing.T) {
	t.Setenv(config.BackendURLEnv, "")
	dir := t.TempDir()
	writeConfig(t, dir, "backend:\n  url: http://localhost:5000\n")

	if err := ValidateCommand([]string{dir}); err != nil {
		t.Fatalf("ValidateCommand failed: %v", err)
	}
}

func TestValidateCommandBadTemplate(t *testing.T) {
	t.Setenv(config.BackendURLEnv, "")
	dir := t.TempDir()
	tmplDir := filepath.Join(dir, "templates")
	if err := os.Mkdir(tmplDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmplDir, "index.html.tmpl"), []byte("{{.Title"), 0644); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, dir, "server:\n  template_dir: templates\n")

	err := ValidateCommand([]string{dir})
	if err == nil {
		t.Fatal("expected template parse error")
	}
	if !strings.Contains(err.Error(), "index.html.tmpl") {
		t.Errorf("error should name the template, got %v", err)
	}
}
