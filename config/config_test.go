package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `server:
  url: http://127.0.0.1:8088/
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.BaseURL(); got != "http://127.0.0.1:8088" {
		t.Fatalf("unexpected base url %q", got)
	}
	if got := cfg.APIPrefix(); got != "/api/1.0" {
		t.Fatalf("unexpected api prefix %q", got)
	}
	if got := cfg.StreamProcsInterval(); got != 700*time.Millisecond {
		t.Fatalf("unexpected stream_procs interval %v", got)
	}
	if got := cfg.SystemInterval(); got != time.Second {
		t.Fatalf("unexpected system interval %v", got)
	}
	if got := cfg.RequestTimeout(); got != 5*time.Second {
		t.Fatalf("unexpected timeout %v", got)
	}
	limit, burst := cfg.RateLimit()
	if limit != 20 || burst != 10 {
		t.Fatalf("unexpected rate limit %v/%d", limit, burst)
	}
	if cfg.BreakerMaxFailures() != 5 || cfg.BreakerTimeout() != 10*time.Second {
		t.Fatalf("unexpected breaker defaults")
	}
	if cfg.LiveViewListen() != "127.0.0.1:8080" {
		t.Fatalf("unexpected live view listen %q", cfg.LiveViewListen())
	}
}

func TestLoadFullDocument(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `name: lab
server:
  url: https://tsp.example.org
  api_prefix: api/2.0/
  timeout: 2s
  rate_limit: 5
  burst: 2
  breaker:
    max_failures: 3
    timeout: 30s
poll:
  stream_procs: 250ms
  system: 2s
live_view:
  enabled: true
  listen: ":9000"
labels:
  program: '"P" + string(program_number)'
logging:
  level: debug
  format: text
telemetry:
  enabled: true
hot_reload: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIPrefix() != "/api/2.0" {
		t.Fatalf("unexpected api prefix %q", cfg.APIPrefix())
	}
	if cfg.RequestTimeout() != 2*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.RequestTimeout())
	}
	if limit, burst := cfg.RateLimit(); limit != 5 || burst != 2 {
		t.Fatalf("unexpected rate limit %v/%d", limit, burst)
	}
	if cfg.BreakerMaxFailures() != 3 || cfg.BreakerTimeout() != 30*time.Second {
		t.Fatalf("unexpected breaker settings")
	}
	if cfg.StreamProcsInterval() != 250*time.Millisecond || cfg.SystemInterval() != 2*time.Second {
		t.Fatalf("unexpected poll intervals")
	}
	if !cfg.LiveView.Enabled || cfg.LiveViewListen() != ":9000" {
		t.Fatalf("unexpected live view settings %+v", cfg.LiveView)
	}
	if cfg.Labels["program"] == "" {
		t.Fatalf("expected program label expression")
	}
	if !cfg.HotReload || !cfg.Telemetry.Enabled || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected flags %+v", cfg)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `server:
  url: http://localhost
  retries: 3
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected schema error for unknown key")
	}
	if !strings.Contains(err.Error(), "retries") {
		t.Fatalf("error should name the offending key: %v", err)
	}
}

func TestLoadRejectsUnknownLabelKind(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `server:
  url: http://localhost
labels:
  teletext: '"x"'
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected schema error for unknown resource kind")
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `server:
  url: http://localhost
poll:
  system: soon
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected schema error for malformed duration")
	}
}

func TestLoadRequiresServerURL(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", "logging:\n  level: info\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error without server url")
	}
	path = writeConfig(t, dir, "ftp.yaml", "server:\n  url: ftp://host\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestLoadIncludes(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "labels.yaml", `labels:
  demuxer: '"Demux " + tag'
poll:
  system: 3s
`)
	path := writeConfig(t, dir, "config.yaml", `server:
  url: http://localhost
labels:
  program: '"P"'
includes:
  - labels.yaml
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Labels) != 2 {
		t.Fatalf("expected merged labels, got %v", cfg.Labels)
	}
	if cfg.SystemInterval() != 3*time.Second {
		t.Fatalf("include did not override poll interval")
	}
	files := SourceFiles(cfg)
	if len(files) != 2 {
		t.Fatalf("expected 2 source files, got %v", files)
	}
}

func TestLoadDetectsIncludeCycles(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "b.yaml", "includes:\n  - a.yaml\n")
	path := writeConfig(t, dir, "a.yaml", "server:\n  url: http://localhost\nincludes:\n  - b.yaml\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected include cycle error")
	}
}

func TestSourceFilesSkipsDirectoriesAndDuplicates(t *testing.T) {
	dir := t.TempDir()
	file := writeConfig(t, dir, "config.yaml", "")
	cfg := &Config{Sources: []string{file, file, dir, ""}}
	files := SourceFiles(cfg)
	if len(files) != 1 || files[0] != file {
		t.Fatalf("unexpected source files %v", files)
	}
	if SourceFiles(nil) != nil {
		t.Fatal("expected nil for nil config")
	}
}

func TestLoadMergesComponentLogLevels(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "debug.yaml", `logging:
  components:
    remote: trace
`)
	path := writeConfig(t, dir, "config.yaml", `server:
  url: http://localhost
logging:
  level: info
  components:
    remote: warn
    poller: debug
includes:
  - debug.yaml
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := map[string]string{"remote": "trace", "poller": "debug"}
	if !reflect.DeepEqual(cfg.Logging.Components, want) {
		t.Fatalf("unexpected component levels %v", cfg.Logging.Components)
	}

	path = writeConfig(t, dir, "bad.yaml", "server:\n  url: http://localhost\nlogging:\n  components:\n    remote: loud\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected schema error for unknown component level")
	}
}
