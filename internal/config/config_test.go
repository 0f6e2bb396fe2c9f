package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONFIG_PATH", filepath.Join(dir, "missing.yaml"))
	for _, k := range []string{"DATA_DIR", "WORK_DIR", "DB_PATH", "HTTP_PORT", "WORKER_COUNT", "JOB_QUEUE_SIZE", "JOB_TIMEOUT_SEC", "ENABLE_WATCHER", "WATCH_DEBOUNCE_MS", "RECOMPUTE_PER_MINUTE", "NOTIFY_MIN_SEVERITY", "STRICT_CONFIG", "GROUPME_URL"} {
		t.Setenv(k, "")
	}
	return dir
}

func TestDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DataDir != "./data" {
		t.Fatalf("expected default data dir, got %s", cfg.DataDir)
	}
	if cfg.DBPath != filepath.Join("runtime", "pulse.db") {
		t.Fatalf("expected db under work dir, got %s", cfg.DBPath)
	}
	if cfg.HTTPPort != ":8000" || cfg.WorkerCount != 1 || cfg.QueueSize != 16 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.JobTimeout() != 120*time.Second || cfg.WatchDebounce() != 750*time.Millisecond {
		t.Fatalf("unexpected durations: %v %v", cfg.JobTimeout(), cfg.WatchDebounce())
	}
	if !cfg.EnableWatcher || cfg.RecomputePerMinute != 6 || cfg.NotifyMinSeverity != "high" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestQueueSizeRespectsWorkers(t *testing.T) {
	isolate(t)
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("JOB_QUEUE_SIZE", "4")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.WorkerCount != 8 {
		t.Fatalf("expected worker count 8, got %d", cfg.WorkerCount)
	}
	if cfg.QueueSize < cfg.WorkerCount {
		t.Fatalf("queue size should be at least workers, got %d", cfg.QueueSize)
	}
}

func TestQueueSizeCapped(t *testing.T) {
	isolate(t)
	t.Setenv("JOB_QUEUE_SIZE", "5000")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.QueueSize != maxQueueSize {
		t.Fatalf("expected cap %d, got %d", maxQueueSize, cfg.QueueSize)
	}
}

func TestHTTPPortFormatting(t *testing.T) {
	isolate(t)
	t.Setenv("HTTP_PORT", "9000")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HTTPPort != ":9000" {
		t.Fatalf("expected HTTP_PORT to include colon, got %s", cfg.HTTPPort)
	}
}

func TestInvalidNumberFallsBack(t *testing.T) {
	isolate(t)
	t.Setenv("WORKER_COUNT", "many")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.WorkerCount != defaultWorkerCount {
		t.Fatalf("expected default workers, got %d", cfg.WorkerCount)
	}
}

func TestStrictModeRejectsInvalidNumber(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("data_dir: /srv/data\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("STRICT_CONFIG", "true")
	t.Setenv("JOB_TIMEOUT_SEC", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error in strict mode")
	}
}

func TestStrictModeRequiresFile(t *testing.T) {
	isolate(t)
	t.Setenv("STRICT_CONFIG", "true")
	if _, err := Load(); err == nil {
		t.Fatal("expected missing config file to fail in strict mode")
	}
}

func TestFileValuesAndEnvOverride(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	body := "data_dir: /srv/pulse\nwork_dir: /var/pulse\nworker_count: 3\nenable_watcher: false\nnotify:\n  min_severity: medium\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("WORKER_COUNT", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DataDir != "/srv/pulse" {
		t.Fatalf("expected file data dir, got %s", cfg.DataDir)
	}
	if cfg.DBPath != filepath.Join("/var/pulse", "pulse.db") {
		t.Fatalf("expected db under file work dir, got %s", cfg.DBPath)
	}
	if cfg.WorkerCount != 2 {
		t.Fatalf("expected env to win, got %d", cfg.WorkerCount)
	}
	if cfg.EnableWatcher {
		t.Fatal("expected watcher disabled by file")
	}
	if cfg.NotifyMinSeverity != "medium" {
		t.Fatalf("expected medium severity, got %s", cfg.NotifyMinSeverity)
	}
}
