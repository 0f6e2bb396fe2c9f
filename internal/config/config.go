package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all environment-driven settings.
type Config struct {
	DataDir            string
	WorkDir            string
	DBPath             string
	HTTPPort           string
	WorkerCount        int
	QueueSize          int
	JobTimeoutSec      int
	EnableWatcher      bool
	WatchDebounceMS    int
	RecomputePerMinute int
	GroupMeBotID       string
	GroupMeURL         string
	NotifyMinSeverity  string
	StrictConfig       bool
	ConfigPath         string
}

type fileConfig struct {
	DataDir            string `yaml:"data_dir"`
	WorkDir            string `yaml:"work_dir"`
	DBPath             string `yaml:"db_path"`
	HTTPPort           string `yaml:"http_port"`
	WorkerCount        *int   `yaml:"worker_count"`
	QueueSize          *int   `yaml:"job_queue_size"`
	JobTimeoutSec      *int   `yaml:"job_timeout_sec"`
	EnableWatcher      *bool  `yaml:"enable_watcher"`
	WatchDebounceMS    *int   `yaml:"watch_debounce_ms"`
	RecomputePerMinute *int   `yaml:"recompute_per_minute"`
	Notify             struct {
		GroupMeURL  string `yaml:"groupme_url"`
		MinSeverity string `yaml:"min_severity"`
	} `yaml:"notify"`
}

const (
	defaultDataDir            = "./data"
	defaultWorkDir            = "runtime"
	defaultDBFile             = "pulse.db"
	defaultPort               = ":8000"
	defaultWorkerCount        = 1
	defaultQueueSize          = 16
	minQueueSize              = 1
	maxQueueSize              = 1024
	defaultJobTimeoutSec      = 120
	defaultWatchDebounceMS    = 750
	defaultRecomputePerMinute = 6
	defaultGroupMeURL         = "https://api.groupme.com/v3/bots/post"
	defaultMinSeverity        = "high"
)

// Load reads .env, the optional YAML file and the environment, in that order
// of increasing precedence.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		StrictConfig: parseBool(os.Getenv("STRICT_CONFIG"), false),
		ConfigPath:   getenv("CONFIG_PATH", filepath.Join("config", "config.yaml")),
	}

	fc, err := loadFile(cfg.ConfigPath)
	if err != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("config: load %s: %w", cfg.ConfigPath, err)
		}
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("config: load %s: %v (using defaults)", cfg.ConfigPath, err)
		}
	}

	cfg.DataDir = firstNonEmpty(os.Getenv("DATA_DIR"), fc.DataDir, defaultDataDir)
	cfg.WorkDir = firstNonEmpty(os.Getenv("WORK_DIR"), fc.WorkDir, defaultWorkDir)
	cfg.DBPath = firstNonEmpty(os.Getenv("DB_PATH"), fc.DBPath, filepath.Join(cfg.WorkDir, defaultDBFile))
	cfg.HTTPPort = firstNonEmpty(os.Getenv("HTTP_PORT"), fc.HTTPPort, defaultPort)
	if !strings.HasPrefix(cfg.HTTPPort, ":") && !strings.Contains(cfg.HTTPPort, ":") {
		cfg.HTTPPort = ":" + cfg.HTTPPort
	}
	cfg.GroupMeBotID = os.Getenv("GROUPME_BOT_ID")
	cfg.GroupMeURL = firstNonEmpty(os.Getenv("GROUPME_URL"), fc.Notify.GroupMeURL, defaultGroupMeURL)
	cfg.NotifyMinSeverity = strings.ToLower(firstNonEmpty(os.Getenv("NOTIFY_MIN_SEVERITY"), fc.Notify.MinSeverity, defaultMinSeverity))

	ints := []struct {
		key  string
		file *int
		def  int
		dst  *int
	}{
		{"WORKER_COUNT", fc.WorkerCount, defaultWorkerCount, &cfg.WorkerCount},
		{"JOB_QUEUE_SIZE", fc.QueueSize, defaultQueueSize, &cfg.QueueSize},
		{"JOB_TIMEOUT_SEC", fc.JobTimeoutSec, defaultJobTimeoutSec, &cfg.JobTimeoutSec},
		{"WATCH_DEBOUNCE_MS", fc.WatchDebounceMS, defaultWatchDebounceMS, &cfg.WatchDebounceMS},
		{"RECOMPUTE_PER_MINUTE", fc.RecomputePerMinute, defaultRecomputePerMinute, &cfg.RecomputePerMinute},
	}
	for _, f := range ints {
		v := f.def
		if f.file != nil {
			v = *f.file
		}
		n, err := envInt(f.key, v)
		if err != nil {
			if cfg.StrictConfig {
				return cfg, err
			}
			log.Printf("config: %v (using default %d)", err, f.def)
			n = f.def
		}
		if n <= 0 {
			log.Printf("config: %s must be positive, using default %d", f.key, f.def)
			n = f.def
		}
		*f.dst = n
	}

	watcher := true
	if fc.EnableWatcher != nil {
		watcher = *fc.EnableWatcher
	}
	cfg.EnableWatcher = parseBool(os.Getenv("ENABLE_WATCHER"), watcher)

	cfg.QueueSize = clampInt(cfg.QueueSize, minQueueSize, maxQueueSize)
	if cfg.QueueSize < cfg.WorkerCount {
		log.Printf("config: JOB_QUEUE_SIZE must be >= WORKER_COUNT; raising to %d", cfg.WorkerCount)
		cfg.QueueSize = clampInt(cfg.WorkerCount, minQueueSize, maxQueueSize)
	}

	if err := validate(cfg); err != nil {
		if cfg.StrictConfig {
			return cfg, err
		}
		log.Printf("config: %v (continuing)", err)
	}

	log.Printf("config: data_dir=%s work_dir=%s db=%s port=%s workers=%d", cfg.DataDir, cfg.WorkDir, cfg.DBPath, cfg.HTTPPort, cfg.WorkerCount)
	return cfg, nil
}

// JobTimeout is JobTimeoutSec as a duration.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSec) * time.Second
}

// WatchDebounce is WatchDebounceMS as a duration.
func (c Config) WatchDebounce() time.Duration {
	return time.Duration(c.WatchDebounceMS) * time.Millisecond
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if len(data) == 0 {
		return fc, errors.New("empty config file")
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

func validate(cfg Config) error {
	switch cfg.NotifyMinSeverity {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("NOTIFY_MIN_SEVERITY must be low, medium or high (got %q)", cfg.NotifyMinSeverity)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("DATA_DIR is required")
	}
	return nil
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s=%q", key, v)
	}
	return n, nil
}

func parseBool(v string, def bool) bool {
	if strings.TrimSpace(v) == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Now returns the current UTC time truncated to the second.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
