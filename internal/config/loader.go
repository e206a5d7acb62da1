package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "triage.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "TRIAGE_PORT")
	setString(&cfg.Server.CORSOrigin, "TRIAGE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "TRIAGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "TRIAGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "TRIAGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "TRIAGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "TRIAGE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Inference.URL, "TRIAGE_INFERENCE_URL")
	setString(&cfg.Inference.APIKey, "TRIAGE_INFERENCE_API_KEY")
	setString(&cfg.Inference.ClassifierModel, "TRIAGE_CLASSIFIER_MODEL")
	setString(&cfg.Inference.GeneratorModel, "TRIAGE_GENERATOR_MODEL")
	setString(&cfg.Inference.JudgeModel, "TRIAGE_JUDGE_MODEL")
	setString(&cfg.Inference.DetectorModel, "TRIAGE_DETECTOR_MODEL")
	setDuration(&cfg.Inference.ClassifyTimeout, "TRIAGE_CLASSIFY_TIMEOUT")
	setDuration(&cfg.Inference.GenerateTimeout, "TRIAGE_GENERATE_TIMEOUT")
	setDuration(&cfg.Inference.JudgeTimeout, "TRIAGE_JUDGE_TIMEOUT")
	setDuration(&cfg.Inference.DetectTimeout, "TRIAGE_DETECT_TIMEOUT")
	setString(&cfg.Knowledge.URL, "TRIAGE_KNOWLEDGE_URL")
	setInt(&cfg.Knowledge.TopK, "TRIAGE_KNOWLEDGE_TOP_K")
	setDuration(&cfg.Knowledge.Timeout, "TRIAGE_KNOWLEDGE_TIMEOUT")
	setString(&cfg.Logging.Level, "TRIAGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TRIAGE_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "TRIAGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "TRIAGE_BREAKER_TIMEOUT")
	setInt64(&cfg.Cache.MaxSizeMB, "TRIAGE_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.DedupTTL, "TRIAGE_DEDUP_TTL")
	setInt(&cfg.Pipeline.MaxHistoryTurns, "TRIAGE_MAX_HISTORY_TURNS")
	setInt(&cfg.Pipeline.MaxContextChars, "TRIAGE_MAX_CONTEXT_CHARS")
	setInt(&cfg.Pipeline.MaxAccountFacts, "TRIAGE_MAX_ACCOUNT_FACTS")
	setDuration(&cfg.Pipeline.ConfirmDeadline, "TRIAGE_CONFIRM_DEADLINE")
	setDuration(&cfg.Pipeline.ExpireSweepEvery, "TRIAGE_EXPIRE_SWEEP_EVERY")
	setDuration(&cfg.Pipeline.ActionTimeout, "TRIAGE_ACTION_TIMEOUT")
	setFloat64(&cfg.Pipeline.ScoreThreshold, "TRIAGE_SCORE_THRESHOLD")
	setFloat64(&cfg.Pipeline.SafetyThreshold, "TRIAGE_SAFETY_THRESHOLD")
	setDuration(&cfg.Pipeline.LookupTimeout, "TRIAGE_LOOKUP_TIMEOUT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Pipeline.MaxHistoryTurns < 1 {
		return errors.New("pipeline.max_history_turns must be >= 1")
	}
	if cfg.Pipeline.ScoreThreshold <= 0 || cfg.Pipeline.ScoreThreshold > 1 {
		return errors.New("pipeline.score_threshold must be in (0, 1]")
	}
	if cfg.Pipeline.SafetyThreshold < cfg.Pipeline.ScoreThreshold {
		return errors.New("pipeline.safety_threshold must be >= score_threshold")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
