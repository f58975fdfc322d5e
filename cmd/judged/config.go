package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"intcode/internal/common/cache"
	"intcode/internal/common/db"
	"intcode/pkg/utils/logger"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// JudgeConfig holds the judging limits and directory layout.
type JudgeConfig struct {
	WorkDir            string `yaml:"workDir"`
	TestcaseRoot       string `yaml:"testcaseRoot"`
	CompileTimeout     int    `yaml:"compileTimeout"`
	CaseTimeout        int    `yaml:"caseTimeout"`
	OutputLimit        int64  `yaml:"outputLimit"`
	MaxOutputBytes     int64  `yaml:"maxOutputBytes"`
	MaxZipExtractBytes int64  `yaml:"maxZipExtractBytes"`
	MemoryLimitMB      int64  `yaml:"memoryLimitMB"`
	Concurrency        int    `yaml:"concurrency"`
	PythonBin          string `yaml:"pythonBin"`
	CppCompileTemplate string `yaml:"cppCompileTemplate"`
}

// SandboxConfig holds sandbox helper settings.
type SandboxConfig struct {
	HelperPath     string `yaml:"helperPath"`
	SeccompProfile string `yaml:"seccompProfile"`
	StderrMaxBytes int64  `yaml:"stderrMaxBytes"`
}

// AppConfig holds the judged configuration.
type AppConfig struct {
	Server   ServerConfig      `yaml:"server"`
	Logger   logger.Config     `yaml:"logger"`
	Database db.MySQLConfig    `yaml:"database"`
	Redis    cache.RedisConfig `yaml:"redis"`
	Judge    JudgeConfig       `yaml:"judge"`
	Sandbox  SandboxConfig     `yaml:"sandbox"`
}

// loadAppConfig reads the YAML file when present, then applies INTCODE_*
// environment overrides and defaults.
func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file failed: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file failed: %w", err)
		}
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *AppConfig) {
	envString("INTCODE_WORK_DIR", &cfg.Judge.WorkDir)
	envString("INTCODE_TESTCASE_ROOT", &cfg.Judge.TestcaseRoot)
	envInt("INTCODE_COMPILE_TIMEOUT", &cfg.Judge.CompileTimeout)
	envInt("INTCODE_CASE_TIMEOUT", &cfg.Judge.CaseTimeout)
	envInt64("INTCODE_OUTPUT_LIMIT", &cfg.Judge.OutputLimit)
	envInt64("INTCODE_MAX_OUTPUT_BYTES", &cfg.Judge.MaxOutputBytes)
	envInt64("INTCODE_MAX_ZIP_EXTRACT_BYTES", &cfg.Judge.MaxZipExtractBytes)
	envInt64("INTCODE_MEMORY_LIMIT_MB", &cfg.Judge.MemoryLimitMB)
	envInt("INTCODE_CONCURRENCY", &cfg.Judge.Concurrency)
	envString("INTCODE_DATABASE_DSN", &cfg.Database.DSN)
	envString("INTCODE_REDIS_ADDR", &cfg.Redis.Addr)
	envString("INTCODE_SANDBOX_HELPER", &cfg.Sandbox.HelperPath)
	envString("INTCODE_SECCOMP_PROFILE", &cfg.Sandbox.SeccompProfile)
	envString("INTCODE_HTTP_ADDR", &cfg.Server.Addr)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Judge.WorkDir == "" {
		cfg.Judge.WorkDir = "data/work"
	}
	if cfg.Judge.TestcaseRoot == "" {
		cfg.Judge.TestcaseRoot = "data/testcases"
	}
	if cfg.Judge.CompileTimeout <= 0 {
		cfg.Judge.CompileTimeout = 15
	}
	if cfg.Judge.CaseTimeout <= 0 {
		cfg.Judge.CaseTimeout = 2
	}
	if cfg.Judge.OutputLimit <= 0 {
		cfg.Judge.OutputLimit = 20000
	}
	if cfg.Judge.MaxOutputBytes <= 0 {
		cfg.Judge.MaxOutputBytes = 16 * 1024 * 1024
	}
	if cfg.Judge.MaxZipExtractBytes <= 0 {
		cfg.Judge.MaxZipExtractBytes = 200 * 1024 * 1024
	}
	if cfg.Judge.MemoryLimitMB <= 0 {
		cfg.Judge.MemoryLimitMB = 256
	}
}

func envString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func envInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func envInt64(key string, target *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*target = n
		}
	}
}
