package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述了 TrustMesh 在启动阶段需要加载的核心配置。
type Config struct {
	Geometry GeometryConfig `json:"geometry"`
	Registry RegistryConfig `json:"registry"`
	Drift    DriftConfig    `json:"drift"`
	Observe  ObserveConfig  `json:"observe"`
	Logging  LoggingConfig  `json:"logging"`
	Runtime  RuntimeConfig  `json:"runtime"`
}

// GeometryConfig 指定本地信任画像的来源。
type GeometryConfig struct {
	ProfilePath string `json:"profile_path"`
}

// RegistryConfig 统一描述注册表持久化后端的连接信息。
type RegistryConfig struct {
	Store RegistryStoreConfig `json:"store"`
}

// RegistryStoreConfig 支持 memory、file 与 mysql 三种驱动。
type RegistryStoreConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
	DSN    string `json:"dsn"`
}

// DriftConfig 控制漂移探测器的灵敏度与巡检节奏。
type DriftConfig struct {
	Threshold            float64 `json:"threshold"`
	EventCapacity        int     `json:"event_capacity"`
	SweepIntervalSeconds int     `json:"sweep_interval_seconds"`
}

// ObserveConfig 描述观察消息队列的驱动与参数。
type ObserveConfig struct {
	Driver   string              `json:"driver"`
	Workers  int                 `json:"workers"`
	Redis    RedisQueueConfig    `json:"redis"`
	RabbitMQ RabbitMQQueueConfig `json:"rabbitmq"`
}

// RedisQueueConfig 描述 Redis 队列的连接参数。
type RedisQueueConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
}

// RabbitMQQueueConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQQueueConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// LoggingConfig 描述应用日志与审计日志的输出方式。
type LoggingConfig struct {
	Level       string      `json:"level"`
	Format      string      `json:"format"`
	OutputPaths []string    `json:"output_paths"`
	Audit       AuditConfig `json:"audit"`
}

// AuditConfig 控制信任审计日志。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	NodeID      string `json:"node_id"`
	DisplayName string `json:"display_name"`
	DataDir     string `json:"data_dir"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Geometry.ProfilePath == "" {
		c.Geometry.ProfilePath = filepath.Join(baseDir, "profile.yaml")
	} else if !filepath.IsAbs(c.Geometry.ProfilePath) {
		c.Geometry.ProfilePath = filepath.Join(baseDir, c.Geometry.ProfilePath)
	}

	if c.Registry.Store.Driver == "" {
		c.Registry.Store.Driver = "file"
	}

	if c.Drift.Threshold <= 0 {
		c.Drift.Threshold = 0.003
	}
	if c.Drift.EventCapacity <= 0 {
		c.Drift.EventCapacity = 100
	}
	if c.Drift.SweepIntervalSeconds <= 0 {
		c.Drift.SweepIntervalSeconds = 300
	}

	if c.Observe.Driver == "" {
		c.Observe.Driver = "memory"
	}
	if c.Observe.Workers <= 0 {
		c.Observe.Workers = 1
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}

	if c.Registry.Store.Driver == "file" {
		if c.Registry.Store.Path == "" {
			c.Registry.Store.Path = filepath.Join(c.Runtime.DataDir, "trust_registry.json")
		} else if !filepath.IsAbs(c.Registry.Store.Path) {
			c.Registry.Store.Path = filepath.Join(baseDir, c.Registry.Store.Path)
		}
	}
}
