package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"TrustMesh/internal/config"
	"TrustMesh/internal/drift"
	"TrustMesh/internal/geometry"
	"TrustMesh/internal/handshake"
	"TrustMesh/internal/observe"
	"TrustMesh/internal/registry"
	"TrustMesh/pkg/logger"

	"github.com/google/uuid"
)

// main 是 TrustMesh 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("trustmeshd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("TRUSTMESH_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "trustmesh.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	local, err := geometry.LoadProfile(cfg.Geometry.ProfilePath)
	if err != nil {
		return err
	}

	var store registry.Store
	switch cfg.Registry.Store.Driver {
	case "memory":
		store = registry.NewMemoryStore()
	case "", "file":
		fileStore, err := registry.NewFileStore(cfg.Registry.Store.Path)
		if err != nil {
			return err
		}
		store = fileStore
	case "mysql":
		mysqlStore, err := registry.NewMySQLStore(cfg.Registry.Store.DSN)
		if err != nil {
			return err
		}
		store = mysqlStore
	default:
		return fmt.Errorf("未知的注册表存储驱动: %s", cfg.Registry.Store.Driver)
	}

	reg, err := registry.New(local, store)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := reg.Close(); closeErr != nil {
			logger.L().Warn("closing trust registry failed", "error", closeErr)
		}
	}()

	nodeID := cfg.Runtime.NodeID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	protocol := handshake.New(nodeID, cfg.Runtime.DisplayName, reg)

	detector := drift.New(reg,
		drift.WithThreshold(cfg.Drift.Threshold),
		drift.WithEventCapacity(cfg.Drift.EventCapacity),
	)

	var queue observe.Queue
	switch cfg.Observe.Driver {
	case "", "memory":
		queue = observe.NewMemoryQueue(1024)
	case "redis":
		redisQueue, err := observe.NewRedisQueue(observe.RedisQueueConfig{
			Address:   cfg.Observe.Redis.Address,
			Password:  cfg.Observe.Redis.Password,
			DB:        cfg.Observe.Redis.DB,
			Queue:     cfg.Observe.Redis.Queue,
			BlockWait: time.Duration(cfg.Observe.Redis.BlockWait) * time.Second,
		})
		if err != nil {
			return err
		}
		queue = redisQueue
	case "rabbitmq":
		rabbitQueue, err := observe.NewRabbitMQQueue(observe.RabbitMQConfig{
			URL:        cfg.Observe.RabbitMQ.URL,
			Queue:      cfg.Observe.RabbitMQ.Queue,
			Prefetch:   cfg.Observe.RabbitMQ.Prefetch,
			Durable:    cfg.Observe.RabbitMQ.Durable,
			AutoDelete: cfg.Observe.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return err
		}
		queue = rabbitQueue
	default:
		return fmt.Errorf("未知的观察队列驱动: %s", cfg.Observe.Driver)
	}
	defer func() {
		if closeErr := queue.Close(); closeErr != nil {
			logger.L().Warn("closing observation queue failed", "error", closeErr)
		}
	}()

	processor := observe.NewProcessor(queue, protocol, detector,
		observe.WithWorkerCount(cfg.Observe.Workers),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Run(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("observation processor exited", "error", err)
		}
	}()

	logger.L().Info("trustmesh daemon started",
		"node_id", nodeID,
		"registry_driver", cfg.Registry.Store.Driver,
		"observe_driver", cfg.Observe.Driver,
	)

	// 定期输出注册表与探测器的统计信息。
	ticker := time.NewTicker(time.Duration(cfg.Drift.SweepIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.L().Info("trustmesh daemon stopping")
			return ctx.Err()
		case <-ticker.C:
			regStats := reg.Stats()
			driftStats := detector.Stats()
			logger.L().Info("trust mesh status",
				"peers", regStats.Total,
				"trusted", regStats.Trusted,
				"quarantined", regStats.Quarantined,
				"unknown", regStats.Unknown,
				"checks", driftStats.Checks,
				"drifts", driftStats.Drifts,
			)
		}
	}
}
