// Package main 数据生成 worker 入口
//
// 从任务流消费运行任务，驱动生成引擎并回写运行状态。
// 取消信号在批次屏障处生效，在途请求会完成并落盘。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"evocode-datagen/internal/application/datagen"
	"evocode-datagen/internal/config"
	"evocode-datagen/internal/infrastructure/llm"
	"evocode-datagen/internal/infrastructure/messaging"
	redisinfra "evocode-datagen/internal/infrastructure/persistence/redis"
	"evocode-datagen/pkg/logger"
	"evocode-datagen/pkg/tracer"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logger.FromContext(ctx)
	log.Info("starting datagen-worker",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	// 初始化追踪
	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name + "-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		log.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// 初始化 Redis
	redisClient, err := redisinfra.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to connect redis", err)
	}
	defer redisClient.Close()

	// 装配生成服务
	factory := llm.NewEinoFactory(cfg)
	completer := llm.NewClient(factory, cfg)
	service := datagen.NewService(cfg, completer, logger.Default())

	runRepo := redisinfra.NewRunRepository(redisClient)
	jobHandler := datagen.NewJobHandler(service, runRepo)

	// 装配消费者
	consumerName := fmt.Sprintf("datagen-worker-%s", uuid.New().String()[:8])
	consumer := messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:       messaging.StreamDatagenRun,
		Group:        messaging.ConsumerGroupDatagenWorker,
		ConsumerName: consumerName,
		BlockTimeout: cfg.Messaging.RedisStream.BlockTimeout,
		RetryLimit:   cfg.Messaging.RedisStream.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    cfg.Messaging.RedisStream.RetryBackoff.Initial,
			Max:        cfg.Messaging.RedisStream.RetryBackoff.Max,
			Multiplier: cfg.Messaging.RedisStream.RetryBackoff.Multiplier,
		},
	})
	jobHandler.Register(consumer)

	if err := consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}
	go consumer.MonitorDLQ(ctx, 100)

	log.Info("worker started", "consumer", consumerName)

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()
	consumer.Stop()

	log.Info("worker exited")
}
