package main

import (
	"flag"
	"fmt"

	"github.com/crewdrive/crewdrive/internal/common/config"
	"github.com/crewdrive/crewdrive/internal/common/db"
	"github.com/crewdrive/crewdrive/internal/common/logger"
	"github.com/crewdrive/crewdrive/internal/common/middleware"
	"github.com/crewdrive/crewdrive/internal/common/server"
	"github.com/crewdrive/crewdrive/internal/common/tracing"
	"github.com/crewdrive/crewdrive/internal/model"
	"github.com/crewdrive/crewdrive/internal/plan"
	"github.com/crewdrive/crewdrive/internal/planner"
	"github.com/crewdrive/crewdrive/internal/ride"
	"github.com/crewdrive/crewdrive/internal/vehicle"
	"github.com/crewdrive/crewdrive/internal/worker"
	"github.com/gin-gonic/gin"
)

var (
	configPath = flag.String("config", "configs/ride-service.json", "配置文件路径")
	consulKey  = flag.String("consul-kv", "", "从 Consul KV 加载配置的 key（为空则读本地文件）")
)

func main() {
	flag.Parse()

	// 加载配置：优先 Consul KV，其次本地文件（找不到则用默认值）
	var (
		cfg *config.Config
		err error
	)
	if *consulKey != "" {
		local, loadErr := config.LoadConfig(*configPath)
		if loadErr != nil {
			panic(fmt.Sprintf("failed to load config: %v", loadErr))
		}
		cfg, err = config.LoadConfigFromConsulKV(local.Consul.Host, local.Consul.Port, *consulKey)
	} else {
		cfg, err = config.LoadConfig(*configPath)
	}
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 初始化链路追踪
	tracer, closer, err := tracing.InitTracer(cfg.Server.Name, cfg.Jaeger)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}
	_ = tracer

	// 初始化数据库
	gormDB, err := db.NewMySQL(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.MaxIdle,
		cfg.Database.MaxOpen,
	)
	if err != nil {
		log.Fatalf("failed to init mysql: %v", err)
	}
	if err := gormDB.AutoMigrate(model.All()...); err != nil {
		log.Fatalf("failed to migrate mysql schema: %v", err)
	}

	// 排班器通知：未启用 RabbitMQ 时退化为 Nop
	var notifier planner.Notifier = planner.Nop{}
	if cfg.Rabbit.Enabled {
		amqpNotifier, err := planner.NewAMQPNotifier(cfg.Rabbit.URL, cfg.Rabbit.Exchange, log)
		if err != nil {
			log.Warnf("failed to connect to rabbitmq, planner notification disabled: %v", err)
		} else {
			notifier = amqpNotifier
			defer amqpNotifier.Close()
		}
	}

	// 启动统一的 HTTP 服务模板
	if err := server.RunHTTPServer(cfg, log, func(r *gin.Engine) error {
		// 写接口整体限流：令牌桶，100 容量 / 每秒 50 补充
		v1 := r.Group("/v1", server.RateLimit(middleware.NewTokenBucket(100, 50)))
		ride.NewHandler(gormDB, notifier, log).Register(v1)
		plan.NewHandler(gormDB).Register(v1)
		vehicle.NewHandler(gormDB).Register(v1)
		worker.NewHandler(gormDB).Register(v1)
		return nil
	}); err != nil {
		log.Fatalf("ride-service exited with error: %v", err)
	}
}
