package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crewdrive/crewdrive/internal/common/config"
	"github.com/crewdrive/crewdrive/internal/common/discovery"
	"github.com/crewdrive/crewdrive/internal/common/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RegisterFunc 用于注册业务路由（handler.Register 等）。
type RegisterFunc func(r *gin.Engine) error

type RunHTTPOptions struct {
	ShutdownTimeout time.Duration
}

func defaultRunHTTPOptions() RunHTTPOptions {
	return RunHTTPOptions{
		ShutdownTimeout: 5 * time.Second,
	}
}

// RunHTTPServer 统一的 HTTP 服务启动模板：
// - 初始化 gin engine（含中间件链）
// - 注册 /healthz
// - 注册业务路由
// - 注册到 Consul（HTTP check）
// - 优雅退出
func RunHTTPServer(cfg *config.Config, log logger.Logger, register RegisterFunc, opts ...func(*RunHTTPOptions)) error {
	if cfg == nil {
		return fmt.Errorf("cfg is nil")
	}
	if log == nil {
		return fmt.Errorf("log is nil")
	}

	o := defaultRunHTTPOptions()
	for _, apply := range opts {
		if apply != nil {
			apply(&o)
		}
	}

	// 初始化 Consul 客户端（失败不阻塞服务启动）
	consulClient, err := discovery.NewConsulClient(cfg.Consul.Host, cfg.Consul.Port)
	if err != nil {
		log.Warnf("failed to connect to Consul: %v", err)
		consulClient = nil
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// 构建统一的中间件链（按顺序执行）
	r.Use(
		Recovery(log),              // 异常恢复，避免服务崩溃
		Tracing(cfg.Server.Name),   // 链路追踪
		AccessLog(log),             // 访问日志
		JWTAuth(cfg.Auth, log),     // JWT 鉴权（未启用时直接放行）
		RBAC(cfg.Auth),             // 基于路由的角色校验
	)

	// 健康检查（供 Consul 的 HTTP check 探测）
	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	if register != nil {
		if err := register(r); err != nil {
			return fmt.Errorf("failed to register http routes: %w", err)
		}
	}

	// 注册到 Consul（成功才 defer 注销）
	if consulClient != nil {
		serviceID := fmt.Sprintf("%s-%s", cfg.Server.Name, uuid.New().String())
		registry := discovery.NewServiceRegistry(
			consulClient,
			serviceID,
			cfg.Server.Name,
			cfg.Server.Host,
			cfg.Server.HTTPPort,
			[]string{"http"},
		)
		if err := registry.Register(); err != nil {
			log.Warnf("failed to register service to Consul: %v", err)
		} else {
			log.Infof("Service registered to Consul: %s", serviceID)
			defer func() {
				if err := registry.Deregister(); err != nil {
					log.Warnf("failed to deregister service from Consul: %v", err)
				}
			}()
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Infof("%s starting on %s:%d", cfg.Server.Name, cfg.Server.Host, cfg.Server.HTTPPort)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Infof("received signal %v, shutting down...", sig)
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http serve failed: %w", err)
		}
		return nil
	}

	// 优雅关闭
	ctx, cancel := context.WithTimeout(context.Background(), o.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warnf("http shutdown timeout, forcing close: %v", err)
		_ = srv.Close()
	} else {
		log.Info("http server stopped gracefully")
	}

	return nil
}

// WithShutdownTimeout 修改优雅退出等待时间。
func WithShutdownTimeout(d time.Duration) func(*RunHTTPOptions) {
	return func(o *RunHTTPOptions) {
		if d > 0 {
			o.ShutdownTimeout = d
		}
	}
}
