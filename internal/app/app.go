// Package app 数据保留服务的应用入口
//
// ## 服务信息
// - 服务名: eidos-retention
// - HTTP 端口: 8080 (/health, /metrics, /retention/*)
// - gRPC 端口: 50058 (仅健康检查)
//
// ## 依赖
// - PostgreSQL: 在线数据 (K线、信号、分析结果、审计日志)
// - Redis: 可选, 多实例部署时的清理运行锁
// - Kafka: 可选, 定时清理完成后的汇总通知
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/eidos-exchange/eidos/eidos-retention/internal/config"
	"github.com/eidos-exchange/eidos/eidos-retention/internal/handler"
	"github.com/eidos-exchange/eidos/eidos-retention/internal/model"
	"github.com/eidos-exchange/eidos/eidos-retention/internal/notify"
	"github.com/eidos-exchange/eidos/eidos-retention/internal/repository"
	"github.com/eidos-exchange/eidos/eidos-retention/internal/retention"
	"github.com/eidos-exchange/eidos/eidos-retention/internal/scheduler"
	"github.com/eidos-exchange/eidos/eidos-retention/pkg/logger"
)

// App 数据保留服务应用
type App struct {
	cfg *config.Config

	// 基础设施
	db            *gorm.DB
	redisClient   redis.UniversalClient
	kafkaNotifier *notify.KafkaNotifier
	grpcServer    *grpc.Server
	healthServer  *health.Server
	httpServer    *http.Server

	registerer prometheus.Registerer
	retention  *retention.Service
}

// New 创建应用实例
func New(cfg *config.Config) *App {
	return &App{cfg: cfg, registerer: prometheus.DefaultRegisterer}
}

// Bootstrap 初始化基础设施与数据保留服务, 供一次性命令使用: 不启动定时调度, 不对外提供接口
func (a *App) Bootstrap(ctx context.Context) error {
	return a.bootstrap(ctx, false)
}

func (a *App) bootstrap(ctx context.Context, schedule bool) error {
	// 1. 初始化数据库
	if err := a.initDB(); err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}

	// 2. 初始化 Redis (仅 redis 运行锁)
	if err := a.initRedis(ctx); err != nil {
		return fmt.Errorf("failed to init redis: %w", err)
	}

	// 3. 初始化通知
	if err := a.initNotifier(); err != nil {
		return fmt.Errorf("failed to init notifier: %w", err)
	}

	// 4. 初始化数据保留服务
	if err := a.initRetention(ctx, schedule); err != nil {
		return fmt.Errorf("failed to init retention: %w", err)
	}
	return nil
}

// Run 启动应用
func (a *App) Run(ctx context.Context) error {
	if err := a.bootstrap(ctx, true); err != nil {
		return err
	}

	if err := a.startHTTP(); err != nil {
		return fmt.Errorf("failed to start http: %w", err)
	}

	if err := a.startGRPC(); err != nil {
		return fmt.Errorf("failed to start gRPC: %w", err)
	}

	logger.Info("retention service started",
		zap.Int("http_port", a.cfg.Service.HTTPPort),
		zap.Int("grpc_port", a.cfg.Service.GRPCPort))
	return nil
}

// Retention 数据保留服务, Bootstrap 之前为 nil
func (a *App) Retention() *retention.Service {
	return a.retention
}

// Shutdown 优雅关闭
func (a *App) Shutdown(ctx context.Context) error {
	logger.Info("shutting down retention service...")

	var errs []error

	if a.healthServer != nil {
		a.healthServer.Shutdown()
	}

	// 停止接收新请求
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
		}
	}
	if a.grpcServer != nil {
		a.grpcServer.GracefulStop()
	}

	// 停止调度, 等待进行中的清理
	if a.retention != nil {
		a.retention.Shutdown()
	}

	if a.kafkaNotifier != nil {
		if err := a.kafkaNotifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka notifier: %w", err))
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close database: %w", err))
			}
		}
	}

	logger.Info("retention service stopped")
	return errors.Join(errs...)
}

// initDB 初始化数据库
func (a *App) initDB() error {
	db, err := gorm.Open(postgres.Open(a.cfg.Postgres.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(a.cfg.Postgres.MaxConnections)
	sqlDB.SetMaxIdleConns(a.cfg.Postgres.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(a.cfg.Postgres.ConnMaxLifetimeMinutes) * time.Minute)

	if a.cfg.Postgres.AutoMigrate {
		if err := db.AutoMigrate(model.LiveTables()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}

	a.db = db
	logger.Info("database connected",
		zap.String("host", a.cfg.Postgres.Host),
		zap.String("database", a.cfg.Postgres.Database))
	return nil
}

// initRedis 初始化 Redis
func (a *App) initRedis(ctx context.Context) error {
	mode, err := a.cfg.Retention.RunLockMode()
	if err != nil {
		return err
	}
	if mode != config.RunLockRedis {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr(),
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		PoolSize: a.cfg.Redis.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return err
	}

	a.redisClient = client
	logger.Info("redis connected", zap.String("addr", a.cfg.Redis.Addr()))
	return nil
}

// initNotifier 配置了 Kafka 时发布到 topic, 否则仅写日志
func (a *App) initNotifier() error {
	if len(a.cfg.Kafka.Brokers) == 0 {
		return nil
	}
	n, err := notify.DialKafkaNotifier(notify.KafkaConfig{
		Brokers:  a.cfg.Kafka.Brokers,
		Topic:    a.cfg.Kafka.NotificationTopic,
		ClientID: a.cfg.Kafka.ClientID,
		Version:  a.cfg.Kafka.Version,
	}, a.cfg.Service.Name)
	if err != nil {
		return err
	}
	a.kafkaNotifier = n
	return nil
}

// initRetention 组装仓储与数据保留服务
func (a *App) initRetention(ctx context.Context, schedule bool) error {
	retentionCfg, err := a.cfg.Retention.Build()
	if err != nil {
		return err
	}

	overrides, err := a.cfg.Retention.TableOverrides()
	if err != nil {
		return err
	}
	repo, err := repository.NewRetentionRepository(a.db, overrides)
	if err != nil {
		return err
	}

	loc, err := a.cfg.Retention.Location()
	if err != nil {
		return err
	}

	opts := []retention.Option{
		retention.WithRegisterer(a.registerer),
		retention.WithLocation(loc),
		retention.WithGracePeriod(a.cfg.Retention.GracePeriod()),
	}
	if !schedule {
		opts = append(opts, retention.WithManualOnly())
	}
	if a.kafkaNotifier != nil {
		opts = append(opts, retention.WithNotifier(a.kafkaNotifier))
	}
	if a.redisClient != nil {
		opts = append(opts, retention.WithRunLocker(
			scheduler.NewRedisRunLock(a.redisClient, a.cfg.Retention.RunLockTTL())))
	}

	svc := retention.New(retentionCfg, repo, opts...)
	if err := svc.Initialize(ctx); err != nil {
		return err
	}
	a.retention = svc
	return nil
}

// newRouter 创建 HTTP 路由
func newRouter(svc handler.RetentionService, ready func() bool) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		if !ready() {
			c.String(http.StatusServiceUnavailable, "NOT READY")
			return
		}
		c.String(http.StatusOK, "OK")
	})

	// Prometheus 监控端点
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.NewRetentionHandler(svc).RegisterRoutes(r)
	return r
}

// startHTTP 启动 HTTP 服务
func (a *App) startHTTP() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Service.HTTPPort))
	if err != nil {
		return err
	}

	a.httpServer = &http.Server{
		Handler:      newRouter(a.retention, a.dbReady),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		if err := a.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}()
	return nil
}

// dbReady 数据库可用
func (a *App) dbReady() bool {
	sqlDB, err := a.db.DB()
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx) == nil
}

// startGRPC 启动 gRPC 健康检查服务
func (a *App) startGRPC() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Service.GRPCPort))
	if err != nil {
		return err
	}

	a.grpcServer = grpc.NewServer()
	a.healthServer = health.NewServer()
	grpc_health_v1.RegisterHealthServer(a.grpcServer, a.healthServer)
	a.healthServer.SetServingStatus(a.cfg.Service.Name, grpc_health_v1.HealthCheckResponse_SERVING)
	a.healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	go func() {
		if err := a.grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()
	return nil
}

// GetConfig 获取配置
func (a *App) GetConfig() *config.Config {
	return a.cfg
}
