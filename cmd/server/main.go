package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/cachebus"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/chatservice"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/config"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/delivery"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/events"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/gateway"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/presence"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/session"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/store"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	if err := store.Migrate(cfg.Database.WriterDSN); err != nil {
		logger.Fatalf("failed to apply migrations: %v", err)
	}

	pg, err := store.NewPostgres(cfg.Database, cfg.Search.Language, logger)
	if err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}
	defer pg.Close()

	bus := cachebus.New(cfg.Redis, logger)
	defer bus.Close()
	if err := bus.Ping(context.Background()); err != nil {
		logger.Fatalf("failed to connect to redis: %v", err)
	}

	eventLog := events.New(cfg.Kafka, logger)
	defer eventLog.Close()

	sessions := session.New(pg, bus, cfg.Auth)
	tracker := presence.New(pg, bus, logger)
	deliveryEngine := delivery.New(pg, bus, tracker, eventLog, logger)
	chats := chatservice.New(pg, bus, deliveryEngine, eventLog, cfg.RateLimit)
	gw := gateway.New(sessions, chats, tracker, deliveryEngine, bus, pg, cfg.WebSocket, cfg.RateLimit, logger)

	runCtx, cancelRun := context.WithCancel(context.Background())
	go deliveryEngine.Run(runCtx)
	go gw.Run(runCtx)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(prometheusMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "messaging-core", "timestamp": time.Now().Unix()})
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := bus.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": "redis unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", gw.ServeWS)

	httpServer := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Infof("starting http server on port %d", cfg.Server.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("failed to start http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("http server shutdown error: %v", err)
	}
	cancelRun()

	logger.Info("server stopped")
}

func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()

		httpDuration.WithLabelValues(c.Request.Method, c.FullPath(), fmt.Sprintf("%d", status)).Observe(duration.Seconds())
		httpRequests.WithLabelValues(c.Request.Method, c.FullPath(), fmt.Sprintf("%d", status)).Inc()
	}
}

var (
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "HTTP request latencies in seconds",
		},
		[]string{"method", "path", "status"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(httpDuration)
	prometheus.MustRegister(httpRequests)
}
