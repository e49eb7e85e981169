// Package router 提供路由注册
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"evocode-datagen/internal/config"
	"evocode-datagen/internal/interfaces/http/handler"
	"evocode-datagen/internal/interfaces/http/middleware"
)

// Setup 装配 Gin 引擎与路由
func Setup(cfg *config.Config, runHandler *handler.RunHandler, healthHandler *handler.HealthHandler) *gin.Engine {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: cfg.Security.CORS.AllowedHeaders,
	}))
	if cfg.Observability.Metrics.Enabled {
		r.Use(middleware.Metrics())
	}

	// 健康检查
	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/readyz", healthHandler.Readyz)

	// Prometheus 指标
	if cfg.Observability.Metrics.Enabled {
		path := cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.Handler()))
	}

	// 业务路由
	v1 := r.Group("/v1")
	{
		runs := v1.Group("/runs")
		{
			runs.POST("", runHandler.Create)
			runs.GET("/:id", runHandler.Get)
		}
	}

	return r
}
