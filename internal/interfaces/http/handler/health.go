package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"evocode-datagen/internal/interfaces/http/dto"
)

// HealthChecker 依赖健康检查接口
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	version string
	cache   HealthChecker
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(version string, cache HealthChecker) *HealthHandler {
	return &HealthHandler{version: version, cache: cache}
}

// Healthz 存活检查
//
// GET /healthz
func (h *HealthHandler) Healthz(c *gin.Context) {
	dto.Success(c, gin.H{"status": "ok", "version": h.version})
}

// Readyz 就绪检查，验证 Redis 连接
//
// GET /readyz
func (h *HealthHandler) Readyz(c *gin.Context) {
	if h.cache != nil {
		if err := h.cache.HealthCheck(c.Request.Context()); err != nil {
			dto.Error(c, 503, "cache unavailable: "+err.Error())
			return
		}
	}
	dto.Success(c, gin.H{"status": "ready"})
}
