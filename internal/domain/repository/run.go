// Package repository 定义领域仓储接口
package repository

import (
	"context"

	"evocode-datagen/internal/domain/entity"
)

// RunRepository 运行状态仓储
type RunRepository interface {
	// Save 保存运行状态（创建或整体覆盖）
	Save(ctx context.Context, run *entity.Run) error
	// Get 按 ID 获取运行，不存在返回 ErrRunNotFound
	Get(ctx context.Context, id string) (*entity.Run, error)
}
