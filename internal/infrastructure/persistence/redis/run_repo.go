package redis

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"evocode-datagen/internal/domain/entity"
	"evocode-datagen/internal/domain/repository"
	"evocode-datagen/pkg/errors"
)

// runKeyPrefix 运行状态键前缀
const runKeyPrefix = "datagen:run:"

// runTTL 运行状态保留时间
const runTTL = 7 * 24 * time.Hour

// RunRepository 基于 Redis 的运行状态仓储
type RunRepository struct {
	client *Client
}

// 编译期检查接口实现
var _ repository.RunRepository = (*RunRepository)(nil)

// NewRunRepository 创建运行状态仓储
func NewRunRepository(client *Client) *RunRepository {
	return &RunRepository{client: client}
}

// Save 保存运行状态
func (r *RunRepository) Save(ctx context.Context, run *entity.Run) error {
	ctx, span := tracer.Start(ctx, "runRepo.Save",
		trace.WithAttributes(
			attribute.String("run_id", run.ID),
			attribute.String("status", string(run.Status)),
		))
	defer span.End()

	run.UpdatedAt = time.Now()
	data, err := json.Marshal(run)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, errors.CodeCacheError, "marshal run")
	}

	if err := r.client.Redis().Set(ctx, runKeyPrefix+run.ID, data, runTTL).Err(); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, errors.CodeCacheError, "save run state")
	}
	return nil
}

// Get 按 ID 获取运行
func (r *RunRepository) Get(ctx context.Context, id string) (*entity.Run, error) {
	ctx, span := tracer.Start(ctx, "runRepo.Get",
		trace.WithAttributes(attribute.String("run_id", id)))
	defer span.End()

	data, err := r.client.Redis().Get(ctx, runKeyPrefix+id).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, errors.ErrRunNotFound.WithDetail(id)
		}
		span.RecordError(err)
		return nil, errors.Wrap(err, errors.CodeCacheError, "get run state")
	}

	var run entity.Run
	if err := json.Unmarshal(data, &run); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, errors.CodeCacheError, "unmarshal run")
	}
	return &run, nil
}
