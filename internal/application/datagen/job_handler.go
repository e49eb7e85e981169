package datagen

import (
	"context"
	"time"

	"evocode-datagen/internal/domain/entity"
	"evocode-datagen/internal/domain/repository"
	"evocode-datagen/internal/engine"
	"evocode-datagen/internal/infrastructure/messaging"
	"evocode-datagen/pkg/errors"
	"evocode-datagen/pkg/logger"
	"evocode-datagen/pkg/metrics"
)

// JobHandler 运行任务处理器
//
// 把消息队列里的运行任务转换为一次服务调用，
// 并把进度与终态回写到运行仓储。
type JobHandler struct {
	service *Service
	runs    repository.RunRepository
}

// NewJobHandler 创建任务处理器
func NewJobHandler(service *Service, runs repository.RunRepository) *JobHandler {
	return &JobHandler{service: service, runs: runs}
}

// Register 注册到消费者
func (h *JobHandler) Register(consumer *messaging.Consumer) {
	consumer.RegisterHandler(messaging.TypeDatagenRun, h.Handle)
}

// Handle 处理一条运行任务消息
func (h *JobHandler) Handle(ctx context.Context, msg *messaging.Message) error {
	var job messaging.RunJobMessage
	if err := msg.UnmarshalPayload(&job); err != nil {
		// 载荷损坏没有重试价值，记日志后吞掉
		logger.Error(ctx, "malformed run job payload", err, "message_id", msg.ID)
		return nil
	}

	log := logger.FromContext(ctx)

	run, err := h.runs.Get(ctx, job.RunID)
	if err != nil {
		if errors.AsAppError(err).Code == errors.CodeRunNotFound {
			// 状态记录丢失时按消息内容重建，保证任务仍可执行
			run = &entity.Run{
				ID:         job.RunID,
				Stage:      job.Stage,
				Mode:       job.Mode,
				NumSamples: job.NumSamples,
				CreatedAt:  time.Now(),
			}
		} else {
			return err
		}
	}

	if run.Terminal() {
		log.Info("run already terminal, skipping", "run_id", run.ID, "status", run.Status)
		return nil
	}

	run.Status = entity.RunStatusRunning
	if err := h.runs.Save(ctx, run); err != nil {
		return err
	}

	result, runErr := h.service.Run(ctx, RunOptions{
		Stage:      job.Stage,
		Mode:       job.Mode,
		NumSamples: job.NumSamples,
		Progress:   h.progressFunc(run),
	})

	if runErr != nil {
		run.Status = entity.RunStatusFailed
		run.Error = runErr.Error()
		if result != nil {
			run.Summary = result.Summary
		}
		if err := h.runs.Save(ctx, run); err != nil {
			log.Error("failed to save failed run", "error", err, "run_id", run.ID)
		}
		metrics.RunJobsProcessed.WithLabelValues(job.Stage, "error").Inc()
		return runErr
	}

	run.Status = entity.RunStatusCompleted
	run.Summary = result.Summary
	if err := h.runs.Save(ctx, run); err != nil {
		log.Error("failed to save completed run", "error", err, "run_id", run.ID)
	}
	metrics.RunJobsProcessed.WithLabelValues(job.Stage, "ok").Inc()

	log.Info("run completed",
		"run_id", run.ID,
		"stage", run.Stage,
		"accepted", result.Summary.Accepted,
		"duplicates", result.Summary.Duplicates,
	)
	return nil
}

// progressFunc 构造批次进度回写回调
//
// 回写失败只记日志，不影响生成本身。
func (h *JobHandler) progressFunc(run *entity.Run) engine.ProgressFunc {
	return func(ctx context.Context, p engine.Progress) {
		run.Batch = p.Batch
		run.Summary = p.Summary
		if err := h.runs.Save(ctx, run); err != nil {
			logger.Warn(ctx, "failed to save run progress", "error", err, "run_id", run.ID)
		}
	}
}
