// Package handler 提供 HTTP 请求处理器
package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"evocode-datagen/internal/domain/entity"
	"evocode-datagen/internal/domain/repository"
	"evocode-datagen/internal/infrastructure/messaging"
	"evocode-datagen/internal/interfaces/http/dto"
	"evocode-datagen/pkg/errors"
	"evocode-datagen/pkg/logger"
	"evocode-datagen/pkg/tracer"
)

// RunHandler 生成运行处理器
//
// 提交接口只负责登记运行并投递任务，实际生成由 worker 异步执行。
type RunHandler struct {
	runs     repository.RunRepository
	producer *messaging.Producer
}

// NewRunHandler 创建运行处理器
func NewRunHandler(runs repository.RunRepository, producer *messaging.Producer) *RunHandler {
	return &RunHandler{runs: runs, producer: producer}
}

// Create 提交一次生成运行
//
// POST /v1/runs
func (h *RunHandler) Create(c *gin.Context) {
	var req dto.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	run := &entity.Run{
		ID:         uuid.New().String(),
		Stage:      req.Stage,
		Mode:       req.Mode,
		NumSamples: req.NumSamples,
		Status:     entity.RunStatusPending,
		CreatedAt:  time.Now(),
	}

	if err := h.runs.Save(ctx, run); err != nil {
		logger.Error(ctx, "failed to save run", err, "run_id", run.ID)
		dto.FromAppError(c, errors.AsAppError(err))
		return
	}

	job := &messaging.RunJobMessage{
		RunID:      run.ID,
		Stage:      run.Stage,
		Mode:       run.Mode,
		NumSamples: run.NumSamples,
		RequestID:  c.GetString("request_id"),
		TraceID:    tracer.TraceID(ctx),
	}
	if _, err := h.producer.PublishRunJob(ctx, job); err != nil {
		logger.Error(ctx, "failed to publish run job", err, "run_id", run.ID)
		run.Status = entity.RunStatusFailed
		run.Error = "failed to enqueue job"
		_ = h.runs.Save(ctx, run)
		dto.FromAppError(c, errors.Wrap(err, errors.CodeQueueError, "failed to enqueue run"))
		return
	}

	logger.Info(ctx, "run submitted", "run_id", run.ID, "stage", run.Stage)
	dto.Accepted(c, dto.ToRunResponse(run))
}

// Get 查询运行状态
//
// GET /v1/runs/:id
func (h *RunHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		dto.BadRequest(c, "run id is required")
		return
	}

	run, err := h.runs.Get(c.Request.Context(), id)
	if err != nil {
		dto.FromAppError(c, errors.AsAppError(err))
		return
	}

	dto.Success(c, dto.ToRunResponse(run))
}
