package dto

import (
	"evocode-datagen/internal/domain/entity"
	"evocode-datagen/internal/engine"
)

// CreateRunRequest 提交生成运行请求
type CreateRunRequest struct {
	// Stage 目标阶段：problem / skeleton / implementation / rating
	Stage string `json:"stage" binding:"required,oneof=problem skeleton implementation rating"`
	// Mode 出题阶段的生成模式
	Mode string `json:"mode,omitempty" binding:"omitempty,oneof=FIM L2R"`
	// NumSamples 覆盖配置中的样本数
	NumSamples int `json:"num_samples,omitempty" binding:"omitempty,min=1"`
}

// RunResponse 运行状态响应
type RunResponse struct {
	ID         string            `json:"id"`
	Stage      string            `json:"stage"`
	Mode       string            `json:"mode,omitempty"`
	NumSamples int               `json:"num_samples,omitempty"`
	Status     string            `json:"status"`
	Batch      int               `json:"batch,omitempty"`
	Summary    engine.RunSummary `json:"summary"`
	Error      string            `json:"error,omitempty"`
	CreatedAt  string            `json:"created_at"`
	UpdatedAt  string            `json:"updated_at"`
}

// ToRunResponse 实体转响应
func ToRunResponse(run *entity.Run) RunResponse {
	return RunResponse{
		ID:         run.ID,
		Stage:      run.Stage,
		Mode:       run.Mode,
		NumSamples: run.NumSamples,
		Status:     string(run.Status),
		Batch:      run.Batch,
		Summary:    run.Summary,
		Error:      run.Error,
		CreatedAt:  run.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:  run.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
