// Package entity 定义领域实体
package entity

import (
	"time"

	"evocode-datagen/internal/engine"
)

// RunStatus 运行状态
type RunStatus string

const (
	// RunStatusPending 已提交，等待 worker 领取
	RunStatusPending RunStatus = "pending"
	// RunStatusRunning 正在生成
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted 运行完成
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed 运行失败
	RunStatusFailed RunStatus = "failed"
)

// Run 一次数据生成运行
type Run struct {
	ID         string    `json:"id"`
	Stage      string    `json:"stage"`
	Mode       string    `json:"mode,omitempty"`
	NumSamples int       `json:"num_samples,omitempty"`
	Status     RunStatus `json:"status"`
	// Batch 最近完成的批次号
	Batch int `json:"batch,omitempty"`
	// Summary 运行统计，运行中为最近批次的快照
	Summary engine.RunSummary `json:"summary"`
	// Error 失败原因
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal 运行是否已到终态
func (r *Run) Terminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}
