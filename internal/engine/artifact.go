// Package engine 提供通用的批量生成引擎
//
// 引擎负责并发请求、校验裁决、内容去重、语义重试与增量持久化，
// 具体阶段（出题、骨架、实现、评分）通过 Strategy 接入。
package engine

import "context"

// Verdict 校验裁决
type Verdict int

const (
	// VerdictAccept 产物合格，进入去重与持久化
	VerdictAccept Verdict = iota
	// VerdictRegenerate 产物不合格但可重新生成
	VerdictRegenerate
	// VerdictDiscard 产物不合格且无重试价值（如空响应）
	VerdictDiscard
)

// String 返回裁决名称
func (v Verdict) String() string {
	switch v {
	case VerdictAccept:
		return "accept"
	case VerdictRegenerate:
		return "regenerate"
	case VerdictDiscard:
		return "discard"
	default:
		return "unknown"
	}
}

// Validation 校验结果
type Validation struct {
	Verdict Verdict
	// Text 归一化后的产物正文，用于计算内容标识（仅 Accept 时有效）
	Text string
	// Fields 阶段特定的产物字段，随记录一并落盘
	Fields map[string]any
	// Reason 拒绝原因，用于日志定位
	Reason string
}

// SamplingParams 远端补全的采样参数
type SamplingParams struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
	Stop        []string
}

// Source 单条生成任务的上游输入
//
// 采样型阶段（无上游文件）的 Source 仅携带模式等元信息；
// 转换型阶段的 Source 携带上游记录字段。
type Source struct {
	// Key 用于日志定位的标识（如函数名），可为空
	Key string
	// UID 预先固定的内容标识；非空时引擎不再按正文计算，
	// 用于沿用上游标识去重的阶段（如评分按实现标识去重）
	UID string
	// Fields 上游记录字段，接受后并入落盘记录
	Fields map[string]any
}

// Request 一次远端补全请求
type Request struct {
	Prompt string
	Params SamplingParams
}

// Strategy 生成阶段策略
//
// BuildRequest 与 Validate 必须无副作用，引擎会在重试时重复调用。
type Strategy interface {
	// Stage 阶段名称，用于日志与指标标签
	Stage() string
	// BuildRequest 根据上游输入构造补全请求
	BuildRequest(src Source) (Request, error)
	// Validate 校验原始响应文本并给出裁决
	Validate(src Source, raw string) Validation
}

// Artifact 已接受的产物
type Artifact struct {
	// UID 内容标识（正文 SHA-256 的前 16 位十六进制）
	UID string
	// Text 归一化后的产物正文
	Text string
	// Fields 落盘记录字段（含上游字段与阶段字段）
	Fields map[string]any
	// Retries 被接受前经历的语义重试次数
	Retries int
}

// RunSummary 一次运行的统计
type RunSummary struct {
	// Issued 已发起的首次请求数（不含重试）
	Issued int `json:"issued"`
	// Accepted 新接受并持久化的产物数
	Accepted int `json:"accepted"`
	// Duplicates 因内容重复被丢弃的产物数
	Duplicates int `json:"duplicates"`
	// Retried 语义重试的提交次数
	Retried int `json:"retried"`
	// Discarded 无重试价值被直接丢弃的产物数
	Discarded int `json:"discarded"`
	// FailedValidation 重试耗尽后永久失败的任务数
	FailedValidation int `json:"failed_validation"`
	// FailedTransport 传输重试耗尽后失败的任务数
	FailedTransport int `json:"failed_transport"`
	// Batches 已执行的批次数
	Batches int `json:"batches"`
}

// Progress 批次完成后的进度快照
type Progress struct {
	Stage   string
	Batch   int
	Summary RunSummary
}

// ProgressFunc 进度回调，在每个批次（含其重试轮）结束后调用
type ProgressFunc func(ctx context.Context, p Progress)

// RunInput 一次运行的输入
//
// Sources 非空时为转换型运行，逐条消费上游记录；
// 否则为采样型运行，重复采样直至发起 TargetCount 个首次请求。
type RunInput struct {
	Sources []Source
	// TargetCount 采样型运行的目标请求数（按发起计，不按接受计）
	TargetCount int
	// Base 采样型运行共用的任务输入
	Base Source
}

// RunResult 一次运行的结果
type RunResult struct {
	Accepted []Artifact
	Summary  RunSummary
	// Pending 持久化失败时尚未落盘的记录，供调用方恢复
	Pending []Record
}
