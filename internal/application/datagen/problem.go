// Package datagen 实现四个数据生成阶段的策略与应用服务
//
// 流水线顺序：problem -> skeleton -> implementation -> rating。
// 每个阶段是一个 engine.Strategy，由引擎统一驱动并发、去重、
// 重试与落盘。
package datagen

import (
	"strings"

	"evocode-datagen/internal/engine"
)

// 生成模式
const (
	// ModeFIM 中间填充模式：补全位置在函数名处
	ModeFIM = "FIM"
	// ModeL2R 从左到右模式：模型续写引导前缀
	ModeL2R = "L2R"
)

// StageProblem 出题阶段名
const StageProblem = "problem"

// ProblemStrategy 算法题面生成策略
//
// 采样型阶段：同一基础提示词重复采样，靠高温度获得多样性，
// 重复题面由内容去重丢弃。
type ProblemStrategy struct {
	mode    string
	prompts map[string]string
}

// NewProblemStrategy 创建出题策略
func NewProblemStrategy(mode string, prompts map[string]string) *ProblemStrategy {
	if mode != ModeL2R {
		mode = ModeFIM
	}
	return &ProblemStrategy{mode: mode, prompts: prompts}
}

// Stage 阶段名
func (s *ProblemStrategy) Stage() string { return StageProblem }

// Mode 生成模式
func (s *ProblemStrategy) Mode() string { return s.mode }

// BuildRequest 构造基础采样提示词
func (s *ProblemStrategy) BuildRequest(_ engine.Source) (engine.Request, error) {
	var prompt string
	if s.mode == ModeFIM {
		prefix := promptOr(s.prompts, "fim_prefix", defaultProblemFIMPrefix)
		suffix := promptOr(s.prompts, "fim_suffix", defaultProblemFIMSuffix)
		prompt = prefix + suffix
	} else {
		prompt = promptOr(s.prompts, "l2r", defaultProblemL2R)
	}
	return engine.Request{Prompt: prompt}, nil
}

// Validate 校验生成的题面
//
// 空响应直接丢弃（重采样无意义，额度不补发），
// 非空即接受，唯一性交给内容去重保证。
func (s *ProblemStrategy) Validate(_ engine.Source, raw string) engine.Validation {
	text := strings.TrimSpace(raw)
	if text == "" {
		return engine.Validation{Verdict: engine.VerdictDiscard, Reason: "empty response"}
	}
	return engine.Validation{
		Verdict: engine.VerdictAccept,
		Text:    text,
		Fields: map[string]any{
			"problem_description": text,
			"raw_text":            text,
		},
	}
}
