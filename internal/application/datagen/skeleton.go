package datagen

import (
	"regexp"
	"strings"

	"evocode-datagen/internal/engine"
)

// StageSkeleton 骨架阶段名
const StageSkeleton = "skeleton"

// funcNameRe 从骨架代码提取函数名，只认小写蛇形命名
var funcNameRe = regexp.MustCompile(`(?m)^def\s+([a-z_][a-z0-9_]*)\s*\(`)

// SkeletonStrategy 函数骨架生成策略
//
// 转换型阶段：逐条消费题面，产出带类型标注与 docstring 的
// 函数签名。语法不合法的骨架仍会入库，带 valid=false 标记，
// 由下游阶段决定是否跳过。
type SkeletonStrategy struct {
	prompts map[string]string
}

// NewSkeletonStrategy 创建骨架策略
func NewSkeletonStrategy(prompts map[string]string) *SkeletonStrategy {
	return &SkeletonStrategy{prompts: prompts}
}

// Stage 阶段名
func (s *SkeletonStrategy) Stage() string { return StageSkeleton }

// BuildRequest 渲染骨架生成提示词
func (s *SkeletonStrategy) BuildRequest(src engine.Source) (engine.Request, error) {
	template := promptOr(s.prompts, "template", defaultSkeletonTemplate)
	prompt := renderTemplate(template, map[string]string{
		"problem": fieldString(src.Fields, "problem_text"),
	})
	return engine.Request{Prompt: prompt}, nil
}

// Validate 校验生成的骨架
func (s *SkeletonStrategy) Validate(_ engine.Source, raw string) engine.Validation {
	code := strings.TrimSpace(raw)
	if code == "" {
		return engine.Validation{Verdict: engine.VerdictDiscard, Reason: "empty response"}
	}

	name := extractFunctionName(code)
	valid := validPythonSyntax(code)

	return engine.Validation{
		Verdict: engine.VerdictAccept,
		Text:    code,
		Fields: map[string]any{
			"skeleton_code": code,
			"function_name": name,
			"valid":         valid,
		},
	}
}

// extractFunctionName 提取骨架中的函数名，找不到返回空串
func extractFunctionName(code string) string {
	m := funcNameRe.FindStringSubmatch(code)
	if m == nil {
		return ""
	}
	return m[1]
}
