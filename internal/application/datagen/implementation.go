package datagen

import (
	"strings"

	"evocode-datagen/internal/engine"
)

// StageImplementation 实现阶段名
const StageImplementation = "implementation"

// ImplementationStrategy 函数实现生成策略
//
// 转换型阶段：输入骨架，模型只产出函数体。函数体与骨架在
// 校验时拼接为完整实现，内容标识按完整实现计算。
//
// 裁决规则：
//   - 输出了完整函数（以 def 开头）或没有实际代码 -> 重新生成
//   - 拼接后语法不合法 -> 丢弃（重试大概率复现同样的错误）
type ImplementationStrategy struct {
	prompts map[string]string
}

// NewImplementationStrategy 创建实现策略
func NewImplementationStrategy(prompts map[string]string) *ImplementationStrategy {
	return &ImplementationStrategy{prompts: prompts}
}

// Stage 阶段名
func (s *ImplementationStrategy) Stage() string { return StageImplementation }

// BuildRequest 渲染实现生成提示词
func (s *ImplementationStrategy) BuildRequest(src engine.Source) (engine.Request, error) {
	template := promptOr(s.prompts, "template", defaultImplementationTemplate)
	prompt := renderTemplate(template, map[string]string{
		"problem":  fieldString(src.Fields, "problem_text"),
		"skeleton": fieldString(src.Fields, "skeleton_code"),
	})
	return engine.Request{Prompt: prompt}, nil
}

// Validate 校验生成的函数体并拼接完整实现
func (s *ImplementationStrategy) Validate(src engine.Source, raw string) engine.Validation {
	body := strings.TrimSpace(raw)
	if body == "" {
		return engine.Validation{Verdict: engine.VerdictDiscard, Reason: "empty response"}
	}

	// 要求的是函数体，输出完整函数说明模型没有遵循格式
	if strings.HasPrefix(body, "def ") {
		return engine.Validation{Verdict: engine.VerdictRegenerate, Reason: "full function instead of body"}
	}
	if !bodyHasCode(body) {
		return engine.Validation{Verdict: engine.VerdictRegenerate, Reason: "no actual code in body"}
	}

	skeleton := fieldString(src.Fields, "skeleton_code")
	full := combineSkeletonAndBody(skeleton, body)

	if !validPythonSyntax(full) {
		return engine.Validation{Verdict: engine.VerdictDiscard, Reason: "invalid syntax after combining"}
	}

	return engine.Validation{
		Verdict: engine.VerdictAccept,
		Text:    full,
		Fields: map[string]any{
			"code": full,
		},
	}
}

// bodyHasCode 判断函数体是否包含实际代码（忽略空行与注释）
func bodyHasCode(body string) bool {
	for _, line := range strings.Split(body, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped != "" && !strings.HasPrefix(stripped, "#") {
			return true
		}
	}
	return false
}

// combineSkeletonAndBody 拼接骨架与函数体
//
// 非空行不足 4 空格缩进时补齐，空行原样保留。
func combineSkeletonAndBody(skeleton, body string) string {
	skeleton = strings.TrimRight(skeleton, " \t\n")

	lines := strings.Split(body, "\n")
	indented := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) != "" && !strings.HasPrefix(line, "    ") {
			indented = append(indented, "    "+strings.TrimLeft(line, " \t"))
		} else {
			indented = append(indented, line)
		}
	}

	return skeleton + "\n" + strings.Join(indented, "\n")
}
