package datagen

import "strings"

// 各阶段默认提示词模板，可被配置中的 datagen.stages.<stage>.prompts 覆盖。
const (
	// defaultProblemFIMPrefix FIM 模式的前缀，补全位置为函数名
	defaultProblemFIMPrefix = "This is an algorithm function.\n\ndef "
	// defaultProblemFIMSuffix FIM 模式的后缀
	defaultProblemFIMSuffix = "():\n"
	// defaultProblemL2R L2R 模式的引导前缀
	defaultProblemL2R = "This is an algorithm function.\n\ndef "

	// defaultSkeletonTemplate 骨架生成模板
	defaultSkeletonTemplate = `Write a Python function skeleton for the following algorithm problem.
The skeleton must contain the function signature with type hints and a
Google-style docstring describing arguments and return value. Do not
implement the body and do not output anything after the docstring.

Problem:
{{problem}}

Function skeleton:
`

	// defaultImplementationTemplate 实现生成模板，产出函数体（不含签名）
	defaultImplementationTemplate = `Complete the following Python function. Output only the function body,
indented with four spaces. Do not repeat the function signature or the
docstring.

Problem:
{{problem}}

Function skeleton:
{{skeleton}}

Function body:
`

	// defaultRatingTemplate 评分模板，输出格式须与解析器匹配
	defaultRatingTemplate = `Review the following algorithm problem and its Python implementation.
Rate each dimension on a scale of 1 to 5 and give a short summary.
Answer strictly in this format:

Problem Design Score: <1-5>
Function Definition Score: <1-5>
Algorithm Correctness Score: <1-5>
Algorithm Efficiency Score: <1-5>
Code Readability Score: <1-5>
Summary: <one or two sentences>

Problem:
{{problem}}

Implementation:
{{code}}
`
)

// renderTemplate 替换模板中的 {{name}} 占位符
func renderTemplate(template string, vars map[string]string) string {
	out := template
	for name, val := range vars {
		out = strings.ReplaceAll(out, "{{"+name+"}}", strings.TrimSpace(val))
	}
	return out
}

// promptOr 从阶段提示词表取值，缺失时回退默认模板
func promptOr(prompts map[string]string, key, fallback string) string {
	if prompts != nil {
		if v, ok := prompts[key]; ok && v != "" {
			return v
		}
	}
	return fallback
}
