package datagen

import (
	"regexp"
	"strconv"
	"strings"

	"evocode-datagen/internal/engine"
)

// StageRating 评分阶段名
const StageRating = "rating"

// 评分范围
const (
	minScore = 1
	maxScore = 5
)

// scoreDimensions 评分维度，顺序即输出顺序
var scoreDimensions = []string{
	"problem_design",
	"function_definition",
	"correctness",
	"efficiency",
	"readability",
}

// ratingPatterns 各维度的解析正则，大小写不敏感
var ratingPatterns = map[string]*regexp.Regexp{
	"problem_design":      regexp.MustCompile(`(?is)Problem\s+Design\s+Score:\s*(\d+)`),
	"function_definition": regexp.MustCompile(`(?is)Function\s+Definition\s+Score:\s*(\d+)`),
	"correctness":         regexp.MustCompile(`(?is)Algorithm\s+Correctness\s+Score:\s*(\d+)`),
	"efficiency":          regexp.MustCompile(`(?is)Algorithm\s+Efficiency\s+Score:\s*(\d+)`),
	"readability":         regexp.MustCompile(`(?is)Code\s+Readability\s+Score:\s*(\d+)`),
}

// summaryRe 提取总结段落，到空行、分隔线或文本结尾为止
var summaryRe = regexp.MustCompile(`(?is)Summary:\s*(.+?)(?:\n\n|---|\z)`)

// RatingStrategy 实现质量评分策略
//
// 转换型阶段：对每条实现请求五个维度的评分与一句总结。
// 评分记录沿用实现的内容标识去重，同一实现只评一次。
// 解析失败或分数越界视为格式不合规，触发重新生成。
type RatingStrategy struct {
	prompts map[string]string
}

// NewRatingStrategy 创建评分策略
func NewRatingStrategy(prompts map[string]string) *RatingStrategy {
	return &RatingStrategy{prompts: prompts}
}

// Stage 阶段名
func (s *RatingStrategy) Stage() string { return StageRating }

// BuildRequest 渲染评分提示词
func (s *RatingStrategy) BuildRequest(src engine.Source) (engine.Request, error) {
	template := promptOr(s.prompts, "template", defaultRatingTemplate)
	prompt := renderTemplate(template, map[string]string{
		"problem": fieldString(src.Fields, "problem_text"),
		"code":    fieldString(src.Fields, "code"),
	})
	return engine.Request{Prompt: prompt}, nil
}

// Validate 解析并校验评分输出
func (s *RatingStrategy) Validate(_ engine.Source, raw string) engine.Validation {
	text := strings.TrimSpace(raw)
	if text == "" {
		return engine.Validation{Verdict: engine.VerdictDiscard, Reason: "empty response"}
	}

	scores, summary := parseRating(text)
	if !validScores(scores, summary) {
		return engine.Validation{Verdict: engine.VerdictRegenerate, Reason: "scores out of range or missing"}
	}

	ratings := make(map[string]any, len(scoreDimensions))
	for _, dim := range scoreDimensions {
		ratings[dim] = scores[dim]
	}

	return engine.Validation{
		Verdict: engine.VerdictAccept,
		Text:    text,
		Fields: map[string]any{
			"ratings":         ratings,
			"summary":         summary,
			"raw_rating_text": text,
		},
	}
}

// parseRating 从原始输出解析各维度分数与总结
//
// 解析不到的维度不会出现在返回的分数表里。
func parseRating(raw string) (map[string]int, string) {
	scores := make(map[string]int, len(scoreDimensions))
	for dim, re := range ratingPatterns {
		m := re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		scores[dim] = n
	}

	var summary string
	if m := summaryRe.FindStringSubmatch(raw); m != nil {
		summary = strings.TrimSpace(m[1])
	}
	return scores, summary
}

// validScores 校验五个维度齐全且在范围内，总结非空
func validScores(scores map[string]int, summary string) bool {
	for _, dim := range scoreDimensions {
		n, ok := scores[dim]
		if !ok {
			return false
		}
		if n < minScore || n > maxScore {
			return false
		}
	}
	return summary != ""
}
