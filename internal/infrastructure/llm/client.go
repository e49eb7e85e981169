package llm

import (
	"context"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"evocode-datagen/internal/config"
	"evocode-datagen/internal/engine"
	"evocode-datagen/pkg/errors"
	"evocode-datagen/pkg/metrics"
)

// Client 单个提供商的补全客户端，实现引擎的 Completer 端口
//
// 每次请求的采样参数通过 Eino 的请求级选项下发，
// 不修改工厂缓存的 ChatModel。
type Client struct {
	factory  *EinoFactory
	provider string
	model    string
}

// NewClient 创建补全客户端
func NewClient(factory *EinoFactory, cfg *config.Config) *Client {
	provider := cfg.LLM.DefaultProvider
	modelName := ""
	if p, ok := cfg.LLM.Providers[provider]; ok {
		modelName = p.Model
	}
	return &Client{factory: factory, provider: provider, model: modelName}
}

// Complete 执行一次补全请求
func (c *Client) Complete(ctx context.Context, prompt string, params engine.SamplingParams) (string, error) {
	chatModel, err := c.factory.Get(ctx, c.provider)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeLLMProviderError, "get chat model")
	}

	opts := buildModelOptions(params)
	messages := []*schema.Message{schema.UserMessage(prompt)}

	start := time.Now()
	out, err := chatModel.Generate(ctx, messages, opts...)
	metrics.LLMCallDuration.WithLabelValues(c.provider, c.model).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.LLMCallTotal.WithLabelValues(c.provider, c.model, "error").Inc()
		return "", errors.Wrap(err, errors.CodeLLMCallFailed, "generate completion")
	}
	metrics.LLMCallTotal.WithLabelValues(c.provider, c.model, "ok").Inc()

	if out == nil {
		return "", errors.New(errors.CodeLLMCallFailed, "empty completion response")
	}
	return out.Content, nil
}

// buildModelOptions 把采样参数转换为请求级模型选项
func buildModelOptions(params engine.SamplingParams) []model.Option {
	var opts []model.Option
	if params.Temperature > 0 {
		opts = append(opts, model.WithTemperature(float32(params.Temperature)))
	}
	if params.TopP > 0 {
		opts = append(opts, model.WithTopP(float32(params.TopP)))
	}
	if params.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(params.MaxTokens))
	}
	if len(params.Stop) > 0 {
		opts = append(opts, model.WithStop(params.Stop))
	}
	return opts
}
