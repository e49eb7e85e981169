package engine

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"evocode-datagen/pkg/errors"
	"evocode-datagen/pkg/logger"
)

// Completer 远端补全端口，由 LLM 基础设施层实现
type Completer interface {
	Complete(ctx context.Context, prompt string, params SamplingParams) (string, error)
}

// GatewayConfig 请求网关配置
type GatewayConfig struct {
	// MaxConcurrent 同时在途的请求上限
	MaxConcurrent int
	// MaxRetries 单个请求的传输层重试上限（不含首次）
	MaxRetries int
}

// Gateway 请求网关
//
// 用加权信号量限制在途请求数，对传输层错误做指数退避重试。
// 传输重试对上层完全透明，与语义重试互不相干。
type Gateway struct {
	completer  Completer
	sem        *semaphore.Weighted
	maxRetries int
	log        *slog.Logger

	// sleep 可注入以便测试退避序列
	sleep func(ctx context.Context, d time.Duration) error
}

// RawResult 单条请求的原始结果
type RawResult struct {
	Text string
	Err  error
}

// NewGateway 创建请求网关
func NewGateway(completer Completer, cfg GatewayConfig, log *slog.Logger) *Gateway {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if log == nil {
		log = logger.Default()
	}
	return &Gateway{
		completer:  completer,
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		maxRetries: cfg.MaxRetries,
		log:        log,
		sleep:      sleepContext,
	}
}

// Submit 提交单条请求
//
// 阻塞获取并发配额后调用远端，传输错误按指数退避重试，
// 重试耗尽返回 CodeLLMCallFailed 错误。
func (g *Gateway) Submit(ctx context.Context, req Request) (string, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", errors.Wrap(err, errors.CodeLLMCallFailed, "acquire concurrency slot")
	}
	defer g.sem.Release(1)

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt - 1)
			g.log.Warn("retrying llm call",
				"attempt", attempt,
				"delay", delay.String(),
				"error", lastErr,
			)
			if err := g.sleep(ctx, delay); err != nil {
				return "", errors.Wrap(err, errors.CodeLLMCallFailed, "backoff interrupted")
			}
		}

		text, err := g.completer.Complete(ctx, req.Prompt, req.Params)
		if err == nil {
			return text, nil
		}
		lastErr = err

		// 上下文取消不再重试
		if ctx.Err() != nil {
			break
		}
	}

	return "", errors.Wrap(lastErr, errors.CodeLLMCallFailed, "llm call exhausted retries")
}

// SubmitBatch 并发提交一批请求
//
// 结果与输入同序；单条失败不影响其余条目，调用方按条目检查 Err。
func (g *Gateway) SubmitBatch(ctx context.Context, reqs []Request) []RawResult {
	results := make([]RawResult, len(reqs))

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req Request) {
			defer wg.Done()
			text, err := g.Submit(ctx, req)
			results[i] = RawResult{Text: text, Err: err}
		}(i, req)
	}
	wg.Wait()

	return results
}

// backoffDelay 计算第 attempt 次重试前的等待时间
//
// 基础延迟 2^attempt 秒，叠加 0.1*(attempt+1) 秒的固定抖动。
func backoffDelay(attempt int) time.Duration {
	base := math.Pow(2, float64(attempt))
	jitter := 0.1 * float64(attempt+1)
	return time.Duration((base + jitter) * float64(time.Second))
}

// sleepContext 可被上下文取消的休眠
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
