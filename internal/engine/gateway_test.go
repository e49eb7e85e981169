package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedCompleter 按脚本返回结果的补全桩
type scriptedCompleter struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, prompt string) (string, error)

	// 并发观测
	inFlight    int64
	maxInFlight int64
}

func (c *scriptedCompleter) Complete(_ context.Context, prompt string, _ SamplingParams) (string, error) {
	cur := atomic.AddInt64(&c.inFlight, 1)
	for {
		max := atomic.LoadInt64(&c.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt64(&c.maxInFlight, max, cur) {
			break
		}
	}
	// 给并发请求一个重叠窗口
	time.Sleep(5 * time.Millisecond)
	defer atomic.AddInt64(&c.inFlight, -1)

	c.mu.Lock()
	c.calls++
	call := c.calls
	fn := c.fn
	c.mu.Unlock()

	return fn(call, prompt)
}

func (c *scriptedCompleter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// noSleep 记录退避序列但不真正等待
func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestBackoffDelay(t *testing.T) {
	// 2^n 秒基础延迟叠加 0.1*(n+1) 秒抖动
	assert.Equal(t, 1100*time.Millisecond, backoffDelay(0))
	assert.Equal(t, 2200*time.Millisecond, backoffDelay(1))
	assert.Equal(t, 4300*time.Millisecond, backoffDelay(2))
}

func TestGatewaySubmitRetriesTransportErrors(t *testing.T) {
	completer := &scriptedCompleter{fn: func(call int, _ string) (string, error) {
		if call < 3 {
			return "", fmt.Errorf("connection reset")
		}
		return "ok", nil
	}}

	g := NewGateway(completer, GatewayConfig{MaxConcurrent: 1, MaxRetries: 3}, nil)
	var delays []time.Duration
	g.sleep = noSleep(&delays)

	text, err := g.Submit(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 3, completer.callCount())
	// 两次重试，退避逐次加倍
	assert.Equal(t, []time.Duration{1100 * time.Millisecond, 2200 * time.Millisecond}, delays)
}

func TestGatewaySubmitExhaustsRetries(t *testing.T) {
	completer := &scriptedCompleter{fn: func(int, string) (string, error) {
		return "", fmt.Errorf("upstream unavailable")
	}}

	g := NewGateway(completer, GatewayConfig{MaxConcurrent: 1, MaxRetries: 2}, nil)
	var delays []time.Duration
	g.sleep = noSleep(&delays)

	_, err := g.Submit(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	// 首次 + 2 次重试
	assert.Equal(t, 3, completer.callCount())
}

func TestGatewaySubmitBatchPreservesOrder(t *testing.T) {
	completer := &scriptedCompleter{fn: func(_ int, prompt string) (string, error) {
		if prompt == "bad" {
			return "", fmt.Errorf("boom")
		}
		return "echo:" + prompt, nil
	}}

	g := NewGateway(completer, GatewayConfig{MaxConcurrent: 4, MaxRetries: 1}, nil)
	var delays []time.Duration
	g.sleep = noSleep(&delays)

	reqs := []Request{{Prompt: "a"}, {Prompt: "bad"}, {Prompt: "c"}}
	results := g.SubmitBatch(context.Background(), reqs)

	require.Len(t, results, 3)
	assert.Equal(t, "echo:a", results[0].Text)
	// 单条失败不影响其余条目
	assert.Error(t, results[1].Err)
	assert.Equal(t, "echo:c", results[2].Text)
}

func TestGatewayConcurrencyBounded(t *testing.T) {
	completer := &scriptedCompleter{fn: func(_ int, prompt string) (string, error) {
		return prompt, nil
	}}

	g := NewGateway(completer, GatewayConfig{MaxConcurrent: 2, MaxRetries: 1}, nil)

	reqs := make([]Request, 8)
	for i := range reqs {
		reqs[i] = Request{Prompt: fmt.Sprintf("p%d", i)}
	}
	g.SubmitBatch(context.Background(), reqs)

	assert.LessOrEqual(t, atomic.LoadInt64(&completer.maxInFlight), int64(2))
	assert.Equal(t, 8, completer.callCount())
}

func TestGatewaySubmitCancelledContext(t *testing.T) {
	completer := &scriptedCompleter{fn: func(int, string) (string, error) {
		return "", fmt.Errorf("should retry")
	}}

	g := NewGateway(completer, GatewayConfig{MaxConcurrent: 1, MaxRetries: 3}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Submit(ctx, Request{Prompt: "p"})
	require.Error(t, err)
}
