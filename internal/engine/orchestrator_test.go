package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStrategy 可编程的阶段策略桩
type stubStrategy struct {
	validate func(src Source, raw string) Validation
}

func (s *stubStrategy) Stage() string { return "stub" }

func (s *stubStrategy) BuildRequest(src Source) (Request, error) {
	return Request{Prompt: src.Key}, nil
}

func (s *stubStrategy) Validate(src Source, raw string) Validation {
	if s.validate != nil {
		return s.validate(src, raw)
	}
	return acceptAll(src, raw)
}

// acceptAll 非空即接受
func acceptAll(_ Source, raw string) Validation {
	if raw == "" {
		return Validation{Verdict: VerdictDiscard, Reason: "empty"}
	}
	return Validation{Verdict: VerdictAccept, Text: raw, Fields: map[string]any{"text": raw}}
}

// newTestOrchestrator 装配测试编排器，退避不真正等待
func newTestOrchestrator(t *testing.T, completer Completer, strategy Strategy, opts Options) (*Orchestrator, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenStore(dir, nil)
	require.NoError(t, err)

	g := NewGateway(completer, GatewayConfig{MaxConcurrent: opts.BatchSize, MaxRetries: 1}, nil)
	g.sleep = func(context.Context, time.Duration) error { return nil }

	return NewOrchestrator(g, store, strategy, opts), dir
}

// sequenceCompleter 按调用序号返回响应
func sequenceCompleter(fn func(call int, prompt string) (string, error)) *scriptedCompleter {
	return &scriptedCompleter{fn: fn}
}

func TestOrchestratorSamplingBatchSizes(t *testing.T) {
	completer := sequenceCompleter(func(call int, _ string) (string, error) {
		return fmt.Sprintf("problem-%d", call), nil
	})

	var batchIssued []int
	prevIssued := 0
	orch, dir := newTestOrchestrator(t, completer, &stubStrategy{}, Options{
		BatchSize:      2,
		FlushThreshold: 50,
		MaxAttempts:    3,
		Progress: func(_ context.Context, p Progress) {
			batchIssued = append(batchIssued, p.Summary.Issued-prevIssued)
			prevIssued = p.Summary.Issued
		},
	})

	result, err := orch.Run(context.Background(), RunInput{TargetCount: 5})
	require.NoError(t, err)

	// 5 个目标、并发 2 -> 批次大小 2,2,1
	assert.Equal(t, []int{2, 2, 1}, batchIssued)
	assert.Equal(t, 5, result.Summary.Issued)
	assert.Equal(t, 5, result.Summary.Accepted)
	assert.Equal(t, 3, result.Summary.Batches)

	// 运行结束后全部落盘
	lines := readLines(t, filepath.Join(dir, identifierFileName))
	assert.Len(t, lines, 5)
}

func TestOrchestratorDuplicatesNotReissued(t *testing.T) {
	// 4 个请求中有 2 个返回同一正文
	completer := sequenceCompleter(func(call int, _ string) (string, error) {
		if call <= 2 {
			return "same text", nil
		}
		return fmt.Sprintf("unique-%d", call), nil
	})

	orch, _ := newTestOrchestrator(t, completer, &stubStrategy{}, Options{
		BatchSize:   4,
		MaxAttempts: 3,
	})

	result, err := orch.Run(context.Background(), RunInput{TargetCount: 4})
	require.NoError(t, err)

	// 重复不补发请求：接受 3、重复 1、单批完成
	assert.Equal(t, 3, result.Summary.Accepted)
	assert.Equal(t, 1, result.Summary.Duplicates)
	assert.Equal(t, 1, result.Summary.Batches)
	assert.Equal(t, 4, completer.callCount())
}

func TestOrchestratorSemanticRetrySucceeds(t *testing.T) {
	completer := sequenceCompleter(func(call int, _ string) (string, error) {
		return fmt.Sprintf("r%d", call), nil
	})

	strategy := &stubStrategy{validate: func(src Source, raw string) Validation {
		// 前两次提交格式不合规，第三次通过
		if raw != "r3" {
			return Validation{Verdict: VerdictRegenerate, Reason: "malformed"}
		}
		return Validation{Verdict: VerdictAccept, Text: raw, Fields: map[string]any{"text": raw}}
	}}

	orch, _ := newTestOrchestrator(t, completer, strategy, Options{
		BatchSize:   2,
		MaxAttempts: 3,
	})

	result, err := orch.Run(context.Background(), RunInput{
		Sources: []Source{{Key: "task-a"}},
	})
	require.NoError(t, err)

	require.Len(t, result.Accepted, 1)
	assert.Equal(t, 2, result.Accepted[0].Retries)
	assert.Equal(t, 2, result.Summary.Retried)
	assert.Equal(t, 1, result.Summary.Accepted)
	assert.Equal(t, 0, result.Summary.FailedValidation)
	// 重试轮都在同一批次屏障内
	assert.Equal(t, 1, result.Summary.Batches)
}

func TestOrchestratorRetryExhaustion(t *testing.T) {
	completer := sequenceCompleter(func(call int, _ string) (string, error) {
		return fmt.Sprintf("r%d", call), nil
	})

	strategy := &stubStrategy{validate: func(Source, string) Validation {
		return Validation{Verdict: VerdictRegenerate, Reason: "always malformed"}
	}}

	orch, _ := newTestOrchestrator(t, completer, strategy, Options{
		BatchSize:   1,
		MaxAttempts: 3,
	})

	result, err := orch.Run(context.Background(), RunInput{
		Sources: []Source{{Key: "task-a"}},
	})
	require.NoError(t, err)

	// 恰好 MaxAttempts 次提交后永久失败
	assert.Equal(t, 3, completer.callCount())
	assert.Equal(t, 0, result.Summary.Accepted)
	assert.Equal(t, 1, result.Summary.FailedValidation)
	assert.Equal(t, 2, result.Summary.Retried)
}

func TestOrchestratorDiscardIsNotRetried(t *testing.T) {
	completer := sequenceCompleter(func(int, string) (string, error) {
		return "   ", nil
	})

	strategy := &stubStrategy{validate: func(Source, string) Validation {
		return Validation{Verdict: VerdictDiscard, Reason: "empty"}
	}}

	orch, _ := newTestOrchestrator(t, completer, strategy, Options{
		BatchSize:   2,
		MaxAttempts: 3,
	})

	result, err := orch.Run(context.Background(), RunInput{
		Sources: []Source{{Key: "a"}, {Key: "b"}},
	})
	require.NoError(t, err)

	// 丢弃不消耗重试轮
	assert.Equal(t, 2, completer.callCount())
	assert.Equal(t, 2, result.Summary.Discarded)
	assert.Equal(t, 0, result.Summary.Retried)
}

func TestOrchestratorDedupAcrossRuns(t *testing.T) {
	responses := []string{"alpha", "beta", "gamma"}
	makeCompleter := func() *scriptedCompleter {
		return sequenceCompleter(func(call int, _ string) (string, error) {
			return responses[(call-1)%len(responses)], nil
		})
	}

	dir := t.TempDir()
	run := func() *RunResult {
		store, err := OpenStore(dir, nil)
		require.NoError(t, err)
		g := NewGateway(makeCompleter(), GatewayConfig{MaxConcurrent: 3, MaxRetries: 1}, nil)
		g.sleep = func(context.Context, time.Duration) error { return nil }
		orch := NewOrchestrator(g, store, &stubStrategy{}, Options{BatchSize: 3, MaxAttempts: 3})

		result, err := orch.Run(context.Background(), RunInput{TargetCount: 3})
		require.NoError(t, err)
		return result
	}

	first := run()
	assert.Equal(t, 3, first.Summary.Accepted)

	// 幂等重放：同样的输出在第二次运行里全部判重
	second := run()
	assert.Equal(t, 0, second.Summary.Accepted)
	assert.Equal(t, 3, second.Summary.Duplicates)

	lines := readLines(t, filepath.Join(dir, identifierFileName))
	assert.Len(t, lines, 3)
}

func TestOrchestratorTransportFailureIsolated(t *testing.T) {
	completer := sequenceCompleter(func(_ int, prompt string) (string, error) {
		if prompt == "bad" {
			return "", fmt.Errorf("connection refused")
		}
		return "echo:" + prompt, nil
	})

	orch, _ := newTestOrchestrator(t, completer, &stubStrategy{}, Options{
		BatchSize:   3,
		MaxAttempts: 3,
	})

	result, err := orch.Run(context.Background(), RunInput{
		Sources: []Source{{Key: "a"}, {Key: "bad"}, {Key: "c"}},
	})
	require.NoError(t, err)

	// 单条传输失败不拖垮批次
	assert.Equal(t, 2, result.Summary.Accepted)
	assert.Equal(t, 1, result.Summary.FailedTransport)
}

func TestOrchestratorCancellationAtBatchBarrier(t *testing.T) {
	completer := sequenceCompleter(func(call int, _ string) (string, error) {
		return fmt.Sprintf("text-%d", call), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	orch, dir := newTestOrchestrator(t, completer, &stubStrategy{}, Options{
		BatchSize:   2,
		MaxAttempts: 3,
		Progress: func(context.Context, Progress) {
			// 第一批完成后请求取消
			cancel()
		},
	})

	result, err := orch.Run(ctx, RunInput{TargetCount: 6})
	require.Error(t, err)

	// 只跑了一个批次，已接受的产物在退出前落盘
	assert.Equal(t, 1, result.Summary.Batches)
	assert.Equal(t, 2, result.Summary.Accepted)
	lines := readLines(t, filepath.Join(dir, identifierFileName))
	assert.Len(t, lines, 2)
}

func TestOrchestratorFlushThreshold(t *testing.T) {
	completer := sequenceCompleter(func(call int, _ string) (string, error) {
		return fmt.Sprintf("text-%d", call), nil
	})

	var persistedAtBatch []int
	orch, dir := newTestOrchestrator(t, completer, &stubStrategy{}, Options{
		BatchSize:      2,
		FlushThreshold: 2,
		MaxAttempts:    3,
	})
	orch.opts.Progress = func(_ context.Context, p Progress) {
		persistedAtBatch = append(persistedAtBatch, orch.store.Len())
	}

	_, err := orch.Run(context.Background(), RunInput{TargetCount: 5})
	require.NoError(t, err)

	// 每达到阈值就落盘，结束时写剩余
	assert.Equal(t, []int{2, 4, 4}, persistedAtBatch)
	lines := readLines(t, filepath.Join(dir, identifierFileName))
	assert.Len(t, lines, 5)
}

func TestOrchestratorInFlightDedupWithinRun(t *testing.T) {
	// 阈值未触发时，重复判定要覆盖尚未落盘的缓冲
	completer := sequenceCompleter(func(call int, _ string) (string, error) {
		if call%2 == 0 {
			return "repeat", nil
		}
		return fmt.Sprintf("text-%d", call), nil
	})

	orch, _ := newTestOrchestrator(t, completer, &stubStrategy{}, Options{
		BatchSize:      2,
		FlushThreshold: 100,
		MaxAttempts:    3,
	})

	result, err := orch.Run(context.Background(), RunInput{TargetCount: 6})
	require.NoError(t, err)

	assert.Equal(t, 4, result.Summary.Accepted)
	assert.Equal(t, 2, result.Summary.Duplicates)
}
