package datagen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evocode-datagen/internal/config"
	"evocode-datagen/internal/engine"
	"evocode-datagen/pkg/errors"
)

// fakeCompleter 按提示词返回预设响应
type fakeCompleter struct {
	mu      sync.Mutex
	calls   int
	respond func(call int, prompt string) (string, error)
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string, _ engine.SamplingParams) (string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.respond(call, prompt)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		LLM: config.LLMConfig{
			DefaultProvider: "openai",
			Providers: map[string]config.ProviderConfig{
				"openai": {Model: "test-model", MaxRetries: 1},
			},
		},
		Datagen: config.DatagenConfig{
			DataDir:        t.TempDir(),
			MaxConcurrent:  2,
			FlushThreshold: 10,
			MaxAttempts:    3,
			Stages: map[string]config.StageConfig{
				"problem":        {NumSamples: 3, OutputDir: "problem"},
				"skeleton":       {OutputDir: "skeleton"},
				"implementation": {OutputDir: "implementation"},
				"rating":         {OutputDir: "rating"},
			},
		},
	}
}

func writeJSONL(t *testing.T, path string, lines []string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestServiceGenerateProblems(t *testing.T) {
	cfg := testConfig(t)
	completer := &fakeCompleter{respond: func(call int, _ string) (string, error) {
		return fmt.Sprintf("problem text %d", call), nil
	}}
	svc := NewService(cfg, completer, nil)

	result, err := svc.Run(context.Background(), RunOptions{Stage: StageProblem, Mode: ModeFIM})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Summary.Accepted)
	for _, a := range result.Accepted {
		assert.Equal(t, "FIM", a.Fields["source"])
	}

	// 产物写入阶段输出目录
	_, statErr := os.Stat(filepath.Join(cfg.Datagen.DataDir, "problem", "results.jsonl"))
	assert.NoError(t, statErr)
}

func TestServiceGenerateSkeletonsReadsUpstream(t *testing.T) {
	cfg := testConfig(t)
	writeJSONL(t, filepath.Join(cfg.Datagen.DataDir, "problem", "results.jsonl"), []string{
		`{"uid":"u1","problem_description":"Count the pairs.","source":"FIM"}`,
		`{"uid":"u2","problem_description":"Sum the array.","source":"L2R"}`,
		`{"uid":"u3","source":"FIM"}`,
	})

	completer := &fakeCompleter{respond: func(call int, _ string) (string, error) {
		return fmt.Sprintf("def func_%d(x):\n    \"\"\"Doc.\"\"\"", call), nil
	}}
	svc := NewService(cfg, completer, nil)

	result, err := svc.Run(context.Background(), RunOptions{Stage: StageSkeleton})
	require.NoError(t, err)

	// 缺题面的记录被跳过
	assert.Equal(t, 2, result.Summary.Issued)
	assert.Equal(t, 2, result.Summary.Accepted)

	// 上游元数据随产物落盘
	for _, a := range result.Accepted {
		assert.NotEmpty(t, a.Fields["problem_text"])
		assert.NotEmpty(t, a.Fields["source"])
	}
}

func TestServiceImplementationsSkipInvalidSkeletons(t *testing.T) {
	cfg := testConfig(t)
	writeJSONL(t, filepath.Join(cfg.Datagen.DataDir, "skeleton", "results.jsonl"), []string{
		`{"uid":"s1","skeleton_code":"def good(x):\n    \"\"\"Doc.\"\"\"","function_name":"good","problem_text":"p1","source":"FIM","valid":true}`,
		`{"uid":"s2","skeleton_code":"def broken(:","function_name":"broken","problem_text":"p2","source":"FIM","valid":false}`,
	})

	completer := &fakeCompleter{respond: func(int, string) (string, error) {
		return "return x", nil
	}}
	svc := NewService(cfg, completer, nil)

	result, err := svc.Run(context.Background(), RunOptions{Stage: StageImplementation})
	require.NoError(t, err)

	// valid=false 的骨架不参与生成
	assert.Equal(t, 1, result.Summary.Issued)
	assert.Equal(t, 1, result.Summary.Accepted)
}

func TestServiceRatingsReuseImplementationUID(t *testing.T) {
	cfg := testConfig(t)
	writeJSONL(t, filepath.Join(cfg.Datagen.DataDir, "implementation", "results.jsonl"), []string{
		`{"uid":"feed000011112222","code":"def f(x):\n    return x","function_name":"f","problem_text":"p","source":"FIM"}`,
	})

	completer := &fakeCompleter{respond: func(int, string) (string, error) {
		return wellFormedRating, nil
	}}
	svc := NewService(cfg, completer, nil)

	result, err := svc.Run(context.Background(), RunOptions{Stage: StageRating})
	require.NoError(t, err)

	require.Len(t, result.Accepted, 1)
	assert.Equal(t, "feed000011112222", result.Accepted[0].UID)

	// 重跑时同一实现被判重，不再请求
	result2, err := svc.Run(context.Background(), RunOptions{Stage: StageRating})
	require.NoError(t, err)
	assert.Equal(t, 0, result2.Summary.Accepted)
	assert.Equal(t, 1, result2.Summary.Duplicates)
}

func TestServiceUnknownStage(t *testing.T) {
	svc := NewService(testConfig(t), &fakeCompleter{}, nil)

	_, err := svc.Run(context.Background(), RunOptions{Stage: "bogus"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeStageNotFound, errors.AsAppError(err).Code)
}

func TestServiceMissingInput(t *testing.T) {
	svc := NewService(testConfig(t), &fakeCompleter{}, nil)

	_, err := svc.Run(context.Background(), RunOptions{Stage: StageSkeleton})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInputNotFound, errors.AsAppError(err).Code)
}

func TestLimitSources(t *testing.T) {
	sources := make([]engine.Source, 5)

	assert.Len(t, limitSources(sources, 0, 0), 5)
	assert.Len(t, limitSources(sources, 2, 0), 2)
	assert.Len(t, limitSources(sources, 0, 3), 3)
	// 显式参数优先于配置
	assert.Len(t, limitSources(sources, 4, 3), 4)
	assert.Len(t, limitSources(sources, 10, 0), 5)
}
