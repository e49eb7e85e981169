package datagen

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"evocode-datagen/internal/config"
	"evocode-datagen/internal/engine"
	"evocode-datagen/pkg/errors"
	"evocode-datagen/pkg/logger"
)

// Service 数据生成应用服务
//
// 负责把配置、远端补全端口与生成引擎装配成一次可执行的运行：
// 解析阶段配置、加载上游记录、打开产物存储、驱动编排器。
type Service struct {
	cfg       *config.Config
	completer engine.Completer
	log       *slog.Logger
}

// NewService 创建数据生成服务
func NewService(cfg *config.Config, completer engine.Completer, log *slog.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{cfg: cfg, completer: completer, log: log}
}

// RunOptions 一次运行的选项
type RunOptions struct {
	// Stage 目标阶段：problem / skeleton / implementation / rating
	Stage string
	// Mode 出题阶段的生成模式（FIM / L2R），其余阶段忽略
	Mode string
	// NumSamples 覆盖配置中的样本数，0 表示使用配置值
	NumSamples int
	// Progress 可选的进度回调
	Progress engine.ProgressFunc
}

// Run 执行指定阶段的一次生成运行
func (s *Service) Run(ctx context.Context, opts RunOptions) (*engine.RunResult, error) {
	switch opts.Stage {
	case StageProblem:
		return s.GenerateProblems(ctx, opts)
	case StageSkeleton:
		return s.GenerateSkeletons(ctx, opts)
	case StageImplementation:
		return s.GenerateImplementations(ctx, opts)
	case StageRating:
		return s.GenerateRatings(ctx, opts)
	default:
		return nil, errors.ErrStageNotFound.WithDetail(fmt.Sprintf("unknown stage %q", opts.Stage))
	}
}

// GenerateProblems 生成算法题面（采样型运行）
func (s *Service) GenerateProblems(ctx context.Context, opts RunOptions) (*engine.RunResult, error) {
	stageCfg := s.stageConfig(StageProblem)
	strategy := NewProblemStrategy(opts.Mode, stageCfg.Prompts)

	target := opts.NumSamples
	if target <= 0 {
		target = stageCfg.NumSamples
	}
	if target <= 0 {
		return nil, errors.ErrInvalidParam.WithDetail("num_samples must be positive")
	}

	orch, err := s.buildOrchestrator(StageProblem, stageCfg, strategy, opts.Progress)
	if err != nil {
		return nil, err
	}

	return orch.Run(ctx, engine.RunInput{
		TargetCount: target,
		Base: engine.Source{
			Fields: map[string]any{"source": strategy.Mode()},
		},
	})
}

// GenerateSkeletons 从题面生成函数骨架（转换型运行）
func (s *Service) GenerateSkeletons(ctx context.Context, opts RunOptions) (*engine.RunResult, error) {
	stageCfg := s.stageConfig(StageSkeleton)

	records, err := s.loadInput(stageCfg, StageProblem)
	if err != nil {
		return nil, err
	}

	sources := make([]engine.Source, 0, len(records))
	for _, rec := range records {
		problem := fieldString(rec, "problem_description")
		if problem == "" {
			continue
		}
		sources = append(sources, engine.Source{
			Fields: map[string]any{
				"source":       sourceOrUnknown(rec),
				"problem_text": problem,
			},
		})
	}
	sources = limitSources(sources, opts.NumSamples, stageCfg.NumSamples)

	orch, err := s.buildOrchestrator(StageSkeleton, stageCfg, NewSkeletonStrategy(stageCfg.Prompts), opts.Progress)
	if err != nil {
		return nil, err
	}
	return orch.Run(ctx, engine.RunInput{Sources: sources})
}

// GenerateImplementations 从骨架生成完整实现（转换型运行）
//
// 语法不合法的骨架（valid=false）不参与实现生成。
func (s *Service) GenerateImplementations(ctx context.Context, opts RunOptions) (*engine.RunResult, error) {
	stageCfg := s.stageConfig(StageImplementation)

	records, err := s.loadInput(stageCfg, StageSkeleton)
	if err != nil {
		return nil, err
	}

	sources := make([]engine.Source, 0, len(records))
	for _, rec := range records {
		if !fieldBool(rec, "valid", true) {
			continue
		}
		skeleton := fieldString(rec, "skeleton_code")
		if skeleton == "" {
			continue
		}
		sources = append(sources, engine.Source{
			Key: fieldString(rec, "function_name"),
			Fields: map[string]any{
				"source":        sourceOrUnknown(rec),
				"problem_text":  fieldString(rec, "problem_text"),
				"skeleton_code": skeleton,
				"function_name": fieldString(rec, "function_name"),
			},
		})
	}
	sources = limitSources(sources, opts.NumSamples, stageCfg.NumSamples)

	orch, err := s.buildOrchestrator(StageImplementation, stageCfg, NewImplementationStrategy(stageCfg.Prompts), opts.Progress)
	if err != nil {
		return nil, err
	}
	return orch.Run(ctx, engine.RunInput{Sources: sources})
}

// GenerateRatings 为实现生成质量评分（转换型运行）
//
// 评分沿用实现的内容标识，已评过的实现会被去重跳过。
func (s *Service) GenerateRatings(ctx context.Context, opts RunOptions) (*engine.RunResult, error) {
	stageCfg := s.stageConfig(StageRating)

	records, err := s.loadInput(stageCfg, StageImplementation)
	if err != nil {
		return nil, err
	}

	sources := make([]engine.Source, 0, len(records))
	for _, rec := range records {
		code := fieldString(rec, "code")
		uid := fieldString(rec, "uid")
		if code == "" || uid == "" {
			continue
		}
		sources = append(sources, engine.Source{
			Key: fieldString(rec, "function_name"),
			UID: uid,
			Fields: map[string]any{
				"source":        sourceOrUnknown(rec),
				"problem_text":  fieldString(rec, "problem_text"),
				"code":          code,
				"function_name": fieldString(rec, "function_name"),
			},
		})
	}
	sources = limitSources(sources, opts.NumSamples, stageCfg.NumSamples)

	orch, err := s.buildOrchestrator(StageRating, stageCfg, NewRatingStrategy(stageCfg.Prompts), opts.Progress)
	if err != nil {
		return nil, err
	}
	return orch.Run(ctx, engine.RunInput{Sources: sources})
}

// stageConfig 取阶段配置，缺失时返回零值（各字段走默认）
func (s *Service) stageConfig(stage string) config.StageConfig {
	if cfg, ok := s.cfg.Datagen.Stage(stage); ok {
		return cfg
	}
	return config.StageConfig{}
}

// outputDir 解析阶段输出目录
func (s *Service) outputDir(stage string, stageCfg config.StageConfig) string {
	dir := stageCfg.OutputDir
	if dir == "" {
		dir = stage
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(s.cfg.Datagen.DataDir, dir)
}

// loadInput 加载上游阶段的结果文件
//
// 未显式配置 input_file 时默认读取上游阶段输出目录下的结果。
func (s *Service) loadInput(stageCfg config.StageConfig, upstream string) ([]map[string]any, error) {
	path := stageCfg.InputFile
	if path == "" {
		upCfg := s.stageConfig(upstream)
		path = filepath.Join(s.outputDir(upstream, upCfg), "results.jsonl")
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(s.cfg.Datagen.DataDir, path)
	}

	records, err := loadRecords(path, s.log)
	if err != nil {
		return nil, errors.ErrInputNotFound.WithDetail(path).WithError(err)
	}
	if len(records) == 0 {
		return nil, errors.ErrInputNotFound.WithDetail(fmt.Sprintf("no usable records in %s", path))
	}
	s.log.Info("input records loaded", "path", path, "count", len(records))
	return records, nil
}

// buildOrchestrator 装配一次运行所需的存储、网关与编排器
func (s *Service) buildOrchestrator(stage string, stageCfg config.StageConfig, strategy engine.Strategy, progress engine.ProgressFunc) (*engine.Orchestrator, error) {
	store, err := engine.OpenStore(s.outputDir(stage, stageCfg), s.log)
	if err != nil {
		return nil, err
	}

	maxRetries := 0
	if p, ok := s.cfg.LLM.Providers[s.cfg.LLM.DefaultProvider]; ok {
		maxRetries = p.MaxRetries
	}
	gateway := engine.NewGateway(s.completer, engine.GatewayConfig{
		MaxConcurrent: s.cfg.Datagen.MaxConcurrent,
		MaxRetries:    maxRetries,
	}, s.log)

	return engine.NewOrchestrator(gateway, store, strategy, engine.Options{
		BatchSize:      s.cfg.Datagen.MaxConcurrent,
		FlushThreshold: s.cfg.Datagen.FlushThreshold,
		MaxAttempts:    s.cfg.Datagen.MaxAttempts,
		Params:         samplingParams(stage, stageCfg),
		Progress:       progress,
		Logger:         s.log,
	}), nil
}

// samplingParams 按阶段配置组装采样参数，零值回退阶段默认
func samplingParams(stage string, stageCfg config.StageConfig) engine.SamplingParams {
	p := engine.SamplingParams{
		Temperature: stageCfg.Temperature,
		TopP:        stageCfg.TopP,
		MaxTokens:   stageCfg.MaxTokens,
		Stop:        stageCfg.Stop,
	}
	if p.Temperature == 0 {
		if stage == StageProblem {
			// 出题靠高温度拉开多样性
			p.Temperature = 1.0
		} else {
			p.Temperature = 0.7
		}
	}
	if p.TopP == 0 {
		p.TopP = 0.95
	}
	if p.MaxTokens == 0 {
		switch stage {
		case StageProblem:
			p.MaxTokens = 2048
		case StageSkeleton:
			p.MaxTokens = 512
		default:
			p.MaxTokens = 1024
		}
	}
	return p
}

// sourceOrUnknown 取上游记录的来源标记
func sourceOrUnknown(rec map[string]any) string {
	if v := fieldString(rec, "source"); v != "" {
		return v
	}
	return "UNKNOWN"
}

// limitSources 按显式参数或阶段配置截断输入
func limitSources(sources []engine.Source, override, configured int) []engine.Source {
	limit := override
	if limit <= 0 {
		limit = configured
	}
	if limit > 0 && limit < len(sources) {
		return sources[:limit]
	}
	return sources
}
