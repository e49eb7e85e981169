package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"evocode-datagen/pkg/errors"
	"evocode-datagen/pkg/logger"
	"evocode-datagen/pkg/metrics"
	"evocode-datagen/pkg/tracer"
)

// Options 编排器选项
type Options struct {
	// BatchSize 单批任务数，同时也是批内并发上限
	BatchSize int
	// FlushThreshold 待写缓冲达到该数量时落盘
	FlushThreshold int
	// MaxAttempts 单条任务的提交总次数上限（含首次）
	MaxAttempts int
	// Params 本次运行的采样参数
	Params SamplingParams
	// Progress 可选的批次进度回调
	Progress ProgressFunc
	Logger   *slog.Logger
}

// Orchestrator 生成编排器
//
// 以批为单位驱动一次运行：构造请求、并发提交、裁决分类、
// 批内重试、内容去重、增量落盘。批次之间存在屏障，
// 下一批在上一批（含其全部重试轮）完成前不会开始。
type Orchestrator struct {
	gateway  *Gateway
	store    *Store
	strategy Strategy
	opts     Options
	log      *slog.Logger
}

// NewOrchestrator 创建编排器
func NewOrchestrator(gateway *Gateway, store *Store, strategy Strategy, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.FlushThreshold <= 0 {
		opts.FlushThreshold = 50
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.With("stage", strategy.Stage())
	return &Orchestrator{
		gateway:  gateway,
		store:    store,
		strategy: strategy,
		opts:     opts,
		log:      log,
	}
}

// runState 单次运行的可变状态
type runState struct {
	summary  RunSummary
	accepted []Artifact
	// pending 待落盘的记录缓冲
	pending []Record
	// pendingUID 缓冲内标识集合，用于批内/批间的飞行中去重
	pendingUID map[string]struct{}
}

// Run 执行一次运行
//
// 采样型运行发起 TargetCount 个首次请求后结束；
// 转换型运行逐条消费 Sources。上下文取消在批次屏障处生效，
// 在途请求会正常完成并落盘。
func (o *Orchestrator) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	ctx, span := tracer.Start(ctx, "engine.Run",
		trace.WithAttributes(attribute.String("stage", o.strategy.Stage())),
	)
	defer span.End()

	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	st := &runState{pendingUID: make(map[string]struct{})}
	transform := len(in.Sources) > 0
	cursor := 0

	o.log.Info("run started",
		"transform", transform,
		"target", in.TargetCount,
		"sources", len(in.Sources),
		"batch_size", o.opts.BatchSize,
	)

	for {
		// 批次屏障处响应取消，不中断在途请求；已接受的产物先落盘
		if err := ctx.Err(); err != nil {
			if ferr := o.flush(st); ferr != nil {
				return o.abort(st, ferr)
			}
			return o.abort(st, errors.Wrap(err, errors.CodeRunAborted, "run cancelled"))
		}

		var batch []Source
		if transform {
			if cursor >= len(in.Sources) {
				break
			}
			end := cursor + o.opts.BatchSize
			if end > len(in.Sources) {
				end = len(in.Sources)
			}
			batch = in.Sources[cursor:end]
			cursor = end
		} else {
			// 剩余额度按已发起请求计，重复与失败不补发
			remaining := in.TargetCount - st.summary.Issued
			if remaining <= 0 {
				break
			}
			n := o.opts.BatchSize
			if n > remaining {
				n = remaining
			}
			batch = make([]Source, n)
			for i := range batch {
				batch[i] = in.Base
			}
		}

		st.summary.Batches++
		st.summary.Issued += len(batch)
		if err := o.runBatch(ctx, st, batch); err != nil {
			return o.abort(st, err)
		}

		if len(st.pending) >= o.opts.FlushThreshold {
			if err := o.flush(st); err != nil {
				return o.abort(st, err)
			}
		}

		if o.opts.Progress != nil {
			o.opts.Progress(ctx, Progress{
				Stage:   o.strategy.Stage(),
				Batch:   st.summary.Batches,
				Summary: st.summary,
			})
		}
	}

	// 运行结束时落盘剩余缓冲
	if err := o.flush(st); err != nil {
		return o.abort(st, err)
	}

	o.log.Info("run finished",
		"issued", st.summary.Issued,
		"accepted", st.summary.Accepted,
		"duplicates", st.summary.Duplicates,
		"retried", st.summary.Retried,
		"failed_validation", st.summary.FailedValidation,
		"failed_transport", st.summary.FailedTransport,
		"batches", st.summary.Batches,
	)

	return &RunResult{Accepted: st.accepted, Summary: st.summary}, nil
}

// runBatch 执行一个批次，含其全部重试轮
func (o *Orchestrator) runBatch(ctx context.Context, st *runState, batch []Source) error {
	start := time.Now()
	coord := NewCoordinator(o.opts.MaxAttempts)

	tasks := make([]Task, 0, len(batch))
	for _, src := range batch {
		tasks = append(tasks, Task{Source: src, Attempts: 0})
	}

	for len(tasks) > 0 {
		reqs := make([]Request, 0, len(tasks))
		live := make([]Task, 0, len(tasks))
		for _, t := range tasks {
			req, err := o.strategy.BuildRequest(t.Source)
			if err != nil {
				// 构造失败视为永久失败，不消耗远端配额
				st.summary.FailedValidation++
				metrics.ArtifactsFailed.WithLabelValues(o.strategy.Stage(), "validation").Inc()
				o.log.Warn("build request failed", "key", t.Source.Key, "error", err)
				continue
			}
			req.Params = o.opts.Params
			reqs = append(reqs, req)
			live = append(live, t)
		}
		if len(reqs) == 0 {
			break
		}

		results := o.gateway.SubmitBatch(ctx, reqs)
		for i, res := range results {
			task := live[i]
			task.Attempts++
			if task.Attempts > 1 {
				st.summary.Retried++
				metrics.ArtifactsRetried.WithLabelValues(o.strategy.Stage()).Inc()
			}
			if res.Err != nil {
				// 传输重试已在网关内耗尽，单条失败不拖垮批次
				st.summary.FailedTransport++
				metrics.ArtifactsFailed.WithLabelValues(o.strategy.Stage(), "transport").Inc()
				o.log.Warn("transport failure", "key", task.Source.Key, "error", res.Err)
				continue
			}
			o.classify(st, coord, task, res.Text)
		}

		tasks = coord.Drain()
	}

	failed := coord.Exhausted()
	if failed > 0 {
		st.summary.FailedValidation += failed
		metrics.ArtifactsFailed.WithLabelValues(o.strategy.Stage(), "validation").Add(float64(failed))
	}

	metrics.BatchDuration.WithLabelValues(o.strategy.Stage()).Observe(time.Since(start).Seconds())
	return nil
}

// classify 按裁决归类单条结果
func (o *Orchestrator) classify(st *runState, coord *Coordinator, task Task, raw string) {
	v := o.strategy.Validate(task.Source, raw)
	switch v.Verdict {
	case VerdictDiscard:
		st.summary.Discarded++
		o.log.Debug("artifact discarded", "key", task.Source.Key, "reason", v.Reason)

	case VerdictRegenerate:
		retrying := coord.Reject(task.Source, task.Attempts)
		o.log.Debug("artifact rejected",
			"key", task.Source.Key,
			"reason", v.Reason,
			"attempts", task.Attempts,
			"retrying", retrying,
		)

	case VerdictAccept:
		uid := task.Source.UID
		if uid == "" {
			uid = ComputeUID(v.Text)
		}
		if o.store.Contains(uid) {
			st.summary.Duplicates++
			metrics.ArtifactsDuplicate.WithLabelValues(o.strategy.Stage()).Inc()
			return
		}
		if _, ok := st.pendingUID[uid]; ok {
			st.summary.Duplicates++
			metrics.ArtifactsDuplicate.WithLabelValues(o.strategy.Stage()).Inc()
			return
		}

		fields := make(map[string]any, len(task.Source.Fields)+len(v.Fields))
		for k, val := range task.Source.Fields {
			fields[k] = val
		}
		for k, val := range v.Fields {
			fields[k] = val
		}

		st.pendingUID[uid] = struct{}{}
		st.pending = append(st.pending, Record{UID: uid, Fields: fields})
		st.accepted = append(st.accepted, Artifact{
			UID:     uid,
			Text:    v.Text,
			Fields:  fields,
			Retries: task.Attempts - 1,
		})
		st.summary.Accepted++
		metrics.ArtifactsAccepted.WithLabelValues(o.strategy.Stage()).Inc()
	}
}

// flush 落盘待写缓冲
func (o *Orchestrator) flush(st *runState) error {
	if len(st.pending) == 0 {
		return nil
	}
	start := time.Now()

	if err := o.store.Append(st.pending); err != nil {
		metrics.FlushTotal.WithLabelValues(o.strategy.Stage(), "error").Inc()
		return err
	}

	metrics.FlushTotal.WithLabelValues(o.strategy.Stage(), "ok").Inc()
	metrics.FlushDuration.WithLabelValues(o.strategy.Stage()).Observe(time.Since(start).Seconds())

	o.log.Info("buffer flushed", "count", len(st.pending), "persisted", o.store.Len())
	st.pending = nil
	return nil
}

// abort 以错误终止运行，未落盘缓冲随结果返回供调用方恢复
func (o *Orchestrator) abort(st *runState, err error) (*RunResult, error) {
	o.log.Error("run aborted",
		"error", err,
		"accepted", st.summary.Accepted,
		"pending", len(st.pending),
	)
	return &RunResult{
		Accepted: st.accepted,
		Summary:  st.summary,
		Pending:  st.pending,
	}, err
}
