package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishRunJob 发布数据生成运行任务
func (p *Producer) PublishRunJob(ctx context.Context, job *RunJobMessage) (string, error) {
	msg, err := NewMessage(job.RunID, TypeDatagenRun, job.RunID, job.Stage, job)
	if err != nil {
		return "", err
	}

	if job.TraceID != "" {
		msg.SetMetadata("trace_id", job.TraceID)
	}
	if job.RequestID != "" {
		msg.SetMetadata("request_id", job.RequestID)
	}

	return p.Publish(ctx, StreamDatagenRun, msg)
}

// RunJobMessage 数据生成运行任务消息
type RunJobMessage struct {
	RunID      string `json:"run_id"`
	Stage      string `json:"stage"`
	Mode       string `json:"mode,omitempty"`
	NumSamples int    `json:"num_samples,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	TraceID    string `json:"trace_id,omitempty"`
}
