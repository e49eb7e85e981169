package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateBackoff(t *testing.T) {
	cfg := BackoffConfig{
		Initial:    time.Second,
		Max:        time.Minute,
		Multiplier: 2,
	}

	assert.Equal(t, time.Second, cfg.CalculateBackoff(0))
	assert.Equal(t, 2*time.Second, cfg.CalculateBackoff(1))
	assert.Equal(t, 4*time.Second, cfg.CalculateBackoff(2))
	assert.Equal(t, 8*time.Second, cfg.CalculateBackoff(3))

	// 超过上限后封顶
	assert.Equal(t, time.Minute, cfg.CalculateBackoff(10))
}

func TestMessagePayloadRoundTrip(t *testing.T) {
	job := &RunJobMessage{
		RunID:      "run-1",
		Stage:      "problem",
		Mode:       "FIM",
		NumSamples: 100,
	}

	msg, err := NewMessage(job.RunID, TypeDatagenRun, job.RunID, job.Stage, job)
	require.NoError(t, err)

	assert.Equal(t, "run-1", msg.RunID)
	assert.Equal(t, "problem", msg.Stage)

	var decoded RunJobMessage
	require.NoError(t, msg.UnmarshalPayload(&decoded))
	assert.Equal(t, *job, decoded)
}

func TestMessageMetadata(t *testing.T) {
	msg := &Message{}
	assert.Empty(t, msg.GetMetadata("trace_id"))

	msg.SetMetadata("trace_id", "abc123")
	assert.Equal(t, "abc123", msg.GetMetadata("trace_id"))
}

func TestDLQStreamName(t *testing.T) {
	assert.Equal(t, "dlq:stream:datagen:run", StreamDatagenRun.DLQStream())
}
