package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	name  string
	value int64
	dur   time.Duration
	tags  map[string]string
}

type captureSink struct {
	counts  []emitted
	timings []emitted
}

func (s *captureSink) Count(name string, value int64, tags map[string]string) {
	s.counts = append(s.counts, emitted{name: name, value: value, tags: tags})
}

func (s *captureSink) Gauge(string, float64, map[string]string) {}

func (s *captureSink) Timing(name string, value time.Duration, tags map[string]string) {
	s.timings = append(s.timings, emitted{name: name, dur: value, tags: tags})
}

func TestEmitRunLifecycleProductiveRun(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	EmitRunLifecycle(sink, RunMetric{
		JobType:    "rebalance",
		Transition: "completed",
		Result:     ResultSuccess,
		Moves:      7,
		Duration:   250 * time.Millisecond,
	})

	require.Len(t, sink.counts, 2)
	assert.Equal(t, "run.transition", sink.counts[0].name)
	assert.Equal(t, int64(1), sink.counts[0].value)
	assert.Equal(t, ResultSuccess, sink.counts[0].tags["result"])
	assert.Equal(t, "rebalance", sink.counts[0].tags["job_type"])

	assert.Equal(t, "run.moves", sink.counts[1].name)
	assert.Equal(t, int64(7), sink.counts[1].value)

	require.Len(t, sink.timings, 1)
	assert.Equal(t, "run.duration", sink.timings[0].name)
	assert.Equal(t, 250*time.Millisecond, sink.timings[0].dur)
}

func TestEmitRunLifecycleNoOpCarriesReason(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	EmitRunLifecycle(sink, RunMetric{
		JobType:    "rebalance",
		Transition: "completed",
		Result:     ResultNoop,
		NoOpReason: "no_deficits",
	})

	require.Len(t, sink.counts, 1)
	assert.Equal(t, "run.transition", sink.counts[0].name)
	assert.Equal(t, "no_deficits", sink.counts[0].tags["no_op_reason"])
	assert.Empty(t, sink.timings)
}

func TestEmitRunLifecycleFailureClassifiesError(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	EmitRunLifecycle(sink, RunMetric{
		JobType:    "rebalance",
		Transition: "failed",
		Result:     ResultError,
		Err:        context.DeadlineExceeded,
	})

	require.Len(t, sink.counts, 1)
	assert.Equal(t, "timeout", sink.counts[0].tags["error_class"])
	assert.NotContains(t, sink.counts[0].tags, "no_op_reason")
}

func TestEmitRunLifecycleNilSink(t *testing.T) {
	t.Parallel()

	EmitRunLifecycle(nil, RunMetric{Transition: "completed", Result: ResultSuccess})
}
