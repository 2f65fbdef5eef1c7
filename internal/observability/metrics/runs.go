package metrics

import (
	"time"

	obserrors "github.com/urbanflow/rebal/internal/observability/errors"
	"github.com/urbanflow/rebal/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// RunMetric captures one rebalancing job's terminal transition for metric
// emission.
type RunMetric struct {
	JobType    string
	Transition string // completed or failed
	Result     string
	NoOpReason string // set when Result is ResultNoop
	Moves      int
	Duration   time.Duration
	Err        error
}

// EmitRunLifecycle emits run lifecycle metrics: a transition counter tagged
// with the outcome, the planned move count for productive runs, and the
// end-to-end duration. No-op runs carry their inferred reason so dashboards
// can tell a drained system from a blocked snapshot.
func EmitRunLifecycle(sink statsd.Sink, in RunMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"job_type":   in.JobType,
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Result == ResultNoop && in.NoOpReason != "" {
		tags["no_op_reason"] = in.NoOpReason
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("run.transition", 1, tags)

	if in.Moves > 0 {
		sink.Count("run.moves", int64(in.Moves), CloneTags(tags))
	}
	if in.Duration > 0 {
		sink.Timing("run.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
