package metrics

import (
	"time"

	obserrors "github.com/urbanflow/rebal/internal/observability/errors"
	"github.com/urbanflow/rebal/internal/observability/statsd"
)

// RetentionMetric captures one retention sweep step for metric emission.
type RetentionMetric struct {
	Target  string // what was pruned: "dlq", "runs"
	Deleted int64
	Elapsed time.Duration
	Err     error
}

// EmitRetentionSweep emits standardised retention sweep metrics.
func EmitRetentionSweep(sink statsd.Sink, in RetentionMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"target": in.Target,
		"result": ResultSuccess,
	}
	if in.Err != nil {
		tags["result"] = ResultError
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("retention.deleted", in.Deleted, CloneTags(tags))
	sink.Count("retention.sweep", 1, tags)
	if in.Elapsed > 0 {
		sink.Timing("retention.duration", in.Elapsed, CloneTags(tags))
	}
}
