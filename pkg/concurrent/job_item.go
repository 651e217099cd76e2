package concurrent

import (
	"github.com/lintang-b-s/saferoute/pkg/datastructure"
)

// SafetyJob asks a safety provider for the vector of one edge.
type SafetyJob struct {
	Edge *datastructure.Edge
}

// SafetyResult is the answer to a SafetyJob.
type SafetyResult struct {
	EdgeID datastructure.EdgeID
	Safety datastructure.SafetyVector
	Found  bool
	Err    error
}

type JobI interface {
	SafetyJob | []SafetyJob
}

type Job[T JobI] struct {
	ID      int
	JobItem T
}
type JobFunc[T JobI, G any] func(job T) G
