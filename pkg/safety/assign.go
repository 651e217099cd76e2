package safety

import (
	"context"
	"fmt"
	"log"
	"runtime"

	"github.com/lintang-b-s/saferoute/pkg/concurrent"
	"github.com/lintang-b-s/saferoute/pkg/datastructure"
)

const (
	batchSize = 256
)

// Graph is the part of the street graph Assign needs.
type Graph interface {
	Edges() []*datastructure.Edge
	SetSafety(id datastructure.EdgeID, s datastructure.SafetyVector) error
}

type AssignStats struct {
	Requested int `json:"requested"`
	Assigned  int `json:"assigned"`
	Missing   int `json:"missing"`
}

// Assign asks p for the safety vector of every edge that has none yet (every edge
// when overwrite is set). Lookups run on a worker pool, the graph itself is only
// written from the calling goroutine.
func Assign(ctx context.Context, g Graph, p Provider, overwrite bool, numWorkers int) (AssignStats, error) {
	var stats AssignStats
	pending := make([]concurrent.SafetyJob, 0)
	for _, e := range g.Edges() {
		if e.SafetySet && !overwrite {
			continue
		}
		pending = append(pending, concurrent.SafetyJob{Edge: e})
	}
	stats.Requested = len(pending)
	if len(pending) == 0 {
		return stats, nil
	}
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	numBatches := (len(pending) + batchSize - 1) / batchSize
	workers := concurrent.NewWorkerPool[[]concurrent.SafetyJob, []concurrent.SafetyResult](numWorkers, numBatches)
	for start := 0; start < len(pending); start += batchSize {
		end := min(start+batchSize, len(pending))
		workers.AddJob(pending[start:end])
	}
	workers.Close()
	workers.Start(func(batch []concurrent.SafetyJob) []concurrent.SafetyResult {
		out := make([]concurrent.SafetyResult, 0, len(batch))
		for _, job := range batch {
			s, ok, err := p.Safety(ctx, job.Edge)
			out = append(out, concurrent.SafetyResult{EdgeID: job.Edge.ID, Safety: s, Found: ok, Err: err})
			if err != nil {
				break
			}
		}
		return out
	})
	workers.Wait()

	var firstErr error
	for batch := range workers.CollectResults() {
		for _, res := range batch {
			if res.Err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("safety of edge %d: %w", res.EdgeID, res.Err)
				}
				continue
			}
			if !res.Found {
				stats.Missing++
				continue
			}
			if err := g.SetSafety(res.EdgeID, res.Safety); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			stats.Assigned++
		}
	}
	if firstErr != nil {
		return stats, firstErr
	}

	log.Printf("safety: assigned %d of %d edges, %d without data", stats.Assigned, stats.Requested, stats.Missing)
	return stats, nil
}
