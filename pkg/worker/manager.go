package worker

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"
)

// Stats summarizes a Process run.
type Stats struct {
	Succeeded int
	Failed    int
}

// Manager runs a job function over a batch of items with a bounded number
// of concurrent workers. A failing item does not stop the others.
type Manager[T any] struct {
	workerCount int
	name        string
	process     func(ctx context.Context, item T) error
}

// NewManager creates a manager that runs process with workerCount workers.
// name prefixes its log lines.
func NewManager[T any](name string, workerCount int, process func(ctx context.Context, item T) error) *Manager[T] {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Manager[T]{workerCount: workerCount, name: name, process: process}
}

// Process hands every item to a worker and waits for all of them. It fails
// only when the context is cancelled or every item failed.
func (m *Manager[T]) Process(ctx context.Context, items []T) (Stats, error) {
	var stats Stats
	if len(items) == 0 {
		return stats, nil
	}

	type result struct {
		item T
		err  error
	}
	resultsChan := make(chan result, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workerCount)

	go func() {
		for _, item := range items {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				resultsChan <- result{item: item, err: m.process(gctx, item)}
				return nil
			})
		}
		g.Wait()
		close(resultsChan)
	}()

	// Aggregate results (single goroutine reads from channel)
	for res := range resultsChan {
		if res.err == nil {
			stats.Succeeded++
			if stats.Succeeded%100 == 0 {
				log.Printf("%s: progress: %d successful, %d errors", m.name, stats.Succeeded, stats.Failed)
			}
			continue
		}
		stats.Failed++
		log.Printf("%s: error processing %v: %v", m.name, res.item, res.err)
	}

	log.Printf("%s: completed: %d successful, %d errors (total: %d)", m.name, stats.Succeeded, stats.Failed, len(items))

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	if stats.Failed > 0 && stats.Succeeded == 0 {
		return stats, fmt.Errorf("all %d items failed to process", stats.Failed)
	}
	return stats, nil
}
