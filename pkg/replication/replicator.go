package replication

import (
	"context"
	"fmt"
	"log"
	"sync"

	"voice-dashboard/pkg/domain"
)

const (
	DefaultBatchSize = 100
	DefaultWorkers   = 5
)

// Source yields every recording of the store being copied.
type Source interface {
	GetAllRecordings(ctx context.Context) ([]domain.Recording, error)
}

// Target is the Postgres recording store.
type Target interface {
	EnsureSchema(ctx context.Context) error
	ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error)
	InsertBatch(ctx context.Context, recs []domain.Recording) error
}

// Config wires the replication dependencies.
type Config struct {
	Mongo    Source
	Postgres Target

	BatchSize int
	Workers   int
}

// Replicator copies recordings from MongoDB to Postgres.
//
// This is a one-shot, "copy everything" flow; rows already in Postgres
// are left untouched.
type Replicator struct {
	mongo     Source
	pg        Target
	batchSize int
	workers   int
}

func NewReplicator(cfg Config) (*Replicator, error) {
	if cfg.Mongo == nil {
		return nil, fmt.Errorf("mongo store is required")
	}
	if cfg.Postgres == nil {
		return nil, fmt.Errorf("postgres store is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Replicator{
		mongo:     cfg.Mongo,
		pg:        cfg.Postgres,
		batchSize: cfg.BatchSize,
		workers:   cfg.Workers,
	}, nil
}

// Result counts what a replication run did.
type Result struct {
	Processed int
	Inserted  int
}

// ReplicateRecordings reads all recordings from Mongo and inserts the ones
// Postgres does not have yet, in parallel batches.
func (r *Replicator) ReplicateRecordings(ctx context.Context) (Result, error) {
	if err := r.pg.EnsureSchema(ctx); err != nil {
		return Result{}, err
	}

	recs, err := r.mongo.GetAllRecordings(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read mongo recordings: %w", err)
	}

	log.Printf("Loaded %d recordings from Mongo, processing in batches...", len(recs))

	res, err := r.processBatches(ctx, recs)
	if err != nil {
		return res, err
	}

	log.Printf("Replication complete: processed %d recordings, inserted %d new recordings", res.Processed, res.Inserted)
	return res, nil
}

type batchJob struct {
	batch []domain.Recording
	start int
	end   int
}

type batchResult struct {
	processed int
	inserted  int
	err       error
}

// processBatches fans batches out to workers and stops at the first failed batch.
func (r *Replicator) processBatches(ctx context.Context, recs []domain.Recording) (Result, error) {
	var total Result
	if len(recs) == 0 {
		return total, nil
	}

	numBatches := (len(recs) + r.batchSize - 1) / r.batchSize
	jobs := make(chan batchJob, numBatches)
	results := make(chan batchResult, numBatches)

	for start := 0; start < len(recs); start += r.batchSize {
		end := min(start+r.batchSize, len(recs))
		jobs <- batchJob{batch: recs[start:end], start: start, end: end}
	}
	close(jobs)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					results <- batchResult{err: ctx.Err()}
					continue
				}
				inserted, err := r.processBatch(ctx, job)
				if err != nil {
					cancel()
				}
				results <- batchResult{processed: len(job.batch), inserted: inserted, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		total.Processed += res.processed
		total.Inserted += res.inserted
		if total.Processed%1000 == 0 {
			r.logProgress(total, len(recs))
		}
	}
	if firstErr != nil {
		return total, firstErr
	}

	r.logProgress(total, len(recs))
	return total, nil
}

// processBatch checks which ids exist, filters new ones and inserts them.
func (r *Replicator) processBatch(ctx context.Context, job batchJob) (int, error) {
	log.Printf("Processing batch [%d:%d] (%d recordings)...", job.start, job.end, len(job.batch))

	ids := make([]string, 0, len(job.batch))
	for _, rec := range job.batch {
		if rec.ID != "" {
			ids = append(ids, rec.ID)
		}
	}

	existing, err := r.pg.ExistingIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("check existing ids for batch [%d:%d]: %w", job.start, job.end, err)
	}

	toInsert := filterNew(job.batch, existing)
	if len(toInsert) == 0 {
		return 0, nil
	}

	if err := r.pg.InsertBatch(ctx, toInsert); err != nil {
		return 0, fmt.Errorf("insert batch [%d:%d]: %w", job.start, job.end, err)
	}
	log.Printf("  Inserted %d recordings", len(toInsert))

	return len(toInsert), nil
}

func (r *Replicator) logProgress(res Result, total int) {
	log.Printf("Progress: processed %d/%d recordings, inserted %d new recordings", res.Processed, total, res.Inserted)
}

func filterNew(all []domain.Recording, existing map[string]bool) []domain.Recording {
	out := make([]domain.Recording, 0, len(all))
	for _, rec := range all {
		if rec.ID == "" || existing[rec.ID] {
			continue
		}
		out = append(out, rec)
	}
	return out
}
