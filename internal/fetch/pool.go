package fetch

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pedronipalhares/imea/internal/model"
)

const DefaultWorkers = 15

// Fetcher executes one task against the remote service.
type Fetcher func(ctx context.Context, task model.Task) ([]map[string]any, error)

// Result is the outcome of one task: records on success, Err otherwise.
// A failed task never affects its siblings.
type Result struct {
	Task    model.Task
	Records []map[string]any
	Err     error
}

// Tally summarizes a pool run.
type Tally struct {
	Attempted int
	Succeeded int
	Failed    int
}

// Pool runs independent fetch tasks with a fixed concurrency ceiling and a
// single join point: Run returns only after every task has completed or the
// context is cancelled.
type Pool struct {
	workers int
	log     zerolog.Logger
}

func New(workers int, log zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pool{workers: workers, log: log}
}

// Run executes all tasks and returns one Result per task, in task order.
// Each worker writes only its own slot, so the merge after the join is
// race-free by construction.
func (p *Pool) Run(ctx context.Context, tasks []model.Task, fn Fetcher) ([]Result, Tally) {
	results := make([]Result, len(tasks))
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup

	for i := range tasks {
		if ctx.Err() != nil {
			results[i] = Result{Task: tasks[i], Err: ctx.Err()}
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, task model.Task) {
			defer wg.Done()
			defer func() { <-sem }()

			records, err := fn(ctx, task)
			results[i] = Result{Task: task, Records: records, Err: err}
			if err != nil {
				p.log.Warn().Str("task", task.Label()).Err(err).Msg("fetch failed")
			} else if len(records) > 0 {
				p.log.Debug().Str("task", task.Label()).Int("records", len(records)).Msg("fetched")
			}
		}(i, tasks[i])
	}
	wg.Wait()

	tally := Tally{Attempted: len(tasks)}
	for _, result := range results {
		if result.Err != nil {
			tally.Failed++
		} else {
			tally.Succeeded++
		}
	}
	return results, tally
}
