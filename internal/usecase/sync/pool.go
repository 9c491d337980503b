package sync

import "sync"

const defaultWorkers = 10

// runBatch executes tasks on a bounded worker pool and waits for the whole
// batch. Tasks never cancel each other; a failing task reports through the
// tally it closes over and its siblings run to completion.
func runBatch(workers int, tasks []func()) {
	if workers <= 0 {
		workers = defaultWorkers
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, task := range tasks {
		wg.Add(1)
		go func(run func()) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			run()
		}(task)
	}

	wg.Wait()
}
