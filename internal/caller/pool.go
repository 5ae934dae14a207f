package caller

import (
	"runtime"
	"sync"
)

// WorkItem is one sample's feature table awaiting calls.
type WorkItem struct {
	Seq    int
	Sample string
	Path   string
}

// WorkResult holds the outcome of calling one sample.
type WorkResult struct {
	Seq     int
	Sample  string
	Output  string
	Skipped bool
	Summary *Summary
	Records *Records
	Err     error
}

// Chunks splits n items into at most workers contiguous [lo, hi) ranges
// whose sizes differ by at most one.
func Chunks(n, workers int) [][2]int {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}
	out := make([][2]int, 0, workers)
	lo := 0
	for w := 0; w < workers; w++ {
		size := n / workers
		if w < n%workers {
			size++
		}
		out = append(out, [2]int{lo, lo + size})
		lo += size
	}
	return out
}

// ParallelCall runs fn over items with one worker per contiguous chunk.
// Results are sent to the returned channel in arrival order (not sequence
// order); use OrderedCollect to consume them in sequence order.
// If workers is 0, runtime.NumCPU() is used.
func ParallelCall(items []WorkItem, workers int, fn func(WorkItem) WorkResult) <-chan WorkResult {
	chunks := Chunks(len(items), workers)
	results := make(chan WorkResult, 2*len(chunks)+1)

	var wg sync.WaitGroup
	wg.Add(len(chunks))

	for _, c := range chunks {
		go func() {
			defer wg.Done()
			for _, item := range items[c[0]:c[1]] {
				r := fn(item)
				r.Seq, r.Sample = item.Seq, item.Sample
				results <- r
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// OrderedCollect calls fn for each result in sequence-number order.
// It buffers out-of-order results in a pending map and emits them
// as soon as the next expected sequence number is available.
// Blocks until the results channel is closed.
func OrderedCollect(results <-chan WorkResult, fn func(WorkResult) error) error {
	pending := make(map[int]WorkResult)
	nextSeq := 0

	for r := range results {
		pending[r.Seq] = r

		for {
			rr, ok := pending[nextSeq]
			if !ok {
				break
			}
			delete(pending, nextSeq)
			nextSeq++
			if err := fn(rr); err != nil {
				// Drain remaining results to unblock workers.
				for range results {
				}
				return err
			}
		}
	}

	return nil
}
