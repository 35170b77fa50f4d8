package sim

import (
	"log/slog"
	"runtime"
	"sync"
)

// defaultParallelThreshold is the minimum index range to use the pool.
// Below this, single-threaded is faster due to goroutine overhead.
const defaultParallelThreshold = 64

// passFunc processes indices [start, end) of one pass. chunk identifies
// the work item so the pass can write per-chunk results without sharing.
type passFunc func(chunk, start, end int) error

// workChunk represents a range of indices for a worker to process.
type workChunk struct {
	fn         passFunc
	chunk      int
	start, end int
}

// chunkResult reports a finished chunk back to the dispatcher.
type chunkResult struct {
	chunk int
	err   error
}

// workerPool runs the passes of a step over persistent goroutines.
// A pass is dispatched as chunks and run returns only once every chunk has
// reported back, so each run call is a full barrier between passes.
type workerPool struct {
	numWorkers      int
	chunksPerWorker int
	threshold       int

	// Worker pool channels
	workChan chan workChunk   // sends work to workers
	doneChan chan chunkResult // workers signal completion
	stopChan chan struct{}    // signals workers to exit
	wg       sync.WaitGroup   // tracks active workers
	running  bool             // true if workers are running
}

func newWorkerPool(workers, threshold, chunksPerWorker int) *workerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if threshold <= 0 {
		threshold = defaultParallelThreshold
	}
	if chunksPerWorker <= 0 {
		chunksPerWorker = 1
	}
	return &workerPool{
		numWorkers:      workers,
		chunksPerWorker: chunksPerWorker,
		threshold:       threshold,
	}
}

// maxChunks is the largest number of work items a single pass uses.
func (p *workerPool) maxChunks() int {
	return p.numWorkers * p.chunksPerWorker
}

// start launches persistent worker goroutines.
func (p *workerPool) start() {
	if p.running {
		return
	}

	n := p.maxChunks()
	p.workChan = make(chan workChunk, n)
	p.doneChan = make(chan chunkResult, n)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	slog.Debug("worker pool started", "workers", p.numWorkers, "chunks", n)
}

// stop signals all workers to exit and waits for them.
func (p *workerPool) stop() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
	slog.Debug("worker pool stopped")
}

// worker runs in a goroutine, processing chunks until stopped.
func (p *workerPool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case c, ok := <-p.workChan:
			if !ok {
				return
			}
			p.doneChan <- chunkResult{chunk: c.chunk, err: c.fn(c.chunk, c.start, c.end)}
		}
	}
}

// run executes fn over [0, n). Small ranges run inline as chunk 0.
// The error of the lowest failing chunk is returned.
func (p *workerPool) run(n int, fn passFunc) error {
	if n <= 0 {
		return nil
	}
	if n < p.threshold || p.numWorkers == 1 {
		return fn(0, 0, n)
	}

	// Ensure workers are running
	if !p.running {
		p.start()
	}

	chunks := p.maxChunks()
	chunkSize := (n + chunks - 1) / chunks

	// Dispatch chunks to workers
	dispatched := 0
	for c := 0; c < chunks; c++ {
		start := c * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			break
		}
		p.workChan <- workChunk{fn: fn, chunk: c, start: start, end: end}
		dispatched++
	}

	// Wait for all chunks to complete
	var firstErr error
	firstChunk := chunks
	for i := 0; i < dispatched; i++ {
		r := <-p.doneChan
		if r.err != nil && r.chunk < firstChunk {
			firstErr, firstChunk = r.err, r.chunk
		}
	}
	return firstErr
}
