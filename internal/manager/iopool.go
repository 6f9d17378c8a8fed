package manager

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ioPool runs storage jobs off the manager loop. At most `workers` jobs
// run at once. Jobs sharing a key run one after another in submission
// order; jobs with an empty key are unordered. A barrier job runs after
// every job submitted before it and before every job submitted after it.
type ioPool struct {
	ctx context.Context
	sem *semaphore.Weighted

	mu      sync.Mutex
	idle    *sync.Cond
	pending int
	tail    map[string]chan struct{}
	unkeyed map[chan struct{}]struct{}
	barrier chan struct{}
}

func newIOPool(workers int) *ioPool {
	if workers < 1 {
		workers = 1
	}
	p := &ioPool{
		ctx:     context.Background(),
		sem:     semaphore.NewWeighted(int64(workers)),
		tail:    make(map[string]chan struct{}),
		unkeyed: make(map[chan struct{}]struct{}),
	}
	p.idle = sync.NewCond(&p.mu)
	return p
}

// Do schedules job after every earlier job with the same key
func (p *ioPool) Do(key string, job func(ctx context.Context)) {
	done := make(chan struct{})

	p.mu.Lock()
	p.pending++
	var waits []chan struct{}
	if prev := p.tail[key]; key != "" && prev != nil {
		waits = append(waits, prev)
	}
	if p.barrier != nil {
		waits = append(waits, p.barrier)
	}
	if key != "" {
		p.tail[key] = done
	} else {
		p.unkeyed[done] = struct{}{}
	}
	p.mu.Unlock()

	p.start(waits, job, func() { p.release(key, done) })
}

// Go schedules an unordered job
func (p *ioPool) Go(job func(ctx context.Context)) {
	p.Do("", job)
}

// Barrier schedules job after every job already submitted. Jobs
// submitted later wait for it.
func (p *ioPool) Barrier(job func(ctx context.Context)) {
	done := make(chan struct{})

	p.mu.Lock()
	p.pending++
	waits := make([]chan struct{}, 0, len(p.tail)+len(p.unkeyed)+1)
	for _, ch := range p.tail {
		waits = append(waits, ch)
	}
	for ch := range p.unkeyed {
		waits = append(waits, ch)
	}
	if p.barrier != nil {
		waits = append(waits, p.barrier)
	}
	p.barrier = done
	p.mu.Unlock()

	p.start(waits, job, func() {
		close(done)
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.barrier == done {
			p.barrier = nil
		}
		p.finish()
	})
}

func (p *ioPool) start(waits []chan struct{}, job func(ctx context.Context), release func()) {
	go func() {
		defer release()

		for _, ch := range waits {
			<-ch
		}
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		job(p.ctx)
	}()
}

func (p *ioPool) release(key string, done chan struct{}) {
	close(done)

	p.mu.Lock()
	defer p.mu.Unlock()
	if key == "" {
		delete(p.unkeyed, done)
	} else if p.tail[key] == done {
		delete(p.tail, key)
	}
	p.finish()
}

// finish must be called with mu held
func (p *ioPool) finish() {
	p.pending--
	if p.pending == 0 {
		p.idle.Broadcast()
	}
}

// Wait blocks until no job is pending
func (p *ioPool) Wait() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.pending > 0 {
		p.idle.Wait()
	}
}

// WaitContext is Wait bounded by ctx
func (p *ioPool) WaitContext(ctx context.Context) error {
	idle := make(chan struct{})
	go func() {
		p.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
