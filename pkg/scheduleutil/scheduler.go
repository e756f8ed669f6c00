package scheduleutil

import (
	"context"
	"sync"
	"time"
)

// Job is one named step, run with the scheduler's context.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Result is the outcome of one finished Job.
type Result struct {
	Name string
	Err  error
	Took time.Duration
}

// Scheduler runs jobs one at a time, in the order they were scheduled.
//
// (etcd pkg.schedule.Scheduler)
type Scheduler interface {
	// Schedule appends j. Scheduling to a stopped Scheduler panics.
	Schedule(j Job)

	// Pending returns the number of jobs not started yet.
	Pending() int

	// Finished returns the number of finished jobs.
	Finished() int

	// WaitFinish waits until at least n jobs finished and nothing is pending,
	// and returns the results so far.
	WaitFinish(n int) []Result

	// Stop cancels the context of the running job, runs the pending
	// jobs with the cancelled context, and stops the scheduler.
	Stop()
}

type fifo struct {
	mu sync.Mutex

	resume   chan struct{}
	pendings []Job
	results  []Result

	ctx    context.Context
	cancel context.CancelFunc

	finishCond *sync.Cond
	donec      chan struct{}
}

// NewSchedulerFIFO returns a Scheduler that runs jobs in FIFO order.
//
// (etcd pkg.schedule.NewFIFOScheduler)
func NewSchedulerFIFO() Scheduler {
	f := &fifo{
		resume: make(chan struct{}, 1),
		donec:  make(chan struct{}),
	}
	f.ctx, f.cancel = context.WithCancel(context.Background())
	f.finishCond = sync.NewCond(&f.mu)

	go f.run()
	return f
}

func (f *fifo) Schedule(j Job) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancel == nil {
		panic("scheduleutil: schedule to stopped scheduler")
	}

	if len(f.pendings) == 0 {
		select {
		case f.resume <- struct{}{}:
		default:
		}
	}
	f.pendings = append(f.pendings, j)
}

func (f *fifo) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pendings)
}

func (f *fifo) Finished() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

func (f *fifo) WaitFinish(n int) []Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	for len(f.results) < n || len(f.pendings) != 0 {
		f.finishCond.Wait()
	}
	rs := make([]Result, len(f.results))
	copy(rs, f.results)
	return rs
}

func (f *fifo) Stop() {
	f.mu.Lock()
	if f.cancel == nil {
		f.mu.Unlock()
		return
	}
	f.cancel()
	f.cancel = nil
	f.mu.Unlock()

	<-f.donec
}

func (f *fifo) runJob(j Job) {
	now := time.Now()
	err := j.Run(f.ctx)

	f.mu.Lock()
	f.results = append(f.results, Result{Name: j.Name, Err: err, Took: time.Since(now)})
	f.pendings = f.pendings[1:]
	f.finishCond.Broadcast()
	f.mu.Unlock()
}

func (f *fifo) run() {
	defer close(f.donec)

	for {
		f.mu.Lock()
		var (
			todo Job
			ok   bool
		)
		if len(f.pendings) != 0 {
			todo, ok = f.pendings[0], true
		}
		f.mu.Unlock()

		if ok {
			f.runJob(todo)
			continue
		}

		select {
		case <-f.resume:
		case <-f.ctx.Done():
			for {
				f.mu.Lock()
				if len(f.pendings) == 0 {
					f.mu.Unlock()
					return
				}
				todo = f.pendings[0]
				f.mu.Unlock()
				f.runJob(todo)
			}
		}
	}
}
