package worker

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type userQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher admits work per user and hands it to a worker pool so that one
// busy user cannot starve the others: users take turns, one job per turn.
type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job

	mu        sync.Mutex
	queues    map[int64]*userQueue // pending jobs per user
	ready     *list.List           // users with pending jobs, least recently served first
	positions map[int64]*list.Element

	stop     chan struct{}
	stopOnce sync.Once
}

func NewDispatcher(minWorkers, maxWorkers, queueSize int, idleTimeout time.Duration) *Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &Dispatcher{
		pool:      newJobChannelPool(minWorkers, maxWorkers, idleTimeout),
		JobQueue:  make(chan Job, queueSize),
		queues:    make(map[int64]*userQueue),
		ready:     list.New(),
		positions: make(map[int64]*list.Element),
		stop:      make(chan struct{}),
	}

	for i := 0; i < minWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Submit queues fn for userID and waits for it to finish. A full intake queue
// fails fast with ErrDispatcherBusy.
func (d *Dispatcher) Submit(ctx context.Context, userID int64, fn func(context.Context) error) error {
	select {
	case <-d.stop:
		return ErrStopped
	default:
	}
	job := Job{Type: Run, UserID: userID, ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case d.JobQueue <- job:
	default:
		return ErrDispatcherBusy
	}
	return d.wait(ctx, job)
}

// wait blocks until job reports back. A job that slipped into the intake
// queue after Stop drained it is never run, so stop ends the wait too.
func (d *Dispatcher) wait(ctx context.Context, job Job) error {
	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stop:
		select {
		case err := <-job.done:
			return err
		default:
			return ErrStopped
		}
	}
}

func (d *Dispatcher) run() {
	for {
		if !d.dispatchOne() {
			select {
			case job := <-d.JobQueue:
				d.enqueueJob(job)
			case <-d.stop:
				return
			}
			continue
		}
		select {
		case job := <-d.JobQueue:
			d.enqueueJob(job)
		case <-d.stop:
			return
		default:
		}
	}
}

// CancelUser drops every queued job of the user. Jobs already running finish.
func (d *Dispatcher) CancelUser(userID int64) {
	d.mu.Lock()
	q := d.queues[userID]
	delete(d.queues, userID)
	if elem, ok := d.positions[userID]; ok {
		d.ready.Remove(elem)
		delete(d.positions, userID)
	}
	d.mu.Unlock()

	if q != nil {
		for _, job := range q.jobs {
			job.finish(ErrJobCancelled)
		}
	}
}

// Stop shuts down the dispatcher loop and the worker pool.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stop)
		d.pool.close()

		d.mu.Lock()
		queues := d.queues
		d.queues = make(map[int64]*userQueue)
		d.ready.Init()
		d.positions = make(map[int64]*list.Element)
		d.mu.Unlock()
		for _, q := range queues {
			for _, job := range q.jobs {
				job.finish(ErrStopped)
			}
		}
		for {
			select {
			case job := <-d.JobQueue:
				job.finish(ErrStopped)
			default:
				return
			}
		}
	})
}

func (d *Dispatcher) enqueueJob(job Job) {
	userID := job.UserID

	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[userID]
	if q == nil {
		q = &userQueue{}
		d.queues[userID] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		return
	}
	q.enqueued = true
	d.positions[userID] = d.ready.PushBack(userID)
}

// dispatchOne hands the next job of the front user to a worker.
func (d *Dispatcher) dispatchOne() bool {
	job, ok := d.nextJob()
	if !ok {
		return false
	}
	workerChan, ok := d.pool.acquire()
	if !ok {
		job.finish(ErrStopped)
		return true
	}
	debugLog("[dispatcher] assign job for user %d to worker-%d", job.UserID, d.pool.workerID(workerChan))
	workerChan <- job
	return true
}

// nextJob pops one job from the user at the front of the ready list and moves
// that user to the back when more jobs remain.
func (d *Dispatcher) nextJob() (Job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	elem := d.ready.Front()
	if elem == nil {
		return Job{}, false
	}
	userID := elem.Value.(int64)
	q := d.queues[userID]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, userID)
		delete(d.queues, userID)
	} else {
		d.ready.MoveToBack(elem)
	}
	return job, true
}
