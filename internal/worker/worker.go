package worker

import (
	"fmt"
	"log"
	"os"
	"strings"
)

var workerDebugEnabled = strings.EqualFold(os.Getenv("CAREERCOACH_WORKER_DEBUG"), "1")

func debugLog(format string, args ...interface{}) {
	if workerDebugEnabled {
		log.Printf(format, args...)
	}
}

type Worker struct {
	id         int
	pool       *jobChannelPool
	jobChannel chan Job
}

func NewWorker(pool *jobChannelPool, id int) *Worker {
	return &Worker{
		id:         id,
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		for {
			if !w.pool.Release(w.jobChannel) {
				w.pool.retire(w.jobChannel)
				return
			}
			job := <-w.jobChannel
			if job.Type == Stop {
				debugLog("[worker-%d] stop", w.id)
				w.pool.retire(w.jobChannel)
				return
			}
			w.execute(job)
		}
	}()
}

func (w *Worker) execute(job Job) {
	if err := job.ctx.Err(); err != nil {
		// caller gave up while the job was queued
		job.finish(err)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("worker-%d: job for user %d panicked: %v", w.id, job.UserID, r)
			job.finish(fmt.Errorf("job panicked: %v", r))
		}
	}()
	debugLog("[worker-%d] run job for user %d", w.id, job.UserID)
	job.finish(job.fn(job.ctx))
}
