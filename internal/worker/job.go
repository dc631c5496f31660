package worker

import (
	"context"
	"errors"
)

var (
	// ErrDispatcherBusy is returned when the intake queue is full.
	ErrDispatcherBusy = errors.New("too many pending requests, try again later")
	// ErrJobCancelled is delivered to jobs dropped by CancelUser.
	ErrJobCancelled = errors.New("job cancelled")
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("dispatcher stopped")
)

type JobType int

const (
	Run JobType = iota
	Stop
)

// Job is one unit of work owned by a user.
type Job struct {
	Type   JobType
	UserID int64
	ctx    context.Context
	fn     func(context.Context) error
	done   chan error
}

func (job Job) finish(err error) {
	if job.done != nil {
		job.done <- err
	}
}
