package session

import (
	"context"

	"github.com/google/uuid"

	"volfusion/internal/models"
)

// Task is a handle on a queued load or fusion.
type Task struct {
	ID   uuid.UUID
	Role models.Role
	Dir  string

	done chan struct{}
	err  error
}

func newTask(role models.Role, dir string) *Task {
	return &Task{ID: uuid.New(), Role: role, Dir: dir, done: make(chan struct{})}
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}

// Done is closed once the task has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the task's outcome. It is nil while the task is running.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
