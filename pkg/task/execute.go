package task

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// ExecutionError is a task failure, including panics raised by the task.
type ExecutionError struct {
	Objective string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("task %q failed: %v", e.Objective, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Execute runs t, converting returned errors and panics into an *ExecutionError.
func Execute(ctx context.Context, t Task) (finished bool, response string, err error) {
	defer func() {
		if r := recover(); r != nil {
			finished, response = false, ""
			rerr, ok := r.(error)
			if !ok {
				rerr = errors.Errorf("panic: %v", r)
			} else {
				rerr = errors.Wrap(rerr, "panic")
			}
			err = &ExecutionError{Objective: t.Objective(), Err: rerr}
		}
	}()

	finished, response, err = t.Run(ctx)
	if err != nil {
		return false, "", &ExecutionError{Objective: t.Objective(), Err: err}
	}
	return finished, response, nil
}
