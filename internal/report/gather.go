package report

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Task is one named unit of a scatter-gather.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Outcomes maps task names to their result. A nil value means the task succeeded.
type Outcomes map[string]error

// Failed returns the names of tasks that returned an error.
func (o Outcomes) Failed() []string {
	var names []string
	for name, err := range o {
		if err != nil {
			names = append(names, name)
		}
	}
	return names
}

// Gather runs every task concurrently and waits for all of them. A failing task does
// not cancel its siblings; each outcome is reported independently. Panics inside a
// task are recovered and reported as that task's error.
func Gather(ctx context.Context, tasks ...Task) Outcomes {
	var (
		mu  sync.Mutex
		out = make(Outcomes, len(tasks))
		g   errgroup.Group
	)
	for _, task := range tasks {
		run := recovered("task "+task.Name, func() error { return task.Run(ctx) })
		g.Go(func() error {
			err := run()
			mu.Lock()
			out[task.Name] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// recovered wraps fn so a panic comes back as an error naming what panicked.
// Every goroutine a run starts goes through it, including nested fan-outs.
func recovered(what string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s panicked: %v", what, r)
			}
		}()
		return fn()
	}
}
