package guest

import "github.com/wippyai/fp-bridge/codec"

// Task drives one future to completion on the runtime's queue. The task is
// its own waker: waking a task that is already queued does nothing.
type Task struct {
	rt     *Runtime
	future Future[codec.Unit]
	queued bool
	polls  int
}

// Spawn wraps f in a task and runs it until its first suspension.
func (rt *Runtime) Spawn(f Future[codec.Unit]) *Task {
	t := &Task{rt: rt, future: f}
	t.Wake()
	return t
}

// Wake puts t on the run queue unless it is already there.
func (t *Task) Wake() {
	if t.queued {
		return
	}
	t.queued = true
	t.rt.queue.Push(t)
}

// Done reports whether the task's future has completed.
func (t *Task) Done() bool {
	return t.future == nil
}

// Polls returns how many times the task's future was polled.
func (t *Task) Polls() int {
	return t.polls
}

func (t *Task) run() {
	// wakeups may arrive after completion
	if t.future == nil {
		return
	}
	t.queued = false
	t.polls++
	if _, done := t.future.Poll(&Context{waker: t}); done {
		t.future = nil
	}
}

// Queue is the FIFO of runnable tasks. The first Push on an idle queue
// drains it, running tasks until none are left; pushes made while draining
// only append.
type Queue struct {
	tasks    []*Task
	spinning bool
}

func (q *Queue) Push(t *Task) {
	q.tasks = append(q.tasks, t)
	if q.spinning {
		return
	}
	q.spinning = true
	defer func() { q.spinning = false }()

	for len(q.tasks) > 0 {
		next := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		next.run()
	}
}

// Len returns the number of tasks waiting to run.
func (q *Queue) Len() int {
	return len(q.tasks)
}

// Spinning reports whether the queue is being drained.
func (q *Queue) Spinning() bool {
	return q.spinning
}
