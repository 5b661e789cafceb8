package uploader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Task is one unit of outbox work. Run does the upload; OnError receives the
// terminal failure of a task that ran. OnDrop is called instead when the
// queue discards the task without ever running it, so the owner can record
// the failure somewhere durable. Tasks themselves are not persisted.
type Task struct {
	Name    string
	Run     func(ctx context.Context) error
	OnError func(error)
	OnDrop  func(error)
}

// Queue is the single-worker upload outbox. Tasks run strictly one at a
// time in enqueue order, except that high-priority tasks jump to the front.
// Between consecutive tasks the worker waits a small fixed delay so back-to-
// back uploads do not saturate the network path. A task's own failure is
// reported to its OnError callback and never stops the drain.
type Queue struct {
	mu     sync.Mutex
	tasks  []*Task
	closed bool

	capacity int
	delay    time.Duration
	wake     chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup

	logger  zerolog.Logger
	metrics *Metrics
}

func NewQueue(capacity int, delay time.Duration, logger zerolog.Logger, metrics *Metrics) *Queue {
	q := &Queue{
		capacity: capacity,
		delay:    delay,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		logger:   logger.With().Str("component", "upload-queue").Logger(),
		metrics:  metrics,
	}
	q.wg.Add(1)
	go q.drain()
	return q
}

func (q *Queue) Enqueue(task *Task, priority string) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("upload queue is closed")
	}
	if len(q.tasks) >= q.capacity {
		q.mu.Unlock()
		return fmt.Errorf("upload queue is full (capacity %d)", q.capacity)
	}

	if priority == PriorityHigh {
		q.tasks = append([]*Task{task}, q.tasks...)
	} else {
		q.tasks = append(q.tasks, task)
	}
	depth := len(q.tasks)
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.Depth.Set(float64(depth))
	}
	q.logger.Debug().Str("task", task.Name).Str("priority", priority).Int("depth", depth).Msg("task enqueued")

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Len reports the number of queued (not in-flight) tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *Queue) pop() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil
	}
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	if q.metrics != nil {
		q.metrics.Depth.Set(float64(len(q.tasks)))
	}
	return task
}

func (q *Queue) drain() {
	defer q.wg.Done()
	for {
		task := q.pop()
		if task == nil {
			select {
			case <-q.wake:
				continue
			case <-q.done:
				return
			}
		}

		q.execute(task)

		select {
		case <-time.After(q.delay):
		case <-q.done:
			return
		}
	}
}

// execute runs one task, isolating errors and panics so a poisoned task
// cannot block the rest of the outbox.
func (q *Queue) execute(task *Task) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("upload task panicked: %v", r)
			q.logger.Error().Str("task", task.Name).Msg(err.Error())
			q.report(task, err)
		}
	}()

	err := task.Run(context.Background())
	if err != nil {
		q.logger.Error().Str("task", task.Name).Err(err).Msg("upload task failed")
		q.report(task, err)
		return
	}
	if q.metrics != nil {
		q.metrics.Tasks.WithLabelValues("success").Inc()
	}
}

func (q *Queue) report(task *Task, err error) {
	if q.metrics != nil {
		q.metrics.Tasks.WithLabelValues("failure").Inc()
	}
	if task.OnError != nil {
		task.OnError(err)
	}
}

// Close stops the worker after the in-flight task finishes. Tasks still
// queued never run; each is reported through its OnDrop callback so its
// failure can be recorded for a later explicit retry.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	dropped := q.tasks
	q.tasks = nil
	q.mu.Unlock()

	close(q.done)
	q.wg.Wait()

	if q.metrics != nil {
		q.metrics.Depth.Set(0)
	}
	for _, task := range dropped {
		err := fmt.Errorf("upload queue closed before task ran")
		q.logger.Warn().Str("task", task.Name).Msg("dropping queued task on close")
		if q.metrics != nil {
			q.metrics.Tasks.WithLabelValues("failure").Inc()
		}
		if task.OnDrop != nil {
			task.OnDrop(err)
		}
	}
}
