package endpoint

import "sync"

// taskQueueDepth bounds the pending callback queue. Submission blocks when
// the queue is full, applying backpressure to fast mutators instead of
// growing without bound.
const taskQueueDepth = 128

// Executor runs submitted tasks one at a time, in submission order, on a
// single background goroutine. Every endpoint dispatches its listener
// callbacks and notification handling through an Executor so that all
// observable effects of the endpoint are serialized without fine-grained
// locking.
type Executor struct {
	tasks  chan func()
	closed chan struct{}
	wg     sync.WaitGroup

	mu       sync.Mutex
	shutdown bool
}

// NewExecutor creates and starts an executor.
func NewExecutor() *Executor {
	e := &Executor{
		tasks:  make(chan func(), taskQueueDepth),
		closed: make(chan struct{}),
	}
	e.wg.Add(1)
	go e.loop()
	return e
}

func (e *Executor) loop() {
	defer e.wg.Done()
	for {
		select {
		case fn := <-e.tasks:
			fn()
		case <-e.closed:
			// Drain whatever was queued before shutdown.
			for {
				select {
				case fn := <-e.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Do submits a task. Tasks submitted after Close are dropped.
func (e *Executor) Do(fn func()) {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	select {
	case e.tasks <- fn:
	case <-e.closed:
	}
}

// Sync blocks until every task submitted before the call has run. Intended
// for tests and orderly shutdown.
func (e *Executor) Sync() {
	done := make(chan struct{})
	e.Do(func() { close(done) })
	select {
	case <-done:
	case <-e.closed:
	}
}

// Close stops the executor after draining queued tasks.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return
	}
	e.shutdown = true
	e.mu.Unlock()

	close(e.closed)
	e.wg.Wait()
}
