package monitor

import (
	"context"
	"errors"
	"sync"

	"github.com/creativeprojects/convmon/lib"
)

// operationQueue serializes operations on the conversation set: a single
// worker pops one operation at a time, so an operation never observes
// another one mid-flight. Enqueuing applies the coalescing rules:
//   - a FillWindow(insert=false) is dropped when a FillWindow is already
//     waiting in the queue,
//   - a Reseed replaces a queued Reseed in place,
//   - Append and Remove are never coalesced, and every operation keeps its
//     arrival order relative to them.
type operationQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	ops      []*operation
	current  *operation
	stopping bool
	started  bool
	done     chan struct{}
	activity func(active bool)
	log      lib.Logger
}

func newOperationQueue(logger lib.Logger) *operationQueue {
	if logger == nil {
		logger = &lib.NoLog{}
	}
	queue := &operationQueue{
		done: make(chan struct{}),
		log:  logger,
	}
	queue.cond = sync.NewCond(&queue.mu)
	return queue
}

// add enqueues the operation, applying the coalescing rules. It reports
// whether the operation was accepted.
func (q *operationQueue) add(op *operation) bool {
	q.mu.Lock()
	if q.stopping {
		q.mu.Unlock()
		return false
	}
	switch op.kind {
	case opFillWindow:
		if !op.insert && q.hasLocked(opFillWindow) {
			q.mu.Unlock()
			q.log.Printf("operation queue: dropping %s, one is already queued", op.kind)
			return false
		}
	case opReseed:
		for index, queued := range q.ops {
			if queued.kind == opReseed {
				q.ops[index] = op
				q.mu.Unlock()
				q.log.Printf("operation queue: %s superseded in place", op.kind)
				return true
			}
		}
	}
	q.ops = append(q.ops, op)
	activity := q.activity
	becameActive := len(q.ops) == 1 && q.current == nil
	q.cond.Signal()
	q.mu.Unlock()

	if activity != nil && becameActive {
		activity(true)
	}
	return true
}

// has reports whether an operation of that kind is waiting in the queue.
// The running operation doesn't count: it already left the queue, and a
// FillWindow must be able to re-enqueue itself.
func (q *operationQueue) has(kind opKind) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.hasLocked(kind)
}

func (q *operationQueue) hasLocked(kind opKind) bool {
	for _, op := range q.ops {
		if op.kind == kind {
			return true
		}
	}
	return false
}

func (q *operationQueue) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = q.ops[:0]
}

func (q *operationQueue) isProcessing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current != nil || len(q.ops) > 0
}

func (q *operationQueue) setActivityFunc(activity func(active bool)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.activity = activity
}

// run is the queue worker. An operation failure never poisons the queue: the
// error is reported and the worker moves on to the next operation.
func (q *operationQueue) run(ctx context.Context, m *Monitor) {
	defer close(q.done)
	q.mu.Lock()
	q.started = true
	for {
		for len(q.ops) == 0 && !q.stopping {
			if activity := q.activity; activity != nil {
				q.mu.Unlock()
				activity(false)
				q.mu.Lock()
				if len(q.ops) > 0 || q.stopping {
					break
				}
			}
			q.cond.Wait()
		}
		if q.stopping {
			q.ops = q.ops[:0]
			q.mu.Unlock()
			return
		}
		op := q.ops[0]
		q.ops = q.ops[1:]
		q.current = op
		q.mu.Unlock()

		err := op.run(ctx, m)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			q.log.Printf("operation %s: %s", op.kind, err)
			m.listener.ScanError(err)
		}

		q.mu.Lock()
		q.current = nil
	}
}

// stop waits for the current operation to finish, then drains the queue and
// stops the worker.
func (q *operationQueue) stop() {
	q.mu.Lock()
	q.stopping = true
	started := q.started
	q.cond.Broadcast()
	q.mu.Unlock()
	if started {
		<-q.done
	}
}
