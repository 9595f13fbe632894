package syncobj

import (
	"errors"
	"sync"

	"github.com/introt/kernel/internal/kcall"
	"github.com/introt/kernel/internal/pmem"
	"github.com/introt/kernel/internal/plist"
	"github.com/introt/kernel/internal/sched"
	"github.com/introt/kernel/internal/txn"
)

// ErrQueueFull is returned by TrySendBack, the non-blocking send, against
// a full queue.
var ErrQueueFull = errors.New("syncobj: queue full")

// ErrQueueEmpty is returned by a non-blocking receive against an empty queue.
var ErrQueueEmpty = errors.New("syncobj: queue empty")

// QueueObserver reports queue activity for metrics, mirroring
// sched.CtxSwitchObserver's pattern of a small locally-defined interface
// so this package never imports the root kernel package.
type QueueObserver interface {
	ObserveSend(full bool)
	ObserveReceive(timedOut bool)
}

type noopQueueObserver struct{}

func (noopQueueObserver) ObserveSend(bool)    {}
func (noopQueueObserver) ObserveReceive(bool) {}

// Queue is a fixed-capacity ring buffer with FIFO send/receive wait
// lists, the Go analogue of original_source/src/queue.rs's Queue<T>.
type Queue[T any] struct {
	mu         sync.Mutex
	buf        []T
	head, tail int
	count      int

	journal   *pmem.Journal
	sched     *sched.Scheduler
	waitArena *pmem.Arena[plist.Node[pmem.Ref[sched.TCB]]]
	sendWait  *plist.List[pmem.Ref[sched.TCB]]
	recvWait  *plist.List[pmem.Ref[sched.TCB]]

	observer QueueObserver
	hooks    kcall.Hooks
}

// NewQueue creates a queue holding up to capacity elements, able to
// track up to waiters blocked senders/receivers at once. hooks is
// reported to on every send_back/send_front/receive syscall (nil falls
// back to kcall.NoOpHooks); observer is queue-level send/receive
// accounting, a separate concern kept as its own parameter.
func NewQueue[T any](capacity, waiters int, journal *pmem.Journal, s *sched.Scheduler, observer QueueObserver, hooks kcall.Hooks) *Queue[T] {
	if observer == nil {
		observer = noopQueueObserver{}
	}
	arena := pmem.NewArena[plist.Node[pmem.Ref[sched.TCB]]](waiters * 2)
	return &Queue[T]{
		buf:       make([]T, capacity),
		journal:   journal,
		sched:     s,
		waitArena: arena,
		sendWait:  plist.New[pmem.Ref[sched.TCB]](arena),
		recvWait:  plist.New[pmem.Ref[sched.TCB]](arena),
		observer:  observer,
		hooks:     hooks,
	}
}

// Len returns the number of elements currently queued.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// SendBack blocks the calling task (ref) until there is room, then
// appends v to the tail of the queue.
func (q *Queue[T]) SendBack(tx *txn.Transaction, ref pmem.Ref[sched.TCB], v T) error {
	return kcall.Invoke(tx, q.hooks, "queue_send_back", func() error {
		q.mu.Lock()
		if q.count < len(q.buf) {
			q.buf[q.tail] = v
			q.tail = (q.tail + 1) % len(q.buf)
			q.count++
			q.mu.Unlock()
			q.wakeOne(q.recvWait)
			q.observer.ObserveSend(false)
			return nil
		}
		node, _ := q.sendWait.PushBack(q.journal, ref)
		q.mu.Unlock()
		q.sched.SetEventNode(ref, node)
		q.observer.ObserveSend(true)
		q.sched.Block(ref)
		return txn.ErrRetry
	})
}

// SendFront is SendBack's priority-send variant: v is delivered ahead of
// everything already queued.
func (q *Queue[T]) SendFront(tx *txn.Transaction, ref pmem.Ref[sched.TCB], v T) error {
	return kcall.Invoke(tx, q.hooks, "queue_send_front", func() error {
		q.mu.Lock()
		if q.count < len(q.buf) {
			q.head = (q.head - 1 + len(q.buf)) % len(q.buf)
			q.buf[q.head] = v
			q.count++
			q.mu.Unlock()
			q.wakeOne(q.recvWait)
			q.observer.ObserveSend(false)
			return nil
		}
		node, _ := q.sendWait.PushBack(q.journal, ref)
		q.mu.Unlock()
		q.sched.SetEventNode(ref, node)
		q.observer.ObserveSend(true)
		q.sched.Block(ref)
		return txn.ErrRetry
	})
}

// Receive blocks the calling task until an element is available, then
// pops and returns it from the head of the queue.
func (q *Queue[T]) Receive(tx *txn.Transaction, ref pmem.Ref[sched.TCB]) (T, error) {
	return kcall.Syscall(tx, q.hooks, "queue_receive", func() (T, error) {
		q.mu.Lock()
		if q.count > 0 {
			v := q.buf[q.head]
			var zero T
			q.buf[q.head] = zero
			q.head = (q.head + 1) % len(q.buf)
			q.count--
			q.mu.Unlock()
			q.wakeOne(q.sendWait)
			q.observer.ObserveReceive(false)
			return v, nil
		}
		node, _ := q.recvWait.PushBack(q.journal, ref)
		q.mu.Unlock()
		q.sched.SetEventNode(ref, node)
		q.observer.ObserveReceive(true)
		q.sched.Block(ref)
		var zero T
		return zero, txn.ErrRetry
	})
}

// TrySendBack is SendBack's non-blocking form: it returns ErrQueueFull
// immediately instead of parking the caller.
func (q *Queue[T]) TrySendBack(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count >= len(q.buf) {
		q.observer.ObserveSend(true)
		return ErrQueueFull
	}
	q.buf[q.tail] = v
	q.tail = (q.tail + 1) % len(q.buf)
	q.count++
	q.wakeOne(q.recvWait)
	q.observer.ObserveSend(false)
	return nil
}

// TryReceive is Receive's non-blocking form: it returns ErrQueueEmpty
// immediately instead of parking the caller.
func (q *Queue[T]) TryReceive() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if q.count == 0 {
		q.observer.ObserveReceive(true)
		return zero, ErrQueueEmpty
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.wakeOne(q.sendWait)
	q.observer.ObserveReceive(false)
	return v, nil
}

func (q *Queue[T]) wakeOne(list *plist.List[pmem.Ref[sched.TCB]]) {
	ref, _, ok := list.PopFront(q.journal)
	if !ok {
		return
	}
	q.sched.Wake(ref)
}
