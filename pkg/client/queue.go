package client

import (
	"context"
	"sync"
)

// outFrame is one pending outbound wire frame. A frame with stop set is
// the shutdown sentinel: the write loop terminates when it dequeues one.
type outFrame struct {
	data string
	stop bool
}

// sendQueue is an unbounded FIFO of pending outbound frames.
//
// push never blocks and is callable from any goroutine, including
// before a connection exists; frames simply accumulate until the write
// loop starts consuming. There is no priority, coalescing, or
// deduplication.
type sendQueue struct {
	mu    sync.Mutex
	items []outFrame
	ready chan struct{} // capacity 1, signaled on push
}

func newSendQueue() *sendQueue {
	return &sendQueue{
		ready: make(chan struct{}, 1),
	}
}

// push appends a frame to the queue.
func (q *sendQueue) push(frame string) {
	q.pushItem(outFrame{data: frame})
}

// pushSentinel appends the shutdown sentinel.
func (q *sendQueue) pushSentinel() {
	q.pushItem(outFrame{stop: true})
}

func (q *sendQueue) pushItem(item outFrame) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// pop removes and returns the oldest frame, blocking until one is
// available or ctx is canceled. The second return is false on cancel.
func (q *sendQueue) pop(ctx context.Context) (outFrame, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-ctx.Done():
			return outFrame{}, false
		}
	}
}

// drainSentinels removes queued shutdown sentinels while keeping
// pending frames. The write loop usually exits through context
// cancellation without consuming the sentinel cleanup enqueued; left
// in place it would stop the next connection's write loop on its
// first dequeue.
func (q *sendQueue) drainSentinels() {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	for _, item := range q.items {
		if !item.stop {
			kept = append(kept, item)
		}
	}
	q.items = kept
}

// depth returns the number of pending frames.
func (q *sendQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
