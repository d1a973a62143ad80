package fifoqueue

import (
	"fmt"
	"sync"

	"github.com/ef-ds/deque"
)

// FifoQueue is a FIFO queue with a maximum capacity. Elements pushed beyond
// the capacity are silently dropped.
//
// Caution: the queue methods are individually concurrency safe, but length
// checks followed by pushes are not atomic as a pair.
type FifoQueue struct {
	mu          sync.RWMutex
	queue       deque.Deque
	maxCapacity int
}

// NewFifoQueue creates a queue holding at most maxCapacity elements.
func NewFifoQueue(maxCapacity int) (*FifoQueue, error) {
	if maxCapacity < 1 {
		return nil, fmt.Errorf("capacity for fifo queue must be positive")
	}
	return &FifoQueue{maxCapacity: maxCapacity}, nil
}

// Push appends the given element to the tail of the queue. If the queue is at
// capacity, the element is dropped and false is returned.
func (q *FifoQueue) Push(element interface{}) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.queue.Len() >= q.maxCapacity {
		return false
	}
	q.queue.PushBack(element)
	return true
}

// Pop removes and returns the queue's head element. If the queue is empty,
// (nil, false) is returned.
func (q *FifoQueue) Pop() (interface{}, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.queue.PopFront()
}

// Front peeks at the head element without removing it.
func (q *FifoQueue) Front() (interface{}, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.queue.Front()
}

// Len returns the current length of the queue.
func (q *FifoQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.queue.Len()
}
