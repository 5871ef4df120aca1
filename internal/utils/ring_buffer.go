package utils

import "sync"

// RingBuffer is a fixed-size buffer of T that keeps the most recent items.
// Pushing into a full buffer evicts the oldest item. It is safe for
// concurrent use.
//
//	rb := NewRingBuffer[string](2)
//	rb.Push("a")
//	rb.Push("b")
//	rb.Push("c")          // "a" is evicted
//	fmt.Println(rb.ToSlice()) // [b c]
type RingBuffer[T any] struct {
	data    []T
	size    int
	count   int
	head    int // oldest item
	tail    int // next write position
	dropped int
	mu      sync.RWMutex
}

// NewRingBuffer creates a buffer holding at most size items. It panics when
// size is not positive.
func NewRingBuffer[T any](size int) *RingBuffer[T] {
	if size <= 0 {
		panic("ring buffer size must be positive")
	}
	return &RingBuffer[T]{
		data: make([]T, size),
		size: size,
	}
}

// Push appends item, evicting the oldest item when the buffer is full.
func (rb *RingBuffer[T]) Push(item T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.data[rb.tail] = item
	rb.tail = (rb.tail + 1) % rb.size

	if rb.count < rb.size {
		rb.count++
	} else {
		rb.head = (rb.head + 1) % rb.size
		rb.dropped++
	}
}

// Len returns the number of buffered items.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Cap returns the buffer capacity.
func (rb *RingBuffer[T]) Cap() int {
	return rb.size
}

// Dropped returns how many items were evicted so far.
func (rb *RingBuffer[T]) Dropped() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.dropped
}

// At returns the i-th buffered item, 0 being the oldest. It panics when i is
// outside [0, Len()).
func (rb *RingBuffer[T]) At(i int) T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if i < 0 || i >= rb.count {
		panic("index out of range")
	}
	return rb.data[(rb.head+i)%rb.size]
}

// ToSlice returns a copy of the buffered items, oldest first.
func (rb *RingBuffer[T]) ToSlice() []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	result := make([]T, rb.count)
	for i := range rb.count {
		result[i] = rb.data[(rb.head+i)%rb.size]
	}
	return result
}
