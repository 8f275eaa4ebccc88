package ppg

// RingBuffer is a fixed-capacity FIFO. Pushing into a full buffer drops the
// oldest element. It is not safe for concurrent use; the owner serialises
// pushes and snapshots.
type RingBuffer[T any] struct {
	items []T
	head  int
	count int
}

// NewRingBuffer creates a buffer holding at most capacity elements. A
// capacity below one is raised to one.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{items: make([]T, capacity)}
}

// Push appends v. When the buffer is full the oldest element is removed first
// and returned with evicted set to true.
func (rb *RingBuffer[T]) Push(v T) (old T, evicted bool) {
	capacity := len(rb.items)
	if rb.count == capacity {
		old = rb.items[rb.head]
		rb.items[rb.head] = v
		rb.head = (rb.head + 1) % capacity
		return old, true
	}
	rb.items[(rb.head+rb.count)%capacity] = v
	rb.count++
	return old, false
}

// Snapshot returns an independent copy of the contents, oldest first.
func (rb *RingBuffer[T]) Snapshot() []T {
	out := make([]T, rb.count)
	for i := 0; i < rb.count; i++ {
		out[i] = rb.items[(rb.head+i)%len(rb.items)]
	}
	return out
}

// Tail returns a copy of the newest n elements, oldest first.
func (rb *RingBuffer[T]) Tail(n int) []T {
	if n > rb.count {
		n = rb.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	start := rb.count - n
	for i := 0; i < n; i++ {
		out[i] = rb.items[(rb.head+start+i)%len(rb.items)]
	}
	return out
}

// Len returns the number of stored elements.
func (rb *RingBuffer[T]) Len() int { return rb.count }

// Cap returns the fixed capacity.
func (rb *RingBuffer[T]) Cap() int { return len(rb.items) }

// IsEmpty reports whether nothing has been pushed since the last Reset.
func (rb *RingBuffer[T]) IsEmpty() bool { return rb.count == 0 }

// Reset drops every element and releases references held by the backing array.
func (rb *RingBuffer[T]) Reset() {
	var zero T
	for i := range rb.items {
		rb.items[i] = zero
	}
	rb.head = 0
	rb.count = 0
}
