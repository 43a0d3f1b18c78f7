package reactor

// DefaultBufferSize is the telemetry history length used when none is set.
const DefaultBufferSize = 100

// RingBuffer is a fixed-capacity FIFO. Appending to a full buffer evicts the
// oldest element.
//
// RingBuffer is not safe for concurrent use.
type RingBuffer[T any] struct {
	items []T
	start int // index of the oldest element
	size  int
}

// NewRingBuffer creates a buffer holding at most capacity elements.
// A capacity below 1 selects DefaultBufferSize.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = DefaultBufferSize
	}
	return &RingBuffer[T]{items: make([]T, capacity)}
}

// Append adds v as the newest element in O(1).
func (b *RingBuffer[T]) Append(v T) {
	if b.size < len(b.items) {
		b.items[(b.start+b.size)%len(b.items)] = v
		b.size++
		return
	}
	b.items[b.start] = v
	b.start = (b.start + 1) % len(b.items)
}

// Snapshot returns the elements oldest first. The returned slice is a copy
// and is never modified by later appends.
func (b *RingBuffer[T]) Snapshot() []T {
	out := make([]T, b.size)
	n := copy(out, b.items[b.start:min(b.start+b.size, len(b.items))])
	copy(out[n:], b.items[:b.size-n])
	return out
}

// Len returns the number of buffered elements.
func (b *RingBuffer[T]) Len() int { return b.size }

// Cap returns the fixed capacity.
func (b *RingBuffer[T]) Cap() int { return len(b.items) }
