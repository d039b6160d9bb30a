package ring

// Buffer keeps the most recent entries up to a fixed capacity. The oldest
// entry is dropped when a push would exceed the capacity. Buffer is not safe
// for concurrent use; owners serialize access.
type Buffer[T any] struct {
	items []T
	start int
	size  int
	total int
}

// New creates a buffer holding at most capacity entries (minimum 1).
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest entry when full.
func (b *Buffer[T]) Push(v T) {
	c := len(b.items)
	if b.size < c {
		b.items[(b.start+b.size)%c] = v
		b.size++
	} else {
		b.items[b.start] = v
		b.start = (b.start + 1) % c
	}
	b.total++
}

// Len is the number of retained entries.
func (b *Buffer[T]) Len() int { return b.size }

// Total is the number of entries ever pushed.
func (b *Buffer[T]) Total() int { return b.total }

// Last returns up to n most recent entries, oldest first.
func (b *Buffer[T]) Last(n int) []T {
	if n > b.size {
		n = b.size
	}
	if n <= 0 {
		return []T{}
	}
	out := make([]T, n)
	c := len(b.items)
	offset := b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.items[(b.start+offset+i)%c]
	}
	return out
}

// All returns every retained entry, oldest first.
func (b *Buffer[T]) All() []T { return b.Last(b.size) }
