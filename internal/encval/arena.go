package encval

// chunkSize is the number of slots per arena chunk.
const chunkSize = 256

// Arena is an append-only store addressed by dense uint32 positions.
// Storage is a list of fixed-size chunks that are never reallocated, so
// a pointer returned by Reserve or At stays valid for the lifetime of the
// arena even while later elements are appended.
type Arena[T any] struct {
	chunks []*[chunkSize]T
	n      uint32
}

// Reserve allocates the next slot and returns its position and a stable
// pointer to it. The slot holds the zero value until the caller fills it.
func (a *Arena[T]) Reserve() (uint32, *T) {
	pos := a.n
	c := int(pos / chunkSize)
	if c == len(a.chunks) {
		a.chunks = append(a.chunks, new([chunkSize]T))
	}
	a.n++
	return pos, &a.chunks[c][pos%chunkSize]
}

// Append stores v in a new slot and returns its position.
func (a *Arena[T]) Append(v T) uint32 {
	pos, p := a.Reserve()
	*p = v
	return pos
}

// At returns a pointer to the element at pos, or nil if pos has not
// been reserved.
func (a *Arena[T]) At(pos uint32) *T {
	if pos >= a.n {
		return nil
	}
	return &a.chunks[pos/chunkSize][pos%chunkSize]
}

// Len returns the number of reserved slots.
func (a *Arena[T]) Len() int { return int(a.n) }

// Slice copies the arena contents, in position order, into a new slice.
func (a *Arena[T]) Slice() []T {
	out := make([]T, 0, a.n)
	for i, c := range a.chunks {
		n := chunkSize
		if rem := int(a.n) - i*chunkSize; rem < n {
			n = rem
		}
		out = append(out, c[:n]...)
	}
	return out
}

// Truncate drops every element at position n and above. Dropped slots
// are zeroed so a later Reserve hands them out empty.
func (a *Arena[T]) Truncate(n int) {
	if n < 0 || uint32(n) >= a.n {
		return
	}
	var zero T
	for pos := uint32(n); pos < a.n; pos++ {
		a.chunks[pos/chunkSize][pos%chunkSize] = zero
	}
	a.n = uint32(n)
}

// Reset drops every element.
func (a *Arena[T]) Reset() {
	a.chunks = nil
	a.n = 0
}
