package stream

// BoundedBuffer accumulates streamed text up to a fixed capacity, dropping
// the oldest content from the front when full. Reasoning streams can run to
// megabytes; the buffer keeps memory flat while preserving the most recent
// output, which is the part the UI shows.
type BoundedBuffer struct {
	capacity int
	buf      []byte
}

// NewBoundedBuffer creates a buffer that holds at most capacity bytes.
// A capacity <= 0 yields a buffer that discards everything.
func NewBoundedBuffer(capacity int) *BoundedBuffer {
	if capacity < 0 {
		capacity = 0
	}
	return &BoundedBuffer{capacity: capacity}
}

// Append adds s to the end of the buffer, evicting from the front as needed.
func (b *BoundedBuffer) Append(s string) {
	if len(s) >= b.capacity {
		// The new chunk alone fills the buffer; keep its tail.
		b.buf = append(b.buf[:0], s[len(s)-b.capacity:]...)
		return
	}
	b.buf = append(b.buf, s...)
	if over := len(b.buf) - b.capacity; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
}

// String returns the current contents.
func (b *BoundedBuffer) String() string {
	return string(b.buf)
}

// Len returns the current length in bytes.
func (b *BoundedBuffer) Len() int {
	return len(b.buf)
}

// Cap returns the configured capacity.
func (b *BoundedBuffer) Cap() int {
	return b.capacity
}

// Reset discards all contents, keeping the capacity.
func (b *BoundedBuffer) Reset() {
	b.buf = b.buf[:0]
}
