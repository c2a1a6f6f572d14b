// Package logbuf provides a bounded, append-only capture of a job's output
// with concurrent streaming to subscribers. Multiple clients can subscribe
// to a Buffer and each receive the complete captured output from the
// beginning, followed by live updates until the buffer is closed.
package logbuf

import (
	"io"
	"sync"
)

const (
	// readChunkSize is the temporary buffer size for draining a source pipe.
	// 4KB aligns with typical pipe buffer sizes.
	readChunkSize = 4096
)

// Buffer captures job output into a fixed-capacity byte buffer. Writes
// beyond capacity are silently dropped; the buffer is never reallocated.
// Subscribers replay everything captured so far and then block for more
// until Close is called.
type Buffer struct {
	// data is allocated once at the configured capacity. length marks how
	// much has been written and only ever grows while the buffer is open.
	data   []byte
	length int

	done chan struct{}
	mu   sync.Mutex
	cond sync.Cond
}

// New creates a Buffer that retains at most capacity bytes.
func New(capacity int) *Buffer {
	b := &Buffer{
		data: make([]byte, capacity),
		done: make(chan struct{}),
	}

	b.cond.L = &b.mu

	return b
}

// Consume drains source into the buffer until EOF, dropping bytes once the
// buffer is full. It keeps reading a full source even after truncation so
// the writing process never blocks on a full pipe. Safe to call from
// multiple goroutines appending into the same Buffer.
func (b *Buffer) Consume(source io.Reader) {
	chunk := make([]byte, readChunkSize)

	for {
		n, err := source.Read(chunk)
		if n > 0 {
			b.append(chunk[:n])
		}

		if err != nil {
			// EOF and transport errors are both terminal for this source; the
			// caller decides when all sources are drained and closes the buffer.
			return
		}
	}
}

func (b *Buffer) append(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room := len(b.data) - b.length
	if room <= 0 {
		return
	}

	n := copy(b.data[b.length:], p)
	b.length += n

	b.cond.Broadcast()
}

// Close marks the buffer complete and wakes all blocked subscribers. It
// must only be called after every byte that will ever be appended has been
// appended; subscribers rely on that to drain fully before EOF. Calling
// Close more than once panics.
func (b *Buffer) Close() {
	close(b.done)

	b.mu.Lock()
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Len returns the number of bytes captured so far.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.length
}

// Subscribe returns an io.ReadCloser that replays the captured output from
// the beginning and then blocks for live updates until the buffer closes.
// Close cancels the subscription without affecting other subscribers.
func (b *Buffer) Subscribe() io.ReadCloser {
	return &reader{b: b}
}

// Done returns a channel that is closed when the buffer has been closed,
// i.e. no further output will be captured.
func (b *Buffer) Done() <-chan struct{} {
	return b.done
}

func (b *Buffer) isDone() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}
