package logbuf

import (
	"io"
	"sync/atomic"
)

// reader is a single subscription to a Buffer. It tracks its own cursor
// into the captured output and blocks waiting for new data as it arrives.
// It implements io.ReadCloser and is safe for concurrent use.
type reader struct {
	cursor int
	closed atomic.Bool

	b *Buffer
}

// Read performs a blocking read of captured output. Once the reader's
// cursor has caught up with everything the buffer will ever hold, it
// returns io.EOF.
func (r *reader) Read(p []byte) (n int, err error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()

	// Wait while caught up but more output may still arrive. Broadcast fires
	// on append, on buffer close, and on reader close.
	for r.cursor >= r.b.length && !r.finished() {
		r.b.cond.Wait()
	}

	if r.finished() {
		return 0, io.EOF
	}

	available := r.b.length - r.cursor
	n = copy(p, r.b.data[r.cursor:r.cursor+min(available, len(p))])

	r.cursor += n

	return n, nil
}

// Close cancels the subscription and wakes any blocked Read. Closing an
// already-closed reader returns io.ErrClosedPipe.
func (r *reader) Close() error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()

	if r.closed.Swap(true) {
		return io.ErrClosedPipe
	}

	r.b.cond.Broadcast()

	return nil
}

func (r *reader) finished() bool {
	// The subscription is finished if the client closed it, or the buffer is
	// closed and every captured byte has been delivered. The ordering matters:
	// a closed buffer with undelivered bytes must drain before EOF.
	return r.closed.Load() || (r.b.isDone() && r.cursor >= r.b.length)
}
