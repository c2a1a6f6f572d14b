package logbuf_test

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nixpig/buildhook/internal/jobs/logbuf"
)

const testCapacity = 1024 * 1024

func TestLogBuffer(t *testing.T) {
	t.Parallel()

	t.Run("Test basic scenarios", func(t *testing.T) {
		t.Parallel()

		scenarios := map[string]struct {
			payload []byte
			subs    int
			lateSub bool
		}{
			"Single subscriber": {
				payload: []byte("Hello, world!"),
				subs:    1,
				lateSub: false,
			},
			"Multiple subscribers": {
				payload: []byte("Hello, world!"),
				subs:    5,
				lateSub: false,
			},
			"Late subscriber": {
				payload: []byte("Hello, world!"),
				subs:    5,
				lateSub: true,
			},
			"Empty output": {
				payload: []byte(""),
				subs:    1,
				lateSub: false,
			},
			"Large output": {
				payload: bytes.Repeat([]byte("x"), 512*1024),
				subs:    1,
				lateSub: false,
			},
		}

		for scenario, config := range scenarios {
			t.Run(scenario, func(t *testing.T) {
				t.Parallel()

				b := logbuf.New(testCapacity)

				b.Consume(bytes.NewReader(config.payload))
				b.Close()

				if config.lateSub {
					<-b.Done()
				}

				errCh := make(chan error, config.subs)

				var wg sync.WaitGroup

				for range config.subs {
					wg.Go(func() {
						sub := b.Subscribe()
						defer sub.Close()

						got, err := io.ReadAll(sub)
						if err != nil {
							errCh <- fmt.Errorf("expected read all not to return error: got '%v'", err)
						}

						if string(got) != string(config.payload) {
							errCh <- fmt.Errorf(
								"expected stream data to match: got '%s', want '%s'",
								string(got),
								config.payload,
							)
						}
					})
				}

				wg.Wait()

				close(errCh)

				for err := range errCh {
					t.Error(err)
				}
			})
		}
	})

	t.Run("Test concurrent producers and subscribers", func(t *testing.T) {
		t.Parallel()

		writes := 1000
		subs := 50
		payload := []byte("Hello, world!")

		wantData := strings.Repeat(string(payload), writes)

		pr, pw := io.Pipe()

		b := logbuf.New(testCapacity)

		consumed := make(chan struct{})

		go func() {
			b.Consume(pr)
			b.Close()
			close(consumed)
		}()

		errCh := make(chan error, subs)

		var writerWg sync.WaitGroup

		for range writes {
			writerWg.Go(func() {
				pw.Write(payload)
			})
		}

		var readerWg sync.WaitGroup

		for range subs {
			readerWg.Go(func() {
				sub := b.Subscribe()
				defer sub.Close()

				got, err := io.ReadAll(sub)
				if err != nil {
					errCh <- fmt.Errorf("expected read all not to return error: got '%v'", err)
				}

				if len(got) != len(wantData) {
					errCh <- fmt.Errorf(
						"expected stream length to match: got '%d', want '%d'",
						len(got),
						len(wantData),
					)
				}
			})
		}

		writerWg.Wait()
		pw.Close()
		<-consumed
		readerWg.Wait()

		close(errCh)

		for err := range errCh {
			t.Error(err)
		}
	})

	t.Run("Test truncation at capacity", func(t *testing.T) {
		t.Parallel()

		capacity := 64
		payload := bytes.Repeat([]byte("a"), 200)

		b := logbuf.New(capacity)

		b.Consume(bytes.NewReader(payload))
		b.Close()

		if b.Len() != capacity {
			t.Errorf("expected length to equal capacity: got '%d', want '%d'", b.Len(), capacity)
		}

		sub := b.Subscribe()
		defer sub.Close()

		got, err := io.ReadAll(sub)
		if err != nil {
			t.Errorf("expected read not to return error: got '%v'", err)
		}

		if string(got) != string(payload[:capacity]) {
			t.Errorf("expected exactly the first %d bytes to be retained", capacity)
		}
	})

	t.Run("Test source drained even when full", func(t *testing.T) {
		t.Parallel()

		// The source is far larger than capacity; Consume must read it to EOF
		// rather than stalling once the buffer fills.
		b := logbuf.New(16)

		finished := make(chan struct{})

		go func() {
			b.Consume(bytes.NewReader(bytes.Repeat([]byte("x"), 1024*1024)))
			close(finished)
		}()

		select {
		case <-finished:
		case <-time.After(2 * time.Second):
			t.Errorf("expected full source to be drained to EOF")
		}

		b.Close()
	})

	t.Run("Test read from closed sub", func(t *testing.T) {
		t.Parallel()

		b := logbuf.New(testCapacity)

		sub := b.Subscribe()

		// Close immediately.
		sub.Close()

		n, err := sub.Read([]byte{})

		if n != 0 {
			t.Errorf("expected to read zero bytes: got '%d'", n)
		}

		if err != io.EOF {
			t.Errorf("expected error to be EOF: got '%v'", err)
		}

		b.Close()
	})

	t.Run("Test closing a closed sub", func(t *testing.T) {
		t.Parallel()

		b := logbuf.New(testCapacity)
		b.Consume(strings.NewReader("Hello, world!"))

		sub := b.Subscribe()

		if err := sub.Close(); err != nil {
			t.Errorf("expected close sub not to return error: got '%v'", err)
		}

		if err := sub.Close(); err != io.ErrClosedPipe {
			t.Errorf(
				"expected sub close error to be ErrClosedPipe: got '%v'",
				err,
			)
		}

		b.Close()
	})

	t.Run("Test final bytes flushed when close races append", func(t *testing.T) {
		t.Parallel()

		payload := []byte("last-chunk-before-exit")

		b := logbuf.New(testCapacity)

		sub := b.Subscribe()
		defer sub.Close()

		readCh := make(chan []byte)
		errCh := make(chan error, 1)

		go func() {
			got, err := io.ReadAll(sub)
			if err != nil {
				errCh <- fmt.Errorf("expected read not to return error: got '%v'", err)
				return
			}

			readCh <- got
		}()

		select {
		case <-readCh:
			t.Errorf("expected read not to return before buffer close")
		case err := <-errCh:
			t.Error(err)
		case <-time.After(50 * time.Millisecond):
			// Wait until blocked.
		}

		// Append and close back-to-back with no intervening read, simulating
		// a process whose exit is observed in the same scheduling interval as
		// its final output flush.
		b.Consume(bytes.NewReader(payload))
		b.Close()

		select {
		case got := <-readCh:
			if string(got) != string(payload) {
				t.Errorf(
					"expected final bytes to be flushed: got '%s', want '%s'",
					string(got),
					payload,
				)
			}
		case err := <-errCh:
			t.Error(err)
		case <-time.After(500 * time.Millisecond):
			t.Errorf("expected subscriber to observe final bytes and EOF")
		}
	})

	t.Run("Test repeated subscriptions after close are identical", func(t *testing.T) {
		t.Parallel()

		payload := []byte("build output\nall done\n")

		b := logbuf.New(testCapacity)
		b.Consume(bytes.NewReader(payload))
		b.Close()

		for range 2 {
			sub := b.Subscribe()

			got, err := io.ReadAll(sub)
			if err != nil {
				t.Errorf("expected read not to return error: got '%v'", err)
			}

			if string(got) != string(payload) {
				t.Errorf(
					"expected replay to match captured output: got '%s', want '%s'",
					string(got),
					payload,
				)
			}

			sub.Close()
		}
	})
}
