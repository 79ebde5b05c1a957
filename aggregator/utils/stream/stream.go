// Package stream carries in-order text increments from a producer (a model
// provider, a websocket reader) to a single consumer, with an explicit
// completion result and cancellation.
package stream

import (
	"context"
	"sync"
)

type Stream struct {
	chunks chan string
	ctx    context.Context
	cancel context.CancelFunc

	once  sync.Once
	model string
	err   error
}

// New returns a stream bound to parent. The producer must call Finish exactly
// once; later calls are ignored.
func New(parent context.Context) *Stream {
	ctx, cancel := context.WithCancel(parent)
	return &Stream{
		chunks: make(chan string, 16),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Static wraps a complete, non-streamed response.
func Static(text, model string) *Stream {
	s := New(context.Background())
	go func() {
		if text != "" {
			s.Emit(text)
		}
		s.Finish(model, nil)
	}()
	return s
}

// Failed returns an already-finished stream carrying err.
func Failed(err error) *Stream {
	s := New(context.Background())
	s.Finish("", err)
	return s
}

// Context is done once the consumer cancels; producers should stop reading
// their upstream when it is.
func (s *Stream) Context() context.Context { return s.ctx }

// Emit delivers one increment. It returns false if the stream was cancelled.
func (s *Stream) Emit(chunk string) bool {
	select {
	case s.chunks <- chunk:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Finish records the served model and the terminal error, then closes Chunks.
// A cancelled stream reports the context error when err is nil.
func (s *Stream) Finish(model string, err error) {
	s.once.Do(func() {
		if err == nil && s.ctx.Err() != nil {
			err = s.ctx.Err()
		}
		s.model = model
		s.err = err
		close(s.chunks)
		s.cancel()
	})
}

func (s *Stream) Chunks() <-chan string { return s.chunks }

// Err is valid after Chunks is closed.
func (s *Stream) Err() error { return s.err }

// Model is valid after Chunks is closed.
func (s *Stream) Model() string { return s.model }

func (s *Stream) Cancel() { s.cancel() }

// Collect drains the stream and returns the concatenated text.
func (s *Stream) Collect() (string, error) {
	var text string
	for c := range s.chunks {
		text += c
	}
	return text, s.err
}
