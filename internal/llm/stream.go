package llm

import "sync"

// Stream is a single-pass, ordered, finite sequence of text deltas from one
// chat call. The producer goroutine closes Deltas when the provider stream
// ends; FinalResult blocks until then, so it may be called before, during,
// or after the stream is drained.
type Stream struct {
	deltas chan string
	done   chan struct{}

	once   sync.Once
	result *Result
	err    error
}

func newStream() *Stream {
	return &Stream{
		deltas: make(chan string, 32),
		done:   make(chan struct{}),
	}
}

// Deltas returns the ordered delta channel. Consume it to completion; the
// channel is closed when the provider stream ends.
func (s *Stream) Deltas() <-chan string {
	return s.deltas
}

// FinalResult waits for the stream to finish and returns the accumulated
// result. Unread deltas are drained and discarded so a caller that skips
// Deltas cannot wedge the producer behind the channel buffer. On mid-stream
// failure the result carries the partial content and err is non-nil.
func (s *Stream) FinalResult() (*Result, error) {
	for {
		select {
		case <-s.done:
			return s.result, s.err
		case _, ok := <-s.deltas:
			if !ok {
				<-s.done
				return s.result, s.err
			}
		}
	}
}

// finish records the outcome and releases FinalResult waiters. The producer
// must close the deltas channel before calling finish.
func (s *Stream) finish(result *Result, err error) {
	s.once.Do(func() {
		s.result = result
		s.err = err
		close(s.done)
	})
}
