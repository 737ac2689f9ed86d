package llm

import (
	"sync"
)

// ChunkStream is a finite, ordered, single-pass sequence of chunks.
//
// Usage follows the scanner idiom:
//
//	for s.Next() {
//		c := s.Current()
//	}
//	err := s.Err()
//
// Close releases the underlying connection and is safe to call more than once.
type ChunkStream interface {
	Next() bool
	Current() Chunk
	Err() error
	Close() error
}

// SliceStream replays a fixed list of chunks, then ends with err.
type SliceStream struct {
	mu     sync.Mutex
	chunks []Chunk
	err    error
	pos    int
	cur    Chunk
	done   bool
	closed bool
}

var _ ChunkStream = (*SliceStream)(nil)

// NewSliceStream creates a stream over chunks. A non-nil err is reported
// by Err once the chunks are exhausted.
func NewSliceStream(chunks []Chunk, err error) *SliceStream {
	return &SliceStream{chunks: chunks, err: err}
}

func (s *SliceStream) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pos >= len(s.chunks) {
		s.done = true
		return false
	}
	s.cur = s.chunks[s.pos]
	s.pos++
	return true
}

func (s *SliceStream) Current() Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

func (s *SliceStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done && !s.closed {
		return s.err
	}
	return nil
}

func (s *SliceStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *SliceStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// translatedStream adapts a provider-native event source into chunks.
// One native event may expand into zero or more chunks.
type translatedStream[E any] struct {
	next      func() (E, bool)
	srcErr    func() error
	close     func() error
	translate func(E) ([]Chunk, error)

	pending  []Chunk
	cur      Chunk
	err      error
	once     sync.Once
	closeErr error
}

func (s *translatedStream[E]) Next() bool {
	for {
		if len(s.pending) > 0 {
			s.cur = s.pending[0]
			s.pending = s.pending[1:]
			return true
		}
		if s.err != nil {
			return false
		}
		ev, ok := s.next()
		if !ok {
			return false
		}
		chunks, err := s.translate(ev)
		if err != nil {
			s.err = err
			return false
		}
		s.pending = chunks
	}
}

func (s *translatedStream[E]) Current() Chunk {
	return s.cur
}

func (s *translatedStream[E]) Err() error {
	if s.err != nil {
		return s.err
	}
	if s.srcErr != nil {
		return s.srcErr()
	}
	return nil
}

func (s *translatedStream[E]) Close() error {
	s.once.Do(func() {
		if s.close != nil {
			s.closeErr = s.close()
		}
	})
	return s.closeErr
}

// rawEvent is implemented by SDK stream event unions.
type rawEvent interface {
	RawJSON() string
}

// eventSource is the shape of the SDKs' server-sent-event streams.
type eventSource[T rawEvent] interface {
	Next() bool
	Current() T
	Err() error
	Close() error
}

// newRawStream wraps an SSE stream, translating each event from its raw JSON.
func newRawStream[T rawEvent](src eventSource[T], translate func(raw string) ([]Chunk, error)) *translatedStream[string] {
	return &translatedStream[string]{
		next: func() (string, bool) {
			if !src.Next() {
				return "", false
			}
			return src.Current().RawJSON(), true
		},
		srcErr:    src.Err,
		close:     src.Close,
		translate: translate,
	}
}

// decodeResponsesEvent translates a Responses API event one-to-one.
func decodeResponsesEvent(raw string) ([]Chunk, error) {
	c, err := DecodeChunk(raw)
	if err != nil {
		return nil, err
	}
	return []Chunk{c}, nil
}
