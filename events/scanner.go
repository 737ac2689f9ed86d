package events

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// MaxLineSize bounds a single line read by Scanner. A complete event carries
// the whole result, so lines can be large.
const MaxLineSize = 16 << 20

// Scanner splits a reader into event frames and ordinary output lines.
type Scanner struct {
	// OnEvent receives every decoded frame in stream order.
	OnEvent func(Event)
	// OnOutput receives each line's text outside frames, when non-empty.
	OnOutput func(line string)
	// OnError receives frames that could not be decoded. They are skipped.
	OnError func(err error, payload string)
}

// Scan reads r to EOF.
func (s *Scanner) Scan(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	for sc.Scan() {
		s.scanLine(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read event stream: %w", err)
	}
	return nil
}

func (s *Scanner) scanLine(line string) {
	var rest strings.Builder
	for {
		start := strings.Index(line, FrameStart)
		if start == -1 {
			break
		}
		end := strings.Index(line[start+len(FrameStart):], FrameEnd)
		if end == -1 {
			break
		}
		rest.WriteString(line[:start])

		payload := line[start+len(FrameStart) : start+len(FrameStart)+end]
		line = line[start+len(FrameStart)+end+len(FrameEnd):]

		ev, err := DecodeFrame(payload)
		if err != nil {
			if s.OnError != nil {
				s.OnError(err, payload)
			}
			continue
		}
		if s.OnEvent != nil {
			s.OnEvent(ev)
		}
	}
	rest.WriteString(line)

	if s.OnOutput != nil && strings.TrimSpace(rest.String()) != "" {
		s.OnOutput(rest.String())
	}
}
