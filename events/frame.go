package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Frame markers. A frame occupies one line:
//
//	__EVENT__{"type":"answer_delta","data":{"delta":"…"},"timestamp":"…"}__END__
//
// so a line-oriented reader can separate frames from log output written to
// the same channel.
const (
	FrameStart = "__EVENT__"
	FrameEnd   = "__END__"
)

// Marker text can only occur inside JSON strings, where an escaped
// underscore decodes to the same value.
var markerEscaper = strings.NewReplacer(
	FrameStart, `\u005f_EVENT__`,
	FrameEnd, `\u005f_END__`,
)

// EncodeFrame serializes ev as a complete frame line including the trailing
// newline. Non-ASCII text is written verbatim.
func EncodeFrame(ev Event) ([]byte, error) {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ev); err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", ev.Type, err)
	}

	payload := markerEscaper.Replace(strings.TrimRight(body.String(), "\n"))

	frame := make([]byte, 0, len(FrameStart)+len(payload)+len(FrameEnd)+1)
	frame = append(frame, FrameStart...)
	frame = append(frame, payload...)
	frame = append(frame, FrameEnd...)
	frame = append(frame, '\n')
	return frame, nil
}

// EncodeLine serializes v as a single JSON line that a Scanner reports as
// output rather than as a frame.
func EncodeLine(v any) ([]byte, error) {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode line: %w", err)
	}
	return []byte(markerEscaper.Replace(body.String())), nil
}

// DecodeFrame parses the JSON between the markers of one frame.
func DecodeFrame(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode event frame: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("event frame has no type")
	}
	if !ev.Type.Known() {
		return Event{}, fmt.Errorf("unknown event type %q", ev.Type)
	}
	return ev, nil
}

type flusher interface {
	Flush() error
}

// FrameWriter is the Emitter used when events share an output channel with
// other text, typically stdout of a child process.
type FrameWriter struct {
	w   io.Writer
	now func() time.Time
}

// NewFrameWriter returns a FrameWriter writing to w.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w, now: time.Now}
}

// WithClock replaces the timestamp source.
func (fw *FrameWriter) WithClock(now func() time.Time) *FrameWriter {
	fw.now = now
	return fw
}

// Emit writes one frame with a single Write call and flushes w if it
// buffers.
func (fw *FrameWriter) Emit(kind Kind, data any) error {
	frame, err := EncodeFrame(New(kind, data, fw.now()))
	if err != nil {
		return err
	}
	if _, err := fw.w.Write(frame); err != nil {
		return fmt.Errorf("failed to write %s event: %w", kind, err)
	}
	if f, ok := fw.w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("failed to flush %s event: %w", kind, err)
		}
	}
	return nil
}

var _ Emitter = (*FrameWriter)(nil)
