package stream

import (
	"fmt"
	"strings"
	"time"

	"github.com/richinex/verity/events"
	"github.com/richinex/verity/llm"
)

// Accumulator collects what one streaming operation produced.
// It is owned by a single Consume call and never shared.
type Accumulator struct {
	reasoning     strings.Builder
	answer        strings.Builder
	searchQueries []string
	chunks        int

	reasoningAnnounced bool
	answeringAnnounced bool
}

// Reasoning returns the concatenated reasoning deltas.
func (a *Accumulator) Reasoning() string { return a.reasoning.String() }

// Answer returns the concatenated answer deltas.
func (a *Accumulator) Answer() string { return a.answer.String() }

// SearchQueries returns the queries in order of appearance. Never nil.
func (a *Accumulator) SearchQueries() []string {
	out := make([]string, len(a.searchQueries))
	copy(out, a.searchQueries)
	return out
}

// Chunks returns how many chunks were consumed, including ignored ones.
func (a *Accumulator) Chunks() int { return a.chunks }

// Consume drains chunks, emitting events for each recognized chunk before
// pulling the next one. The stream is always closed.
//
// On a stream fault or an emitter failure Consume stops at once and returns
// the error with no accumulator.
func Consume(chunks llm.ChunkStream, emit events.Emitter) (*Accumulator, error) {
	return consume(chunks, emit, time.Now)
}

func consume(chunks llm.ChunkStream, emit events.Emitter, now func() time.Time) (*Accumulator, error) {
	defer chunks.Close()

	acc := &Accumulator{}
	for chunks.Next() {
		acc.chunks++
		if err := acc.apply(chunks.Current(), emit, now); err != nil {
			return nil, err
		}
	}
	if err := chunks.Err(); err != nil {
		return nil, err
	}
	return acc, nil
}

func (a *Accumulator) apply(c llm.Chunk, emit events.Emitter, now func() time.Time) error {
	switch Classify(c) {
	case PhaseReasoning:
		if !a.reasoningAnnounced {
			a.reasoningAnnounced = true
			if err := send(emit, events.KindThinkingStart, stamp(now)); err != nil {
				return err
			}
		}
		a.reasoning.WriteString(c.Delta)
		return send(emit, events.KindThinkingDelta, map[string]any{"delta": c.Delta})

	case PhaseSearchStarted:
		return send(emit, events.KindSearchStart, stamp(now))

	case PhaseSearchCompleted:
		return send(emit, events.KindSearchComplete, stamp(now))

	case PhaseSearchQuery:
		query := c.Item.Action.Query
		a.searchQueries = append(a.searchQueries, query)
		return send(emit, events.KindSearchQuery, map[string]any{"query": query})

	case PhaseAnswer:
		if !a.answeringAnnounced {
			a.answeringAnnounced = true
			if err := send(emit, events.KindAnswerStart, stamp(now)); err != nil {
				return err
			}
		}
		a.answer.WriteString(c.Delta)
		return send(emit, events.KindAnswerDelta, map[string]any{"delta": c.Delta})
	}
	return nil
}

func stamp(now func() time.Time) map[string]any {
	return map[string]any{"timestamp": events.Timestamp(now())}
}

func send(emit events.Emitter, kind events.Kind, data map[string]any) error {
	if err := emit.Emit(kind, data); err != nil {
		return fmt.Errorf("emit %s: %w", kind, err)
	}
	return nil
}
