// Package stream folds a live chunk sequence into events and accumulated text.
//
// Information Hiding:
// - Which chunk type strings map to which phase of the analysis
// - Announce-once bookkeeping for the thinking and answering phases
// - Event payload shapes
package stream

import (
	"strings"

	"github.com/richinex/verity/llm"
)

// Phase is what a single chunk means to the analysis.
type Phase int

const (
	// PhaseIgnored covers chunks outside the recognized vocabulary.
	PhaseIgnored Phase = iota
	// PhaseReasoning is a reasoning-summary delta.
	PhaseReasoning
	// PhaseSearchStarted is a web search entering its in-progress state.
	PhaseSearchStarted
	// PhaseSearchCompleted is a web search finishing.
	PhaseSearchCompleted
	// PhaseSearchQuery is a finished search item that carries its query.
	PhaseSearchQuery
	// PhaseAnswer is an answer text delta.
	PhaseAnswer
)

func (p Phase) String() string {
	switch p {
	case PhaseReasoning:
		return "reasoning"
	case PhaseSearchStarted:
		return "search_started"
	case PhaseSearchCompleted:
		return "search_completed"
	case PhaseSearchQuery:
		return "search_query"
	case PhaseAnswer:
		return "answer"
	default:
		return "ignored"
	}
}

const (
	markerInProgress = "in_progress"
	markerCompleted  = "completed"
)

// Classify maps a chunk to its phase. Rules are tried in order and the first
// match wins.
//
// Search lifecycle tags are matched by substring so that variants such as
// "response.web_search_call.in_progress" and vendor-prefixed forms are
// accepted. A search lifecycle tag carrying neither marker is ignored and
// not tried against the later rules. All other tags match exactly.
func Classify(c llm.Chunk) Phase {
	switch {
	case c.Type == llm.ChunkReasoningDelta:
		return PhaseReasoning
	case strings.Contains(c.Type, llm.ItemWebSearchCall):
		switch {
		case strings.Contains(c.Type, markerInProgress):
			return PhaseSearchStarted
		case strings.Contains(c.Type, markerCompleted):
			return PhaseSearchCompleted
		}
		return PhaseIgnored
	case c.Type == llm.ChunkOutputItemDone:
		if isSearchQuery(c.Item) {
			return PhaseSearchQuery
		}
		return PhaseIgnored
	case c.Type == llm.ChunkOutputTextDelta:
		return PhaseAnswer
	}
	return PhaseIgnored
}

func isSearchQuery(item *llm.OutputItem) bool {
	return item != nil &&
		strings.HasPrefix(item.ID, llm.SearchItemPrefix) &&
		item.Action != nil
}
