package llm

import (
	"errors"

	"github.com/tidwall/gjson"
)

// Chunk type strings of the Responses API stream protocol.
const (
	ChunkReasoningDelta   = "response.reasoning_summary_text.delta"
	ChunkOutputTextDelta  = "response.output_text.delta"
	ChunkOutputItemDone   = "response.output_item.done"
	ChunkSearchInProgress = "response.web_search_call.in_progress"
	ChunkSearchSearching  = "response.web_search_call.searching"
	ChunkSearchCompleted  = "response.web_search_call.completed"
)

// SearchItemPrefix marks output item ids that belong to web search calls.
const SearchItemPrefix = "ws_"

// ItemWebSearchCall is the output item type of a web search call.
const ItemWebSearchCall = "web_search_call"

// ErrMalformedChunk is returned when a stream event is not a JSON object.
var ErrMalformedChunk = errors.New("malformed stream chunk")

// Chunk is one incremental piece of a streaming response.
type Chunk struct {
	Type  string
	Delta string
	Item  *OutputItem
}

// OutputItem is the finished item carried by an output_item.done chunk.
type OutputItem struct {
	ID     string
	Type   string
	Status string
	Action *SearchAction
}

// SearchAction describes what a web search call did.
type SearchAction struct {
	Type  string
	Query string
}

// ReasoningDelta creates a reasoning-summary text chunk.
func ReasoningDelta(delta string) Chunk {
	return Chunk{Type: ChunkReasoningDelta, Delta: delta}
}

// TextDelta creates an answer text chunk.
func TextDelta(delta string) Chunk {
	return Chunk{Type: ChunkOutputTextDelta, Delta: delta}
}

// SearchInProgress creates a chunk announcing that a web search started.
func SearchInProgress(itemID string) Chunk {
	return Chunk{Type: ChunkSearchInProgress, Item: &OutputItem{ID: itemID, Type: ItemWebSearchCall, Status: "in_progress"}}
}

// SearchCompleted creates a chunk announcing that a web search finished.
func SearchCompleted(itemID string) Chunk {
	return Chunk{Type: ChunkSearchCompleted, Item: &OutputItem{ID: itemID, Type: ItemWebSearchCall, Status: "completed"}}
}

// SearchDone creates the output_item.done chunk of a web search that ran query.
func SearchDone(itemID, query string) Chunk {
	return Chunk{
		Type: ChunkOutputItemDone,
		Item: &OutputItem{
			ID:     itemID,
			Type:   ItemWebSearchCall,
			Status: "completed",
			Action: &SearchAction{Type: "search", Query: query},
		},
	}
}

// DecodeChunk decodes one raw Responses API stream event.
func DecodeChunk(raw string) (Chunk, error) {
	if !gjson.Valid(raw) {
		return Chunk{}, ErrMalformedChunk
	}
	ev := gjson.Parse(raw)
	if !ev.IsObject() {
		return Chunk{}, ErrMalformedChunk
	}

	c := Chunk{Type: ev.Get("type").String()}
	if d := ev.Get("delta"); d.Type == gjson.String {
		c.Delta = d.String()
	}
	if item := ev.Get("item"); item.IsObject() {
		out := &OutputItem{
			ID:     item.Get("id").String(),
			Type:   item.Get("type").String(),
			Status: item.Get("status").String(),
		}
		if q := item.Get("action.query"); q.Exists() {
			out.Action = &SearchAction{
				Type:  item.Get("action.type").String(),
				Query: q.String(),
			}
		}
		c.Item = out
	}
	return c, nil
}
