// Package storage provides analysis history storage.
//
// Information Hiding:
// - Storage backend implementation details hidden behind interface
// - Allows swapping between memory and SQLite without API changes
// - Each storage implementation encapsulates its own data structures

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/richinex/verity/analysis"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("record not found")

	// ErrAmbiguousID is returned by ResolveID when a prefix matches more
	// than one record.
	ErrAmbiguousID = errors.New("ambiguous record id")
)

// HistoryStorage defines the interface for storing analysis history.
type HistoryStorage interface {
	// Save stores a record, replacing any record with the same id.
	Save(ctx context.Context, rec Record) error

	// Get loads one record. Returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (Record, error)

	// List returns the newest records first. A limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Record, error)

	// Delete removes one record. Returns ErrNotFound for unknown ids.
	Delete(ctx context.Context, id string) error

	// Clear removes every record and reports how many were removed.
	Clear(ctx context.Context) (int64, error)

	// IDsWithPrefix returns up to limit ids starting with prefix, sorted.
	IDsWithPrefix(ctx context.Context, prefix string, limit int) ([]string, error)
}

// ResolveID expands an id or unique id prefix to the full id.
func ResolveID(ctx context.Context, storage HistoryStorage, ref string) (string, error) {
	if ref == "" {
		return "", ErrNotFound
	}
	ids, err := storage.IDsWithPrefix(ctx, ref, 2)
	if err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousID, ref)
	}
}

// Record is one stored analysis: the request summary, the verdict columns
// used for listing, and the full result.
type Record struct {
	ID          string          `json:"id"`
	CreatedAt   time.Time       `json:"createdAt"`
	Text        string          `json:"text,omitempty"`
	SourceURL   string          `json:"sourceUrl,omitempty"`
	ImageCount  int             `json:"imageCount"`
	Stream      bool            `json:"stream"`
	WebSearch   bool            `json:"webSearch"`
	Success     bool            `json:"success"`
	Probability *float64        `json:"probability,omitempty"`
	VerdictType int             `json:"type,omitempty"`
	Error       string          `json:"error,omitempty"`
	Result      analysis.Result `json:"result"`
}

// NewRecord builds a record for a produced result with a fresh id.
func NewRecord(req analysis.Request, res analysis.Result, at time.Time) Record {
	rec := Record{
		ID:         uuid.NewString(),
		CreatedAt:  at,
		Text:       req.Text,
		SourceURL:  req.SourceURL,
		ImageCount: len(req.ImageURLs),
		Stream:     req.Stream,
		WebSearch:  req.WebSearch(),
		Success:    res.Success(),
		Error:      res.ErrorMessage(),
		Result:     res,
	}
	if p, ok := res["probability"].(float64); ok {
		rec.Probability = &p
	}
	if t, ok := res["type"].(float64); ok {
		rec.VerdictType = int(t)
	}
	return rec
}

// Recorder saves every analysis result into a HistoryStorage.
type Recorder struct {
	storage HistoryStorage
	now     func() time.Time
}

var _ analysis.Recorder = (*Recorder)(nil)

// NewRecorder creates a recorder writing to storage.
func NewRecorder(storage HistoryStorage) *Recorder {
	return &Recorder{storage: storage, now: time.Now}
}

// Record implements analysis.Recorder.
func (r *Recorder) Record(ctx context.Context, req analysis.Request, res analysis.Result) error {
	return r.storage.Save(ctx, NewRecord(req, res, r.now()))
}
