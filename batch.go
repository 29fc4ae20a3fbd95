package nobg

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrUnsupportedFormat is returned for paths whose extension is not in
	// the intake allow-list.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrDuplicate is returned when the source path is already in the batch.
	ErrDuplicate = errors.New("path is already in the batch")
)

// allowed lists accepted file extensions, lower case.
var allowed = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".bmp":  {},
	".webp": {},
}

// IsSupported reports whether path has an accepted image extension.
func IsSupported(path string) bool {
	_, ok := allowed[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Batch is an insertion-ordered, deduplicated working set of records.
// Batch is not safe for concurrent use.
type Batch struct {
	log    zerolog.Logger
	order  []*Record
	byPath map[string]*Record
	byID   map[uuid.UUID]*Record
}

// NewBatch returns an empty Batch.
func NewBatch(l zerolog.Logger) *Batch {
	return &Batch{
		log:    l.With().Str("component", "batch").Logger(),
		byPath: make(map[string]*Record),
		byID:   make(map[uuid.UUID]*Record),
	}
}

// Add creates a record for path and appends it to the batch.
func (b *Batch) Add(path string) (*Record, error) {
	if !IsSupported(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	rec, err := NewRecord(path)
	if err != nil {
		return nil, err
	}

	key := filepath.Clean(rec.SourcePath())
	if _, ok := b.byPath[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, path)
	}

	b.byPath[key] = rec
	b.byID[rec.ID()] = rec
	b.order = append(b.order, rec)
	return rec, nil
}

// AddAll adds every acceptable path and returns the newly created records
// and the amount of rejected paths. Rejections are logged, not returned.
func (b *Batch) AddAll(paths ...string) ([]*Record, int) {
	var (
		added    []*Record
		rejected int
	)
	for _, p := range paths {
		rec, err := b.Add(p)
		if err != nil {
			rejected++
			b.log.Debug().Str("path", p).Str("errmsg", err.Error()).Msg("path rejected")
			continue
		}
		added = append(added, rec)
	}
	return added, rejected
}

// Get returns the record with the given id.
func (b *Batch) Get(id uuid.UUID) (*Record, bool) {
	rec, ok := b.byID[id]
	return rec, ok
}

// Contains reports whether path is already in the batch.
func (b *Batch) Contains(path string) bool {
	local, err := resolveLocal(path)
	if err != nil {
		return false
	}
	_, ok := b.byPath[filepath.Clean(local)]
	return ok
}

// Records returns records in insertion order. The slice is a copy.
func (b *Batch) Records() []*Record {
	out := make([]*Record, len(b.order))
	copy(out, b.order)
	return out
}

// Unprocessed returns records which are Pending or Failed, in insertion order.
func (b *Batch) Unprocessed() []*Record {
	var out []*Record
	for _, rec := range b.order {
		if rec.Status() != Processed {
			out = append(out, rec)
		}
	}
	return out
}

// Processed returns records holding a processed image, in insertion order.
func (b *Batch) Processed() []*Record {
	var out []*Record
	for _, rec := range b.order {
		if rec.Status() == Processed {
			out = append(out, rec)
		}
	}
	return out
}

// Len returns amount of records.
func (b *Batch) Len() int { return len(b.order) }

// Apply updates the record addressed by ev. Progress and finish events are
// ignored. Returns false if ev refers to an unknown record.
func (b *Batch) Apply(ev Event) bool {
	switch e := ev.(type) {
	case ItemSucceeded:
		rec, ok := b.byID[e.RecordID]
		if !ok {
			return false
		}
		rec.MarkProcessed(e.Image)
	case ItemFailed:
		rec, ok := b.byID[e.RecordID]
		if !ok {
			return false
		}
		rec.MarkFailed(e.Message)
	}
	return true
}

// Clear removes all records.
func (b *Batch) Clear() {
	b.order = nil
	b.byPath = make(map[string]*Record)
	b.byID = make(map[uuid.UUID]*Record)
}
