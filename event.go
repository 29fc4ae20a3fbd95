package nobg

import (
	"image"

	"github.com/google/uuid"
)

// ItemSucceeded is emitted once per record processed without error.
type ItemSucceeded struct {
	RecordID uuid.UUID
	Image    image.Image
}

// ItemFailed is emitted once per record whose processing failed. The batch
// continues.
type ItemFailed struct {
	RecordID uuid.UUID
	Message  string
}

// ProgressChanged is emitted after every completed item. Percent is
// floor(completed*100/total) and never decreases within a run.
type ProgressChanged struct {
	Percent int
}

// BatchFinished is always the last event of a run.
type BatchFinished struct {
	Succeeded int
	Failed    int
	// Stopped is true if the run ended before every item was processed.
	Stopped bool
}

func (ItemSucceeded) event()   {}
func (ItemFailed) event()      {}
func (ProgressChanged) event() {}
func (BatchFinished) event()   {}
