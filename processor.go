package nobg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrAlreadyRunning is returned by Start while a previous run has not
// reached Idle.
var ErrAlreadyRunning = errors.New("batch processing is already running")

// State of a BatchProcessor.
type State int

// Processor states.
const (
	Idle State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// item is the worker's read-only view of a record.
type item struct {
	id   uuid.UUID
	path string
}

// BatchProcessor implements core processing orchestration. It reads source
// files one by one, invokes Remover for each and publishes results as
// events. Only one run may be in flight at a time; the processor is
// reusable once the run reaches Idle.
type BatchProcessor struct {
	remover Remover
	log     zerolog.Logger

	mux    sync.Mutex
	state  State
	cancel context.CancelFunc
}

// Run is a handle of a single processing run.
type Run struct {
	events chan Event
	done   chan struct{}
	total  int
}

// NewBatchProcessor returns new instance of BatchProcessor.
func NewBatchProcessor(l zerolog.Logger, r Remover) *BatchProcessor {
	return &BatchProcessor{
		log:     l.With().Str("component", "processor").Logger(),
		remover: r,
	}
}

// State returns current processor state.
func (bp *BatchProcessor) State() State {
	bp.mux.Lock()
	defer bp.mux.Unlock()
	return bp.state
}

// Start launches a worker goroutine processing records in the given order.
// Records are read only here; the worker keeps a snapshot of their ids and
// paths and never touches the records themselves.
//
// Cancelling ctx has the same effect as Stop. ctx is also passed to the
// Remover, so cancelling it may abort the current item.
func (bp *BatchProcessor) Start(ctx context.Context, records []*Record) (*Run, error) {
	bp.mux.Lock()
	defer bp.mux.Unlock()

	if bp.state != Idle {
		return nil, ErrAlreadyRunning
	}

	items := make([]item, len(records))
	for i, rec := range records {
		items[i] = item{id: rec.ID(), path: rec.SourcePath()}
	}

	stopCtx, cancel := context.WithCancel(ctx)
	bp.state = Running
	bp.cancel = cancel

	run := &Run{
		events: make(chan Event),
		done:   make(chan struct{}),
		total:  len(items),
	}

	go bp.runner(ctx, stopCtx, run, items)
	return run, nil
}

// Stop requests cancellation of the current run. The item being processed
// is allowed to finish, no further items are started. Stop never blocks and
// is a no-op unless the processor is Running.
func (bp *BatchProcessor) Stop() {
	bp.mux.Lock()
	defer bp.mux.Unlock()

	if bp.state != Running {
		return
	}
	bp.state = Stopping
	bp.cancel()
	bp.log.Debug().Msg("stop requested")
}

func (bp *BatchProcessor) runner(ctx, stopCtx context.Context, run *Run, items []item) {
	var (
		succeeded int
		failed    int
		stopped   bool
	)
	started := time.Now()
	total := len(items)

	logstat := func(msg string) {
		bp.log.Info().Int("count", succeeded+failed).
			Int("total", total).
			Int("succeeded", succeeded).
			Int("failed", failed).
			Str("dur", time.Since(started).String()).Msg(msg)
	}

	bp.log.Debug().Int("amount", total).Msg("runner is started")

	for i, it := range items {
		if stopCtx.Err() != nil {
			stopped = true
			break
		}

		t := time.Now()
		img, err := bp.process(ctx, it.path)
		if err != nil {
			failed++
			bp.log.Error().Str("path", it.path).Str("errmsg", err.Error()).Msg("background removal failed")
			run.events <- ItemFailed{RecordID: it.id, Message: err.Error()}
		} else {
			succeeded++
			bp.log.Debug().Str("path", it.path).Str("dur", time.Since(t).String()).Msg("image processed")
			run.events <- ItemSucceeded{RecordID: it.id, Image: img}
		}

		run.events <- ProgressChanged{Percent: (i + 1) * 100 / total}
	}

	if stopped {
		logstat("interrupted")
	} else {
		logstat("batch completed")
	}

	bp.mux.Lock()
	bp.cancel()
	bp.cancel = nil
	bp.state = Idle
	bp.mux.Unlock()

	run.events <- BatchFinished{Succeeded: succeeded, Failed: failed, Stopped: stopped}
	close(run.events)
	close(run.done)
}

// process decodes the file, removes background and normalises the result.
// Panics raised by the Remover are converted to errors.
func (bp *BatchProcessor) process(ctx context.Context, path string) (out image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("background removal panicked: %v", r)
		}
	}()

	src, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}

	res, err := bp.remover.Remove(ctx, src)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("background removal returned no image")
	}

	return toNRGBA(res), nil
}

// Events returns the run's event stream. The channel is unbuffered and is
// closed right after BatchFinished. The consumer must drain it, the worker
// does not advance while an event is pending.
func (r *Run) Events() <-chan Event {
	return r.events
}

// Done is closed after BatchFinished has been received by the consumer.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Total returns amount of records submitted to the run.
func (r *Run) Total() int {
	return r.total
}
