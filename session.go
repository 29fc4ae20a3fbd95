package nobg

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrNothingToProcess is returned by Session.Process when every record
	// is already processed or the batch is empty.
	ErrNothingToProcess = errors.New("nothing to process")

	// ErrNothingToSave is returned by Session.Save when no record is processed.
	ErrNothingToSave = errors.New("nothing to save")
)

// Stats holds record counters of a Session.
type Stats struct {
	Total     int
	Pending   int
	Processed int
	Failed    int
}

// Session owns a Batch and a BatchProcessor. It is the only writer of
// record state: events of a run are applied on a single consumer goroutine
// under the session lock.
type Session struct {
	log  zerolog.Logger
	proc *BatchProcessor
	exp  *Exporter

	mux   sync.Mutex
	batch *Batch
	done  chan struct{} // closed when the current run's events are applied.
}

// NewSession returns new Session removing backgrounds with r.
func NewSession(l zerolog.Logger, r Remover) *Session {
	s := &Session{
		log:   l.With().Str("component", "session").Logger(),
		proc:  NewBatchProcessor(l, r),
		exp:   NewExporter(l),
		batch: NewBatch(l),
		done:  make(chan struct{}),
	}
	close(s.done)
	return s
}

// Add accepts paths into the working set. Unsupported, invalid and
// duplicate paths are skipped; their amount is returned.
func (s *Session) Add(paths ...string) ([]*Record, int) {
	s.mux.Lock()
	defer s.mux.Unlock()

	added, rejected := s.batch.AddAll(paths...)
	if rejected > 0 {
		s.log.Info().Int("added", len(added)).Int("rejected", rejected).Msg("paths skipped")
	}
	return added, rejected
}

// Process starts a run over all pending and failed records. observe, if
// not nil, is called with every event after it was applied to the batch;
// it runs on the consumer goroutine and must not call Clear. The returned
// channel is closed once the last event has been applied and observed.
func (s *Session) Process(ctx context.Context, observe func(Event)) (<-chan struct{}, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	records := s.batch.Unprocessed()
	if len(records) == 0 {
		return nil, ErrNothingToProcess
	}

	run, err := s.proc.Start(ctx, records)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	s.done = done
	s.log.Info().Int("amount", len(records)).Msg("processing started")

	go func() {
		defer close(done)
		for ev := range run.Events() {
			s.mux.Lock()
			if !s.batch.Apply(ev) {
				s.log.Warn().Msg("event for unknown record dropped")
			}
			s.mux.Unlock()

			if observe != nil {
				observe(ev)
			}
		}
	}()

	return done, nil
}

// Stop requests cancellation of the current run, see BatchProcessor.Stop.
func (s *Session) Stop() {
	s.proc.Stop()
}

// State returns state of the underlying processor.
func (s *Session) State() State {
	return s.proc.State()
}

// Wait blocks until the current run, if any, has been fully applied.
func (s *Session) Wait() {
	s.mux.Lock()
	done := s.done
	s.mux.Unlock()
	<-done
}

// Clear stops the current run, waits for it to drain and removes all records.
func (s *Session) Clear() {
	s.proc.Stop()
	s.Wait()

	s.mux.Lock()
	s.batch.Clear()
	s.mux.Unlock()
	s.log.Debug().Msg("batch cleared")
}

// Records returns records in insertion order.
func (s *Session) Records() []*Record {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.batch.Records()
}

// Stats returns record counters.
func (s *Session) Stats() Stats {
	s.mux.Lock()
	defer s.mux.Unlock()

	st := Stats{Total: s.batch.Len()}
	for _, rec := range s.batch.Records() {
		switch rec.Status() {
		case Pending:
			st.Pending++
		case Processed:
			st.Processed++
		case Failed:
			st.Failed++
		}
	}
	return st
}

// Save exports every processed record into dir. See Exporter.Save.
func (s *Session) Save(dir string) (int, error) {
	s.mux.Lock()
	records := s.batch.Processed()
	s.mux.Unlock()

	if len(records) == 0 {
		return 0, ErrNothingToSave
	}
	return s.exp.Save(dir, records)
}
