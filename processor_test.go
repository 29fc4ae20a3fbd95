package nobg_test

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"testing"

	"github.com/regorov/nobg"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchProcessor_FaultIsolation(t *testing.T) {
	recs := records(t, 3)

	var calls int32
	remover := nobg.RemoverFunc(func(_ context.Context, img image.Image) (image.Image, error) {
		if atomic.AddInt32(&calls, 1) == 2 {
			return nil, errors.New("model failure")
		}
		return img, nil
	})

	bp := nobg.NewBatchProcessor(zerolog.Nop(), remover)
	run, err := bp.Start(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, 3, run.Total())

	evs := collect(run)
	require.Len(t, evs, 7)

	ok1, isOK := evs[0].(nobg.ItemSucceeded)
	require.True(t, isOK, "event 0: %T", evs[0])
	assert.Equal(t, recs[0].ID(), ok1.RecordID)
	assert.Equal(t, image.Rect(0, 0, 8, 8), ok1.Image.Bounds())

	assert.Equal(t, nobg.ProgressChanged{Percent: 33}, evs[1])
	assert.Equal(t, nobg.ItemFailed{RecordID: recs[1].ID(), Message: "model failure"}, evs[2])
	assert.Equal(t, nobg.ProgressChanged{Percent: 66}, evs[3])

	ok3, isOK := evs[4].(nobg.ItemSucceeded)
	require.True(t, isOK, "event 4: %T", evs[4])
	assert.Equal(t, recs[2].ID(), ok3.RecordID)

	assert.Equal(t, nobg.ProgressChanged{Percent: 100}, evs[5])
	assert.Equal(t, nobg.BatchFinished{Succeeded: 2, Failed: 1}, evs[6])

	<-run.Done()
	assert.Equal(t, nobg.Idle, bp.State())

	// the processor never mutates records.
	for _, rec := range recs {
		assert.Equal(t, nobg.Pending, rec.Status())
	}
}

func TestBatchProcessor_EventCount(t *testing.T) {
	for _, n := range []int{0, 1, 2, 7} {
		recs := records(t, n)
		bp := nobg.NewBatchProcessor(zerolog.Nop(), passthrough)

		run, err := bp.Start(context.Background(), recs)
		require.NoError(t, err)
		evs := collect(run)

		var items, finished int
		for _, ev := range evs {
			switch ev.(type) {
			case nobg.ItemSucceeded, nobg.ItemFailed:
				items++
			case nobg.BatchFinished:
				finished++
			}
		}
		assert.Equal(t, n, items, "batch of %d", n)
		assert.Equal(t, 1, finished, "batch of %d", n)
		assert.IsType(t, nobg.BatchFinished{}, evs[len(evs)-1])

		p := progress(evs)
		assert.Len(t, p, n)
		for i := 1; i < len(p); i++ {
			assert.GreaterOrEqual(t, p[i], p[i-1])
		}
		if n > 0 {
			assert.Equal(t, 100, p[len(p)-1])
		}
	}
}

func TestBatchProcessor_ItemFaults(t *testing.T) {
	dir := t.TempDir()
	good := writePNG(t, dir, "good.png", 4, 4)
	broken := writeFile(t, dir, "broken.png", "definitely not a png")

	var recs []*nobg.Record
	for _, p := range []string{broken, good, good, good} {
		rec, err := nobg.NewRecord(p)
		require.NoError(t, err)
		recs = append(recs, rec)
	}

	var calls int32
	remover := nobg.RemoverFunc(func(_ context.Context, img image.Image) (image.Image, error) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			panic("segfault in model")
		case 2:
			return nil, nil
		}
		return img, nil
	})

	bp := nobg.NewBatchProcessor(zerolog.Nop(), remover)
	run, err := bp.Start(context.Background(), recs)
	require.NoError(t, err)
	evs := collect(run)

	var msgs []string
	for _, ev := range evs {
		if f, ok := ev.(nobg.ItemFailed); ok {
			msgs = append(msgs, f.Message)
		}
	}
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[0], "could not be decoded")
	assert.Contains(t, msgs[1], "panicked")
	assert.Contains(t, msgs[2], "no image")
	assert.Equal(t, nobg.BatchFinished{Succeeded: 1, Failed: 3}, evs[len(evs)-1])
	assert.Equal(t, []int{25, 50, 75, 100}, progress(evs))
}

func TestBatchProcessor_Stop(t *testing.T) {
	recs := records(t, 5)

	var calls int32
	remover := nobg.RemoverFunc(func(_ context.Context, img image.Image) (image.Image, error) {
		atomic.AddInt32(&calls, 1)
		return img, nil
	})

	bp := nobg.NewBatchProcessor(zerolog.Nop(), remover)
	run, err := bp.Start(context.Background(), recs)
	require.NoError(t, err)

	var (
		evs    []nobg.Event
		nprogr int
	)
	for ev := range run.Events() {
		evs = append(evs, ev)
		if _, ok := ev.(nobg.ProgressChanged); ok {
			nprogr++
			if nprogr == 2 {
				bp.Stop()
				bp.Stop()
			}
		}
	}

	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(3))
	p := progress(evs)
	assert.LessOrEqual(t, len(p), 3)
	assert.Less(t, p[len(p)-1], 100)

	fin, ok := evs[len(evs)-1].(nobg.BatchFinished)
	require.True(t, ok)
	assert.True(t, fin.Stopped)
	assert.Equal(t, int(atomic.LoadInt32(&calls)), fin.Succeeded)
	assert.Equal(t, nobg.Idle, bp.State())

	// no effect once idle.
	bp.Stop()
	assert.Equal(t, nobg.Idle, bp.State())
}

func TestBatchProcessor_StopIdle(t *testing.T) {
	bp := nobg.NewBatchProcessor(zerolog.Nop(), passthrough)
	bp.Stop()
	bp.Stop()
	assert.Equal(t, nobg.Idle, bp.State())

	run, err := bp.Start(context.Background(), records(t, 2))
	require.NoError(t, err)
	evs := collect(run)
	assert.Equal(t, nobg.BatchFinished{Succeeded: 2}, evs[len(evs)-1])
}

func TestBatchProcessor_AlreadyRunning(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	remover := nobg.RemoverFunc(func(_ context.Context, img image.Image) (image.Image, error) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		return img, nil
	})

	bp := nobg.NewBatchProcessor(zerolog.Nop(), remover)
	run, err := bp.Start(context.Background(), records(t, 2))
	require.NoError(t, err)

	<-entered
	assert.Equal(t, nobg.Running, bp.State())

	_, err = bp.Start(context.Background(), records(t, 1))
	assert.ErrorIs(t, err, nobg.ErrAlreadyRunning)

	bp.Stop()
	assert.Equal(t, nobg.Stopping, bp.State())

	_, err = bp.Start(context.Background(), records(t, 1))
	assert.ErrorIs(t, err, nobg.ErrAlreadyRunning)

	close(release)
	evs := collect(run)
	assert.Equal(t, nobg.BatchFinished{Succeeded: 1, Stopped: true}, evs[len(evs)-1])
}

func TestBatchProcessor_Reuse(t *testing.T) {
	bp := nobg.NewBatchProcessor(zerolog.Nop(), passthrough)

	run, err := bp.Start(context.Background(), records(t, 3))
	require.NoError(t, err)
	assert.Equal(t, []int{33, 66, 100}, progress(collect(run)))

	second := records(t, 2)
	run, err = bp.Start(context.Background(), second)
	require.NoError(t, err)
	evs := collect(run)
	assert.Equal(t, []int{50, 100}, progress(evs))
	assert.Equal(t, second[0].ID(), evs[0].(nobg.ItemSucceeded).RecordID)
	assert.Equal(t, nobg.BatchFinished{Succeeded: 2}, evs[len(evs)-1])
}

func TestBatchProcessor_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bp := nobg.NewBatchProcessor(zerolog.Nop(), passthrough)
	run, err := bp.Start(ctx, records(t, 3))
	require.NoError(t, err)

	evs := collect(run)
	assert.Equal(t, []nobg.Event{nobg.BatchFinished{Stopped: true}}, evs)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", nobg.Idle.String())
	assert.Equal(t, "running", nobg.Running.String())
	assert.Equal(t, "stopping", nobg.Stopping.String())
}
