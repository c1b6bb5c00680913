package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRunKeepsTickingAfterErrorsAndPanics(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			n := calls.Add(1)
			switch n {
			case 1:
				return errors.New("boom")
			case 2:
				panic("kaboom")
			}
			if n >= 4 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(4))
}

func TestRunOnStartFiresImmediately(t *testing.T) {
	s := New(Options{Interval: time.Hour, RunOnStart: true}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	fired := make(chan struct{})
	go func() {
		_ = s.Run(ctx, func(context.Context, time.Time) error {
			close(fired)
			cancel()
			return nil
		})
	}()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("tick did not run on start")
	}
}

func TestNextTickAlignment(t *testing.T) {
	s := New(Options{Interval: time.Hour, AlignToStart: true}, zerolog.Nop())
	now := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC), s.nextTick(now))

	unaligned := New(Options{Interval: time.Hour}, zerolog.Nop())
	assert.Equal(t, now.Add(time.Hour), unaligned.nextTick(now))
}

func TestNewPanicsOnZeroInterval(t *testing.T) {
	assert.Panics(t, func() { New(Options{}, zerolog.Nop()) })
}
