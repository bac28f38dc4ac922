// Package eventloop runs every core callback on one goroutine.
//
// Correlator, Dispatcher, Registry and Supervisor hold no locks; they are
// only ever touched from functions executed by a Loop. Other goroutines
// (transport readers, HTTP handlers, the CLI) hand work over with Post or
// Call.
package eventloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrStopped = errors.New("eventloop: stopped")
	ErrRunning = errors.New("eventloop: already running")
)

const queueSize = 256

type interval struct {
	every time.Duration
	fn    func()
}

type Loop struct {
	tasks     chan func()
	done      chan struct{}
	stopOnce  sync.Once
	running   atomic.Bool
	mu        sync.Mutex
	intervals []interval
	log       zerolog.Logger
}

func New(logger zerolog.Logger) *Loop {
	return &Loop{
		tasks: make(chan func(), queueSize),
		done:  make(chan struct{}),
		log:   logger,
	}
}

// Every schedules fn on the loop at a fixed interval once Run starts.
func (l *Loop) Every(d time.Duration, fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.intervals = append(l.intervals, interval{every: d, fn: fn})
}

// Post queues fn without waiting for it to run.
func (l *Loop) Post(ctx context.Context, fn func()) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	select {
	case l.tasks <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// Call runs fn on the loop and waits for it to return.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.Post(ctx, func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Run executes queued functions and interval tasks until ctx ends.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.stopOnce.Do(func() { close(l.done) })

	l.mu.Lock()
	intervals := append([]interval(nil), l.intervals...)
	l.mu.Unlock()

	tickCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	for _, iv := range intervals {
		go l.tick(tickCtx, iv)
	}

	l.log.Debug().Int("intervals", len(intervals)).Msg("eventloop.Loop.Run started")
	for {
		select {
		case <-ctx.Done():
			l.log.Debug().Msg("eventloop.Loop.Run shutdown")
			return nil
		case fn := <-l.tasks:
			l.exec(fn)
		}
	}
}

func (l *Loop) tick(ctx context.Context, iv interval) {
	ticker := time.NewTicker(iv.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A full queue skips this tick rather than stacking them up.
			select {
			case l.tasks <- iv.fn:
			default:
				l.log.Warn().Dur("every", iv.every).Msg("eventloop.Loop.tick queue full, tick skipped")
			}
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Msg("eventloop.Loop.exec task panicked")
		}
	}()
	fn()
}
