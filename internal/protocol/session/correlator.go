package session

import (
	"sort"
	"time"

	"github.com/danmuck/vimctl/internal/observability"
	"github.com/rs/zerolog"
)

// Callback receives the raw result of an expression call. It runs at most
// once, and never if the peer goes away before replying.
type Callback func(result string)

// PendingCall tracks one expression call awaiting its reply.
type PendingCall struct {
	Serial   int
	Target   string
	Expr     string
	IssuedAt time.Time

	callback Callback
}

// Correlator allocates serials and owns the pending-call table.
type Correlator struct {
	wrap    int
	serial  int
	pending map[int]PendingCall
	now     func() time.Time
	log     zerolog.Logger
}

func NewCorrelator(cfg Config, logger zerolog.Logger) *Correlator {
	cfg = cfg.WithDefaults()
	return &Correlator{
		wrap:    cfg.SerialWrap,
		pending: make(map[int]PendingCall),
		now:     time.Now,
		log:     logger,
	}
}

// Issue allocates the next serial and records cb against it. Serials run
// from 1 to the wrap limit and then start over at 1. A nil cb still
// consumes a serial but registers nothing.
func (c *Correlator) Issue(target, expr string, cb Callback) int {
	c.serial++
	if c.serial > c.wrap {
		c.serial = 1
	}
	if stale, ok := c.pending[c.serial]; ok {
		c.log.Debug().
			Int("serial", stale.Serial).
			Str("server", stale.Target).
			Str("expr", stale.Expr).
			Msg("session.Correlator.Issue serial reused, stale call discarded")
		delete(c.pending, c.serial)
	}
	if cb != nil {
		c.pending[c.serial] = PendingCall{
			Serial:   c.serial,
			Target:   target,
			Expr:     expr,
			IssuedAt: c.now(),
			callback: cb,
		}
	}
	observability.RecordCallIssued(len(c.pending))
	return c.serial
}

// Resolve removes the call for serial and hands it result. It reports
// whether a call was waiting; replies for untracked serials are dropped.
func (c *Correlator) Resolve(serial int, result string) bool {
	call, ok := c.pending[serial]
	if !ok {
		observability.RecordReply(false, len(c.pending))
		c.log.Debug().Int("serial", serial).Msg("session.Correlator.Resolve reply for untracked serial dropped")
		return false
	}
	delete(c.pending, serial)
	observability.RecordReply(true, len(c.pending))
	call.callback(result)
	return true
}

// Drop forgets a call whose frame never left this process.
func (c *Correlator) Drop(serial int) {
	delete(c.pending, serial)
	observability.RecordPending(len(c.pending))
}

// Current returns the most recently issued serial, 0 before the first call.
func (c *Correlator) Current() int {
	return c.serial
}

func (c *Correlator) IsPending(serial int) bool {
	_, ok := c.pending[serial]
	return ok
}

func (c *Correlator) Pending() int {
	return len(c.pending)
}

// List returns the pending calls ordered by serial.
func (c *Correlator) List() []PendingCall {
	out := make([]PendingCall, 0, len(c.pending))
	for _, call := range c.pending {
		call.callback = nil
		out = append(out, call)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Serial < out[j].Serial
	})
	return out
}
