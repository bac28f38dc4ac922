package hiddensession

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/danmuck/vimctl/internal/observability"
	"github.com/danmuck/vimctl/internal/protocol"
	"github.com/danmuck/vimctl/internal/tools"
	"github.com/danmuck/vimctl/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const nameSuffix = "_VIMCTL_HIDDEN"

type State int

const (
	StateNotStarted State = iota
	StateStarting
	StateRunning
	StateDead
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Config defines how the hidden session is spawned and torn down.
type Config struct {
	Binary    string
	Prefix    string
	StopGrace time.Duration
	Backoff   BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Binary:    "gvim",
		Prefix:    protocol.HiddenPrefix,
		StopGrace: 2 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: 500 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     30 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.Binary) == "" {
		c.Binary = def.Binary
	}
	if c.Prefix == "" {
		c.Prefix = def.Prefix
	}
	if c.StopGrace <= 0 {
		c.StopGrace = def.StopGrace
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}

// Supervisor owns the hidden session process and its state.
type Supervisor struct {
	cfg     Config
	name    string
	starter tools.ProcessStarter
	embed   transport.Embedder

	proc  tools.Process
	state State
	retry spawnRetry

	now func() time.Time
	rng *rand.Rand
	log zerolog.Logger
}

// NewSupervisor generates the session name once. embed may be nil, in which
// case the session is spawned without an embedding target.
func NewSupervisor(cfg Config, starter tools.ProcessStarter, embed transport.Embedder, logger zerolog.Logger) *Supervisor {
	cfg = cfg.WithDefaults()
	return &Supervisor{
		cfg:     cfg,
		name:    newName(cfg.Prefix),
		starter: starter,
		embed:   embed,
		state:   StateNotStarted,
		retry:   spawnRetry{cfg: cfg.Backoff},
		now:     time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		log:     logger,
	}
}

// newName builds the session name in upper case: the editor registers
// --servername upper-cased, and the name must match the registry entry.
func newName(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return strings.ToUpper(prefix + strings.ReplaceAll(id.String(), "-", "") + nameSuffix)
}

func (s *Supervisor) Name() string {
	return s.name
}

func (s *Supervisor) State() State {
	return s.state
}

// Pid returns the owned process id, 0 when no process is held.
func (s *Supervisor) Pid() int {
	if s.proc == nil {
		return 0
	}
	return s.proc.Pid()
}

// Start spawns the session unless a process is already held or a previous
// spawn failure is still backing off. It reports whether a spawn happened.
func (s *Supervisor) Start() bool {
	if s.proc != nil {
		return false
	}
	if s.retry.blocked(s.now()) {
		observability.RecordSpawn("backoff")
		s.log.Debug().Str("name", s.name).Time("retry_at", s.retry.until).Msg("hiddensession.Supervisor.Start backing off")
		return false
	}

	args := s.args()
	proc, err := s.starter.Start(s.cfg.Binary, args...)
	if err != nil {
		delay := s.retry.fail(s.now(), s.rng)
		s.state = StateDead
		observability.RecordSpawn("error")
		s.log.Warn().Err(err).
			Str("binary", s.cfg.Binary).
			Int("attempt", s.retry.failures).
			Dur("retry_in", delay).
			Msg("hiddensession.Supervisor.Start spawn failed")
		return false
	}

	s.retry.reset()
	s.proc = proc
	s.state = StateStarting
	observability.RecordSpawn("ok")
	s.log.Info().Str("name", s.name).Int("pid", proc.Pid()).Strs("args", args).Msg("hiddensession.Supervisor.Start spawned")
	return true
}

func (s *Supervisor) args() []string {
	args := []string{"-f", "--servername", s.name}
	if s.embed == nil {
		return args
	}
	win, err := s.embed.EmbedTarget()
	if err != nil {
		s.log.Debug().Err(err).Msg("hiddensession.Supervisor.args no embedding target")
		return args
	}
	return append(args, "--socketid", win.String())
}

// IsAlive checks the owned process without blocking. A confirmed exit drops
// the handle and moves to Dead; a check error leaves state untouched.
func (s *Supervisor) IsAlive() bool {
	if s.proc == nil {
		return false
	}
	exited, err := s.proc.Exited()
	if err != nil {
		s.log.Debug().Err(err).Int("pid", s.proc.Pid()).Msg("hiddensession.Supervisor.IsAlive exit check inconclusive")
		return false
	}
	if exited {
		s.log.Info().Str("name", s.name).Int("pid", s.proc.Pid()).Msg("hiddensession.Supervisor.IsAlive session exited")
		s.proc = nil
		s.state = StateDead
		return false
	}
	if s.state != StateRunning {
		s.log.Debug().Str("name", s.name).Msg("hiddensession.Supervisor.IsAlive session running")
		s.state = StateRunning
	}
	return true
}

// Stop tears down the process tree. The supervisor is Dead afterwards and
// may be started again.
func (s *Supervisor) Stop(ctx context.Context) error {
	if s.proc == nil {
		return nil
	}
	proc := s.proc
	s.proc = nil
	s.state = StateDead
	s.log.Info().Str("name", s.name).Int("pid", proc.Pid()).Msg("hiddensession.Supervisor.Stop stopping")
	return proc.Terminate(ctx, s.cfg.StopGrace)
}
