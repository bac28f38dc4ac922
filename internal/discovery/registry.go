package discovery

import (
	"sort"
	"strings"
	"time"

	"github.com/danmuck/vimctl/internal/observability"
	"github.com/danmuck/vimctl/internal/protocol"
	"github.com/danmuck/vimctl/internal/protocol/session"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"
)

const (
	ExprServerList = "serverlist()"
	ExprGetCwd     = "getcwd()"
)

// ListSink receives the server list whenever it changes.
type ListSink interface {
	ServerListChanged(names []string)
}

// HiddenSession is the supervised discovery peer.
type HiddenSession interface {
	Name() string
	IsAlive() bool
	Start() bool
}

// Caller issues expression calls; *session.Messenger satisfies it.
type Caller interface {
	SendExpr(server, expr string, cb session.Callback) (int, bool)
}

type Config struct {
	// Prefix marks server names hidden from the delivered list.
	Prefix string
	// CwdTTL bounds how long a working directory is cached. Zero keeps
	// entries for the life of the registry.
	CwdTTL time.Duration
}

func DefaultConfig() Config {
	return Config{Prefix: protocol.HiddenPrefix}
}

// Registry holds the last delivered server list and the working-directory
// cache. It is driven from the event loop and carries no locks of its own.
type Registry struct {
	cfg    Config
	hidden HiddenSession
	caller Caller
	sink   ListSink

	servers   []string
	delivered bool
	cwd       *ttlcache.Cache[string, string]
	cycle     uint64
	inflight  map[string]uint64

	log zerolog.Logger
}

func NewRegistry(cfg Config, hidden HiddenSession, caller Caller, sink ListSink, logger zerolog.Logger) *Registry {
	if cfg.Prefix == "" {
		cfg.Prefix = protocol.HiddenPrefix
	}
	opts := []ttlcache.Option[string, string]{}
	if cfg.CwdTTL > 0 {
		opts = append(opts, ttlcache.WithTTL[string, string](cfg.CwdTTL))
	}
	return &Registry{
		cfg:      cfg,
		hidden:   hidden,
		caller:   caller,
		sink:     sink,
		cwd:      ttlcache.New[string, string](opts...),
		inflight: make(map[string]uint64),
		log:      logger,
	}
}

// Refresh runs one discovery cycle. A dead hidden session is restarted and
// the query skipped until the next cycle. Calling Refresh more often than
// the interval is harmless.
func (r *Registry) Refresh() {
	if !r.hidden.IsAlive() {
		observability.RecordDiscoveryCycle("restart")
		r.log.Debug().Str("hidden", r.hidden.Name()).Msg("discovery.Registry.Refresh hidden session down, restarting")
		r.hidden.Start()
		return
	}
	observability.RecordDiscoveryCycle("query")
	if _, ok := r.caller.SendExpr(r.hidden.Name(), ExprServerList, r.receiveList); !ok {
		r.log.Debug().Str("hidden", r.hidden.Name()).Msg("discovery.Registry.Refresh hidden session not reachable yet")
	}
}

func (r *Registry) receiveList(raw string) {
	names := r.parseList(raw)
	r.cycle++
	r.forgetInflight(names)
	for _, name := range names {
		if _, ok := r.Cwd(name); !ok {
			r.FetchCwd(name)
		}
	}

	if r.delivered && sameSet(r.servers, names) {
		return
	}
	r.servers = names
	r.delivered = true
	observability.RecordServerListChange(len(names))
	r.log.Info().Strs("servers", names).Msg("discovery.Registry server list changed")
	if r.sink != nil {
		r.sink.ServerListChanged(append([]string(nil), names...))
	}
}

func (r *Registry) parseList(raw string) []string {
	names := []string{}
	for _, line := range strings.Split(raw, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || strings.HasPrefix(strings.ToUpper(name), strings.ToUpper(r.cfg.Prefix)) {
			continue
		}
		names = append(names, name)
	}
	return names
}

// forgetInflight clears fetch markers for servers that left the list so a
// returning server is fetched again.
func (r *Registry) forgetInflight(names []string) {
	present := make(map[string]bool, len(names))
	for _, name := range names {
		present[name] = true
	}
	for name := range r.inflight {
		if !present[name] {
			delete(r.inflight, name)
		}
	}
}

// FetchCwd asks server for its working directory and caches the reply. A
// fetch is sent at most once per discovery cycle; one still unanswered when
// the next list arrives is sent again.
func (r *Registry) FetchCwd(server string) {
	if issued, ok := r.inflight[server]; ok && issued == r.cycle {
		return
	}
	_, ok := r.caller.SendExpr(server, ExprGetCwd, func(cwd string) {
		delete(r.inflight, server)
		r.cwd.Set(server, cwd, ttlcache.DefaultTTL)
		r.log.Debug().Str("server", server).Str("cwd", cwd).Msg("discovery.Registry.FetchCwd cached")
	})
	if ok {
		r.inflight[server] = r.cycle
	}
}

// Cwd returns the cached working directory for server.
func (r *Registry) Cwd(server string) (string, bool) {
	item := r.cwd.Get(server, ttlcache.WithDisableTouchOnHit[string, string]())
	if item == nil {
		return "", false
	}
	return item.Value(), true
}

// Servers returns a copy of the last delivered list in discovery order.
func (r *Registry) Servers() []string {
	return append([]string(nil), r.servers...)
}

// sameSet compares two lists by value, ignoring order.
func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
