package editor

import (
	"context"
	"os"

	"github.com/danmuck/vimctl/internal/discovery"
	"github.com/danmuck/vimctl/internal/hiddensession"
	"github.com/danmuck/vimctl/internal/protocol/session"
	"github.com/danmuck/vimctl/internal/tools"
	"github.com/danmuck/vimctl/internal/transport"
	"github.com/rs/zerolog"
)

// Options assembles a Client. Events, Lists and Embedder may be nil.
type Options struct {
	Port      transport.Port
	Starter   tools.ProcessStarter
	Embedder  transport.Embedder
	Events    session.EventSink
	Lists     discovery.ListSink
	Session   session.Config
	Hidden    hiddensession.Config
	Discovery discovery.Config
	// DefaultDir resolves relative paths for servers whose working
	// directory is not cached yet. Empty means the user's home directory.
	DefaultDir string
	Logger     zerolog.Logger
}

type Client struct {
	port       transport.Port
	corr       *session.Correlator
	messenger  *session.Messenger
	dispatcher *session.Dispatcher
	root       *discovery.RootRegistry
	registry   *discovery.Registry
	hidden     *hiddensession.Supervisor
	defaultDir string
	log        zerolog.Logger
}

func New(opts Options) *Client {
	logger := opts.Logger
	defaultDir := opts.DefaultDir
	if defaultDir == "" {
		defaultDir = homeDir()
	}

	root := discovery.NewRootRegistry(opts.Port, logger.With().Str("component", "discovery").Logger())
	corr := session.NewCorrelator(opts.Session, logger.With().Str("component", "correlator").Logger())
	messenger := session.NewMessenger(opts.Session, opts.Port, corr, root, logger.With().Str("component", "messenger").Logger())
	dispatcher := session.NewDispatcher(opts.Session, opts.Port, corr, opts.Events, logger.With().Str("component", "dispatcher").Logger())
	hidden := hiddensession.NewSupervisor(opts.Hidden, opts.Starter, opts.Embedder, logger.With().Str("component", "hiddensession").Logger())
	registry := discovery.NewRegistry(opts.Discovery, hidden, messenger, opts.Lists, logger.With().Str("component", "discovery").Logger())

	return &Client{
		port:       opts.Port,
		corr:       corr,
		messenger:  messenger,
		dispatcher: dispatcher,
		root:       root,
		registry:   registry,
		hidden:     hidden,
		defaultDir: defaultDir,
		log:        logger,
	}
}

func homeDir() string {
	if dir, err := os.UserHomeDir(); err == nil && dir != "" {
		return dir
	}
	return string(os.PathSeparator)
}

// PropertyChanged is the transport handler for the controller window.
func (c *Client) PropertyChanged(win transport.Window, prop string) {
	c.dispatcher.PropertyChanged(win, prop)
}

// Start brings up the hidden session ahead of the first discovery cycle.
func (c *Client) Start() {
	c.hidden.Start()
}

// Refresh runs one discovery cycle.
func (c *Client) Refresh() {
	c.registry.Refresh()
}

// Close tears down the hidden session.
func (c *Client) Close(ctx context.Context) error {
	return c.hidden.Stop(ctx)
}

// Servers returns the last delivered server list.
func (c *Client) Servers() []string {
	return c.registry.Servers()
}

// Cwd returns the cached working directory of server.
func (c *Client) Cwd(server string) (string, bool) {
	return c.registry.Cwd(server)
}

// FetchCwd refreshes the working directory of server in the background.
func (c *Client) FetchCwd(server string) {
	c.registry.FetchCwd(server)
}

// Pending lists expression calls still waiting for a reply.
func (c *Client) Pending() []session.PendingCall {
	return c.corr.List()
}

// Drop forgets a pending call, for callers that gave up waiting.
func (c *Client) Drop(serial int) {
	c.corr.Drop(serial)
}

// Registry returns the root registry entries as currently published.
func (c *Client) Registry() []discovery.Entry {
	entries := c.root.Entries()
	out := make([]discovery.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, discovery.Entry{Name: e.Name, Window: transport.Window(e.Window)})
	}
	return out
}

// Hidden reports the hidden session name and state.
func (c *Client) Hidden() (string, hiddensession.State) {
	return c.hidden.Name(), c.hidden.State()
}
