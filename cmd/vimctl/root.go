package main

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/vimctl/internal/config"
	"github.com/danmuck/vimctl/internal/editor"
	"github.com/danmuck/vimctl/internal/eventloop"
	"github.com/danmuck/vimctl/internal/logging"
	"github.com/danmuck/vimctl/internal/tools"
	"github.com/danmuck/vimctl/internal/transport"
	"github.com/danmuck/vimctl/internal/transport/x11"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	display    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "vimctl",
		Short:         "Control running vim servers over the X11 client/server protocol",
		Long:          "vimctl discovers vim servers on an X display, sends them keys and expressions, and relays their notifications.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath(), "config file path")
	rootCmd.PersistentFlags().StringVar(&opts.display, "display", "", "X display (defaults to config, then $DISPLAY)")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newListCmd(opts),
		newKeysCmd(opts),
		newExCmd(opts),
		newExprCmd(opts),
		newOpenCmd(opts),
		newConfigCmd(opts),
	)
	return rootCmd
}

// loadConfig reads the config file, falling back to defaults when it is
// absent, and applies its log level.
func (o *rootOptions) loadConfig() (config.Config, error) {
	logging.ConfigureRuntime()
	cfg, err := config.LoadOrDefault(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.display != "" {
		cfg.Display = o.display
	}
	if level, ok := logging.ParseLevel(cfg.LogLevel); ok && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(level)
	}
	return cfg, nil
}

// app is a connected controller. The event loop owns all core state
// behind client.
type app struct {
	cfg    config.Config
	conn   *x11.Conn
	loop   *eventloop.Loop
	client *editor.Client
	cancel context.CancelFunc
	log    zerolog.Logger
}

// connect dials the display and starts the event loop. setup, when set,
// runs before the loop starts so it can register interval tasks.
func connect(cfg config.Config, opts editor.Options, setup func(a *app)) (*app, error) {
	log := logging.Component("vimctl")
	conn, err := x11.Dial(cfg.Display, logging.Component("x11"))
	if err != nil {
		return nil, err
	}

	opts.Port = conn
	opts.Embedder = conn
	opts.Starter = tools.ExecStarter{}
	opts.Session = cfg.Session()
	opts.Hidden = cfg.Hidden()
	opts.Discovery = cfg.Discovery()
	opts.DefaultDir = cfg.DefaultDir
	opts.Logger = logging.Component("editor")
	client := editor.New(opts)

	loop := eventloop.New(logging.Component("eventloop"))
	conn.OnPropertyChange(func(win transport.Window, prop string) {
		if err := loop.Post(context.Background(), func() { client.PropertyChanged(win, prop) }); err != nil {
			log.Debug().Err(err).Str("prop", prop).Msg("vimctl.app property change dropped")
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	a := &app{cfg: cfg, conn: conn, loop: loop, client: client, cancel: cancel, log: log}
	if setup != nil {
		setup(a)
	}
	go func() {
		if err := loop.Run(ctx); err != nil {
			log.Error().Err(err).Msg("vimctl.app event loop stopped")
		}
	}()
	return a, nil
}

// do runs fn on the event loop and waits for it.
func (a *app) do(ctx context.Context, fn func(c *editor.Client)) error {
	return a.loop.Call(ctx, func() { fn(a.client) })
}

// close tears down the hidden session, stops the loop and flushes the
// connection.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.StopGrace+time.Second)
	defer cancel()
	if err := a.do(ctx, func(c *editor.Client) {
		if err := c.Close(ctx); err != nil {
			a.log.Warn().Err(err).Msg("vimctl.app.close hidden session teardown failed")
		}
	}); err != nil {
		a.log.Debug().Err(err).Msg("vimctl.app.close loop already stopped")
	}
	a.cancel()
	<-a.loop.Done()
	if err := a.conn.Close(); err != nil {
		a.log.Debug().Err(err).Msg("vimctl.app.close connection close failed")
	}
}

func requireSent(ok bool, server string) error {
	if !ok {
		return fmt.Errorf("server %q is not reachable", server)
	}
	return nil
}
