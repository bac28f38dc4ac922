package main

import (
	"os/signal"
	"syscall"

	"github.com/danmuck/vimctl/internal/adminapi"
	"github.com/danmuck/vimctl/internal/editor"
	"github.com/danmuck/vimctl/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// logSink logs notifications and server list changes, then forwards them to
// the admin hub when one is running.
type logSink struct {
	hub *adminapi.Hub
	log zerolog.Logger
}

func (s logSink) Event(name string, args []string) {
	s.log.Info().Str("event", name).Strs("args", args).Msg("vimctl.run notification")
	if s.hub != nil {
		s.hub.Event(name, args)
	}
}

func (s logSink) ServerListChanged(names []string) {
	s.log.Info().Strs("servers", names).Msg("vimctl.run server list changed")
	if s.hub != nil {
		s.hub.ServerListChanged(names)
	}
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var adminAddr string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Supervise the hidden session, track servers and relay notifications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if adminAddr != "" {
				cfg.AdminListenAddr = adminAddr
			}

			sink := logSink{log: logging.Component("vimctl")}
			if cfg.AdminListenAddr != "" {
				sink.hub = adminapi.NewHub(logging.Component("adminapi"))
			}

			a, err := connect(cfg, editor.Options{Events: sink, Lists: sink}, func(a *app) {
				a.loop.Every(a.cfg.DiscoveryInterval, a.client.Refresh)
			})
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.do(ctx, func(c *editor.Client) { c.Start() }); err != nil {
				return err
			}

			errCh := make(chan error, 1)
			if sink.hub != nil {
				srv := adminapi.New(cfg.Admin(), a.client, a.loop, sink.hub, logging.Component("adminapi"))
				go func() {
					errCh <- srv.Serve(ctx)
				}()
			}

			var name string
			_ = a.do(ctx, func(c *editor.Client) { name, _ = c.Hidden() })
			a.log.Info().Str("hidden", name).Dur("interval", cfg.DiscoveryInterval).Msg("vimctl.run started")

			select {
			case <-ctx.Done():
				a.log.Info().Msg("vimctl.run shutting down")
				return nil
			case err := <-errCh:
				return err
			}
		},
	}
	cmd.Flags().StringVar(&adminAddr, "admin", "", "admin API listen address (overrides admin_listen_addr)")
	return cmd
}
