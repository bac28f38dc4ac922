// Package adminapi exposes the controller over HTTP: the server list, the
// editor operations, pending calls, Prometheus metrics and a websocket
// stream of notifications.
//
// Handlers never touch core state directly. Every read and every send is
// executed on the event loop through Loop.Call.
package adminapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/vimctl/internal/auth"
	"github.com/danmuck/vimctl/internal/editor"
	"github.com/danmuck/vimctl/internal/eventloop"
	"github.com/danmuck/vimctl/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type Config struct {
	ListenAddr  string
	CORSOrigins []string
	// ExprTimeout bounds how long POST /expr waits for a reply when the
	// request does not name its own timeout.
	ExprTimeout time.Duration
	// Token, when set, is required as a bearer token on every route but
	// /health. A comma-separated list accepts any of its entries, so a token
	// can be rotated without a window where clients are locked out.
	Token string
	// Validator replaces the Token check when non-nil.
	Validator auth.Validator
}

func (c Config) validator() auth.Validator {
	if c.Validator != nil {
		return c.Validator
	}
	var accepted []auth.StaticToken
	for _, tok := range strings.Split(c.Token, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			accepted = append(accepted, auth.StaticToken{Token: tok})
		}
	}
	switch len(accepted) {
	case 0:
		return nil
	case 1:
		return accepted[0]
	}
	return auth.FuncValidator(func(token string) error {
		for _, v := range accepted {
			if v.Validate(token) == nil {
				return nil
			}
		}
		return auth.ErrUnauthorized
	})
}

func DefaultConfig() Config {
	return Config{ExprTimeout: 5 * time.Second}
}

type Server struct {
	cfg      Config
	client   *editor.Client
	loop     *eventloop.Loop
	hub      *Hub
	router   *gin.Engine
	upgrader websocket.Upgrader
	started  time.Time
	log      zerolog.Logger
}

func New(cfg Config, client *editor.Client, loop *eventloop.Loop, hub *Hub, logger zerolog.Logger) *Server {
	if cfg.ExprTimeout <= 0 {
		cfg.ExprTimeout = DefaultConfig().ExprTimeout
	}
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.HTTPMiddleware(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	if v := cfg.validator(); v != nil {
		r.Use(requireToken(v, logger))
	}

	s := &Server{
		cfg:     cfg,
		client:  client,
		loop:    loop,
		hub:     hub,
		router:  r,
		started: time.Now(),
		log:     logger,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.registerRoutes()
	return s
}

func requireToken(v auth.Validator, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		if err := v.Validate(auth.FromRequest(c.Request)); err != nil {
			logger.Debug().Str("path", c.Request.URL.Path).Str("client_ip", c.ClientIP()).Msg("adminapi.requireToken rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range normalizeOrigins(s.cfg.CORSOrigins) {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on cfg.ListenAddr until ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info().Str("addr", s.cfg.ListenAddr).Msg("adminapi.Server.Serve listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
