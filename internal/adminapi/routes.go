package adminapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/vimctl/internal/hiddensession"
	"github.com/danmuck/vimctl/internal/protocol/session"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxExprTimeout = time.Minute

type keysRequest struct {
	Keys string `json:"keys"`
}

type exRequest struct {
	Command string `json:"command"`
}

type exprRequest struct {
	Expr      string `json:"expr"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
}

type openRequest struct {
	Path string `json:"path"`
}

type serverView struct {
	Name string `json:"name"`
	Cwd  string `json:"cwd,omitempty"`
}

type pendingView struct {
	Serial   int       `json:"serial"`
	Server   string    `json:"server"`
	Expr     string    `json:"expr"`
	IssuedAt time.Time `json:"issued_at"`
}

func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/health", s.handleHealth)
	r.GET("/servers", s.handleServers)
	r.GET("/servers/:name/cwd", s.handleCwd)
	r.POST("/servers/:name/keys", s.handleKeys)
	r.POST("/servers/:name/ex", s.handleEx)
	r.POST("/servers/:name/expr", s.handleExpr)
	r.POST("/servers/:name/open", s.handleOpen)
	r.GET("/pending", s.handlePending)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/events", s.handleEvents)
}

// onLoop runs fn on the event loop, answering 503 if the loop is gone.
func (s *Server) onLoop(c *gin.Context, fn func()) bool {
	if err := s.loop.Call(c.Request.Context(), fn); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func (s *Server) handleHealth(c *gin.Context) {
	var (
		name    string
		state   hiddensession.State
		servers int
		pending int
	)
	if !s.onLoop(c, func() {
		name, state = s.client.Hidden()
		servers = len(s.client.Servers())
		pending = len(s.client.Pending())
	}) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime":         time.Since(s.started).String(),
		"hidden_session": name,
		"hidden_state":   state.String(),
		"servers":        servers,
		"pending":        pending,
		"subscribers":    s.hub.ClientCount(),
	})
}

func (s *Server) handleServers(c *gin.Context) {
	var out []serverView
	if !s.onLoop(c, func() {
		for _, name := range s.client.Servers() {
			cwd, _ := s.client.Cwd(name)
			out = append(out, serverView{Name: name, Cwd: cwd})
		}
	}) {
		return
	}
	if out == nil {
		out = []serverView{}
	}
	c.JSON(http.StatusOK, gin.H{"servers": out})
}

func (s *Server) handleCwd(c *gin.Context) {
	name := c.Param("name")
	var (
		cwd string
		ok  bool
	)
	if !s.onLoop(c, func() {
		cwd, ok = s.client.Cwd(name)
		if !ok {
			s.client.FetchCwd(name)
		}
	}) {
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "cwd not cached yet", "server": name})
		return
	}
	c.JSON(http.StatusOK, gin.H{"server": name, "cwd": cwd})
}

func (s *Server) handleKeys(c *gin.Context) {
	var req keysRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Keys == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "keys required"})
		return
	}
	s.send(c, func(server string) bool { return s.client.SendKeys(server, req.Keys) })
}

func (s *Server) handleEx(c *gin.Context) {
	var req exRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Command) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command required"})
		return
	}
	s.send(c, func(server string) bool { return s.client.SendEx(server, req.Command) })
}

func (s *Server) handleOpen(c *gin.Context) {
	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Path) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path required"})
		return
	}
	s.send(c, func(server string) bool { return s.client.OpenFile(server, req.Path) })
}

// send runs a fire-and-forget operation. An unreachable server is reported
// as 404; the core itself treats it as a no-op.
func (s *Server) send(c *gin.Context, op func(server string) bool) {
	name := c.Param("name")
	var sent bool
	if !s.onLoop(c, func() { sent = op(name) }) {
		return
	}
	if !sent {
		c.JSON(http.StatusNotFound, gin.H{"error": "server not reachable", "server": name})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"server": name, "sent": true})
}

// handleExpr layers a deadline over the timeout-less call. A call that
// times out is dropped from the pending table.
func (s *Server) handleExpr(c *gin.Context) {
	var req exprRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Expr) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expr required"})
		return
	}
	timeout := s.cfg.ExprTimeout
	if req.TimeoutMS > 0 {
		timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}
	if timeout > maxExprTimeout {
		timeout = maxExprTimeout
	}

	name := c.Param("name")
	result := make(chan string, 1)
	var (
		serial int
		sent   bool
	)
	if !s.onLoop(c, func() {
		serial, sent = s.client.SendExpr(name, req.Expr, func(r string) { result <- r })
	}) {
		return
	}
	if !sent {
		c.JSON(http.StatusNotFound, gin.H{"error": "server not reachable", "server": name})
		return
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-result:
		c.JSON(http.StatusOK, gin.H{"server": name, "serial": serial, "result": r})
	case <-timer.C:
		s.abandon(serial)
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "no reply before deadline", "server": name, "serial": serial})
	case <-c.Request.Context().Done():
		s.abandon(serial)
	}
}

func (s *Server) abandon(serial int) {
	_ = s.loop.Post(context.Background(), func() { s.client.Drop(serial) })
}

func (s *Server) handlePending(c *gin.Context) {
	var calls []session.PendingCall
	if !s.onLoop(c, func() { calls = s.client.Pending() }) {
		return
	}
	out := make([]pendingView, 0, len(calls))
	for _, call := range calls {
		out = append(out, pendingView{
			Serial:   call.Serial,
			Server:   call.Target,
			Expr:     call.Expr,
			IssuedAt: call.IssuedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"pending": out})
}

func (s *Server) handleEvents(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("adminapi.Server.handleEvents upgrade failed")
		return
	}
	cl := s.hub.add(conn)
	defer s.hub.remove(cl)
	// Reads only detect the peer closing the stream.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
