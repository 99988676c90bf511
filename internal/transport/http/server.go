// Package reconhttp exposes the reconciliation state over a read-only HTTP
// API: the same orders, trades, positions and settlement views the operator
// tables render, plus the reconciliation message log and error counters.
package reconhttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tmatic/internal/engine"
	"tmatic/internal/logger"
	"tmatic/internal/store/eventlog"
	"tmatic/internal/store/model"
)

// TradeReader lists persisted ledger rows.
type TradeReader interface {
	RecentTrades(ctx context.Context, limit int) ([]model.TradeModel, error)
}

// ServerConfig wires the server's read-side dependencies.
type ServerConfig struct {
	Addr       string
	Dispatcher *engine.Dispatcher
	Trades     TradeReader
	ReconLog   *eventlog.Store
	Notifier   *engine.Notifier
}

type Server struct {
	addr   string
	router *gin.Engine
	cfg    ServerConfig
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("http server requires a dispatcher")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8880"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	s := &Server{addr: cfg.Addr, router: router, cfg: cfg}
	s.register(router.Group("/api"))
	return s, nil
}

func (s *Server) register(group *gin.RouterGroup) {
	group.GET("/markets", s.handleMarkets)
	group.GET("/markets/:market/orders", s.handleOrders)
	group.GET("/markets/:market/positions", s.handlePositions)
	group.GET("/markets/:market/settlements", s.handleSettlements)
	group.GET("/markets/:market/counters", s.handleCounters)
	if s.cfg.Trades != nil {
		group.GET("/trades", s.handleTrades)
	}
	if s.cfg.ReconLog != nil {
		group.GET("/log", s.handleReconLog)
	}
}

func (s *Server) handleMarkets(c *gin.Context) {
	engines := s.cfg.Dispatcher.Engines()
	names := make([]string, 0, len(engines))
	for _, e := range engines {
		names = append(names, e.Market())
	}
	c.JSON(http.StatusOK, gin.H{"markets": names})
}

func (s *Server) engineFor(c *gin.Context) (*engine.Engine, bool) {
	e, ok := s.cfg.Dispatcher.Engine(c.Param("market"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown market"})
		return nil, false
	}
	return e, true
}

func (s *Server) handleOrders(c *gin.Context) {
	e, ok := s.engineFor(c)
	if !ok {
		return
	}
	snap := e.Snapshot()
	c.JSON(http.StatusOK, gin.H{"market": snap.Market, "orders": snap.Orders})
}

func (s *Server) handlePositions(c *gin.Context) {
	e, ok := s.engineFor(c)
	if !ok {
		return
	}
	snap := e.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"market":    snap.Market,
		"positions": snap.Positions,
		"halted":    snap.Halted,
	})
}

func (s *Server) handleSettlements(c *gin.Context) {
	e, ok := s.engineFor(c)
	if !ok {
		return
	}
	snap := e.Snapshot()
	c.JSON(http.StatusOK, gin.H{"market": snap.Market, "settlements": snap.Settlements})
}

func (s *Server) handleCounters(c *gin.Context) {
	e, ok := s.engineFor(c)
	if !ok {
		return
	}
	resp := gin.H{"market": e.Market(), "counters": e.Counters.Snapshot()}
	if s.cfg.Notifier != nil {
		resp["notifications_dropped"] = s.cfg.Notifier.Dropped()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleTrades(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	rows, err := s.cfg.Trades.RecentTrades(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": rows})
}

func (s *Server) handleReconLog(c *gin.Context) {
	limit := queryInt(c, "limit", 100)
	rows, err := s.cfg.ReconLog.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": rows})
}

func queryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("http api listening on %s", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }
