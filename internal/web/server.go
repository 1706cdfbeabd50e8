// Package web exposes the HTTP/JSON control surface: start/stop commands,
// status polling, settings and cycle history. String enums are parsed here,
// once; the controller only ever sees typed orders.
package web

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sweeney/brew-controller/internal/history"
	"github.com/sweeney/brew-controller/internal/machine"
	"github.com/sweeney/brew-controller/internal/order"
	"github.com/sweeney/brew-controller/internal/settings"
	"github.com/sweeney/brew-controller/internal/status"
)

// Machine is the controller surface the API needs. Implementations must be
// safe for concurrent use; the daemon serializes calls against the tick
// loop.
type Machine interface {
	Start(order.Order) bool
	Stop()
	LastError() machine.ErrorKind
	CycleID() string
}

// Server serves the control API and a minimal status page.
type Server struct {
	httpServer *http.Server
	machine    Machine
	store      *settings.Store
	tracker    *status.Tracker
	history    *history.Store // nil disables /api/history
	log        *zap.Logger
}

// New creates a Server. history may be nil.
func New(addr string, m Machine, store *settings.Store, tracker *status.Tracker, hist *history.Store, log *zap.Logger) *Server {
	s := &Server{
		machine: m,
		store:   store,
		tracker: tracker,
		history: hist,
		log:     log,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/", s.handleIndex)
	api := engine.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.POST("/start", s.handleStart)
		api.POST("/stop", s.handleStop)
		api.GET("/settings", s.handleGetSettings)
		api.POST("/settings", s.handleSaveSettings)
		api.POST("/settings/defaults", s.handleDefaultSettings)
		api.GET("/history", s.handleHistory)
	}

	s.httpServer = &http.Server{Addr: addr, Handler: engine}
	return s
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// startRequest is the wire form of an order. Enum fields are plain strings
// here and nowhere else.
type startRequest struct {
	Recipe     string `json:"recipe" binding:"required"`
	Size       string `json:"size"`
	Sugar      string `json:"sugar"`
	BrewBase   string `json:"brew_base"`
	HotLiquid  string `json:"hot_liquid"`
	MilkRatio  string `json:"milk_ratio"`
	CleanWater bool   `json:"clean_water"`
	CleanMilk  bool   `json:"clean_milk"`
}

func (r startRequest) toOrder() (order.Order, error) {
	var o order.Order
	var err error

	if o.Recipe, err = order.ParseRecipe(r.Recipe); err != nil {
		return o, err
	}
	if o.Size, err = order.ParseSize(r.Size); err != nil {
		return o, err
	}
	if o.Sugar, err = order.ParseSugar(r.Sugar); err != nil {
		return o, err
	}

	switch o.Recipe {
	case order.RecipeCoffee:
		if o.BrewBase, err = order.ParseBrewBase(r.BrewBase); err != nil {
			return o, err
		}
	case order.RecipeHotDrink:
		if o.HotLiquid, err = order.ParseHotLiquid(r.HotLiquid); err != nil {
			return o, err
		}
	case order.RecipeInstant:
		if o.MilkRatio, err = order.ParseMilkRatio(r.MilkRatio); err != nil {
			return o, err
		}
	case order.RecipeClean:
		o.CleanWater = r.CleanWater
		o.CleanMilk = r.CleanMilk
	}

	return o, o.Validate()
}

func (s *Server) handleStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	o, err := req.toOrder()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !s.machine.Start(o) {
		kind := s.machine.LastError()
		code := http.StatusConflict
		if kind == machine.ErrNotReady {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"error": string(kind)})
		return
	}

	s.log.Info("order accepted",
		zap.String("recipe", string(o.Recipe)),
		zap.String("cycle_id", s.machine.CycleID()))
	c.JSON(http.StatusAccepted, gin.H{
		"status":   "started",
		"cycle_id": s.machine.CycleID(),
	})
}

func (s *Server) handleStop(c *gin.Context) {
	s.machine.Stop()
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, buildStatus(s.tracker.Snapshot()))
}

func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Get())
}

func (s *Server) handleSaveSettings(c *gin.Context) {
	var ns settings.Settings
	if err := c.ShouldBindJSON(&ns); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.Save(ns); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.store.Get())
}

func (s *Server) handleDefaultSettings(c *gin.Context) {
	if err := s.store.SetDefaults(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.store.Get())
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history disabled"})
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	recs, err := s.history.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cycles": recs})
}
