// Package api exposes the harvested catalog over HTTP: read endpoints for
// products, price history, and run states, plus one guarded operational
// endpoint that triggers a harvesting pass.
package api

import (
	"crypto/rsa"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ETAnderson/pricetrail/internal/api/middleware"
	"github.com/ETAnderson/pricetrail/internal/harvest"
	"github.com/ETAnderson/pricetrail/internal/state"
)

type Server struct {
	Store        state.Store
	Orchestrator *harvest.Orchestrator

	// Env selects the auth posture ("dev" relaxes it). PublicKey verifies
	// bearer tokens on ops endpoints.
	Env       string
	PublicKey *rsa.PublicKey

	// Loc is the harvest timezone, used to resolve "today". Defaults to UTC.
	Loc     *time.Location
	Workers int
	Log     *log.Logger

	// running makes triggered passes single-flight per process.
	running atomic.Bool
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/products", s.listProducts)
		api.GET("/products/:id", s.getProduct)
		api.GET("/products/:id/history", s.getHistory)
		api.GET("/runs", s.listRuns)
		api.GET("/runs/today", s.todayRun)
	}

	ops := r.Group("/api/ops", middleware.RequireOps(s.Env, s.PublicKey))
	{
		ops.POST("/harvest", s.triggerHarvest)
	}

	return r
}

func (s *Server) loc() *time.Location {
	if s.Loc != nil {
		return s.Loc
	}
	return time.UTC
}

func (s *Server) logf(format string, args ...any) {
	if s.Log != nil {
		s.Log.Printf(format, args...)
	}
}
