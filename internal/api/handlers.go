package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ETAnderson/pricetrail/internal/api/authctx"
	"github.com/ETAnderson/pricetrail/internal/domain"
	"github.com/ETAnderson/pricetrail/internal/harvest"
	"github.com/ETAnderson/pricetrail/internal/state"
)

func (s *Server) listProducts(c *gin.Context) {
	limit := clampLimit(c.Query("limit"), state.DefaultSearchLimit, 500)

	items, err := s.Store.SearchProducts(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		s.logf("search products: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (s *Server) getProduct(c *gin.Context) {
	id := c.Param("id")

	rec, ok, err := s.Store.GetProduct(c.Request.Context(), id)
	if err != nil {
		s.logf("get product %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load_failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "no product " + id})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) getHistory(c *gin.Context) {
	id := c.Param("id")

	rec, ok, err := s.Store.GetProduct(c.Request.Context(), id)
	if err != nil {
		s.logf("get product %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load_failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "no product " + id})
		return
	}

	if q := c.Query("channel"); q != "" {
		ch := domain.Channel(q)
		if !ch.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_channel", "message": q})
			return
		}
		periods := rec.History.Channel(ch)
		if periods == nil {
			periods = []domain.PricePeriod{}
		}
		c.JSON(http.StatusOK, gin.H{"id": rec.ID, "channel": ch, "periods": periods})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": rec.ID, "history": rec.History})
}

func (s *Server) listRuns(c *gin.Context) {
	limit := clampLimit(c.Query("limit"), state.DefaultRunListLimit, 365)

	runs, err := s.Store.ListRunStates(c.Request.Context(), limit)
	if err != nil {
		s.logf("list runs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": runs, "count": len(runs)})
}

func (s *Server) todayRun(c *gin.Context) {
	date := time.Now().In(s.loc()).Format("2006-01-02")

	rs, ok, err := s.Store.GetRunState(c.Request.Context(), date)
	if err != nil {
		s.logf("get run state %s: %v", date, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load_failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "no run recorded for " + date})
		return
	}
	c.JSON(http.StatusOK, rs)
}

type harvestRequest struct {
	Items   []string `json:"items"`
	Force   bool     `json:"force"`
	Workers int      `json:"workers"`
}

// triggerHarvest starts a pass in the background and returns immediately.
// Only one triggered pass runs at a time per process.
func (s *Server) triggerHarvest(c *gin.Context) {
	var req harvestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "message": err.Error()})
			return
		}
	}

	if !s.running.CompareAndSwap(false, true) {
		c.JSON(http.StatusConflict, gin.H{"error": "pass_in_progress", "message": "a harvesting pass is already running"})
		return
	}

	workers := req.Workers
	if workers <= 0 {
		workers = s.Workers
	}

	subject := authctx.Subject(c.Request.Context())
	s.logf("harvest pass requested subject=%q items=%d force=%v workers=%d",
		subject, len(req.Items), req.Force, workers)

	// The pass outlives the request, so it runs on its own context.
	go func() {
		defer s.running.Store(false)

		res, err := s.Orchestrator.RunPass(context.Background(), harvest.PassOptions{
			Items:   req.Items,
			Force:   req.Force,
			Workers: workers,
		})
		if err != nil {
			s.logf("triggered pass failed: %v", err)
			return
		}
		s.logf("triggered pass finished phase=%s processed=%d/%d errored=%d",
			res.Phase, res.Processed, res.Population, res.Errored)
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func clampLimit(raw string, def, max int) int {
	limit := def
	if raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return limit
}
