// Package rest provides the Gin-based local API the game UI talks to,
// plus a websocket bridge streaming sync lifecycle events.
package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/thornvale/offline-engine/internal/engine"
	"github.com/thornvale/offline-engine/internal/model"
	syncer "github.com/thornvale/offline-engine/internal/sync"
)

// Server is the local REST API server.
type Server struct {
	router *gin.Engine
	engine *engine.Engine
	logger *zap.Logger
}

// New creates a REST Server.
func New(e *engine.Engine, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router: router,
		engine: e,
		logger: logger,
	}
	s.registerRoutes()
	return s
}

// Start starts the REST server on addr.
func (s *Server) Start(addr string) error {
	s.logger.Info("REST API listening", zap.String("addr", addr))
	return s.router.Run(addr)
}

// registerRoutes sets up the /engine context path.
func (s *Server) registerRoutes() {
	eng := s.router.Group("/engine")

	// Swagger UI
	eng.GET("/swagger-ui/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Action queue
	eng.POST("/actions", s.queueAction)
	eng.GET("/actions", s.pendingActions)

	// Sync control
	eng.POST("/sync", s.triggerSync)
	eng.POST("/sync/full", s.forceFullSync)
	eng.GET("/stats", s.stats)
	eng.GET("/history", s.history)
	eng.GET("/events", s.events)

	// Snapshot
	eng.POST("/snapshot", s.saveSnapshot)
	eng.GET("/snapshot", s.loadSnapshot)

	// Caches
	eng.GET("/npcs/:map", s.npcsByMap)
	eng.GET("/dialogue/:npcID", s.dialogue)
	eng.POST("/assets/prefetch", s.prefetchAssets)
}

type queueRequest struct {
	Type       string          `json:"type" binding:"required"`
	Payload    json.RawMessage `json:"payload" binding:"required"`
	MaxRetries *int            `json:"maxRetries,omitempty"`
}

// @Summary Queue an offline action
// @Tags actions
// @Accept json
// @Produce json
// @Param action body queueRequest true "Action to queue"
// @Success 200 {object} model.OfflineAction
// @Router /engine/actions [post]
func (s *Server) queueAction(c *gin.Context) {
	var req queueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var a model.OfflineAction
	var err error
	if req.MaxRetries != nil {
		a, err = s.engine.QueueWithRetries(model.ActionKind(req.Type), req.Payload, *req.MaxRetries)
	} else {
		a, err = s.engine.Queue(model.ActionKind(req.Type), req.Payload)
	}
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) pendingActions(c *gin.Context) {
	pending, err := s.engine.Pending()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": pending, "count": len(pending)})
}

type syncRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) triggerSync(c *gin.Context) {
	var req syncRequest
	_ = c.ShouldBindJSON(&req) // reason is optional
	if req.Reason == "" {
		req.Reason = "manual"
	}
	s.engine.TriggerSync(req.Reason)
	c.JSON(http.StatusAccepted, gin.H{"triggered": true, "reason": req.Reason})
}

func (s *Server) forceFullSync(c *gin.Context) {
	if err := s.engine.ForceFullSync(c.Request.Context()); err != nil {
		if errors.Is(err, syncer.ErrOffline) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": true})
}

// @Summary Engine status
// @Tags sync
// @Produce json
// @Success 200 {object} engine.Stats
// @Router /engine/stats [get]
func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Stats())
}

func (s *Server) history(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cycles": s.engine.History()})
}

func (s *Server) saveSnapshot(c *gin.Context) {
	var snap model.GameSnapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.engine.SaveSnapshot(&snap); err != nil {
		c.JSON(http.StatusInsufficientStorage, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": true})
}

func (s *Server) loadSnapshot(c *gin.Context) {
	snap, err := s.engine.LoadSnapshot()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot saved"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) npcsByMap(c *gin.Context) {
	recs, err := s.engine.NPCsByMap(c.Param("map"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"npcs": recs, "count": len(recs)})
}

func (s *Server) dialogue(c *gin.Context) {
	entry, err := s.engine.Dialogue(c.Param("npcID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no fresh dialogue cached"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

type prefetchRequest struct {
	URLs []string `json:"urls" binding:"required"`
}

func (s *Server) prefetchAssets(c *gin.Context) {
	var req prefetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.engine.PrefetchAssets(c.Request.Context(), req.URLs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requested": len(req.URLs)})
}
