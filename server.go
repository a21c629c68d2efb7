package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Server exposes the viewer websocket endpoint plus a small HTTP surface
// for health checks and out-of-band administrative deletion.
type Server struct {
	hub        *FanoutHub
	store      *TweetStore
	listenAddr string
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

func NewServer(hub *FanoutHub, store *TweetStore, listenAddr string) *Server {
	return &Server{
		hub:        hub,
		store:      store,
		listenAddr: listenAddr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (s *Server) Routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/ws", s.handleWebsocket)
	engine.DELETE("/admin/tweets/:id", s.handleAdminDelete)
	return engine
}

func (s *Server) handleHealthz(c *gin.Context) {
	count, err := s.store.TweetCount()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "tweets": count})
}

func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Websocket upgrade failed: %v", err)
		return
	}

	viewer := NewViewer(s.hub, conn)
	s.hub.Register(viewer)
	go viewer.WritePump()
	go viewer.ReadPump()
}

// handleAdminDelete removes a tweet from the store and retracts it from
// every connected viewer. Independent of the ingestion path.
func (s *Server) handleAdminDelete(c *gin.Context) {
	tweetID := c.Param("id")

	existed, err := s.store.Delete(tweetID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if existed {
		s.hub.BroadcastDelete(tweetID)
		log.Printf("Admin deleted tweet %s", tweetID)
	}
	c.JSON(http.StatusOK, gin.H{"deleted": existed})
}

func (s *Server) Start() {
	s.httpServer = &http.Server{
		Addr:    s.listenAddr,
		Handler: s.Routes(),
	}

	go func() {
		log.Printf("Server listening on %s", s.listenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
