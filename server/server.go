// Package server exposes price queries over websocket connections.
package server

import (
	"log/slog"
	"net/http"
	"sync"

	"crypto-prices-relay/query"
	"crypto-prices-relay/supervisor"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Ingestion is the feed supervisor as seen by the transport.
type Ingestion interface {
	EnsureRunning()
	Status() []supervisor.FeedStatus
}

type Server struct {
	ingestion    Ingestion
	responder    *query.Responder
	upgrader     websocket.Upgrader
	wsClients    map[*websocket.Conn]bool
	clientsMutex sync.RWMutex
	logger       *slog.Logger
}

func New(ingestion Ingestion, responder *query.Responder, logger *slog.Logger) *Server {
	return &Server{
		ingestion: ingestion,
		responder: responder,
		wsClients: make(map[*websocket.Conn]bool),
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

type Routes struct {
	WSPath      string
	MetricsPath string
	Metrics     http.Handler
}

// Handler builds the HTTP router. The metrics route is only added when
// routes.Metrics is set.
func (s *Server) Handler(routes Routes) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET(routes.WSPath, s.handleWebSocket)
	r.GET("/healthz", s.handleHealth)
	if routes.Metrics != nil {
		r.GET(routes.MetricsPath, gin.WrapH(routes.Metrics))
	}
	return r
}

func (s *Server) Clients() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.wsClients)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"clients": s.Clients(),
		"feeds":   s.ingestion.Status(),
	})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error", slog.Any("error", err))
		return
	}
	defer conn.Close()

	s.ingestion.EnsureRunning()

	s.clientsMutex.Lock()
	s.wsClients[conn] = true
	total := len(s.wsClients)
	s.clientsMutex.Unlock()
	s.logger.Info("websocket client connected", slog.Int("clients", total))

	defer func() {
		s.clientsMutex.Lock()
		delete(s.wsClients, conn)
		total := len(s.wsClients)
		s.clientsMutex.Unlock()
		s.logger.Info("websocket client disconnected", slog.Int("clients", total))
	}()

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var resp any
		if messageType == websocket.TextMessage {
			resp = s.responder.RespondText(payload)
		} else {
			resp = s.responder.RespondBare()
		}

		if err := conn.WriteJSON(resp); err != nil {
			s.logger.Warn("websocket write error", slog.Any("error", err))
			return
		}
	}
}
