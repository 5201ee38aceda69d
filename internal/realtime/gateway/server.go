package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"rentme-realtime/internal/app/dto"
	"rentme-realtime/internal/auth"
	"rentme-realtime/internal/realtime/fanout"
	"rentme-realtime/internal/realtime/wire"
)

// Server upgrades authenticated requests and runs their connections.
type Server struct {
	hub      *Hub
	router   *Router
	resolver auth.Resolver
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader
	// ctx scopes every connection; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc
}

func NewServer(hub *Hub, router *Router, resolver auth.Resolver, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		hub:      hub,
		router:   router,
		resolver: resolver,
		opts:     opts,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return opts.originAllowed(r.Header.Get("Origin"))
		},
	}
	return s
}

// token reads the bearer credential. Browsers cannot set headers on a
// websocket upgrade, so the access_token query parameter is accepted too.
func token(c *gin.Context) string {
	if t := auth.BearerToken(c.GetHeader("Authorization")); t != "" {
		return t
	}
	return c.Query("access_token")
}

// ServeWS authenticates before upgrading so a bad credential is an HTTP
// 401 rather than a websocket close.
func (s *Server) ServeWS(c *gin.Context) {
	tok := token(c)
	principal, err := s.resolver.Resolve(c.Request.Context(), tok)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrUnavailable) {
			status = http.StatusServiceUnavailable
			s.logger.Warn("identity service unavailable", "error", err)
		}
		c.AbortWithStatusJSON(status, dto.Error{Error: err.Error()})
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "user_id", principal.UserID, "error", err)
		return
	}
	conn := newConn(uuid.NewString(), principal.UserID, ws, s.opts)
	s.hub.Register(conn)
	s.logger.Info("websocket connected", "user_id", conn.userID, "conn_id", conn.id)

	go conn.writePump()
	conn.readPump(s.ctx, s.router.Dispatch, s.router.Reject)
	conn.shutdown(websocket.CloseNormalClosure, "")
	s.disconnected(conn)
}

// disconnected removes conn and, when the user has no connection left
// here, tells the rooms it had joined that the user went offline.
func (s *Server) disconnected(conn *Conn) {
	rooms, last := s.hub.Unregister(conn)
	s.logger.Info("websocket disconnected", "user_id", conn.userID, "conn_id", conn.id, "slow", conn.slow())
	if !last {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteWait)
	defer cancel()
	status := wire.UserStatus{UserID: conn.userID, Status: wire.StatusOffline}
	for _, room := range rooms {
		if err := s.hub.Publish(ctx, status, fanout.Delivery{Room: room, ExcludeUser: conn.userID}); err != nil {
			s.logger.Warn("offline status publish failed", "conversation_id", room, "error", err)
		}
	}
}

// Close cancels in-flight dispatches and closes every connection.
func (s *Server) Close() {
	s.cancel()
	for _, conn := range s.hub.Connections() {
		conn.shutdown(websocket.CloseGoingAway, "server shutting down")
	}
}
