// Package liveserver pushes session changes to websocket subscribers
package liveserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"market_client/internal/core"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

var (
	feedActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "market_client_feed_active_connections",
		Help: "Current number of observer feed websocket connections",
	})

	feedRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "market_client_feed_rejected_total",
		Help: "Total number of rejected observer feed connections",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(feedActiveConnections)
	prometheus.MustRegister(feedRejectedTotal)
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Options tunes admission of feed clients
type Options struct {
	Addr           string
	AllowedOrigins []string
	// Production rejects the "*" origin
	Production     bool
	MaxConnections int
	// RateLimit is new connections per second per remote IP
	RateLimit float64
	RateBurst int
}

// DefaultOptions allows 100 connections and 10 new connections per second per IP
func DefaultOptions() Options {
	return Options{
		MaxConnections: 100,
		RateLimit:      10,
		RateBurst:      20,
	}
}

// Server serves the feed websocket at /ws and a liveness check at /health
type Server struct {
	hub      *Hub
	opts     Options
	logger   core.ILogger
	upgrader websocket.Upgrader
	connSem  chan struct{}
	limiters sync.Map // remote IP -> *rate.Limiter

	mu  sync.Mutex
	srv *http.Server
}

// NewServer creates a feed server publishing hub's messages
func NewServer(hub *Hub, opts Options, logger core.ILogger) *Server {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = DefaultOptions().MaxConnections
	}
	s := &Server{
		hub:     hub,
		opts:    opts,
		logger:  logger.WithField("component", "feed_server"),
		connSem: make(chan struct{}, opts.MaxConnections),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the feed routes
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebSocket)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

// Run serves on opts.Addr until ctx is done
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	s.srv = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.srv
	s.mu.Unlock()

	s.logger.Info("Starting observer feed", "addr", s.opts.Addr)

	errCh := make(chan error, 1)
	go func() {
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
		s.logger.Info("Stopping observer feed")
		return srv.Shutdown(shutdownCtx)
	}
}

// checkOrigin accepts only whitelisted scheme://host origins
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		s.logger.Warn("Rejected feed connection with missing Origin header", "remote_addr", r.RemoteAddr)
		feedRejectedTotal.WithLabelValues("invalid_origin").Inc()
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		s.logger.Warn("Rejected feed connection with invalid Origin", "origin", origin, "error", err)
		feedRejectedTotal.WithLabelValues("invalid_origin").Inc()
		return false
	}
	normalized := parsed.Scheme + "://" + parsed.Host

	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" {
			if s.opts.Production {
				s.logger.Warn("Rejected wildcard origin in production mode", "origin", origin)
				feedRejectedTotal.WithLabelValues("invalid_origin").Inc()
				return false
			}
			return true
		}
		if normalized == allowed {
			return true
		}
	}

	s.logger.Warn("Rejected feed connection from unauthorized origin", "origin", origin, "remote_addr", r.RemoteAddr)
	feedRejectedTotal.WithLabelValues("invalid_origin").Inc()
	return false
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.opts.RateLimit > 0 {
		ip := remoteIP(r)
		if !s.limiter(ip).Allow() {
			s.logger.Warn("Feed rate limit exceeded", "ip", ip)
			feedRejectedTotal.WithLabelValues("rate_limit").Inc()
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
	}

	select {
	case s.connSem <- struct{}{}:
		feedActiveConnections.Inc()
		defer func() {
			<-s.connSem
			feedActiveConnections.Dec()
		}()
	default:
		s.logger.Warn("Max feed connections reached")
		feedRejectedTotal.WithLabelValues("connection_limit").Inc()
		http.Error(w, "Server busy", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Feed upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	client := NewClient(uuid.NewString())
	if !s.hub.Register(client) {
		return
	}
	s.logger.Debug("Feed client connected", "client_id", client.id, "remote_addr", r.RemoteAddr)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writePump(conn, client)
	}()
	go func() {
		defer wg.Done()
		s.readPump(conn, client)
	}()
	wg.Wait()
}

// writePump closes conn on exit so the read pump unblocks
func (s *Server) writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Outbox():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug("Feed write failed", "client_id", client.id, "error", err)
				s.hub.Unregister(client)
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.hub.Unregister(client)
				return
			}
		}
	}
}

// readPump only services pongs and close frames; clients never send data
func (s *Server) readPump(conn *websocket.Conn, client *Client) {
	defer s.hub.Unregister(client)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("Feed read error", "client_id", client.id, "error", err)
			}
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
		"time":    time.Now().Unix(),
	})
}

func (s *Server) limiter(ip string) *rate.Limiter {
	if v, ok := s.limiters.Load(ip); ok {
		return v.(*rate.Limiter)
	}
	actual, _ := s.limiters.LoadOrStore(ip, rate.NewLimiter(rate.Limit(s.opts.RateLimit), s.opts.RateBurst))
	return actual.(*rate.Limiter)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
