package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/DimaCrafter/photonyx/core/cors"
	"github.com/DimaCrafter/photonyx/core/db"
	"github.com/DimaCrafter/photonyx/core/http"
	"github.com/DimaCrafter/photonyx/core/metrics"
	"github.com/DimaCrafter/photonyx/core/pools"
	"github.com/DimaCrafter/photonyx/core/router"
	"github.com/DimaCrafter/photonyx/core/websocket"
)

// Config tunes the acceptor and the per-connection pipeline.
type Config struct {
	// Workers is the number of connection workers.
	Workers int
	// MaxBodySize caps request bodies in bytes.
	MaxBodySize int
	// MaxConnections caps simultaneously accepted sockets. Zero is no cap.
	MaxConnections int
	// RateLimit is the per-peer request rate, zero disables limiting.
	RateLimit float64
	RateBurst int

	CORS cors.Policy
}

// Deps are the shared resources the pipeline reads. Router and Databases
// must not be mutated once Serve starts.
type Deps struct {
	Router    *router.Router
	Databases *db.Registry
	Endpoints *websocket.Endpoints
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// Server accepts connections and runs one request per connection on a fixed
// worker pool.
type Server struct {
	config     Config
	engine     http.Engine
	router     *router.Router
	databases  *db.Registry
	endpoints  *websocket.Endpoints
	maintainer *websocket.Maintainer
	metrics    *metrics.Metrics
	logger     *zap.Logger
	limiter    *peerLimiter

	pool *pools.WorkerPool

	mu       sync.Mutex
	listener net.Listener
	closed   atomic.Bool
}

// NewServer starts the worker pool. Zero config fields take the defaults.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Router == nil {
		deps.Router = router.New(deps.Logger)
	}
	if deps.Endpoints == nil {
		deps.Endpoints = websocket.NewEndpoints()
	}

	logger := deps.Logger.Named("server")
	s := &Server{
		config:     cfg,
		engine:     http.HTTP1{MaxBodySize: cfg.MaxBodySize},
		router:     deps.Router,
		databases:  deps.Databases,
		endpoints:  deps.Endpoints,
		maintainer: websocket.NewMaintainer(deps.Endpoints, websocket.NewHub(), deps.Logger),
		metrics:    deps.Metrics,
		logger:     logger,
		limiter:    newPeerLimiter(cfg.RateLimit, cfg.RateBurst),
	}

	s.pool = pools.NewWorkerPool(cfg.Workers, pools.WithPanicHandler(func(r any) {
		logger.Error("worker panic", zap.Any("panic", r))
	}))
	s.metrics.ObserveQueue(
		func() float64 { return float64(s.pool.Stats().TasksQueued) },
		func() float64 { return float64(s.pool.Stats().Busy) },
	)
	return s
}

// Router is the route table the pipeline matches against.
func (s *Server) Router() *router.Router {
	return s.router
}

// Hub exposes the live WebSocket clients.
func (s *Server) Hub() *websocket.Hub {
	return s.maintainer.Hub()
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown. It always returns a
// non-nil error; ErrServerClosed after a clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	if s.config.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.config.MaxConnections)
	}

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	if s.listener != nil {
		s.mu.Unlock()
		return ErrServing
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("listening",
		zap.Stringer("addr", ln.Addr()),
		zap.Int("workers", s.config.Workers),
		zap.String("max_body", humanize.IBytes(uint64(s.config.MaxBodySize))),
		zap.Int("routes", s.router.Len()),
		zap.Int("ws_endpoints", s.endpoints.Len()))

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				delay = min(max(2*delay, 5*time.Millisecond), maxAcceptDelay)
				s.logger.Warn("accept failed, retrying", zap.Error(err), zap.Duration("delay", delay))
				time.Sleep(delay)
				continue
			}
			return err
		}
		delay = 0

		s.metrics.ConnectionAccepted()
		if !s.pool.Submit(func() { s.serveConn(conn) }) {
			conn.Close()
		}
	}
}

// Addr is the listening address, nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting, closes live WebSocket clients and waits for
// queued connections to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closed.Store(true)

	s.mu.Lock()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mu.Unlock()

	if n := s.maintainer.Hub().CloseAll(); n > 0 {
		s.logger.Info("closed websocket clients", zap.Int("clients", n))
	}
	if drainErr := s.pool.Shutdown(ctx); drainErr != nil {
		return drainErr
	}
	return err
}

// serveConn runs the pipeline for one connection: parse, upgrade or
// preflight checks, routing, respond, disconnect.
func (s *Server) serveConn(netConn net.Conn) {
	conn := s.engine.Accept(netConn)
	id := uuid.NewString()
	s.logger.Debug("accepted", zap.String("conn", id), zap.Stringer("remote", netConn.RemoteAddr()))

	result := conn.Parse()
	s.metrics.Parsed(result.Outcome.String())

	switch result.Outcome {
	case http.ParseComplete:
	case http.ParseError:
		s.respond(conn, id, http.FromStatus(result.Status))
		s.disconnect(conn, id)
		return
	default:
		s.disconnect(conn, id)
		return
	}

	req := result.Request
	if !s.limiter.allow(conn.RemoteIP()) {
		s.metrics.RateLimited()
		s.respond(conn, id, http.FromText(http.StatusTooManyRequests, rateLimitedMessage))
		s.disconnect(conn, id)
		return
	}

	if cors.IsConnectionUpgrade(req) {
		if cors.IsWebSocketUpgrade(req) {
			s.upgrade(conn, id, req)
			return
		}
		s.respond(conn, id, http.FromStatus(http.StatusBadRequest))
		s.disconnect(conn, id)
		return
	}

	if req.Method == http.MethodOPTIONS {
		res := http.FromStatus(http.StatusOK)
		s.config.CORS.ApplyPreflight(req, res)
		s.respond(conn, id, res)
		s.disconnect(conn, id)
		return
	}

	res := s.dispatch(conn, req)
	s.respond(conn, id, res)
	s.disconnect(conn, id)
}

// dispatch runs the matching route handler and returns the response to
// write, CORS headers applied.
func (s *Server) dispatch(conn http.Connection, req *http.Request) *http.Response {
	route, params, ok := s.router.Match(req.Path)
	if !ok {
		res := http.FromText(http.StatusNotFound, notFoundMessage)
		s.config.CORS.ApplyNormal(req, res)
		return res
	}

	ctx := http.AcquireContext(conn, req, params, s.databases)
	defer http.ReleaseContext(ctx)

	res := s.invoke(route, ctx)
	s.config.CORS.ApplyNormal(req, res)
	return res
}

func (s *Server) invoke(route *router.Route, ctx *http.Context) (res *http.Response) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panic",
				zap.String("pattern", route.Pattern),
				zap.String("module", route.Origin),
				zap.Any("panic", r))
			res = http.FromText(http.StatusInternalServerError, internalMessage)
		}
	}()

	outcome := route.Handler(ctx)
	if outcome.IsReplace() {
		return outcome.Response()
	}
	return ctx.Response
}

// upgrade answers the handshake and, on success, hands the socket to the
// WebSocket maintainer for the rest of its life.
func (s *Server) upgrade(conn http.Connection, id string, req *http.Request) {
	index, res, ok := websocket.Handshake(s.endpoints, req)
	if err := s.respond(conn, id, res); err != nil || !ok {
		s.disconnect(conn, id)
		return
	}

	netConn, rw := conn.Hijack()
	hub := s.maintainer.Hub()
	s.metrics.WebSocketClients(int(hub.Stats().CurrentClients) + 1)
	s.maintainer.Maintain(netConn, rw, req, index)
	s.metrics.WebSocketClients(int(hub.Stats().CurrentClients))
}

func (s *Server) respond(conn http.Connection, id string, res *http.Response) error {
	code := int(res.Status)
	switch {
	case res.IsDrop():
		code = 0
	case res.Status == http.StatusNotSent:
		code = int(http.StatusOK)
	}
	s.metrics.Responded(code)

	if err := conn.Respond(res); err != nil {
		s.logger.Debug("respond failed", zap.String("conn", id), zap.Error(err))
		return err
	}
	return nil
}

func (s *Server) disconnect(conn http.Connection, id string) {
	if err := conn.Disconnect(); err != nil {
		s.logger.Debug("disconnect failed", zap.String("conn", id), zap.Error(err))
	}
}
