// Package server wires the listener, worker pool, and request engine
// together, mirroring tcp_server.cpp's Server: accept in a loop, hand
// each connection to the pool, let the pool's workers run the engine's
// per-connection handler.
package server

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/engine"
	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/logging"
	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/workerpool"
)

// Server accepts connections on a listener and dispatches each one to
// the worker pool, which runs it through the Engine.
type Server struct {
	ln      net.Listener
	pool    *workerpool.Pool
	engine  *engine.Engine
	logger  *logging.Logger
	closing int32
}

// New binds addr and builds a Server that will hand accepted
// connections to eng via a pool of size workers.
func New(addr string, workers int, eng *engine.Engine, opts ...Option) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("server: listen on %s: %w", addr, err)
	}

	s := &Server{ln: ln, engine: eng, logger: logging.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.pool = workerpool.New(workers)
	return s, nil
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger attaches a logging.Logger for connection-level notes.
func WithLogger(l *logging.Logger) Option { return func(s *Server) { s.logger = l } }

// Addr returns the address the listener is bound to.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve accepts connections until ctx is done or the listener errors,
// handing each accepted connection to the worker pool. It blocks until
// the accept loop exits.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if atomic.LoadInt32(&s.closing) == 1 {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			s.logger.Error("accept: " + err.Error())
			continue
		}
		s.pool.Enqueue(func() {
			s.engine.HandleConnection(ctx, conn)
		})
	}
}

// Shutdown stops accepting new connections and waits for in-flight
// tasks to drain from the worker pool.
func (s *Server) Shutdown() {
	atomic.StoreInt32(&s.closing, 1)
	s.ln.Close()
	s.pool.Stop()
}
