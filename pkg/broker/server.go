// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/novatechflow/kraftbroker/pkg/protocol"
)

// Server accepts Kafka connections and hands each one to the worker pool for
// its whole lifetime.
type Server struct {
	Addr    string
	Handler FrameHandler
	// Pool serves connections; Serve creates one with DefaultWorkers when nil
	// and closes it on return.
	Pool   *WorkerPool
	Logger *slog.Logger
	// MaxFrameBytes bounds inbound frames; zero means protocol.MaxFrameSize.
	MaxFrameBytes int32
	// IdleTimeout closes connections that send nothing for this long; zero
	// disables it.
	IdleTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
}

// Listen binds the listener without accepting connections yet.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// ListenAndServe binds and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections on the bound listener until ctx is cancelled.
// On return the listener and every open connection are closed and the pool
// has drained.
func (s *Server) Serve(ctx context.Context) error {
	if s.Handler == nil {
		return errors.New("broker.Server requires a Handler")
	}
	s.mu.Lock()
	ln := s.listener
	if ln == nil {
		s.mu.Unlock()
		return errors.New("broker.Server: Listen must be called before Serve")
	}
	if s.Pool == nil {
		s.Pool = NewWorkerPool(DefaultWorkers)
	}
	pool := s.Pool
	s.mu.Unlock()
	s.logger().Info("broker listening", "addr", ln.Addr().String(), "workers", pool.Size())

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = ln.Close()
	}()

	var serveErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger().Warn("accept timeout", "error", err)
				continue
			}
			serveErr = err
			break
		}
		connectionsTotal.Inc()
		s.track(conn)
		if err := pool.Submit(func() { s.handleConnection(ctx, conn) }); err != nil {
			s.logger().Error("submit connection", "remote", conn.RemoteAddr().String(), "error", err)
			s.untrack(conn)
			_ = conn.Close()
		}
	}

	s.closeConnections()
	pool.Close()
	s.logger().Info("broker stopped")
	return serveErr
}

// ListenAddress returns the bound address, or Addr before Listen.
func (s *Server) ListenAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.Addr
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		s.conns = make(map[net.Conn]struct{})
	}
	s.conns[conn] = struct{}{}
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) closeConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	logger := s.logger().With("remote", remoteAddr(conn))
	connectionsActive.Inc()
	defer connectionsActive.Dec()
	defer s.untrack(conn)
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("connection handler panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	limit := s.MaxFrameBytes
	if limit <= 0 {
		limit = protocol.MaxFrameSize
	}
	for {
		if s.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.IdleTimeout))
		}
		frame, err := protocol.ReadFrameLimit(conn, limit)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			case errors.Is(err, protocol.ErrFrameTooLarge):
				frameErrors.WithLabelValues("too_large").Inc()
				logger.Warn("rejecting oversized frame", "error", err)
			case errors.Is(err, os.ErrDeadlineExceeded):
				logger.Debug("closing idle connection", "idle_timeout", s.IdleTimeout)
			default:
				frameErrors.WithLabelValues("read").Inc()
				logger.Warn("read frame", "error", err)
			}
			return
		}
		header, body, err := protocol.ParseRequestHeader(frame.Payload)
		if err != nil {
			frameErrors.WithLabelValues("header").Inc()
			logger.Warn("parse request header", "error", err, "payload_bytes", len(frame.Payload))
			return
		}
		respPayload, err := s.Handler.HandleFrame(ctx, header, body)
		if err != nil {
			frameErrors.WithLabelValues("handler").Inc()
			logger.Warn("handle request", "error", err, "correlation_id", header.CorrelationID)
			return
		}
		if respPayload == nil {
			continue
		}
		if err := protocol.WriteFrame(conn, respPayload); err != nil {
			logger.Warn("write frame", "error", err)
			return
		}
	}
}

func (s *Server) logger() *slog.Logger {
	return loggerOrDefault(s.Logger)
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
