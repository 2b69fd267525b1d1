// Package controlsocket exposes the running Core's SnapshotView over a
// Unix domain socket, the read-only consumer contract named in §6: one
// connection, one JSON document, connection closed.
package controlsocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"firestige.xyz/otus/internal/core"
	"firestige.xyz/otus/internal/log"
)

// SnapshotSource is whatever can produce the current snapshot, satisfied
// by *engine.Core without controlsocket importing engine.
type SnapshotSource interface {
	Snapshot() core.SnapshotView
}

// Server listens on a Unix socket and writes one JSON-encoded SnapshotView
// per accepted connection.
type Server struct {
	socketPath string
	source     SnapshotSource
	listener   net.Listener

	mu      sync.Mutex
	stopped bool
}

// NewServer builds a Server. socketPath is removed and recreated on Start.
func NewServer(socketPath string, source SnapshotSource) *Server {
	return &Server{socketPath: socketPath, source: source}
}

// Start listens and accepts connections until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("controlsocket: remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("controlsocket: listen: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("controlsocket: chmod: %w", err)
	}
	s.listener = listener

	go s.acceptLoop()

	<-ctx.Done()
	return s.Stop()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()
			if stopped {
				return
			}
			if logger := log.GetLogger(); logger != nil {
				logger.WithError(err).Warn("controlsocket: accept failed")
			}
			continue
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	snap := s.source.Snapshot()
	if err := json.NewEncoder(conn).Encode(snap); err != nil {
		if logger := log.GetLogger(); logger != nil {
			logger.WithError(err).Warn("controlsocket: encode snapshot failed")
		}
	}
}

// Stop closes the listener and removes the socket file.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	os.RemoveAll(s.socketPath)
	return nil
}
