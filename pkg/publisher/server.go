// Package publisher pkg/publisher/server.go is the framed TCP fan-out
// server: outbound telemetry frames to every subscriber, inbound bytes
// to the command router.
package publisher

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/agrolink/fieldgate/pkg/config"
	"github.com/agrolink/fieldgate/pkg/health"
	"github.com/agrolink/fieldgate/pkg/models"
)

const (
	healthComponent = "telemetry_publisher"
	readBufferSize  = 4096
)

// InboundHandler consumes raw inbound bytes from one connection.
type InboundHandler interface {
	Feed(connID uint64, chunk []byte, respond func(reply string))
}

// SnapshotProvider builds the join-time frames, one per channel.
type SnapshotProvider func() []models.Frame

// Server accepts subscriber connections, broadcasts frames to all of
// them, and feeds inbound bytes to the command router.
type Server struct {
	cfg     config.PublisherConfig
	router  InboundHandler
	monitor *health.Monitor

	providerMu sync.RWMutex
	provider   SnapshotProvider

	mu       sync.Mutex
	conns    map[uint64]net.Conn
	nextID   uint64
	listener net.Listener

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewServer creates a publisher bound to the configured address.
func NewServer(cfg config.PublisherConfig, router InboundHandler, monitor *health.Monitor) *Server {
	return &Server{
		cfg:     cfg,
		router:  router,
		monitor: monitor,
		conns:   make(map[uint64]net.Conn),
		done:    make(chan struct{}),
	}
}

// Start binds the listener and launches the accept loop. A bind failure
// is returned to the caller; it is startup-fatal for the process.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.monitor.Update(healthComponent, false, fmt.Sprintf("listen failed: %v", err))
		return fmt.Errorf("failed to start publisher on %s: %w", addr, err)
	}

	s.listener = listener
	s.monitor.Update(healthComponent, true, "Server listening")
	log.Printf("telemetry_publisher: listening on %s", addr)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop closes the listener and every live connection, then waits for
// the connection handlers to drain.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})

	if s.listener != nil {
		_ = s.listener.Close()
	}

	s.mu.Lock()
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.monitor.Update(healthComponent, false, "Server stopped")
}

// HasSubscribers reports whether at least one connection is live.
func (s *Server) HasSubscribers() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.conns) > 0
}

// ConnectionCount returns the number of live connections.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.conns)
}

// SetSnapshotProvider registers the join-time frame builder. It is set
// once during wiring, before traffic arrives.
func (s *Server) SetSnapshotProvider(provider func() []models.Frame) {
	s.providerMu.Lock()
	defer s.providerMu.Unlock()

	s.provider = provider
}

// Publish serialises the frame once and sends the same buffer to every
// live connection. Delivery is best-effort: a failed send on one
// connection does not abort the others.
func (s *Server) Publish(frame models.Frame) {
	if !s.HasSubscribers() {
		return
	}

	buffer, err := EncodeFrame(frame)
	if err != nil {
		log.Printf("telemetry_publisher: %v", err)
		return
	}

	for id, conn := range s.liveConns() {
		if _, err := conn.Write(buffer); err != nil {
			log.Printf("telemetry_publisher: send to connection %d failed: %v", id, err)
		}
	}

	s.monitor.Update(healthComponent, true, "Frame delivered to clients")
}

func (s *Server) liveConns() map[uint64]net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns := make(map[uint64]net.Conn, len(s.conns))
	for id, conn := range s.conns {
		conns[id] = conn
	}

	return conns
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}

			if errors.Is(err, net.ErrClosed) {
				return
			}

			log.Printf("telemetry_publisher: accept failed: %v", err)

			continue
		}

		id, ok := s.register(conn)
		if !ok {
			_ = conn.Close()
			continue
		}

		s.monitor.Update(healthComponent, true, fmt.Sprintf("Client connected: %d", id))

		// Join-time replay: the current view goes to every subscriber,
		// not only the joiner.
		s.sendSnapshots()

		s.wg.Add(1)
		go s.handleConn(id, conn)
	}
}

func (s *Server) register(conn net.Conn) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.MaxConnections > 0 && len(s.conns) >= s.cfg.MaxConnections {
		log.Printf("telemetry_publisher: connection limit %d reached, rejecting %s",
			s.cfg.MaxConnections, conn.RemoteAddr())
		return 0, false
	}

	s.nextID++
	id := s.nextID
	s.conns[id] = conn

	return id, true
}

func (s *Server) unregister(id uint64) {
	s.mu.Lock()
	conn, ok := s.conns[id]
	delete(s.conns, id)
	s.mu.Unlock()

	if ok {
		_ = conn.Close()
		s.monitor.Update(healthComponent, true, fmt.Sprintf("Client disconnected: %d", id))
	}
}

func (s *Server) sendSnapshots() {
	s.providerMu.RLock()
	provider := s.provider
	s.providerMu.RUnlock()

	if provider == nil {
		return
	}

	for _, frame := range provider() {
		s.Publish(frame)
	}
}

func (s *Server) handleConn(id uint64, conn net.Conn) {
	defer s.wg.Done()
	defer s.unregister(id)

	respond := func(reply string) {
		if _, err := conn.Write(append([]byte(reply), '\n')); err != nil {
			log.Printf("telemetry_publisher: reply to connection %d failed: %v", id, err)
		}
	}

	buf := make([]byte, readBufferSize)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.router.Feed(id, chunk, respond)
		}

		if err != nil {
			return
		}
	}
}
