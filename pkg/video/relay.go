// Package video pkg/video/relay.go relays opaque video packets from
// publisher connections to subscriber connections.
package video

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/agrolink/fieldgate/pkg/health"
)

const (
	healthComponent = "video_relay"
	readBufferSize  = 64 * 1024
	queueDepth      = 64
)

var rolePrefix = []byte("ROLE:")

// packet is one opaque payload queued for broadcast.
type packet struct {
	data      []byte
	timestamp int64
}

// client tracks one connection and its declared role. Connections are
// subscribers until they declare ROLE:PUBLISHER.
type client struct {
	conn        net.Conn
	isPublisher bool
}

// Relay is a TCP pub/sub of opaque byte packets. Publishers push,
// subscribers receive every packet; a single goroutine does the fan-out.
type Relay struct {
	monitor *health.Monitor

	mu      sync.Mutex
	clients map[uint64]*client
	nextID  uint64

	queue    chan packet
	listener net.Listener
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRelay creates a stopped relay.
func NewRelay(monitor *health.Monitor) *Relay {
	return &Relay{
		monitor: monitor,
		clients: make(map[uint64]*client),
		queue:   make(chan packet, queueDepth),
		done:    make(chan struct{}),
	}
}

// Start binds the relay port and launches the accept and broadcast
// loops. A start failure is non-fatal to the caller.
func (r *Relay) Start(port int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		r.monitor.Update(healthComponent, false, "Start failed")
		return fmt.Errorf("failed to start video relay on port %d: %w", port, err)
	}

	r.listener = listener
	r.monitor.Update(healthComponent, true, fmt.Sprintf("Listening on port %d", port))
	log.Printf("video_relay: started on port %d", port)

	r.wg.Add(2)
	go r.acceptLoop()
	go r.relayLoop()

	return nil
}

// Stop wakes the relay goroutine, closes the listener and every client
// connection, and waits for the loops to drain.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})

	if r.listener != nil {
		_ = r.listener.Close()
	}

	r.mu.Lock()
	for _, c := range r.clients {
		_ = c.conn.Close()
	}
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Relay) acceptLoop() {
	defer r.wg.Done()

	for {
		conn, err := r.listener.Accept()
		if err != nil {
			select {
			case <-r.done:
				return
			default:
			}

			if errors.Is(err, net.ErrClosed) {
				return
			}

			log.Printf("video_relay: accept failed: %v", err)

			continue
		}

		r.mu.Lock()
		r.nextID++
		id := r.nextID
		r.clients[id] = &client{conn: conn}
		r.mu.Unlock()

		log.Printf("video_relay: client connected: %d", id)
		r.monitor.Update(healthComponent, true, fmt.Sprintf("Client connected: %d", id))

		r.wg.Add(1)
		go r.readLoop(id, conn)
	}
}

func (r *Relay) readLoop(id uint64, conn net.Conn) {
	defer r.wg.Done()
	defer r.dropClient(id)

	buf := make([]byte, readBufferSize)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			payload := make([]byte, n)
			copy(payload, buf[:n])
			r.handlePayload(id, payload)
		}

		if err != nil {
			return
		}
	}
}

func (r *Relay) handlePayload(id uint64, payload []byte) {
	// Role declaration: ROLE:PUBLISHER marks a pushing client, anything
	// else a subscriber.
	if bytes.HasPrefix(payload, rolePrefix) {
		role := string(payload[len(rolePrefix):])

		r.mu.Lock()
		if c, ok := r.clients[id]; ok {
			c.isPublisher = role == "PUBLISHER"
		}
		r.mu.Unlock()

		log.Printf("video_relay: client %d role updated -> %s", id, role)

		return
	}

	r.mu.Lock()
	c, ok := r.clients[id]
	isPublisher := ok && c.isPublisher
	r.mu.Unlock()

	if !isPublisher {
		log.Printf("video_relay: subscriber %d attempted to push data, ignored", id)
		return
	}

	pkt := packet{data: payload, timestamp: time.Now().UnixNano()}

	select {
	case r.queue <- pkt:
	default:
		log.Printf("video_relay: queue full, dropping packet from %d", id)
	}
}

func (r *Relay) relayLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.done:
			return
		case pkt := <-r.queue:
			r.broadcast(pkt)
		}
	}
}

// broadcast sends the packet to every connection whose role is
// subscriber at broadcast time.
func (r *Relay) broadcast(pkt packet) {
	r.mu.Lock()
	targets := make([]net.Conn, 0, len(r.clients))

	for _, c := range r.clients {
		if !c.isPublisher {
			targets = append(targets, c.conn)
		}
	}
	r.mu.Unlock()

	for _, conn := range targets {
		if _, err := conn.Write(pkt.data); err != nil {
			log.Printf("video_relay: broadcast failed: %v", err)
		}
	}

	r.monitor.Update(healthComponent, true, "Video packet broadcast")
}

func (r *Relay) dropClient(id uint64) {
	r.mu.Lock()
	c, ok := r.clients[id]
	delete(r.clients, id)
	r.mu.Unlock()

	if ok {
		_ = c.conn.Close()
		log.Printf("video_relay: client disconnected: %d", id)
		r.monitor.Update(healthComponent, true, fmt.Sprintf("Client disconnected: %d", id))
	}
}
