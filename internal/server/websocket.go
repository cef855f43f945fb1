package server

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/payload/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Messages queued per client before it is dropped as too slow.
	clientBuffer = 256
)

// Client is one websocket subscriber of the lifecycle stream.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub fans broadcast messages out to every connected client.
type Hub struct {
	logger logging.Logger

	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex

	broadcast  chan []byte
	register   chan *Client
	unregister chan *websocket.Conn
	done       chan struct{}
	doneOnce   sync.Once
}

// NewHub creates a hub. Nothing is delivered until Run.
func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		logger:     logging.OrNop(logger).WithComponent("hub"),
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, clientBuffer),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Broadcast queues message for every client. It never blocks: when the
// queue is full or the hub has stopped the message is dropped.
func (h *Hub) Broadcast(message []byte) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.broadcast <- message:
		return true
	default:
		h.logger.Warn(context.Background(), nil, "broadcast queue full, message dropped")
		return false
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()

	return len(h.clients)
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer h.stop()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			if client == nil || client.conn == nil {
				continue
			}
			h.clientsMutex.Lock()
			h.clients[client.conn] = client
			count := len(h.clients)
			h.clientsMutex.Unlock()
			h.logger.Info(ctx, "client connected", "clients", count)

		case conn := <-h.unregister:
			if conn == nil {
				continue
			}
			h.clientsMutex.Lock()
			if client, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				close(client.send)
				h.logger.Info(ctx, "client disconnected", "clients", len(h.clients))
			}
			h.clientsMutex.Unlock()

		case message := <-h.broadcast:
			h.clientsMutex.RLock()
			var slow []*websocket.Conn
			for conn, client := range h.clients {
				select {
				case client.send <- message:
				default:
					slow = append(slow, conn)
				}
			}
			h.clientsMutex.RUnlock()

			if len(slow) > 0 {
				h.clientsMutex.Lock()
				for _, conn := range slow {
					if client, ok := h.clients[conn]; ok {
						delete(h.clients, conn)
						close(client.send)
						h.logger.Warn(ctx, nil, "slow client dropped")
					}
				}
				h.clientsMutex.Unlock()
			}
		}
	}
}

func (h *Hub) stop() {
	h.doneOnce.Do(func() {
		close(h.done)

		h.clientsMutex.Lock()
		defer h.clientsMutex.Unlock()
		for conn, client := range h.clients {
			delete(h.clients, conn)
			close(client.send)
		}
	})
}

// serve registers a client for conn and pumps it until either side closes.
func (h *Hub) serve(conn *websocket.Conn) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, clientBuffer),
		hub:  h,
	}

	go client.writePump()

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	client.readPump()
}

// readPump drains the connection; clients only listen, so anything read is
// discarded. It returns when the connection fails or closes.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c.conn:
		case <-c.hub.done:
		}
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		readCtx, cancel := context.WithTimeout(context.Background(), pongWait)
		_, _, err := c.conn.Read(readCtx)
		cancel()

		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				c.hub.logger.Debug(context.Background(), "websocket read ended", "error", err.Error())
			}
			return
		}
	}
}

// writePump sends queued messages and periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.hub.logger.Debug(context.Background(), "websocket write failed", "error", err.Error())
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *InspectorServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.allowedHosts(),
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}

	s.hub.serve(conn)
}

// allowedHosts lists the host[:port] values accepted as origins: the
// server's own address, its loopback aliases and every configured origin.
func (s *InspectorServer) allowedHosts() []string {
	port := strconv.Itoa(s.config.Server.Port)
	hosts := []string{
		s.config.Server.Host + ":" + port,
		"localhost:" + port,
		"127.0.0.1:" + port,
	}
	for _, origin := range s.config.Server.AllowedOrigins {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
		}
	}

	return hosts
}

// checkOrigin requires an http(s) Origin header naming an allowed host.
func (s *InspectorServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	for _, allowed := range s.allowedHosts() {
		if originURL.Host == allowed {
			return true
		}
	}

	return false
}
