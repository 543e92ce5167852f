package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"agent-arena/internal/game"
	"agent-arena/internal/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10

	// DefaultSendQueueSize is how many frames a slow connection may lag
	// behind before the oldest are dropped.
	DefaultSendQueueSize = 16

	maxClientFrame = 4096
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
)

// GameEngine is the engine surface live clients drive.
type GameEngine interface {
	JoinPlayer(existing game.EntityID, name string) (game.EntityID, error)
	SubmitInput(id game.EntityID, in game.Input)
	Disconnect(id game.EntityID)
	WorldSize() (width, height float64)
	TickRate() int
	OnTick(fn game.TickListener)
}

// HubConfig tunes connection limits.
type HubConfig struct {
	MaxConnections   int
	MaxPerIP         int
	SendQueueSize    int
	AllowedOrigins   []string
	DisableLifecycle bool // suppress connect/disconnect logs
}

// DefaultHubConfig returns production limits.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		MaxConnections: MaxWSConnectionsTotal,
		MaxPerIP:       MaxWSConnectionsPerIP,
		SendQueueSize:  DefaultSendQueueSize,
	}
}

// wsClient is one live connection. entity is 0 until the client joins.
type wsClient struct {
	id         string
	conn       *websocket.Conn
	ip         string
	codec      protocol.Codec
	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	entity     atomic.Uint32
	spectating atomic.Bool
	dropped    atomic.Uint64
}

// enqueue queues a frame, evicting the oldest queued frame when full.
func (c *wsClient) enqueue(frame []byte) {
	for {
		select {
		case c.send <- frame:
			IncrementWSFrames()
			return
		default:
		}
		select {
		case <-c.send:
			c.dropped.Add(1)
			RecordFrameDropped()
		default:
		}
	}
}

func (c *wsClient) sendPacket(t protocol.PacketType, payload any) {
	frame, err := c.codec.Encode(t, payload)
	if err != nil {
		log.Printf("❌ Encode %s for %s: %v", t, c.id, err)
		return
	}
	c.enqueue(frame)
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *wsClient) messageType() int {
	if c.codec.Binary() {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

// WebSocketHub manages live client connections: it turns their packets
// into engine calls and fans each tick's snapshot out to them.
type WebSocketHub struct {
	engine   GameEngine
	cfg      HubConfig
	origins  *OriginPolicy
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*wsClient

	// Connection limiting per IP
	wsLimiter *WebSocketRateLimiter

	snapshots chan *game.Snapshot
}

// NewWebSocketHub creates a hub. Call Run to start broadcasting.
func NewWebSocketHub(engine GameEngine, cfg HubConfig) *WebSocketHub {
	def := DefaultHubConfig()
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.MaxPerIP <= 0 {
		cfg.MaxPerIP = def.MaxPerIP
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	h := &WebSocketHub{
		engine:    engine,
		cfg:       cfg,
		origins:   NewOriginPolicy(cfg.AllowedOrigins),
		clients:   make(map[string]*wsClient),
		wsLimiter: NewWebSocketRateLimiter(cfg.MaxPerIP),
		snapshots: make(chan *game.Snapshot, 1),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if h.origins.Allowed(origin) {
				return true
			}
			log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
			RecordConnectionRejected("origin")
			return false
		},
	}
	engine.OnTick(h.offer)
	return h
}

// offer hands the newest snapshot to Run, replacing one not yet sent.
// It never blocks the tick loop.
func (h *WebSocketHub) offer(s *game.Snapshot, _ time.Duration) {
	for {
		select {
		case h.snapshots <- s:
			return
		default:
		}
		select {
		case <-h.snapshots:
		default:
		}
	}
}

// Run broadcasts snapshots until ctx is cancelled.
func (h *WebSocketHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-h.snapshots:
			h.Broadcast(s)
		}
	}
}

// Broadcast sends each connected client its view of s. Spectator frames
// are encoded once per codec.
func (h *WebSocketHub) Broadcast(s *game.Snapshot) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	spectatorFrames := make(map[string][]byte, 2)
	for _, c := range clients {
		id := game.EntityID(c.entity.Load())
		if id == 0 {
			if !c.spectating.Load() {
				continue
			}
			frame, ok := spectatorFrames[c.codec.Name()]
			if !ok {
				var err error
				frame, err = c.codec.Encode(protocol.TypeUpdate, s.UpdateFor(0))
				if err != nil {
					log.Printf("❌ Encode spectator update: %v", err)
					continue
				}
				spectatorFrames[c.codec.Name()] = frame
			}
			c.enqueue(frame)
			continue
		}
		c.sendPacket(protocol.TypeUpdate, s.UpdateFor(id))
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades a connection with DoS protection. The wire
// encoding is JSON unless the client asks for ?encoding=msgpack.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if total := h.ClientCount(); total >= h.cfg.MaxConnections {
		log.Printf("⚠️ WebSocket connection rejected: total limit reached (%d)", total)
		RecordConnectionRejected("ws_total_limit")
		writeError(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	if !h.wsLimiter.Allow(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		writeError(w, "too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		h.wsLimiter.Release(ip)
		return
	}

	c := &wsClient{
		id:    uuid.NewString(),
		conn:  conn,
		ip:    ip,
		codec: protocol.CodecFor(r.URL.Query().Get("encoding")),
		send:  make(chan []byte, h.cfg.SendQueueSize),
		done:  make(chan struct{}),
	}
	h.register(c)

	go h.writePump(c)
	go h.readPump(c)
}

func (h *WebSocketHub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()

	if !h.cfg.DisableLifecycle {
		log.Printf("📱 Client %s connected from %s (%s, %d total)", c.id, c.ip, c.codec.Name(), count)
	}
	UpdateWSConnections(count)
}

func (h *WebSocketHub) unregister(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	count := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}

	h.wsLimiter.Release(c.ip)
	if id := game.EntityID(c.entity.Swap(0)); id != 0 {
		h.engine.Disconnect(id)
	}
	c.close()
	c.conn.Close()

	if !h.cfg.DisableLifecycle {
		log.Printf("📱 Client %s disconnected (%d remaining, %d frames dropped)", c.id, count, c.dropped.Load())
	}
	UpdateWSConnections(count)
}

func (h *WebSocketHub) readPump(c *wsClient) {
	defer h.unregister(c)

	c.conn.SetReadLimit(maxClientFrame)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("⚠️ WebSocket %s read error: %v", c.id, err)
			}
			return
		}
		pkt, err := c.codec.DecodeClient(data)
		if err != nil {
			log.Printf("⚠️ Dropped packet from %s: %v", c.id, err)
			continue
		}
		if !h.handlePacket(c, pkt) {
			return
		}
	}
}

// handlePacket applies one client packet. It returns false when the
// connection should close.
func (h *WebSocketHub) handlePacket(c *wsClient, pkt protocol.ClientPacket) bool {
	switch pkt.Type {
	case protocol.TypeJoin:
		id, err := h.engine.JoinPlayer(game.EntityID(c.entity.Load()), pkt.Join.Name)
		if err != nil {
			reason := "join failed"
			if errors.Is(err, game.ErrWorldFull) {
				reason = "arena full"
			}
			c.sendPacket(protocol.TypeDisconnect, protocol.DisconnectPacket{Reason: reason})
			return true
		}
		c.entity.Store(uint32(id))
		c.spectating.Store(false)
		c.sendPacket(protocol.TypeWelcome, h.welcome(uint32(id), false))

	case protocol.TypeSpectate:
		if id := game.EntityID(c.entity.Swap(0)); id != 0 {
			h.engine.Disconnect(id)
		}
		c.spectating.Store(true)
		c.sendPacket(protocol.TypeWelcome, h.welcome(0, true))

	case protocol.TypeInput:
		if id := game.EntityID(c.entity.Load()); id != 0 {
			h.engine.SubmitInput(id, game.InputFromPacket(*pkt.Input))
		}

	case protocol.TypeDisconnect:
		return false
	}
	return true
}

func (h *WebSocketHub) welcome(id uint32, spectator bool) protocol.WelcomePacket {
	width, height := h.engine.WorldSize()
	return protocol.WelcomePacket{
		ID:          id,
		Spectator:   spectator,
		WorldWidth:  width,
		WorldHeight: height,
		TickRate:    h.engine.TickRate(),
	}
}

func (h *WebSocketHub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(c.messageType(), frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			// Flush what is queued (a final disconnect packet, usually).
			for {
				select {
				case frame := <-c.send:
					c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if c.conn.WriteMessage(c.messageType(), frame) != nil {
						return
					}
				default:
					c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

// Close tells every client the server is going away and ends its write
// loop. Read loops then exit and release their characters.
func (h *WebSocketHub) Close(reason string) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.sendPacket(protocol.TypeDisconnect, protocol.DisconnectPacket{Reason: reason})
		c.close()
	}
}
