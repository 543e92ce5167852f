package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agent-arena/internal/bridge"
	"agent-arena/internal/game"
	"agent-arena/internal/game/geom"
	"agent-arena/internal/protocol"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type wsFixture struct {
	engine *game.Engine
	server *Server
	ts     *httptest.Server
}

func newWSFixture(t *testing.T, hub HubConfig) *wsFixture {
	t.Helper()
	cfg := game.DefaultWorldConfig()
	cfg.Seed = 5
	e := game.NewEngine(game.EngineConfig{World: cfg})
	b := bridge.New(e, bridge.DefaultConfig())
	hub.DisableLifecycle = true
	s := NewServer(e, b, ServerConfig{
		RateLimit: RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000, CleanupInterval: time.Minute},
		Hub:       hub,
	})
	ts := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		s.Hub().Close("test over")
		ts.Close()
		s.rateLimiter.Stop()
		b.Close()
		e.Stop()
	})
	return &wsFixture{engine: e, server: s, ts: ts}
}

func (f *wsFixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type envelope struct {
	Type protocol.PacketType `json:"type"`
	Data json.RawMessage     `json:"data"`
}

func sendJSON(t *testing.T, conn *websocket.Conn, typ protocol.PacketType, data any) {
	t.Helper()
	frame, err := protocol.JSONCodec{}.Encode(typ, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func readJSON(t *testing.T, conn *websocket.Conn, want protocol.PacketType, out any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var env envelope
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Type != want {
			continue
		}
		if out != nil {
			require.NoError(t, json.Unmarshal(env.Data, out))
		}
		return
	}
}

// waitClients waits until the hub has registered n connections.
func (f *wsFixture) waitClients(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return f.server.Hub().ClientCount() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestJoinReceivesWelcomeAndPrivateUpdate(t *testing.T) {
	f := newWSFixture(t, HubConfig{})
	conn := f.dial(t, "")

	sendJSON(t, conn, protocol.TypeJoin, protocol.JoinPacket{Name: "Alice"})
	var welcome protocol.WelcomePacket
	readJSON(t, conn, protocol.TypeWelcome, &welcome)
	assert.NotZero(t, welcome.ID)
	assert.False(t, welcome.Spectator)
	assert.Equal(t, 2000.0, welcome.WorldWidth)
	assert.Equal(t, 40, welcome.TickRate)

	f.server.Hub().Broadcast(f.engine.Step(t0))

	var update protocol.UpdatePacket
	readJSON(t, conn, protocol.TypeUpdate, &update)
	assert.Equal(t, uint64(1), update.Tick)
	require.Len(t, update.Players, 1)
	assert.Equal(t, "Alice", update.Players[0].Name)
	require.NotNil(t, update.Self)
	assert.Equal(t, welcome.ID, update.Self.ID)
	assert.False(t, update.Spectator)
}

func TestInputReachesEngine(t *testing.T) {
	f := newWSFixture(t, HubConfig{})
	conn := f.dial(t, "")

	sendJSON(t, conn, protocol.TypeJoin, protocol.JoinPacket{Name: "Runner"})
	var welcome protocol.WelcomePacket
	readJSON(t, conn, protocol.TypeWelcome, &welcome)
	id := game.EntityID(welcome.ID)

	before := 1000.0
	f.engine.WithWorld(func(w *game.World) { require.True(t, w.Teleport(id, geom.V(before, 800))) })

	sendJSON(t, conn, protocol.TypeInput, protocol.InputPacket{Seq: 1, Right: true, AimX: 0, AimY: 0})
	require.Eventually(t, func() bool {
		f.engine.Step(time.Now())
		var x float64
		f.engine.WithWorld(func(w *game.World) { x = w.Character(id).Pos.X })
		return x > before
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSpectatorGetsSharedFrame(t *testing.T) {
	f := newWSFixture(t, HubConfig{})
	conn := f.dial(t, "")

	sendJSON(t, conn, protocol.TypeSpectate, protocol.SpectatePacket{})
	var welcome protocol.WelcomePacket
	readJSON(t, conn, protocol.TypeWelcome, &welcome)
	assert.True(t, welcome.Spectator)
	assert.Zero(t, welcome.ID)

	f.server.Hub().Broadcast(f.engine.Step(t0))
	var update protocol.UpdatePacket
	readJSON(t, conn, protocol.TypeUpdate, &update)
	assert.True(t, update.Spectator)
	assert.Nil(t, update.Self)
}

func TestMsgpackEncoding(t *testing.T) {
	f := newWSFixture(t, HubConfig{})
	conn := f.dial(t, "?encoding=msgpack")

	frame, err := protocol.MsgpackCodec{}.Encode(protocol.TypeJoin, protocol.JoinPacket{Name: "Bin"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)

	var env struct {
		Type protocol.PacketType    `msgpack:"type"`
		Data protocol.WelcomePacket `msgpack:"data"`
	}
	require.NoError(t, msgpack.Unmarshal(data, &env))
	assert.Equal(t, protocol.TypeWelcome, env.Type)
	assert.NotZero(t, env.Data.ID)
}

func TestMalformedPacketKeepsConnection(t *testing.T) {
	f := newWSFixture(t, HubConfig{})
	conn := f.dial(t, "")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"teleport","data":{}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))

	sendJSON(t, conn, protocol.TypeJoin, protocol.JoinPacket{Name: "Still here"})
	var welcome protocol.WelcomePacket
	readJSON(t, conn, protocol.TypeWelcome, &welcome)
	assert.NotZero(t, welcome.ID)
}

func TestClientDisconnectRemovesCharacter(t *testing.T) {
	f := newWSFixture(t, HubConfig{})
	conn := f.dial(t, "")

	sendJSON(t, conn, protocol.TypeJoin, protocol.JoinPacket{Name: "Leaver"})
	var welcome protocol.WelcomePacket
	readJSON(t, conn, protocol.TypeWelcome, &welcome)
	f.waitClients(t, 1)

	sendJSON(t, conn, protocol.TypeDisconnect, protocol.DisconnectPacket{Reason: "bye"})
	f.waitClients(t, 0)

	f.engine.Step(t0)
	f.engine.WithWorld(func(w *game.World) {
		assert.Nil(t, w.Character(game.EntityID(welcome.ID)))
	})
}

func TestPerIPConnectionLimit(t *testing.T) {
	f := newWSFixture(t, HubConfig{MaxPerIP: 1})
	f.dial(t, "")
	f.waitClients(t, 1)

	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestRejectsForeignOrigin(t *testing.T) {
	f := newWSFixture(t, HubConfig{})
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestEnqueueDropsOldest(t *testing.T) {
	c := &wsClient{send: make(chan []byte, 2)}
	c.enqueue([]byte("1"))
	c.enqueue([]byte("2"))
	c.enqueue([]byte("3"))

	assert.Equal(t, uint64(1), c.dropped.Load())
	assert.Equal(t, "2", string(<-c.send))
	assert.Equal(t, "3", string(<-c.send))
}
