package transport

import (
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// DirectionPath is the WebSocket endpoint for control clients.
const DirectionPath = "/direction"

// DirectionMessage is sent by clients to move the source.
type DirectionMessage struct {
	Elevation *float64 `json:"elevation"`
	Azimuth   *float64 `json:"azimuth"`
}

func (m DirectionMessage) validate() error {
	if m.Elevation == nil || m.Azimuth == nil {
		return errors.New("direction needs both elevation and azimuth")
	}
	for _, v := range [...]float64{*m.Elevation, *m.Azimuth} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("direction must be finite")
		}
	}
	return nil
}

// ControlServer accepts direction updates from WebSocket clients and
// broadcasts status messages to all of them.
type ControlServer struct {
	addr      string
	setter    DirectionSetter
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan any
	done      chan struct{}
	closeOnce sync.Once
	server    *http.Server
}

// NewControlServer creates a control server bound to setter. Call Start to
// listen on addr, or mount Handler on an existing server.
func NewControlServer(addr string, setter DirectionSetter) *ControlServer {
	cs := &ControlServer{
		addr:   addr,
		setter: setter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Local control surface, any origin
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan any, 256),
		done:      make(chan struct{}),
	}
	go cs.handleBroadcasts()
	return cs
}

// Handler returns the HTTP handler serving DirectionPath.
func (cs *ControlServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(DirectionPath, cs.handleWebSocket)
	return mux
}

// Start listens on the configured address and serves in the background.
func (cs *ControlServer) Start() error {
	ln, err := net.Listen("tcp", cs.addr)
	if err != nil {
		return err
	}
	cs.server = &http.Server{Handler: cs.Handler()}

	go func() {
		logger.Infof("control server listening on ws://%s%s", ln.Addr(), DirectionPath)
		if err := cs.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("control server: %v", err)
		}
	}()
	return nil
}

// ClientCount returns the number of connected clients.
func (cs *ControlServer) ClientCount() int {
	cs.clientsMu.Lock()
	defer cs.clientsMu.Unlock()
	return len(cs.clients)
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (cs *ControlServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := cs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("upgrade error: %v", err)
		return
	}

	cs.clientsMu.Lock()
	cs.clients[conn] = true
	total := len(cs.clients)
	cs.clientsMu.Unlock()
	logger.Infof("client %s connected, total: %d", conn.RemoteAddr(), total)

	go cs.readDirections(conn)
}

// readDirections applies every valid direction message until the client leaves.
func (cs *ControlServer) readDirections(conn *websocket.Conn) {
	defer cs.drop(conn)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg DirectionMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("ignoring malformed message from %s: %v", conn.RemoteAddr(), err)
			continue
		}
		if err := msg.validate(); err != nil {
			logger.Warnf("ignoring message from %s: %v", conn.RemoteAddr(), err)
			continue
		}
		logger.Debugf("direction (%.1f, %.1f) from %s", *msg.Elevation, *msg.Azimuth, conn.RemoteAddr())
		cs.setter.SetDirection(*msg.Elevation, *msg.Azimuth)
	}
}

func (cs *ControlServer) drop(conn *websocket.Conn) {
	cs.clientsMu.Lock()
	_, ok := cs.clients[conn]
	delete(cs.clients, conn)
	total := len(cs.clients)
	cs.clientsMu.Unlock()
	conn.Close()
	if ok {
		logger.Infof("client disconnected, total: %d", total)
	}
}

// handleBroadcasts sends messages to all connected clients
func (cs *ControlServer) handleBroadcasts() {
	for {
		select {
		case <-cs.done:
			return
		case data := <-cs.broadcast:
			cs.clientsMu.Lock()
			for client := range cs.clients {
				if err := client.WriteJSON(data); err != nil {
					logger.Warnf("error sending to client: %v", err)
					client.Close()
					delete(cs.clients, client)
				}
			}
			cs.clientsMu.Unlock()
		}
	}
}

// Send queues data for broadcast. It drops the message when the queue is full.
func (cs *ControlServer) Send(data any) error {
	select {
	case cs.broadcast <- data:
	default:
	}
	return nil
}

// Close disconnects every client and shuts the server down.
func (cs *ControlServer) Close() error {
	var err error
	cs.closeOnce.Do(func() {
		close(cs.done)

		cs.clientsMu.Lock()
		for client := range cs.clients {
			client.Close()
		}
		cs.clients = make(map[*websocket.Conn]bool)
		cs.clientsMu.Unlock()

		if cs.server != nil {
			err = cs.server.Close()
		}
	})
	return err
}

// Ensure ControlServer satisfies the interface
var _ Transport = (*ControlServer)(nil)
