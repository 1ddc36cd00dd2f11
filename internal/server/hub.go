package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/liuscraft/orion-mixer/internal/mixer"
)

const writeWait = 5 * time.Second

// hub 将混音器快照推送给所有 WebSocket 客户端
//
// Each client holds at most one pending snapshot; a newer one replaces it, so the notifier
// never blocks on a slow connection.
type hub struct {
	mixer    mixer.Mixer
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	unsub   func()
	wg      sync.WaitGroup
}

type client struct {
	conn *websocket.Conn
	send chan mixer.State
	done chan struct{}
	once sync.Once
}

func newHub(m mixer.Mixer, checkOrigin func(*http.Request) bool, logger *zap.SugaredLogger) *hub {
	h := &hub{
		mixer:    m,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		logger:   logger,
		clients:  make(map[*client]struct{}),
	}
	h.unsub = m.Subscribe(h.broadcast)
	return h
}

func (h *hub) serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	cl := &client{
		conn: conn,
		send: make(chan mixer.State, 1),
		done: make(chan struct{}),
	}
	if !h.register(cl) {
		_ = conn.Close()
		return
	}
	go h.writeLoop(cl)
	go h.readLoop(cl)
	h.logger.Debugw("websocket client connected", "remote", conn.RemoteAddr().String())
}

// register adds the client with the current snapshot pending. Both happen under h.mu, so any
// broadcast the client sees afterwards is at least as new as that snapshot.
func (h *hub) register(cl *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[cl] = struct{}{}
	cl.offer(h.mixer.Snapshot())
	h.wg.Add(2)
	return true
}

func (h *hub) broadcast(s mixer.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		cl.offer(s)
	}
}

// offer replaces any pending snapshot with s.
func (cl *client) offer(s mixer.State) {
	for {
		select {
		case cl.send <- s:
			return
		default:
		}
		select {
		case <-cl.send:
		default:
		}
	}
}

func (h *hub) writeLoop(cl *client) {
	defer h.wg.Done()
	defer h.drop(cl)
	for {
		select {
		case <-cl.done:
			return
		case s := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteJSON(s.View()); err != nil {
				h.logger.Debugw("websocket write failed", "error", err)
				return
			}
		}
	}
}

// readLoop discards client messages and notices disconnects.
func (h *hub) readLoop(cl *client) {
	defer h.wg.Done()
	defer h.drop(cl)
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *hub) drop(cl *client) {
	cl.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, cl)
		h.mu.Unlock()
		close(cl.done)
		_ = cl.conn.Close()
	})
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mu.Unlock()

	h.unsub()
	for _, cl := range clients {
		_ = cl.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(writeWait))
		h.drop(cl)
	}
	h.wg.Wait()
}
