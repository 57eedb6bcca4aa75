package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/avvvet/gym-services/internal/comm"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const writeWait = 10 * time.Second

type client struct {
	code string
	conn *websocket.Conn
	mu   sync.Mutex // gorilla connections allow one concurrent writer
}

func (c *client) write(msg *comm.WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// Hub tracks member displays watching a ticket code and pushes status
// changes to them.
type Hub struct {
	connMap sync.Map // socketId -> *client
}

func NewHub() *Hub {
	return &Hub{}
}

func (h *Hub) Register(socketId, code string, conn *websocket.Conn) {
	h.connMap.Store(socketId, &client{code: code, conn: conn})
	log.Debugf("socket %s watching ticket", socketId)
}

func (h *Hub) Unregister(socketId string) {
	h.connMap.Delete(socketId)
}

// Watchers lists the sockets watching code.
func (h *Hub) Watchers(code string) []string {
	var sockets []string
	h.connMap.Range(func(key, value any) bool {
		if value.(*client).code == code {
			sockets = append(sockets, key.(string))
		}
		return true
	})
	return sockets
}

// Send writes status to a single socket.
func (h *Hub) Send(socketId string, status comm.TicketStatus) error {
	v, ok := h.connMap.Load(socketId)
	if !ok {
		return nil
	}
	msg, err := message(status)
	if err != nil {
		return err
	}
	return v.(*client).write(msg)
}

// Push delivers status to every watcher of its code and returns how many
// sockets received it. Sockets that fail a write are dropped.
func (h *Hub) Push(status comm.TicketStatus) int {
	msg, err := message(status)
	if err != nil {
		log.Errorf("encode ticket status: %v", err)
		return 0
	}

	delivered := 0
	h.connMap.Range(func(key, value any) bool {
		c := value.(*client)
		if c.code != status.Code {
			return true
		}
		if err := c.write(msg); err != nil {
			log.Warnf("dropping socket %s: %v", key, err)
			h.connMap.Delete(key)
			c.conn.Close()
			return true
		}
		delivered++
		return true
	})
	return delivered
}

func message(status comm.TicketStatus) (*comm.WSMessage, error) {
	data, err := json.Marshal(status)
	if err != nil {
		return nil, err
	}
	return &comm.WSMessage{Type: comm.TicketStatusType, Data: data}, nil
}
