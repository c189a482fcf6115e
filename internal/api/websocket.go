package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harrylevesque/callform/internal/models"
)

const (
	writeWait      = 10 * time.Second
	// an ack is {"ack": "<uuid>"}
	maxMessageSize = 512
)

type feedMessage struct {
	Notifications []models.Notification `json:"notifications"`
}

type ackMessage struct {
	Ack string `json:"ack"`
}

// feedClient streams one form's pending notifications and takes acknowledgments back.
type feedClient struct {
	server *Server
	owner  string
	conn   *websocket.Conn
	acked  chan struct{}
	done   chan struct{}
}

func (s *Server) HandleNotificationsWS(w http.ResponseWriter, r *http.Request) {
	// the upgrade response cannot carry a new session cookie
	owner, ok := s.existingFormID(r)
	if !ok {
		http.Error(w, "no form session", http.StatusBadRequest)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("websocket upgrade: %v", err)
		return
	}
	c := &feedClient{
		server: s,
		owner:  owner,
		conn:   conn,
		acked:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go c.WritePump()
	c.ReadPump()
}

func (c *feedClient) ReadPump() {
	defer close(c.done)
	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.log.Warnf("websocket %s: %v", c.owner, err)
			}
			return
		}
		var msg ackMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.Ack == "" {
			c.server.log.Warnf("websocket %s: ignoring message %q", c.owner, message)
			continue
		}
		if err := c.server.queue.Ack(context.Background(), c.owner, msg.Ack); err != nil {
			c.server.log.Warnf("websocket %s: ack %s: %v", c.owner, msg.Ack, err)
		}
		select {
		case c.acked <- struct{}{}:
		default:
		}
	}
}

func (c *feedClient) WritePump() {
	ticker := time.NewTicker(c.server.pollInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	last := ""
	first := true
	for {
		pending, err := c.server.queue.Pending(context.Background(), c.owner)
		if err != nil {
			c.server.log.Errorf("websocket %s: pending: %v", c.owner, err)
		} else if sig := signature(pending); first || sig != last {
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(feedMessage{Notifications: pending}); err != nil {
				return
			}
			last, first = sig, false
		}
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-c.acked:
		case <-ticker.C:
		}
	}
}

func signature(ns []models.Notification) string {
	ids := make([]string, len(ns))
	for i, n := range ns {
		ids[i] = n.ID
	}
	return strings.Join(ids, ",")
}
