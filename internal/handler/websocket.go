package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"metrotrack/internal/hub"
	"metrotrack/internal/tracking"
)

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type linesPayload struct {
	LineIDs []string `json:"lineIds"`
}

type snapshotMessage struct {
	Type    string          `json:"type"`
	Payload snapshotPayload `json:"payload"`
}

type snapshotPayload struct {
	Trains []tracking.State `json:"trains"`
}

type pongMessage struct {
	Type string `json:"type"`
}

// ServeWS upgrades to a websocket that streams live train deltas for the
// lines the client subscribes to. Subscribing to "*" follows every line.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	client := hub.NewClient(uuid.New().String(), 256)
	h.hub.Register(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)

	h.readLoop(ctx, conn, client)
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "client_id", client.ID, "error", err)
			continue
		}

		switch msg.Type {
		case "subscribe":
			var p linesPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil || len(p.LineIDs) == 0 {
				continue
			}
			h.hub.Subscribe(client, p.LineIDs)
			h.sendSnapshot(client, p.LineIDs)

		case "unsubscribe":
			var p linesPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil || len(p.LineIDs) == 0 {
				continue
			}
			h.hub.Unsubscribe(client, p.LineIDs)

		case "ping":
			h.send(client, pongMessage{Type: "pong"})
		}
	}
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// sendSnapshot sends the current trains of the subscribed lines so the
// client does not wait for the next delta.
func (h *Handler) sendSnapshot(client *hub.Client, lineIDs []string) {
	trains := []tracking.State{}
	for _, id := range lineIDs {
		if id == hub.AllLines {
			trains = h.tracker.Trains("", "")
			break
		}
		trains = append(trains, h.tracker.Trains(id, "")...)
	}
	h.send(client, snapshotMessage{Type: "snapshot", Payload: snapshotPayload{Trains: trains}})
}

func (h *Handler) send(client *hub.Client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if !h.hub.Deliver(client, data) {
		h.logger.Debug("message not delivered", "client_id", client.ID)
	}
}
