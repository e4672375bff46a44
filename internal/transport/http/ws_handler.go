package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"quizroom-service/internal/app"
	"quizroom-service/internal/config"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/realtime"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Inbound message types. Every other mutation goes through the REST API.
const (
	msgJoinRoom  = "JoinRoom"
	msgLeaveRoom = "LeaveRoom"
	msgError     = "Error"
)

// WSHandler upgrades authenticated requests and binds each socket to a hub connection.
type WSHandler struct {
	rooms    *app.RoomService
	hub      *realtime.Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(rooms *app.RoomService, hub *realtime.Hub) *WSHandler {
	return &WSHandler{
		rooms: rooms,
		hub:   hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type roomPayload struct {
	RoomCode string `json:"roomCode"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS runs one socket: a writer goroutine owns every write, the calling
// goroutine reads JoinRoom/LeaveRoom requests until the peer goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	caller, ok := IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		config.WithContext(r.Context()).WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	client := h.hub.Connect(caller.UserID)
	defer h.hub.Disconnect(client.ID())

	ctx := config.ContextWithFields(r.Context(), logrus.Fields{"conn_id": client.ID()})
	log := config.WithContext(ctx)
	log.Debug("ws connected")

	replies := make(chan domain.Event, 8)
	done := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			var event domain.Event
			select {
			case ev, ok := <-client.Events():
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
					return
				}
				event = ev
			case event = <-replies:
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
				continue
			case <-done:
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				log.WithError(err).Debug("ws write failed")
				return
			}
		}
	}()

	reply := func(event domain.Event) {
		select {
		case replies <- event:
		case <-writerDone:
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in inboundMessage
		if err := conn.ReadJSON(&in); err != nil {
			break
		}
		var payload roomPayload
		if len(in.Payload) > 0 {
			if err := json.Unmarshal(in.Payload, &payload); err != nil {
				reply(errorEvent("invalid payload"))
				continue
			}
		}
		switch in.Type {
		case msgJoinRoom:
			if err := h.joinGroup(ctx, client, caller, payload.RoomCode); err != nil {
				reply(errorEvent(userMessage(err)))
				continue
			}
			reply(domain.Event{Group: payload.RoomCode, Name: domain.EventJoinedRoom, Payload: payload})
		case msgLeaveRoom:
			h.hub.Unsubscribe(client.ID(), payload.RoomCode)
			reply(domain.Event{Group: payload.RoomCode, Name: domain.EventLeftRoom, Payload: payload})
		default:
			reply(errorEvent("unsupported message type"))
		}
	}

	close(done)
	<-writerDone
	log.Debug("ws disconnected")
}

// joinGroup subscribes the connection to a room's broadcasts. Only the
// room's creator and its participants may listen.
func (h *WSHandler) joinGroup(ctx context.Context, client *realtime.Client, caller domain.Identity, code string) error {
	room, err := h.rooms.RoomByCode(ctx, code)
	if err != nil {
		return err
	}
	if room.CreatedBy != caller.UserID {
		if _, err := h.rooms.Participant(ctx, room.ID, caller.UserID); err != nil {
			return err
		}
	}
	return h.hub.Subscribe(client.ID(), room.Code)
}

func errorEvent(message string) domain.Event {
	return domain.Event{Name: msgError, Payload: errorPayload{Message: message}}
}

func userMessage(err error) string {
	if domain.KindOf(err) == domain.KindInternal {
		return "An internal error occurred."
	}
	return err.Error()
}
