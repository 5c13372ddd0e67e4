package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/linesmerrill/adr-report-api/api"
	"github.com/linesmerrill/adr-report-api/chat"
	"github.com/linesmerrill/adr-report-api/config"
	"github.com/linesmerrill/adr-report-api/models"
)

const (
	eventMessage = "message"
	eventError   = "error"

	wsWriteWait = 10 * time.Second
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Chat serves the chat view of the caller's workspace
type Chat struct {
	WS *Workspace
}

type sendBody struct {
	Text string `json:"text"`
}

// chatEvent is pushed to websocket clients
type chatEvent struct {
	Type    string              `json:"type"`
	Message *models.ChatMessage `json:"message,omitempty"`
	Error   string              `json:"error,omitempty"`
}

func (ch Chat) session(w http.ResponseWriter, r *http.Request) (*chat.Session, bool) {
	c, ok := ch.WS.coordinator(w, r)
	if !ok {
		return nil, false
	}
	s, err := c.Chat()
	if err != nil {
		workspaceError(w, err)
		return nil, false
	}
	return s, true
}

// TranscriptHandler returns the conversation so far
func (ch Chat) TranscriptHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := ch.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.State())
}

// SendMessageHandler sends one user turn and waits for the bot's reply
func (ch Chat) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := ch.session(w, r)
	if !ok {
		return
	}
	var body sendBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	// the request outlives the client; only leaving the view discards it
	reply, err := s.Send(context.WithoutCancel(r.Context()), body.Text)
	if err != nil {
		sendError(w, err)
		return
	}
	res, err := reply.Wait(r.Context())
	if err != nil {
		// the client went away, the reply still lands in the transcript
		zap.S().Infow("stopped waiting for chat reply", "error", err)
		return
	}
	if errors.Is(res.Err, chat.ErrSessionClosed) {
		sendError(w, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, s.State())
}

func sendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyTurn):
		config.ErrorStatus("message text is required", http.StatusBadRequest, w, err)
	case errors.Is(err, chat.ErrTurnInFlight):
		config.ErrorStatus("a reply is still pending", http.StatusConflict, w, err)
	case errors.Is(err, chat.ErrSessionClosed):
		config.ErrorStatus("view not active", http.StatusConflict, w, err)
	default:
		config.ErrorStatus("failed to send message", http.StatusInternalServerError, w, err)
	}
}

// wsConn serialises writes, gorilla connections allow one concurrent writer
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) push(ev chatEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(ev)
}

func messageEvent(m models.ChatMessage) chatEvent {
	return chatEvent{Type: eventMessage, Message: &m}
}

// WebSocketHandler streams the chat. The transcript is replayed on connect,
// then every user and bot message is pushed as it is appended.
func (ch Chat) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := ch.session(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Errorw("websocket upgrade error", "error", err)
		return
	}
	c := &wsConn{conn: conn}
	defer conn.Close()

	caller, _ := api.SessionFromContext(r.Context())
	sendCtx := context.WithoutCancel(r.Context())
	// ctx only bounds the waiters pushing replies to this socket
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, m := range s.Transcript() {
		if err := c.push(messageEvent(m)); err != nil {
			return
		}
	}

	for {
		var body sendBody
		if err := conn.ReadJSON(&body); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.S().Warnw("websocket read error", "error", err)
			}
			return
		}

		ch.WS.Registry.Touch(caller.SessionID)

		reply, err := s.Send(sendCtx, body.Text)
		if err != nil {
			if pushErr := c.push(chatEvent{Type: eventError, Error: err.Error()}); pushErr != nil {
				return
			}
			if errors.Is(err, chat.ErrSessionClosed) {
				return
			}
			continue
		}
		if err := c.push(messageEvent(reply.User)); err != nil {
			return
		}

		go func(reply *chat.Reply) {
			res, err := reply.Wait(ctx)
			if err != nil {
				return
			}
			if errors.Is(res.Err, chat.ErrSessionClosed) {
				_ = c.push(chatEvent{Type: eventError, Error: res.Err.Error()})
				return
			}
			_ = c.push(messageEvent(res.Message))
		}(reply)
	}
}
