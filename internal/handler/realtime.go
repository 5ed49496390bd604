package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ewaste-marketplace/internal/middleware"
	"github.com/iliyamo/ewaste-marketplace/internal/model"
	"github.com/iliyamo/ewaste-marketplace/internal/relay"
	"github.com/iliyamo/ewaste-marketplace/internal/workflow"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames.
	maxMessageSize = 512

	sendBuffer = 16
)

// watchable tables and the columns a subscription may filter on.
var watchable = map[string]map[string]bool{
	"pickup_requests":        {"id": true, "user_id": true, "status": true},
	"request_status_history": {"request_id": true},
	"inventory":              {"id": true},
	"company_orders":         {"id": true, "company_id": true},
	"profiles":               {"id": true},
	"contact_messages":       {"id": true},
}

// ownerColumn names the column that ties a row to a profile.  Tables
// absent here and from openTables are visible to admins only.
var ownerColumn = map[string]string{
	"pickup_requests": "user_id",
	"company_orders":  "company_id",
	"profiles":        "id",
}

var openTables = map[string]bool{"inventory": true}

// RealtimeHandler pushes change notifications over a websocket.  Frames
// only say that a table changed; clients re-fetch what they show.
type RealtimeHandler struct {
	Hub      *relay.Hub
	Log      *zap.Logger
	Upgrader websocket.Upgrader
}

func NewRealtimeHandler(hub *relay.Hub, log *zap.Logger) *RealtimeHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RealtimeHandler{
		Hub: hub,
		Log: log,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API is called from a separately hosted frontend and the
			// socket is authenticated by token, not by cookie.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

type frame struct {
	Table string    `json:"table"`
	Event relay.Op  `json:"event"`
	At    time.Time `json:"at"`
}

// ParseSpec reads ?table=&event=&filter=column:value into a relay.Spec.
func ParseSpec(table, event, filter string) (relay.Spec, error) {
	table = strings.TrimSpace(table)
	cols, ok := watchable[table]
	if !ok {
		return relay.Spec{}, errBadParam("table", "unknown table")
	}
	spec := relay.Spec{Table: table, Op: relay.OpAny}
	switch op := relay.Op(strings.ToUpper(strings.TrimSpace(event))); op {
	case "", relay.OpAny:
	case relay.OpInsert, relay.OpUpdate, relay.OpDelete:
		spec.Op = op
	default:
		return relay.Spec{}, errBadParam("event", "must be INSERT, UPDATE, DELETE or *")
	}
	if filter = strings.TrimSpace(filter); filter != "" {
		col, val, found := strings.Cut(filter, ":")
		if !found || val == "" || !cols[col] {
			return relay.Spec{}, errBadParam("filter", "must be column:value on a filterable column")
		}
		spec.Filter = &relay.Filter{Column: col, Value: val}
	}
	return spec, nil
}

// ScopeSpec restricts spec to rows the session may see.  Admins keep the
// spec as given.  Everyone else is pinned to their own rows on owned
// tables, and asking for someone else's rows is forbidden.
func ScopeSpec(spec relay.Spec, s workflow.Session) (relay.Spec, error) {
	if s.ProfileID == "" {
		return relay.Spec{}, workflow.ErrForbidden
	}
	if s.Role == model.RoleAdmin || openTables[spec.Table] {
		return spec, nil
	}
	col, ok := ownerColumn[spec.Table]
	if !ok {
		return relay.Spec{}, fmt.Errorf("%w: %s is admin only", workflow.ErrForbidden, spec.Table)
	}
	if f := spec.Filter; f != nil && (f.Column != col || f.Value != s.ProfileID) {
		return relay.Spec{}, fmt.Errorf("%w: filter must be %s:%s", workflow.ErrForbidden, col, s.ProfileID)
	}
	spec.Filter = &relay.Filter{Column: col, Value: s.ProfileID}
	return spec, nil
}

// Subscribe upgrades the connection and streams matching events until the
// client goes away.
func (h *RealtimeHandler) Subscribe(c echo.Context) error {
	spec, err := ParseSpec(c.QueryParam("table"), c.QueryParam("event"), c.QueryParam("filter"))
	if err == nil {
		spec, err = ScopeSpec(spec, session(c))
	}
	if err != nil {
		return respondError(c, h.Log, err)
	}
	conn, err := h.Upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.Log.Debug("realtime: upgrade failed", zap.Error(err))
		return nil
	}

	send := make(chan []byte, sendBuffer)
	channel := "realtime:" + middleware.CurrentUserID(c) + ":" + uuid.NewString()
	sub := h.Hub.Subscribe(channel, spec, func(e relay.Event) {
		b, err := json.Marshal(frame{Table: e.Table, Event: e.Op, At: e.At})
		if err != nil {
			return
		}
		select {
		case send <- b:
		default:
			// A frame is already queued; the client re-fetches anyway.
		}
	})

	done := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writePump(conn, send, done)
	}()

	readPump(conn)

	sub.Unsubscribe()
	close(done)
	<-writerDone
	_ = conn.Close()
	h.Log.Debug("realtime: client disconnected", zap.String("channel", channel))
	return nil
}

// readPump discards client frames and keeps the read deadline alive on
// pong.  It returns when the connection fails or closes.
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump forwards queued frames and pings the peer until done closes
// or a write fails.
func writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		case <-done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
