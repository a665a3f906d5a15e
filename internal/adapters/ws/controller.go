package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/parlorchat/parlor/internal/app"
	"github.com/parlorchat/parlor/internal/config"
	"github.com/parlorchat/parlor/internal/core"
	"github.com/parlorchat/parlor/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller owns the websocket endpoint: it upgrades authenticated
// requests, runs the read/write pumps and translates wire envelopes
// into session lifecycle calls.
type Controller struct {
	session  *app.Session
	cfg      *config.Config
	typing   *TypingRateLimiter
	validate *validator.Validate
}

func NewController(session *app.Session, cfg *config.Config) *Controller {
	return &Controller{
		session:  session,
		cfg:      cfg,
		typing:   NewTypingRateLimiter(cfg.TypingLimit, cfg.TypingWindow),
		validate: validator.New(),
	}
}

// Handle serves one websocket connection for the authenticated principal
// set by the auth middleware. A principal the resolver does not know is
// rejected before anything is registered.
func (ctl *Controller) Handle(ctx context.Context, c *gin.Context) {
	principalID := domain.UserID(c.GetInt64("principal_id"))
	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("upgrade failed")
		return
	}
	sock.SetReadLimit(ctl.cfg.ReadLimit)

	conn := newWSConn(sock, ctl.cfg.SendBuffer)
	hid := core.HandleID(uuid.NewString())
	log.Info().Str("module", "ws").Int64("user", int64(principalID)).Str("handle", string(hid)).Msg("new connection")

	if err := ctl.session.Connect(ctx, principalID, hid, conn); err != nil {
		log.Warn().Err(err).Str("module", "ws").Int64("user", int64(principalID)).Msg("connect refused")
		if frame, merr := json.Marshal(core.Envelope{Event: core.EvError, Data: json.RawMessage(`{"error":"identity not found"}`)}); merr == nil {
			_ = sock.SetWriteDeadline(time.Now().Add(5 * time.Second))
			_ = sock.WriteMessage(websocket.TextMessage, frame)
		}
		conn.Close()
		return
	}

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, principalID, hid, conn)
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "ws").Msg("write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, userID domain.UserID, hid core.HandleID, c *wsConn) {
	defer func() {
		// Abrupt closure and explicit logout both land here; the
		// registry sorts out which one happened first.
		ctl.session.Disconnect(hid)
		c.Close()
		log.Info().Str("module", "ws").Str("handle", string(hid)).Msg("read pump closed")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			ctl.handleEvent(ctx, userID, hid, c, data)
		}
	}
}
