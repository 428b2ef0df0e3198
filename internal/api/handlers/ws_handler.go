package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/wearlink/coordinator/internal/auth"
	"github.com/wearlink/coordinator/internal/metrics"
	"github.com/wearlink/coordinator/internal/models"
	"github.com/wearlink/coordinator/internal/registry"
	"github.com/wearlink/coordinator/internal/session"
	"github.com/wearlink/coordinator/internal/utils"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
)

type WSHandler struct {
	machine  *session.Machine
	reg      *registry.Registry
	authn    *auth.Authenticator
	log      *logrus.Entry
	met      *metrics.Metrics
	upgrader websocket.Upgrader

	authDeadline time.Duration
}

func NewWSHandler(m *session.Machine, reg *registry.Registry, authn *auth.Authenticator, log *logrus.Entry, met *metrics.Metrics, authDeadline time.Duration) *WSHandler {
	return &WSHandler{
		machine: m,
		reg:     reg,
		authn:   authn,
		log:     log,
		met:     met,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origin in prod
		},
		authDeadline: authDeadline,
	}
}

// wsConn serializes writes; gorilla connections allow one writer.
type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (w *wsConn) SendMessage(msg models.ServerMessage) error { return w.writeJSON(msg) }
func (w *wsConn) SendEvent(ev models.Event) error            { return w.writeJSON(ev) }

// DeviceWS is the device transport: the first frame must be a connect
// message presented within the auth deadline; everything after
// admission is tagged-JSON dispatch. A failure on one connection never
// reaches another: each runs in its own handler with its own recover.
func (h *WSHandler) DeviceWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	defer func() {
		if r := recover(); r != nil {
			h.log.WithField("panic", r).Error("connection handler panicked")
		}
	}()

	ident, ok := h.admit(conn, wc)
	if !ok {
		return
	}

	log := h.log.WithFields(logrus.Fields{
		"user_id":   ident.UserID,
		"device_id": ident.DeviceID,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.machine.Connect(ctx, ident)
	h.reg.Register(wc, ident)
	h.met.ConnectionsTotal.Inc()
	h.met.ConnectionsActive.Inc()
	defer func() {
		// Unregister fires the machine's disconnect hook: store
		// removal, session failure, device_disconnected fan-out.
		h.reg.Unregister(wc)
		h.met.ConnectionsActive.Dec()
	}()

	_ = wc.SendMessage(models.ServerMessage{
		Type:      models.MsgConnectionConfirmed,
		DeviceID:  ident.DeviceID,
		Timestamp: time.Now().UTC().UnixMilli(),
	})
	log.Info("device connected")

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, data, rerr := conn.ReadMessage()
		if rerr != nil {
			log.WithError(rerr).Debug("read loop closed")
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		var msg models.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(wc, utils.E(utils.CodeInvalidArgument, "", "invalid json", nil))
			continue
		}

		if done := h.dispatch(ctx, wc, ident, msg, log); done {
			return
		}
	}
}

// admit reads and validates the connect frame. On rejection the
// connection is torn down before any session state is touched.
func (h *WSHandler) admit(conn *websocket.Conn, wc *wsConn) (auth.Identity, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(h.authDeadline))

	_, data, err := conn.ReadMessage()
	if err != nil {
		return auth.Identity{}, false
	}

	var msg models.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != models.MsgConnect {
		h.met.AuthFailures.Inc()
		h.sendError(wc, utils.E(utils.CodeUnauthorized, "", "expected connect message", nil))
		return auth.Identity{}, false
	}

	ident, err := h.authn.Authenticate(msg)
	if err != nil {
		h.met.AuthFailures.Inc()
		h.log.WithField("device_id", msg.DeviceID).Info("connection rejected")
		h.sendError(wc, err)
		return auth.Identity{}, false
	}
	return ident, true
}

// dispatch routes one inbound message. It returns true when the
// connection should close.
func (h *WSHandler) dispatch(ctx context.Context, wc *wsConn, ident auth.Identity, msg models.ClientMessage, log *logrus.Entry) bool {
	switch msg.Type {
	case models.MsgButtonPress:
		switch msg.Action {
		case models.ActionPress:
			h.handlePress(ctx, wc, ident)
		case models.ActionRelease:
			h.handleRelease(ctx, wc, ident)
		default:
			h.sendError(wc, utils.E(utils.CodeInvalidArgument, "", "button action must be press or release", nil))
		}

	case models.MsgConversationStarted:
		if msg.SessionID == "" {
			h.sendError(wc, utils.E(utils.CodeInvalidArgument, "", "session_id is required", nil))
			return false
		}
		if err := h.machine.ConversationStarted(ctx, msg.SessionID, msg.ConversationID); err != nil {
			log.WithError(err).Debug("conversation_started ignored")
		}

	case models.MsgConversationEnded:
		if msg.SessionID == "" {
			h.sendError(wc, utils.E(utils.CodeInvalidArgument, "", "session_id is required", nil))
			return false
		}
		_ = h.machine.ConversationEnded(ctx, msg.SessionID, msg.ConversationID, nil)

	case models.MsgHeartbeat:
		h.machine.Heartbeat(ctx, ident, msg.BatteryLevel, msg.FirmwareVersion)

	case models.MsgDisconnect:
		log.WithField("reason", msg.Reason).Info("device disconnecting")
		return true

	default:
		h.sendError(wc, utils.E(utils.CodeInvalidArgument, "", "unknown message type", nil))
	}
	return false
}

func (h *WSHandler) handlePress(ctx context.Context, wc *wsConn, ident auth.Identity) {
	ss, res, err := h.machine.Press(ctx, ident)
	if err != nil {
		h.sendError(wc, err)
		return
	}

	_ = wc.SendMessage(models.ServerMessage{
		Type:      models.MsgProviderConfig,
		SessionID: ss.SessionID,
		Provider: &models.ProviderConfig{
			AgentID:          res.AgentID,
			ConnectionParams: res.ConnectionParams,
			IdentityVariables: map[string]string{
				"user_id":   ident.UserID,
				"device_id": ident.DeviceID,
			},
			ConversationConfig: res.Config,
		},
	})
	_ = wc.SendMessage(models.ServerMessage{
		Type:       models.MsgStreamStarted,
		SessionID:  ss.SessionID,
		StreamType: "voice",
		Timestamp:  ss.StartTime.UnixMilli(),
	})
}

func (h *WSHandler) handleRelease(ctx context.Context, wc *wsConn, ident auth.Identity) {
	if _, err := h.machine.Release(ctx, ident); err != nil {
		h.sendError(wc, err)
		return
	}
	_ = wc.SendMessage(models.ServerMessage{
		Type:      models.MsgStreamStopped,
		Timestamp: time.Now().UTC().UnixMilli(),
	})
}

func (h *WSHandler) sendError(wc *wsConn, err error) {
	msg := "internal error"
	var ae *utils.AppError
	if errors.As(err, &ae) {
		msg = ae.Message
	}
	_ = wc.SendMessage(models.ServerMessage{
		Type:      models.MsgStreamError,
		Code:      utils.CodeOf(err),
		Error:     msg,
		Timestamp: time.Now().UTC().UnixMilli(),
	})
}
