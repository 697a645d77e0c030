package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"github.com/xpanvictor/xarvis-gateway/internal/config"
	"github.com/xpanvictor/xarvis-gateway/internal/domains/conversation"
	"github.com/xpanvictor/xarvis-gateway/internal/domains/session"
	"github.com/xpanvictor/xarvis-gateway/internal/domains/user"
	"github.com/xpanvictor/xarvis-gateway/internal/events"
	"github.com/xpanvictor/xarvis-gateway/internal/metrics"
	"github.com/xpanvictor/xarvis-gateway/internal/protocol"
	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
	gwio "github.com/xpanvictor/xarvis-gateway/pkg/io"
	wsdevice "github.com/xpanvictor/xarvis-gateway/pkg/io/device/websocket"
	"github.com/xpanvictor/xarvis-gateway/pkg/io/registry"
)

// WebSocketHandler accepts gateway sockets and runs one protocol loop per
// socket.
type WebSocketHandler struct {
	logger            *Logger.Logger
	sessions          *session.Manager
	registry          registry.Registry
	auth              user.Authenticator
	turns             conversation.TurnProcessor
	metrics           *metrics.Metrics
	config            config.GatewayConfig
	connectionManager *ConnectionManager
	upgrader          websocket.Upgrader
	events            events.Recorder

	baseCtx context.Context
	cancel  context.CancelFunc
}

// Option customizes a WebSocketHandler.
type Option func(*WebSocketHandler)

// WithEvents records session registrations and evictions on rec.
func WithEvents(rec events.Recorder) Option {
	return func(h *WebSocketHandler) { h.events = rec }
}

// NewWebSocketHandler creates the handler and subscribes it to session
// evictions.
func NewWebSocketHandler(
	logger *Logger.Logger,
	sessions *session.Manager,
	reg registry.Registry,
	auth user.Authenticator,
	turns conversation.TurnProcessor,
	m *metrics.Metrics,
	cfg config.GatewayConfig,
	opts ...Option,
) *WebSocketHandler {
	ctx, cancel := context.WithCancel(context.Background())
	h := &WebSocketHandler{
		logger:            logger,
		sessions:          sessions,
		registry:          reg,
		auth:              auth,
		turns:             turns,
		metrics:           m,
		config:            cfg,
		connectionManager: NewConnectionManager(logger, m),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		baseCtx: ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	sessions.OnEvict(h.onSessionEvicted)
	return h
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/ws", h.HandleWebSocket)
	router.GET("/stats", h.HandleStats)
}

// HandleWebSocket upgrades the request and serves the socket until it
// closes.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	if h.config.MaxFrameBytes > 0 {
		conn.SetReadLimit(h.config.MaxFrameBytes)
	}

	ep := &meteredEndpoint{
		WSEndpoint: wsdevice.New(conn, h.config.WriteTimeout),
		metrics:    h.metrics,
	}
	cc := newConnection(ep, h.logger)
	if !h.connectionManager.add(cc) {
		_ = ep.Close()
		return
	}
	defer h.cleanup(cc)

	cc.logger.Infof("WebSocket connected from %s", c.Request.RemoteAddr)
	h.serve(cc)
}

// HandleStats provides connection statistics
func (h *WebSocketHandler) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"data": gin.H{
			"connections": h.connectionManager.Count(),
			"sessions":    h.sessions.Count(),
			"bound":       h.registry.Count(),
			"details":     h.connectionManager.GetStats(),
		},
	})
}

// Connections returns the number of open sockets.
func (h *WebSocketHandler) Connections() int {
	return h.connectionManager.Count()
}

// Close stops every connection loop, closes every socket and returns once
// their cleanup has run.
func (h *WebSocketHandler) Close() error {
	h.cancel()
	return h.connectionManager.Close()
}

// onSessionEvicted drops the registry binding of an evicted session. The
// socket stays open so the client can be told SESSION_INVALID and
// register again.
func (h *WebSocketHandler) onSessionEvicted(sessionID string, reason session.Reason) {
	h.registry.Unbind(sessionID)
	h.metrics.Evicted(string(reason))
	h.record(events.Event{Type: events.TypeEvicted, SessionID: sessionID, Reason: string(reason)})
}

func (h *WebSocketHandler) record(ev events.Event) {
	if h.events != nil {
		h.events.Record(ev)
	}
}

func (h *WebSocketHandler) serve(c *connection) {
	ctx, cancel := context.WithCancel(h.baseCtx)
	defer cancel()

	frames := make(chan inbound, 16)
	go h.readLoop(ctx, cancel, c, frames)

	var beat <-chan time.Time
	if h.config.HeartbeatInterval > 0 {
		ticker := time.NewTicker(h.config.HeartbeatInterval)
		defer ticker.Stop()
		beat = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if !h.dispatch(ctx, c, f) {
				return
			}
		case <-beat:
			h.pushHeartbeat(c)
		}
	}
}

// readLoop feeds frames to the connection loop. A read failure cancels
// the connection context, which also aborts any turn in flight.
func (h *WebSocketHandler) readLoop(ctx context.Context, cancel context.CancelFunc, c *connection, out chan<- inbound) {
	defer close(out)
	defer cancel()

	for {
		mt, data, err := c.ep.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warnf("WebSocket read error: %v", err)
			} else {
				c.logger.Debugf("WebSocket read ended: %v", err)
			}
			return
		}
		select {
		case out <- inbound{messageType: mt, data: data}:
		case <-ctx.Done():
			return
		}
	}
}

// cleanup runs once the loop exits. The session is evicted unless another
// socket has taken over its registry binding.
func (h *WebSocketHandler) cleanup(c *connection) {
	advance(c.lc, eventClose)
	sid := c.session()
	if sid != "" && h.releasable(sid, c) {
		h.sessions.Unregister(sid, session.ReasonClosed)
		h.registry.DisconnectEndpoint(sid, c.ep.ID())
	}
	_ = c.ep.Close()
	h.connectionManager.remove(c.ep.ID())
	c.logger.Infof("WebSocket closed (session %q)", sid)
}

// releasable reports whether no other socket is bound to sid.
func (h *WebSocketHandler) releasable(sid string, c *connection) bool {
	ep, bound := h.registry.Lookup(sid)
	return !bound || ep.ID() == c.ep.ID()
}

// dispatch handles one frame. It returns false when the loop must stop.
// A panic while handling the frame is reported as INTERNAL_ERROR and the
// socket stays open.
func (h *WebSocketHandler) dispatch(ctx context.Context, c *connection, f inbound) (keep bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("panic handling frame: %v\n%s", r, debug.Stack())
			h.replyError(c, protocol.ErrInternal, "failed to process frame", "")
			keep = true
		}
	}()

	switch f.messageType {
	case websocket.BinaryMessage:
		h.metrics.FrameIn("BINARY")
		h.handleBinary(c, f.data)
		return true
	case websocket.TextMessage:
	default:
		return true
	}

	if err := protocol.ValidateEnvelope(f.data); err != nil {
		h.metrics.FrameIn("INVALID")
		h.replyError(c, protocol.ErrMalformedPayload, err.Error(), "")
		return true
	}
	env, err := protocol.DecodeEnvelope(f.data)
	if err != nil {
		h.metrics.FrameIn("INVALID")
		h.replyError(c, protocol.ErrMalformedPayload, err.Error(), "")
		return true
	}

	label := string(env.MsgType)
	if !env.MsgType.Known() {
		label = "UNKNOWN"
	}
	h.metrics.FrameIn(label)

	switch env.MsgType {
	case protocol.MsgRegister:
		h.handleRegister(ctx, c, env)
	case protocol.MsgRequest:
		h.handleRequest(ctx, c, env)
	case protocol.MsgSessionQuery:
		h.handleSessionQuery(c, env)
	case protocol.MsgHeartbeatReply:
		h.handleHeartbeatReply(c, env)
	case protocol.MsgHealthCheck:
		h.handleHealthCheck(c)
	case protocol.MsgShutdown:
		h.handleShutdown(c)
		return false
	default:
		h.replyError(c, protocol.ErrMalformedPayload,
			fmt.Sprintf("unsupported msg_type %q", env.MsgType), "")
	}
	return true
}

func (h *WebSocketHandler) handleRegister(ctx context.Context, c *connection, env protocol.Envelope) {
	p, err := protocol.ValidateRegisterPayload(env.Payload)
	if err != nil {
		h.replyError(c, protocol.ErrMalformedPayload, err.Error(), "")
		return
	}

	res, err := h.auth.Verify(ctx, p.Auth.Type, p.Auth.Credential(), p.Auth.Password)
	if err != nil || !res.Authenticated {
		c.logger.Infof("REGISTER rejected (%s): %v", p.Auth.Type, err)
		h.replyError(c, protocol.ErrAuthFailed, "credentials rejected", "")
		return
	}

	sid := env.Session()
	if sid == "" {
		sid = uuid.NewString()
	}
	if prev := c.session(); prev != "" && prev != sid && h.registry.Owns(prev, c.ep.ID()) {
		h.sessions.Unregister(prev, session.ReasonReplaced)
	}

	sess := h.sessions.Register(sid, session.Metadata{
		UserID:     res.UserID,
		Platform:   string(p.Platform),
		RequireTTS: *p.RequireTTS,
	}, p.FunctionCalling)
	h.registry.Connect(sid, c.ep)
	c.bind(sid)
	c.lastBeatReply = time.Time{}
	h.record(events.Event{
		Type:      events.TypeRegistered,
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Platform:  sess.Platform,
	})

	h.reply(c, protocol.MsgRegisterAck, protocol.RegisterAckPayload{
		SessionID:         sess.ID,
		UserID:            sess.UserID,
		SessionTimeout:    int64(h.sessions.Config().SessionTimeout / time.Second),
		HeartbeatInterval: int64(h.config.HeartbeatInterval / time.Second),
	})
}

func (h *WebSocketHandler) handleRequest(ctx context.Context, c *connection, env protocol.Envelope) {
	requestID := gjson.GetBytes(env.Payload, "request_id").String()

	sid, ok := h.boundSession(c, env)
	if !ok {
		h.replyError(c, protocol.ErrSessionInvalid, "register before sending requests", requestID)
		return
	}
	sess, ok := h.sessions.Validate(sid)
	if !ok {
		h.replyError(c, protocol.ErrSessionInvalid, "session expired, register again", requestID)
		return
	}
	p, err := protocol.ValidateRequestPayload(env.Payload)
	if err != nil {
		h.replyError(c, protocol.ErrMalformedPayload, err.Error(), requestID)
		return
	}

	if p.FunctionCallingOp != "" {
		defs, err := h.sessions.UpdateFunctions(sid, p.FunctionCallingOp, p.FunctionCalling)
		if err != nil {
			h.replyError(c, protocol.ErrMalformedPayload, err.Error(), p.RequestID)
			return
		}
		sess.Functions = defs
	}

	requireTTS := sess.RequireTTS
	if p.RequireTTS != nil {
		requireTTS = *p.RequireTTS
	}

	switch p.DataType {
	case protocol.DataText:
		text := *p.Content.Text
		h.runTurn(ctx, c, p.RequestID, func(ctx context.Context) error {
			return h.turns.ProcessText(ctx, sess, p.RequestID, text, requireTTS)
		})
	case protocol.DataVoice:
		h.handleVoice(ctx, c, sess, p, requireTTS)
	}
}

func (h *WebSocketHandler) handleSessionQuery(c *connection, env protocol.Envelope) {
	sid, ok := h.boundSession(c, env)
	if !ok {
		h.replyError(c, protocol.ErrSessionInvalid, "no registered session", "")
		return
	}
	var q protocol.SessionQueryPayload
	if err := protocol.DecodePayload(env.Payload, &q); err != nil {
		h.replyError(c, protocol.ErrMalformedPayload, err.Error(), "")
		return
	}
	sess, ok := h.sessions.Get(sid)
	if !ok {
		h.replyError(c, protocol.ErrSessionInvalid, "session expired, register again", "")
		return
	}
	h.reply(c, protocol.MsgSessionInfo, sess.Project(q.Fields, h.sessions.Now()))
}

func (h *WebSocketHandler) handleHeartbeatReply(c *connection, env protocol.Envelope) {
	sid, ok := h.boundSession(c, env)
	if !ok {
		h.replyError(c, protocol.ErrSessionInvalid, "no registered session", "")
		return
	}

	now := time.Now()
	if h.config.HeartbeatDebounce > 0 && !c.lastBeatReply.IsZero() &&
		now.Sub(c.lastBeatReply) < h.config.HeartbeatDebounce {
		c.logger.Debugf("HEARTBEAT_REPLY debounced for session %s", sid)
		return
	}
	c.lastBeatReply = now

	if !h.sessions.Heartbeat(sid) {
		h.replyError(c, protocol.ErrSessionInvalid, "session expired, register again", "")
		return
	}
	remaining, _ := h.sessions.Remaining(sid)
	h.reply(c, protocol.MsgHeartbeat, protocol.HeartbeatPayload{
		RemainingSeconds: int64(remaining / time.Second),
	})
}

func (h *WebSocketHandler) handleHealthCheck(c *connection) {
	h.reply(c, protocol.MsgHealthCheckAck, protocol.HealthCheckAckPayload{
		Status:      "ok",
		Connections: h.connectionManager.Count(),
		Sessions:    h.sessions.Count(),
	})
}

func (h *WebSocketHandler) handleShutdown(c *connection) {
	h.reply(c, protocol.MsgShutdown, protocol.ShutdownAckPayload{Acknowledged: true})
	advance(c.lc, eventClose)
	if sid := c.session(); sid != "" && h.releasable(sid, c) {
		h.sessions.Unregister(sid, session.ReasonShutdown)
	}
}

// pushHeartbeat sends the periodic HEARTBEAT, plus SESSION_WARN when the
// session is close to expiry.
func (h *WebSocketHandler) pushHeartbeat(c *connection) {
	sid := c.session()
	if sid == "" || !h.registry.Owns(sid, c.ep.ID()) {
		return
	}
	remaining, ok := h.sessions.Remaining(sid)
	if !ok {
		return
	}
	secs := int64(remaining / time.Second)
	h.reply(c, protocol.MsgHeartbeat, protocol.HeartbeatPayload{RemainingSeconds: secs})
	if h.config.WarnThreshold > 0 && remaining < h.config.WarnThreshold {
		h.reply(c, protocol.MsgSessionWarn, protocol.SessionWarnPayload{
			RemainingSeconds: secs,
			Message:          fmt.Sprintf("session expires in %d seconds", secs),
		})
	}
}

// runTurn executes a turn on the loop goroutine and reports its failure to
// the client.
func (h *WebSocketHandler) runTurn(ctx context.Context, c *connection, requestID string, turn func(context.Context) error) {
	err := turn(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		c.logger.Debugf("request %s cancelled", requestID)
	case errors.Is(err, gwio.ErrUnreachable):
		c.logger.Warnf("request %s: %v", requestID, err)
	case errors.Is(err, conversation.ErrTurnTimeout):
		h.replyError(c, protocol.ErrRequestTimeout, err.Error(), requestID)
	case errors.Is(err, conversation.ErrNoSpeech):
		h.replyError(c, protocol.ErrMalformedPayload, "no speech detected", requestID)
	case errors.Is(err, conversation.ErrNoTranscriber):
		h.replyError(c, protocol.ErrInternal, err.Error(), requestID)
	default:
		c.logger.Errorf("request %s failed: %v", requestID, err)
		h.replyError(c, protocol.ErrInternal, "failed to process request", requestID)
	}
}

// boundSession returns the session this socket registered, rejecting an
// envelope that names a different one. A socket displaced by a later
// REGISTER of the same id no longer owns the session.
func (h *WebSocketHandler) boundSession(c *connection, env protocol.Envelope) (string, bool) {
	sid := c.session()
	if sid == "" || c.lc.Current() != StateRegistered {
		return "", false
	}
	if !h.registry.Owns(sid, c.ep.ID()) {
		return "", false
	}
	if named := env.Session(); named != "" && named != sid {
		return "", false
	}
	return sid, true
}

func (h *WebSocketHandler) reply(c *connection, msgType protocol.MessageType, payload any) {
	env, err := protocol.BuildMessage(msgType, payload, c.session())
	if err != nil {
		c.logger.Errorf("building %s: %v", msgType, err)
		return
	}
	h.write(c, env)
}

func (h *WebSocketHandler) replyError(c *connection, code *protocol.ErrorCode, detail, requestID string) {
	h.write(c, protocol.BuildError(code, "", detail, requestID, c.session()))
}

// write goes through the registry while this socket owns the session, so
// a failed write also drops the binding.
func (h *WebSocketHandler) write(c *connection, env protocol.Envelope) {
	sid := c.session()
	if sid != "" && h.registry.Owns(sid, c.ep.ID()) {
		if !h.registry.Send(sid, env) {
			c.logger.Warnf("%s to session %s not delivered", env.MsgType, sid)
		}
		return
	}
	if err := c.ep.WriteEnvelope(env); err != nil {
		c.logger.Debugf("%s not delivered: %v", env.MsgType, err)
	}
}
