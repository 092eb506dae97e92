package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/san-kum/probowler/server/metrics"
	"github.com/san-kum/probowler/server/models"
	"github.com/san-kum/probowler/server/processor"
	"github.com/san-kum/probowler/server/store"
)

const (
	wsReadLimit  = 16 * 1024 * 1024
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsWriteWait  = 10 * time.Second

	// trials analyzed at once per connection
	wsMaxInflight = 4
)

type WebSocketHandler struct {
	processor   *processor.TrialProcessor
	logger      *zap.Logger
	upgrader    websocket.Upgrader
	maxInflight int
}

// ClientMessage is a request from a websocket client. Data holds a TrialRequest for
// "trial" messages.
type ClientMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// wsConn serializes writes; gorilla connections allow one concurrent writer. ctx is
// cancelled when the client disconnects and slots bounds the trials in flight.
type wsConn struct {
	*websocket.Conn
	mutex    sync.Mutex
	ctx      context.Context
	slots    chan struct{}
	inflight sync.WaitGroup
}

func (c *wsConn) writeJSON(v any) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.WriteJSON(v)
}

func (c *wsConn) writePing() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.WriteMessage(websocket.PingMessage, nil)
}

func NewWebSocketHandler(processor *processor.TrialProcessor, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		processor: processor,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		maxInflight: wsMaxInflight,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket connection", zap.Error(err))
		return
	}
	// the request context carries the HTTP request timeout, which must not end the session
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	conn := &wsConn{Conn: raw, ctx: ctx, slots: make(chan struct{}, h.maxInflight)}
	defer conn.Close()
	defer conn.inflight.Wait()
	defer cancel()

	metrics.WebSocketConnections.Inc()
	defer metrics.WebSocketConnections.Dec()

	clientIP := c.ClientIP()
	h.logger.Info("WebSocket client connected", zap.String("client_ip", clientIP))

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go h.pingRoutine(conn, done)

	for {
		var message ClientMessage
		if err := conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket read error", zap.String("client_ip", clientIP), zap.Error(err))
			}
			h.logger.Info("WebSocket client disconnected", zap.String("client_ip", clientIP))
			return
		}
		h.handleMessage(conn, &message)
	}
}

func (h *WebSocketHandler) handleMessage(conn *wsConn, message *ClientMessage) {
	switch message.Type {
	case "trial":
		var request models.TrialRequest
		if err := json.Unmarshal(message.Data, &request); err != nil {
			h.sendError(conn, models.CodeInvalidRequest, "invalid trial payload")
			return
		}
		select {
		case conn.slots <- struct{}{}:
		default:
			h.sendError(conn, models.CodeQueueFull, "too many trials in flight on this connection")
			return
		}
		conn.inflight.Add(1)
		go func() {
			defer conn.inflight.Done()
			defer func() { <-conn.slots }()
			h.analyzeTrial(conn, &request)
		}()
	case "ping":
		h.sendMessage(conn, "pong", map[string]any{"timestamp": time.Now().Unix()})
	default:
		h.logger.Warn("Unknown message type received", zap.String("type", message.Type))
		h.sendError(conn, models.CodeInvalidRequest, "Unknown message type: "+message.Type)
	}
}

func (h *WebSocketHandler) analyzeTrial(conn *wsConn, request *models.TrialRequest) {
	ctx, cancel := context.WithTimeout(conn.ctx, wsPongWait)
	defer cancel()

	result, err := h.processor.AnalyzeRequest(ctx, store.SourceWebSocket, request)
	if err != nil {
		code := processor.ErrorCode(err)
		message := err.Error()
		if code == models.CodeProcessingFailed {
			h.logger.Error("Trial analysis failed", zap.Error(err))
			message = "Processing failed"
		}
		h.sendError(conn, code, message)
		return
	}

	h.sendMessage(conn, "report", result)
}

func (h *WebSocketHandler) sendMessage(conn *wsConn, messageType string, data any) {
	if err := conn.writeJSON(ServerMessage{Type: messageType, Data: data}); err != nil {
		h.logger.Error("Failed to send WebSocket message", zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(conn *wsConn, code, message string) {
	h.sendMessage(conn, "error", map[string]any{
		"code":      code,
		"message":   message,
		"timestamp": time.Now().Unix(),
	})
}

func (h *WebSocketHandler) pingRoutine(conn *wsConn, done chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.writePing(); err != nil {
				h.logger.Warn("Failed to send ping", zap.Error(err))
				conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}
