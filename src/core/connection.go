package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"deepspace-observatory/src/core/session"
	"deepspace-observatory/src/core/utils"

	"github.com/gorilla/websocket"
)

// ConnectionHandler 连接处理器，把客户端消息转交给会话，把会话输出写回连接
type ConnectionHandler struct {
	logger    *utils.Logger
	deps      session.Deps
	conn      Conn
	clientID  string
	session   *session.Session
	closeOnce sync.Once
}

// NewConnectionHandler 创建新的连接处理器
func NewConnectionHandler(deps session.Deps, clientID string, logger *utils.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		logger:   logger,
		deps:     deps,
		clientID: clientID,
	}
}

// Handle 处理WebSocket连接，阻塞到连接断开
func (h *ConnectionHandler) Handle(ctx context.Context, conn Conn) {
	h.conn = conn
	h.session = session.New(ctx, h.deps, h)
	defer h.close()

	if err := h.sendHelloMessage(); err != nil {
		h.logger.Error(fmt.Sprintf("发送欢迎消息失败: %v", err))
		return
	}
	h.logger.Info("会话已建立", map[string]interface{}{
		"session_id": h.session.ID(),
		"client_id":  h.clientID,
	})
	h.session.Start()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn(fmt.Sprintf("读取消息失败: %v", err))
			}
			return
		}
		if err := h.handleMessage(messageType, message); err != nil {
			h.logger.Debug("处理消息失败", map[string]interface{}{
				"session_id": h.session.ID(),
				"error":      err.Error(),
			})
			if err := h.sendErrorMessage(err.Error()); err != nil {
				return
			}
		}
	}
}

// SendState 实现 session.Sink
func (h *ConnectionHandler) SendState(snap session.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("序列化状态失败: %v", err)
	}
	return h.conn.WriteMessage(websocket.TextMessage, data)
}

// SendFrame 实现 session.Sink，画面以二进制JPEG发送
func (h *ConnectionHandler) SendFrame(frame []byte) error {
	return h.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (h *ConnectionHandler) close() {
	h.closeOnce.Do(func() {
		h.session.Close()
		h.conn.Close()
		h.logger.Info("会话已关闭", map[string]interface{}{"session_id": h.session.ID()})
	})
}
