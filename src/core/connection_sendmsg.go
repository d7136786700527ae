package core

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
)

// sendHelloMessage 发送欢迎消息，告知会话ID和交互参数
func (h *ConnectionHandler) sendHelloMessage() error {
	if h.conn == nil {
		return fmt.Errorf("连接对象未初始化，无法发送hello消息")
	}

	cfg := h.deps.Config
	hello := map[string]interface{}{
		"type":       "hello",
		"version":    1,
		"transport":  "websocket",
		"session_id": h.session.ID(),
		"selection": map[string]interface{}{
			"min_size": cfg.MinSelection,
		},
		"viewer": map[string]interface{}{
			"zoom_per_scroll": cfg.ZoomPerScroll,
			"frame_format":    "jpeg",
		},
	}
	data, err := json.Marshal(hello)
	if err != nil {
		return fmt.Errorf("序列化欢迎消息失败: %v", err)
	}
	return h.conn.WriteMessage(websocket.TextMessage, data)
}

// sendErrorMessage 指令处理失败时通知客户端，连接保持
func (h *ConnectionHandler) sendErrorMessage(message string) error {
	data, err := json.Marshal(map[string]interface{}{
		"type":       "error",
		"session_id": h.session.ID(),
		"message":    message,
	})
	if err != nil {
		return fmt.Errorf("序列化错误消息失败: %v", err)
	}
	return h.conn.WriteMessage(websocket.TextMessage, data)
}

func (h *ConnectionHandler) sendPongMessage() error {
	data, _ := json.Marshal(map[string]interface{}{
		"type":       "pong",
		"session_id": h.session.ID(),
	})
	return h.conn.WriteMessage(websocket.TextMessage, data)
}
