package core

import (
	"encoding/json"
	"fmt"

	"deepspace-observatory/src/core/app"
	"deepspace-observatory/src/core/catalog"

	"github.com/gorilla/websocket"
)

// clientMessage 客户端发来的指令，按type使用不同字段
type clientMessage struct {
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Button int     `json:"button"`
	DX     float64 `json:"dx"`
	DY     float64 `json:"dy"`
	Factor float64 `json:"factor"`
	Clicks float64 `json:"clicks"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	ID     string  `json:"id"`
	Query  string  `json:"query"`
	Sort   string  `json:"sort"`
	Tab    string  `json:"tab"`
}

// handleMessage 处理接收到的消息
func (h *ConnectionHandler) handleMessage(messageType int, message []byte) error {
	switch messageType {
	case websocket.TextMessage:
		return h.processClientTextMessage(message)
	default:
		return fmt.Errorf("未知的消息类型: %d", messageType)
	}
}

// processClientTextMessage 解析JSON指令并分发给会话
func (h *ConnectionHandler) processClientTextMessage(text []byte) error {
	var msg clientMessage
	if err := json.Unmarshal(text, &msg); err != nil {
		return fmt.Errorf("消息格式错误: %v", err)
	}

	s := h.session
	switch msg.Type {
	case "pointer_down":
		s.PointerDown(msg.X, msg.Y, msg.Button)
	case "pointer_move":
		s.PointerMove(msg.X, msg.Y)
	case "pointer_up":
		s.PointerUp()
	case "pointer_leave":
		s.PointerLeave()
	case "select_target":
		s.SelectTarget(msg.ID)
	case "analyze":
		s.Analyze()
	case "dismiss_analysis":
		s.DismissAnalysis()
	case "gallery_open":
		s.OpenGallery()
	case "gallery_close":
		s.CloseGallery()
	case "gallery_query":
		s.SetGalleryQuery(msg.Query)
	case "gallery_sort":
		s.SetGallerySort(catalog.ParseSortOrder(msg.Sort))
	case "set_tab":
		s.SetTab(app.Tab(msg.Tab))
	case "pan":
		return s.Pan(msg.DX, msg.DY)
	case "zoom":
		if msg.Factor != 0 {
			return s.Zoom(msg.Factor, msg.X, msg.Y)
		}
		return s.Scroll(msg.Clicks, msg.X, msg.Y)
	case "resize":
		return s.Resize(msg.Width, msg.Height)
	case "home":
		return s.Home()
	case "ping":
		return h.sendPongMessage()
	default:
		return fmt.Errorf("未知的消息类型: %s", msg.Type)
	}
	return nil
}
