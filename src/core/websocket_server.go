package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"deepspace-observatory/src/configs"
	auth "deepspace-observatory/src/core/Auth"
	"deepspace-observatory/src/core/session"
	"deepspace-observatory/src/core/utils"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocketServer 查看器会话服务，每个连接对应一个独立会话
type WebSocketServer struct {
	config            *configs.Config
	server            *http.Server
	upgrader          Upgrader
	logger            *utils.Logger
	deps              session.Deps
	authToken         *auth.AuthToken
	ctx               context.Context
	cancel            context.CancelFunc
	activeConnections sync.Map
}

// Upgrader WebSocket升级器接口
type Upgrader interface {
	Upgrade(w http.ResponseWriter, r *http.Request) (Conn, error)
}

// Conn WebSocket连接接口
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// NewWebSocketServer 创建WebSocket服务器，authToken为nil时不校验令牌
func NewWebSocketServer(config *configs.Config, deps session.Deps, authToken *auth.AuthToken, logger *utils.Logger) *WebSocketServer {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketServer{
		config:    config,
		logger:    logger,
		upgrader:  NewDefaultUpgrader(),
		deps:      deps,
		authToken: authToken,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Handler 返回处理WebSocket升级的http.Handler
func (ws *WebSocketServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", ws.handleWebSocket)
	return mux
}

// Start 启动WebSocket服务器，ctx结束时关闭
func (ws *WebSocketServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", ws.config.Server.IP, ws.config.Server.Port)
	ws.server = &http.Server{
		Addr:    addr,
		Handler: ws.Handler(),
	}

	ws.logger.Info(fmt.Sprintf("正在启动WebSocket服务器于 ws://%s...", addr))

	go func() {
		<-ctx.Done()
		ws.logger.Info("收到关闭信号，准备关闭服务器...")
		if err := ws.Stop(); err != nil {
			ws.logger.Error(fmt.Sprintf("服务器关闭时出错: %v", err))
		}
	}()

	if err := ws.server.ListenAndServe(); err != nil {
		if err == http.ErrServerClosed {
			ws.logger.Info("服务器已正常关闭")
			return nil
		}
		ws.logger.Error(fmt.Sprintf("服务器启动失败: %v", err))
		return fmt.Errorf("服务器启动失败: %v", err)
	}
	return nil
}

// defaultUpgrader 默认的WebSocket升级器实现
type defaultUpgrader struct {
	wsUpgrader *websocket.Upgrader
}

// NewDefaultUpgrader 创建默认的WebSocket升级器
func NewDefaultUpgrader() *defaultUpgrader {
	return &defaultUpgrader{
		wsUpgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有来源的连接
			},
		},
	}
}

// Upgrade 实现Upgrader接口
func (u *defaultUpgrader) Upgrade(w http.ResponseWriter, r *http.Request) (Conn, error) {
	conn, err := u.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &websocketConn{conn: conn}, nil
}

// Stop 停止WebSocket服务器并关闭所有会话
func (ws *WebSocketServer) Stop() error {
	ws.cancel()
	ws.activeConnections.Range(func(key, value interface{}) bool {
		if conn, ok := value.(Conn); ok {
			conn.Close()
		}
		return true
	})
	if ws.server != nil {
		ws.logger.Info("正在关闭WebSocket服务器...")
		if err := ws.server.Close(); err != nil {
			return fmt.Errorf("服务器关闭失败: %v", err)
		}
	}
	return nil
}

// ActiveConnections 当前连接数
func (ws *WebSocketServer) ActiveConnections() int {
	n := 0
	ws.activeConnections.Range(func(key, value interface{}) bool {
		n++
		return true
	})
	return n
}

// authenticate 从Authorization头或token查询参数中读取令牌
func (ws *WebSocketServer) authenticate(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	}
	if token == "" {
		return "", fmt.Errorf("缺少令牌")
	}
	ok, clientID, err := ws.authToken.VerifyToken(token)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("令牌无效")
	}
	return clientID, nil
}

// handleWebSocket 处理WebSocket连接
func (ws *WebSocketServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientID := ""
	if ws.authToken != nil {
		id, err := ws.authenticate(r)
		if err != nil {
			ws.logger.Warn("WebSocket认证失败", map[string]interface{}{
				"remote": r.RemoteAddr,
				"error":  err.Error(),
			})
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		clientID = id
	}

	conn, err := ws.upgrader.Upgrade(w, r)
	if err != nil {
		ws.logger.Error(fmt.Sprintf("WebSocket升级失败: %v", err))
		return
	}

	connID := uuid.New().String()
	if clientID == "" {
		clientID = connID
	}
	ws.activeConnections.Store(connID, conn)

	handler := NewConnectionHandler(ws.deps, clientID, ws.logger)
	go func() {
		defer ws.activeConnections.Delete(connID)
		handler.Handle(ws.ctx, conn)
	}()
}
