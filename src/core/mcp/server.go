package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"deepspace-observatory/src/core/utils"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// HandlerFunc 工具处理函数，返回给调用方的文本
type HandlerFunc func(ctx context.Context, args map[string]interface{}) (string, error)

// ToolServer 对外暴露观测台能力的MCP服务
type ToolServer struct {
	mcpServer *server.MCPServer
	logger    *utils.Logger

	mu      sync.RWMutex
	tools   map[string]mcp.Tool
	handler map[string]HandlerFunc
}

// NewToolServer 创建MCP服务
func NewToolServer(name, version string, logger *utils.Logger) *ToolServer {
	return &ToolServer{
		mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
		logger:    logger,
		tools:     make(map[string]mcp.Tool),
		handler:   make(map[string]HandlerFunc),
	}
}

// AddTool 注册工具
func (s *ToolServer) AddTool(tool mcp.Tool, handler HandlerFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tools[tool.Name]; ok {
		return fmt.Errorf("tool %s already exists", tool.Name)
	}
	s.tools[tool.Name] = tool
	s.handler[tool.Name] = handler

	name := tool.Name
	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := any(request.Params.Arguments).(map[string]any)
		return s.call(ctx, name, args), nil
	})
	return nil
}

// HasTool 检查是否有指定名称的工具
func (s *ToolServer) HasTool(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tools[name]
	return ok
}

// ToolNames 已注册的工具名
func (s *ToolServer) ToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CallTool 直接调用工具，不经过传输层
func (s *ToolServer) CallTool(ctx context.Context, name string, args map[string]interface{}) *mcp.CallToolResult {
	return s.call(ctx, name, args)
}

func (s *ToolServer) call(ctx context.Context, name string, args map[string]interface{}) *mcp.CallToolResult {
	s.mu.RLock()
	handler, ok := s.handler[name]
	s.mu.RUnlock()
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("tool %s not found", name))
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	text, err := handler(ctx, args)
	if err != nil {
		s.logger.Warn("MCP工具调用失败", map[string]interface{}{
			"tool":  name,
			"error": err.Error(),
		})
		return mcp.NewToolResultError(err.Error())
	}
	s.logger.Debug("MCP工具调用完成", map[string]interface{}{"tool": name})
	return mcp.NewToolResultText(text)
}

// Mount 在gin上挂载SSE传输，baseURL为外部可访问的地址
func (s *ToolServer) Mount(engine *gin.Engine, baseURL string) {
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL(strings.TrimSuffix(baseURL, "/")))
	engine.GET("/sse", gin.WrapH(sse.SSEHandler()))
	engine.POST("/message", gin.WrapH(sse.MessageHandler()))
	s.logger.Info("MCP服务已挂载", map[string]interface{}{
		"sse":   baseURL + "/sse",
		"tools": strings.Join(s.ToolNames(), ","),
	})
}

// ResultText 取出结果中的文本内容
func ResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var b strings.Builder
	for _, c := range result.Content {
		switch tc := c.(type) {
		case mcp.TextContent:
			b.WriteString(tc.Text)
		case *mcp.TextContent:
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}
