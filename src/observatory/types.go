package observatory

// AnalyzeRequest JSON形式的分析请求
type AnalyzeRequest struct {
	Image string `json:"image"` // data:image/...;base64,...
}

// APIResponse 标准响应结构
type APIResponse struct {
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
	Message string      `json:"message,omitempty"`
}

// TokenRequest 换取会话令牌
type TokenRequest struct {
	ClientID string `json:"client_id"`
	Token    string `json:"token"` // 预共享令牌
}

// TokenResponse 签发的会话令牌
type TokenResponse struct {
	Token     string `json:"token"`
	ClientID  string `json:"client_id"`
	ExpiresAt int64  `json:"expires_at"`
}
