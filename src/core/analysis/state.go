package analysis

// Status 分析请求状态
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// State 分析状态，每次转换整体替换
type State struct {
	Status Status  `json:"status"`
	Text   *string `json:"text"`
}

// Idle 初始状态
func Idle() State {
	return State{Status: StatusIdle}
}

// Begin 进入loading
func Begin(State) State {
	return State{Status: StatusLoading}
}

// Succeed 请求成功
func Succeed(_ State, text string) State {
	return State{Status: StatusSuccess, Text: &text}
}

// Fail 请求失败，message为用户可读的错误
func Fail(_ State, message string) State {
	return State{Status: StatusError, Text: &message}
}

// Reset 回到idle
func Reset(State) State {
	return Idle()
}

// Loading 是否有请求在进行
func (s State) Loading() bool {
	return s.Status == StatusLoading
}

// Message 文本内容，没有时为空串
func (s State) Message() string {
	if s.Text == nil {
		return ""
	}
	return *s.Text
}
