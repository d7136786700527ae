package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"deepspace-observatory/src/configs"
)

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  int
	}{
		{name: "debug输出全部", level: "debug", want: 4},
		{name: "info过滤debug", level: "info", want: 3},
		{name: "大写级别", level: "WARN", want: 2},
		{name: "error只输出错误", level: "error", want: 1},
		{name: "未知级别按info处理", level: "verbose", want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWriterLogger(&buf, tt.level)
			logger.Debug("d")
			logger.Info("i")
			logger.Warn("w")
			logger.Error("e")
			lines := strings.Count(buf.String(), "\n")
			if lines != tt.want {
				t.Errorf("level %q wrote %d lines, want %d", tt.level, lines, tt.want)
			}
		})
	}
}

func TestLogger_JSONEntry(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, "info")
	logger.WithTag("viewer").Warn("瓦片加载失败", errors.New("boom"))

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry.Tag != "viewer" || entry.Level != WarnLevel || entry.Message != "瓦片加载失败" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	fields, ok := entry.Fields.(map[string]interface{})
	if !ok || fields["error"] != "boom" {
		t.Fatalf("error field not recorded: %+v", entry.Fields)
	}
}

func TestNewLogger_WritesFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(&configs.LogConfig{LogDir: dir, LogFile: "test.log", LogLevel: "info"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.console = nil
	logger.Info("hello", map[string]interface{}{"k": 1})
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "test.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"message":"hello"`) {
		t.Fatalf("log file missing entry: %s", data)
	}
}

func TestLogger_NilSafe(t *testing.T) {
	var logger *Logger
	logger.Info("no panic")
}
