package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"deepspace-observatory/src/configs"
	"deepspace-observatory/src/core/image"
	"deepspace-observatory/src/core/providers/vlllm"
	"deepspace-observatory/src/core/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"<think>hm</think>Emission Nebula"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p, err := vlllm.Create(&configs.VLLMConfig{
		Type:      "openai",
		ModelName: "gpt-4o-mini",
		BaseURL:   srv.URL + "/v1/",
		APIKey:    "sk-test",
	}, utils.NewWriterLogger(nil, "info"))
	require.NoError(t, err)

	text, err := p.Describe(context.Background(), image.ImageData{Data: "QUJD", Format: "jpeg"}, "what is this")
	require.NoError(t, err)
	assert.Equal(t, "Emission Nebula", text)

	assert.Equal(t, "gpt-4o-mini", body["model"])
	messages := body["messages"].([]interface{})
	parts := messages[0].(map[string]interface{})["content"].([]interface{})
	require.Len(t, parts, 2)
	imagePart := parts[0].(map[string]interface{})
	url := imagePart["image_url"].(map[string]interface{})["url"].(string)
	assert.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,QUJD"))
	assert.Equal(t, "what is this", parts[1].(map[string]interface{})["text"])
}

func TestDescribe_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, err := vlllm.Create(&configs.VLLMConfig{Type: "openai", ModelName: "m", BaseURL: srv.URL, APIKey: "bad"}, utils.NewWriterLogger(nil, "info"))
	require.NoError(t, err)
	_, err = p.Describe(context.Background(), image.ImageData{Data: "QUJD", Format: "png"}, "x")
	assert.ErrorContains(t, err, "Incorrect API key provided")
}

func TestInitialize_RequiresKey(t *testing.T) {
	_, err := vlllm.Create(&configs.VLLMConfig{Type: "openai"}, utils.NewWriterLogger(nil, "info"))
	assert.ErrorContains(t, err, "API key is required")
}
