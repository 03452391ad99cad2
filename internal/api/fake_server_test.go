package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeServer is an httptest server speaking enough of the Messages and
// Responses wire formats for the invokers.
type fakeServer struct {
	*httptest.Server

	calls atomic.Int32

	mu       sync.Mutex
	bodies   []map[string]any
	status   int
	errBody  string
	delay    time.Duration
	replies  []string // successive Messages responses (raw JSON)
	response string   // Responses API reply (raw JSON)
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	n := int(fs.calls.Add(1))

	data, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(data, &body)

	fs.mu.Lock()
	fs.bodies = append(fs.bodies, body)
	status, errBody, delay := fs.status, fs.errBody, fs.delay
	replies, response := fs.replies, fs.response
	fs.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, errBody)
		return
	}

	if response != "" {
		_, _ = io.WriteString(w, response)
		return
	}

	idx := n - 1
	if idx >= len(replies) {
		idx = len(replies) - 1
	}
	_, _ = io.WriteString(w, replies[idx])
}

func (fs *fakeServer) body(i int) map[string]any {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.bodies[i]
}

// textMessage builds a Messages API reply with one text block.
func textMessage(text string) string {
	return messageJSON("end_turn", []map[string]any{{"type": "text", "text": text}})
}

// toolMessage builds a Messages API reply requesting tool calls.
func toolMessage(text string, calls ...map[string]any) string {
	content := []map[string]any{}
	if text != "" {
		content = append(content, map[string]any{"type": "text", "text": text})
	}
	for _, c := range calls {
		block := map[string]any{"type": "tool_use"}
		for k, v := range c {
			block[k] = v
		}
		content = append(content, block)
	}
	return messageJSON("tool_use", content)
}

func messageJSON(stopReason string, content []map[string]any) string {
	msg := map[string]any{
		"id":            "msg_test",
		"type":          "message",
		"role":          "assistant",
		"model":         "claude-sonnet-4-5-20250929",
		"content":       content,
		"stop_reason":   stopReason,
		"stop_sequence": nil,
		"usage":         map[string]any{"input_tokens": 12, "output_tokens": 7},
	}
	data, _ := json.Marshal(msg)
	return string(data)
}

func responsesJSON(text string) string {
	msg := map[string]any{
		"id":         "resp_test",
		"object":     "response",
		"created_at": 0,
		"status":     "completed",
		"model":      "gpt-4.1",
		"output": []map[string]any{{
			"type":   "message",
			"id":     "msg_1",
			"status": "completed",
			"role":   "assistant",
			"content": []map[string]any{{
				"type":        "output_text",
				"text":        text,
				"annotations": []any{},
			}},
		}},
		"usage": map[string]any{"input_tokens": 9, "output_tokens": 4, "total_tokens": 13},
	}
	data, _ := json.Marshal(msg)
	return string(data)
}

func testClient(t *testing.T, url string) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{APIKey: "test-key", BaseURL: url})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}
