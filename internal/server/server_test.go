package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-datalab/internal/chat"
	"ai-datalab/internal/events"
	"ai-datalab/internal/storage"
)

type fakeChat struct {
	reply chat.Reply
	err   error
	got   []string
}

func (f *fakeChat) Handle(_ context.Context, sessionID, message string) (chat.Reply, error) {
	f.got = append(f.got, sessionID+"|"+message)
	if f.err != nil {
		return chat.Reply{}, f.err
	}
	return f.reply, nil
}

type fakeDatasets []string

func (d fakeDatasets) List() ([]string, error) { return d, nil }

type fakeRecorder []storage.Event

func (r fakeRecorder) AppendInteraction(storage.Event) error      { return nil }
func (r fakeRecorder) LoadInteractions() ([]storage.Event, error) { return r, nil }

func newTestServer(t *testing.T, c *fakeChat, bus *events.Bus) (*Server, *httptest.Server) {
	t.Helper()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := fakeRecorder{
		{Timestamp: now.Add(-time.Hour), SessionID: "a", UserMessage: "hi", File: "sales.csv"},
		{Timestamp: now.AddDate(0, 0, -2), SessionID: "b", UserMessage: "old"},
	}
	s := New(Options{
		AllowedOrigins: []string{"http://localhost:5175"},
		Heartbeat:      50 * time.Millisecond,
		Provider:       "openai",
		LLMConfigured:  true,
	}, c, bus, fakeDatasets{"sales.csv"}, rec, nil)
	s.now = func() time.Time { return now }

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func do(t *testing.T, method, url, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestServer_RootAndHealth(t *testing.T) {
	_, ts := newTestServer(t, &fakeChat{}, events.NewBus(0, nil))

	for _, prefix := range []string{"", "/api"} {
		resp, body := do(t, http.MethodGet, ts.URL+prefix+"/", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"message": "AI DataLab API", "status": "running"}`, body)

		resp, body = do(t, http.MethodGet, ts.URL+prefix+"/health", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"status": "healthy", "openai_configured": true}`, body)
	}
}

func TestServer_Chat(t *testing.T) {
	c := &fakeChat{reply: chat.Reply{Response: "Three rows.", SessionID: "s1"}}
	_, ts := newTestServer(t, c, events.NewBus(0, nil))

	resp, body := do(t, http.MethodPost, ts.URL+"/api/chat", `{"message": "hi", "session_id": "s1"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"response": "Three rows.", "session_id": "s1"}`, body)
	assert.Equal(t, []string{"s1|hi"}, c.got)
}

func TestServer_ChatErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		body       string
		wantStatus int
		wantDetail string
	}{
		{"invalid json", nil, `{"message":`, http.StatusBadRequest, "Invalid request body"},
		{"empty message", chat.ErrEmptyMessage, `{"message": ""}`, http.StatusBadRequest, "Message must not be empty"},
		{"pipeline failure", errors.New("intent stage: timeout"), `{"message": "hi"}`, http.StatusInternalServerError, "Error processing message: intent stage: timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts := newTestServer(t, &fakeChat{err: tt.err}, events.NewBus(0, nil))
			resp, body := do(t, http.MethodPost, ts.URL+"/chat", tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Contains(t, body, `"detail"`)
			assert.Contains(t, body, tt.wantDetail)
		})
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t, &fakeChat{}, events.NewBus(0, nil))
	resp, _ := do(t, http.MethodGet, ts.URL+"/chat", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_DatasetsAndStats(t *testing.T) {
	_, ts := newTestServer(t, &fakeChat{}, events.NewBus(0, nil))

	resp, body := do(t, http.MethodGet, ts.URL+"/api/datasets", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"datasets": ["sales.csv"]}`, body)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/stats", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"date":"2025-03-01"`)
	assert.Contains(t, body, `"total_messages":1`)
}

func TestServer_CORS(t *testing.T) {
	_, ts := newTestServer(t, &fakeChat{}, events.NewBus(0, nil))

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/chat", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5175")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5175", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "content-type", resp.Header.Get("Access-Control-Allow-Headers"))

	req, err = http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_Stream(t *testing.T) {
	bus := events.NewBus(0, nil)
	_, ts := newTestServer(t, &fakeChat{}, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream/s1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	bus.Publish("s1", events.KindStatus, map[string]any{"message": "Understanding your request..."})
	bus.Publish("other", events.KindStatus, map[string]any{"message": "not for s1"})
	bus.Publish("s1", events.KindPreview, map[string]any{"html": "<p>x</p>"})

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	var got []string
	heartbeat := false
	deadline := time.After(5 * time.Second)
	for len(got) < 4 || !heartbeat {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream ended early")
			switch {
			case strings.HasPrefix(line, "event:"), strings.HasPrefix(line, "data:"):
				got = append(got, line)
			case line == ": keep-alive":
				heartbeat = true
			}
		case <-deadline:
			t.Fatalf("incomplete stream: %v heartbeat=%v", got, heartbeat)
		}
	}

	assert.Equal(t, []string{
		"event: status",
		`data: {"message":"Understanding your request..."}`,
		"event: preview",
		`data: {"html":"<p>x</p>"}`,
	}, got[:4])
	assert.Equal(t, 0, bus.Len("s1"))
	assert.Equal(t, 1, bus.Len("other"))

	cancel()
	for range lines {
	}
}
