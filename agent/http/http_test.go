package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"emotive.arpa/agent/conversation"
	"emotive.arpa/agent/inference"
	"emotive.arpa/agent/topics"
)

type fakeReply struct {
	text string
	err  error
}

type fakeLLM struct {
	mu      sync.Mutex
	replies []fakeReply
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return "", errors.New("unexpected inference call")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.text, r.err
}

func newTestServer(t *testing.T, replies ...fakeReply) *Server {
	t.Helper()
	log := zaptest.NewLogger(t)
	o := conversation.NewOrchestrator(log,
		conversation.Config{ListTopics: true, ServiceAddr: "127.0.0.1:11434", Model: "llama3.2"},
		&fakeLLM{replies: replies},
		topics.NewTable(topics.DefaultSeed()),
	)
	return NewServer(log, Config{ServerURL: "http://127.0.0.1:0"}, o)
}

func serve(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.serveMux.ServeHTTP(w, req)
	return w
}

func TestServer_HealthEndpoints(t *testing.T) {
	server := newTestServer(t)

	w := serve(server, "GET", "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "not ready before listening")

	server.isReady.Store(true)
	w = serve(server, "GET", "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(server, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	w = serve(server, "GET", "/healthz", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	require.NoError(t, server.BeginShutdown(context.Background()))
	for _, path := range []string{"/health", "/healthz", "/ready"} {
		w = serve(server, "GET", path, "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}

func TestServer_Turn(t *testing.T) {
	server := newTestServer(t,
		fakeReply{text: "food yum"},
		fakeReply{text: "Pizza is wonderful!"},
	)

	w := serve(server, "POST", "/api/turn", `{"prompt": "I could eat pizza every day"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res conversation.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "food", res.Topic)
	assert.Equal(t, "yum", res.Keyword)
	assert.Equal(t, topics.Emotion("happiness"), res.Emotion)
	assert.Equal(t, "Pizza is wonderful!", res.Reply)
	assert.NotEmpty(t, res.ID)
}

func TestServer_Turn_Errors(t *testing.T) {
	refused := &inference.Error{
		Code:   inference.CodeServiceUnavailable,
		Reason: "service unavailable",
		Err:    &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED},
	}

	tests := []struct {
		name      string
		body      string
		replies   []fakeReply
		status    int
		code      inference.ErrorCode
		stage     conversation.Stage
		hasResult bool
	}{
		{name: "invalid json", body: `{"prompt":`, status: http.StatusBadRequest},
		{name: "empty prompt", body: `{"prompt": "  "}`, status: http.StatusBadRequest},
		{
			name:    "service unavailable",
			body:    `{"prompt": "hello"}`,
			replies: []fakeReply{{err: refused}},
			status:  http.StatusServiceUnavailable,
			code:    inference.CodeServiceUnavailable,
			stage:   conversation.StageClassify,
		},
		{
			name:    "malformed classification",
			body:    `{"prompt": "hello"}`,
			replies: []fakeReply{{text: "I think the topic is food"}},
			status:  http.StatusUnprocessableEntity,
			stage:   conversation.StageClassify,
		},
		{
			name: "reply failed",
			body: `{"prompt": "hello"}`,
			replies: []fakeReply{
				{text: "food yum"},
				{err: &inference.Error{Code: inference.CodeRequestFailed, Reason: "bad status"}},
			},
			status:    http.StatusBadGateway,
			code:      inference.CodeRequestFailed,
			stage:     conversation.StageReply,
			hasResult: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, tt.replies...)

			w := serve(server, "POST", "/api/turn", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())

			var resp errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.stage, resp.Stage)
			assert.Equal(t, tt.hasResult, resp.Result != nil)
		})
	}
}

func TestServer_Turn_MethodNotAllowed(t *testing.T) {
	server := newTestServer(t)
	w := serve(server, "GET", "/api/turn", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServer_Topics(t *testing.T) {
	server := newTestServer(t)

	w := serve(server, "GET", "/api/topics", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Emotions []topics.Entry `json:"emotions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, topics.DefaultSeed(), body.Emotions)
}

func TestServer_RunAndShutdown(t *testing.T) {
	server := newTestServer(t)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run(context.Background()) }()

	require.Eventually(t, server.isReady.Load, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.BeginShutdown(ctx))
	require.NoError(t, server.Shutdown(ctx))
	assert.NoError(t, <-errCh)
}

func TestServer_Run_InvalidURL(t *testing.T) {
	log := zaptest.NewLogger(t)
	server := NewServer(log, Config{ServerURL: "not a url"}, nil)
	assert.Error(t, server.Run(context.Background()))
}
