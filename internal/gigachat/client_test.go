package gigachat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/gigachat-bot/internal/auth"
	"github.com/xaenox/gigachat-bot/internal/models"
)

// fakeTokens records FetchToken calls and hands out numbered tokens.
type fakeTokens struct {
	mu       sync.Mutex
	calls    []bool
	tokens   []string
	failOn   int // 1-based call index that fails; 0 disables
	failWith error
}

func (f *fakeTokens) FetchToken(_ context.Context, forceRefresh bool) (auth.AccessToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, forceRefresh)
	if f.failOn == len(f.calls) {
		return auth.AccessToken{}, f.failWith
	}
	value := "token-1"
	if i := len(f.calls) - 1; i < len(f.tokens) {
		value = f.tokens[i]
	}
	return auth.AccessToken{Value: value, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type recordedRequest struct {
	header http.Header
	body   map[string]any
}

// scriptedServer answers the n-th completion call with the n-th response.
type scriptedServer struct {
	mu       sync.Mutex
	requests []recordedRequest
	replies  []scriptedReply
}

type scriptedReply struct {
	status int
	body   string
}

func (s *scriptedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	s.requests = append(s.requests, recordedRequest{header: r.Header.Clone(), body: body})
	n := len(s.requests)
	s.mu.Unlock()

	rep := s.replies[len(s.replies)-1]
	if n <= len(s.replies) {
		rep = s.replies[n-1]
	}
	w.WriteHeader(rep.status)
	_, _ = w.Write([]byte(rep.body))
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
	return string(b)
}

func newTestClient(t *testing.T, url string, tokens TokenSource) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: url, SystemPrompt: "be helpful"}, tokens, nil, zap.NewNop())
	require.NoError(t, err)
	return c
}

var history = []models.Message{
	{Text: "hello", IsUser: true},
	{Text: "Which country?", IsUser: false},
	{Text: "China", IsUser: true},
}

func TestChatURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://gigachat.devices.sberbank.ru/api", "https://gigachat.devices.sberbank.ru/api/v1/chat/completions"},
		{"https://gigachat.devices.sberbank.ru/api/", "https://gigachat.devices.sberbank.ru/api/v1/chat/completions"},
		{"http://localhost:8080/v1", "http://localhost:8080/v1/chat/completions"},
		{"", DefaultBaseURL + "/v1/chat/completions"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, chatURL(tc.base), "base=%q", tc.base)
	}
}

func TestNewClient_NilTokens(t *testing.T) {
	_, err := NewClient(Config{}, nil, nil, nil)
	require.Error(t, err)
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(Config{}, &fakeTokens{}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultModel, c.cfg.Model)
	require.Equal(t, DefaultTemperature, c.cfg.Temperature)
	require.Equal(t, DefaultMaxTokens, c.cfg.MaxTokens)
	require.Equal(t, DefaultSystemPrompt(), c.cfg.SystemPrompt)
	require.NotEmpty(t, c.SessionID())
}

func TestSendMessage_RequestShape(t *testing.T) {
	srv := &scriptedServer{replies: []scriptedReply{{http.StatusOK, completion(`{"response":"hi"}`)}}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c := newTestClient(t, ts.URL, &fakeTokens{})
	_, err := c.SendMessage(context.Background(), history)
	require.NoError(t, err)

	require.Len(t, srv.requests, 1)
	req := srv.requests[0]
	require.Equal(t, "Bearer token-1", req.header.Get("Authorization"))
	require.Equal(t, c.SessionID(), req.header.Get("X-Session-ID"))
	require.Equal(t, DefaultClientID, req.header.Get("X-Client-ID"))
	require.Len(t, req.header.Get("X-Request-ID"), 36)

	require.Equal(t, "GigaChat", req.body["model"])
	require.Equal(t, false, req.body["stream"])
	require.Equal(t, 0.7, req.body["temperature"])
	require.Equal(t, float64(2000), req.body["max_tokens"])

	msgs := req.body["messages"].([]any)
	require.Len(t, msgs, 4)
	wantRoles := []string{"system", "user", "assistant", "user"}
	wantContent := []string{"be helpful", "hello", "Which country?", "China"}
	for i, m := range msgs {
		msg := m.(map[string]any)
		require.Equal(t, wantRoles[i], msg["role"])
		require.Equal(t, wantContent[i], msg["content"])
	}
}

func TestSendMessage_SessionIDStableAcrossCalls(t *testing.T) {
	srv := &scriptedServer{replies: []scriptedReply{{http.StatusOK, completion(`{"response":"hi"}`)}}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c := newTestClient(t, ts.URL, &fakeTokens{})
	for i := 0; i < 2; i++ {
		_, err := c.SendMessage(context.Background(), history)
		require.NoError(t, err)
	}

	require.Len(t, srv.requests, 2)
	require.Equal(t, srv.requests[0].header.Get("X-Session-ID"), srv.requests[1].header.Get("X-Session-ID"))
	require.NotEqual(t, srv.requests[0].header.Get("X-Request-ID"), srv.requests[1].header.Get("X-Request-ID"))
}

func TestSendMessage_StructuredReply(t *testing.T) {
	content := "```json\n{\"response\":\"Try sencha\",\"comment\":\"Use 70°C water\",\"suggestions\":[\"More\"],\"is_final_recommendation\":true}\n```"
	srv := &scriptedServer{replies: []scriptedReply{{http.StatusOK, completion(content)}}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	got, err := newTestClient(t, ts.URL, &fakeTokens{}).SendMessage(context.Background(), history)
	require.NoError(t, err)
	require.Equal(t, "Try sencha", got.Response)
	require.Equal(t, "Use 70°C water", got.Comment)
	require.Equal(t, []string{"More"}, got.Suggestions)
	require.True(t, got.IsFinalRecommendation)
	require.NotContains(t, got.RawJSON, "```")
}

func TestSendMessage_PlainTextFallback(t *testing.T) {
	srv := &scriptedServer{replies: []scriptedReply{{http.StatusOK, completion("just a sentence")}}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	got, err := newTestClient(t, ts.URL, &fakeTokens{}).SendMessage(context.Background(), history)
	require.NoError(t, err)
	require.Equal(t, "just a sentence", got.Response)
	require.Empty(t, got.Comment)
}

func TestSendMessage_RetriesOnceOn401(t *testing.T) {
	srv := &scriptedServer{replies: []scriptedReply{
		{http.StatusUnauthorized, `{"status":401,"message":"Token has expired"}`},
		{http.StatusOK, completion(`{"response":"hi"}`)},
	}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	tokens := &fakeTokens{tokens: []string{"old", "new"}}
	got, err := newTestClient(t, ts.URL, tokens).SendMessage(context.Background(), history)
	require.NoError(t, err)
	require.Equal(t, "hi", got.Response)

	require.Len(t, srv.requests, 2)
	require.Equal(t, []bool{false, true}, tokens.calls)
	require.Equal(t, "Bearer old", srv.requests[0].header.Get("Authorization"))
	require.Equal(t, "Bearer new", srv.requests[1].header.Get("Authorization"))
	require.NotEqual(t, srv.requests[0].header.Get("X-Request-ID"), srv.requests[1].header.Get("X-Request-ID"))
}

func TestSendMessage_Double401IsTerminal(t *testing.T) {
	srv := &scriptedServer{replies: []scriptedReply{
		{http.StatusUnauthorized, `unauthorized`},
		{http.StatusUnauthorized, `unauthorized`},
		{http.StatusOK, completion(`{"response":"never"}`)},
	}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	tokens := &fakeTokens{}
	_, err := newTestClient(t, ts.URL, tokens).SendMessage(context.Background(), history)

	var chatErr *Error
	require.ErrorAs(t, err, &chatErr)
	require.Equal(t, KindHTTP, chatErr.Kind)
	require.Equal(t, http.StatusUnauthorized, chatErr.StatusCode)
	require.Len(t, srv.requests, 2, "no third attempt")
	require.Len(t, tokens.calls, 2)
}

func TestSendMessage_RefreshFailure(t *testing.T) {
	srv := &scriptedServer{replies: []scriptedReply{{http.StatusUnauthorized, ``}}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	refreshErr := &auth.Error{Kind: auth.KindHTTP, StatusCode: http.StatusBadRequest, Message: "bad key"}
	tokens := &fakeTokens{failOn: 2, failWith: refreshErr}
	_, err := newTestClient(t, ts.URL, tokens).SendMessage(context.Background(), history)

	var chatErr *Error
	require.ErrorAs(t, err, &chatErr)
	require.Equal(t, KindAuth, chatErr.Kind)

	var authErr *auth.Error
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "bad key", authErr.Message)
	require.Len(t, srv.requests, 1)
}

func TestSendMessage_InitialTokenFailure(t *testing.T) {
	srv := &scriptedServer{replies: []scriptedReply{{http.StatusOK, completion(`{"response":"hi"}`)}}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	tokens := &fakeTokens{failOn: 1, failWith: &auth.Error{Kind: auth.KindEmptyToken}}
	_, err := newTestClient(t, ts.URL, tokens).SendMessage(context.Background(), history)

	var chatErr *Error
	require.ErrorAs(t, err, &chatErr)
	require.Equal(t, KindAuth, chatErr.Kind)
	require.Equal(t, "authorization error: empty access token", chatErr.Error())
	require.Empty(t, srv.requests)
}

func TestSendMessage_OtherStatusIsTerminal(t *testing.T) {
	srv := &scriptedServer{replies: []scriptedReply{{http.StatusInternalServerError, `boom`}}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	tokens := &fakeTokens{}
	_, err := newTestClient(t, ts.URL, tokens).SendMessage(context.Background(), history)

	var chatErr *Error
	require.ErrorAs(t, err, &chatErr)
	require.Equal(t, KindHTTP, chatErr.Kind)
	require.Equal(t, "HTTP 500: boom", chatErr.Error())
	require.Len(t, srv.requests, 1)
	require.Len(t, tokens.calls, 1)
}

func TestSendMessage_RemoteError(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"error":{"message":"model overloaded","type":"server_error"}}`, "model overloaded"},
		{`{"error":{"type":"server_error"}}`, "server_error"},
		{`{"error":{}}`, "Unknown error"},
		{`{"error":"quota exceeded"}`, "quota exceeded"},
	}
	for _, tc := range cases {
		srv := &scriptedServer{replies: []scriptedReply{{http.StatusOK, tc.body}}}
		ts := httptest.NewServer(srv)

		_, err := newTestClient(t, ts.URL, &fakeTokens{}).SendMessage(context.Background(), history)
		ts.Close()

		var chatErr *Error
		require.ErrorAs(t, err, &chatErr, "body=%s", tc.body)
		require.Equal(t, KindRemote, chatErr.Kind)
		require.Equal(t, tc.want, chatErr.Error())
	}
}

func TestSendMessage_EmptyResponse(t *testing.T) {
	for _, body := range []string{
		`{"choices":[]}`,
		`{}`,
		`{"choices":[{"message":{"role":"assistant"}}]}`,
		completion(`{"response":""}`),
		completion(`{"comment":"no response field"}`),
		completion("   "),
		`not json`,
	} {
		srv := &scriptedServer{replies: []scriptedReply{{http.StatusOK, body}}}
		ts := httptest.NewServer(srv)

		_, err := newTestClient(t, ts.URL, &fakeTokens{}).SendMessage(context.Background(), history)
		ts.Close()

		var chatErr *Error
		require.ErrorAs(t, err, &chatErr, "body=%s", body)
		require.Equal(t, KindEmptyResponse, chatErr.Kind, "body=%s", body)
	}
}

func TestSendMessage_NetworkError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := newTestClient(t, url, &fakeTokens{}).SendMessage(context.Background(), history)

	var chatErr *Error
	require.ErrorAs(t, err, &chatErr)
	require.Equal(t, KindNetwork, chatErr.Kind)
	require.False(t, errors.Is(err, context.Canceled))
}

func TestLoadSystemPrompt(t *testing.T) {
	prompt, err := LoadSystemPrompt("")
	require.NoError(t, err)
	require.Contains(t, prompt, "is_final_recommendation")

	_, err = LoadSystemPrompt("/nonexistent/prompt.txt")
	require.Error(t, err)
}
