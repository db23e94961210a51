package completion

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SawyerHood/openai-html-stream/internal/config"
	"github.com/SawyerHood/openai-html-stream/internal/errors"
	"github.com/SawyerHood/openai-html-stream/internal/htmlstream"
)

func testConfig(baseURL string) config.UpstreamConfig {
	return config.UpstreamConfig{
		BaseURL:           baseURL,
		APIKey:            "sk-test",
		Model:             "test-model",
		SystemPrompt:      "reply with html",
		Timeout:           5 * time.Second,
		RequestsPerSecond: 100,
		Burst:             10,
	}
}

func frame(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"choices": []interface{}{
			map[string]interface{}{"delta": map[string]string{"content": content}},
		},
	})
	return "data: " + string(b) + "\n\n"
}

// sseServer serves the given raw body lines, flushing after each.
func sseServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprint(w, line)
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collect(t *testing.T, src htmlstream.Source) ([]string, error) {
	t.Helper()
	var deltas []string
	for delta, err := range src {
		if err != nil {
			return deltas, err
		}
		deltas = append(deltas, delta)
	}
	return deltas, nil
}

func TestStreamYieldsDeltas(t *testing.T) {
	srv := sseServer(t,
		": keep-alive\n\n",
		frame("<html><he"),
		frame("ad></head>"),
		"event: ping\n\n",
		"data: {\"choices\":[]}\n\n",
		frame("<body>hi</body></html>"),
		"data: [DONE]\n\n",
		frame("ignored"),
	)

	client := NewClient(testConfig(srv.URL), nil)
	src, err := client.Stream(context.Background(), Request{Prompt: "a page"})
	require.NoError(t, err)

	deltas, err := collect(t, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"<html><he", "ad></head>", "", "<body>hi</body></html>"}, deltas)
}

func TestStreamThroughRewriter(t *testing.T) {
	srv := sseServer(t,
		frame("Here you go:\n```html\n<html><he"),
		frame("ad><title>x</title></head><body>"),
		frame("hello</body></html>\n```"),
		"data: [DONE]\n\n",
	)

	client := NewClient(testConfig(srv.URL), nil)
	src, err := client.Stream(context.Background(), Request{Prompt: "a page"})
	require.NoError(t, err)

	out, err := htmlstream.Collect(htmlstream.Rewrite(src))
	require.NoError(t, err)
	assert.Equal(t, "<!DOCTYPE html><html><head><title>x</title></head><body>hello</body></html>", out)
}

func TestStreamRequestShape(t *testing.T) {
	var got chatRequest
	var auth, accept, agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		accept = r.Header.Get("Accept")
		agent = r.Header.Get("User-Agent")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL+"/v1/"), nil)
	src, err := client.Stream(context.Background(), Request{Prompt: "a cat page", Model: "other-model"})
	require.NoError(t, err)
	_, err = collect(t, src)
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "text/event-stream", accept)
	assert.True(t, strings.HasPrefix(agent, "htmlstream/"))
	assert.Equal(t, "other-model", got.Model)
	assert.True(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, message{Role: "system", Content: "reply with html"}, got.Messages[0])
	assert.Equal(t, message{Role: "user", Content: "a cat page"}, got.Messages[1])
}

func TestStreamWithoutSystemPrompt(t *testing.T) {
	cfg := testConfig("http://unused")
	cfg.SystemPrompt = ""
	body := NewClient(cfg, nil).buildRequest(Request{Prompt: "p"})
	assert.Equal(t, "test-model", body.Model)
	assert.Equal(t, []message{{Role: "user", Content: "p"}}, body.Messages)
}

func TestStreamEmptyPrompt(t *testing.T) {
	client := NewClient(testConfig("http://unused"), nil)
	_, err := client.Stream(context.Background(), Request{Prompt: "  \n"})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestStreamUpstreamStatus(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":{"message":"nope"}}`, tt.status)
			}))
			defer srv.Close()

			_, err := NewClient(testConfig(srv.URL), nil).Stream(context.Background(), Request{Prompt: "p"})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUpstreamStatus)
			assert.Equal(t, tt.retryable, errors.IsRetryable(err))

			var se *errors.StreamError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.Context["status"])
			assert.Contains(t, se.Context["body"], "nope")
		})
	}
}

func TestStreamMalformedChunk(t *testing.T) {
	srv := sseServer(t, frame("ok"), "data: {not json\n\n", frame("never"))

	src, err := NewClient(testConfig(srv.URL), nil).Stream(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)

	deltas, err := collect(t, src)
	assert.Equal(t, []string{"ok"}, deltas)
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindProtocol))
}

func TestStreamErrorFrame(t *testing.T) {
	srv := sseServer(t, "data: {\"error\":{\"message\":\"overloaded\",\"type\":\"server_error\"}}\n\n")

	src, err := NewClient(testConfig(srv.URL), nil).Stream(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)

	_, err = collect(t, src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestStreamEndsWithoutDone(t *testing.T) {
	srv := sseServer(t, frame("a"), frame("b"))

	src, err := NewClient(testConfig(srv.URL), nil).Stream(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)

	deltas, err := collect(t, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, deltas)
}

func TestStreamBreakClosesBody(t *testing.T) {
	released := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprint(w, frame("first"))
		flusher.Flush()
		<-r.Context().Done()
		close(released)
	}))
	defer srv.Close()

	src, err := NewClient(testConfig(srv.URL), nil).Stream(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)

	for delta, err := range src {
		require.NoError(t, err)
		assert.Equal(t, "first", delta)
		break
	}

	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream connection was not released")
	}
}

func TestStreamOutlastsHeaderTimeout(t *testing.T) {
	parts := []string{"<body>", "a", "b", "c", "</body></html>"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for _, part := range parts {
			fmt.Fprint(w, frame(part))
			flusher.Flush()
			time.Sleep(100 * time.Millisecond)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Timeout = 250 * time.Millisecond

	src, err := NewClient(cfg, nil).Stream(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)

	deltas, err := collect(t, src)
	require.NoError(t, err)
	assert.Equal(t, parts, deltas)
}

func TestStreamHeaderTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := testConfig(srv.URL)
	cfg.Timeout = 100 * time.Millisecond

	_, err := NewClient(cfg, nil).Stream(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	var se *errors.StreamError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, errors.ErrCodeUpstreamRequest, se.Code)
	assert.Contains(t, err.Error(), "timeout awaiting response headers")
}

func TestStreamTruncatesDiagnostics(t *testing.T) {
	long := strings.Repeat("x", 2*maxErrorBody)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, long, http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(testConfig(srv.URL), nil).Stream(context.Background(), Request{Prompt: "p"})
	var se *errors.StreamError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, long[:maxErrorBody]+"...[TRUNCATED]", se.Context["body"])

	frameSrv := sseServer(t, "data: {"+long+"\n\n")
	src, err := NewClient(testConfig(frameSrv.URL), nil).Stream(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	_, err = collect(t, src)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "{"+long[:maxFrameExcerpt-1]+"...[TRUNCATED]", se.Context["frame"])
}

func TestStreamRateLimited(t *testing.T) {
	srv := sseServer(t, "data: [DONE]\n\n")

	cfg := testConfig(srv.URL)
	cfg.RequestsPerSecond = 1.0 / 3600
	cfg.Burst = 1
	client := NewClient(cfg, nil)

	src, err := client.Stream(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	_, err = collect(t, src)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Stream(ctx, Request{Prompt: "p"})
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindUpstream))
}

func TestStreamTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(testConfig(url), nil).Stream(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	var se *errors.StreamError
	require.True(t, stderrors.As(err, &se))
	assert.Equal(t, errors.ErrCodeUpstreamRequest, se.Code)
}

func TestDataField(t *testing.T) {
	tests := []struct {
		line string
		data string
		ok   bool
	}{
		{"data: {}", "{}", true},
		{"data:{}\r", "{}", true},
		{"data:  x", " x", true},
		{"", "", false},
		{": comment", "", false},
		{"event: message", "", false},
		{"id: 3", "", false},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.line), func(t *testing.T) {
			data, ok := dataField(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.data, data)
		})
	}
}
