package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"yieldbot/internal/llm"
	"yieldbot/internal/messagestore/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func verifyNoLeaks(t *testing.T) {
	goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func newTestClient(endpoint string, timeout time.Duration) *Client {
	return NewClient(Options{
		APIKey:          "test-key",
		Endpoint:        endpoint,
		Model:           "gemini-test",
		Timeout:         timeout,
		Acknowledgement: "Understood.",
	})
}

func TestGenerateSendsWireFormat(t *testing.T) {
	defer verifyNoLeaks(t)

	type captured struct {
		key string
		req generateRequest
	}
	requests := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var c captured
		c.key = r.URL.Query().Get("key")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &c.req)
		requests <- c
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hello saver"}]}}],"usageMetadata":{"totalTokenCount":57}}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, time.Second)
	out := client.Generate(context.Background(), []llm.Turn{
		{Role: models.RoleUser, Text: "hi"},
		{Role: models.RoleAssistant, Text: "hello"},
		{Role: models.RoleUser, Text: "what is apy"},
	}, "BASE")

	require.True(t, out.OK(), "unexpected failure: %v", out.Failure)
	assert.Equal(t, "Hello saver", out.Text)
	assert.Equal(t, "gemini-test", out.Model)
	assert.Equal(t, 57, out.Tokens)

	c := <-requests
	got := c.req
	assert.Equal(t, "test-key", c.key)

	require.Len(t, got.Contents, 5)
	assert.Equal(t, "user", got.Contents[0].Role)
	assert.Equal(t, "SYSTEM INSTRUCTIONS:\nBASE\n\nPlease acknowledge you understand these instructions.", got.Contents[0].Parts[0].Text)
	assert.Equal(t, "model", got.Contents[1].Role)
	assert.Equal(t, "Understood.", got.Contents[1].Parts[0].Text)
	assert.Equal(t, []string{"user", "model", "user"}, []string{got.Contents[2].Role, got.Contents[3].Role, got.Contents[4].Role})
	assert.Equal(t, "what is apy", got.Contents[4].Parts[0].Text)
	assert.Equal(t, defaultGeneration, got.GenerationConfig)
}

func TestGenerateFailures(t *testing.T) {
	defer verifyNoLeaks(t)

	tests := []struct {
		name   string
		status int
		body   string
		kind   llm.FailureKind
	}{
		{"non-200 status", http.StatusServiceUnavailable, `{"error":"overloaded"}`, llm.FailureStatus},
		{"malformed body", http.StatusOK, `not json`, llm.FailureMalformed},
		{"missing candidates", http.StatusOK, `{"promptFeedback":{}}`, llm.FailureEmptyCandidates},
		{"empty candidates", http.StatusOK, `{"candidates":[]}`, llm.FailureEmptyCandidates},
		{"candidate without parts", http.StatusOK, `{"candidates":[{"content":{"parts":[]}}]}`, llm.FailureMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			out := newTestClient(srv.URL, time.Second).Generate(context.Background(), nil, "BASE")
			require.False(t, out.OK())
			assert.Equal(t, tt.kind, out.Failure.Kind)
			if tt.kind == llm.FailureStatus {
				assert.Equal(t, tt.status, out.Failure.StatusCode)
				assert.Equal(t, tt.body, out.Failure.Body)
			}
		})
	}
}

func TestGenerateTimeoutIsTransportFailure(t *testing.T) {
	defer verifyNoLeaks(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	out := newTestClient(srv.URL, 50*time.Millisecond).Generate(context.Background(), nil, "BASE")
	require.False(t, out.OK())
	assert.Equal(t, llm.FailureTransport, out.Failure.Kind)
}

func TestGenerateIgnoresCallerCancellation(t *testing.T) {
	defer verifyNoLeaks(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"still here"}]}}]}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := newTestClient(srv.URL, time.Second).Generate(ctx, nil, "BASE")
	require.True(t, out.OK())
	assert.Equal(t, "still here", out.Text)
}

func TestGenerateNotConfigured(t *testing.T) {
	out := NewClient(Options{Endpoint: "http://localhost"}).Generate(context.Background(), nil, "BASE")
	require.False(t, out.OK())
	assert.Equal(t, llm.FailureTransport, out.Failure.Kind)

	out = NewClient(Options{APIKey: "k"}).Generate(context.Background(), nil, "BASE")
	require.False(t, out.OK())
	assert.Equal(t, llm.FailureTransport, out.Failure.Kind)
}

func TestGenerateUnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out := newTestClient(url, time.Second).Generate(context.Background(), nil, "BASE")
	require.False(t, out.OK())
	assert.Equal(t, llm.FailureTransport, out.Failure.Kind)
}
