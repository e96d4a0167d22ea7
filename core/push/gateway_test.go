package push

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

func newFCMServer(t *testing.T, status int, got *map[string]any, path *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, got)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte(`{"name":"projects/demo/messages/42"}`))
			return
		}
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota"}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFCMGateway_Send(t *testing.T) {
	var body map[string]any
	var path string
	srv := newFCMServer(t, http.StatusOK, &body, &path)

	gw, err := NewFCM(context.Background(), "demo",
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	id, err := gw.Send(context.Background(), Message{
		Topic: "new_stories",
		Title: "New bedtime story added 🌙",
		Body:  "Forest is now available.",
		Data:  map[string]string{"storyId": "forest-01", "route": "whats_new"},
	})
	require.NoError(t, err)
	assert.Equal(t, "projects/demo/messages/42", id)
	assert.Equal(t, "/v1/projects/demo/messages:send", path)

	msg := body["message"].(map[string]any)
	assert.Equal(t, "new_stories", msg["topic"])
	assert.Equal(t, "Forest is now available.", msg["notification"].(map[string]any)["body"])
	assert.Equal(t, "forest-01", msg["data"].(map[string]any)["storyId"])
}

func TestFCMGateway_Errors(t *testing.T) {
	var body map[string]any
	var path string
	srv := newFCMServer(t, http.StatusTooManyRequests, &body, &path)

	gw, err := NewFCM(context.Background(), "demo",
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	_, err = gw.Send(context.Background(), Message{Topic: "new_stories"})
	assert.ErrorContains(t, err, "quota exceeded")

	_, err = gw.Send(context.Background(), Message{})
	assert.ErrorIs(t, err, ErrTopicRequired)

	_, err = NewFCM(context.Background(), "")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	gw, err := New(context.Background(), Config{Driver: DriverLog, RatePerSecond: 100, TimeoutSeconds: 1}, zap.NewNop())
	require.NoError(t, err)
	id, err := gw.Send(context.Background(), Message{Topic: "t"})
	require.NoError(t, err)
	assert.Equal(t, "log/t", id)

	_, err = New(context.Background(), Config{Driver: "pigeon"}, nil)
	assert.Error(t, err)
}

type countingGateway struct{ calls int }

func (c *countingGateway) Send(context.Context, Message) (string, error) {
	c.calls++
	return "ok", nil
}

func TestWithRateLimit(t *testing.T) {
	inner := &countingGateway{}
	gw := WithRateLimit(inner, 0.001)

	_, err := gw.Send(context.Background(), Message{Topic: "t"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = gw.Send(ctx, Message{Topic: "t"})
	assert.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}
