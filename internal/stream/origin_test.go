package stream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blackmouse572/skin-doctor/internal/detection"
	"github.com/blackmouse572/skin-doctor/internal/landmarker/landmarkertest"
)

func originRequest(host, origin string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "http://"+host+"/v1/capture/stream", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

func TestAllowOrigins(t *testing.T) {
	assert.Nil(t, AllowOrigins(nil))
	assert.Nil(t, AllowOrigins([]string{" ", ""}))

	check := AllowOrigins([]string{"https://app.skindoctor.io/", "HTTP://localhost:3000"})
	require.NotNil(t, check)
	assert.True(t, check(originRequest("api.skindoctor.io", "https://app.skindoctor.io")))
	assert.True(t, check(originRequest("api.skindoctor.io", "http://localhost:3000")))
	assert.True(t, check(originRequest("api.skindoctor.io", "https://api.skindoctor.io")))
	assert.True(t, check(originRequest("api.skindoctor.io", "")))
	assert.False(t, check(originRequest("api.skindoctor.io", "https://evil.example")))
	assert.False(t, check(originRequest("api.skindoctor.io", "http://app.skindoctor.io")))

	open := AllowOrigins([]string{"*"})
	assert.True(t, open(originRequest("api.skindoctor.io", "https://evil.example")))
}

func TestHubHonoursAllowedOrigins(t *testing.T) {
	hub := NewHub(Config{
		Load:         landmarkertest.StaticLoader(&landmarkertest.StaticDetector{}),
		NewScheduler: func() detection.Scheduler { return detection.NewIntervalScheduler(200) },
		Logger:       zap.NewNop(),
		CheckOrigin:  AllowOrigins([]string{"https://app.skindoctor.io"}),
	})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, "user-1")
	}))
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://app.skindoctor.io"}})
	require.NoError(t, err)
	conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
