package endpoint

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/larvawatch/internal/httpclient"
	"github.com/example/larvawatch/internal/logging"
)

func newDevice(t *testing.T, camera, notify http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(CameraInfoPath, camera)
	mux.HandleFunc(NotificationInfoPath, notify)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func reply(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

func newResolver(baseURL string) *Resolver {
	cfg := httpclient.DefaultConfig()
	cfg.Logger = logging.Discard()
	return NewResolver(httpclient.New(cfg), baseURL, "", logging.Discard())
}

func TestResolve_Success(t *testing.T) {
	server := newDevice(t,
		reply(`{"ip":"192.168.1.20","port":8000,"websocket_url":"ws://192.168.1.20:8000/ws/camera","status":"online"}`),
		reply(`{"ip":"192.168.1.20","port":8000,"websocket_url":"ws://192.168.1.20:8000/ws/notify","status":"online"}`),
	)

	set, err := newResolver(server.URL).Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Endpoint{Address: "192.168.1.20", Port: 8000, URL: "ws://192.168.1.20:8000/ws/camera"}, set.Video)
	assert.Equal(t, Endpoint{Address: "192.168.1.20", Port: 8000, URL: "ws://192.168.1.20:8000/ws/camera-stats"}, set.Stats)
	assert.Equal(t, Endpoint{Address: "192.168.1.20", Port: 8000, URL: "ws://192.168.1.20:8000/ws/notify"}, set.Notification)
}

func TestResolve_StatsFollowsCameraSchemeAndCustomPath(t *testing.T) {
	server := newDevice(t,
		reply(`{"ip":"cam.local","port":8443,"websocket_url":"wss://cam.local:8443/ws/camera"}`),
		reply(`{"websocket_url":"wss://notify.local/ws/notify"}`),
	)

	cfg := httpclient.DefaultConfig()
	cfg.Logger = logging.Discard()
	r := NewResolver(httpclient.New(cfg), server.URL+"/", "/ws/stats", logging.Discard())

	set, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "wss://cam.local:8443/ws/stats", set.Stats.URL)
	assert.Equal(t, "notify.local", set.Notification.Address)
	assert.Equal(t, 443, set.Notification.Port)
}

func TestResolve_Failures(t *testing.T) {
	okCamera := reply(`{"ip":"10.0.0.1","port":8000,"websocket_url":"ws://10.0.0.1:8000/ws/camera"}`)
	okNotify := reply(`{"websocket_url":"ws://10.0.0.1:8000/ws/notify"}`)
	failing := func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}

	tests := []struct {
		name   string
		camera http.HandlerFunc
		notify http.HandlerFunc
		lookup string
	}{
		{"camera non-success", failing, okNotify, "camera"},
		{"notification non-success", okCamera, failing, "notification"},
		{"camera bad json", reply(`{`), okNotify, "camera"},
		{"camera missing ip", reply(`{"port":8000,"websocket_url":"ws://x:8000/ws/camera"}`), okNotify, "camera"},
		{"camera bad port", reply(`{"ip":"x","port":0,"websocket_url":"ws://x:8000/ws/camera"}`), okNotify, "camera"},
		{"camera http scheme", reply(`{"ip":"x","port":8000,"websocket_url":"http://x:8000/ws/camera"}`), okNotify, "camera"},
		{"notification missing url", okCamera, reply(`{}`), "notification"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newDevice(t, tt.camera, tt.notify)

			_, err := newResolver(server.URL).Resolve(context.Background())
			require.ErrorIs(t, err, ErrResolution)
			var resErr *ResolutionError
			require.ErrorAs(t, err, &resErr)
			assert.Equal(t, tt.lookup, resErr.Lookup)
		})
	}
}

func TestResolve_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := newResolver(url).Resolve(context.Background())
	require.ErrorIs(t, err, ErrResolution)
	assert.Contains(t, err.Error(), "cannot reach server")
}
