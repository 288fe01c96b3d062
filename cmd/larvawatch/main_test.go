package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/example/larvawatch/internal/devicesim"
	"github.com/example/larvawatch/internal/logging"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LARVAWATCH_LOGGING_LEVEL", "error")
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newDevice(t *testing.T) (*devicesim.Server, string) {
	t.Helper()
	sim := devicesim.NewServer(devicesim.Options{Logger: logging.Discard()})
	srv := httptest.NewServer(sim.Handler())
	t.Cleanup(func() {
		sim.Stop()
		srv.Close()
	})
	return sim, srv.URL
}

func TestConfigDumpDefaults(t *testing.T) {
	out, err := runCLI(t, "config", "dump", "--defaults")
	require.NoError(t, err)

	var doc map[string]map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "http://127.0.0.1:8000", doc["device"]["base_url"])
	assert.Equal(t, "3s", doc["channels"]["notification_reconnect_delay"])
}

func TestConfigDumpHonorsFlags(t *testing.T) {
	out, err := runCLI(t, "--device", "http://10.1.1.1:8000", "config", "dump")
	require.NoError(t, err)
	assert.Contains(t, out, "http://10.1.1.1:8000")
}

func TestResolve(t *testing.T) {
	_, url := newDevice(t)
	host := strings.TrimPrefix(url, "http://")

	out, err := runCLI(t, "--device", url, "resolve")
	require.NoError(t, err)
	assert.Contains(t, out, "ws://"+host+"/ws/camera")
	assert.Contains(t, out, "ws://"+host+"/ws/camera-stats")
	assert.Contains(t, out, "ws://"+host+"/ws/notify")

	out, err = runCLI(t, "--device", url, "resolve", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"notification"`)
}

func TestResolve_Unreachable(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	_, err := runCLI(t, "--device", url, "resolve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot reach server")
}

func TestDelete(t *testing.T) {
	sim, url := newDevice(t)
	sim.Seed(5, 2)

	out, err := runCLI(t, "--device", url, "delete", "images")
	require.NoError(t, err)
	assert.Equal(t, "Deleted 5 images\n", out)

	out, err = runCLI(t, "--device", url, "delete", "notifications")
	require.NoError(t, err)
	assert.Equal(t, "Deleted 2 notifications\n", out)
}

func TestTap_Notifications(t *testing.T) {
	_, url := newDevice(t)

	out, err := runCLI(t, "--device", url, "tap", "notification", "-n", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "connected to ")
	assert.Contains(t, out, `#1 {"title":"Heartbeat","message":"First"}`)
	assert.Contains(t, out, "#2 ")
}

func TestTap_UnknownChannel(t *testing.T) {
	_, url := newDevice(t)
	_, err := runCLI(t, "--device", url, "tap", "audio")
	assert.Error(t, err)
}
