package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe(t *testing.T) {
	ws := newWorkspace(t)

	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	require.NoError(t, cmd.ParseFlags(ws.args()))
	require.NoError(t, opts.resolve(cmd))
	opts.Config.ListenAddr = "127.0.0.1:0"
	cmd.SetOut(&bytes.Buffer{})

	addrCh := make(chan net.Addr, 1)
	serveOpts := &ServeOptions{RootOptions: opts, OnListen: func(a net.Addr) { addrCh <- a }}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, serveOpts, cmd)
	}()

	var base string
	select {
	case a := <-addrCh:
		base = "http://" + a.String()
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not start listening")
	}
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: 5 * time.Second}

	resp, err := client.Post(base+"/v1/events", "application/yaml", strings.NewReader(eventsYAML))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	// Application is asynchronous.
	var project map[string]any
	require.Eventually(t, func() bool {
		resp, err := client.Get(base + "/v1/projects/" + projectP)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		project = nil
		if err := json.NewDecoder(resp.Body).Decode(&project); err != nil {
			return false
		}
		return project["state"] == "settled"
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "150", project["raised_amount"])

	resp, err = client.Get(base + "/metrics")
	require.NoError(t, err)
	metrics, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(metrics), `tally_events_applied_total{kind="donation"} 2`)
	assert.Contains(t, string(metrics), "tally_duplicate_events_total 1")
	assert.Contains(t, string(metrics), "go_goroutines")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not shut down")
	}

	// Events applied by the server are durable and replay cleanly.
	out, _, err := execute(t, ws.args("replay")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Replayed 4 event(s)")
}

func TestServeListenError(t *testing.T) {
	ws := newWorkspace(t)
	_, _, err := execute(t, ws.args("serve", "--listen", "not-an-address")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to listen")
}
