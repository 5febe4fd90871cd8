// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package status

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/cn105emu/internal/syncutil"
	"github.com/Thermoquad/cn105emu/pkg/cn105"
	"github.com/Thermoquad/cn105emu/pkg/emulator"
	"github.com/Thermoquad/cn105emu/pkg/heatpump"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu   syncutil.Mutex
	snap emulator.Snapshot
}

func (f *fakeSource) Snapshot() emulator.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSource) set(snap emulator.Snapshot) {
	f.mu.Lock()
	f.snap = snap
	f.mu.Unlock()
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testSnapshot() emulator.Snapshot {
	store := heatpump.NewStore(quietLogger())
	store.Remote.SetMode(0x03)

	stats := cn105.NewStatistics()
	stats.TotalFrames = 12
	stats.ValidFrames = 11
	stats.ChecksumErrors = 1
	stats.Commands[cn105.CmdInfoRequest] = 7

	return emulator.Snapshot{
		Time:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		States: store.Snapshots(),
		Reconcile: emulator.ReconcileStatus{
			SystemUp:        true,
			RemoteInControl: true,
			Takeovers:       2,
		},
		Stats:  stats,
		Recent: []string{"CONNECT (0x5A) len=1"},
	}
}

func newTestServer(t *testing.T) (*Server, *fakeSource, *httptest.Server) {
	t.Helper()
	src := &fakeSource{snap: testSnapshot()}
	s := New("127.0.0.1:0", src, quietLogger())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, src, ts
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServer_Index(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, body := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "<td>remote</td>")
	assert.Contains(t, body, "<td>COOL</td>")
	assert.Contains(t, body, "CONNECT (0x5A) len=1")

	resp, _ = get(t, ts.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_APIState(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, body := get(t, ts.URL+"/api/state")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got struct {
		States []heatpump.Snapshot       `json:"states"`
		Recon  emulator.ReconcileStatus `json:"reconcile"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	require.Len(t, got.States, 3)
	assert.Equal(t, heatpump.NameRemote, got.States[0].Name)
	assert.Equal(t, "COOL", got.States[0].Mode)
	assert.Equal(t, heatpump.NameEmulator, got.States[1].Name)
	assert.True(t, got.Recon.RemoteInControl)
	assert.Equal(t, uint64(2), got.Recon.Takeovers)
}

func TestServer_APIStateRejectsPost(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/state", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, body := get(t, ts.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `cn105_frames{kind="total"} 12`)
	assert.Contains(t, body, `cn105_frames{kind="checksum_error"} 1`)
	assert.Contains(t, body, `cn105_commands{command="INFO_REQUEST"} 7`)
	assert.Contains(t, body, `cn105_state_field{field="mode",instance="remote"} 3`)
	assert.Contains(t, body, `cn105_state_field{field="mode",instance="emulator"} 2`)
	assert.Contains(t, body, `cn105_reconcile_flag{flag="remote_in_control"} 1`)
	assert.Contains(t, body, `cn105_reconcile_flag{flag="engine_up"} 0`)
	assert.Contains(t, body, `cn105_reconcile_transitions{kind="takeover"} 2`)
}

func TestMetrics_UpdateWithoutStats(t *testing.T) {
	m := NewMetrics()
	snap := testSnapshot()
	snap.Stats = nil
	assert.NotPanics(t, func() { m.Update(snap) })

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "cn105_state_field")
	assert.NotContains(t, names, "cn105_frames")
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	return got
}

func TestServer_WebSocketInitialAndBroadcast(t *testing.T) {
	s, src, ts := newTestServer(t)
	conn := dialWS(t, ts)

	first := readSnapshot(t, conn)
	assert.Contains(t, first, "states")
	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, time.Millisecond)

	next := testSnapshot()
	next.Reconcile.Takeovers = 9
	src.set(next)
	s.broadcast(src.Snapshot())

	got := readSnapshot(t, conn)
	recon := got["reconcile"].(map[string]any)
	assert.Equal(t, 9.0, recon["takeovers"])
}

func TestServer_WebSocketClientLeaves(t *testing.T) {
	s, _, ts := newTestServer(t)
	conn := dialWS(t, ts)
	readSnapshot(t, conn)
	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return s.ClientCount() == 0 }, time.Second, time.Millisecond)
}

func TestServer_ServePushesAndShutsDown(t *testing.T) {
	src := &fakeSource{snap: testSnapshot()}
	s := New("", src, quietLogger())
	s.SetPushInterval(10 * time.Millisecond)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "ws://" + ln.Addr().String() + "/ws"
	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		conn, _, err = websocket.DefaultDialer.Dial(url, nil)
		return err == nil
	}, time.Second, 5*time.Millisecond)
	defer conn.Close()

	readSnapshot(t, conn) // initial
	readSnapshot(t, conn) // pushed

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, 0, s.ClientCount())
}

func TestServer_ShutdownClosesClientConnections(t *testing.T) {
	src := &fakeSource{snap: testSnapshot()}
	s := New("", src, quietLogger())
	s.SetPushInterval(time.Hour)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "ws://" + ln.Addr().String() + "/ws"
	var conns []*websocket.Conn
	for i := 0; i < 3; i++ {
		var conn *websocket.Conn
		require.Eventually(t, func() bool {
			conn, _, err = websocket.DefaultDialer.Dial(url, nil)
			return err == nil
		}, time.Second, 5*time.Millisecond)
		defer conn.Close()
		readSnapshot(t, conn)
		conns = append(conns, conn)
	}
	require.Eventually(t, func() bool { return s.ClientCount() == 3 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, 0, s.ClientCount())

	// every connection was closed by the server, not left to time out
	for _, conn := range conns {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := conn.ReadMessage()
		require.Error(t, err)
		var ne net.Error
		assert.False(t, errors.As(err, &ne) && ne.Timeout(), "read timed out: %v", err)
	}
}

func TestServer_RefusesClientsWhileClosing(t *testing.T) {
	s, _, ts := newTestServer(t)
	s.closeClients()

	conn := dialWS(t, ts)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.Equal(t, 0, s.ClientCount())
}
