// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/cn105emu/internal/config"
	"github.com/Thermoquad/cn105emu/pkg/cn105"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

// bridgeServer echoes binary messages, sends a text banner first and closes
// normally when it receives "bye"
func bridgeServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "bye" {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			conn.WriteMessage(mt, data)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func dialBridge(t *testing.T, ts *httptest.Server) Connection {
	t.Helper()
	link := config.DefaultConfig().Link
	link.URL = "ws" + strings.TrimPrefix(ts.URL, "http")
	link.ReadTimeout = 20 * time.Millisecond
	conn, err := OpenWebSocketConnection(link, "")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn Connection, want int) []byte {
	t.Helper()
	var got []byte
	buf := make([]byte, 4)
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < want && time.Now().Before(deadline) {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	return got
}

func TestWebSocketConnection_ReadTimeoutReturnsZero(t *testing.T) {
	conn := dialBridge(t, bridgeServer(t))

	start := time.Now()
	n, err := conn.Read(make([]byte, 16))
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWebSocketConnection_EchoAndBuffering(t *testing.T) {
	conn := dialBridge(t, bridgeServer(t))

	frame := connectRequest().Bytes()
	n, err := conn.Write(frame)
	require.NoError(t, err)
	assert.Equal(t, len(frame), n)

	// 4-byte reads drain the buffered 7-byte message across calls
	assert.Equal(t, frame, readUntil(t, conn, len(frame)))
}

func TestWebSocketConnection_NormalCloseIsConnectionClosed(t *testing.T) {
	conn := dialBridge(t, bridgeServer(t))

	_, err := conn.Write([]byte("bye"))
	require.NoError(t, err)

	var readErr error
	deadline := time.Now().Add(2 * time.Second)
	for readErr == nil && time.Now().Before(deadline) {
		_, readErr = conn.Read(make([]byte, 16))
	}
	assert.ErrorIs(t, readErr, ErrConnectionClosed)

	_, err = conn.Read(make([]byte, 16))
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestOpenWebSocketConnection_BadScheme(t *testing.T) {
	link := config.DefaultConfig().Link
	link.URL = "http://example.invalid/uart"
	_, err := OpenWebSocketConnection(link, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported URL scheme")
}

func TestOpenConnection_NeedsPortOrURL(t *testing.T) {
	link := config.DefaultConfig().Link
	link.Port = ""
	_, _, err := OpenConnection(link)
	assert.Error(t, err)
}

func TestSerialMode(t *testing.T) {
	link := config.DefaultConfig().Link
	mode := serialMode(link)
	assert.Equal(t, 2400, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serial.EvenParity, mode.Parity)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)

	link.Parity = "NONE"
	link.StopBits = 2
	mode = serialMode(link)
	assert.Equal(t, serial.NoParity, mode.Parity)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)

	link.Parity = "odd"
	assert.Equal(t, serial.OddParity, serialMode(link).Parity)
}

func TestAwaitFrame(t *testing.T) {
	garbage := []byte{0x00, 0x11}
	bad := []byte{0xFC, 0x5A, 0x01, 0x30, 0x01, 0x00, 0x00}
	good := connectRequest().Bytes()

	r := &chunkReader{chunks: [][]byte{garbage, bad, good[:3], good[3:]}}
	invalid := 0
	f, err := awaitFrame(r, cn105.NewDecoder(), time.Second, nil, func(error) { invalid++ })
	require.NoError(t, err)
	assert.Equal(t, good, f.Bytes())
	assert.Equal(t, 1, invalid)
}

func TestAwaitFrame_MatchAndTimeout(t *testing.T) {
	r := &chunkReader{chunks: [][]byte{connectRequest().Bytes()}}
	_, err := awaitFrame(r, cn105.NewDecoder(), 20*time.Millisecond, func(f *cn105.Frame) bool {
		return f.Command() == cn105.CmdInfoReport
	}, nil)
	assert.ErrorIs(t, err, ErrReplyTimeout)
}
