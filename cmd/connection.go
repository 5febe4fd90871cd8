// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/Thermoquad/cn105emu/internal/config"
	"github.com/Thermoquad/cn105emu/pkg/cn105"
	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// Connection provides a common interface for reading/writing bytes from serial or WebSocket.
// Reads return 0, nil when nothing arrived within the link read timeout.
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketConnection wraps a WebSocket connection for byte-level reading.
// A pump goroutine owns ReadMessage so Read can give up after the timeout
// without poisoning the connection.
type WebSocketConnection struct {
	conn        *websocket.Conn
	msgs        chan []byte
	errc        chan error
	readTimeout time.Duration
	buf         []byte
	bufOffset   int
	closed      bool // Track if connection has failed/closed
}

func newWebSocketConnection(conn *websocket.Conn, readTimeout time.Duration) *WebSocketConnection {
	w := &WebSocketConnection{
		conn:        conn,
		msgs:        make(chan []byte, 64),
		errc:        make(chan error, 1),
		readTimeout: readTimeout,
	}
	go w.pump()
	return w
}

func (w *WebSocketConnection) pump() {
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.errc <- err
			close(w.msgs)
			return
		}
		// The UART bridge only carries binary messages
		if messageType != websocket.BinaryMessage {
			continue
		}
		w.msgs <- data
	}
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	// Return immediately if connection is known to be closed
	if w.closed {
		return 0, ErrConnectionClosed
	}

	// If we have buffered data, return it first
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	timer := time.NewTimer(w.readTimeout)
	defer timer.Stop()

	select {
	case data, ok := <-w.msgs:
		if !ok {
			w.closed = true
			err := <-w.errc
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, ErrConnectionClosed
			}
			return 0, err
		}
		w.buf = data
		w.bufOffset = copy(p, data)
		return w.bufOffset, nil
	case <-timer.C:
		return 0, nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	err := w.conn.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// serialMode builds the port settings from the link config
func serialMode(link config.LinkConfig) *serial.Mode {
	mode := &serial.Mode{
		BaudRate: link.Baud,
		DataBits: link.DataBits,
		Parity:   serial.EvenParity,
		StopBits: serial.OneStopBit,
	}
	switch strings.ToLower(link.Parity) {
	case "none":
		mode.Parity = serial.NoParity
	case "odd":
		mode.Parity = serial.OddParity
	}
	if link.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	return mode
}

// OpenSerialConnection opens a serial port connection
func OpenSerialConnection(link config.LinkConfig) (Connection, error) {
	port, err := serial.Open(link.Port, serialMode(link))
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", link.Port, err)
	}
	if err := port.SetReadTimeout(link.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", link.Port, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(link config.LinkConfig, password string) (Connection, error) {
	// Parse and validate URL
	u, err := url.Parse(link.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	// Validate scheme
	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	// Create dialer with timeout
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	// Configure TLS for wss://
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: link.NoSSLVerify,
		}
	}

	// Build HTTP headers with Basic auth
	headers := http.Header{}
	if link.Username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(link.Username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	// Connect
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, link.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return newWebSocketConnection(conn, link.ReadTimeout), nil
}

// GetPassword retrieves a password from the environment or prompts the user
func GetPassword(envVar, prompt string) (string, error) {
	// First check environment variable
	if pw := os.Getenv(envVar); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprintf(os.Stderr, "%s: ", prompt)

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// OpenConnection opens either a serial or WebSocket connection based on config
func OpenConnection(link config.LinkConfig) (Connection, string, error) {
	if link.URL != "" {
		// WebSocket mode
		password := ""
		if link.Username != "" {
			var err error
			password, err = GetPassword("CN105_PASSWORD", "Password")
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := OpenWebSocketConnection(link, password)
		if err != nil {
			return nil, "", err
		}

		return conn, fmt.Sprintf("WebSocket: %s", link.URL), nil
	}

	if link.Port != "" {
		// Serial mode
		conn, err := OpenSerialConnection(link)
		if err != nil {
			return nil, "", err
		}

		return conn, fmt.Sprintf("Serial: %s @ %d baud %d%s%d", link.Port, link.Baud,
			link.DataBits, strings.ToUpper(link.Parity[:1]), link.StopBits), nil
	}

	return nil, "", errors.New("either --port or --url must be specified")
}

// ErrReplyTimeout is returned by awaitFrame when the deadline passes
var ErrReplyTimeout = errors.New("timed out waiting for frame")

// awaitFrame reads from conn until a valid frame accepted by match arrives.
// Invalid frames are passed to onInvalid when it is set.
func awaitFrame(conn io.Reader, dec *cn105.Decoder, timeout time.Duration,
	match func(*cn105.Frame) bool, onInvalid func(error)) (*cn105.Frame, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 128)

	for time.Now().Before(deadline) {
		n, err := conn.Read(buf)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			frame, decodeErr := dec.DecodeByte(buf[i])
			if decodeErr != nil {
				if onInvalid != nil {
					onInvalid(decodeErr)
				}
				continue
			}
			if frame != nil && (match == nil || match(frame)) {
				return frame, nil
			}
		}
	}
	return nil, ErrReplyTimeout
}
