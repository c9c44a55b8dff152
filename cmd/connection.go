// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/Thermoquad/amadou/pkg/espboot"
	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// OpenSerialPort opens a serial port configured for the ROM bootloader.
// go.bug.st ports satisfy espboot.Port directly.
func OpenSerialPort(portName string, baudRate int) (espboot.Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, espboot.ClassifyIOError(err)
	}

	return port, nil
}

// WebSocketPort adapts a WebSocket byte bridge to espboot.Port. A
// single goroutine owns ReadMessage for the life of the connection and
// feeds binary messages to Read; a deadline on the socket itself would
// permanently poison it. Read timeouts follow the Port contract: zero
// bytes and a nil error.
type WebSocketPort struct {
	conn      *websocket.Conn
	frames    chan []byte
	errc      chan error
	err       error
	buf       []byte
	bufOffset int
	timeout   time.Duration
}

func newWebSocketPort(conn *websocket.Conn) *WebSocketPort {
	w := &WebSocketPort{
		conn:   conn,
		frames: make(chan []byte, 16),
		errc:   make(chan error, 1),
	}
	go w.readLoop()
	return w
}

// readLoop parks the terminal read error and closes the frame channel
// on exit; ReadMessage errors are permanent.
func (w *WebSocketPort) readLoop() {
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.errc <- err
			close(w.frames)
			return
		}

		// The bridge only carries binary frames; skip anything else
		if messageType != websocket.BinaryMessage {
			continue
		}
		w.frames <- data
	}
}

func (w *WebSocketPort) Read(p []byte) (int, error) {
	// Drain buffered data from the previous message first
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	var expired <-chan time.Time
	if w.timeout > 0 {
		timer := time.NewTimer(w.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case data, ok := <-w.frames:
		if !ok {
			if w.err == nil {
				w.err = <-w.errc
			}
			return 0, w.err
		}
		w.buf = data
		w.bufOffset = copy(p, data)
		return w.bufOffset, nil
	case <-expired:
		return 0, nil
	}
}

func (w *WebSocketPort) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketPort) Close() error {
	return w.conn.Close()
}

func (w *WebSocketPort) SetReadTimeout(t time.Duration) error {
	w.timeout = t
	return nil
}

// OpenWebSocketPort opens a WebSocket bridge connection with HTTP Basic auth
func OpenWebSocketPort(wsURL, username, password string, skipSSLVerify bool) (espboot.Port, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %v", err)
	}

	return newWebSocketPort(conn), nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("AMADOU_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenPort opens either a serial or WebSocket port based on flags
func OpenPort() (espboot.Port, string, error) {
	if wsURL != "" {
		password := ""
		if wsUsername != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		port, err := OpenWebSocketPort(wsURL, wsUsername, password, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}

		return port, fmt.Sprintf("WebSocket: %s", wsURL), nil
	}

	if portName != "" {
		port, err := OpenSerialPort(portName, baudRate)
		if err != nil {
			return nil, "", err
		}

		return port, fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}

// retryConfig builds the command engine configuration from flags
func retryConfig() espboot.RetryConfig {
	cfg := espboot.DefaultRetryConfig()
	cfg.Timeout = cmdTimeout
	cfg.MaxAttempts = maxAttempts
	switch backoffMode {
	case "fixed":
		cfg.Backoff = espboot.BackoffFixed
	case "exponential":
		cfg.Backoff = espboot.BackoffExponential
	default:
		cfg.Backoff = espboot.BackoffNone
	}
	return cfg
}

// openSession opens the port and wires up the connection, the optional
// exchange trace, and a flasher. The returned cleanup closes both.
func openSession() (*espboot.Flasher, string, func(), error) {
	port, connInfo, err := OpenPort()
	if err != nil {
		return nil, "", nil, err
	}

	conn := espboot.NewConnection(port, retryConfig())

	var traceFile *os.File
	if tracePath != "" {
		traceFile, err = os.Create(tracePath)
		if err != nil {
			conn.Close()
			return nil, "", nil, fmt.Errorf("failed to create trace file: %v", err)
		}
		conn.SetTracer(espboot.NewTracer(traceFile))
	}

	cleanup := func() {
		conn.Close()
		if traceFile != nil {
			traceFile.Close()
		}
	}

	return espboot.NewFlasher(conn), connInfo, cleanup, nil
}
