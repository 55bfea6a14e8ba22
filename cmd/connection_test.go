// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/evkit/pkg/config"
	"github.com/Thermoquad/evkit/pkg/evkit"
)

// ============================================================
// Test Helpers
// ============================================================

var testUpgrader = websocket.Upgrader{}

func wsServer(t *testing.T, handle func(c *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		handle(c)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func openTestConn(t *testing.T, url string) Connection {
	t.Helper()
	conn, err := OpenWebSocketConnection(url, "", "", false)
	if err != nil {
		t.Fatalf("OpenWebSocketConnection: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitClosed drains the client side until the server close is observed
func waitClosed(c *websocket.Conn) {
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

// ============================================================
// WebSocket Connection Tests
// ============================================================

func TestWebSocketConnection_BasicAuth(t *testing.T) {
	auth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		auth <- user + ":" + pass
		c, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		waitClosed(c)
	}))
	defer srv.Close()

	conn, err := OpenWebSocketConnection("ws"+strings.TrimPrefix(srv.URL, "http"), "admin", "secret", false)
	if err != nil {
		t.Fatalf("OpenWebSocketConnection: %v", err)
	}
	defer conn.Close()

	if got := <-auth; got != "admin:secret" {
		t.Errorf("credentials = %q, want admin:secret", got)
	}
}

func TestWebSocketConnection_RejectsScheme(t *testing.T) {
	if _, err := OpenWebSocketConnection("http://localhost/evkit", "", "", false); err == nil {
		t.Error("expected error for http:// URL")
	}
}

func TestWebSocketConnection_ReadSkipsTextAndBuffers(t *testing.T) {
	url := wsServer(t, func(c *websocket.Conn) {
		c.WriteMessage(websocket.TextMessage, []byte("hello"))
		c.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4, 5})
		waitClosed(c)
	})
	conn := openTestConn(t, url)

	var got []byte
	buf := make([]byte, 3)
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < 5 && time.Now().Before(deadline) {
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("read % X, want 01 02 03 04 05", got)
	}
}

func TestWebSocketConnection_ReadTimeout(t *testing.T) {
	url := wsServer(t, waitClosed)
	conn := openTestConn(t, url)

	start := time.Now()
	n, err := conn.Read(make([]byte, 8))
	if n != 0 || err != nil {
		t.Fatalf("Read = %d, %v; want 0, nil", n, err)
	}
	if elapsed := time.Since(start); elapsed < pollInterval/2 {
		t.Errorf("Read returned after %v, before the poll interval", elapsed)
	}
}

func TestWebSocketConnection_ServerClose(t *testing.T) {
	url := wsServer(t, func(c *websocket.Conn) {
		c.WriteMessage(websocket.BinaryMessage, []byte{0xAA})
	})
	conn := openTestConn(t, url)

	buf := make([]byte, 8)
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for err == nil && time.Now().Before(deadline) {
		_, err = conn.Read(buf)
	}
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("err = %v, want ErrConnectionClosed", err)
	}

	// Later reads keep failing
	if _, err := conn.Read(buf); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("second read err = %v", err)
	}
}

func TestWebSocketConnection_LinkQueryVersion(t *testing.T) {
	url := wsServer(t, func(c *websocket.Conn) {
		decoder := evkit.NewDecoder()
		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			for _, b := range data {
				p, _ := decoder.DecodeByte(b)
				if p != nil && p.Type() == evkit.MsgVersionReq {
					c.WriteMessage(websocket.BinaryMessage, evkit.EncodePacket(evkit.NewVersionResponse(2, 3, true)))
				}
			}
		}
	})
	conn := openTestConn(t, url)

	link := evkit.NewLink(conn, evkit.WithReceiveTimeout(2*time.Second))
	version, err := link.QueryVersion()
	if err != nil {
		t.Fatalf("QueryVersion: %v", err)
	}
	if version.Major != 2 || version.Minor != 3 || !version.StreamSupport {
		t.Errorf("version = %+v", version)
	}
}

// ============================================================
// Connection Selection Tests
// ============================================================

func TestOpenConnection_RequiresTarget(t *testing.T) {
	_, _, err := openConnection(config.ConnectionOpt{Baud: 115200})
	if err == nil || !strings.Contains(err.Error(), "--port or --url") {
		t.Errorf("err = %v", err)
	}
}

func TestOpenConnection_WebSocketInfo(t *testing.T) {
	url := wsServer(t, waitClosed)

	conn, info, err := openConnection(config.ConnectionOpt{URL: url})
	if err != nil {
		t.Fatalf("openConnection: %v", err)
	}
	defer conn.Close()
	if info != "WebSocket: "+url {
		t.Errorf("info = %q", info)
	}
}
