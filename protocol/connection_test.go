// File: protocol/connection_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Conn and Upgrader against a real gorilla client.

package protocol_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-echo/api"
	"github.com/momentics/hioload-echo/protocol"
)

// upgradeServer runs an httptest server whose handler hands every upgraded
// Conn (or handshake error) to the test.
func upgradeServer(t *testing.T, cfg protocol.Config) (string, <-chan *protocol.Conn, <-chan error) {
	t.Helper()
	up := protocol.NewUpgrader(cfg)
	conns := make(chan *protocol.Conn, 4)
	errs := make(chan error, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r)
		if err != nil {
			errs <- err
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)
	return srv.URL, conns, errs
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func testConfig() protocol.Config {
	cfg := protocol.DefaultConfig()
	cfg.PingInterval = 0
	return cfg
}

func receive(t *testing.T, ch <-chan *protocol.Conn) *protocol.Conn {
	t.Helper()
	select {
	case c := <-ch:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection upgraded")
		return nil
	}
}

func TestConnRecvSendPreservesType(t *testing.T) {
	url, conns, _ := upgradeServer(t, testConfig())
	client, _, err := websocket.DefaultDialer.Dial(wsURL(url)+"/any/path", nil)
	require.NoError(t, err)
	defer client.Close()
	srv := receive(t, conns)
	assert.Regexp(t, `^conn-\d+$`, srv.ID())
	assert.NotNil(t, srv.RemoteAddr())

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("hello")))
	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte{}))

	msg, err := srv.Recv()
	require.NoError(t, err)
	assert.Equal(t, api.TextMessage, msg.Type)
	assert.Equal(t, "hello", string(msg.Payload))
	require.NoError(t, srv.Send(msg))

	msg, err = srv.Recv()
	require.NoError(t, err)
	assert.Equal(t, api.BinaryMessage, msg.Type)
	assert.Empty(t, msg.Payload)
	require.NoError(t, srv.Send(msg))

	mt, p, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Equal(t, "hello", string(p))
	mt, p, err = client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Empty(t, p)

	assert.Equal(t, protocol.ConnStats{MessagesIn: 2, MessagesOut: 2, BytesIn: 5, BytesOut: 5}, srv.Stats())
}

func TestConnRecvCleanCloseIsEOF(t *testing.T) {
	for _, code := range []int{websocket.CloseNormalClosure, websocket.CloseGoingAway} {
		url, conns, _ := upgradeServer(t, testConfig())
		client, _, err := websocket.DefaultDialer.Dial(wsURL(url), nil)
		require.NoError(t, err)
		srv := receive(t, conns)

		require.NoError(t, client.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, "bye"), time.Now().Add(time.Second)))
		_, err = srv.Recv()
		assert.Equal(t, io.EOF, err, "close code %d", code)
		client.Close()
	}
}

func TestConnSendsAfterPeerCloseUntilClosed(t *testing.T) {
	url, conns, _ := upgradeServer(t, testConfig())
	client, _, err := websocket.DefaultDialer.Dial(wsURL(url), nil)
	require.NoError(t, err)
	defer client.Close()
	srv := receive(t, conns)

	for _, p := range []string{"one", "two", "three"} {
		require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(p)))
	}
	require.NoError(t, client.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	var read []api.Message
	for {
		msg, err := srv.Recv()
		if err != nil {
			assert.Equal(t, io.EOF, err)
			break
		}
		read = append(read, msg)
	}
	require.Len(t, read, 3)
	assert.Equal(t, websocket.CloseNormalClosure, srv.PeerCloseCode())

	// the close reply has not been sent yet, so echoes still reach the peer
	for _, m := range read {
		require.NoError(t, srv.Send(m))
	}
	require.NoError(t, srv.Close())

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	for _, want := range []string{"one", "two", "three"} {
		_, p, err := client.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, want, string(p))
	}
	_, _, err = client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestConnRecvAbruptCloseIsConnectionError(t *testing.T) {
	url, conns, _ := upgradeServer(t, testConfig())
	client, _, err := websocket.DefaultDialer.Dial(wsURL(url), nil)
	require.NoError(t, err)
	srv := receive(t, conns)

	require.NoError(t, client.UnderlyingConn().Close())
	_, err = srv.Recv()
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrConnection))
	var apiErr *api.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, api.CloseAbnormalClosure, apiErr.Context["code"])
}

func TestConnReadLimit(t *testing.T) {
	cfg := testConfig()
	cfg.ReadLimit = 8
	url, conns, _ := upgradeServer(t, cfg)
	client, _, err := websocket.DefaultDialer.Dial(wsURL(url), nil)
	require.NoError(t, err)
	defer client.Close()
	srv := receive(t, conns)

	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, make([]byte, 16)))
	_, err = srv.Recv()
	assert.True(t, errors.Is(err, api.ErrConnection))

	_, _, err = client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseMessageTooBig), "got %v", err)
}

func TestConnKeepaliveTimesOutSilentPeer(t *testing.T) {
	cfg := testConfig()
	cfg.PingInterval = 30 * time.Millisecond
	cfg.PingTimeout = 30 * time.Millisecond
	url, conns, _ := upgradeServer(t, cfg)
	// The client never reads, so it never answers pings.
	client, _, err := websocket.DefaultDialer.Dial(wsURL(url), nil)
	require.NoError(t, err)
	defer client.Close()
	srv := receive(t, conns)

	start := time.Now()
	_, err = srv.Recv()
	assert.True(t, errors.Is(err, api.ErrConnection))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestConnKeepaliveSurvivesRespondingPeer(t *testing.T) {
	cfg := testConfig()
	cfg.PingInterval = 20 * time.Millisecond
	cfg.PingTimeout = 40 * time.Millisecond
	url, conns, _ := upgradeServer(t, cfg)
	client, _, err := websocket.DefaultDialer.Dial(wsURL(url), nil)
	require.NoError(t, err)
	defer client.Close()
	srv := receive(t, conns)

	// Both sides keep reading: the client's default ping handler answers
	// with pongs and the server's pong handler extends its read deadline.
	served := make(chan error, 1)
	go func() {
		msg, err := srv.Recv()
		if err == nil {
			err = srv.Send(msg)
		}
		served <- err
	}()
	echoed := make(chan string, 1)
	go func() {
		_, p, err := client.ReadMessage()
		if err == nil {
			echoed <- string(p)
		}
	}()

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("still here")))

	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive")
	}
	select {
	case p := <-echoed:
		assert.Equal(t, "still here", p)
	case <-time.After(2 * time.Second):
		t.Fatal("no echo")
	}
}

func TestConnCloseWithReasonCompletesHandshake(t *testing.T) {
	url, conns, _ := upgradeServer(t, testConfig())
	client, _, err := websocket.DefaultDialer.Dial(wsURL(url), nil)
	require.NoError(t, err)
	defer client.Close()
	srv := receive(t, conns)

	recvErr := make(chan error, 1)
	go func() {
		_, err := srv.Recv()
		recvErr <- err
	}()
	require.NoError(t, srv.CloseWithReason(api.CloseGoingAway, "shutdown"))

	// The client's read echoes the close frame back.
	_, _, err = client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	select {
	case err := <-recvErr:
		assert.Equal(t, io.EOF, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server Recv did not observe close reply")
	}
	require.NoError(t, srv.Close())
	assert.NoError(t, srv.Close())
	select {
	case <-srv.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestUpgradeRejectsPlainHTTP(t *testing.T) {
	url, _, errs := upgradeServer(t, testConfig())
	resp, err := http.Get(url)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	select {
	case err := <-errs:
		assert.True(t, errors.Is(err, api.ErrHandshake))
	case <-time.After(2 * time.Second):
		t.Fatal("no handshake error reported")
	}
}
