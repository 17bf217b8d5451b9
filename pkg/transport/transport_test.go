package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeBrosOfficial/collab/pkg/protocol"
)

func recv(t *testing.T, c Conn) protocol.Message {
	t.Helper()
	select {
	case msg, ok := <-c.Inbox():
		require.True(t, ok, "inbox closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func waitClosed(t *testing.T, c Conn) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-c.Inbox():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("inbox not closed")
		}
	}
}

func TestPipeDeliversInOrder(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	for _, f := range []string{"f1", "f2", "f3"} {
		require.NoError(t, a.Send(protocol.RequestLock{FieldID: f, ClientName: "Alice"}))
	}
	for _, f := range []string{"f1", "f2", "f3"} {
		assert.Equal(t, protocol.RequestLock{FieldID: f, ClientName: "Alice"}, recv(t, b))
	}

	require.NoError(t, b.Send(protocol.LockGranted{FieldID: "f1"}))
	assert.Equal(t, protocol.LockGranted{FieldID: "f1"}, recv(t, a))
}

func TestPipeCloseEndsBothSides(t *testing.T) {
	a, b := Pipe()
	require.NoError(t, b.Close())

	waitClosed(t, a)
	waitClosed(t, b)
	assert.ErrorIs(t, a.Send(protocol.RequestBuild{}), ErrClosed)
	assert.ErrorIs(t, a.Err(), ErrClosed)
}

func TestPipeSlowConsumer(t *testing.T) {
	a, b := PipeSize(1)
	queue := a.(*pipeEnd).peer.queue

	// Nobody reads b: the pump holds the first message, the queue the second.
	require.NoError(t, a.Send(protocol.RequestBuild{}))
	require.Eventually(t, func() bool { return len(queue) == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, a.Send(protocol.CancelBuild{}))

	assert.ErrorIs(t, a.Send(protocol.RequestBuild{}), ErrSlowConsumer)
	assert.ErrorIs(t, b.Err(), ErrSlowConsumer)
	waitClosed(t, b)
}

func TestWebsocketRoundTrip(t *testing.T) {
	accepted := make(chan Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Upgrade(w, r, Options{}, nil)
		if err != nil {
			return
		}
		accepted <- c
	}))
	defer srv.Close()

	d := &WebsocketDialer{HandshakeTimeout: time.Second}
	client, err := d.Dial(context.Background(), strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	defer client.Close()

	var server Conn
	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted")
	}

	require.NoError(t, client.Send(protocol.RegisterClient{Name: "Bob"}))
	assert.Equal(t, protocol.RegisterClient{Name: "Bob"}, recv(t, server))

	require.NoError(t, server.Send(protocol.LockDenied{FieldID: "hero", Holder: "Alice"}))
	assert.Equal(t, protocol.LockDenied{FieldID: "hero", Holder: "Alice"}, recv(t, client))

	require.NoError(t, server.Close())
	waitClosed(t, client)
	assert.Error(t, client.Err())
}

func TestWebsocketOversizedFrameClosesConn(t *testing.T) {
	accepted := make(chan Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Upgrade(w, r, Options{MaxMessageSize: 1024}, nil)
		if err != nil {
			return
		}
		accepted <- c
	}))
	defer srv.Close()

	d := &WebsocketDialer{HandshakeTimeout: time.Second}
	client, err := d.Dial(context.Background(), strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	defer client.Close()
	server := <-accepted

	require.NoError(t, client.Send(protocol.RequestLock{FieldID: "hero", ClientName: "Bob"}))
	assert.Equal(t, protocol.RequestLock{FieldID: "hero", ClientName: "Bob"}, recv(t, server))

	big := json.RawMessage(`"` + strings.Repeat("x", 4096) + `"`)
	require.NoError(t, client.Send(protocol.DataUpdate{Type: "pages", Data: big}))
	waitClosed(t, server)
	assert.ErrorIs(t, server.Err(), websocket.ErrReadLimit)
}

func TestWebsocketDialHandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d := &WebsocketDialer{HandshakeTimeout: time.Second}
	_, err := d.Dial(context.Background(), strings.TrimPrefix(srv.URL, "http://"))
	var hs *HandshakeError
	require.ErrorAs(t, err, &hs)
	assert.Equal(t, http.StatusNotFound, hs.Status)
}
