package client

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeBrosOfficial/collab/pkg/host"
	"github.com/DeBrosOfficial/collab/pkg/protocol"
	"github.com/DeBrosOfficial/collab/pkg/store"
	"github.com/DeBrosOfficial/collab/pkg/transport"
)

func newDocs(t *testing.T) *store.Documents {
	t.Helper()
	kv, err := store.Open(store.MemoryPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return store.NewDocuments(kv, nil)
}

func recvHost(t *testing.T, conn transport.Conn) protocol.Message {
	t.Helper()
	select {
	case msg, ok := <-conn.Inbox():
		require.True(t, ok, "client connection closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the client")
		return nil
	}
}

func expectSilence(t *testing.T, conn transport.Conn) {
	t.Helper()
	select {
	case msg, ok := <-conn.Inbox():
		if ok {
			t.Fatalf("unexpected %s from client", msg.Event())
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func waitEvent(t *testing.T, c *Client, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", kind)
			return Event{}
		}
	}
}

func waitLoad(t *testing.T, docs *store.Documents, name, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		got, err := docs.Load(context.Background(), name)
		if err != nil {
			return false
		}
		var a, b interface{}
		return json.Unmarshal(got, &a) == nil && json.Unmarshal([]byte(want), &b) == nil && assert.ObjectsAreEqual(a, b)
	}, 2*time.Second, 10*time.Millisecond, "collection %s never became %s", name, want)
}

// attachToScriptedHost connects c to a pipe the test drives as the Host.
func attachToScriptedHost(t *testing.T, c *Client, socketID string) transport.Conn {
	t.Helper()
	clientEnd, hostEnd := transport.Pipe()
	t.Cleanup(func() { hostEnd.Close() })
	_, err := c.Attach(clientEnd)
	require.NoError(t, err)

	reg := recvHost(t, hostEnd).(protocol.RegisterClient)
	assert.Equal(t, c.opts.Name, reg.Name)
	require.NoError(t, hostEnd.Send(protocol.InitialState{SocketID: socketID}))
	require.NoError(t, c.WaitReady(context.Background()))
	return hostEnd
}

func TestHydrationDoesNotEcho(t *testing.T) {
	ctx := context.Background()
	docs := newDocs(t)
	bob := New(docs, Options{Name: "Bob"}, nil)
	hostEnd := attachToScriptedHost(t, bob, "s-bob")

	require.NoError(t, hostEnd.Send(protocol.SyncFullState{
		TargetSocketID: "s-bob",
		State:          protocol.State{"pages": json.RawMessage(`[{"id":"home"}]`)},
	}))
	waitEvent(t, bob, EventHydrated)

	require.NoError(t, hostEnd.Send(protocol.ForwardedUpdate{Type: "posts", Data: json.RawMessage(`[1]`), OriginSocketID: "s-alice"}))
	assert.Equal(t, "posts", waitEvent(t, bob, EventUpdated).Collection)

	require.NoError(t, hostEnd.Send(protocol.HydrateState{State: protocol.State{"settings": json.RawMessage(`{}`)}}))
	waitEvent(t, bob, EventHydrated)

	expectSilence(t, hostEnd)
	waitLoad(t, docs, "pages", `[{"id":"home"}]`)
	waitLoad(t, docs, "posts", `[1]`)

	// A local edit is forwarded exactly once.
	require.NoError(t, bob.Save(ctx, "pages", json.RawMessage(`[{"id":"about"}]`)))
	upd := recvHost(t, hostEnd).(protocol.DataUpdate)
	assert.Equal(t, "pages", upd.Type)
	assert.JSONEq(t, `[{"id":"about"}]`, string(upd.Data))
	expectSilence(t, hostEnd)
}

func TestSyncForAnotherSocketIsIgnored(t *testing.T) {
	docs := newDocs(t)
	bob := New(docs, Options{Name: "Bob"}, nil)
	hostEnd := attachToScriptedHost(t, bob, "s-bob")

	require.NoError(t, hostEnd.Send(protocol.SyncFullState{
		TargetSocketID: "s-carol",
		State:          protocol.State{"pages": json.RawMessage(`[]`)},
	}))
	require.NoError(t, hostEnd.Send(protocol.ForwardedUpdate{Type: "acl", Data: json.RawMessage(`[]`), OriginSocketID: "s-bob"}))
	require.NoError(t, hostEnd.Send(protocol.BuildStatus{IsBuildInProgress: true}))
	waitEvent(t, bob, EventBuildStatus)

	_, err := docs.Load(context.Background(), "pages")
	assert.Error(t, err)
	_, err = docs.Load(context.Background(), "acl")
	assert.Error(t, err)
	assert.True(t, bob.BuildStatus().IsBuildInProgress)
}

func TestRepeatedInitialStateRefreshesMirror(t *testing.T) {
	bob := New(newDocs(t), Options{Name: "Bob"}, nil)
	hostEnd := attachToScriptedHost(t, bob, "s-bob")

	require.NoError(t, hostEnd.Send(protocol.InitialState{
		SocketID: "s-bob",
		Locks:    []protocol.LockInfo{{FieldID: "hero.title", SocketID: "s-alice", ClientName: "Alice"}},
	}))
	require.NoError(t, hostEnd.Send(protocol.BuildStatus{IsBuildInProgress: true}))
	waitEvent(t, bob, EventBuildStatus)

	assert.True(t, bob.Connected())
	require.NoError(t, bob.WaitReady(context.Background()))
	holder, ok := bob.LockHolder("hero.title")
	require.True(t, ok)
	assert.Equal(t, "Alice", holder.ClientName)
}

func TestWaitReadyFailsWhenConnectionEnds(t *testing.T) {
	bob := New(newDocs(t), Options{Name: "Bob"}, nil)
	clientEnd, hostEnd := transport.Pipe()
	done, err := bob.Attach(clientEnd)
	require.NoError(t, err)
	recvHost(t, hostEnd)

	waitErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		waitErr <- bob.WaitReady(ctx)
	}()
	time.Sleep(20 * time.Millisecond)
	hostEnd.Close()

	select {
	case err := <-waitErr:
		require.Error(t, err)
		assert.NotErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("WaitReady kept waiting after the connection ended")
	}
	<-done
	assert.False(t, bob.Connected())
}

func TestLockEventsAndMirror(t *testing.T) {
	bob := New(newDocs(t), Options{Name: "Bob"}, nil)
	hostEnd := attachToScriptedHost(t, bob, "s-bob")

	require.NoError(t, bob.RequestLock("hero.title"))
	assert.Equal(t, protocol.RequestLock{FieldID: "hero.title", ClientName: "Bob"}, recvHost(t, hostEnd))

	require.NoError(t, hostEnd.Send(protocol.LockDenied{FieldID: "hero.title", Holder: "Alice"}))
	ev := waitEvent(t, bob, EventLockDenied)
	assert.Equal(t, "Alice", ev.Holder)
	assert.Equal(t, "Alice is currently editing this field", ev.Message)

	require.NoError(t, hostEnd.Send(protocol.LockUpdate{Status: protocol.LockLocked, FieldID: "hero.title", ClientName: "Alice", SocketID: "s-alice"}))
	waitEvent(t, bob, EventLocksChanged)
	l, ok := bob.LockHolder("hero.title")
	require.True(t, ok)
	assert.Equal(t, "Alice", l.ClientName)

	require.NoError(t, hostEnd.Send(protocol.LockUpdate{Status: protocol.LockUnlocked, FieldID: "hero.title"}))
	waitEvent(t, bob, EventLocksChanged)
	assert.Empty(t, bob.Locks())
}

func TestRosterMirror(t *testing.T) {
	bob := New(newDocs(t), Options{Name: "Bob"}, nil)
	clientEnd, hostEnd := transport.Pipe()
	defer hostEnd.Close()
	_, err := bob.Attach(clientEnd)
	require.NoError(t, err)
	recvHost(t, hostEnd)

	require.NoError(t, hostEnd.Send(protocol.InitialState{
		SocketID: "s-bob",
		Clients: []protocol.PeerInfo{
			{SocketID: "s-alice", ClientName: "Alice", IsHost: true},
			{SocketID: "s-bob", ClientName: "Bob"},
		},
		Locks: []protocol.LockInfo{{FieldID: "f", SocketID: "s-alice", ClientName: "Alice"}},
	}))
	require.NoError(t, bob.WaitReady(context.Background()))
	assert.Len(t, bob.Peers(), 2)
	assert.Len(t, bob.Locks(), 1)

	require.NoError(t, hostEnd.Send(protocol.ClientJoined{Client: protocol.PeerInfo{SocketID: "s-carol", ClientName: "Carol"}}))
	require.NoError(t, hostEnd.Send(protocol.ClientLeft{SocketID: "s-alice"}))
	require.Eventually(t, func() bool {
		peers := bob.Peers()
		return len(peers) == 2 && peers[0].SocketID == "s-bob" && peers[1].SocketID == "s-carol"
	}, time.Second, 10*time.Millisecond)
}

func TestDetachedEditsStayLocal(t *testing.T) {
	ctx := context.Background()
	docs := newDocs(t)
	bob := New(docs, Options{Name: "Bob"}, nil)

	require.NoError(t, bob.Save(ctx, "pages", json.RawMessage(`[{"id":"draft"}]`)))
	err := bob.RequestLock("f")
	assert.ErrorIs(t, err, ErrNotConnected)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "request-lock", opErr.Op)

	hostEnd := attachToScriptedHost(t, bob, "s-bob")
	expectSilence(t, hostEnd)

	stored, err := docs.Load(ctx, "pages")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"draft"}]`, string(stored))
}

func TestDisconnectResetsMirror(t *testing.T) {
	bob := New(newDocs(t), Options{Name: "Bob"}, nil)
	clientEnd, hostEnd := transport.Pipe()
	done, err := bob.Attach(clientEnd)
	require.NoError(t, err)
	recvHost(t, hostEnd)
	require.NoError(t, hostEnd.Send(protocol.InitialState{SocketID: "s-bob", Locks: []protocol.LockInfo{{FieldID: "f"}}}))
	require.NoError(t, bob.WaitReady(context.Background()))
	assert.True(t, bob.Connected())

	_, err = bob.Attach(clientEnd)
	assert.ErrorIs(t, err, ErrAlreadyAttached)

	hostEnd.Close()
	select {
	case reason := <-done:
		assert.ErrorIs(t, reason, transport.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("done never fired")
	}
	assert.False(t, bob.Connected())
	assert.Empty(t, bob.Locks())
	assert.ErrorIs(t, bob.WaitReady(context.Background()), ErrNotConnected)
}

// Alice hosts with pages in her store; Bob and Carol join with empty stores
// and converge on Alice's state, then on each other's edits.
func TestJoinHydratesAndRelaysThroughHost(t *testing.T) {
	ctx := context.Background()
	aliceDocs := newDocs(t)
	require.NoError(t, aliceDocs.Save(ctx, "pages", json.RawMessage(`[{"id":"home","title":"Welcome"}]`), store.SaveOptions{}))

	rt := host.New(host.Options{}, aliceDocs, nil, nil)
	defer rt.Stop(ctx)

	alice := New(aliceDocs, Options{Name: "Alice"}, nil)
	loop, err := rt.Loopback()
	require.NoError(t, err)
	_, err = alice.AttachHost(loop)
	require.NoError(t, err)
	require.NoError(t, alice.WaitReady(ctx))

	join := func(name string) (*Client, *store.Documents) {
		docs := newDocs(t)
		c := New(docs, Options{Name: name}, nil)
		clientEnd, hostEnd := transport.Pipe()
		require.NoError(t, rt.Attach(hostEnd))
		_, err := c.Attach(clientEnd)
		require.NoError(t, err)
		require.NoError(t, c.WaitReady(ctx))
		waitEvent(t, c, EventHydrated)
		return c, docs
	}

	bob, bobDocs := join("Bob")
	carol, carolDocs := join("Carol")
	waitLoad(t, bobDocs, "pages", `[{"id":"home","title":"Welcome"}]`)
	waitLoad(t, carolDocs, "pages", `[{"id":"home","title":"Welcome"}]`)

	require.NoError(t, bob.Save(ctx, "posts", json.RawMessage(`[{"id":"p1"}]`)))
	waitLoad(t, aliceDocs, "posts", `[{"id":"p1"}]`)
	waitLoad(t, carolDocs, "posts", `[{"id":"p1"}]`)

	require.NoError(t, alice.Save(ctx, "settings", json.RawMessage(`{"title":"Site"}`)))
	waitLoad(t, bobDocs, "settings", `{"title":"Site"}`)
	waitLoad(t, carolDocs, "settings", `{"title":"Site"}`)

	require.NoError(t, carol.RequestLock("pages.home.title"))
	waitEvent(t, carol, EventLockGranted)
	require.Eventually(t, func() bool {
		l, ok := bob.LockHolder("pages.home.title")
		return ok && l.ClientName == "Carol"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bob.RequestLock("pages.home.title"))
	assert.Equal(t, "Carol", waitEvent(t, bob, EventLockDenied).Holder)
	assert.Len(t, alice.Peers(), 3)
}
