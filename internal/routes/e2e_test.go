package routes

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/internal/chatclient"
	"chatsync/internal/models"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

// serve runs the app on a loopback port and returns its base URL.
func (e *testEnv) serve(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go e.app.Listener(ln)
	t.Cleanup(func() {
		e.app.ShutdownWithTimeout(time.Second)
	})
	return "http://" + ln.Addr().String()
}

type participant struct {
	user    *models.User
	api     *chatclient.API
	socket  *chatclient.Socket
	session *chatclient.Session
}

func join(t *testing.T, baseURL, name, email string) *participant {
	t.Helper()
	ctx := context.Background()

	api, err := chatclient.NewAPI(baseURL)
	require.NoError(t, err)
	user, err := api.Signup(ctx, name, email, "secret123")
	require.NoError(t, err)

	socket := api.NewSocket()
	session := chatclient.NewSession(user.ID, api, socket)
	session.HighlightWindow = time.Hour
	session.Subscribe()

	return &participant{user: user, api: api, socket: socket, session: session}
}

func (p *participant) connect(t *testing.T) {
	t.Helper()
	require.NoError(t, p.socket.Connect(context.Background()))
	t.Cleanup(func() { p.socket.Close() })
}

func TestLivePushBetweenSessions(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	baseURL := env.serve(t)
	ctx := context.Background()

	alice := join(t, baseURL, "Alice", "alice@example.com")
	bob := join(t, baseURL, "Bob", "bob@example.com")

	bob.connect(t)
	require.NoError(t, bob.session.LoadPeers(ctx))
	alice.connect(t)

	require.Eventually(t, func() bool {
		st := bob.session.Snapshot()
		return st.IsOnline(alice.user.ID) && st.IsOnline(bob.user.ID)
	}, waitFor, tick, "bob sees both users online")

	online, err := alice.api.Online(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{alice.user.ID, bob.user.ID}, online)

	// Bob has no conversation open: the push only counts as unread
	first, err := alice.api.Send(ctx, bob.user.ID, chatclient.SendRequest{Text: "hello"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return bob.session.Snapshot().UnreadCounts[alice.user.ID] == 1
	}, waitFor, tick)
	assert.Empty(t, bob.session.Snapshot().Messages)

	// Opening the conversation clears unread and loads history
	require.NoError(t, bob.session.SelectPeer(ctx, alice.user.ID))
	st := bob.session.Snapshot()
	assert.Zero(t, st.UnreadCounts[alice.user.ID])
	require.Len(t, st.Messages, 1)
	assert.Equal(t, first.ID, st.Messages[0].ID)
	assert.False(t, st.Peers[0].LastMessageAt.IsZero())

	// With the conversation open the push is appended and highlighted
	second, err := alice.api.Send(ctx, bob.user.ID, chatclient.SendRequest{Text: "are you there?"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(bob.session.Snapshot().Messages) == 2
	}, waitFor, tick)
	st = bob.session.Snapshot()
	assert.Equal(t, second.ID, st.Messages[1].ID)
	assert.True(t, st.Messages[1].IsNew)
	assert.Zero(t, st.UnreadCounts[alice.user.ID])

	// Edits and deletes reach the open conversation
	require.NoError(t, alice.session.SelectPeer(ctx, bob.user.ID))
	require.NoError(t, alice.session.Edit(ctx, first.ID, "hello bob"))
	require.Eventually(t, func() bool {
		msgs := bob.session.Snapshot().Messages
		return len(msgs) == 2 && msgs[0].Text == "hello bob" && msgs[0].IsEdited
	}, waitFor, tick)

	own := alice.session.Snapshot().Messages
	require.Len(t, own, 2)
	assert.Equal(t, "hello bob", own[0].Text)
	assert.True(t, own[0].IsEdited, "editor's cached copy")

	fetched, err := bob.api.Conversation(ctx, alice.user.ID)
	require.NoError(t, err)
	require.Len(t, fetched, 2)
	assert.Equal(t, fetched[0], bob.session.Snapshot().Messages[0].Message, "pushed copy matches a fresh fetch")

	require.NoError(t, alice.session.Delete(ctx, second.ID))
	require.Eventually(t, func() bool {
		return len(bob.session.Snapshot().Messages) == 1
	}, waitFor, tick)

	// Bob's own send is not pushed back to him
	_, err = bob.session.Send(ctx, chatclient.SendRequest{Text: "yes"})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, bob.session.Snapshot().Messages, 2)

	// Alice leaving is broadcast
	require.NoError(t, alice.socket.Close())
	require.Eventually(t, func() bool {
		st := bob.session.Snapshot()
		return !st.IsOnline(alice.user.ID)
	}, waitFor, tick)
}

func TestOfflineReceiverFetchesLater(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	baseURL := env.serve(t)
	ctx := context.Background()

	alice := join(t, baseURL, "Alice", "alice@example.com")
	carol := join(t, baseURL, "Carol", "carol@example.com")

	sent, err := alice.api.Send(ctx, carol.user.ID, chatclient.SendRequest{Text: "see you tomorrow"})
	require.NoError(t, err)

	carol.connect(t)
	require.NoError(t, carol.session.LoadPeers(ctx))
	require.NoError(t, carol.session.SelectPeer(ctx, alice.user.ID))

	st := carol.session.Snapshot()
	require.Len(t, st.Messages, 1)
	assert.Equal(t, sent.ID, st.Messages[0].ID)
	assert.False(t, st.Messages[0].IsNew)
	require.Len(t, st.Peers, 1)
	assert.Equal(t, sent.CreatedAt.Unix(), st.Peers[0].LastMessageAt.Unix())
}

func TestReconnectReplacesSocket(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	baseURL := env.serve(t)
	ctx := context.Background()

	alice := join(t, baseURL, "Alice", "alice@example.com")
	bob := join(t, baseURL, "Bob", "bob@example.com")
	bob.connect(t)

	// A second tab for bob takes over his push channel
	tab := bob.api.NewSocket()
	tabSession := chatclient.NewSession(bob.user.ID, bob.api, tab)
	tabSession.Subscribe()
	require.NoError(t, tab.Connect(ctx))
	t.Cleanup(func() { tab.Close() })

	select {
	case <-bob.socket.Done():
	case <-time.After(waitFor):
		t.Fatal("previous socket was not closed")
	}

	_, err := alice.api.Send(ctx, bob.user.ID, chatclient.SendRequest{Text: "which tab?"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return tabSession.Snapshot().UnreadCounts[alice.user.ID] == 1
	}, waitFor, tick)
	assert.Zero(t, bob.session.Snapshot().UnreadCounts[alice.user.ID])

	online, err := env.hub.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{bob.user.ID}, online)
}
