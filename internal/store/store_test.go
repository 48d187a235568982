package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/internal/models"
)

type backend interface {
	MessageStore
	Users() UserStore
}

// runStoreSuite exercises the behavior every backend must share.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) backend) {
	ctx := context.Background()

	mkUsers := func(t *testing.T, s backend, names ...string) []*models.User {
		out := make([]*models.User, len(names))
		for i, n := range names {
			u, err := s.Users().Create(ctx, models.UserDraft{
				FullName:     n,
				Email:        n + "@example.com",
				PasswordHash: "hash",
			})
			require.NoError(t, err)
			out[i] = u
		}
		return out
	}

	t.Run("conversation is symmetric and ordered", func(t *testing.T) {
		s := newStore(t)
		u := mkUsers(t, s, "ann", "ben", "cat")

		var ids []string
		for i := 0; i < 5; i++ {
			from, to := u[0], u[1]
			if i%2 == 1 {
				from, to = u[1], u[0]
			}
			m, err := s.Create(ctx, models.MessageDraft{SenderID: from.ID, ReceiverID: to.ID, Text: "m"})
			require.NoError(t, err)
			ids = append(ids, m.ID)
		}
		_, err := s.Create(ctx, models.MessageDraft{SenderID: u[0].ID, ReceiverID: u[2].ID, Text: "other"})
		require.NoError(t, err)

		ab, err := s.FindConversation(ctx, u[0].ID, u[1].ID)
		require.NoError(t, err)
		ba, err := s.FindConversation(ctx, u[1].ID, u[0].ID)
		require.NoError(t, err)

		require.Len(t, ab, 5)
		assert.Equal(t, ab, ba)
		for i, m := range ab {
			assert.Equal(t, ids[i], m.ID)
		}
	})

	t.Run("empty conversation is not nil", func(t *testing.T) {
		s := newStore(t)
		u := mkUsers(t, s, "ann", "ben")

		conv, err := s.FindConversation(ctx, u[0].ID, u[1].ID)
		require.NoError(t, err)
		assert.NotNil(t, conv)
		assert.Empty(t, conv)
	})

	t.Run("update marks edited", func(t *testing.T) {
		s := newStore(t)
		u := mkUsers(t, s, "ann", "ben")

		m, err := s.Create(ctx, models.MessageDraft{SenderID: u[0].ID, ReceiverID: u[1].ID, Text: "a", Image: "/uploads/images/x.png"})
		require.NoError(t, err)
		assert.False(t, m.IsEdited)

		updated, err := s.Update(ctx, m.ID, "b")
		require.NoError(t, err)
		assert.Equal(t, "b", updated.Text)
		assert.Equal(t, "/uploads/images/x.png", updated.Image)
		assert.True(t, updated.IsEdited)
		assert.Equal(t, m.SenderID, updated.SenderID)
		assert.False(t, updated.UpdatedAt.Before(m.UpdatedAt))

		_, err = s.Update(ctx, "missing", "x")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete keeps dangling reply", func(t *testing.T) {
		s := newStore(t)
		u := mkUsers(t, s, "ann", "ben")

		first, err := s.Create(ctx, models.MessageDraft{SenderID: u[0].ID, ReceiverID: u[1].ID, Text: "q"})
		require.NoError(t, err)
		reply, err := s.Create(ctx, models.MessageDraft{SenderID: u[1].ID, ReceiverID: u[0].ID, Text: "a", ReplyTo: &first.ID})
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, first.ID))
		assert.ErrorIs(t, s.Delete(ctx, first.ID), ErrNotFound)

		_, err = s.FindByID(ctx, first.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		got, err := s.FindByID(ctx, reply.ID)
		require.NoError(t, err)
		require.NotNil(t, got.ReplyTo)
		assert.Equal(t, first.ID, *got.ReplyTo)
	})

	t.Run("last message times", func(t *testing.T) {
		s := newStore(t)
		u := mkUsers(t, s, "ann", "ben", "cat", "dan")

		_, err := s.Create(ctx, models.MessageDraft{SenderID: u[0].ID, ReceiverID: u[1].ID, Text: "1"})
		require.NoError(t, err)
		last, err := s.Create(ctx, models.MessageDraft{SenderID: u[1].ID, ReceiverID: u[0].ID, Text: "2"})
		require.NoError(t, err)
		toCat, err := s.Create(ctx, models.MessageDraft{SenderID: u[2].ID, ReceiverID: u[0].ID, Text: "3"})
		require.NoError(t, err)
		_, err = s.Create(ctx, models.MessageDraft{SenderID: u[2].ID, ReceiverID: u[3].ID, Text: "4"})
		require.NoError(t, err)

		times, err := s.LastMessageTimes(ctx, u[0].ID)
		require.NoError(t, err)
		require.Len(t, times, 2)
		assert.True(t, times[u[1].ID].Equal(last.CreatedAt))
		assert.True(t, times[u[2].ID].Equal(toCat.CreatedAt))
	})

	t.Run("users", func(t *testing.T) {
		s := newStore(t)
		u := mkUsers(t, s, "zed", "amy", "kim")

		_, err := s.Users().Create(ctx, models.UserDraft{FullName: "dup", Email: "AMY@example.com", PasswordHash: "h"})
		assert.ErrorIs(t, err, ErrEmailTaken)

		found, err := s.Users().FindByEmail(ctx, " Kim@Example.com ")
		require.NoError(t, err)
		assert.Equal(t, u[2].ID, found.ID)
		assert.Equal(t, "hash", found.Password)

		others, err := s.Users().ListExcept(ctx, u[1].ID)
		require.NoError(t, err)
		require.Len(t, others, 2)
		assert.Equal(t, "kim", others[0].FullName)
		assert.Equal(t, "zed", others[1].FullName)

		updated, err := s.Users().UpdateProfilePic(ctx, u[0].ID, "/uploads/avatars/z.png")
		require.NoError(t, err)
		assert.Equal(t, "/uploads/avatars/z.png", updated.ProfilePic)

		_, err = s.Users().FindByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) backend {
		return NewMemoryStore()
	})
}

func TestMemoryStore_EqualTimestampsKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return fixed }

	a, err := s.Users().Create(ctx, models.UserDraft{FullName: "a", Email: "a@x.io"})
	require.NoError(t, err)
	b, err := s.Users().Create(ctx, models.UserDraft{FullName: "b", Email: "b@x.io"})
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 10; i++ {
		m, err := s.Create(ctx, models.MessageDraft{SenderID: a.ID, ReceiverID: b.ID, Text: "t"})
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	conv, err := s.FindConversation(ctx, b.ID, a.ID)
	require.NoError(t, err)
	for i, m := range conv {
		assert.Equal(t, ids[i], m.ID)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	m, err := s.Create(ctx, models.MessageDraft{SenderID: "a", ReceiverID: "b", Text: "original"})
	require.NoError(t, err)
	m.Text = "mutated"

	got, err := s.FindByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Text)
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) backend {
		s, err := NewSQLiteStore(context.Background(), ":memory:")
		require.NoError(t, err)
		t.Cleanup(s.Close)
		return s
	})
}
