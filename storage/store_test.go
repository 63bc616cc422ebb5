////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	jww.SetStdoutThreshold(jww.LevelDebug)
	os.Exit(m.Run())
}

// newTestStore opens an in-memory Store that is closed when the test ends.
func newTestStore(t testing.TB) *Store {
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newChannel(id string) func() (*Conversation, error) {
	return func() (*Conversation, error) {
		return &Conversation{Name: "Channel " + id}, nil
	}
}

// Tests that FetchOrCreateConversation only creates the Conversation once.
func TestTxn_FetchOrCreateConversation(t *testing.T) {
	s := newTestStore(t)

	err := s.Update(func(txn *Txn) error {
		c, created, err := txn.FetchOrCreateConversation("chan", newChannel("chan"))
		require.NoError(t, err)
		require.True(t, created)
		require.Equal(t, "chan", c.ID)
		require.False(t, c.IsDirect())

		c, created, err = txn.FetchOrCreateConversation("chan",
			func() (*Conversation, error) {
				t.Error("create called for existing conversation")
				return nil, errors.New("unexpected")
			})
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, "Channel chan", c.Name)
		return nil
	})
	require.NoError(t, err)

	var conversations []Conversation
	require.NoError(t, s.View(func(txn *Txn) (err error) {
		conversations, err = txn.Conversations()
		return err
	}))
	require.Len(t, conversations, 1)
}

// Tests that an error from the create function leaves nothing behind.
func TestTxn_FetchOrCreateConversation_CreateError(t *testing.T) {
	s := newTestStore(t)
	createErr := errors.New("no token")

	err := s.Update(func(txn *Txn) error {
		_, _, err := txn.FetchOrCreateConversation("direct",
			func() (*Conversation, error) { return nil, createErr })
		return err
	})
	require.ErrorIs(t, err, createErr)

	require.ErrorIs(t, s.View(func(txn *Txn) error {
		_, err := txn.GetConversation("direct")
		return err
	}), ErrNotFound)
}

// Tests that a failed Update rolls back all of its writes.
func TestStore_Update_Rollback(t *testing.T) {
	s := newTestStore(t)
	failure := errors.New("abort")

	err := s.Update(func(txn *Txn) error {
		_, _, err := txn.FetchOrCreateConversation("chan", newChannel("chan"))
		require.NoError(t, err)
		_, _, err = txn.InsertMessage(&Message{
			MessageID: "M1", ConversationID: "chan", Text: "hi"})
		require.NoError(t, err)
		return failure
	})
	require.ErrorIs(t, err, failure)

	require.NoError(t, s.View(func(txn *Txn) error {
		_, err := txn.GetConversation("chan")
		require.ErrorIs(t, err, ErrNotFound)
		_, err = txn.GetMessage("M1")
		require.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
}

// Tests that SelfConversation finds the Conversation flagged as self.
func TestTxn_SelfConversation(t *testing.T) {
	s := newTestStore(t)
	token := uint32(7)

	require.NoError(t, s.Update(func(txn *Txn) error {
		_, err := txn.SelfConversation()
		require.ErrorIs(t, err, ErrNotFound)

		// A conversation merely named "<self>" is not the self conversation
		require.NoError(t, txn.CreateConversation(
			&Conversation{ID: "impostor", Name: SelfName}))
		_, err = txn.SelfConversation()
		require.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, txn.CreateConversation(&Conversation{
			ID: "me", Name: SelfName, DmToken: &token, IsSelf: true}))
		c, err := txn.SelfConversation()
		require.NoError(t, err)
		require.Equal(t, "me", c.ID)
		require.True(t, c.IsDirect())
		require.Equal(t, token, *c.DmToken)
		return nil
	}))
}

// Tests that MarkSelf turns an existing Conversation into the self
// Conversation.
func TestTxn_MarkSelf(t *testing.T) {
	s := newTestStore(t)
	token := uint32(3)

	require.NoError(t, s.Update(func(txn *Txn) error {
		require.ErrorIs(t, txn.MarkSelf("me", 4), ErrNotFound)

		require.NoError(t, txn.CreateConversation(
			&Conversation{ID: "me", Name: "codename", DmToken: &token}))
		require.NoError(t, txn.MarkSelf("me", 4))

		c, err := txn.SelfConversation()
		require.NoError(t, err)
		require.Equal(t, "me", c.ID)
		require.Equal(t, SelfName, c.Name)
		require.Equal(t, uint32(4), *c.DmToken)
		return nil
	}))
}

// Tests that UpsertParticipant overwrites the token and color of an existing
// Participant.
func TestTxn_UpsertParticipant(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Update(func(txn *Txn) error {
		created, err := txn.UpsertParticipant(&Participant{ID: "P",
			PubKey: []byte{1}, Codename: "first", DmToken: 1, Color: 0x10})
		require.NoError(t, err)
		require.True(t, created)

		created, err = txn.UpsertParticipant(&Participant{ID: "P",
			PubKey: []byte{1}, Codename: "second", DmToken: 0, Color: 0x20})
		require.NoError(t, err)
		require.False(t, created)

		p, err := txn.GetParticipant("P")
		require.NoError(t, err)
		require.Equal(t, "second", p.Codename)
		require.Equal(t, uint32(0), p.DmToken)
		require.Equal(t, 0x20, p.Color)
		require.Equal(t, []byte{1}, p.PubKey)
		return nil
	}))
}

// Tests that inserting a Message with a known message ID returns the existing
// UUID and does not create a second row.
func TestTxn_InsertMessage_Idempotent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Update(func(txn *Txn) error {
		_, _, err := txn.FetchOrCreateConversation("chan", newChannel("chan"))
		require.NoError(t, err)

		uuid, inserted, err := txn.InsertMessage(&Message{
			MessageID: "M1", ConversationID: "chan", Text: "hi"})
		require.NoError(t, err)
		require.True(t, inserted)
		require.NotZero(t, uuid)

		dup, inserted, err := txn.InsertMessage(&Message{
			MessageID: "M1", ConversationID: "chan", Text: "changed"})
		require.NoError(t, err)
		require.False(t, inserted)
		require.Equal(t, uuid, dup)

		messages, err := txn.Messages("chan")
		require.NoError(t, err)
		require.Len(t, messages, 1)
		require.Equal(t, "hi", messages[0].Text)
		return nil
	}))
}

// Tests that Messages are returned in ascending timestamp order regardless of
// insertion order.
func TestTxn_Messages_Ordered(t *testing.T) {
	s := newTestStore(t)
	base := time.Unix(1_700_000_000, 0).UTC()

	require.NoError(t, s.Update(func(txn *Txn) error {
		_, _, err := txn.FetchOrCreateConversation("chan", newChannel("chan"))
		require.NoError(t, err)
		for _, offset := range []int{3, 1, 2, 0} {
			_, _, err = txn.InsertMessage(&Message{
				MessageID:      "M" + string(rune('0'+offset)),
				ConversationID: "chan",
				Timestamp:      base.Add(time.Duration(offset) * time.Second),
			})
			require.NoError(t, err)
		}
		return nil
	}))

	require.NoError(t, s.View(func(txn *Txn) error {
		messages, err := txn.Messages("chan")
		require.NoError(t, err)
		require.Len(t, messages, 4)
		for i, m := range messages {
			require.Equal(t, "M"+string(rune('0'+i)), m.MessageID)
		}
		return nil
	}))
}

// Tests that SaveMessage updates an existing Message in place.
func TestTxn_SaveMessage(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Update(func(txn *Txn) error {
		_, _, err := txn.FetchOrCreateConversation("chan", newChannel("chan"))
		require.NoError(t, err)
		uuid, _, err := txn.InsertMessage(&Message{
			MessageID: "M1", ConversationID: "chan"})
		require.NoError(t, err)

		m, err := txn.GetMessageByUUID(uuid)
		require.NoError(t, err)
		m.Status = 2
		m.Round = 42
		require.NoError(t, txn.SaveMessage(m))

		m, err = txn.GetMessage("M1")
		require.NoError(t, err)
		require.Equal(t, uint8(2), m.Status)
		require.Equal(t, uint64(42), m.Round)

		require.Error(t, txn.SaveMessage(&Message{MessageID: "none"}))
		return nil
	}))
}

// Tests that DeleteReactions removes every Reaction with the same target and
// emoji and nothing else.
func TestTxn_DeleteReactions(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Update(func(txn *Txn) error {
		reactions := []*Reaction{
			{ReactionID: "R1", TargetID: "M1", Emoji: "👍"},
			{ReactionID: "R2", TargetID: "M1", Emoji: "👍"},
			{ReactionID: "R3", TargetID: "M1", Emoji: "❤"},
			{ReactionID: "R4", TargetID: "M2", Emoji: "👍"},
		}
		for _, r := range reactions {
			_, inserted, err := txn.InsertReaction(r)
			require.NoError(t, err)
			require.True(t, inserted)
		}

		_, inserted, err := txn.InsertReaction(
			&Reaction{ReactionID: "R1", TargetID: "M9", Emoji: "x"})
		require.NoError(t, err)
		require.False(t, inserted)

		n, err := txn.DeleteReactions("M1", "👍")
		require.NoError(t, err)
		require.Equal(t, int64(2), n)

		n, err = txn.DeleteReactions("M1", "👍")
		require.NoError(t, err)
		require.Zero(t, n)

		left, err := txn.Reactions("M1")
		require.NoError(t, err)
		require.Len(t, left, 1)
		require.Equal(t, "R3", left[0].ReactionID)

		n, err = txn.DeleteReactionsByID("R4")
		require.NoError(t, err)
		require.Equal(t, int64(1), n)
		return nil
	}))
}

// Tests that DeleteConversation removes the Conversation, its Messages and the
// Reactions to them.
func TestTxn_DeleteConversation(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Update(func(txn *Txn) error {
		for _, id := range []string{"a", "b"} {
			_, _, err := txn.FetchOrCreateConversation(id, newChannel(id))
			require.NoError(t, err)
			_, _, err = txn.InsertMessage(&Message{
				MessageID: id + "1", ConversationID: id})
			require.NoError(t, err)
			_, _, err = txn.InsertMessage(&Message{
				MessageID: id + "2", ConversationID: id})
			require.NoError(t, err)
			_, _, err = txn.InsertReaction(&Reaction{
				ReactionID: id + "R", TargetID: id + "1", Emoji: "👍"})
			require.NoError(t, err)
		}

		n, err := txn.DeleteConversation("a")
		require.NoError(t, err)
		require.Equal(t, int64(2), n)

		_, err = txn.DeleteConversation("a")
		require.ErrorIs(t, err, ErrNotFound)
		return nil
	}))

	require.NoError(t, s.View(func(txn *Txn) error {
		_, err := txn.GetConversation("a")
		require.ErrorIs(t, err, ErrNotFound)
		messages, err := txn.Messages("a")
		require.NoError(t, err)
		require.Empty(t, messages)
		_, err = txn.GetReaction("aR")
		require.ErrorIs(t, err, ErrNotFound)

		messages, err = txn.Messages("b")
		require.NoError(t, err)
		require.Len(t, messages, 2)
		_, err = txn.GetReaction("bR")
		require.NoError(t, err)
		return nil
	}))
}

// Tests that UpdateConversationInfo changes the name and description.
func TestTxn_UpdateConversationInfo(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Update(func(txn *Txn) error {
		_, _, err := txn.FetchOrCreateConversation("chan", newChannel("chan"))
		require.NoError(t, err)
		require.NoError(t, txn.UpdateConversationInfo("chan", "Name", "Desc"))
		c, err := txn.GetConversation("chan")
		require.NoError(t, err)
		require.Equal(t, "Name", c.Name)
		require.Equal(t, "Desc", c.Description)

		require.ErrorIs(t,
			txn.UpdateConversationInfo("none", "x", "y"), ErrNotFound)
		return nil
	}))
}

// Tests that a file database keeps its records across reopening.
func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, path, s.Path())
	require.NoError(t, s.Update(func(txn *Txn) error {
		_, _, err := txn.FetchOrCreateConversation("chan", newChannel("chan"))
		return err
	}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	require.NoError(t, s.View(func(txn *Txn) error {
		_, err := txn.GetConversation("chan")
		return err
	}))
}
