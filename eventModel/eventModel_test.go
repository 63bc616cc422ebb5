////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package eventModel

import (
	"crypto/ed25519"
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/stretchr/testify/require"

	"gitlab.com/elixxir/client/v4/channels"
	"gitlab.com/elixxir/xxdk-eventstore/codec"
	"gitlab.com/elixxir/xxdk-eventstore/identity"
	"gitlab.com/elixxir/xxdk-eventstore/storage"
)

func TestMain(m *testing.M) {
	jww.SetStdoutThreshold(jww.LevelDebug)
	os.Exit(m.Run())
}

// testConstructor builds an identity whose codename is derived from the key.
// Keys starting with 0xFF fail to construct.
func testConstructor(pubKey []byte, codeset int) ([]byte, error) {
	if len(pubKey) > 0 && pubKey[0] == 0xFF {
		return nil, errors.New("cannot construct identity")
	}
	return json.Marshal(identity.Envelope{
		PubKey:         pubKey,
		Codename:       "codename-" + EncodeID(pubKey),
		Color:          "0x00ff00",
		CodesetVersion: uint8(codeset),
	})
}

type testModel struct {
	*EventModel
	store *storage.Store
	reg   *prometheus.Registry
}

// newTestModel creates an EventModel over an in-memory store.
func newTestModel(t testing.TB, p Params) *testModel {
	s, err := storage.Open("")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	em := New(s, identity.NewResolver(testConstructor, true), p, reg)
	t.Cleanup(func() {
		em.Close()
		_ = s.Close()
	})

	return &testModel{EventModel: em, store: s, reg: reg}
}

func (tm *testModel) counter(event, outcome string) float64 {
	return testutil.ToFloat64(tm.metrics.events.WithLabelValues(event, outcome))
}

func token(t uint32) *uint32 { return &t }

func channelMessage(channelID, messageID, text string,
	pubKey ed25519.PublicKey) IncomingMessage {
	return IncomingMessage{
		Kind:           Channel,
		ConversationID: channelID,
		MessageID:      messageID,
		Text:           codec.Encode(text, true),
		Nickname:       "nick",
		PubKey:         pubKey,
		DmToken:        token(7),
		Codeset:        0,
		Timestamp:      time.Unix(1000, 0),
		Round:          5,
	}
}

// Tests the first-contact direct message scenario: an empty store receiving a
// message creates the conversation, participant and message, and replaying it
// leaves a single message.
func TestEventModel_ReceiveMessage_FirstContact(t *testing.T) {
	tm := newTestModel(t, DefaultParams())

	partner := ed25519.PublicKey{0, 0}
	partnerID := EncodeID(partner)
	require.Equal(t, "AAA=", partnerID)

	msg := IncomingMessage{
		Kind:           Direct,
		ConversationID: partnerID,
		MessageID:      "M1",
		Text:           codec.Encode("hi", true),
		PubKey:         partner,
		DmToken:        token(42),
		Codeset:        1,
		Timestamp:      time.Unix(1000, 0),
	}

	res, err := tm.ReceiveMessage(msg)
	require.NoError(t, err)
	require.True(t, res.Created)
	require.True(t, res.ConversationCreated)
	require.Equal(t, partnerID, res.ConversationID)
	require.NotZero(t, res.UUID)

	c, err := tm.Conversation(partnerID)
	require.NoError(t, err)
	require.True(t, c.IsDirect())
	require.Equal(t, uint32(42), *c.DmToken)
	require.Equal(t, "codename-AAA=", c.Name)
	require.Equal(t, 0x00ff00, c.Color)

	p, err := tm.Participant(partnerID)
	require.NoError(t, err)
	require.Equal(t, []byte(partner), p.PubKey)
	require.Equal(t, uint32(42), p.DmToken)
	require.Equal(t, uint8(1), p.CodesetVersion)

	messages, err := tm.Messages(partnerID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, "M1", messages[0].MessageID)
	require.Equal(t, "hi", messages[0].Text)
	require.True(t, messages[0].IsIncoming)
	require.True(t, messages[0].Timestamp.Equal(time.Unix(1000, 0)))

	replay, err := tm.ReceiveMessage(msg)
	require.NoError(t, err)
	require.False(t, replay.Created)
	require.False(t, replay.ConversationCreated)
	require.Equal(t, res.UUID, replay.UUID)

	messages, err = tm.Messages(partnerID)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	require.Equal(t, 1.0, tm.counter(eventMessage, outcomeStored))
	require.Equal(t, 1.0, tm.counter(eventMessage, outcomeDuplicate))
}

// Tests that a message is outgoing only when its sender is the self identity.
func TestEventModel_ReceiveMessage_SelfAuthorship(t *testing.T) {
	tm := newTestModel(t, DefaultParams())

	self := ed25519.PublicKey("selfKey")
	other := ed25519.PublicKey("otherKey")
	require.NoError(t, tm.EnsureSelf(self, 0, 99))

	_, err := tm.ReceiveMessage(channelMessage("chan", "fromSelf", "a", self))
	require.NoError(t, err)
	_, err = tm.ReceiveMessage(channelMessage("chan", "fromOther", "b", other))
	require.NoError(t, err)

	messages, err := tm.Messages("chan")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	incoming := map[string]bool{}
	for _, m := range messages {
		incoming[m.MessageID] = m.IsIncoming
	}
	require.Equal(t, map[string]bool{"fromSelf": false, "fromOther": true},
		incoming)
}

// Tests that a conversation merely named "<self>" does not make messages
// outgoing.
func TestEventModel_ReceiveMessage_SelfNameIsNotSelf(t *testing.T) {
	tm := newTestModel(t, DefaultParams())

	key := ed25519.PublicKey("someone")
	msg := channelMessage(EncodeID(key), "M", "text", key)
	msg.ConversationName = storage.SelfName
	_, err := tm.ReceiveMessage(msg)
	require.NoError(t, err)

	messages, err := tm.Messages(EncodeID(key))
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.True(t, messages[0].IsIncoming)
}

// Tests that a direct message to an unknown conversation without a token is
// rejected and writes nothing.
func TestEventModel_ReceiveMessage_MissingDmToken(t *testing.T) {
	tm := newTestModel(t, DefaultParams())

	partner := ed25519.PublicKey("partner")
	msg := IncomingMessage{
		Kind:           Direct,
		ConversationID: EncodeID(partner),
		MessageID:      "M1",
		Text:           codec.Encode("hi", false),
		PubKey:         partner,
	}

	_, err := tm.ReceiveMessage(msg)
	require.ErrorIs(t, err, ErrMissingDmToken)
	require.True(t, IsRejected(err))

	conversations, err := tm.Conversations()
	require.NoError(t, err)
	require.Empty(t, conversations)
	_, err = tm.Participant(EncodeID(partner))
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.Equal(t, 1.0, tm.counter(eventMessage, outcomeRejected))

	// Once the conversation exists, the token is no longer needed
	_, err = tm.JoinDirect(partner, 0, 3, "")
	require.NoError(t, err)
	res, err := tm.ReceiveMessage(msg)
	require.NoError(t, err)
	require.True(t, res.Created)
}

// Tests that malformed messages are rejected.
func TestEventModel_ReceiveMessage_Rejected(t *testing.T) {
	tm := newTestModel(t, DefaultParams())
	key := ed25519.PublicKey("key")

	noID := channelMessage("chan", "", "text", key)
	_, err := tm.ReceiveMessage(noID)
	require.ErrorIs(t, err, ErrMissingMessageID)

	noConversation := channelMessage("", "M", "text", key)
	_, err = tm.ReceiveMessage(noConversation)
	require.ErrorIs(t, err, ErrMissingConversationID)

	undecodable := channelMessage("chan", "M", "", key)
	undecodable.Text = "not base64!"
	_, err = tm.ReceiveMessage(undecodable)
	require.ErrorIs(t, err, ErrUndecodable)

	require.Equal(t, 3.0, tm.counter(eventMessage, outcomeRejected))

	conversations, err := tm.Conversations()
	require.NoError(t, err)
	require.Empty(t, conversations)
}

// Tests the naming of created channel conversations and the name of a direct
// conversation started by the self identity.
func TestEventModel_ReceiveMessage_ConversationNames(t *testing.T) {
	tm := newTestModel(t, DefaultParams())
	key := ed25519.PublicKey("key")

	_, err := tm.ReceiveMessage(channelMessage("0123456789abcdef", "A", "a", key))
	require.NoError(t, err)
	named := channelMessage("short", "B", "b", key)
	named.ConversationName = "General"
	_, err = tm.ReceiveMessage(named)
	require.NoError(t, err)

	c, err := tm.Conversation("0123456789abcdef")
	require.NoError(t, err)
	require.Equal(t, "Channel 01234567", c.Name)
	c, err = tm.Conversation("short")
	require.NoError(t, err)
	require.Equal(t, "General", c.Name)

	self := ed25519.PublicKey("self")
	partner := ed25519.PublicKey("partner")
	require.NoError(t, tm.EnsureSelf(self, 0, 1))
	_, err = tm.ReceiveMessage(IncomingMessage{
		Kind:           Direct,
		ConversationID: EncodeID(partner),
		MessageID:      "C",
		Text:           codec.Encode("c", true),
		PubKey:         self,
		DmToken:        token(1),
	})
	require.NoError(t, err)
	c, err = tm.Conversation(EncodeID(partner))
	require.NoError(t, err)
	require.Equal(t, "codename-"+EncodeID(partner), c.Name)
}

// Tests that a sender whose identity cannot be constructed is stored under
// their nickname and that later events overwrite the participant.
func TestEventModel_ReceiveMessage_ParticipantLastWriteWins(t *testing.T) {
	tm := newTestModel(t, DefaultParams())
	key := ed25519.PublicKey{0xFF, 1, 2}

	msg := channelMessage("chan", "A", "a", key)
	msg.Nickname = "  Bob "
	_, err := tm.ReceiveMessage(msg)
	require.NoError(t, err)

	p, err := tm.Participant(EncodeID(key))
	require.NoError(t, err)
	require.Equal(t, "Bob", p.Codename)
	require.Equal(t, identity.DefaultColor, p.Color)
	require.Equal(t, uint32(7), p.DmToken)

	msg = channelMessage("chan", "B", "b", key)
	msg.DmToken = token(8)
	_, err = tm.ReceiveMessage(msg)
	require.NoError(t, err)

	p, err = tm.Participant(EncodeID(key))
	require.NoError(t, err)
	require.Equal(t, uint32(8), p.DmToken)
}

// Tests that a failed identity construction for a known participant only
// updates its token, keeping the stored codename and color.
func TestEventModel_ReceiveMessage_ResolveFailureKeepsIdentity(t *testing.T) {
	s, err := storage.Open("")
	require.NoError(t, err)

	var broken atomic.Bool
	construct := func(pubKey []byte, codeset int) ([]byte, error) {
		if broken.Load() {
			return nil, errors.New("identity service unavailable")
		}
		return testConstructor(pubKey, codeset)
	}
	em := New(s, identity.NewResolver(construct, false), DefaultParams(), nil)
	t.Cleanup(func() {
		em.Close()
		_ = s.Close()
	})

	key := ed25519.PublicKey{1, 2, 3}
	_, err = em.ReceiveMessage(channelMessage("chan", "A", "a", key))
	require.NoError(t, err)

	p, err := em.Participant(EncodeID(key))
	require.NoError(t, err)
	require.Equal(t, "codename-"+EncodeID(key), p.Codename)
	require.Equal(t, 0x00ff00, p.Color)

	broken.Store(true)
	msg := channelMessage("chan", "B", "b", key)
	msg.Nickname = ""
	msg.DmToken = token(9)
	_, err = em.ReceiveMessage(msg)
	require.NoError(t, err)

	_, err = em.ReceiveReaction(IncomingReaction{
		ReactionID: "R", TargetID: "B", Emoji: "👍", PubKey: key})
	require.NoError(t, err)

	p, err = em.Participant(EncodeID(key))
	require.NoError(t, err)
	require.Equal(t, "codename-"+EncodeID(key), p.Codename)
	require.Equal(t, 0x00ff00, p.Color)
	require.Equal(t, uint32(9), p.DmToken)

	// A participant first seen while construction fails gets the fallback
	other := ed25519.PublicKey{4, 5, 6}
	_, err = em.ReceiveMessage(channelMessage("chan", "C", "c", other))
	require.NoError(t, err)
	p, err = em.Participant(EncodeID(other))
	require.NoError(t, err)
	require.Equal(t, "nick", p.Codename)
	require.Equal(t, identity.DefaultColor, p.Color)
}

// Tests that reactions are stored once and flagged when sent by self.
func TestEventModel_ReceiveReaction(t *testing.T) {
	tm := newTestModel(t, DefaultParams())
	self := ed25519.PublicKey("self")
	require.NoError(t, tm.EnsureSelf(self, 0, 1))

	r := IncomingReaction{
		ReactionID: "R1",
		TargetID:   "M1",
		Emoji:      "👍",
		PubKey:     self,
		Timestamp:  time.Unix(2000, 0),
	}
	res, err := tm.ReceiveReaction(r)
	require.NoError(t, err)
	require.True(t, res.Created)

	replay, err := tm.ReceiveReaction(r)
	require.NoError(t, err)
	require.False(t, replay.Created)
	require.Equal(t, res.UUID, replay.UUID)

	r.ReactionID = "R2"
	r.PubKey = ed25519.PublicKey("other")
	_, err = tm.ReceiveReaction(r)
	require.NoError(t, err)

	reactions, err := tm.Reactions("M1")
	require.NoError(t, err)
	require.Len(t, reactions, 2)
	require.True(t, reactions[0].IsMe)
	require.False(t, reactions[1].IsMe)
}

// Tests that malformed reactions are rejected.
func TestEventModel_ReceiveReaction_Rejected(t *testing.T) {
	tm := newTestModel(t, DefaultParams())

	tests := []struct {
		r   IncomingReaction
		err error
	}{
		{IncomingReaction{TargetID: "M", Emoji: "👍"}, ErrMissingMessageID},
		{IncomingReaction{ReactionID: "R", Emoji: "👍"}, ErrMissingTarget},
		{IncomingReaction{ReactionID: "R", TargetID: "M", Emoji: " "}, ErrEmptyEmoji},
	}
	for i, tt := range tests {
		_, err := tm.ReceiveReaction(tt.r)
		require.ErrorIs(t, err, tt.err, "test %d", i)
	}
	require.Equal(t, 3.0, tm.counter(eventReaction, outcomeRejected))
}

// Tests that unsupported emojis are only rejected in strict mode.
func TestEventModel_ReceiveReaction_Strict(t *testing.T) {
	p := DefaultParams()
	p.StrictReactions = true
	tm := newTestModel(t, p)

	_, err := tm.ReceiveReaction(
		IncomingReaction{ReactionID: "R1", TargetID: "M", Emoji: "abc"})
	require.ErrorIs(t, err, ErrUnsupportedEmoji)

	_, err = tm.ReceiveReaction(
		IncomingReaction{ReactionID: "R2", TargetID: "M", Emoji: "👍"})
	require.NoError(t, err)

	lax := newTestModel(t, DefaultParams())
	_, err = lax.ReceiveReaction(
		IncomingReaction{ReactionID: "R1", TargetID: "M", Emoji: "abc"})
	require.NoError(t, err)
}

// Tests that DeleteReaction removes every reaction with the target and emoji
// regardless of who sent it.
func TestEventModel_DeleteReaction(t *testing.T) {
	tm := newTestModel(t, DefaultParams())

	for i, e := range []string{"👍", "👍", "❤"} {
		_, err := tm.ReceiveReaction(IncomingReaction{
			ReactionID: "R" + strconv.Itoa(i),
			TargetID:   "M1",
			Emoji:      e,
			PubKey:     ed25519.PublicKey("sender" + strconv.Itoa(i)),
		})
		require.NoError(t, err)
	}

	deleted, err := tm.DeleteReaction("M1", "👍")
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	reactions, err := tm.Reactions("M1")
	require.NoError(t, err)
	require.Len(t, reactions, 1)
	require.Equal(t, "❤", reactions[0].Emoji)

	deleted, err = tm.DeleteReaction("M1", "👍")
	require.NoError(t, err)
	require.Zero(t, deleted)
	require.Equal(t, 1.0, tm.counter(eventDeleteReaction, outcomeNoop))
}

// Tests that DeleteMessage deletes a message, falls back to reactions with the
// ID, and ignores unknown IDs.
func TestEventModel_DeleteMessage(t *testing.T) {
	tm := newTestModel(t, DefaultParams())
	key := ed25519.PublicKey("key")

	_, err := tm.ReceiveMessage(channelMessage("chan", "M1", "text", key))
	require.NoError(t, err)
	_, err = tm.ReceiveReaction(IncomingReaction{
		ReactionID: "R1", TargetID: "M1", Emoji: "👍", PubKey: key})
	require.NoError(t, err)

	found, err := tm.DeleteMessage("M1")
	require.NoError(t, err)
	require.True(t, found)
	messages, err := tm.Messages("chan")
	require.NoError(t, err)
	require.Empty(t, messages)

	found, err = tm.DeleteMessage("R1")
	require.NoError(t, err)
	require.True(t, found)
	reactions, err := tm.Reactions("M1")
	require.NoError(t, err)
	require.Empty(t, reactions)

	found, err = tm.DeleteMessage("unknown")
	require.NoError(t, err)
	require.False(t, found)
}

// Tests that Lookup finds messages and reactions and reports a miss with the
// channels manager's error.
func TestEventModel_Lookup(t *testing.T) {
	tm := newTestModel(t, DefaultParams())
	key := ed25519.PublicKey("senderKey")

	msg := channelMessage("chan", "M1", "hello", key)
	msg.ReplyTo = "M0"
	res, err := tm.ReceiveMessage(msg)
	require.NoError(t, err)

	mm, err := tm.Lookup("M1")
	require.NoError(t, err)
	require.Equal(t, "M1", mm.MessageID)
	require.Equal(t, []byte(key), mm.PubKey)
	require.Equal(t, res.UUID, mm.UUID)
	require.Equal(t, "chan", mm.ConversationID)
	require.Equal(t, "hello", mm.Text)
	require.Equal(t, "M0", mm.ReplyTo)
	require.Equal(t, "codename-"+EncodeID(key), mm.Codename)
	require.False(t, mm.IsReaction)

	_, err = tm.ReceiveReaction(IncomingReaction{
		ReactionID: "R1", TargetID: "M1", Emoji: "👍", PubKey: key})
	require.NoError(t, err)
	mm, err = tm.Lookup("R1")
	require.NoError(t, err)
	require.True(t, mm.IsReaction)
	require.Equal(t, "M1", mm.ReplyTo)
	require.Equal(t, "👍", mm.Text)
	require.Equal(t, []byte(key), mm.PubKey)

	_, err = tm.Lookup("unknown")
	require.True(t, errors.Is(err, channels.NoMessageErr))
}

// Tests that UpdateMessage applies set fields and selects by UUID or message
// ID.
func TestEventModel_UpdateMessage(t *testing.T) {
	tm := newTestModel(t, DefaultParams())
	res, err := tm.ReceiveMessage(
		channelMessage("chan", "M1", "text", ed25519.PublicKey("key")))
	require.NoError(t, err)

	pinned := true
	status := uint8(2)
	updated, err := tm.UpdateMessage(MessageSelector{UUID: res.UUID},
		MessageUpdate{Pinned: &pinned, Status: &status})
	require.NoError(t, err)
	require.Equal(t, res.UUID, updated.UUID)
	require.Equal(t, "chan", updated.ConversationID)

	newID := "M2"
	updated, err = tm.UpdateMessage(MessageSelector{MessageID: "M1"},
		MessageUpdate{MessageID: &newID})
	require.NoError(t, err)
	require.Equal(t, res.UUID, updated.UUID)

	mm, err := tm.Lookup("M2")
	require.NoError(t, err)
	require.True(t, mm.Pinned)
	require.Equal(t, status, mm.Status)
	require.Equal(t, uint64(5), mm.Round)

	_, err = tm.UpdateMessage(MessageSelector{UUID: 999, MessageID: "M1"},
		MessageUpdate{Pinned: &pinned})
	require.ErrorIs(t, err, ErrNoMessage)
}

// Tests that SendStatusUpdate records the status and absorbs unknown
// messages.
func TestEventModel_SendStatusUpdate(t *testing.T) {
	tm := newTestModel(t, DefaultParams())
	res, err := tm.ReceiveMessage(
		channelMessage("chan", "M1", "text", ed25519.PublicKey("key")))
	require.NoError(t, err)

	ts := time.Unix(5000, 0)
	require.NoError(t, tm.SendStatusUpdate(res.UUID, "", ts, 77, 3))

	mm, err := tm.Lookup("M1")
	require.NoError(t, err)
	require.Equal(t, uint8(3), mm.Status)
	require.Equal(t, uint64(77), mm.Round)
	require.True(t, mm.Timestamp.Equal(ts))

	// A zero timestamp keeps the stored one
	require.NoError(t, tm.SendStatusUpdate(0, "M1", time.Time{}, 0, 4))
	mm, err = tm.Lookup("M1")
	require.NoError(t, err)
	require.True(t, mm.Timestamp.Equal(ts))
	require.Equal(t, uint64(77), mm.Round)

	require.NoError(t, tm.SendStatusUpdate(404, "missing", ts, 1, 1))
	require.Equal(t, 1.0, tm.counter(eventStatus, outcomeNoop))

	// Status events are only counted as status events
	require.Equal(t, 2.0, tm.counter(eventStatus, outcomeStored))
	require.Equal(t, 0.0, tm.counter(eventUpdate, outcomeStored))
	require.Equal(t, 0.0, tm.counter(eventUpdate, outcomeNoop))
}

// Tests joining, renaming and leaving a channel.
func TestEventModel_JoinAndLeaveChannel(t *testing.T) {
	tm := newTestModel(t, DefaultParams())

	created, err := tm.JoinChannel("chan", "Name", "Description")
	require.NoError(t, err)
	require.True(t, created)

	created, err = tm.JoinChannel("chan", "New Name", "New Description")
	require.NoError(t, err)
	require.False(t, created)

	c, err := tm.Conversation("chan")
	require.NoError(t, err)
	require.Equal(t, "New Name", c.Name)
	require.Equal(t, "New Description", c.Description)
	require.False(t, c.IsDirect())

	key := ed25519.PublicKey("key")
	for _, id := range []string{"A", "B"} {
		_, err = tm.ReceiveMessage(channelMessage("chan", id, id, key))
		require.NoError(t, err)
	}
	_, err = tm.ReceiveReaction(IncomingReaction{
		ReactionID: "R", TargetID: "A", Emoji: "👍", PubKey: key})
	require.NoError(t, err)

	deleted, err := tm.LeaveConversation("chan")
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	_, err = tm.Conversation("chan")
	require.ErrorIs(t, err, ErrNoConversation)
	reactions, err := tm.Reactions("A")
	require.NoError(t, err)
	require.Empty(t, reactions)

	_, err = tm.LeaveConversation("chan")
	require.ErrorIs(t, err, ErrNoConversation)
}

// Tests that EnsureSelf is idempotent for a key and refuses a second key.
func TestEventModel_EnsureSelf(t *testing.T) {
	tm := newTestModel(t, DefaultParams())
	self := ed25519.PublicKey("self")

	require.NoError(t, tm.EnsureSelf(self, 0, 5))
	require.NoError(t, tm.EnsureSelf(self, 0, 5))

	c, err := tm.SelfConversation()
	require.NoError(t, err)
	require.Equal(t, EncodeID(self), c.ID)
	require.Equal(t, storage.SelfName, c.Name)
	require.True(t, c.IsSelf)

	_, err = tm.Participant(EncodeID(self))
	require.NoError(t, err)

	err = tm.EnsureSelf(ed25519.PublicKey("other"), 0, 5)
	require.ErrorIs(t, err, ErrSelfExists)
}

// Tests that EnsureSelf turns a direct conversation with the local identity,
// stored before registration, into the self conversation.
func TestEventModel_EnsureSelf_ExistingDirect(t *testing.T) {
	tm := newTestModel(t, DefaultParams())
	self := ed25519.PublicKey("self")

	msg := channelMessage(EncodeID(self), "note", "note to self", self)
	msg.Kind = Direct
	res, err := tm.ReceiveMessage(msg)
	require.NoError(t, err)
	require.True(t, res.ConversationCreated)

	_, err = tm.SelfConversation()
	require.ErrorIs(t, err, ErrNoConversation)

	require.NoError(t, tm.EnsureSelf(self, 0, 5))
	require.NoError(t, tm.EnsureSelf(self, 0, 5))

	c, err := tm.SelfConversation()
	require.NoError(t, err)
	require.Equal(t, EncodeID(self), c.ID)
	require.Equal(t, storage.SelfName, c.Name)
	require.EqualValues(t, 5, *c.DmToken)

	messages, err := tm.Messages(c.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
}

// Tests that concurrent first messages to one conversation create it once and
// store every message.
func TestEventModel_ReceiveMessage_Concurrent(t *testing.T) {
	tm := newTestModel(t, DefaultParams())
	const n = 50

	var wg sync.WaitGroup
	created := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := ed25519.PublicKey("sender" + strconv.Itoa(i%5))
			res, err := tm.ReceiveMessage(
				channelMessage("chan", "M"+strconv.Itoa(i), "text", key))
			if err != nil {
				t.Errorf("Failed to receive message %d: %+v", i, err)
				return
			}
			created <- res.ConversationCreated
		}(i)
	}
	wg.Wait()
	close(created)

	var creations int
	for c := range created {
		if c {
			creations++
		}
	}
	require.Equal(t, 1, creations)

	conversations, err := tm.Conversations()
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	messages, err := tm.Messages("chan")
	require.NoError(t, err)
	require.Len(t, messages, n)
}

// Tests that the metrics are registered on the registry.
func TestEventModel_Metrics(t *testing.T) {
	tm := newTestModel(t, DefaultParams())
	_, err := tm.JoinChannel("chan", "", "")
	require.NoError(t, err)

	families, err := tm.reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["xxdk_eventstore_events_total"])
	require.True(t, names["xxdk_eventstore_writer_queue_depth"])
}

// Tests that New panics without a store.
func TestNew_NilStore(t *testing.T) {
	require.Panics(t, func() {
		New(nil, nil, DefaultParams(), nil)
	})
}
