////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package dmEventModel adapts the direct messaging manager's event model
// callbacks to the shared event model.
package dmEventModel

import (
	"bytes"
	"crypto/ed25519"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/client/v4/cmix/rounds"
	"gitlab.com/elixxir/client/v4/dm"
	"gitlab.com/elixxir/crypto/message"

	"gitlab.com/elixxir/xxdk-eventstore/eventModel"
	"gitlab.com/elixxir/xxdk-eventstore/storage"
)

// MessageReceivedCallback is called any time a message is received or updated.
//
// messageUpdate is true if the Message already exists and was edited.
// conversationUpdate is true if the Conversation was created or modified.
type MessageReceivedCallback func(
	uuid uint64, pubKey ed25519.PublicKey, messageUpdate, conversationUpdate bool)

// Model has the method set of [dm.EventModel] and stores every event through
// the shared [eventModel.EventModel].
type Model struct {
	em                *eventModel.EventModel
	receivedMessageCB MessageReceivedCallback
}

// New returns a Model that stores through em and reports changes to cb. cb
// may be nil.
func New(em *eventModel.EventModel, cb MessageReceivedCallback) *Model {
	if cb == nil {
		cb = func(uint64, ed25519.PublicKey, bool, bool) {}
	}
	return &Model{em: em, receivedMessageCB: cb}
}

func (m *Model) Receive(messageID message.ID, nickname string, text []byte,
	partnerKey, senderKey ed25519.PublicKey, dmToken uint32, codeset uint8,
	timestamp time.Time, round rounds.Round, mType dm.MessageType,
	status dm.Status) uint64 {
	parentErr := "[DM] failed to Receive"
	jww.TRACE.Printf("[DM] Receive(%s)", messageID)

	uuid, err := m.receiveWrapper(messageID, nil, nickname, string(text),
		partnerKey, senderKey, dmToken, codeset, timestamp, round, status)
	if err != nil {
		jww.ERROR.Printf("%+v", errors.WithMessage(err, parentErr))
		return 0
	}
	return uuid
}

func (m *Model) ReceiveText(messageID message.ID, nickname, text string,
	partnerKey, senderKey ed25519.PublicKey, dmToken uint32, codeset uint8,
	timestamp time.Time, round rounds.Round, status dm.Status) uint64 {
	parentErr := "[DM] failed to ReceiveText"
	jww.TRACE.Printf("[DM] ReceiveText(%s)", messageID)

	uuid, err := m.receiveWrapper(messageID, nil, nickname, text,
		partnerKey, senderKey, dmToken, codeset, timestamp, round, status)
	if err != nil {
		jww.ERROR.Printf("%+v", errors.WithMessage(err, parentErr))
		return 0
	}
	return uuid
}

func (m *Model) ReceiveReply(messageID, reactionTo message.ID, nickname,
	text string, partnerKey, senderKey ed25519.PublicKey, dmToken uint32,
	codeset uint8, timestamp time.Time, round rounds.Round,
	status dm.Status) uint64 {
	parentErr := "[DM] failed to ReceiveReply"
	jww.TRACE.Printf("[DM] ReceiveReply(%s)", messageID)

	uuid, err := m.receiveWrapper(messageID, &reactionTo, nickname, text,
		partnerKey, senderKey, dmToken, codeset, timestamp, round, status)
	if err != nil {
		jww.ERROR.Printf("%+v", errors.WithMessage(err, parentErr))
		return 0
	}
	return uuid
}

func (m *Model) ReceiveReaction(messageID, reactionTo message.ID, nickname,
	reaction string, partnerKey, senderKey ed25519.PublicKey, dmToken uint32,
	codeset uint8, timestamp time.Time, round rounds.Round,
	status dm.Status) uint64 {
	parentErr := "[DM] failed to ReceiveReaction"
	jww.TRACE.Printf("[DM] ReceiveReaction(%s)", messageID)

	res, err := m.em.ReceiveReaction(eventModel.IncomingReaction{
		ReactionID: eventModel.EncodeID(messageID.Marshal()),
		TargetID:   eventModel.EncodeID(reactionTo.Marshal()),
		Emoji:      reaction,
		Nickname:   nickname,
		PubKey:     senderKey,
		DmToken:    senderToken(partnerKey, senderKey, dmToken),
		Codeset:    codeset,
		Timestamp:  timestamp,
	})
	if err != nil {
		jww.ERROR.Printf("%+v", errors.WithMessage(err, parentErr))
		return 0
	}

	jww.TRACE.Printf("[DM] Calling ReceiveMessageCB(%v, %v, %t, f)",
		res.UUID, partnerKey, !res.Created)
	go m.receivedMessageCB(res.UUID, partnerKey, !res.Created, false)
	return res.UUID
}

func (m *Model) UpdateSentStatus(uuid uint64, messageID message.ID,
	timestamp time.Time, round rounds.Round, status dm.Status) {
	parentErr := errors.New("failed to UpdateSentStatus")
	jww.TRACE.Printf("[DM] UpdateSentStatus(%d, %s, ...)", uuid, messageID)

	s := uint8(status)
	r := uint64(round.ID)
	upd := eventModel.MessageUpdate{Timestamp: &timestamp, Round: &r, Status: &s}
	sel := eventModel.MessageSelector{UUID: uuid}
	if !messageID.Equals(message.ID{}) {
		encoded := eventModel.EncodeID(messageID.Marshal())
		upd.MessageID = &encoded
		sel.MessageID = encoded
	}

	res, err := m.em.UpdateMessage(sel, upd)
	if err != nil {
		jww.ERROR.Printf("[DM] %+v", errors.WithMessagef(parentErr,
			"Unable to update message: %+v", err))
		return
	}

	partnerKey, err := eventModel.DecodeID(res.ConversationID)
	if err != nil {
		jww.ERROR.Printf("[DM] %+v", errors.WithMessagef(parentErr,
			"Invalid conversation %q: %+v", res.ConversationID, err))
		return
	}

	jww.TRACE.Printf("[DM] Calling ReceiveMessageCB(%v, %v, t, f)",
		res.UUID, partnerKey)
	go m.receivedMessageCB(res.UUID, partnerKey, true, false)
}

// DeleteMessage deletes the message if it was sent by senderPubKey. Returns
// true if it was deleted.
func (m *Model) DeleteMessage(
	messageID message.ID, senderPubKey ed25519.PublicKey) bool {
	parentErr := errors.New("failed to DeleteMessage")
	msgID := eventModel.EncodeID(messageID.Marshal())

	mm, err := m.em.Lookup(msgID)
	if err != nil {
		jww.DEBUG.Printf("[DM] %+v", errors.WithMessage(parentErr, err.Error()))
		return false
	} else if !bytes.Equal(mm.PubKey, senderPubKey) {
		jww.WARN.Printf("[DM] Refusing to delete message %s: not sent by %X",
			messageID, senderPubKey)
		return false
	}

	deleted, err := m.em.DeleteMessage(msgID)
	if err != nil {
		jww.ERROR.Printf("[DM] %+v", errors.WithMessage(parentErr, err.Error()))
		return false
	}
	return deleted
}

// GetConversation returns the direct conversation with the partner or nil if
// none exists.
func (m *Model) GetConversation(
	senderPubKey ed25519.PublicKey) *dm.ModelConversation {
	c, err := m.em.Conversation(eventModel.EncodeID(senderPubKey))
	if err != nil {
		jww.DEBUG.Printf("[DM] Failed to get conversation: %+v", err)
		return nil
	} else if !c.IsDirect() {
		return nil
	}

	mc, err := m.toModelConversation(c)
	if err != nil {
		jww.ERROR.Printf("[DM] %+v", err)
		return nil
	}
	return &mc
}

// GetConversations returns all direct conversations.
func (m *Model) GetConversations() []dm.ModelConversation {
	conversations, err := m.em.Conversations()
	if err != nil {
		jww.ERROR.Printf("[DM] Failed to get conversations: %+v", err)
		return nil
	}

	result := make([]dm.ModelConversation, 0, len(conversations))
	for i := range conversations {
		if !conversations[i].IsDirect() {
			continue
		}
		mc, err := m.toModelConversation(&conversations[i])
		if err != nil {
			jww.ERROR.Printf("[DM] %+v", err)
			continue
		}
		result = append(result, mc)
	}
	return result
}

// receiveWrapper stores a received message or reply and reports it.
func (m *Model) receiveWrapper(messageID message.ID, parentID *message.ID,
	nickname, data string, partnerKey, senderKey ed25519.PublicKey,
	dmToken uint32, codeset uint8, timestamp time.Time, round rounds.Round,
	status dm.Status) (uint64, error) {
	msg := eventModel.IncomingMessage{
		Kind:           eventModel.Direct,
		ConversationID: eventModel.EncodeID(partnerKey),
		MessageID:      eventModel.EncodeID(messageID.Marshal()),
		Text:           data,
		Nickname:       nickname,
		PubKey:         senderKey,
		DmToken:        optionalToken(dmToken),
		Codeset:        codeset,
		Timestamp:      timestamp,
		Round:          uint64(round.ID),
		Status:         uint8(status),
	}
	if parentID != nil {
		msg.ReplyTo = eventModel.EncodeID(parentID.Marshal())
	}

	res, err := m.em.ReceiveMessage(msg)
	if err != nil {
		return 0, err
	}

	jww.TRACE.Printf("[DM] Calling ReceiveMessageCB(%v, %v, %t, %t)",
		res.UUID, partnerKey, !res.Created, res.ConversationCreated)
	go m.receivedMessageCB(
		res.UUID, partnerKey, !res.Created, res.ConversationCreated)
	return res.UUID, nil
}

// toModelConversation converts a stored direct conversation.
func (m *Model) toModelConversation(
	c *storage.Conversation) (dm.ModelConversation, error) {
	pubKey, err := eventModel.DecodeID(c.ID)
	if err != nil {
		return dm.ModelConversation{}, errors.Wrapf(err,
			"invalid conversation ID %q", c.ID)
	}

	mc := dm.ModelConversation{
		Pubkey:   pubKey,
		Nickname: c.Name,
		Token:    *c.DmToken,
	}
	if p, err := m.em.Participant(c.ID); err == nil {
		mc.CodesetVersion = p.CodesetVersion
	} else if !errors.Is(err, storage.ErrNotFound) {
		return dm.ModelConversation{}, err
	}
	return mc, nil
}

// senderToken returns the token for the sender of a reaction. The token
// received with a direct message belongs to the partner.
func senderToken(partnerKey, senderKey ed25519.PublicKey, dmToken uint32) *uint32 {
	if !bytes.Equal(partnerKey, senderKey) {
		return nil
	}
	return optionalToken(dmToken)
}

// optionalToken maps the zero token to nil.
func optionalToken(dmToken uint32) *uint32 {
	if dmToken == 0 {
		return nil
	}
	return &dmToken
}
