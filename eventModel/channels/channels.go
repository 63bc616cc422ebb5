////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package channelEventModel adapts the channels manager's event model
// callbacks to the shared event model.
package channelEventModel

import (
	"crypto/ed25519"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/client/v4/bindings"
	"gitlab.com/elixxir/client/v4/channels"
	"gitlab.com/elixxir/client/v4/cmix/rounds"
	cryptoBroadcast "gitlab.com/elixxir/crypto/broadcast"
	"gitlab.com/elixxir/crypto/message"
	"gitlab.com/xx_network/primitives/id"

	"gitlab.com/elixxir/xxdk-eventstore/eventModel"
)

// EventUpdate is called with a bindings event type and its JSON marshallable
// payload whenever the UI needs to be updated.
type EventUpdate func(eventType int64, jsonMarshallable any)

// Model has the method set of [channels.EventModel] and stores every event
// through the shared [eventModel.EventModel].
type Model struct {
	em          *eventModel.EventModel
	eventUpdate EventUpdate
}

// New returns a Model that stores through em and reports changes to
// eventUpdate. eventUpdate may be nil.
func New(em *eventModel.EventModel, eventUpdate EventUpdate) *Model {
	if eventUpdate == nil {
		eventUpdate = func(int64, any) {}
	}
	return &Model{em: em, eventUpdate: eventUpdate}
}

// JoinChannel is called whenever a channel is joined locally.
func (m *Model) JoinChannel(channel *cryptoBroadcast.Channel) {
	parentErr := errors.New("failed to JoinChannel")

	_, err := m.em.JoinChannel(encodeChannelID(channel.ReceptionID),
		channel.Name, channel.Description)
	if err != nil {
		jww.ERROR.Printf("%+v", errors.WithMessagef(parentErr,
			"Unable to store channel %s: %+v", channel.ReceptionID, err))
	}
}

// LeaveChannel is called whenever a channel is left locally. The channel's
// messages are deleted with it.
func (m *Model) LeaveChannel(channelID *id.ID) {
	parentErr := errors.New("failed to LeaveChannel")

	deleted, err := m.em.LeaveConversation(encodeChannelID(channelID))
	if err != nil {
		jww.ERROR.Printf("%+v", errors.WithMessagef(parentErr,
			"Unable to delete channel %s: %+v", channelID, err))
		return
	}
	jww.DEBUG.Printf("Successfully deleted channel %s and %d messages",
		channelID, deleted)
}

// ReceiveMessage is called whenever a message is received on a given channel.
//
// It may be called multiple times on the same message; only the first call
// stores it and every call returns the same UUID.
func (m *Model) ReceiveMessage(channelID *id.ID, messageID message.ID,
	nickname, text string, pubKey ed25519.PublicKey, dmToken uint32,
	codeset uint8, timestamp time.Time, lease time.Duration, round rounds.Round,
	mType channels.MessageType, status channels.SentStatus, hidden bool) uint64 {
	jww.TRACE.Printf("ReceiveMessage(%s, %s, %d)", channelID, messageID, mType)

	msg := buildMessage(channelID, messageID, nil, nickname, text, pubKey,
		dmToken, codeset, timestamp, round, status, hidden)
	return m.receive(msg, "message")
}

// ReceiveReply is called whenever a message is received that is a reply on a
// given channel. The message being replied to does not need to be stored.
func (m *Model) ReceiveReply(channelID *id.ID, messageID,
	replyTo message.ID, nickname, text string, pubKey ed25519.PublicKey,
	dmToken uint32, codeset uint8, timestamp time.Time, lease time.Duration,
	round rounds.Round, mType channels.MessageType, status channels.SentStatus,
	hidden bool) uint64 {
	jww.TRACE.Printf("ReceiveReply(%s, %s, %s)", channelID, messageID, replyTo)

	msg := buildMessage(channelID, messageID, &replyTo, nickname, text, pubKey,
		dmToken, codeset, timestamp, round, status, hidden)
	return m.receive(msg, "reply")
}

// ReceiveReaction is called whenever a reaction to a message is received on a
// given channel. The reacted to message does not need to be stored.
func (m *Model) ReceiveReaction(channelID *id.ID, messageID,
	reactionTo message.ID, nickname, reaction string, pubKey ed25519.PublicKey,
	dmToken uint32, codeset uint8, timestamp time.Time, lease time.Duration,
	round rounds.Round, mType channels.MessageType, status channels.SentStatus,
	hidden bool) uint64 {
	jww.TRACE.Printf("ReceiveReaction(%s, %s, %s)",
		channelID, messageID, reactionTo)

	res, err := m.em.ReceiveReaction(eventModel.IncomingReaction{
		ReactionID: eventModel.EncodeID(messageID.Marshal()),
		TargetID:   eventModel.EncodeID(reactionTo.Marshal()),
		Emoji:      reaction,
		Nickname:   nickname,
		PubKey:     pubKey,
		DmToken:    optionalToken(dmToken),
		Codeset:    codeset,
		Timestamp:  timestamp,
	})
	if err != nil {
		jww.ERROR.Printf("Failed to receive reaction: %+v", err)
		return 0
	}

	go m.eventUpdate(bindings.MessageReceived, bindings.MessageReceivedJson{
		Uuid:      int64(res.UUID),
		ChannelID: channelID,
		Update:    !res.Created,
	})
	return res.UUID
}

// UpdateFromUUID is called whenever a message at the UUID is modified.
//
// messageID, timestamp, round, pinned, hidden and status are all nillable. A
// nil value is left unchanged.
//
// Returns channels.NoMessageErr if the message does not exist.
func (m *Model) UpdateFromUUID(uuid uint64, messageID *message.ID,
	timestamp *time.Time, round *rounds.Round, pinned, hidden *bool,
	status *channels.SentStatus) error {
	parentErr := "failed to UpdateFromUUID"

	_, err := m.update(eventModel.MessageSelector{UUID: uuid},
		messageID, timestamp, round, pinned, hidden, status)
	if err != nil {
		return errors.WithMessage(err, parentErr)
	}
	return nil
}

// UpdateFromMessageID is called whenever a message with the message ID is
// modified. Returns the UUID of the modified message.
//
// Returns channels.NoMessageErr if the message does not exist.
func (m *Model) UpdateFromMessageID(messageID message.ID,
	timestamp *time.Time, round *rounds.Round, pinned, hidden *bool,
	status *channels.SentStatus) (uint64, error) {
	parentErr := "failed to UpdateFromMessageID"

	sel := eventModel.MessageSelector{
		MessageID: eventModel.EncodeID(messageID.Marshal())}
	uuid, err := m.update(sel, nil, timestamp, round, pinned, hidden, status)
	if err != nil {
		return 0, errors.WithMessage(err, parentErr)
	}
	return uuid, nil
}

// GetMessage returns the message or reaction with the given message ID.
func (m *Model) GetMessage(
	messageID message.ID) (channels.ModelMessage, error) {
	lookupResult, err := m.em.Lookup(eventModel.EncodeID(messageID.Marshal()))
	if err != nil {
		return channels.ModelMessage{}, err
	}

	var channelID *id.ID
	if lookupResult.ConversationID != "" {
		channelID, err = decodeChannelID(lookupResult.ConversationID)
		if err != nil {
			return channels.ModelMessage{}, err
		}
	}

	var parentMsgID message.ID
	if lookupResult.ReplyTo != "" {
		parentMsgID, err = decodeMessageID(lookupResult.ReplyTo)
		if err != nil {
			return channels.ModelMessage{}, err
		}
	}

	mType := channels.Text
	if lookupResult.IsReaction {
		mType = channels.Reaction
	}

	return channels.ModelMessage{
		UUID:            lookupResult.UUID,
		Nickname:        lookupResult.Codename,
		MessageID:       messageID,
		ChannelID:       channelID,
		ParentMessageID: parentMsgID,
		Timestamp:       lookupResult.Timestamp,
		Status:          channels.SentStatus(lookupResult.Status),
		Hidden:          lookupResult.Hidden,
		Pinned:          lookupResult.Pinned,
		Content:         []byte(lookupResult.Text),
		Type:            mType,
		Round:           id.Round(lookupResult.Round),
		PubKey:          lookupResult.PubKey,
		CodesetVersion:  lookupResult.CodesetVersion,
	}, nil
}

// DeleteMessage removes the message or reaction with the given message ID
// from storage. Deleting an unknown message does nothing.
func (m *Model) DeleteMessage(messageID message.ID) error {
	found, err := m.em.DeleteMessage(eventModel.EncodeID(messageID.Marshal()))
	if err != nil {
		return err
	}

	if found {
		go m.eventUpdate(bindings.MessageDeleted,
			bindings.MessageDeletedJson{MessageID: messageID})
	}
	return nil
}

// MuteUser is called whenever a user is muted or unmuted.
func (m *Model) MuteUser(
	channelID *id.ID, pubKey ed25519.PublicKey, unmute bool) {

	go m.eventUpdate(bindings.UserMuted, bindings.UserMutedJson{
		ChannelID: channelID,
		PubKey:    pubKey,
		Unmute:    unmute,
	})
}

// receive stores the message and reports it to the UI.
func (m *Model) receive(msg eventModel.IncomingMessage, kind string) uint64 {
	res, err := m.em.ReceiveMessage(msg)
	if err != nil {
		jww.ERROR.Printf("Failed to receive %s: %+v", kind, err)
		return 0
	}

	channelID, err := decodeChannelID(res.ConversationID)
	if err != nil {
		jww.ERROR.Printf("Failed to decode channel of %s %d: %+v",
			kind, res.UUID, err)
		return res.UUID
	}

	go m.eventUpdate(bindings.MessageReceived, bindings.MessageReceivedJson{
		Uuid:      int64(res.UUID),
		ChannelID: channelID,
		Update:    !res.Created,
	})
	return res.UUID
}

// update converts the nillable channels fields to a MessageUpdate and applies
// it.
func (m *Model) update(sel eventModel.MessageSelector, messageID *message.ID,
	timestamp *time.Time, round *rounds.Round, pinned, hidden *bool,
	status *channels.SentStatus) (uint64, error) {
	var upd eventModel.MessageUpdate
	if messageID != nil {
		encoded := eventModel.EncodeID(messageID.Marshal())
		upd.MessageID = &encoded
	}
	upd.Timestamp = timestamp
	if round != nil {
		r := uint64(round.ID)
		upd.Round = &r
	}
	upd.Pinned = pinned
	upd.Hidden = hidden
	if status != nil {
		s := uint8(*status)
		upd.Status = &s
	}

	res, err := m.em.UpdateMessage(sel, upd)
	if err != nil {
		return 0, err
	}

	channelID, err := decodeChannelID(res.ConversationID)
	if err != nil {
		return 0, err
	}

	go m.eventUpdate(bindings.MessageReceived, bindings.MessageReceivedJson{
		Uuid:      int64(res.UUID),
		ChannelID: channelID,
		Update:    true,
	})
	return res.UUID, nil
}

// buildMessage converts typical [channels.EventModel] inputs into an
// IncomingMessage.
func buildMessage(channelID *id.ID, messageID message.ID, replyTo *message.ID,
	nickname, text string, pubKey ed25519.PublicKey, dmToken uint32,
	codeset uint8, timestamp time.Time, round rounds.Round,
	status channels.SentStatus, hidden bool) eventModel.IncomingMessage {
	msg := eventModel.IncomingMessage{
		Kind:           eventModel.Channel,
		ConversationID: encodeChannelID(channelID),
		MessageID:      eventModel.EncodeID(messageID.Marshal()),
		Text:           text,
		Nickname:       nickname,
		PubKey:         pubKey,
		DmToken:        optionalToken(dmToken),
		Codeset:        codeset,
		Timestamp:      timestamp,
		Round:          uint64(round.ID),
		Status:         uint8(status),
		Hidden:         hidden,
	}
	if replyTo != nil {
		msg.ReplyTo = eventModel.EncodeID(replyTo.Marshal())
	}
	return msg
}

// optionalToken maps the zero token, sent by users who do not accept direct
// messages, to nil.
func optionalToken(dmToken uint32) *uint32 {
	if dmToken == 0 {
		return nil
	}
	return &dmToken
}

func encodeChannelID(channelID *id.ID) string {
	return eventModel.EncodeID(channelID.Marshal())
}

func decodeChannelID(s string) (*id.ID, error) {
	b, err := eventModel.DecodeID(s)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid channel ID %q", s)
	}
	return id.Unmarshal(b)
}

func decodeMessageID(s string) (message.ID, error) {
	b, err := eventModel.DecodeID(s)
	if err != nil {
		return message.ID{}, errors.Wrapf(err, "invalid message ID %q", s)
	}
	return message.UnmarshalID(b)
}
