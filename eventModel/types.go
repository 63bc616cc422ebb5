////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package eventModel

import (
	"crypto/ed25519"
	"encoding/base64"
	"strconv"
	"time"
)

// ConversationKind distinguishes direct conversations from channels.
type ConversationKind uint8

const (
	Channel ConversationKind = iota
	Direct
)

// String returns a human-readable name for the ConversationKind.
func (k ConversationKind) String() string {
	switch k {
	case Channel:
		return "channel"
	case Direct:
		return "direct"
	default:
		return "ConversationKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// IncomingMessage is a message or reply received from the transport.
type IncomingMessage struct {
	Kind ConversationKind

	// ConversationID is the base64 partner public key for direct messages and
	// the base64 channel ID for channels.
	ConversationID string

	// ConversationName names a channel conversation created by this message.
	// If empty, a name is derived from the ID.
	ConversationName string

	MessageID string

	// Text is the wire encoded body (see package codec).
	Text string

	// Nickname is used as the display name if no identity can be constructed
	// for PubKey.
	Nickname string
	PubKey   ed25519.PublicKey

	// DmToken is nil when the sender does not accept direct messages.
	DmToken *uint32

	Codeset   uint8
	Timestamp time.Time
	Round     uint64
	Status    uint8

	// ReplyTo is the message ID this message replies to, if any.
	ReplyTo string

	Hidden bool
}

// IncomingReaction is a reaction received from the transport.
type IncomingReaction struct {
	ReactionID string
	TargetID   string
	Emoji      string
	Nickname   string
	PubKey     ed25519.PublicKey
	DmToken    *uint32
	Codeset    uint8
	Timestamp  time.Time
}

// Result describes the outcome of storing an event.
type Result struct {
	// UUID is the local ID of the stored message or reaction.
	UUID uint64

	ConversationID string

	// Created is false when the event was a replay of a stored record.
	Created bool

	// ConversationCreated is true if the event created its conversation.
	ConversationCreated bool
}

// ModelMessage is the result of a Lookup. For reactions, Text holds the emoji
// and ReplyTo the target message.
type ModelMessage struct {
	UUID           uint64
	MessageID      string
	PubKey         []byte
	ConversationID string
	Codename       string
	Text           string
	ReplyTo        string
	Timestamp      time.Time
	Status         uint8
	Round          uint64
	CodesetVersion uint8
	Pinned         bool
	Hidden         bool
	IsReaction     bool
}

// MessageSelector identifies a stored message by its UUID or, if the UUID is
// zero or unknown, by its message ID.
type MessageSelector struct {
	UUID      uint64
	MessageID string
}

// MessageUpdate lists changes to a stored message. Nil fields are left
// unchanged.
type MessageUpdate struct {
	MessageID *string
	Timestamp *time.Time
	Round     *uint64
	Pinned    *bool
	Hidden    *bool
	Status    *uint8
}

// EncodeID base64 encodes a public key, message ID or channel ID for use as a
// record ID.
func EncodeID(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeID reverses EncodeID.
func DecodeID(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
