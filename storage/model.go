////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package storage

import (
	"time"
)

const (
	// SelfName is the display name of the self Conversation.
	SelfName = "<self>"

	// Column names used in queries (must match the gorm naming of the fields
	// below).
	idColumn             = "id"
	isSelfColumn         = "is_self"
	uuidColumn           = "uuid"
	messageIDColumn      = "message_id"
	conversationIDColumn = "conversation_id"
	timestampColumn      = "timestamp"
	reactionIDColumn     = "reaction_id"
	targetIDColumn       = "target_id"
	emojiColumn          = "emoji"
	metaNameColumn       = "name"
)

// Conversation is a direct (1:1) or channel (group) message thread.
//
// A Conversation has many Message.
//
// The ID is the base64 encoded public key of the partner for direct
// conversations and the base64 encoded channel ID for channels. DmToken is
// only set for direct conversations.
type Conversation struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description"`
	DmToken     *uint32   `json:"dm_token"`
	Color       int       `json:"color"`
	IsSelf      bool      `gorm:"index" json:"is_self"`
	CreatedAt   time.Time `json:"created_at"`

	Messages []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
}

// IsDirect returns true if the Conversation is a direct conversation.
func (c *Conversation) IsDirect() bool {
	return c.DmToken != nil
}

// Participant is a known sender.
type Participant struct {
	ID             string `gorm:"primaryKey" json:"id"`
	PubKey         []byte `gorm:"not null" json:"pub_key"`
	Codename       string `json:"codename"`
	DmToken        uint32 `json:"dm_token"`
	Color          int    `json:"color"`
	CodesetVersion uint8  `json:"codeset_version"`
}

// Message is a single text item in a Conversation.
//
// A Message may refer to another Message (ReplyTo) and to the Participant
// that sent it.
type Message struct {
	UUID           uint64    `gorm:"primaryKey;autoIncrement:true" json:"uuid"`
	MessageID      string    `gorm:"uniqueIndex;not null" json:"message_id"`
	ConversationID string    `gorm:"index;not null" json:"conversation_id"`
	ParticipantID  *string   `gorm:"index" json:"participant_id"`
	ReplyTo        *string   `json:"reply_to"`
	Text           string    `json:"text"`
	Timestamp      time.Time `gorm:"index" json:"timestamp"`
	IsIncoming     bool      `json:"is_incoming"`
	Status         uint8     `json:"status"`
	Round          uint64    `json:"round"`
	CodesetVersion uint8     `json:"codeset_version"`
	Pinned         bool      `json:"pinned"`
	Hidden         bool      `json:"hidden"`
}

// Reaction is an emoji attached to a Message. Reactions are keyed on their own
// ID but are deleted by the composite (TargetID, Emoji).
type Reaction struct {
	UUID          uint64    `gorm:"primaryKey;autoIncrement:true" json:"uuid"`
	ReactionID    string    `gorm:"uniqueIndex;not null" json:"reaction_id"`
	TargetID      string    `gorm:"index:idx_reaction_target,priority:1;not null" json:"target_id"`
	Emoji         string    `gorm:"index:idx_reaction_target,priority:2;not null" json:"emoji"`
	ParticipantID *string   `json:"participant_id"`
	IsMe          bool      `json:"is_me"`
	Timestamp     time.Time `json:"timestamp"`
}

// meta stores versioning information about the database.
type meta struct {
	Name  string `gorm:"primaryKey"`
	Value string `gorm:"not null"`
}

// TableName sets the table name of meta.
func (meta) TableName() string { return "meta" }
