////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package storage is the persisted conversation store. It holds the
// Conversation, Participant, Message and Reaction records in a sqlite database
// accessed through gorm.
package storage

import (
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// memoryDSN opens a private in-memory database. It only survives as long as
// its single connection.
const memoryDSN = "file::memory:"

// slowQueryThreshold is the duration after which gorm logs a query as slow.
const slowQueryThreshold = 200 * time.Millisecond

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record does not exist")

// Store is the conversation store. All mutations are made inside Update,
// which runs its function in a single transaction.
type Store struct {
	db   *gorm.DB
	path string
}

// Open opens, creating if needed, the sqlite database at path and migrates it
// to the current schema version. An empty path opens an in-memory database.
func Open(path string) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = memoryDSN
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.New(jww.WARN, logger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %q", dsn)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get database handle")
	}

	// sqlite allows a single writer, and an in-memory database is private to
	// its connection
	sqlDB.SetMaxOpenConns(1)

	if err = checkAndUpgrade(db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	jww.INFO.Printf("[STORE] Opened conversation store %q", dsn)
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Path returns the path the Store was opened with.
func (s *Store) Path() string {
	return s.path
}

// Update runs fn inside a transaction. If fn returns an error, every change it
// made is rolled back.
func (s *Store) Update(fn func(txn *Txn) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Txn{db: tx})
	})
}

// View runs fn against the database outside a transaction. It is meant for
// reads.
func (s *Store) View(fn func(txn *Txn) error) error {
	return fn(&Txn{db: s.db})
}

// Txn gives access to the records of a Store. It is only valid inside the
// Update or View call that created it.
type Txn struct {
	db *gorm.DB
}

// notFound converts gorm.ErrRecordNotFound to ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

////////////////////////////////////////////////////////////////////////////////
// Conversations                                                              //
////////////////////////////////////////////////////////////////////////////////

// GetConversation returns the Conversation with the ID. Returns ErrNotFound if
// it does not exist.
func (t *Txn) GetConversation(id string) (*Conversation, error) {
	var c Conversation
	err := t.db.Where(idColumn+" = ?", id).Take(&c).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// SelfConversation returns the self Conversation. Returns ErrNotFound if none
// exists.
func (t *Txn) SelfConversation() (*Conversation, error) {
	var c Conversation
	err := t.db.Where(isSelfColumn+" = ?", true).Take(&c).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// CreateConversation inserts a new Conversation.
func (t *Txn) CreateConversation(c *Conversation) error {
	err := t.db.Omit(clause.Associations).Create(c).Error
	if err != nil {
		return errors.Wrapf(err, "failed to create conversation %s", c.ID)
	}
	return nil
}

// FetchOrCreateConversation returns the Conversation with the ID. If it does
// not exist, the Conversation returned by create is inserted and returned.
// Returns true if the Conversation was created.
func (t *Txn) FetchOrCreateConversation(id string,
	create func() (*Conversation, error)) (*Conversation, bool, error) {
	c, err := t.GetConversation(id)
	if err == nil {
		return c, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	if c, err = create(); err != nil {
		return nil, false, err
	}
	c.ID = id
	if err = t.CreateConversation(c); err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// UpdateConversationInfo sets the name and description of the Conversation.
func (t *Txn) UpdateConversationInfo(id, name, description string) error {
	res := t.db.Model(&Conversation{}).Where(idColumn+" = ?", id).
		Updates(map[string]any{"name": name, "description": description})
	if res.Error != nil {
		return res.Error
	} else if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkSelf turns the existing Conversation into the self Conversation, naming
// it SelfName and setting its DM token.
func (t *Txn) MarkSelf(id string, dmToken uint32) error {
	res := t.db.Model(&Conversation{}).Where(idColumn+" = ?", id).
		Updates(map[string]any{
			"name":       SelfName,
			"dm_token":   dmToken,
			isSelfColumn: true,
		})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "failed to mark conversation %s as self", id)
	} else if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteConversation deletes the Conversation, its Messages and all Reactions
// to those Messages. Returns the number of deleted Messages or ErrNotFound if
// the Conversation does not exist.
func (t *Txn) DeleteConversation(id string) (int64, error) {
	messageIDs := t.db.Model(&Message{}).Select(messageIDColumn).
		Where(conversationIDColumn+" = ?", id)
	err := t.db.Where(targetIDColumn+" IN (?)", messageIDs).
		Delete(&Reaction{}).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete reactions")
	}

	res := t.db.Where(conversationIDColumn+" = ?", id).Delete(&Message{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "failed to delete messages")
	}
	deleted := res.RowsAffected

	res = t.db.Where(idColumn+" = ?", id).Delete(&Conversation{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "failed to delete conversation")
	} else if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}
	return deleted, nil
}

// Conversations returns all Conversations ordered by ID.
func (t *Txn) Conversations() ([]Conversation, error) {
	var conversations []Conversation
	err := t.db.Order(idColumn).Find(&conversations).Error
	return conversations, err
}

////////////////////////////////////////////////////////////////////////////////
// Participants                                                               //
////////////////////////////////////////////////////////////////////////////////

// GetParticipant returns the Participant with the ID. Returns ErrNotFound if it
// does not exist.
func (t *Txn) GetParticipant(id string) (*Participant, error) {
	var p Participant
	err := t.db.Where(idColumn+" = ?", id).Take(&p).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// UpsertParticipant inserts the Participant or, if one with the same ID
// exists, overwrites its codename, token, color and codeset. Returns true if
// the Participant was created.
func (t *Txn) UpsertParticipant(p *Participant) (bool, error) {
	_, err := t.GetParticipant(p.ID)
	if errors.Is(err, ErrNotFound) {
		if err = t.db.Create(p).Error; err != nil {
			return false, errors.Wrapf(err,
				"failed to create participant %s", p.ID)
		}
		return true, nil
	} else if err != nil {
		return false, err
	}

	err = t.db.Model(&Participant{}).Where(idColumn+" = ?", p.ID).
		Updates(map[string]any{
			"codename":        p.Codename,
			"dm_token":        p.DmToken,
			"color":           p.Color,
			"codeset_version": p.CodesetVersion,
		}).Error
	if err != nil {
		return false, errors.Wrapf(err, "failed to update participant %s", p.ID)
	}
	return false, nil
}

////////////////////////////////////////////////////////////////////////////////
// Messages                                                                   //
////////////////////////////////////////////////////////////////////////////////

// GetMessage returns the Message with the message ID. Returns ErrNotFound if
// it does not exist.
func (t *Txn) GetMessage(messageID string) (*Message, error) {
	var m Message
	err := t.db.Where(messageIDColumn+" = ?", messageID).Take(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// GetMessageByUUID returns the Message with the UUID. Returns ErrNotFound if
// it does not exist.
func (t *Txn) GetMessageByUUID(uuid uint64) (*Message, error) {
	var m Message
	err := t.db.Where(uuidColumn+" = ?", uuid).Take(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// InsertMessage inserts the Message unless one with the same message ID
// already exists. Returns the UUID of the stored Message and true if it was
// inserted.
func (t *Txn) InsertMessage(m *Message) (uint64, bool, error) {
	existing, err := t.GetMessage(m.MessageID)
	if err == nil {
		return existing.UUID, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return 0, false, err
	}

	m.UUID = 0
	if err = t.db.Create(m).Error; err != nil {
		return 0, false, errors.Wrapf(err,
			"failed to insert message %s", m.MessageID)
	}
	return m.UUID, true, nil
}

// SaveMessage writes every field of an existing Message.
func (t *Txn) SaveMessage(m *Message) error {
	if m.UUID == 0 {
		return errors.Errorf("message %s has no UUID", m.MessageID)
	}
	return t.db.Save(m).Error
}

// DeleteMessage deletes the Message with the message ID. Returns true if a
// Message was deleted.
func (t *Txn) DeleteMessage(messageID string) (bool, error) {
	res := t.db.Where(messageIDColumn+" = ?", messageID).Delete(&Message{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Messages returns all Messages in the Conversation in ascending timestamp
// order.
func (t *Txn) Messages(conversationID string) ([]Message, error) {
	var messages []Message
	err := t.db.Where(conversationIDColumn+" = ?", conversationID).
		Order(timestampColumn).Order(uuidColumn).Find(&messages).Error
	return messages, err
}

////////////////////////////////////////////////////////////////////////////////
// Reactions                                                                  //
////////////////////////////////////////////////////////////////////////////////

// GetReaction returns the Reaction with the reaction ID. Returns ErrNotFound
// if it does not exist.
func (t *Txn) GetReaction(reactionID string) (*Reaction, error) {
	var r Reaction
	err := t.db.Where(reactionIDColumn+" = ?", reactionID).Take(&r).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// InsertReaction inserts the Reaction unless one with the same reaction ID
// already exists. Returns the UUID of the stored Reaction and true if it was
// inserted.
func (t *Txn) InsertReaction(r *Reaction) (uint64, bool, error) {
	existing, err := t.GetReaction(r.ReactionID)
	if err == nil {
		return existing.UUID, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return 0, false, err
	}

	r.UUID = 0
	if err = t.db.Create(r).Error; err != nil {
		return 0, false, errors.Wrapf(err,
			"failed to insert reaction %s", r.ReactionID)
	}
	return r.UUID, true, nil
}

// DeleteReactions deletes every Reaction with the target and emoji. Returns
// the number deleted.
func (t *Txn) DeleteReactions(targetID, emoji string) (int64, error) {
	res := t.db.Where(targetIDColumn+" = ? AND "+emojiColumn+" = ?",
		targetID, emoji).Delete(&Reaction{})
	return res.RowsAffected, res.Error
}

// DeleteReactionsByID deletes the Reaction with the reaction ID. Returns the
// number deleted.
func (t *Txn) DeleteReactionsByID(reactionID string) (int64, error) {
	res := t.db.Where(reactionIDColumn+" = ?", reactionID).Delete(&Reaction{})
	return res.RowsAffected, res.Error
}

// Reactions returns all Reactions to the target Message in ascending
// timestamp order.
func (t *Txn) Reactions(targetID string) ([]Reaction, error) {
	var reactions []Reaction
	err := t.db.Where(targetIDColumn+" = ?", targetID).
		Order(timestampColumn).Order(uuidColumn).Find(&reactions).Error
	return reactions, err
}
