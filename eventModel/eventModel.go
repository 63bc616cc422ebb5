////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package eventModel folds the stream of transport events (messages, replies,
// reactions, deletions and status updates) into the conversation store.
//
// Events may arrive concurrently, out of order and more than once. Every store
// mutation runs on a single writer inside one transaction, so fetch-or-create
// sequences are atomic and a replayed event never creates a duplicate record.
package eventModel

import (
	"crypto/ed25519"
	"strings"
	"time"

	"github.com/aquilax/truncate"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/xxdk-eventstore/codec"
	"gitlab.com/elixxir/xxdk-eventstore/emoji"
	"gitlab.com/elixxir/xxdk-eventstore/identity"
	"gitlab.com/elixxir/xxdk-eventstore/storage"
	"gitlab.com/elixxir/xxdk-eventstore/worker"
)

// channelNamePrefixLen is the number of characters of the channel ID used to
// name a channel conversation that was created without a name.
const channelNamePrefixLen = 8

// logTextLen is the max length of message text printed to the log.
const logTextLen = 64

// Repository is the conversation store used by the EventModel.
type Repository interface {
	// Update runs fn in a single transaction.
	Update(fn func(txn *storage.Txn) error) error

	// View runs fn for reading.
	View(fn func(txn *storage.Txn) error) error
}

// EventModel is the shared handler behind the channel and DM adapters.
type EventModel struct {
	store    Repository
	resolver *identity.Resolver
	writer   *worker.Writer
	emojis   *emoji.Set
	metrics  *metrics
}

// New creates an EventModel that writes to the store. If resolver is nil, a
// memoizing resolver using the xxDK identity construction is used. Metrics are
// registered with reg if it is not nil.
//
// A nil store is a wiring error and panics.
func New(store Repository, resolver *identity.Resolver, p Params,
	reg prometheus.Registerer) *EventModel {
	if store == nil {
		jww.FATAL.Panicf("[EV] Cannot create an event model without a store")
	}
	if resolver == nil {
		resolver = identity.NewResolver(nil, true)
	}

	em := &EventModel{
		store:    store,
		resolver: resolver,
		writer:   worker.NewWriter("EventModel", p.Writer),
	}
	if p.StrictReactions {
		em.emojis = emoji.NewSet()
	}
	em.metrics = newMetrics(reg, em.writer.Len)

	return em
}

// Close stops the writer once all queued events are stored.
func (em *EventModel) Close() {
	em.writer.Stop()
}

// ReceiveMessage stores a received message or reply.
//
// The text is decoded, the sender's identity resolved and the conversation
// fetched or created. The sender is stored as a participant, overwriting the
// token and color of a known participant. The message is outgoing if the sender
// is the local identity (the self conversation) and incoming otherwise.
// Receiving a message ID that is already stored changes nothing.
func (em *EventModel) ReceiveMessage(msg IncomingMessage) (Result, error) {
	jww.TRACE.Printf("[EV] ReceiveMessage(%s, %s)",
		msg.ConversationID, msg.MessageID)

	if msg.MessageID == "" {
		return Result{}, em.reject(eventMessage, msg.MessageID, ErrMissingMessageID)
	} else if msg.ConversationID == "" {
		return Result{}, em.reject(eventMessage, msg.MessageID, ErrMissingConversationID)
	}

	text, ok := codec.Decode(msg.Text)
	if !ok {
		return Result{}, em.reject(eventMessage, msg.MessageID, ErrUndecodable)
	}
	jww.TRACE.Printf("[EV] Message %s text: %q", msg.MessageID,
		truncate.Truncate(text, logTextLen, "...", truncate.PositionMiddle))

	sender := em.resolveSender(msg.PubKey, msg.Codeset, msg.Nickname)
	newConversation := em.conversationBuilder(msg, sender.Display)

	// The token of a direct message belongs to the partner, who is not the
	// sender of an echoed outgoing message
	senderToken := msg.DmToken
	if msg.Kind == Direct && EncodeID(msg.PubKey) != msg.ConversationID {
		senderToken = nil
	}

	var res Result
	err := em.writer.Do(worker.ReceiveMessageTag, func() error {
		return em.store.Update(func(txn *storage.Txn) error {
			c, created, err := txn.FetchOrCreateConversation(
				msg.ConversationID, newConversation)
			if err != nil {
				return err
			}

			participantID, err := upsertParticipant(
				txn, msg.PubKey, sender, senderToken, msg.Codeset)
			if err != nil {
				return err
			}

			self, err := isSelf(txn, participantID)
			if err != nil {
				return err
			}

			m := &storage.Message{
				MessageID:      msg.MessageID,
				ConversationID: c.ID,
				ParticipantID:  participantID,
				ReplyTo:        optionalString(msg.ReplyTo),
				Text:           text,
				Timestamp:      timestampOrNow(msg.Timestamp),
				IsIncoming:     !self,
				Status:         msg.Status,
				Round:          msg.Round,
				CodesetVersion: msg.Codeset,
				Hidden:         msg.Hidden,
			}
			uuid, inserted, err := txn.InsertMessage(m)
			if err != nil {
				return err
			}

			res = Result{
				UUID:                uuid,
				ConversationID:      c.ID,
				Created:             inserted,
				ConversationCreated: created,
			}
			return nil
		})
	})
	if err != nil {
		return Result{}, em.fail(eventMessage, msg.MessageID, err)
	}

	em.stored(eventMessage, msg.MessageID, res.Created)
	return res, nil
}

// ReceiveReaction stores a received reaction. The reaction must have an ID, a
// target message and an emoji. Receiving a reaction ID that is already stored
// changes nothing.
func (em *EventModel) ReceiveReaction(r IncomingReaction) (Result, error) {
	jww.TRACE.Printf("[EV] ReceiveReaction(%s, %s, %q)",
		r.ReactionID, r.TargetID, r.Emoji)

	if err := em.validateReaction(r.ReactionID, r.TargetID, r.Emoji); err != nil {
		return Result{}, em.reject(eventReaction, r.ReactionID, err)
	}

	sender := em.resolveSender(r.PubKey, r.Codeset, r.Nickname)

	var res Result
	err := em.writer.Do(worker.ReceiveReactionTag, func() error {
		return em.store.Update(func(txn *storage.Txn) error {
			participantID, err := upsertParticipant(
				txn, r.PubKey, sender, r.DmToken, r.Codeset)
			if err != nil {
				return err
			}

			self, err := isSelf(txn, participantID)
			if err != nil {
				return err
			}

			uuid, inserted, err := txn.InsertReaction(&storage.Reaction{
				ReactionID:    r.ReactionID,
				TargetID:      r.TargetID,
				Emoji:         r.Emoji,
				ParticipantID: participantID,
				IsMe:          self,
				Timestamp:     timestampOrNow(r.Timestamp),
			})
			if err != nil {
				return err
			}

			res = Result{UUID: uuid, Created: inserted}
			return nil
		})
	})
	if err != nil {
		return Result{}, em.fail(eventReaction, r.ReactionID, err)
	}

	em.stored(eventReaction, r.ReactionID, res.Created)
	return res, nil
}

// DeleteReaction deletes every reaction with the emoji on the target message.
// Returns the number of deleted reactions; none matching is not an error.
func (em *EventModel) DeleteReaction(targetID, emoji string) (int64, error) {
	jww.TRACE.Printf("[EV] DeleteReaction(%s, %q)", targetID, emoji)

	var deleted int64
	err := em.writer.Do(worker.DeleteReactionTag, func() error {
		return em.store.Update(func(txn *storage.Txn) (err error) {
			deleted, err = txn.DeleteReactions(targetID, emoji)
			return err
		})
	})
	if err != nil {
		return 0, em.fail(eventDeleteReaction, targetID, err)
	}

	if deleted == 0 {
		jww.DEBUG.Printf("[EV] No %q reactions on %s to delete", emoji, targetID)
		em.metrics.count(eventDeleteReaction, outcomeNoop)
	} else {
		em.metrics.count(eventDeleteReaction, outcomeStored)
	}
	return deleted, nil
}

// DeleteMessage deletes the message with the ID. If there is no such message,
// reactions with the ID are deleted instead; a delete request carries the same
// ID field for both. Returns false if neither exists, which is not an error.
func (em *EventModel) DeleteMessage(messageID string) (bool, error) {
	jww.TRACE.Printf("[EV] DeleteMessage(%s)", messageID)

	var found bool
	err := em.writer.Do(worker.DeleteMessageTag, func() error {
		return em.store.Update(func(txn *storage.Txn) error {
			deleted, err := txn.DeleteMessage(messageID)
			if err != nil || deleted {
				found = deleted
				return err
			}

			n, err := txn.DeleteReactionsByID(messageID)
			found = n > 0
			return err
		})
	})
	if err != nil {
		return false, em.fail(eventDeleteMessage, messageID, err)
	}

	if !found {
		jww.INFO.Printf("[EV] No message or reaction %s to delete", messageID)
		em.metrics.count(eventDeleteMessage, outcomeNoop)
	} else {
		em.metrics.count(eventDeleteMessage, outcomeStored)
	}
	return found, nil
}

// UpdateMessage applies the update to a stored message. Returns the UUID and
// conversation of the message or ErrNoMessage if it does not exist.
func (em *EventModel) UpdateMessage(
	sel MessageSelector, upd MessageUpdate) (Result, error) {
	jww.TRACE.Printf("[EV] UpdateMessage(%d, %s)", sel.UUID, sel.MessageID)
	return em.updateMessage(eventUpdate, sel, upd)
}

// updateMessage applies the update and counts the outcome under the event.
func (em *EventModel) updateMessage(
	event string, sel MessageSelector, upd MessageUpdate) (Result, error) {
	var res Result
	err := em.writer.Do(worker.UpdateMessageTag, func() error {
		return em.store.Update(func(txn *storage.Txn) error {
			m, err := selectMessage(txn, sel)
			if err != nil {
				return err
			}

			if upd.MessageID != nil && *upd.MessageID != "" {
				m.MessageID = *upd.MessageID
			}
			if upd.Timestamp != nil && !upd.Timestamp.IsZero() {
				m.Timestamp = upd.Timestamp.UTC()
			}
			if upd.Round != nil && *upd.Round != 0 {
				m.Round = *upd.Round
			}
			if upd.Pinned != nil {
				m.Pinned = *upd.Pinned
			}
			if upd.Hidden != nil {
				m.Hidden = *upd.Hidden
			}
			if upd.Status != nil {
				m.Status = *upd.Status
			}

			res = Result{UUID: m.UUID, ConversationID: m.ConversationID}
			return txn.SaveMessage(m)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNoMessage) {
			em.metrics.count(event, outcomeNoop)
			return Result{}, err
		}
		return Result{}, em.fail(event, sel.MessageID, err)
	}

	em.metrics.count(event, outcomeStored)
	return res, nil
}

// SendStatusUpdate records the delivery status of a sent message. An unknown
// message is logged and ignored.
func (em *EventModel) SendStatusUpdate(uuid uint64, messageID string,
	timestamp time.Time, round uint64, status uint8) error {
	jww.TRACE.Printf("[EV] SendStatusUpdate(%d, %s, %d)", uuid, messageID, status)

	_, err := em.updateMessage(eventStatus,
		MessageSelector{UUID: uuid, MessageID: messageID},
		MessageUpdate{Timestamp: &timestamp, Round: &round, Status: &status})
	if errors.Is(err, ErrNoMessage) {
		jww.DEBUG.Printf("[EV] Status %d for unknown message %d (%s)",
			status, uuid, messageID)
		return nil
	}
	return err
}

// Lookup returns the sender public key and ID of the message or reaction with
// the ID. Messages are searched before reactions. Returns ErrNoMessage if
// neither exists.
func (em *EventModel) Lookup(messageID string) (ModelMessage, error) {
	var mm ModelMessage
	err := em.store.View(func(txn *storage.Txn) error {
		m, err := txn.GetMessage(messageID)
		if err == nil {
			mm = ModelMessage{
				UUID:           m.UUID,
				MessageID:      m.MessageID,
				ConversationID: m.ConversationID,
				Text:           m.Text,
				ReplyTo:        derefString(m.ReplyTo),
				Timestamp:      m.Timestamp,
				Status:         m.Status,
				Round:          m.Round,
				CodesetVersion: m.CodesetVersion,
				Pinned:         m.Pinned,
				Hidden:         m.Hidden,
			}
			return fillSender(txn, &mm, m.ParticipantID)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		r, err := txn.GetReaction(messageID)
		if err == nil {
			mm = ModelMessage{
				UUID:       r.UUID,
				MessageID:  r.ReactionID,
				Text:       r.Emoji,
				ReplyTo:    r.TargetID,
				Timestamp:  r.Timestamp,
				IsReaction: true,
			}
			return fillSender(txn, &mm, r.ParticipantID)
		} else if errors.Is(err, storage.ErrNotFound) {
			return errors.WithMessagef(ErrNoMessage, "lookup of %s", messageID)
		}
		return err
	})
	return mm, err
}

////////////////////////////////////////////////////////////////////////////////
// Conversations                                                              //
////////////////////////////////////////////////////////////////////////////////

// JoinChannel stores the channel conversation or, if it exists, updates its
// name and description. Returns true if the conversation was created.
func (em *EventModel) JoinChannel(
	channelID, name, description string) (bool, error) {
	jww.TRACE.Printf("[EV] JoinChannel(%s, %q)", channelID, name)
	if channelID == "" {
		return false, em.reject(eventJoin, channelID, ErrMissingConversationID)
	}

	var created bool
	err := em.writer.Do(worker.JoinConversationTag, func() error {
		return em.store.Update(func(txn *storage.Txn) (err error) {
			_, created, err = txn.FetchOrCreateConversation(channelID,
				func() (*storage.Conversation, error) {
					return &storage.Conversation{
						Name:        channelName(channelID, name),
						Description: description,
						CreatedAt:   time.Now().UTC(),
					}, nil
				})
			if err != nil || created {
				return err
			}
			return txn.UpdateConversationInfo(
				channelID, channelName(channelID, name), description)
		})
	})
	if err != nil {
		return false, em.fail(eventJoin, channelID, err)
	}

	em.stored(eventJoin, channelID, created)
	return created, nil
}

// JoinDirect stores a direct conversation with the partner. Returns true if
// the conversation was created.
func (em *EventModel) JoinDirect(partner ed25519.PublicKey, codeset uint8,
	dmToken uint32, nickname string) (bool, error) {
	conversationID := EncodeID(partner)
	jww.TRACE.Printf("[EV] JoinDirect(%s)", conversationID)
	if len(partner) == 0 {
		return false, em.reject(eventJoin, conversationID, ErrMissingConversationID)
	}

	display := em.resolveSender(partner, codeset, nickname)

	var created bool
	err := em.writer.Do(worker.JoinConversationTag, func() error {
		return em.store.Update(func(txn *storage.Txn) (err error) {
			_, created, err = txn.FetchOrCreateConversation(conversationID,
				func() (*storage.Conversation, error) {
					return &storage.Conversation{
						Name:      display.Codename,
						DmToken:   &dmToken,
						Color:     display.Color,
						CreatedAt: time.Now().UTC(),
					}, nil
				})
			if err != nil {
				return err
			}
			_, err = upsertParticipant(txn, partner, display, &dmToken, codeset)
			return err
		})
	})
	if err != nil {
		return false, em.fail(eventJoin, conversationID, err)
	}

	em.stored(eventJoin, conversationID, created)
	return created, nil
}

// EnsureSelf stores the self conversation and participant for the local
// identity. Messages and reactions from this key are recorded as outgoing.
// Returns ErrSelfExists if a self conversation exists for a different key.
func (em *EventModel) EnsureSelf(
	pubKey ed25519.PublicKey, codeset uint8, dmToken uint32) error {
	selfID := EncodeID(pubKey)
	jww.TRACE.Printf("[EV] EnsureSelf(%s)", selfID)
	if len(pubKey) == 0 {
		return em.reject(eventJoin, selfID, ErrMissingConversationID)
	}

	display := em.resolveSender(pubKey, codeset, "")

	err := em.writer.Do(worker.JoinConversationTag, func() error {
		return em.store.Update(func(txn *storage.Txn) error {
			existing, err := txn.SelfConversation()
			if err == nil {
				if existing.ID != selfID {
					return errors.WithMessagef(ErrSelfExists,
						"self is %s", existing.ID)
				}
			} else if errors.Is(err, storage.ErrNotFound) {
				// A direct conversation with the local identity may have been
				// stored before it was registered
				_, created, err := txn.FetchOrCreateConversation(selfID,
					func() (*storage.Conversation, error) {
						return &storage.Conversation{
							Name:      storage.SelfName,
							DmToken:   &dmToken,
							Color:     display.Color,
							IsSelf:    true,
							CreatedAt: time.Now().UTC(),
						}, nil
					})
				if err != nil {
					return err
				} else if !created {
					if err = txn.MarkSelf(selfID, dmToken); err != nil {
						return err
					}
				}
			} else {
				return err
			}

			_, err = upsertParticipant(txn, pubKey, display, &dmToken, codeset)
			return err
		})
	})
	if err != nil {
		return em.fail(eventJoin, selfID, err)
	}

	em.metrics.count(eventJoin, outcomeStored)
	return nil
}

// LeaveConversation deletes the conversation and all of its messages. Returns
// the number of deleted messages or ErrNoConversation.
func (em *EventModel) LeaveConversation(conversationID string) (int64, error) {
	jww.TRACE.Printf("[EV] LeaveConversation(%s)", conversationID)

	var deleted int64
	err := em.writer.Do(worker.LeaveConversationTag, func() error {
		return em.store.Update(func(txn *storage.Txn) (err error) {
			deleted, err = txn.DeleteConversation(conversationID)
			if errors.Is(err, storage.ErrNotFound) {
				return errors.WithMessagef(ErrNoConversation,
					"leaving %s", conversationID)
			}
			return err
		})
	})
	if err != nil {
		if errors.Is(err, ErrNoConversation) {
			em.metrics.count(eventLeave, outcomeNoop)
			return 0, err
		}
		return 0, em.fail(eventLeave, conversationID, err)
	}

	jww.DEBUG.Printf("[EV] Left conversation %s and deleted %d messages",
		conversationID, deleted)
	em.metrics.count(eventLeave, outcomeStored)
	return deleted, nil
}

////////////////////////////////////////////////////////////////////////////////
// Reads                                                                      //
////////////////////////////////////////////////////////////////////////////////

// Conversations returns all conversations.
func (em *EventModel) Conversations() (conversations []storage.Conversation, err error) {
	err = em.store.View(func(txn *storage.Txn) error {
		conversations, err = txn.Conversations()
		return err
	})
	return conversations, err
}

// Conversation returns the conversation with the ID or ErrNoConversation.
func (em *EventModel) Conversation(id string) (*storage.Conversation, error) {
	var c *storage.Conversation
	err := em.store.View(func(txn *storage.Txn) (err error) {
		c, err = txn.GetConversation(id)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errors.WithMessage(ErrNoConversation, id)
	}
	return c, err
}

// SelfConversation returns the self conversation or ErrNoConversation.
func (em *EventModel) SelfConversation() (*storage.Conversation, error) {
	var c *storage.Conversation
	err := em.store.View(func(txn *storage.Txn) (err error) {
		c, err = txn.SelfConversation()
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errors.WithMessage(ErrNoConversation, "self")
	}
	return c, err
}

// Messages returns the messages of the conversation in ascending timestamp
// order.
func (em *EventModel) Messages(conversationID string) (messages []storage.Message, err error) {
	err = em.store.View(func(txn *storage.Txn) error {
		messages, err = txn.Messages(conversationID)
		return err
	})
	return messages, err
}

// Reactions returns the reactions to the message in ascending timestamp
// order.
func (em *EventModel) Reactions(targetID string) (reactions []storage.Reaction, err error) {
	err = em.store.View(func(txn *storage.Txn) error {
		reactions, err = txn.Reactions(targetID)
		return err
	})
	return reactions, err
}

// Participant returns the participant with the ID. Returns
// storage.ErrNotFound if they are unknown.
func (em *EventModel) Participant(id string) (p *storage.Participant, err error) {
	err = em.store.View(func(txn *storage.Txn) error {
		p, err = txn.GetParticipant(id)
		return err
	})
	return p, err
}

////////////////////////////////////////////////////////////////////////////////
// Helpers                                                                    //
////////////////////////////////////////////////////////////////////////////////

// conversationBuilder returns the function that builds the conversation for
// the message if it does not exist.
func (em *EventModel) conversationBuilder(msg IncomingMessage,
	sender identity.Display) func() (*storage.Conversation, error) {
	if msg.Kind != Direct {
		return func() (*storage.Conversation, error) {
			return &storage.Conversation{
				Name:      channelName(msg.ConversationID, msg.ConversationName),
				CreatedAt: time.Now().UTC(),
			}, nil
		}
	}

	if msg.DmToken == nil {
		return func() (*storage.Conversation, error) {
			return nil, ErrMissingDmToken
		}
	}

	// The conversation is named after the partner, who is not the sender when
	// the local identity sent the message
	partner := sender
	if EncodeID(msg.PubKey) != msg.ConversationID {
		partnerKey, err := DecodeID(msg.ConversationID)
		if err != nil {
			partner = identity.Fallback("")
		} else {
			partner = em.resolver.ResolveOrFallback(partnerKey, msg.Codeset, "")
		}
	}

	token := *msg.DmToken
	return func() (*storage.Conversation, error) {
		return &storage.Conversation{
			Name:      partner.Codename,
			DmToken:   &token,
			Color:     partner.Color,
			CreatedAt: time.Now().UTC(),
		}, nil
	}
}

// validateReaction checks the fields every reaction must have.
func (em *EventModel) validateReaction(reactionID, targetID, e string) error {
	switch {
	case reactionID == "":
		return ErrMissingMessageID
	case targetID == "":
		return ErrMissingTarget
	case strings.TrimSpace(e) == "":
		return ErrEmptyEmoji
	case em.emojis != nil && !em.emojis.IsSupported(e):
		return errors.WithMessagef(ErrUnsupportedEmoji, "%q", e)
	}
	return nil
}

// reject logs and counts a malformed event.
func (em *EventModel) reject(event, id string, err error) error {
	jww.WARN.Printf("[EV] Rejected %s event %q: %v", event, id, err)
	em.metrics.count(event, outcomeRejected)
	return err
}

// fail logs and counts a failed event. Rejections raised while storing are
// counted as such.
func (em *EventModel) fail(event, id string, err error) error {
	if IsRejected(err) {
		return em.reject(event, id, err)
	}
	jww.ERROR.Printf("[EV] Failed to store %s event %q: %+v", event, id, err)
	em.metrics.count(event, outcomeError)
	return errors.WithMessagef(err, "failed to store %s event", event)
}

// stored logs and counts a stored event.
func (em *EventModel) stored(event, id string, created bool) {
	if created {
		jww.DEBUG.Printf("[EV] Stored %s event %q", event, id)
		em.metrics.count(event, outcomeStored)
	} else {
		jww.DEBUG.Printf("[EV] Ignored replayed %s event %q", event, id)
		em.metrics.count(event, outcomeDuplicate)
	}
}

// senderDisplay is the display identity of an event's sender. resolved is
// false when the display is the nickname fallback.
type senderDisplay struct {
	identity.Display
	resolved bool
}

// resolveSender resolves the identity of the public key, falling back to the
// nickname if it cannot be constructed.
func (em *EventModel) resolveSender(
	pubKey ed25519.PublicKey, codeset uint8, nickname string) senderDisplay {
	d, err := em.resolver.Resolve(pubKey, codeset)
	if err != nil {
		jww.WARN.Printf("[EV] Falling back to nickname %q for %s: %+v",
			nickname, EncodeID(pubKey), err)
		return senderDisplay{Display: identity.Fallback(nickname)}
	}
	return senderDisplay{Display: d, resolved: true}
}

// upsertParticipant stores the sender. A nil token keeps the token of a known
// participant, and a fallback display never replaces the codename and color
// of a known participant. Returns the participant ID or nil if there is no
// public key.
func upsertParticipant(txn *storage.Txn, pubKey ed25519.PublicKey,
	s senderDisplay, dmToken *uint32, codeset uint8) (*string, error) {
	if len(pubKey) == 0 {
		return nil, nil
	}
	id := EncodeID(pubKey)

	p := &storage.Participant{
		ID:             id,
		PubKey:         append([]byte(nil), pubKey...),
		Codename:       s.Codename,
		Color:          s.Color,
		CodesetVersion: codeset,
	}

	existing, err := txn.GetParticipant(id)
	if err == nil {
		p.DmToken = existing.DmToken
		if !s.resolved {
			p.Codename = existing.Codename
			p.Color = existing.Color
			p.CodesetVersion = existing.CodesetVersion
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if dmToken != nil {
		p.DmToken = *dmToken
	}

	_, err = txn.UpsertParticipant(p)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// isSelf returns true if the participant is the local identity.
func isSelf(txn *storage.Txn, participantID *string) (bool, error) {
	if participantID == nil {
		return false, nil
	}
	self, err := txn.SelfConversation()
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return self.ID == *participantID, nil
}

// selfParticipantID returns the participant ID of the local identity or nil if
// there is no self conversation.
func selfParticipantID(txn *storage.Txn) (*string, error) {
	self, err := txn.SelfConversation()
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	if _, err = txn.GetParticipant(self.ID); errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &self.ID, nil
}

// selectMessage finds the message by UUID, then by message ID.
func selectMessage(txn *storage.Txn, sel MessageSelector) (*storage.Message, error) {
	if sel.UUID != 0 {
		m, err := txn.GetMessageByUUID(sel.UUID)
		if err == nil {
			return m, nil
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}
	if sel.MessageID != "" {
		m, err := txn.GetMessage(sel.MessageID)
		if err == nil {
			return m, nil
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}
	return nil, errors.WithMessagef(ErrNoMessage,
		"message %d (%s)", sel.UUID, sel.MessageID)
}

// fillSender sets the public key and codename of the participant.
func fillSender(txn *storage.Txn, mm *ModelMessage, participantID *string) error {
	if participantID == nil {
		return nil
	}
	p, err := txn.GetParticipant(*participantID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	mm.PubKey = p.PubKey
	mm.Codename = p.Codename
	return nil
}

// channelName returns the name, or a name derived from the channel ID if it is
// empty.
func channelName(channelID, name string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	prefix := channelID
	if len(prefix) > channelNamePrefixLen {
		prefix = prefix[:channelNamePrefixLen]
	}
	return "Channel " + prefix
}

func timestampOrNow(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now().UTC()
	}
	return ts.UTC()
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
