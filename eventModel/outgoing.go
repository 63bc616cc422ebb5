////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package eventModel

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aquilax/truncate"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/xxdk-eventstore/storage"
	"gitlab.com/elixxir/xxdk-eventstore/worker"
)

// SendReport is the report returned by the transport after sending a message.
//
// Example JSON:
//
//	{
//	  "messageID": "0kitNxoFdsF4q1VMSI/xPzfCnGB2l+ln2+7CTHjHbJw=",
//	  "ephId": 1613
//	}
type SendReport struct {
	MessageID []byte `json:"messageID"`
	EphID     int64  `json:"ephId"`
}

// SendFunc sends the text to the conversation and returns the JSON encoded
// SendReport. It blocks until the transport has sent the message.
type SendFunc func(ctx context.Context, conversationID, text,
	replyTo string) ([]byte, error)

// ParseSendReport unmarshals a JSON SendReport. A report without a message ID
// is an error.
func ParseSendReport(data []byte) (SendReport, error) {
	var sr SendReport
	if err := json.Unmarshal(data, &sr); err != nil {
		return SendReport{}, errors.Wrapf(err, "failed to unmarshal send "+
			"report %s", truncate.Truncate(string(data), logTextLen, "...",
			truncate.PositionMiddle))
	}
	if len(sr.MessageID) == 0 {
		return SendReport{}, errors.WithMessage(ErrMissingMessageID,
			"send report")
	}
	return sr, nil
}

// OutgoingRecorder records messages and reactions sent by the local identity.
type OutgoingRecorder struct {
	em *EventModel
}

// NewOutgoingRecorder creates an OutgoingRecorder that stores through the
// EventModel.
func NewOutgoingRecorder(em *EventModel) *OutgoingRecorder {
	return &OutgoingRecorder{em: em}
}

// RecordOutgoing stores a message sent to an existing conversation. The
// message is attributed to the self participant, if there is one. Recording a
// stored message ID changes nothing.
func (or *OutgoingRecorder) RecordOutgoing(
	conversationID, text, messageID, replyTo string) (Result, error) {
	jww.TRACE.Printf("[EV] RecordOutgoing(%s, %s): %q", conversationID,
		messageID, truncate.Truncate(text, logTextLen, "...",
			truncate.PositionMiddle))
	em := or.em

	if messageID == "" {
		return Result{}, em.reject(eventOutgoing, messageID, ErrMissingMessageID)
	}

	var res Result
	err := em.writer.Do(worker.RecordOutgoingTag, func() error {
		return em.store.Update(func(txn *storage.Txn) error {
			c, err := txn.GetConversation(conversationID)
			if errors.Is(err, storage.ErrNotFound) {
				return errors.WithMessagef(ErrNoConversation,
					"sending to %s", conversationID)
			} else if err != nil {
				return err
			}

			participantID, err := selfParticipantID(txn)
			if err != nil {
				return err
			}

			uuid, inserted, err := txn.InsertMessage(&storage.Message{
				MessageID:      messageID,
				ConversationID: c.ID,
				ParticipantID:  participantID,
				ReplyTo:        optionalString(replyTo),
				Text:           text,
				Timestamp:      time.Now().UTC(),
				IsIncoming:     false,
			})
			if err != nil {
				return err
			}

			res = Result{UUID: uuid, ConversationID: c.ID, Created: inserted}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, ErrNoConversation) {
			em.metrics.count(eventOutgoing, outcomeRejected)
			return Result{}, err
		}
		return Result{}, em.fail(eventOutgoing, messageID, err)
	}

	em.stored(eventOutgoing, messageID, res.Created)
	return res, nil
}

// RecordReaction stores a reaction sent by the local identity.
func (or *OutgoingRecorder) RecordReaction(
	reactionID, targetID, emoji string) (Result, error) {
	jww.TRACE.Printf("[EV] RecordReaction(%s, %s, %q)",
		reactionID, targetID, emoji)
	em := or.em

	if err := em.validateReaction(reactionID, targetID, emoji); err != nil {
		return Result{}, em.reject(eventOutgoingReaction, reactionID, err)
	}

	var res Result
	err := em.writer.Do(worker.RecordReactionTag, func() error {
		return em.store.Update(func(txn *storage.Txn) error {
			participantID, err := selfParticipantID(txn)
			if err != nil {
				return err
			}

			uuid, inserted, err := txn.InsertReaction(&storage.Reaction{
				ReactionID:    reactionID,
				TargetID:      targetID,
				Emoji:         emoji,
				ParticipantID: participantID,
				IsMe:          true,
				Timestamp:     time.Now().UTC(),
			})
			if err != nil {
				return err
			}

			res = Result{UUID: uuid, Created: inserted}
			return nil
		})
	})
	if err != nil {
		return Result{}, em.fail(eventOutgoingReaction, reactionID, err)
	}

	em.stored(eventOutgoingReaction, reactionID, res.Created)
	return res, nil
}

// Send sends the text with send and records the message under the ID in the
// returned report. The conversation must exist. The context only bounds the
// wait on send; recording is not cancelled.
func (or *OutgoingRecorder) Send(ctx context.Context, conversationID, text,
	replyTo string, send SendFunc) (Result, error) {
	if _, err := or.em.Conversation(conversationID); err != nil {
		return Result{}, errors.WithMessage(err, "failed to send message")
	}

	type sendResult struct {
		report []byte
		err    error
	}
	done := make(chan sendResult, 1)
	go func() {
		report, err := send(ctx, conversationID, text, replyTo)
		done <- sendResult{report, err}
	}()

	var sent sendResult
	select {
	case sent = <-done:
	case <-ctx.Done():
		return Result{}, errors.Wrap(ctx.Err(),
			"failed to send message while waiting for transport")
	}
	if sent.err != nil {
		return Result{}, errors.WithMessage(sent.err, "failed to send message")
	}

	sr, err := ParseSendReport(sent.report)
	if err != nil {
		return Result{}, errors.WithMessage(err, "failed to parse send report")
	}
	jww.DEBUG.Printf("[EV] Sent message %s on ephemeral ID %d",
		EncodeID(sr.MessageID), sr.EphID)

	return or.RecordOutgoing(conversationID, text, EncodeID(sr.MessageID),
		replyTo)
}
