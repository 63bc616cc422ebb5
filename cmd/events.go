////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/xxdk-eventstore/eventModel"
)

// Event types accepted by ingest.
const (
	messageEvent          = "message"
	reactionEvent         = "reaction"
	deleteReactionEvent   = "deleteReaction"
	deleteMessageEvent    = "deleteMessage"
	statusEvent           = "status"
	joinChannelEvent      = "joinChannel"
	joinDirectEvent       = "joinDirect"
	leaveEvent            = "leave"
	outgoingEvent         = "outgoing"
	outgoingReactionEvent = "outgoingReaction"
)

// maxEventLineSize is the longest line ingest will read.
const maxEventLineSize = 1 << 20

// event is one line of a JSON lines event file. Only the fields used by the
// event type need to be set.
//
// Example message:
//
//	{"type":"message","kind":"direct","conversationID":"AAA=",
//	 "messageID":"m1","text":"aGk=","pubKey":"AAA=","dmToken":5}
type event struct {
	Type string `json:"type"`

	// Kind is "direct" or "channel". Defaults to channel.
	Kind string `json:"kind,omitempty"`

	ConversationID string    `json:"conversationID,omitempty"`
	Name           string    `json:"name,omitempty"`
	Description    string    `json:"description,omitempty"`
	MessageID      string    `json:"messageID,omitempty"`
	UUID           uint64    `json:"uuid,omitempty"`
	Text           string    `json:"text,omitempty"`
	ReplyTo        string    `json:"replyTo,omitempty"`
	TargetID       string    `json:"targetID,omitempty"`
	Emoji          string    `json:"emoji,omitempty"`
	Nickname       string    `json:"nickname,omitempty"`
	PubKey         []byte    `json:"pubKey,omitempty"`
	DmToken        *uint32   `json:"dmToken,omitempty"`
	Codeset        uint8     `json:"codeset,omitempty"`
	Timestamp      time.Time `json:"timestamp,omitempty"`
	Round          uint64    `json:"round,omitempty"`
	Status         uint8     `json:"status,omitempty"`
	Hidden         bool      `json:"hidden,omitempty"`
}

// ingestSummary counts the outcome of each line passed to ingest.
type ingestSummary struct {
	Applied int `json:"applied"`
	Failed  int `json:"failed"`
}

func (s ingestSummary) String() string {
	return fmt.Sprintf("%d events applied, %d failed", s.Applied, s.Failed)
}

// ingest applies each JSON line in r to the event model. A line that cannot
// be parsed or applied is logged and counted as failed; the remaining lines
// are still applied. An error is only returned if r cannot be read.
func ingest(r io.Reader, em *eventModel.EventModel) (ingestSummary, error) {
	var summary ingestSummary
	out := eventModel.NewOutgoingRecorder(em)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLineSize)
	for line := 1; scanner.Scan(); line++ {
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		var ev event
		err := json.Unmarshal(data, &ev)
		if err == nil {
			err = applyEvent(ev, em, out)
		}
		if err != nil {
			jww.WARN.Printf("Failed to apply event on line %d: %+v", line, err)
			summary.Failed++
			continue
		}
		summary.Applied++
	}

	if err := scanner.Err(); err != nil {
		return summary, errors.Wrap(err, "failed to read events")
	}
	return summary, nil
}

// applyEvent passes the event to the matching event model operation.
func applyEvent(ev event, em *eventModel.EventModel,
	out *eventModel.OutgoingRecorder) error {
	var err error
	switch ev.Type {
	case messageEvent:
		var kind eventModel.ConversationKind
		kind, err = parseKind(ev.Kind)
		if err != nil {
			return err
		}
		_, err = em.ReceiveMessage(eventModel.IncomingMessage{
			Kind:             kind,
			ConversationID:   ev.ConversationID,
			ConversationName: ev.Name,
			MessageID:        ev.MessageID,
			Text:             ev.Text,
			Nickname:         ev.Nickname,
			PubKey:           ev.PubKey,
			DmToken:          ev.DmToken,
			Codeset:          ev.Codeset,
			Timestamp:        ev.Timestamp,
			Round:            ev.Round,
			Status:           ev.Status,
			ReplyTo:          ev.ReplyTo,
			Hidden:           ev.Hidden,
		})
	case reactionEvent:
		_, err = em.ReceiveReaction(eventModel.IncomingReaction{
			ReactionID: ev.MessageID,
			TargetID:   ev.TargetID,
			Emoji:      ev.Emoji,
			Nickname:   ev.Nickname,
			PubKey:     ev.PubKey,
			DmToken:    ev.DmToken,
			Codeset:    ev.Codeset,
			Timestamp:  ev.Timestamp,
		})
	case deleteReactionEvent:
		_, err = em.DeleteReaction(ev.TargetID, ev.Emoji)
	case deleteMessageEvent:
		_, err = em.DeleteMessage(ev.MessageID)
	case statusEvent:
		err = em.SendStatusUpdate(
			ev.UUID, ev.MessageID, ev.Timestamp, ev.Round, ev.Status)
	case joinChannelEvent:
		_, err = em.JoinChannel(ev.ConversationID, ev.Name, ev.Description)
	case joinDirectEvent:
		var token uint32
		if ev.DmToken != nil {
			token = *ev.DmToken
		}
		_, err = em.JoinDirect(ev.PubKey, ev.Codeset, token, ev.Nickname)
	case leaveEvent:
		_, err = em.LeaveConversation(ev.ConversationID)
	case outgoingEvent:
		_, err = out.RecordOutgoing(
			ev.ConversationID, ev.Text, ev.MessageID, ev.ReplyTo)
	case outgoingReactionEvent:
		_, err = out.RecordReaction(ev.MessageID, ev.TargetID, ev.Emoji)
	default:
		return errors.Errorf("unknown event type %q", ev.Type)
	}

	return errors.WithMessagef(err, "failed to apply %s event", ev.Type)
}

func parseKind(kind string) (eventModel.ConversationKind, error) {
	switch kind {
	case "", eventModel.Channel.String():
		return eventModel.Channel, nil
	case eventModel.Direct.String():
		return eventModel.Direct, nil
	default:
		return 0, errors.Errorf("unknown conversation kind %q", kind)
	}
}
