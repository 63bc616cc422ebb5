////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"gitlab.com/elixxir/xxdk-eventstore/eventModel"
	"gitlab.com/elixxir/xxdk-eventstore/storage"
)

// showCmd prints the stored conversations as YAML.
var showCmd = &cobra.Command{
	Use:   "show [conversationID]",
	Short: "Print conversations and their messages",
	Long: "Print every stored conversation or, if an ID is given, a single " +
		"conversation with its messages and reactions.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		em, closeFn, err := openEventModel()
		if err != nil {
			return err
		}
		defer closeFn()

		return show(cmd.OutOrStdout(), em, args)
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}

type conversationView struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	Kind        string        `yaml:"kind"`
	Self        bool          `yaml:"self,omitempty"`
	DmToken     *uint32       `yaml:"dmToken,omitempty"`
	Created     time.Time     `yaml:"created"`
	Messages    []messageView `yaml:"messages,omitempty"`
}

type messageView struct {
	UUID      uint64         `yaml:"uuid"`
	MessageID string         `yaml:"messageID"`
	From      string         `yaml:"from,omitempty"`
	Text      string         `yaml:"text"`
	ReplyTo   string         `yaml:"replyTo,omitempty"`
	Timestamp time.Time      `yaml:"timestamp"`
	Incoming  bool           `yaml:"incoming"`
	Status    uint8          `yaml:"status"`
	Hidden    bool           `yaml:"hidden,omitempty"`
	Reactions []reactionView `yaml:"reactions,omitempty"`
}

type reactionView struct {
	Emoji string `yaml:"emoji"`
	From  string `yaml:"from,omitempty"`
	IsMe  bool   `yaml:"me,omitempty"`
}

// show writes the conversations to w. If args holds a conversation ID, only
// that conversation is written, with its messages.
func show(w io.Writer, em *eventModel.EventModel, args []string) error {
	var views []conversationView
	if len(args) == 0 {
		conversations, err := em.Conversations()
		if err != nil {
			return err
		}
		for i := range conversations {
			views = append(views, newConversationView(&conversations[i]))
		}
	} else {
		c, err := em.Conversation(args[0])
		if err != nil {
			return err
		}
		view := newConversationView(c)
		if view.Messages, err = messageViews(em, c.ID); err != nil {
			return err
		}
		views = append(views, view)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(views); err != nil {
		return err
	}
	return enc.Close()
}

func newConversationView(c *storage.Conversation) conversationView {
	kind := eventModel.Channel
	if c.IsDirect() {
		kind = eventModel.Direct
	}
	return conversationView{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Kind:        kind.String(),
		Self:        c.IsSelf,
		DmToken:     c.DmToken,
		Created:     c.CreatedAt,
	}
}

func messageViews(
	em *eventModel.EventModel, conversationID string) ([]messageView, error) {
	messages, err := em.Messages(conversationID)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string)
	views := make([]messageView, len(messages))
	for i, m := range messages {
		views[i] = messageView{
			UUID:      m.UUID,
			MessageID: m.MessageID,
			Text:      m.Text,
			Timestamp: m.Timestamp,
			Incoming:  m.IsIncoming,
			Status:    m.Status,
			Hidden:    m.Hidden,
		}
		if m.ReplyTo != nil {
			views[i].ReplyTo = *m.ReplyTo
		}
		if views[i].From, err = participantName(em, names, m.ParticipantID); err != nil {
			return nil, err
		}

		reactions, err := em.Reactions(m.MessageID)
		if err != nil {
			return nil, err
		}
		for _, r := range reactions {
			from, err := participantName(em, names, r.ParticipantID)
			if err != nil {
				return nil, err
			}
			views[i].Reactions = append(views[i].Reactions,
				reactionView{Emoji: r.Emoji, From: from, IsMe: r.IsMe})
		}
	}

	return views, nil
}

// participantName returns the codename of the participant, caching the result
// in names.
func participantName(em *eventModel.EventModel, names map[string]string,
	participantID *string) (string, error) {
	if participantID == nil {
		return "", nil
	}
	if name, ok := names[*participantID]; ok {
		return name, nil
	}

	p, err := em.Participant(*participantID)
	if err != nil {
		return "", err
	}
	names[*participantID] = p.Codename
	return p.Codename, nil
}
