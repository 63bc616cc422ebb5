////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package eventModel

import (
	"github.com/pkg/errors"

	"gitlab.com/elixxir/client/v4/channels"
)

// Rejections. An event failing with one of these is malformed; it is logged and
// dropped without affecting any other event.
var (
	ErrUndecodable           = errors.New("message text could not be decoded")
	ErrMissingMessageID      = errors.New("event has no message ID")
	ErrMissingConversationID = errors.New("event has no conversation ID")
	ErrMissingDmToken        = errors.New("a DM token is required to create a direct conversation")
	ErrMissingTarget         = errors.New("reaction has no target message ID")
	ErrEmptyEmoji            = errors.New("reaction has no emoji")
	ErrUnsupportedEmoji      = errors.New("reaction emoji is not supported")
)

var (
	// ErrNoMessage is returned when a message or reaction does not exist. It is
	// the same error the channels manager expects from its event model.
	ErrNoMessage = channels.NoMessageErr

	// ErrNoConversation is returned when a conversation does not exist.
	ErrNoConversation = errors.New("conversation does not exist")

	// ErrSelfExists is returned when setting up the self conversation for a
	// key while one exists for another key.
	ErrSelfExists = errors.New("a self conversation exists for another identity")
)

var rejections = []error{
	ErrUndecodable,
	ErrMissingMessageID,
	ErrMissingConversationID,
	ErrMissingDmToken,
	ErrMissingTarget,
	ErrEmptyEmoji,
	ErrUnsupportedEmoji,
}

// IsRejected returns true if the error marks a malformed event.
func IsRejected(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}
