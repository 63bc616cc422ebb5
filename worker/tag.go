////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package worker

// Tag describes the kind of job posted to the Writer. It is used for logging
// and metrics.
type Tag string

// List of tags that can be used when posting a job.
const (
	ReceiveMessageTag    Tag = "ReceiveMessage"
	ReceiveReactionTag   Tag = "ReceiveReaction"
	DeleteReactionTag    Tag = "DeleteReaction"
	DeleteMessageTag     Tag = "DeleteMessage"
	UpdateMessageTag     Tag = "UpdateMessage"
	JoinConversationTag  Tag = "JoinConversation"
	LeaveConversationTag Tag = "LeaveConversation"
	RecordOutgoingTag    Tag = "RecordOutgoing"
	RecordReactionTag    Tag = "RecordReaction"
)
