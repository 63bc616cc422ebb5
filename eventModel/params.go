////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package eventModel

import "gitlab.com/elixxir/xxdk-eventstore/worker"

// Params are parameters used in the [EventModel].
type Params struct {
	// StrictReactions rejects reactions whose emoji is not supported by the
	// backend.
	StrictReactions bool

	// Writer configures the writer that serialises store mutations.
	Writer worker.Params
}

// DefaultParams returns the default parameters.
func DefaultParams() Params {
	return Params{
		StrictReactions: false,
		Writer:          worker.DefaultParams(),
	}
}
