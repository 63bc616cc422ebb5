////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package worker

// Params are parameters used in the [Writer].
type Params struct {
	// MessageLogging indicates if a DEBUG message should be printed every time
	// a job is queued or finished.
	MessageLogging bool

	// QueueSize is the number of jobs that can wait in the queue before Post
	// blocks.
	QueueSize int
}

// DefaultParams returns the default parameters.
func DefaultParams() Params {
	return Params{
		MessageLogging: false,
		QueueSize:      100,
	}
}
