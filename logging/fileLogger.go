////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package logging

import (
	"io"
	"sync"

	"github.com/armon/circbuf"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// FileLogger records jwalterweatherman logs to an in-memory log file. Once the
// file reaches its max size, the oldest logs are overwritten.
type FileLogger struct {
	threshold      jww.Threshold
	maxLogFileSize int
	listenerID     ListenerID
	stopped        bool

	cb  *circbuf.Buffer
	mux sync.Mutex
}

// NewFileLogger starts logging to a local, in-memory log file at the specified
// threshold.
func NewFileLogger(threshold jww.Threshold, maxLogFileSize int) (*FileLogger, error) {
	b, err := circbuf.NewBuffer(int64(maxLogFileSize))
	if err != nil {
		return nil, errors.Wrap(err, "could not create new circular buffer")
	}

	fl := &FileLogger{
		threshold:      threshold,
		maxLogFileSize: maxLogFileSize,
		cb:             b,
	}
	fl.listenerID = AddLogListener(fl.Listen)

	jww.INFO.Printf("[LOG] Outputting log to file of max size %d at level %s",
		fl.maxLogFileSize, fl.threshold)
	return fl, nil
}

// Write adheres to the io.Writer interface and writes log entries to the
// buffer.
func (fl *FileLogger) Write(p []byte) (n int, err error) {
	fl.mux.Lock()
	defer fl.mux.Unlock()
	return fl.cb.Write(p)
}

// Listen adheres to the [jwalterweatherman.LogListener] type and returns the
// log writer when the threshold is within the set threshold limit.
func (fl *FileLogger) Listen(t jww.Threshold) io.Writer {
	fl.mux.Lock()
	defer fl.mux.Unlock()
	if fl.stopped || t < fl.threshold {
		return nil
	}
	return fl
}

// StopLogging stops log message writes. The log file can still be read.
func (fl *FileLogger) StopLogging() {
	fl.mux.Lock()
	fl.stopped = true
	fl.mux.Unlock()
	RemoveLogListener(fl.listenerID)
}

// GetFile returns the entire log file.
func (fl *FileLogger) GetFile() []byte {
	fl.mux.Lock()
	defer fl.mux.Unlock()
	return append([]byte(nil), fl.cb.Bytes()...)
}

// Threshold returns the log level threshold used in the file.
func (fl *FileLogger) Threshold() jww.Threshold {
	return fl.threshold
}

// MaxSize returns the max size, in bytes, that the log file is allowed to be.
func (fl *FileLogger) MaxSize() int {
	return fl.maxLogFileSize
}

// Size returns the current size, in bytes, written to the log file.
func (fl *FileLogger) Size() int {
	fl.mux.Lock()
	defer fl.mux.Unlock()
	return len(fl.cb.Bytes())
}
