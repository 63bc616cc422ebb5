////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package logging configures jwalterweatherman logging: the log level, extra
// log listeners and an in-memory log file.
package logging

import (
	"sync"

	jww "github.com/spf13/jwalterweatherman"
)

// ListenerID identifies a registered log listener.
type ListenerID uint64

// logListeners contains all registered log listeners keyed on a unique ID that
// can be used to remove the listener once it has been added. jww only holds a
// flat list of listeners, so this list is the source of truth.
var logListeners = newLogListenerList()

type logListenerList struct {
	listeners map[ListenerID]jww.LogListener
	currentID ListenerID
	sync.Mutex
}

func newLogListenerList() *logListenerList {
	return &logListenerList{
		listeners: make(map[ListenerID]jww.LogListener),
	}
}

// AddLogListener registers the log listener with jwalterweatherman. Returns a
// unique ID that can be used to remove the listener.
func AddLogListener(ll jww.LogListener) ListenerID {
	logListeners.Lock()
	defer logListeners.Unlock()

	id := logListeners.currentID
	logListeners.currentID++
	logListeners.listeners[id] = ll

	jww.SetLogListeners(logListeners.toSlice()...)
	return id
}

// RemoveLogListener unregisters the log listener with the ID from
// jwalterweatherman. Unknown IDs are ignored.
func RemoveLogListener(id ListenerID) {
	logListeners.Lock()
	defer logListeners.Unlock()

	if _, exists := logListeners.listeners[id]; !exists {
		return
	}
	delete(logListeners.listeners, id)
	jww.SetLogListeners(logListeners.toSlice()...)
}

// NumLogListeners returns the number of registered log listeners.
func NumLogListeners() int {
	logListeners.Lock()
	defer logListeners.Unlock()
	return len(logListeners.listeners)
}

// toSlice converts the map of listeners to a slice of listeners so that it
// can be registered with jwalterweatherman.SetLogListeners.
func (lll *logListenerList) toSlice() []jww.LogListener {
	listeners := make([]jww.LogListener, 0, len(lll.listeners))
	for _, l := range lll.listeners {
		listeners = append(listeners, l)
	}
	return listeners
}
