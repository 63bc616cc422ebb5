////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package remoteKV

import (
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// ErrorCallback is called when a change to a watched key cannot be decoded.
type ErrorCallback func(key string, err error)

// KeyWatcher keeps the latest value of a single key.
type KeyWatcher struct {
	kv         RemoteKV
	key        string
	listenerID int
	onError    ErrorCallback

	envelope *Envelope
	err      error

	// changed is set once a change has been received from the RemoteKV
	changed bool
	mux     sync.RWMutex
}

// NewKeyWatcher registers for changes to the key and then reads its current
// value. A change received before the read completes takes precedence over
// the read. A failed initial read leaves the value absent. onError may be nil.
func NewKeyWatcher(kv RemoteKV, key string, version int64, localEvents bool,
	onError ErrorCallback) (*KeyWatcher, error) {
	w := &KeyWatcher{kv: kv, key: key, onError: onError}

	listenerID, err := kv.ListenOnRemoteKey(key, version, w, localEvents)
	if err != nil {
		return nil, errors.WithMessagef(err,
			"failed to listen on remote key %q", key)
	}
	w.listenerID = listenerID

	data, err := kv.Get(key, version)
	if err != nil {
		jww.WARN.Printf("[REMOTE KV] Initial get failed for key %q: %+v",
			key, err)
		return w, nil
	}

	e, err := DecodeEnvelope(data)

	w.mux.Lock()
	defer w.mux.Unlock()
	if w.changed {
		jww.DEBUG.Printf("[REMOTE KV] Key %q changed during initial get; "+
			"keeping the change", key)
	} else if err != nil {
		jww.WARN.Printf("[REMOTE KV] Initial value of key %q is invalid: %+v",
			key, err)
		w.err = err
	} else {
		jww.DEBUG.Printf("[REMOTE KV] Initial get succeeded for key %q: "+
			"%d bytes", key, len(e.Data))
		w.envelope = &e
	}

	return w, nil
}

// Callback updates the value when the key changes. It is called by the
// RemoteKV.
func (w *KeyWatcher) Callback(key string, old, new []byte, opType int8) {
	jww.TRACE.Printf("[REMOTE KV] Key %q changed (op %d)", key, opType)

	if isNull(new) {
		if isNull(old) {
			return
		}
		w.mux.Lock()
		w.envelope = nil
		w.err = nil
		w.changed = true
		w.mux.Unlock()
		return
	}

	e, err := DecodeEnvelope(new)
	if err != nil {
		err = errors.WithMessagef(err, "failed to decode change to key %q", key)
		jww.ERROR.Printf("[REMOTE KV] %+v", err)

		w.mux.Lock()
		w.err = err
		w.mux.Unlock()

		if w.onError != nil {
			w.onError(key, err)
		}
		return
	}

	w.mux.Lock()
	w.envelope = &e
	w.err = nil
	w.changed = true
	w.mux.Unlock()
}

// Key returns the watched key.
func (w *KeyWatcher) Key() string {
	return w.key
}

// Value returns the data of the current value. Returns false if the key has no
// value.
func (w *KeyWatcher) Value() ([]byte, bool) {
	w.mux.RLock()
	defer w.mux.RUnlock()
	if w.envelope == nil {
		return nil, false
	}
	return w.envelope.Data, true
}

// Envelope returns the current value with its version and timestamp.
func (w *KeyWatcher) Envelope() (Envelope, bool) {
	w.mux.RLock()
	defer w.mux.RUnlock()
	if w.envelope == nil {
		return Envelope{}, false
	}
	return *w.envelope, true
}

// Err returns the error from decoding the latest change, or nil if it was
// decoded.
func (w *KeyWatcher) Err() error {
	w.mux.RLock()
	defer w.mux.RUnlock()
	return w.err
}

// Close stops watching the key.
func (w *KeyWatcher) Close() error {
	return w.kv.DeleteRemoteKeyListener(w.key, w.listenerID)
}
