////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package remoteKV watches single keys of a synchronised key-value store and
// provides a local bbolt backed store with the same interface.
package remoteKV

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Operation types passed to KeyChangedCallback.Callback.
const (
	Created int8 = iota
	Updated
	Deleted
	Loaded
)

// ErrKeyNotFound is returned by Get when the key has no value.
var ErrKeyNotFound = errors.New("key does not exist")

// RemoteKV is a key-value store whose keys may be changed by other devices.
type RemoteKV interface {
	// Get returns the JSON Envelope stored at the key. It errors if the stored
	// version is older than version.
	Get(key string, version int64) ([]byte, error)

	// ListenOnRemoteKey registers cb for changes to the key. Changes made
	// locally are only reported if localEvents is set. Returns an ID for
	// DeleteRemoteKeyListener.
	ListenOnRemoteKey(key string, version int64, cb KeyChangedCallback,
		localEvents bool) (int, error)

	// DeleteRemoteKeyListener unregisters the listener with the ID.
	DeleteRemoteKeyListener(key string, id int) error
}

// KeyChangedCallback is notified when a key changes. old and new are JSON
// Envelopes; either may be empty or the JSON literal null when there is no
// value.
type KeyChangedCallback interface {
	Callback(key string, old, new []byte, opType int8)
}

// Envelope is the versioned object stored at each key.
//
// Example JSON:
//
//	{
//	  "Version": 1,
//	  "Timestamp": "2023-05-13T00:50:03.889192694Z",
//	  "Data": "bm90IHVwZ3JhZGVk"
//	}
type Envelope struct {
	Version   uint64
	Timestamp time.Time
	Data      []byte
}

// DecodeEnvelope unmarshals a JSON Envelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, errors.Wrap(err, "failed to unmarshal envelope")
	}
	return e, nil
}

// isNull returns true for the value sent when a key has no value.
func isNull(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
