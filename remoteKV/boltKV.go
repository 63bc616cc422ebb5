////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package remoteKV

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("remoteKV")

// openTimeout is how long Open waits for the file lock held by another
// process.
const openTimeout = time.Second

type listener struct {
	cb          KeyChangedCallback
	localEvents bool
}

// BoltKV is a RemoteKV stored in a local bbolt database. Values written with
// Set and Delete are local changes; values applied with Import are changes
// from another device.
type BoltKV struct {
	db *bolt.DB

	listeners map[string]map[int]listener
	nextID    int
	mux       sync.Mutex
}

// OpenBoltKV opens, creating if needed, the bbolt database at path.
func OpenBoltKV(path string) (*BoltKV, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open KV %q", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to create KV bucket")
	}

	return &BoltKV{db: db, listeners: make(map[string]map[int]listener)}, nil
}

// Close closes the database.
func (kv *BoltKV) Close() error {
	return kv.db.Close()
}

// Get returns the JSON Envelope stored at the key.
func (kv *BoltKV) Get(key string, version int64) ([]byte, error) {
	var data []byte
	err := kv.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v == nil {
			return errors.WithMessage(ErrKeyNotFound, key)
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e, err := DecodeEnvelope(data)
	if err != nil {
		return nil, err
	} else if version > 0 && uint64(version) > e.Version {
		return nil, errors.Errorf("key %q is at version %d, older than "+
			"requested version %d", key, e.Version, version)
	}
	return data, nil
}

// Set stores the data at the key under the next version.
func (kv *BoltKV) Set(key string, data []byte) error {
	return kv.put(key, func(old *Envelope) Envelope {
		version := uint64(0)
		if old != nil {
			version = old.Version + 1
		}
		return Envelope{
			Version:   version,
			Timestamp: time.Now().UTC(),
			Data:      data,
		}
	}, true)
}

// Import stores an Envelope received from another device.
func (kv *BoltKV) Import(key string, envelope []byte) error {
	e, err := DecodeEnvelope(envelope)
	if err != nil {
		return err
	}
	return kv.put(key, func(*Envelope) Envelope { return e }, false)
}

// Delete removes the key. Deleting a missing key does nothing.
func (kv *BoltKV) Delete(key string) error {
	var old []byte
	err := kv.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if v := b.Get([]byte(key)); v != nil {
			old = append([]byte(nil), v...)
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return errors.Wrapf(err, "failed to delete key %q", key)
	}

	if old != nil {
		kv.notify(key, old, nil, Deleted, true)
	}
	return nil
}

// Keys returns all keys in ascending order.
func (kv *BoltKV) Keys() ([]string, error) {
	var keys []string
	err := kv.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	sort.Strings(keys)
	return keys, err
}

// ListenOnRemoteKey registers cb for changes to the key.
func (kv *BoltKV) ListenOnRemoteKey(key string, _ int64,
	cb KeyChangedCallback, localEvents bool) (int, error) {
	if cb == nil {
		return 0, errors.Errorf("nil callback for key %q", key)
	}

	kv.mux.Lock()
	defer kv.mux.Unlock()
	kv.nextID++
	if kv.listeners[key] == nil {
		kv.listeners[key] = make(map[int]listener)
	}
	kv.listeners[key][kv.nextID] = listener{cb: cb, localEvents: localEvents}
	return kv.nextID, nil
}

// DeleteRemoteKeyListener unregisters the listener.
func (kv *BoltKV) DeleteRemoteKeyListener(key string, id int) error {
	kv.mux.Lock()
	defer kv.mux.Unlock()
	if _, exists := kv.listeners[key][id]; !exists {
		return errors.Errorf("no listener %d on key %q", id, key)
	}
	delete(kv.listeners[key], id)
	if len(kv.listeners[key]) == 0 {
		delete(kv.listeners, key)
	}
	return nil
}

// put stores the Envelope built from the previous value and notifies
// listeners.
func (kv *BoltKV) put(
	key string, build func(old *Envelope) Envelope, local bool) error {
	var old, data []byte
	err := kv.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)

		var oldEnvelope *Envelope
		if v := b.Get([]byte(key)); v != nil {
			old = append([]byte(nil), v...)
			e, err := DecodeEnvelope(old)
			if err != nil {
				jww.WARN.Printf("[REMOTE KV] Overwriting invalid value of "+
					"key %q: %+v", key, err)
			} else {
				oldEnvelope = &e
			}
		}

		var err error
		data, err = json.Marshal(build(oldEnvelope))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to set key %q", key)
	}

	opType := Updated
	if old == nil {
		opType = Created
	}
	kv.notify(key, old, data, opType, local)
	return nil
}

// notify calls the listeners of the key. Local changes are only sent to
// listeners that asked for them.
func (kv *BoltKV) notify(key string, old, new []byte, opType int8, local bool) {
	kv.mux.Lock()
	cbs := make([]KeyChangedCallback, 0, len(kv.listeners[key]))
	for _, l := range kv.listeners[key] {
		if !local || l.localEvents {
			cbs = append(cbs, l.cb)
		}
	}
	kv.mux.Unlock()

	for _, cb := range cbs {
		cb.Callback(key, old, new, opType)
	}
}
