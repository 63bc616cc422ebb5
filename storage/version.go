////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package storage

import (
	"strconv"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/gorm"

	"gitlab.com/elixxir/client/v4/bindings"
)

// SEMVER is the current semantic version of the event store.
const SEMVER = "0.1.0"

// currentVersion is the current version of the database schema. Used for
// migration purposes.
const currentVersion uint = 1

// Meta keys.
const (
	schemaVersionKey = "schemaVersion"
	semverKey        = "eventStoreSemanticVersion"
	clientVerKey     = "xxdkClientSemanticVersion"
)

// checkAndUpgrade brings the database schema up to currentVersion and records
// the event store and xxDK client versions.
func checkAndUpgrade(db *gorm.DB) error {
	if err := db.AutoMigrate(&meta{}); err != nil {
		return errors.Wrap(err, "failed to migrate meta table")
	}

	storedVersion, err := loadSchemaVersion(db)
	if err != nil {
		return err
	}

	if storedVersion > currentVersion {
		return errors.Errorf("database schema v%d is newer than supported "+
			"schema v%d", storedVersion, currentVersion)
	} else if storedVersion == currentVersion {
		jww.INFO.Printf("[STORE] Database version is current: v%d",
			storedVersion)
	} else {
		jww.INFO.Printf("[STORE] Database upgrade required: v%d -> v%d",
			storedVersion, currentVersion)

		if storedVersion == 0 && currentVersion >= 1 {
			if err = v1Upgrade(db); err != nil {
				return errors.Wrap(err, "failed v1 upgrade")
			}
			storedVersion = 1
		}

		// if storedVersion == 1 && currentVersion >= 2 { v2Upgrade(), storedVersion = 2 }

		err = setMeta(db, schemaVersionKey,
			strconv.FormatUint(uint64(storedVersion), 10))
		if err != nil {
			return err
		}
	}

	return checkAndStoreVersions(db, SEMVER, bindings.GetVersion())
}

// v1Upgrade performs the v0 -> v1 database upgrade.
//
// This can never be changed without permanently breaking backwards
// compatibility.
func v1Upgrade(db *gorm.DB) error {
	return db.AutoMigrate(
		&Conversation{}, &Participant{}, &Message{}, &Reaction{})
}

// loadSchemaVersion returns the stored schema version or 0 for a new
// database.
func loadSchemaVersion(db *gorm.DB) (uint, error) {
	v, err := getMeta(db, schemaVersionKey)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}

	version, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid stored schema version %q", v)
	}
	return uint(version), nil
}

// checkAndStoreVersions logs when the stored event store or client version
// differs from the running one and then stores the running versions.
func checkAndStoreVersions(
	db *gorm.DB, currentStoreVer, currentClientVer string) error {
	storedClientVer, err := initOrLoadStoredSemver(db, clientVerKey, currentClientVer)
	if err != nil {
		return err
	}
	storedStoreVer, err := initOrLoadStoredSemver(db, semverKey, currentStoreVer)
	if err != nil {
		return err
	}

	setOldVersions(storedStoreVer, storedClientVer)

	if storedClientVer != currentClientVer {
		jww.INFO.Printf("[STORE] xxDK client out of date; upgrading "+
			"version: v%s → v%s", storedClientVer, currentClientVer)
	}
	if storedStoreVer != currentStoreVer {
		jww.INFO.Printf("[STORE] Event store out of date; upgrading "+
			"version: v%s → v%s", storedStoreVer, currentStoreVer)
	}

	if err = setMeta(db, clientVerKey, currentClientVer); err != nil {
		return err
	}
	return setMeta(db, semverKey, currentStoreVer)
}

// initOrLoadStoredSemver returns the semantic version stored at the key. If no
// version is stored, then the current version is stored and returned.
func initOrLoadStoredSemver(
	db *gorm.DB, key, currentVersion string) (string, error) {
	storedVersion, err := getMeta(db, key)
	if errors.Is(err, ErrNotFound) {
		jww.INFO.Printf("[STORE] Initialising %s to v%s", key, currentVersion)
		return currentVersion, setMeta(db, key, currentVersion)
	} else if err != nil {
		return "", errors.Errorf("could not load %s from storage: %+v", key, err)
	}
	return storedVersion, nil
}

func getMeta(db *gorm.DB, name string) (string, error) {
	var m meta
	err := db.Where(metaNameColumn+" = ?", name).Take(&m).Error
	if err != nil {
		return "", notFound(err)
	}
	return m.Value, nil
}

func setMeta(db *gorm.DB, name, value string) error {
	err := db.Save(&meta{Name: name, Value: value}).Error
	if err != nil {
		return errors.Wrapf(err, "failed to set %q", name)
	}
	return nil
}

// oldVersions contains the event store and client versions that were stored
// before being overwritten on open.
var oldVersions struct {
	store  string
	client string
	sync.Mutex
}

// GetOldStoreSemVersion returns the event store version found in the database
// when it was last opened.
func GetOldStoreSemVersion() string {
	oldVersions.Lock()
	defer oldVersions.Unlock()
	return oldVersions.store
}

// GetOldClientSemVersion returns the xxDK client version found in the
// database when it was last opened.
func GetOldClientSemVersion() string {
	oldVersions.Lock()
	defer oldVersions.Unlock()
	return oldVersions.client
}

func setOldVersions(store, client string) {
	oldVersions.Lock()
	defer oldVersions.Unlock()
	oldVersions.store = store
	oldVersions.client = client
}
